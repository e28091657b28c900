// Package notifier pings SSE listeners when a workspace's session changes.
package notifier

import "sync"

// Notifier broadcasts update signals to subscribed listeners. Listeners
// receive an empty struct and should re-read the session snapshot.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan struct{}]string
}

// New creates a Notifier.
func New() *Notifier {
	return &Notifier{listeners: make(map[chan struct{}]string)}
}

// Subscribe returns a channel pinged when workspaceID changes. The caller
// must call Unsubscribe when done.
func (n *Notifier) Subscribe(workspaceID string) chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.listeners[ch] = workspaceID
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// Broadcast pings the listeners of workspaceID, or every listener when
// workspaceID is empty. A listener with a pending ping is skipped.
func (n *Notifier) Broadcast(workspaceID string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch, ws := range n.listeners {
		if workspaceID != "" && ws != workspaceID {
			continue
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Listeners returns the number of subscribed listeners.
func (n *Notifier) Listeners() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
