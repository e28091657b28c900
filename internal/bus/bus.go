// Package bus is the explicit event channel between the session engine and its hosts.
//
// The engine publishes; hosts (HTTP server, REPL) subscribe per topic.
// Handlers run synchronously on the publishing goroutine, in subscription
// order, outside the bus lock, so a handler may publish or unsubscribe.
package bus

import (
	"sort"
	"sync"

	"github.com/leapstack-labs/workbench/pkg/core"
)

// Topic names an event stream.
type Topic string

// Topics published by the workbench.
const (
	// TopicSessionChanged fires after any settled session mutation.
	TopicSessionChanged Topic = "session.changed"
	// TopicPanelOpen asks the host to reveal a bottom panel. Payload: PanelOpen.
	TopicPanelOpen Topic = "panel.open"
	// TopicOutputAppended carries a new output entry. Payload: core.OutputEntry.
	TopicOutputAppended Topic = "output.appended"
	// TopicTabLimitReached reports a refused open. Payload: TabLimitReached.
	TopicTabLimitReached Topic = "tab.limit_reached"
)

// Event is one published message.
type Event struct {
	Topic       Topic
	WorkspaceID string
	Payload     any
}

// PanelOpen is the payload of TopicPanelOpen.
type PanelOpen struct {
	Panel core.BottomPanel
}

// TabLimitReached is the payload of TopicTabLimitReached.
type TabLimitReached struct {
	Max int
}

// Handler receives events.
type Handler func(Event)

// Bus dispatches events to topic subscribers.
type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[Topic]map[int]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[Topic]map[int]Handler)}
}

// Subscribe registers h for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]Handler)
	}
	b.handlers[topic][id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[topic], id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every handler subscribed to e.Topic.
// A nil bus drops the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	subs := b.handlers[e.Topic]
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	hs := make([]Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, subs[id])
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(e)
	}
}

// Subscribers returns the number of handlers on topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}
