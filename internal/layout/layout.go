// Package layout tracks the resizable side and bottom panes of the workbench.
package layout

import (
	"sync"

	"github.com/leapstack-labs/workbench/internal/state"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// ChangeFunc receives the full layout after every transition.
type ChangeFunc func(core.Layout)

// Controller owns the pane sizes and the editor focus flag.
// Sizes are always within the documented bounds.
type Controller struct {
	mu       sync.Mutex
	layout   core.Layout
	onChange ChangeFunc
	drag     *Drag
}

// New creates a controller starting from initial, clamped.
func New(initial core.Layout, onChange ChangeFunc) *Controller {
	return &Controller{layout: clampLayout(initial), onChange: onChange}
}

// Layout returns the current layout.
func (c *Controller) Layout() core.Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layout
}

// SetOnChange replaces the change callback.
func (c *Controller) SetOnChange(fn ChangeFunc) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// SetLayout replaces the layout, clamping sizes.
func (c *Controller) SetLayout(l core.Layout) {
	c.update(func(cur *core.Layout) { *cur = clampLayout(l) })
}

// FocusEditor sets the focus flag. Sizes are left untouched.
func (c *Controller) FocusEditor() {
	c.update(func(cur *core.Layout) { cur.IsEditorFocused = true })
}

// UnfocusEditor clears the focus flag.
func (c *Controller) UnfocusEditor() {
	c.update(func(cur *core.Layout) { cur.IsEditorFocused = false })
}

// ResetLayout restores the defaults regardless of current state.
func (c *Controller) ResetLayout() {
	c.update(func(cur *core.Layout) { *cur = core.DefaultLayout() })
}

// StartLeftResize begins dragging the side pane edge at pointer x.
// Any drag already in progress ends first.
func (c *Controller) StartLeftResize(x int) *Drag {
	return c.start(axisLeft, x)
}

// StartBottomResize begins dragging the bottom pane edge at pointer y.
// Moving the pointer up grows the bottom pane.
func (c *Controller) StartBottomResize(y int) *Drag {
	return c.start(axisBottom, y)
}

// Dragging reports whether a drag is in progress.
func (c *Controller) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag != nil
}

func (c *Controller) start(a axis, pointer int) *Drag {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drag != nil {
		c.drag.ended = true
	}
	size := c.layout.LeftPaneWidth
	if a == axisBottom {
		size = c.layout.BottomPaneHeight
	}
	c.drag = &Drag{c: c, axis: a, origin: pointer, startSize: size}
	return c.drag
}

func (c *Controller) update(fn func(*core.Layout)) {
	c.mu.Lock()
	fn(&c.layout)
	l, cb := c.layout, c.onChange
	c.mu.Unlock()

	if cb != nil {
		cb(l)
	}
}

type axis int

const (
	axisLeft axis = iota
	axisBottom
)

// Drag is one pointer-driven resize. Deltas apply to the size captured at
// start, not the live size. Moves after End are ignored.
type Drag struct {
	c         *Controller
	axis      axis
	origin    int
	startSize int
	ended     bool
}

// Move applies the pointer position.
func (d *Drag) Move(pointer int) {
	d.c.mu.Lock()
	if d.ended {
		d.c.mu.Unlock()
		return
	}
	d.c.mu.Unlock()

	d.c.update(func(cur *core.Layout) {
		switch d.axis {
		case axisLeft:
			cur.LeftPaneWidth = state.ClampLeft(d.startSize + pointer - d.origin)
		case axisBottom:
			cur.BottomPaneHeight = state.ClampBottom(d.startSize + d.origin - pointer)
		}
	})
}

// End releases the drag.
func (d *Drag) End() {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	d.ended = true
	if d.c.drag == d {
		d.c.drag = nil
	}
}

func clampLayout(l core.Layout) core.Layout {
	l.LeftPaneWidth = state.ClampLeft(l.LeftPaneWidth)
	l.BottomPaneHeight = state.ClampBottom(l.BottomPaneHeight)
	return l
}
