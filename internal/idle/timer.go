// Package idle implements the auto-hide timer of a transient window.
//
// A Timer is either Visible (window shown, a hide is scheduled) or Hidden
// (no hide pending). Every Reset pushes the scheduled hide out by the quiet
// interval; when it fires unchallenged the window collaborator is told to
// hide. One Timer belongs to exactly one window.
package idle

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultQuiet is used when a non-positive interval is configured.
const DefaultQuiet = 1500 * time.Millisecond

// Window is the visibility collaborator. Show and Hide are called without
// the timer's lock held.
type Window interface {
	Show()
	Hide()
}

type State int

const (
	Hidden State = iota
	Visible
)

func (s State) String() string {
	if s == Visible {
		return "visible"
	}
	return "hidden"
}

type Option func(*Timer)

// WithShowOnReset makes a Reset from Hidden ask the window to show again.
// Without it the window is only shown by its owner.
func WithShowOnReset() Option {
	return func(t *Timer) { t.showOnReset = true }
}

// WithOnHide registers a hook invoked after each idle hide.
func WithOnHide(fn func()) Option {
	return func(t *Timer) { t.onHide = fn }
}

type Timer struct {
	clk    clock.Clock
	win    Window
	onHide func()

	showOnReset bool

	// winMu orders window calls with the state changes that caused them.
	// Lock order: winMu, then mu.
	winMu sync.Mutex

	mu     sync.Mutex
	quiet  time.Duration
	state  State
	timer  *clock.Timer
	gen    uint64
	closed bool
}

// New creates a Hidden timer. Nothing is scheduled until the first Reset.
func New(clk clock.Clock, quiet time.Duration, win Window, opts ...Option) *Timer {
	if clk == nil {
		clk = clock.New()
	}
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	t := &Timer{clk: clk, win: win, quiet: quiet}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Reset cancels any pending hide and schedules a new one after the quiet
// interval. Only the most recent call matters.
func (t *Timer) Reset() {
	t.winMu.Lock()
	defer t.winMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	show := t.state == Hidden && t.showOnReset
	t.state = Visible
	t.rescheduleLocked()
	t.mu.Unlock()

	if show && t.win != nil {
		t.win.Show()
	}
}

// Hide cancels the pending hide and hides right away. Used for external
// visibility triggers.
func (t *Timer) Hide() {
	t.winMu.Lock()
	defer t.winMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.cancelLocked()
	t.state = Hidden
	t.mu.Unlock()

	if t.win != nil {
		t.win.Hide()
	}
}

// SetQuiet changes the interval used by subsequent resets.
func (t *Timer) SetQuiet(d time.Duration) {
	if d <= 0 {
		d = DefaultQuiet
	}
	t.mu.Lock()
	t.quiet = d
	t.mu.Unlock()
}

func (t *Timer) Quiet() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quiet
}

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Pending reports whether a hide is scheduled.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Close cancels the pending hide and waits for a window call already in
// progress. After Close no callback reaches the window and Reset/Hide are
// no-ops.
func (t *Timer) Close() {
	t.winMu.Lock()
	defer t.winMu.Unlock()

	t.mu.Lock()
	t.cancelLocked()
	t.closed = true
	t.mu.Unlock()
}

func (t *Timer) rescheduleLocked() {
	t.cancelLocked()
	gen := t.gen
	t.timer = t.clk.AfterFunc(t.quiet, func() { t.fire(gen) })
}

func (t *Timer) cancelLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// fire runs on the clock's goroutine. A generation mismatch means a Reset,
// Hide or Close happened after this callback was scheduled.
func (t *Timer) fire(gen uint64) {
	t.winMu.Lock()
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		t.winMu.Unlock()
		return
	}
	t.timer = nil
	t.state = Hidden
	t.mu.Unlock()

	if t.win != nil {
		t.win.Hide()
	}
	t.winMu.Unlock()

	if t.onHide != nil {
		t.onHide()
	}
}
