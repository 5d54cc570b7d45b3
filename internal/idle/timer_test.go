package idle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWindow struct {
	shows atomic.Int32
	hides atomic.Int32
}

func (w *fakeWindow) Show() { w.shows.Add(1) }
func (w *fakeWindow) Hide() { w.hides.Add(1) }

const quiet = 1500 * time.Millisecond

// settle gives AfterFunc callbacks, which the mock clock runs on their own
// goroutine, a chance to finish.
func settle() { time.Sleep(20 * time.Millisecond) }

func TestNoHideBeforeQuietInterval(t *testing.T) {
	clk := clock.NewMock()
	win := &fakeWindow{}
	tm := New(clk, quiet, win)

	tm.Reset()
	clk.Add(quiet - time.Millisecond)
	settle()

	assert.Zero(t, win.hides.Load())
	assert.Equal(t, Visible, tm.State())
}

func TestExactlyOneHide(t *testing.T) {
	clk := clock.NewMock()
	win := &fakeWindow{}
	tm := New(clk, quiet, win)

	tm.Reset()
	clk.Add(quiet)
	require.Eventually(t, func() bool { return win.hides.Load() == 1 }, time.Second, 5*time.Millisecond)

	clk.Add(10 * quiet)
	settle()
	assert.Equal(t, int32(1), win.hides.Load())
	assert.Equal(t, Hidden, tm.State())
	assert.False(t, tm.Pending())
}

func TestResetBeforeExpiryRestartsInterval(t *testing.T) {
	clk := clock.NewMock()
	win := &fakeWindow{}
	tm := New(clk, quiet, win)

	tm.Reset()
	clk.Add(quiet - time.Millisecond)
	tm.Reset()
	clk.Add(quiet - time.Millisecond)
	settle()
	assert.Zero(t, win.hides.Load())

	clk.Add(time.Millisecond)
	require.Eventually(t, func() bool { return win.hides.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestResetIsIdempotent(t *testing.T) {
	clk := clock.NewMock()
	win := &fakeWindow{}
	tm := New(clk, quiet, win)

	for i := 0; i < 50; i++ {
		tm.Reset()
	}
	clk.Add(quiet)
	require.Eventually(t, func() bool { return win.hides.Load() == 1 }, time.Second, 5*time.Millisecond)
	settle()
	assert.Equal(t, int32(1), win.hides.Load())
}

func TestShowOnResetAfterHidden(t *testing.T) {
	clk := clock.NewMock()
	win := &fakeWindow{}
	tm := New(clk, quiet, win, WithShowOnReset())

	tm.Reset()
	assert.Equal(t, int32(1), win.shows.Load())
	tm.Reset()
	assert.Equal(t, int32(1), win.shows.Load(), "already visible")

	clk.Add(quiet)
	require.Eventually(t, func() bool { return tm.State() == Hidden }, time.Second, 5*time.Millisecond)

	tm.Reset()
	assert.Equal(t, int32(2), win.shows.Load())
	assert.Equal(t, Visible, tm.State())
}

func TestOverlayResetDoesNotShow(t *testing.T) {
	win := &fakeWindow{}
	tm := New(clock.NewMock(), quiet, win)
	tm.Reset()
	assert.Zero(t, win.shows.Load())
}

func TestHideCancelsPending(t *testing.T) {
	clk := clock.NewMock()
	win := &fakeWindow{}
	tm := New(clk, quiet, win)

	tm.Reset()
	tm.Hide()
	assert.Equal(t, int32(1), win.hides.Load())

	clk.Add(2 * quiet)
	settle()
	assert.Equal(t, int32(1), win.hides.Load())
}

func TestCloseCancelsPending(t *testing.T) {
	clk := clock.NewMock()
	win := &fakeWindow{}
	tm := New(clk, quiet, win)

	tm.Reset()
	tm.Close()
	clk.Add(2 * quiet)
	settle()
	assert.Zero(t, win.hides.Load())

	tm.Reset()
	assert.False(t, tm.Pending())
}

func TestOnHideHook(t *testing.T) {
	clk := clock.NewMock()
	var hooked atomic.Int32
	tm := New(clk, quiet, nil, WithOnHide(func() { hooked.Add(1) }))

	tm.Reset()
	clk.Add(quiet)
	require.Eventually(t, func() bool { return hooked.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSetQuiet(t *testing.T) {
	clk := clock.NewMock()
	win := &fakeWindow{}
	tm := New(clk, 0, win)
	assert.Equal(t, DefaultQuiet, tm.Quiet())

	tm.SetQuiet(3 * time.Second)
	tm.Reset()
	clk.Add(2 * time.Second)
	settle()
	assert.Zero(t, win.hides.Load())
	clk.Add(time.Second)
	require.Eventually(t, func() bool { return win.hides.Load() == 1 }, time.Second, 5*time.Millisecond)
}

// gatedWindow records window calls in order. Hide blocks until release is
// closed.
type gatedWindow struct {
	mu      sync.Mutex
	ops     []string
	hiding  chan struct{}
	release chan struct{}
}

func newGatedWindow() *gatedWindow {
	return &gatedWindow{hiding: make(chan struct{}, 1), release: make(chan struct{})}
}

func (w *gatedWindow) record(op string) {
	w.mu.Lock()
	w.ops = append(w.ops, op)
	w.mu.Unlock()
}

func (w *gatedWindow) Ops() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.ops...)
}

func (w *gatedWindow) Show() { w.record("show") }

func (w *gatedWindow) Hide() {
	w.hiding <- struct{}{}
	<-w.release
	w.record("hide")
}

func TestResetDuringExpiryLeavesWindowShown(t *testing.T) {
	clk := clock.NewMock()
	win := newGatedWindow()
	tm := New(clk, quiet, win, WithShowOnReset())

	tm.Reset()
	clk.Add(quiet)
	select {
	case <-win.hiding:
	case <-time.After(time.Second):
		t.Fatal("idle hide did not start")
	}

	done := make(chan struct{})
	go func() {
		tm.Reset()
		close(done)
	}()
	settle()
	close(win.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reset did not finish")
	}
	assert.Equal(t, []string{"show", "hide", "show"}, win.Ops())
	assert.Equal(t, Visible, tm.State())
	assert.True(t, tm.Pending())
}

func TestCloseWaitsForWindowCall(t *testing.T) {
	clk := clock.NewMock()
	win := newGatedWindow()
	tm := New(clk, quiet, win)

	tm.Reset()
	clk.Add(quiet)
	<-win.hiding

	closed := make(chan struct{})
	go func() {
		tm.Close()
		close(closed)
	}()
	settle()
	select {
	case <-closed:
		t.Fatal("Close returned while the window was still hiding")
	default:
	}

	close(win.release)
	require.Eventually(t, func() bool {
		select {
		case <-closed:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hide"}, win.Ops())
}
