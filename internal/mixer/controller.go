// Package mixer holds the per-window volume/mute state controller.
//
// A Controller is the only writer of the sessions its window displays. It
// takes normalized updates from the backend's notification stream, applies
// user intents optimistically and hands them to the gateway, and keeps the
// window's idle timer running while state changes.
package mixer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"

	"github.com/petervdpas/volmix/internal/events"
	"github.com/petervdpas/volmix/internal/gateway"
	"github.com/petervdpas/volmix/internal/idle"
	"github.com/petervdpas/volmix/internal/metrics"
	"github.com/petervdpas/volmix/internal/session"
)

var log = logging.Logger("volmix/mixer")

var (
	ErrVolumeRange    = errors.New("volume out of range")
	ErrUnknownSession = errors.New("unknown session")
)

// Mode selects how a controller treats sessions it does not yet hold.
type Mode int

const (
	// ModeOverlay shows one session at a time and switches to whichever
	// session the latest notification names. A notification for a new
	// session that does not carry its volume triggers a fetch of the full
	// record first.
	ModeOverlay Mode = iota
	// ModePanel shows the full collection and ignores notifications for
	// names it does not hold until the next Refresh.
	ModePanel
)

func (m Mode) String() string {
	if m == ModePanel {
		return "panel"
	}
	return "overlay"
}

// Renderer draws the current sessions. It is called without the
// controller's lock held.
type Renderer interface {
	Render([]session.Session)
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func([]session.Session)

func (f RenderFunc) Render(ss []session.Session) { f(ss) }

// Commands is the part of the gateway a controller drives.
type Commands interface {
	Dispatch(gateway.Intent)
	FetchAll(ctx context.Context) ([]session.Session, error)
	FetchOne(ctx context.Context, name string) (session.Session, error)
}

type Option func(*Controller)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clk = clk }
}

// WithQuiet sets the idle interval before the window hides.
func WithQuiet(d time.Duration) Option {
	return func(c *Controller) { c.quiet = d }
}

// WithShowOnReset makes state changes re-show a hidden window.
func WithShowOnReset() Option {
	return func(c *Controller) { c.showOnReset = true }
}

type Controller struct {
	mode     Mode
	cmds     Commands
	renderer Renderer
	win      idle.Window
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics

	clk         clock.Clock
	quiet       time.Duration
	showOnReset bool
	timer       *idle.Timer

	mu       sync.Mutex
	sessions *session.Collection
	closed   bool
}

// New creates a controller for one window. win may be nil for windows
// without visibility control.
func New(mode Mode, cmds Commands, r Renderer, win idle.Window, opts ...Option) *Controller {
	c := &Controller{
		mode:     mode,
		cmds:     cmds,
		renderer: r,
		win:      win,
		log:      &log.SugaredLogger,
		sessions: &session.Collection{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.clk == nil {
		c.clk = clock.New()
	}
	if c.quiet <= 0 {
		c.quiet = DefaultQuiet(mode)
	}

	topts := []idle.Option{idle.WithOnHide(func() {
		c.metrics.Hidden(c.mode.String())
		c.log.Debugw("window hidden after idle", "window", c.mode.String())
	})}
	if c.showOnReset {
		topts = append(topts, idle.WithShowOnReset())
	}
	c.timer = idle.New(c.clk, c.quiet, win, topts...)
	return c
}

// DefaultQuiet returns the idle interval used when none is configured.
func DefaultQuiet(m Mode) time.Duration {
	if m == ModePanel {
		return 3 * time.Second
	}
	return idle.DefaultQuiet
}

func (c *Controller) Mode() Mode { return c.mode }

// Sessions returns the displayed sessions in display order.
func (c *Controller) Sessions() []session.Session {
	return c.sessions.Snapshot()
}

// Session returns one displayed session.
func (c *Controller) Session(name string) (session.Session, bool) {
	return c.sessions.Get(name)
}

// Visible reports whether the idle timer considers the window shown.
func (c *Controller) Visible() bool {
	return c.timer.State() == idle.Visible
}

func (c *Controller) Quiet() time.Duration { return c.timer.Quiet() }

// SetQuiet changes the idle interval, e.g. after a config reload.
func (c *Controller) SetQuiet(d time.Duration) {
	c.timer.SetQuiet(d)
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) render() {
	if c.renderer != nil {
		c.renderer.Render(c.sessions.Snapshot())
	}
}

// ApplyInbound writes the fields carried by f into the matching session,
// re-renders and resets the idle timer. It reports whether anything was
// applied.
func (c *Controller) ApplyInbound(f session.Fragment) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	_, ok := c.sessions.Apply(f)
	if !ok {
		if c.mode == ModePanel {
			c.mu.Unlock()
			c.metrics.Ignored(c.mode.String())
			c.log.Debugw("ignoring update for untracked session", "window", c.mode.String(), "session", f.Name)
			return false
		}
		// Replace can only fail on an empty name, which Decode rejects.
		if err := c.sessions.Replace([]session.Session{f.Session()}); err != nil {
			c.mu.Unlock()
			c.metrics.Rejected(c.mode.String())
			c.log.Errorw("cannot display session", "window", c.mode.String(), "session", f.Name, "error", err)
			return false
		}
	}
	c.mu.Unlock()

	c.metrics.Applied(c.mode.String())
	c.render()
	c.timer.Reset()
	return true
}

// adoptPartial loads the full record of a session the overlay is about to
// switch to when f alone would leave its volume unknown. On failure the
// fragment is shown as it is.
func (c *Controller) adoptPartial(ctx context.Context, f session.Fragment) {
	if c.mode != ModeOverlay || f.Has(session.FieldVolume) || c.sessions.Has(f.Name) {
		return
	}
	s, err := c.cmds.FetchOne(ctx, f.Name)
	if err != nil {
		c.log.Warnw("showing partial session update", "window", c.mode.String(), "session", f.Name, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := c.sessions.Replace([]session.Session{s}); err != nil {
		c.log.Warnw("showing partial session update", "window", c.mode.String(), "session", f.Name, "error", err)
	}
}

// HandleEvent processes one backend notification to completion.
func (c *Controller) HandleEvent(ctx context.Context, e events.Event) {
	switch e.Name {
	case events.VolumeChange, events.MuteChange:
		f, err := session.Decode(e.Payload)
		if err != nil {
			c.metrics.Rejected(c.mode.String())
			c.log.Errorw("discarding malformed session payload",
				"window", c.mode.String(),
				"event", e.Name,
				"payload", string(e.Payload),
				"error", err,
			)
			return
		}
		c.adoptPartial(ctx, f)
		c.ApplyInbound(f)

	case events.VisibilityChange:
		visible, err := e.Visible()
		if err != nil {
			c.log.Errorw("discarding malformed visibility payload",
				"window", c.mode.String(),
				"payload", string(e.Payload),
				"error", err,
			)
			return
		}
		c.SetVisible(ctx, visible)

	case events.ConfigChanged:
		c.log.Debugw("backend config changed", "window", c.mode.String())

	default:
		c.log.Debugw("ignoring backend event", "window", c.mode.String(), "event", e.Name)
	}
}

// Run consumes src until it closes or ctx is done. Events are handled one
// at a time in arrival order.
func (c *Controller) Run(ctx context.Context, src <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-src:
			if !ok {
				return nil
			}
			c.HandleEvent(ctx, e)
		}
	}
}

// RequestVolumeChange sets a session's volume locally and asks the backend
// to follow. Setting the current value does nothing. A backend rejection is
// logged by the gateway; the local value stays.
func (c *Controller) RequestVolumeChange(name string, volume int) error {
	if volume < session.MinVolume || volume > session.MaxVolume {
		return fmt.Errorf("%w: %d", ErrVolumeRange, volume)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	s, ok := c.sessions.Get(name)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, name)
	}
	if s.Volume == volume {
		c.mu.Unlock()
		return nil
	}
	s.Volume = volume
	c.sessions.Set(s)
	c.mu.Unlock()

	c.render()
	c.timer.Reset()
	c.cmds.Dispatch(gateway.Intent{Op: gateway.OpSetVolume, Session: s.Name, Volume: volume})
	return nil
}

// RequestMuteToggle flips a session's mute flag locally and asks the
// backend to follow.
func (c *Controller) RequestMuteToggle(name string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	s, ok := c.sessions.Get(name)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, name)
	}
	s.Muted = !s.Muted
	c.sessions.Set(s)
	c.mu.Unlock()

	c.render()
	c.timer.Reset()
	c.cmds.Dispatch(gateway.Intent{Op: gateway.OpToggleMute, Session: s.Name})
	return nil
}

// Refresh replaces the displayed sessions with a full fetch. The idle
// timer is left alone. On error the previous sessions stay.
func (c *Controller) Refresh(ctx context.Context) error {
	ss, err := c.cmds.FetchAll(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if err := c.sessions.Replace(ss); err != nil {
		c.mu.Unlock()
		c.log.Errorw("rejecting fetched sessions", "window", c.mode.String(), "error", err)
		return err
	}
	c.mu.Unlock()

	c.render()
	return nil
}

// Track fetches one session and makes it the displayed one. Used by the
// overlay on mount.
func (c *Controller) Track(ctx context.Context, name string) error {
	s, err := c.cmds.FetchOne(ctx, name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.mode == ModeOverlay {
		err = c.sessions.Replace([]session.Session{s})
	} else {
		c.sessions.Set(s)
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.render()
	c.timer.Reset()
	return nil
}

// Interact records pointer activity over the window.
func (c *Controller) Interact() {
	if c.isClosed() {
		return
	}
	c.timer.Reset()
}

// SetVisible handles an external show/hide trigger. Showing a panel
// refreshes it first; a failed refresh still shows the stale list.
func (c *Controller) SetVisible(ctx context.Context, visible bool) {
	if c.isClosed() {
		return
	}
	if !visible {
		c.timer.Hide()
		return
	}
	if c.mode == ModePanel {
		if err := c.Refresh(ctx); err != nil {
			c.log.Warnw("showing panel with stale sessions", "error", err)
		}
	}
	wasHidden := c.timer.State() == idle.Hidden
	c.timer.Reset()
	if wasHidden && !c.showOnReset && c.win != nil {
		c.win.Show()
	}
}

// Close stops the idle timer. Nothing reaches the window or renderer
// afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.timer.Close()
}
