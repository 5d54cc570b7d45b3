// Package gateway funnels window intents to the audio backend.
//
// Mutating commands are fire-and-observe: Dispatch returns immediately, the
// backend call runs on its own goroutine, and a rejection is logged with
// enough context to diagnose it. Nothing is retried and overlapping calls
// for the same session are not serialized; whichever completes last wins at
// the backend, and its echo corrects any window that guessed differently.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"

	"github.com/petervdpas/volmix/internal/backend"
	"github.com/petervdpas/volmix/internal/metrics"
	"github.com/petervdpas/volmix/internal/session"
)

var log = logging.Logger("volmix/gateway")

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 5 * time.Second

// Backend is the command surface of the audio backend.
type Backend interface {
	GetAllSessions(ctx context.Context) ([]session.Session, error)
	GetSession(ctx context.Context, name string) (session.Session, error)
	SetSessionVolume(ctx context.Context, name string, volume int) error
	ToggleSessionMute(ctx context.Context, name string) error
	GetConfig(ctx context.Context) (backend.Config, error)
	SetConfig(ctx context.Context, cfg backend.Config) error
}

// Op names a gateway operation; the same names label logs and metrics.
type Op string

const (
	OpFetchAll   Op = "fetch-all-sessions"
	OpFetchOne   Op = "fetch-one-session"
	OpSetVolume  Op = "set-volume"
	OpToggleMute Op = "toggle-mute"
	OpGetConfig  Op = "get-config"
	OpSetConfig  Op = "set-config"
)

// Intent is one outbound change, compared against current state by the
// caller before it gets here.
type Intent struct {
	Op      Op
	Session string
	Volume  int
}

var ErrUnknownOp = errors.New("unknown intent op")

type Option func(*Gateway)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(g *Gateway) { g.log = l }
}

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithOnResult registers a hook called after every dispatched intent
// completes, with the backend error (nil on success).
func WithOnResult(fn func(Intent, error)) Option {
	return func(g *Gateway) { g.onResult = fn }
}

type Gateway struct {
	be       Backend
	log      *zap.SugaredLogger
	timeout  time.Duration
	metrics  *metrics.Metrics
	onResult func(Intent, error)

	inflight sync.WaitGroup
}

func New(be Backend, opts ...Option) *Gateway {
	g := &Gateway{
		be:      be,
		log:     &log.SugaredLogger,
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Dispatch issues exactly one backend call for in and returns without
// waiting for it.
func (g *Gateway) Dispatch(in Intent) {
	g.metrics.Dispatched(string(in.Op))
	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()

		err := g.invoke(ctx, in)
		if err != nil {
			g.metrics.Failed(string(in.Op))
			g.log.Errorw("backend command failed",
				"op", string(in.Op),
				"session", in.Session,
				"value", intentValue(in),
				"error", err,
			)
		} else {
			g.log.Debugw("backend command done", "op", string(in.Op), "session", in.Session, "value", intentValue(in))
		}
		if g.onResult != nil {
			g.onResult(in, err)
		}
	}()
}

func (g *Gateway) invoke(ctx context.Context, in Intent) error {
	switch in.Op {
	case OpSetVolume:
		return g.be.SetSessionVolume(ctx, in.Session, in.Volume)
	case OpToggleMute:
		return g.be.ToggleSessionMute(ctx, in.Session)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, in.Op)
	}
}

func intentValue(in Intent) any {
	if in.Op == OpSetVolume {
		return in.Volume
	}
	return "toggle"
}

// SetVolume dispatches a set-volume intent.
func (g *Gateway) SetVolume(name string, volume int) {
	g.Dispatch(Intent{Op: OpSetVolume, Session: name, Volume: volume})
}

// ToggleMute dispatches a toggle-mute intent.
func (g *Gateway) ToggleMute(name string) {
	g.Dispatch(Intent{Op: OpToggleMute, Session: name})
}

// Wait blocks until every dispatched intent has completed.
func (g *Gateway) Wait() { g.inflight.Wait() }

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, g.timeout)
}

// FetchAll reads every session. The result is unsorted.
func (g *Gateway) FetchAll(ctx context.Context) ([]session.Session, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	g.metrics.Dispatched(string(OpFetchAll))
	ss, err := g.be.GetAllSessions(ctx)
	if err != nil {
		g.metrics.Failed(string(OpFetchAll))
		g.log.Errorw("backend command failed", "op", string(OpFetchAll), "error", err)
		return nil, err
	}
	return ss, nil
}

// FetchOne reads a single session by name.
func (g *Gateway) FetchOne(ctx context.Context, name string) (session.Session, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	g.metrics.Dispatched(string(OpFetchOne))
	s, err := g.be.GetSession(ctx, name)
	if err != nil {
		g.metrics.Failed(string(OpFetchOne))
		g.log.Errorw("backend command failed", "op", string(OpFetchOne), "session", name, "error", err)
		return session.Session{}, err
	}
	return s, nil
}

// Config reads the backend configuration untouched.
func (g *Gateway) Config(ctx context.Context) (backend.Config, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	g.metrics.Dispatched(string(OpGetConfig))
	cfg, err := g.be.GetConfig(ctx)
	if err != nil {
		g.metrics.Failed(string(OpGetConfig))
		g.log.Errorw("backend command failed", "op", string(OpGetConfig), "error", err)
	}
	return cfg, err
}

// SaveConfig writes the backend configuration untouched.
func (g *Gateway) SaveConfig(ctx context.Context, cfg backend.Config) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	g.metrics.Dispatched(string(OpSetConfig))
	if err := g.be.SetConfig(ctx, cfg); err != nil {
		g.metrics.Failed(string(OpSetConfig))
		g.log.Errorw("backend command failed", "op", string(OpSetConfig), "error", err)
		return err
	}
	return nil
}

// Theme returns the configured theme name, "dark" when unset.
func (g *Gateway) Theme(ctx context.Context) (string, error) {
	cfg, err := g.Config(ctx)
	if err != nil {
		return "", err
	}
	return NormalizeTheme(cfg.System.Theme), nil
}

// SetTheme stores a theme name in the backend configuration.
func (g *Gateway) SetTheme(ctx context.Context, theme string) error {
	cfg, err := g.Config(ctx)
	if err != nil {
		return err
	}
	cfg.System.Theme = NormalizeTheme(theme)
	return g.SaveConfig(ctx, cfg)
}

// NormalizeTheme maps an empty theme to "dark". Other names are passed
// through; the frontend owns the theme catalogue.
func NormalizeTheme(t string) string {
	if t == "" {
		return "dark"
	}
	return t
}
