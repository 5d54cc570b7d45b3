// Package app wires the backend connection, the event bus, the gateway and
// one window controller into a running client.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/volmix/internal/backend"
	"github.com/petervdpas/volmix/internal/config"
	"github.com/petervdpas/volmix/internal/debug"
	"github.com/petervdpas/volmix/internal/events"
	"github.com/petervdpas/volmix/internal/gateway"
	"github.com/petervdpas/volmix/internal/idle"
	"github.com/petervdpas/volmix/internal/logs"
	"github.com/petervdpas/volmix/internal/metrics"
	"github.com/petervdpas/volmix/internal/mixer"
)

var log = logging.Logger("volmix/app")

const dialTimeout = 5 * time.Second

type Options struct {
	CfgPath  string
	Cfg      config.Config
	Mode     mixer.Mode
	Window   idle.Window
	Renderer mixer.Renderer
	Logs     *logs.Buffer

	// Backend replaces the websocket client, e.g. with an in-process fake.
	// Its events are read from Events.
	Backend gateway.Backend
	Events  <-chan events.Event

	Progress func(step, total int, label string)
}

// Runtime is a started client. Close releases everything Start acquired.
type Runtime struct {
	Cfg        config.Config
	Gateway    *gateway.Gateway
	Controller *mixer.Controller
	Metrics    *metrics.Metrics
	Bus        *events.Bus

	client *backend.Client
	cancel context.CancelFunc
	unsub  func()
	done   chan struct{}
}

func Start(ctx context.Context, opt Options) (*Runtime, error) {
	cfg := opt.Cfg
	emit := opt.Progress
	if emit == nil {
		emit = func(int, int, string) {}
	}
	const total = 3

	ctx, cancel := context.WithCancel(ctx)
	m := metrics.New()
	rt := &Runtime{
		Cfg:     cfg,
		Metrics: m,
		Bus:     events.NewBus(events.WithOnDrop(m.Dropped)),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	// ── Backend connection
	emit(1, total, "Connecting to audio backend")
	be, src := opt.Backend, opt.Events
	if be == nil {
		dctx, dcancel := context.WithTimeout(ctx, dialTimeout)
		client, err := backend.Dial(dctx, cfg.Backend.URL, backend.WithReconnect(cfg.Backend.Reconnect()))
		dcancel()
		if err != nil {
			cancel()
			return nil, err
		}
		rt.client = client
		be, src = client, client.Events()
	}
	if src != nil {
		go rt.Bus.Pump(src)
	}

	rt.Gateway = gateway.New(be,
		gateway.WithTimeout(cfg.Backend.CallTimeout()),
		gateway.WithMetrics(rt.Metrics),
	)

	// ── Window controller
	emit(2, total, "Loading sessions")
	rt.Controller = mixer.New(opt.Mode, rt.Gateway, opt.Renderer, opt.Window, controllerOptions(opt.Mode, cfg, rt.Metrics)...)
	sub, unsub := rt.Bus.Subscribe(256)
	rt.unsub = unsub

	switch opt.Mode {
	case mixer.ModeOverlay:
		if err := rt.Controller.Track(ctx, cfg.Overlay.Session); err != nil {
			log.Warnf("APP: overlay session %q not available yet: %v", cfg.Overlay.Session, err)
		}
	case mixer.ModePanel:
		if err := rt.Controller.Refresh(ctx); err != nil {
			log.Warnf("APP: initial session fetch failed: %v", err)
		}
	}

	go func() {
		defer close(rt.done)
		if err := rt.Controller.Run(ctx, sub); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("APP: event loop stopped: %v", err)
		}
	}()

	// ── Side services
	emit(3, total, "Starting services")
	go func() {
		err := debug.Serve(ctx, cfg.Debug.Addr, debug.Deps{
			Metrics:  rt.Metrics,
			Logs:     opt.Logs,
			Sessions: rt.Controller.Sessions,
		})
		if err != nil {
			log.Errorf("APP: debug server: %v", err)
		}
	}()
	if opt.CfgPath != "" {
		go func() {
			if err := config.Watch(ctx, opt.CfgPath, rt.applyConfig); err != nil {
				log.Warnf("APP: config watch disabled: %v", err)
			}
		}()
	}

	log.Infof("APP: %s window running against %s", opt.Mode, describeBackend(cfg, opt.Backend))
	return rt, nil
}

func controllerOptions(mode mixer.Mode, cfg config.Config, m *metrics.Metrics) []mixer.Option {
	opts := []mixer.Option{mixer.WithMetrics(m), mixer.WithQuiet(quietFor(mode, cfg))}
	// The overlay has no other way to appear than a state change.
	if mode == mixer.ModeOverlay || cfg.Mixer.ShowOnReset {
		opts = append(opts, mixer.WithShowOnReset())
	}
	return opts
}

func quietFor(mode mixer.Mode, cfg config.Config) time.Duration {
	if mode == mixer.ModePanel {
		return cfg.Mixer.HideAfter()
	}
	return cfg.Overlay.HideAfter()
}

// applyConfig takes the settings that can change without a restart.
func (rt *Runtime) applyConfig(cfg config.Config) {
	rt.Controller.SetQuiet(quietFor(rt.Controller.Mode(), cfg))
	if err := logs.SetLevel(cfg.Log.Level); err != nil {
		log.Warnf("APP: %v", err)
	}
	if cfg.Backend.URL != rt.Cfg.Backend.URL || cfg.Debug.Addr != rt.Cfg.Debug.Addr {
		log.Infof("APP: backend.url and debug.addr changes apply after restart")
	}
}

func describeBackend(cfg config.Config, override gateway.Backend) string {
	if override != nil {
		return fmt.Sprintf("in-process %T", override)
	}
	return cfg.Backend.URL
}

// Close stops the controller, waits for in-flight commands and
// disconnects.
func (rt *Runtime) Close() error {
	rt.Controller.Close()
	rt.unsub()
	rt.cancel()
	<-rt.done
	rt.Gateway.Wait()
	if rt.client != nil {
		return rt.client.Close()
	}
	rt.Bus.Close()
	return nil
}

// Run starts a client and blocks until ctx is done.
func Run(ctx context.Context, opt Options) error {
	rt, err := Start(ctx, opt)
	if err != nil {
		return err
	}
	<-ctx.Done()
	log.Infof("APP: shutting down")
	return rt.Close()
}
