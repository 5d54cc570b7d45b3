// app.go
package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/petervdpas/volmix/internal/app"
	"github.com/petervdpas/volmix/internal/backend"
	"github.com/petervdpas/volmix/internal/config"
	"github.com/petervdpas/volmix/internal/logs"
	"github.com/petervdpas/volmix/internal/mixer"
	"github.com/petervdpas/volmix/internal/session"
	"github.com/petervdpas/volmix/internal/window"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

const sessionsEvent = "sessions:changed"

var errNotConnected = errors.New("not connected to the audio backend")

type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	mode    mixer.Mode
	cfgPath string
	cfg     config.Config
	logs    *logs.Buffer

	mu sync.RWMutex
	rt *app.Runtime
}

func NewApp(mode mixer.Mode, cfgPath string, cfg config.Config, buf *logs.Buffer) *App {
	return &App{mode: mode, cfgPath: cfgPath, cfg: cfg, logs: buf}
}

func (a *App) startup(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)
	go a.connect()
}

// connect keeps trying to start the client until it succeeds or the app
// shuts down. The backend usually starts alongside us.
func (a *App) connect() {
	delay := a.cfg.Backend.Reconnect()
	if delay <= 0 {
		delay = 2 * time.Second
	}
	for {
		rt, err := app.Start(a.ctx, app.Options{
			CfgPath:  a.cfgPath,
			Cfg:      a.cfg,
			Mode:     a.mode,
			Window:   wailsWindow{a},
			Renderer: mixer.RenderFunc(a.render),
			Logs:     a.logs,
			Progress: func(step, total int, label string) {
				runtime.EventsEmit(a.ctx, "startup:progress", map[string]any{
					"step": step, "total": total, "label": label,
				})
			},
		})
		if err == nil {
			a.mu.Lock()
			a.rt = rt
			a.mu.Unlock()
			a.render(rt.Controller.Sessions())
			return
		}
		log.Warnf("STARTUP: %v, retrying in %s", err, delay)
		runtime.EventsEmit(a.ctx, "startup:error", err.Error())

		select {
		case <-a.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (a *App) shutdown(ctx context.Context) {
	if a.cancel == nil {
		return
	}
	log.Infof("SHUTDOWN: closing %s window", a.mode)
	a.mu.Lock()
	rt := a.rt
	a.rt = nil
	a.mu.Unlock()
	if rt != nil {
		if err := rt.Close(); err != nil {
			log.Warnf("SHUTDOWN: %v", err)
		}
	}
	a.cancel()
}

func (a *App) current() (*app.Runtime, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.rt == nil {
		return nil, errNotConnected
	}
	return a.rt, nil
}

// render pushes the sessions to the frontend. The panel also resizes to
// fit them.
func (a *App) render(ss []session.Session) {
	if a.ctx == nil {
		return
	}
	if a.mode == mixer.ModePanel {
		a.place(len(ss))
	}
	runtime.EventsEmit(a.ctx, sessionsEvent, ss)
}

func (a *App) place(rows int) {
	screens, err := runtime.ScreenGetAll(a.ctx)
	if err != nil {
		log.Warnf("WINDOW: screens: %v", err)
		return
	}
	ws := make([]window.Screen, len(screens))
	for i, s := range screens {
		scale := 1.0
		if s.Size.Width > 0 && s.PhysicalSize.Width > 0 {
			scale = float64(s.PhysicalSize.Width) / float64(s.Size.Width)
		}
		ws[i] = window.Screen{
			Width:   s.Width,
			Height:  s.Height,
			Scale:   scale,
			Current: s.IsCurrent,
			Primary: s.IsPrimary,
		}
	}
	r, err := window.PanelPlacement(ws, rows)
	if err != nil {
		log.Warnf("WINDOW: leaving panel where it is: %v", err)
		return
	}
	runtime.WindowSetSize(a.ctx, r.Width, r.Height)
	runtime.WindowSetPosition(a.ctx, r.X, r.Y)
}

// wailsWindow lets the idle timer show and hide the native window.
type wailsWindow struct{ a *App }

func (w wailsWindow) Show() {
	runtime.WindowShow(w.a.ctx)
	runtime.WindowSetAlwaysOnTop(w.a.ctx, true)
}

func (w wailsWindow) Hide() { runtime.WindowHide(w.a.ctx) }

// -------------------------
// Mixer API for Wails frontend
// -------------------------

func (a *App) GetMode() string { return a.mode.String() }

func (a *App) GetSessions() ([]session.Session, error) {
	rt, err := a.current()
	if err != nil {
		return nil, err
	}
	return rt.Controller.Sessions(), nil
}

func (a *App) SetVolume(name string, volume int) error {
	rt, err := a.current()
	if err != nil {
		return err
	}
	return rt.Controller.RequestVolumeChange(name, volume)
}

func (a *App) ToggleMute(name string) error {
	rt, err := a.current()
	if err != nil {
		return err
	}
	return rt.Controller.RequestMuteToggle(name)
}

// Interact is called on pointer activity so the window stays up.
func (a *App) Interact() {
	if rt, err := a.current(); err == nil {
		rt.Controller.Interact()
	}
}

// Refresh reloads the full session list.
func (a *App) Refresh() error {
	rt, err := a.current()
	if err != nil {
		return err
	}
	return rt.Controller.Refresh(a.ctx)
}

// -------------------------
// Backend config and theme
// -------------------------

func (a *App) GetConfig() (backend.Config, error) {
	rt, err := a.current()
	if err != nil {
		return backend.Config{}, err
	}
	return rt.Gateway.Config(a.ctx)
}

func (a *App) SetConfig(cfg backend.Config) error {
	rt, err := a.current()
	if err != nil {
		return err
	}
	return rt.Gateway.SaveConfig(a.ctx, cfg)
}

func (a *App) GetTheme() (string, error) {
	rt, err := a.current()
	if err != nil {
		// The window still needs a palette before the backend is up.
		return "dark", nil
	}
	return rt.Gateway.Theme(a.ctx)
}

func (a *App) SetTheme(theme string) error {
	rt, err := a.current()
	if err != nil {
		return err
	}
	return rt.Gateway.SetTheme(a.ctx, theme)
}

// -------------------------
// Logging
// -------------------------

// Log forwards a frontend message into the process log.
func (a *App) Log(message, level string) {
	logs.Frontend(message, level)
}

func (a *App) GetLogs() []string {
	if a.logs == nil {
		return nil
	}
	return a.logs.Lines()
}
