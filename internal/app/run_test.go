package app

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petervdpas/volmix/internal/backend/fake"
	"github.com/petervdpas/volmix/internal/config"
	"github.com/petervdpas/volmix/internal/events"
	"github.com/petervdpas/volmix/internal/mixer"
	"github.com/petervdpas/volmix/internal/session"
)

type countingWindow struct{ shows, hides atomic.Int32 }

func (w *countingWindow) Show() { w.shows.Add(1) }
func (w *countingWindow) Hide() { w.hides.Add(1) }

func sessionNames(ss []session.Session) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.Name
	}
	return out
}

func TestPanelOverWebsocket(t *testing.T) {
	fb := fake.Demo()
	fb.SetShape(fake.Packed)
	srv := httptest.NewServer(fb)
	defer srv.Close()

	cfg := config.Default()
	cfg.Backend.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.Backend.ReconnectMs = 0

	rt, err := Start(context.Background(), Options{Cfg: cfg, Mode: mixer.ModePanel})
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, []string{"master", "chrome", "Discord", "spotify"}, sessionNames(rt.Controller.Sessions()))

	require.NoError(t, fb.Change("discord", 12, true))
	require.Eventually(t, func() bool {
		s, _ := rt.Controller.Session("Discord")
		return s.Volume == 12 && s.Muted
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, rt.Controller.RequestVolumeChange("chrome", 20))
	rt.Gateway.Wait()
	s, _ := fb.Session("chrome")
	assert.Equal(t, 20, s.Volume)
}

func TestOverlayInProcess(t *testing.T) {
	fb := fake.Demo()
	evs, cancel := fb.Subscribe()
	defer cancel()

	cfg := config.Default()
	cfg.Overlay.HideAfterMs = 100
	win := &countingWindow{}

	rt, err := Start(context.Background(), Options{
		Cfg:     cfg,
		Mode:    mixer.ModeOverlay,
		Window:  win,
		Backend: fb,
		Events:  evs,
	})
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, []string{"master"}, sessionNames(rt.Controller.Sessions()))
	assert.Equal(t, int32(1), win.shows.Load(), "tracking the first session shows the overlay")

	require.Eventually(t, func() bool { return win.hides.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, fb.Change("spotify", 70, false))
	require.Eventually(t, func() bool {
		ss := rt.Controller.Sessions()
		return len(ss) == 1 && ss[0].Name == "spotify" && ss[0].Volume == 70
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), win.shows.Load())
}

func TestVisibilityEventShowsPanel(t *testing.T) {
	fb := fake.Demo()
	evs, cancel := fb.Subscribe()
	defer cancel()
	win := &countingWindow{}

	rt, err := Start(context.Background(), Options{
		Cfg:     config.Default(),
		Mode:    mixer.ModePanel,
		Window:  win,
		Backend: fb,
		Events:  evs,
	})
	require.NoError(t, err)
	defer rt.Close()

	fb.Emit(events.Event{Name: events.VisibilityChange, Payload: json.RawMessage(`true`)})
	require.Eventually(t, func() bool { return win.shows.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, rt.Controller.Visible())

	fb.Emit(events.Event{Name: events.VisibilityChange, Payload: json.RawMessage(`false`)})
	require.Eventually(t, func() bool { return win.hides.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestApplyConfig(t *testing.T) {
	fb := fake.Demo()
	rt, err := Start(context.Background(), Options{Cfg: config.Default(), Mode: mixer.ModePanel, Backend: fb})
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, 3*time.Second, rt.Controller.Quiet())

	cfg := config.Default()
	cfg.Mixer.HideAfterMs = 4500
	rt.applyConfig(cfg)

	assert.Equal(t, 4500*time.Millisecond, rt.Controller.Quiet())
}

func TestStartFailsWithoutBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.URL = "ws://127.0.0.1:1/ws"
	_, err := Start(context.Background(), Options{Cfg: cfg, Mode: mixer.ModePanel})
	assert.Error(t, err)
}
