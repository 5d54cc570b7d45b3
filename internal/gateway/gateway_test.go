package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/petervdpas/volmix/internal/backend/fake"
	"github.com/petervdpas/volmix/internal/metrics"
	"github.com/petervdpas/volmix/internal/proto"
	"github.com/petervdpas/volmix/internal/session"
)

func newObserved() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

// slowBackend delays volume writes so the caller can observe that Dispatch
// does not wait for them.
type slowBackend struct {
	*fake.Backend
	release chan struct{}
}

func (s *slowBackend) SetSessionVolume(ctx context.Context, name string, v int) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Backend.SetSessionVolume(ctx, name, v)
}

func TestDispatchSetVolume(t *testing.T) {
	fb := fake.New(session.Session{Name: "chrome", Volume: 10})
	g := New(fb)

	g.SetVolume("chrome", 60)
	g.Wait()

	s, ok := fb.Session("chrome")
	require.True(t, ok)
	assert.Equal(t, 60, s.Volume)
	assert.Equal(t, []fake.Call{{Command: proto.CmdSetSessionVolume, Session: "chrome", Volume: 60}}, fb.Calls())
}

func TestDispatchToggleMute(t *testing.T) {
	fb := fake.New(session.Session{Name: "chrome", Volume: 10})
	g := New(fb)

	g.ToggleMute("chrome")
	g.Wait()

	s, _ := fb.Session("chrome")
	assert.True(t, s.Muted)
	assert.Equal(t, 10, s.Volume)
}

func TestDispatchDoesNotBlock(t *testing.T) {
	sb := &slowBackend{Backend: fake.New(session.Session{Name: "chrome"}), release: make(chan struct{})}
	g := New(sb)

	done := make(chan struct{})
	go func() {
		g.SetVolume("chrome", 30)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on the backend")
	}

	close(sb.release)
	g.Wait()
	s, _ := sb.Session("chrome")
	assert.Equal(t, 30, s.Volume)
}

func TestDispatchFailureLogsWithContext(t *testing.T) {
	fb := fake.New(session.Session{Name: "chrome"})
	fb.FailNext(proto.CmdSetSessionVolume, errors.New("device busy"))
	l, logs := newObserved()
	m := metrics.New()
	g := New(fb, WithLogger(l), WithMetrics(m))

	g.SetVolume("chrome", 42)
	g.Wait()

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	fields := errs[0].ContextMap()
	assert.Equal(t, string(OpSetVolume), fields["op"])
	assert.Equal(t, "chrome", fields["session"])
	assert.EqualValues(t, 42, fields["value"])
	assert.Contains(t, fields["error"], "device busy")

	// One attempt only.
	assert.Len(t, fb.Calls(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsDispatched.WithLabelValues(string(OpSetVolume))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsFailed.WithLabelValues(string(OpSetVolume))))
}

func TestDispatchTimeout(t *testing.T) {
	sb := &slowBackend{Backend: fake.New(session.Session{Name: "chrome"}), release: make(chan struct{})}
	l, logs := newObserved()
	g := New(sb, WithLogger(l), WithTimeout(20*time.Millisecond))

	var got error
	g.onResult = func(_ Intent, err error) { got = err }
	g.SetVolume("chrome", 5)
	g.Wait()

	assert.ErrorIs(t, got, context.DeadlineExceeded)
	assert.Equal(t, 1, logs.FilterMessage("backend command failed").Len())
}

func TestDispatchUnknownOp(t *testing.T) {
	var got error
	g := New(fake.New(), WithOnResult(func(_ Intent, err error) { got = err }))
	g.Dispatch(Intent{Op: "launch-rockets"})
	g.Wait()
	assert.ErrorIs(t, got, ErrUnknownOp)
}

func TestFetch(t *testing.T) {
	fb := fake.Demo()
	g := New(fb)

	ss, err := g.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, ss, 4)

	s, err := g.FetchOne(context.Background(), "SPOTIFY")
	require.NoError(t, err)
	assert.True(t, s.Muted)
}

func TestFetchAllErrorLogged(t *testing.T) {
	fb := fake.Demo()
	fb.FailNext(proto.CmdGetAllSessions, errors.New("offline"))
	l, logs := newObserved()
	g := New(fb, WithLogger(l))

	_, err := g.FetchAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterField(zap.String("op", string(OpFetchAll))).Len())
}

func TestTheme(t *testing.T) {
	fb := fake.Demo()
	g := New(fb)
	ctx := context.Background()

	theme, err := g.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)

	require.NoError(t, g.SetTheme(ctx, "light"))
	theme, err = g.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, "light", theme)

	require.NoError(t, g.SetTheme(ctx, ""))
	cfg, err := g.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", cfg.System.Theme)
}
