package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petervdpas/volmix/internal/gateway"
	"github.com/petervdpas/volmix/internal/mixer"
	"github.com/petervdpas/volmix/internal/session"
)

type fakePanel struct {
	sessions     []session.Session
	volumeCalls  []int
	muteCalls    []string
	interactions int
	refreshErr   error
}

func (p *fakePanel) Sessions() []session.Session {
	return append([]session.Session(nil), p.sessions...)
}

func (p *fakePanel) RequestVolumeChange(name string, v int) error {
	for i := range p.sessions {
		if p.sessions[i].Name == name {
			if p.sessions[i].Volume == v {
				return nil
			}
			p.volumeCalls = append(p.volumeCalls, v)
			p.sessions[i].Volume = v
			return nil
		}
	}
	return mixer.ErrUnknownSession
}

func (p *fakePanel) RequestMuteToggle(name string) error {
	for i := range p.sessions {
		if p.sessions[i].Name == name {
			p.muteCalls = append(p.muteCalls, name)
			p.sessions[i].Muted = !p.sessions[i].Muted
			return nil
		}
	}
	return mixer.ErrUnknownSession
}

func (p *fakePanel) Refresh(ctx context.Context) error { return p.refreshErr }
func (p *fakePanel) Interact()                         { p.interactions++ }

func press(m Model, k tea.KeyMsg) Model {
	next, _ := m.Update(k)
	return next.(Model)
}

var (
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyRight = tea.KeyMsg{Type: tea.KeyRight}
	keyLeft  = tea.KeyMsg{Type: tea.KeyLeft}
	keyMute  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}}
	keyQuit  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
)

func TestNudgeVolume(t *testing.T) {
	p := &fakePanel{sessions: []session.Session{{Name: "master", Volume: 40}, {Name: "chrome", Volume: 98}}}
	m := NewModel(p, NewUpdates())

	m = press(m, keyRight)
	assert.Equal(t, 45, m.sessions[0].Volume)

	m = press(m, keyDown)
	m = press(m, keyRight)
	m = press(m, keyRight)
	assert.Equal(t, 100, m.sessions[1].Volume)
	assert.Equal(t, []int{45, 100}, p.volumeCalls, "a nudge past the top is clamped and the repeat is a no-op")

	m = press(m, keyLeft)
	assert.Equal(t, 95, m.sessions[1].Volume)
	assert.Equal(t, 1, p.interactions)
}

func TestMuteKey(t *testing.T) {
	p := &fakePanel{sessions: []session.Session{{Name: "master", Volume: 40}}}
	m := NewModel(p, NewUpdates())

	m = press(m, keyMute)
	assert.True(t, m.sessions[0].Muted)
	assert.Equal(t, []string{"master"}, p.muteCalls)
	assert.Contains(t, m.View(), "muted")
}

func TestQuit(t *testing.T) {
	m := NewModel(&fakePanel{}, NewUpdates())
	_, cmd := m.Update(keyQuit)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRefreshFailureShown(t *testing.T) {
	p := &fakePanel{refreshErr: errors.New("offline")}
	m := NewModel(p, NewUpdates())

	next, _ := m.Update(refreshedMsg{err: p.refreshErr})
	assert.Contains(t, next.(Model).View(), "refresh failed: offline")
}

func TestCursorFollowsSessionAcrossReorder(t *testing.T) {
	p := &fakePanel{sessions: []session.Session{{Name: "master"}, {Name: "chrome"}, {Name: "zoom"}}}
	m := NewModel(p, NewUpdates())
	m = press(m, keyDown)
	m = press(m, keyDown)

	next, _ := m.Update(sessionsMsg{{Name: "master"}, {Name: "alpha"}, {Name: "chrome"}, {Name: "zoom"}})
	m = next.(Model)
	s, ok := m.selected()
	require.True(t, ok)
	assert.Equal(t, "zoom", s.Name)
}

func TestViewEmpty(t *testing.T) {
	m := NewModel(&fakePanel{}, NewUpdates())
	assert.Contains(t, m.View(), "no audio sessions")
}

func TestBar(t *testing.T) {
	assert.Equal(t, barWidth, strings.Count(Bar(50, false), "█")+strings.Count(Bar(50, false), "░"))
	assert.Equal(t, 10, strings.Count(Bar(50, false), "█"))
	assert.Equal(t, 0, strings.Count(Bar(0, true), "█"))
}

type stubCommands struct{ sessions []session.Session }

func (s *stubCommands) Dispatch(gateway.Intent) {}

func (s *stubCommands) FetchAll(ctx context.Context) ([]session.Session, error) {
	return s.sessions, nil
}

func (s *stubCommands) FetchOne(ctx context.Context, name string) (session.Session, error) {
	return session.Session{}, errors.New("not used")
}

func TestControllerRendersReachModel(t *testing.T) {
	u := NewUpdates()
	c := mixer.New(mixer.ModePanel, &stubCommands{sessions: []session.Session{{Name: "spotify"}, {Name: "master"}}}, u, nil)
	defer c.Close()

	m := NewModel(c, u)
	require.NoError(t, c.Refresh(context.Background()))

	msgCh := make(chan tea.Msg, 1)
	go func() { msgCh <- u.wait()() }()
	select {
	case msg := <-msgCh:
		next, cmd := m.Update(msg)
		assert.NotNil(t, cmd, "the model keeps listening")
		assert.Equal(t, []string{"master", "spotify"}, []string{
			next.(Model).sessions[0].Name,
			next.(Model).sessions[1].Name,
		})
	case <-time.After(time.Second):
		t.Fatal("render not delivered")
	}
}
