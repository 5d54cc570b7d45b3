// Package tui is a terminal rendition of the mixer panel. It drives its own
// panel controller and redraws whenever the controller renders.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/petervdpas/volmix/internal/session"
)

const (
	DefaultStep  = 5
	barWidth     = 20
	nameWidth    = 16
	fetchTimeout = 5 * time.Second
)

// Panel is the controller surface the terminal drives.
type Panel interface {
	Sessions() []session.Session
	RequestVolumeChange(name string, volume int) error
	RequestMuteToggle(name string) error
	Refresh(ctx context.Context) error
	Interact()
}

// Updates carries controller renders into the bubbletea loop. Only the
// latest render is kept.
type Updates struct {
	mu     sync.Mutex
	latest []session.Session
	notify chan struct{}
}

func NewUpdates() *Updates {
	return &Updates{notify: make(chan struct{}, 1)}
}

// Render implements mixer.Renderer.
func (u *Updates) Render(ss []session.Session) {
	u.mu.Lock()
	u.latest = ss
	u.mu.Unlock()
	select {
	case u.notify <- struct{}{}:
	default:
	}
}

func (u *Updates) wait() tea.Cmd {
	return func() tea.Msg {
		<-u.notify
		u.mu.Lock()
		defer u.mu.Unlock()
		return sessionsMsg(u.latest)
	}
}

type sessionsMsg []session.Session

type refreshedMsg struct{ err error }

type Model struct {
	panel   Panel
	updates *Updates
	keys    KeyMap
	help    help.Model

	sessions []session.Session
	cursor   int
	step     int
	status   string
	width    int
}

func NewModel(p Panel, u *Updates) Model {
	return Model{
		panel:    p,
		updates:  u,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		sessions: p.Sessions(),
		step:     DefaultStep,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), m.updates.wait())
}

func (m Model) refreshCmd() tea.Cmd {
	p := m.panel
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		return refreshedMsg{err: p.Refresh(ctx)}
	}
}

func (m Model) selected() (session.Session, bool) {
	if m.cursor < 0 || m.cursor >= len(m.sessions) {
		return session.Session{}, false
	}
	return m.sessions[m.cursor], true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case sessionsMsg:
		m.setSessions(msg)
		return m, m.updates.wait()

	case refreshedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
		} else {
			m.status = ""
			m.setSessions(m.panel.Sessions())
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// setSessions keeps the cursor on the same session name across reorders.
func (m *Model) setSessions(ss []session.Session) {
	var current string
	if s, ok := m.selected(); ok {
		current = s.Name
	}
	m.sessions = ss
	m.cursor = 0
	for i, s := range ss {
		if session.Key(s.Name) == session.Key(current) {
			m.cursor = i
			break
		}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		m.panel.Interact()

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.sessions)-1 {
			m.cursor++
		}
		m.panel.Interact()

	case key.Matches(msg, m.keys.Louder):
		m.nudge(m.step)

	case key.Matches(msg, m.keys.Quieter):
		m.nudge(-m.step)

	case key.Matches(msg, m.keys.Mute):
		if s, ok := m.selected(); ok {
			m.report(m.panel.RequestMuteToggle(s.Name))
			m.setSessions(m.panel.Sessions())
		}
	}
	return m, nil
}

func (m *Model) nudge(delta int) {
	s, ok := m.selected()
	if !ok {
		return
	}
	v := s.Volume + delta
	if v < session.MinVolume {
		v = session.MinVolume
	}
	if v > session.MaxVolume {
		v = session.MaxVolume
	}
	m.report(m.panel.RequestVolumeChange(s.Name, v))
	m.setSessions(m.panel.Sessions())
}

func (m *Model) report(err error) {
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = ""
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Volume Mixer"))
	b.WriteString("\n")

	if len(m.sessions) == 0 {
		b.WriteString(MutedStyle.Render("no audio sessions"))
		b.WriteString("\n")
	}
	for i, s := range m.sessions {
		b.WriteString(m.row(s, i == m.cursor))
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return PanelStyle.Render(b.String())
}

func (m Model) row(s session.Session, selected bool) string {
	cursor := "  "
	name := NameStyle
	if selected {
		cursor = "> "
		name = SelectedStyle
	}
	return fmt.Sprintf("%s%s %s %3d%%%s",
		cursor,
		name.Render(padName(s.Name)),
		Bar(s.Volume, s.Muted),
		s.Volume,
		muteMark(s.Muted),
	)
}

// Bar draws a volume gauge barWidth cells wide.
func Bar(volume int, muted bool) string {
	filled := volume * barWidth / session.MaxVolume
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	if muted {
		return MutedStyle.Render(bar)
	}
	return BarStyle.Render(bar)
}

func muteMark(muted bool) string {
	if muted {
		return MutedStyle.Render(" muted")
	}
	return ""
}

func padName(name string) string {
	r := []rune(name)
	if len(r) > nameWidth {
		return string(r[:nameWidth-1]) + "…"
	}
	return name + strings.Repeat(" ", nameWidth-len(r))
}
