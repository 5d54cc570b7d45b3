// Package fake is an in-memory audio backend. It serves the backend
// websocket protocol for development (volmix devbackend) and tests, and can
// also be used directly as a gateway.Backend.
package fake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/volmix/internal/backend"
	"github.com/petervdpas/volmix/internal/events"
	"github.com/petervdpas/volmix/internal/proto"
	"github.com/petervdpas/volmix/internal/session"
)

var log = logging.Logger("volmix/fake")

// Shape selects the wire shape of echoed change notifications.
type Shape int

const (
	Structured Shape = iota
	Packed
)

// Call records one command received by the backend.
type Call struct {
	Command string
	Session string
	Volume  int
}

type Backend struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	cfg      backend.Config
	shape    Shape
	fail     map[string]error
	calls    []Call

	subMu sync.Mutex
	subs  map[chan events.Event]struct{}
}

// New creates a backend holding ss.
func New(ss ...session.Session) *Backend {
	b := &Backend{
		sessions: make(map[string]session.Session),
		fail:     make(map[string]error),
		subs:     make(map[chan events.Event]struct{}),
		cfg: backend.Config{
			Mixer:  backend.MixerConfig{Enabled: true, Hotkey: "F13"},
			System: backend.SystemConfig{Theme: "dark"},
		},
	}
	for _, s := range ss {
		b.sessions[session.Key(s.Name)] = s
	}
	return b
}

// Demo returns a backend with a handful of typical sessions.
func Demo() *Backend {
	return New(
		session.Session{Name: "master", Volume: 40},
		session.Session{Name: "chrome", Volume: 75},
		session.Session{Name: "Discord", Volume: 60},
		session.Session{Name: "spotify", Volume: 30, Muted: true},
	)
}

// SetShape selects how change notifications are encoded.
func (b *Backend) SetShape(s Shape) {
	b.mu.Lock()
	b.shape = s
	b.mu.Unlock()
}

// FailNext makes every subsequent call of command fail with err. A nil err
// clears the failure.
func (b *Backend) FailNext(command string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.fail, command)
		return
	}
	b.fail[command] = err
}

// Calls returns the commands received so far.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// Session returns the backend's authoritative state for name.
func (b *Backend) Session(name string) (session.Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[session.Key(name)]
	return s, ok
}

// Subscribe returns notifications emitted by the backend.
func (b *Backend) Subscribe() (<-chan events.Event, func()) {
	ch := make(chan events.Event, 64)
	b.subMu.Lock()
	b.subs[ch] = struct{}{}
	b.subMu.Unlock()
	return ch, func() {
		b.subMu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.subMu.Unlock()
	}
}

// Emit broadcasts an arbitrary event, e.g. a visibility change or a
// hand-crafted malformed payload.
func (b *Backend) Emit(e events.Event) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Change mutates a session as if the OS changed it and notifies clients.
func (b *Backend) Change(name string, volume int, muted bool) error {
	b.mu.Lock()
	s, ok := b.sessions[session.Key(name)]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", backend.ErrSessionNotFound, name)
	}
	s.Volume, s.Muted = session.ClampVolume(volume), muted
	b.sessions[session.Key(name)] = s
	b.mu.Unlock()

	b.notify(s)
	return nil
}

func (b *Backend) notify(s session.Session) {
	b.mu.Lock()
	shape := b.shape
	b.mu.Unlock()

	var payload any = s
	if shape == Packed {
		payload = Encode(s)
	}
	e, err := events.New(events.VolumeChange, payload)
	if err != nil {
		log.Errorf("FAKE: encode event: %v", err)
		return
	}
	b.Emit(e)
}

// Encode renders s in the packed "name:signedVolume" shape. Muted at zero
// is written as "-0".
func Encode(s session.Session) string {
	v := strconv.Itoa(s.Volume)
	if s.Muted {
		v = "-" + v
	}
	return s.Name + ":" + v
}

func (b *Backend) record(c Call) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
	return b.fail[c.Command]
}

func (b *Backend) GetAllSessions(ctx context.Context) ([]session.Session, error) {
	if err := b.record(Call{Command: proto.CmdGetAllSessions}); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]session.Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (b *Backend) GetSession(ctx context.Context, name string) (session.Session, error) {
	if err := b.record(Call{Command: proto.CmdGetSession, Session: name}); err != nil {
		return session.Session{}, err
	}
	s, ok := b.Session(name)
	if !ok {
		return session.Session{}, fmt.Errorf("%w: %s", backend.ErrSessionNotFound, name)
	}
	return s, nil
}

func (b *Backend) SetSessionVolume(ctx context.Context, name string, volume int) error {
	if err := b.record(Call{Command: proto.CmdSetSessionVolume, Session: name, Volume: volume}); err != nil {
		return err
	}
	if volume < session.MinVolume || volume > session.MaxVolume {
		return errors.New("volume must be between 0 and 100")
	}
	s, ok := b.Session(name)
	if !ok {
		return fmt.Errorf("%w: %s", backend.ErrSessionNotFound, name)
	}
	return b.Change(s.Name, volume, s.Muted)
}

func (b *Backend) ToggleSessionMute(ctx context.Context, name string) error {
	if err := b.record(Call{Command: proto.CmdToggleSessionMute, Session: name}); err != nil {
		return err
	}
	s, ok := b.Session(name)
	if !ok {
		return fmt.Errorf("%w: %s", backend.ErrSessionNotFound, name)
	}
	return b.Change(s.Name, s.Volume, !s.Muted)
}

func (b *Backend) GetConfig(ctx context.Context) (backend.Config, error) {
	if err := b.record(Call{Command: proto.CmdGetConfig}); err != nil {
		return backend.Config{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg, nil
}

func (b *Backend) SetConfig(ctx context.Context, cfg backend.Config) error {
	if err := b.record(Call{Command: proto.CmdSetConfig}); err != nil {
		return err
	}
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()

	e, err := events.New(events.ConfigChanged, cfg)
	if err == nil {
		b.Emit(e)
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades to a websocket and serves the backend protocol until
// the client disconnects.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("FAKE: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	evCh, cancel := b.Subscribe()
	defer cancel()

	var writeMu sync.Mutex
	send := func(f proto.Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(f)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case e, ok := <-evCh:
				if !ok {
					return
				}
				if err := send(proto.NewEvent(e.Name, e.Payload)); err != nil {
					return
				}
			}
		}
	}()

	log.Infof("FAKE: client connected from %s", r.RemoteAddr)
	for {
		var req proto.Frame
		if err := conn.ReadJSON(&req); err != nil {
			log.Infof("FAKE: client %s gone: %v", r.RemoteAddr, err)
			return
		}
		if req.Type != proto.TypeRequest {
			continue
		}
		result, err := b.handle(r.Context(), req)
		resp, mErr := proto.NewResponse(req.ID, result, err)
		if mErr != nil {
			resp, _ = proto.NewResponse(req.ID, nil, mErr)
		}
		if err := send(resp); err != nil {
			return
		}
	}
}

func (b *Backend) handle(ctx context.Context, req proto.Frame) (any, error) {
	switch req.Command {
	case proto.CmdGetAllSessions:
		return b.GetAllSessions(ctx)

	case proto.CmdGetSession:
		var a proto.SessionArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		s, err := b.GetSession(ctx, a.SessionName)
		if errors.Is(err, backend.ErrSessionNotFound) {
			// The backend answers an unknown name with null.
			return nil, nil
		}
		return s, err

	case proto.CmdSetSessionVolume:
		var a proto.VolumeArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return nil, b.SetSessionVolume(ctx, a.SessionName, a.Volume)

	case proto.CmdToggleSessionMute:
		var a proto.SessionArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return nil, b.ToggleSessionMute(ctx, a.SessionName)

	case proto.CmdGetConfig:
		return b.GetConfig(ctx)

	case proto.CmdSetConfig:
		var a proto.ConfigArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		var cfg backend.Config
		if err := json.Unmarshal(a.Config, &cfg); err != nil {
			return nil, err
		}
		return nil, b.SetConfig(ctx, cfg)

	default:
		return nil, fmt.Errorf("unknown command %q", req.Command)
	}
}
