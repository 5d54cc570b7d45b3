// Package backend is the websocket transport to the native audio backend.
// It turns command calls into request/response frames and surfaces every
// backend notification on a single ordered channel.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"

	"github.com/petervdpas/volmix/internal/events"
	"github.com/petervdpas/volmix/internal/proto"
	"github.com/petervdpas/volmix/internal/session"
)

var log = logging.Logger("volmix/backend")

var (
	ErrClosed          = errors.New("backend client closed")
	ErrDisconnected    = errors.New("backend disconnected")
	ErrSessionNotFound = errors.New("session not found")
)

// RemoteError is a failure reported by the backend for one command.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Command, e.Message)
}

const (
	defaultReconnect = 2 * time.Second
	eventBuffer      = 256
	writeTimeout     = 5 * time.Second
)

type Option func(*Client)

// WithLogger replaces the package logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = l }
}

// WithReconnect sets the delay between redial attempts. Zero disables
// reconnecting.
func WithReconnect(d time.Duration) Option {
	return func(c *Client) { c.reconnect = d }
}

// Client is safe for concurrent use.
type Client struct {
	url       string
	dialer    *websocket.Dialer
	log       *zap.SugaredLogger
	reconnect time.Duration

	writeMu sync.Mutex
	connMu  sync.RWMutex
	conn    *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan proto.Frame

	events    chan events.Event
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the backend at url (ws:// or wss://). The first dial
// must succeed; later disconnects are retried in the background.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:       url,
		dialer:    websocket.DefaultDialer,
		log:       &log.SugaredLogger,
		reconnect: defaultReconnect,
		pending:   make(map[string]chan proto.Frame),
		events:    make(chan events.Event, eventBuffer),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.setConn(conn)
	c.log.Infof("BACKEND: connected to %s", url)

	go c.run(conn)
	return c, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial backend %s: %w", c.url, err)
	}
	return conn, nil
}

// Events returns the single inbound notification channel. It is closed
// after Close.
func (c *Client) Events() <-chan events.Event { return c.events }

// Close disconnects and fails all pending calls.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			_ = conn.Close()
		}
	})
	<-c.done
	return nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// run reads frames until the connection drops, then redials until Close.
func (c *Client) run(conn *websocket.Conn) {
	defer close(c.done)
	defer close(c.events)

	for {
		err := c.readLoop(conn)
		c.failPending(ErrDisconnected)
		if c.isClosed() {
			return
		}
		c.log.Warnf("BACKEND: connection lost: %v", err)
		if c.reconnect <= 0 {
			return
		}

		conn = c.redial()
		if conn == nil {
			return
		}
		c.log.Infof("BACKEND: reconnected to %s", c.url)
	}
}

func (c *Client) redial() *websocket.Conn {
	for {
		select {
		case <-c.closed:
			return nil
		case <-time.After(c.reconnect):
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.reconnect)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.log.Debugf("BACKEND: redial failed: %v", err)
			continue
		}
		c.setConn(conn)
		if c.isClosed() {
			_ = conn.Close()
			return nil
		}
		return conn
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	defer conn.Close()
	for {
		var f proto.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		switch f.Type {
		case proto.TypeResponse:
			c.resolve(f)
		case proto.TypeEvent:
			select {
			case c.events <- events.Event{Name: f.Event, Payload: f.Payload}:
			case <-c.closed:
				return ErrClosed
			}
		default:
			c.log.Warnf("BACKEND: ignoring frame of type %q", f.Type)
		}
	}
}

func (c *Client) resolve(f proto.Frame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.pendingMu.Unlock()
	if !ok {
		c.log.Debugf("BACKEND: response for unknown request %s", f.ID)
		return
	}
	ch <- f
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- proto.Frame{Type: proto.TypeResponse, ID: id, Error: err.Error()}
		delete(c.pending, id)
	}
}

// call sends one request and waits for its response, decoding the result
// into out when non-nil.
func (c *Client) call(ctx context.Context, command string, args any, out any) error {
	if c.isClosed() {
		return ErrClosed
	}

	id := uuid.NewString()
	req, err := proto.NewRequest(id, command, args)
	if err != nil {
		return fmt.Errorf("encode %s: %w", command, err)
	}

	ch := make(chan proto.Frame, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return fmt.Errorf("send %s: %w", command, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrClosed
	case resp := <-ch:
		if resp.Error != "" {
			if resp.Error == ErrDisconnected.Error() {
				return ErrDisconnected
			}
			return &RemoteError{Command: command, Message: resp.Error}
		}
		if out == nil {
			return nil
		}
		if len(resp.Result) == 0 || string(resp.Result) == "null" {
			return errNullResult
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", command, err)
		}
		return nil
	}
}

var errNullResult = errors.New("null result")

func (c *Client) write(f proto.Frame) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrDisconnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}

// GetAllSessions fetches every session the backend knows. Order is not
// guaranteed; callers sort.
func (c *Client) GetAllSessions(ctx context.Context) ([]session.Session, error) {
	var out []session.Session
	if err := c.call(ctx, proto.CmdGetAllSessions, nil, &out); err != nil {
		if errors.Is(err, errNullResult) {
			return nil, nil
		}
		return nil, err
	}
	for i := range out {
		out[i] = normalizeFetched(out[i])
	}
	return out, nil
}

// GetSession fetches one session by name.
func (c *Client) GetSession(ctx context.Context, name string) (session.Session, error) {
	var out session.Session
	if err := c.call(ctx, proto.CmdGetSession, proto.SessionArgs{SessionName: name}, &out); err != nil {
		if errors.Is(err, errNullResult) {
			return session.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
		}
		return session.Session{}, err
	}
	return normalizeFetched(out), nil
}

func (c *Client) SetSessionVolume(ctx context.Context, name string, volume int) error {
	return c.call(ctx, proto.CmdSetSessionVolume, proto.VolumeArgs{SessionName: name, Volume: volume}, nil)
}

func (c *Client) ToggleSessionMute(ctx context.Context, name string) error {
	return c.call(ctx, proto.CmdToggleSessionMute, proto.SessionArgs{SessionName: name}, nil)
}

func (c *Client) GetConfig(ctx context.Context) (Config, error) {
	var cfg Config
	err := c.call(ctx, proto.CmdGetConfig, nil, &cfg)
	return cfg, err
}

func (c *Client) SetConfig(ctx context.Context, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.call(ctx, proto.CmdSetConfig, proto.ConfigArgs{Config: raw}, nil)
}

// normalizeFetched applies the packed-sign rule to fetched sessions: some
// backends report a muted session as a negative volume.
func normalizeFetched(s session.Session) session.Session {
	if s.Volume < 0 {
		s.Volume = -s.Volume
		s.Muted = true
	}
	s.Volume = session.ClampVolume(s.Volume)
	return s
}
