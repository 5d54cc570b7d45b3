// Package events carries backend notifications to window controllers.
//
// All notification kinds travel on one channel so a consumer sees them in
// the order the backend emitted them; there are no per-kind streams that
// could interleave.
package events

import (
	"encoding/json"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

var log = logging.Logger("volmix/events")

// Event names as emitted by the backend.
const (
	VolumeChange     = "volume-change-event"
	MuteChange       = "mute-change-event"
	VisibilityChange = "mixer-visibility-change-event"
	ConfigChanged    = "config-changed-event"
)

// Event is one inbound notification. Payload is left raw; session payloads
// are normalized by the session package.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// New builds an event, marshalling payload.
func New(name string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Payload: b}, nil
}

// Visible decodes a visibility-change payload. Both a bare boolean and
// {"visible": bool} are accepted.
func (e Event) Visible() (bool, error) {
	var v bool
	if err := json.Unmarshal(e.Payload, &v); err == nil {
		return v, nil
	}
	var obj struct {
		Visible bool `json:"visible"`
	}
	if err := json.Unmarshal(e.Payload, &obj); err != nil {
		return false, err
	}
	return obj.Visible, nil
}

// Bus fans a single ordered event stream out to several subscribers, one
// per window. A slow subscriber misses events rather than stalling the
// reader.
type Bus struct {
	log    *zap.SugaredLogger
	onDrop func(name string, dropped int)

	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

type BusOption func(*Bus)

func WithLogger(l *zap.SugaredLogger) BusOption {
	return func(b *Bus) { b.log = l }
}

// WithOnDrop registers a hook called with the event name and the number of
// subscribers that missed it.
func WithOnDrop(fn func(name string, dropped int)) BusOption {
	return func(b *Bus) { b.onDrop = fn }
}

func NewBus(opts ...BusOption) *Bus {
	b := &Bus{log: &log.SugaredLogger, subs: make(map[chan Event]struct{})}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers a subscriber. The returned cancel func unsubscribes
// and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers e to every subscriber without blocking. It returns the
// number of subscribers that dropped the event; drops are logged and
// reported to the drop hook.
func (b *Bus) Publish(e Event) int {
	b.mu.Lock()
	dropped := 0
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	b.mu.Unlock()

	if dropped > 0 {
		b.log.Warnw("subscriber queue full, event dropped",
			"event", e.Name,
			"payload", string(e.Payload),
			"subscribers", dropped,
		)
		if b.onDrop != nil {
			b.onDrop(e.Name, dropped)
		}
	}
	return dropped
}

// Pump publishes everything read from src until it closes, then closes the
// bus.
func (b *Bus) Pump(src <-chan Event) {
	for e := range src {
		b.Publish(e)
	}
	b.Close()
}

// Len returns the number of live subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unsubscribes everyone.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
