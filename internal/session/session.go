// Package session holds the canonical in-memory model of an audio session
// and the decoding of backend change notifications into it.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MasterName is the session that always sorts first.
const MasterName = "master"

const (
	MinVolume = 0
	MaxVolume = 100
)

var (
	ErrDuplicateSession = errors.New("duplicate session name")
	ErrEmptyName        = errors.New("session name is empty")
)

// Session is one controllable volume/mute target as displayed by a window.
// Volume is always the absolute magnitude in [0,100].
type Session struct {
	Name   string `json:"name"`
	Volume int    `json:"volume"`
	Muted  bool   `json:"mute"`
	Icon   []byte `json:"icon,omitempty"`
}

// Key returns the case-insensitive identity of a session name.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsMaster reports whether name refers to the master session.
func IsMaster(name string) bool {
	return Key(name) == MasterName
}

// Less orders session names: master first, then case-insensitive
// lexicographic. Names equal ignoring case fall back to a byte comparison so
// the result stays deterministic.
func Less(a, b string) bool {
	am, bm := IsMaster(a), IsMaster(b)
	if am != bm {
		return am
	}
	ka, kb := Key(a), Key(b)
	if ka != kb {
		return ka < kb
	}
	return a < b
}

// Sort orders sessions in place using Less.
func Sort(ss []Session) {
	sort.SliceStable(ss, func(i, j int) bool { return Less(ss[i].Name, ss[j].Name) })
}

// ClampVolume returns the magnitude of v bounded to [0,100].
func ClampVolume(v int) int {
	if v < 0 {
		v = -v
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}

// Collection is an ordered set of sessions keyed by case-insensitive name.
// It is replaced wholesale on every fetch and mutated in place by inbound
// updates. All methods are safe for concurrent use.
type Collection struct {
	mu    sync.RWMutex
	items []Session
	index map[string]int
}

// NewCollection validates uniqueness, sorts and stores ss.
func NewCollection(ss []Session) (*Collection, error) {
	c := &Collection{}
	if err := c.Replace(ss); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace swaps the whole contents of the collection. The previous contents
// are kept when ss is invalid.
func (c *Collection) Replace(ss []Session) error {
	items := make([]Session, 0, len(ss))
	seen := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		k := Key(s.Name)
		if k == "" {
			return ErrEmptyName
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateSession, s.Name)
		}
		seen[k] = struct{}{}
		s.Volume = ClampVolume(s.Volume)
		items = append(items, s)
	}
	Sort(items)

	index := make(map[string]int, len(items))
	for i, s := range items {
		index[Key(s.Name)] = i
	}

	c.mu.Lock()
	c.items = items
	c.index = index
	c.mu.Unlock()
	return nil
}

// Get looks up a session by case-insensitive name.
func (c *Collection) Get(name string) (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[Key(name)]
	if !ok {
		return Session{}, false
	}
	return c.items[i], true
}

// Has reports whether a session with name is tracked.
func (c *Collection) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Apply merges the fields carried by f into the matching session.
// It returns the updated session and false when no session matches.
func (c *Collection) Apply(f Fragment) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[Key(f.Name)]
	if !ok {
		return Session{}, false
	}
	s := f.ApplyTo(c.items[i])
	s.Volume = ClampVolume(s.Volume)
	c.items[i] = s
	return s, true
}

// Set overwrites an existing session's state (matched by name) or appends it
// at its sorted position.
func (c *Collection) Set(s Session) {
	s.Volume = ClampVolume(s.Volume)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if i, ok := c.index[Key(s.Name)]; ok {
		c.items[i] = s
		return
	}
	c.items = append(c.items, s)
	Sort(c.items)
	for i, it := range c.items {
		c.index[Key(it.Name)] = i
	}
}

// Snapshot returns a copy of the sessions in display order.
func (c *Collection) Snapshot() []Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Session, len(c.items))
	copy(out, c.items)
	return out
}

// Names returns the session names in display order.
func (c *Collection) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.items))
	for i, s := range c.items {
		out[i] = s.Name
	}
	return out
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
