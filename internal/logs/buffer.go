package logs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/petervdpas/volmix/internal/util"
)

// Entry is one log line. Level and Logger are filled in when the line is
// in go-log's plaintext layout; otherwise Msg holds the whole line.
type Entry struct {
	TS     time.Time `json:"ts"`
	Level  string    `json:"level,omitempty"`
	Logger string    `json:"logger,omitempty"`
	Msg    string    `json:"msg"`

	line string
}

var levels = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3, "DPANIC": 4, "PANIC": 5, "FATAL": 6}

// parseLine splits "ts<TAB>LEVEL<TAB>logger<TAB>caller<TAB>msg".
func parseLine(ts time.Time, line string) Entry {
	e := Entry{TS: ts, Msg: line, line: line}
	parts := strings.SplitN(line, "\t", 5)
	if len(parts) < 4 {
		return e
	}
	if _, ok := levels[parts[1]]; !ok {
		return e
	}
	e.Level, e.Logger = parts[1], parts[2]
	e.Msg = parts[len(parts)-1]
	return e
}

// atLeast reports whether e is at or above min. Unparsed lines always pass.
func (e Entry) atLeast(min int) bool {
	lvl, ok := levels[e.Level]
	return !ok || lvl >= min
}

// Buffer keeps the most recent log lines and streams new ones to
// subscribers. It is an io.Writer fed by the log pipe.
type Buffer struct {
	entries *util.RingBuffer[Entry]

	mu      sync.Mutex
	subs    map[chan Entry]struct{}
	partial bytes.Buffer
	now     func() time.Time
}

func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 500
	}
	return &Buffer{
		entries: util.NewRingBuffer[Entry](max),
		subs:    make(map[chan Entry]struct{}),
		now:     time.Now,
	}
}

// Write splits p into lines; a trailing partial line waits for the next
// write.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial.Write(p)
	for {
		line, err := b.partial.ReadString('\n')
		if err != nil {
			// no newline yet; put the fragment back
			b.partial.Reset()
			b.partial.WriteString(line)
			break
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.publishLocked(parseLine(b.now(), line))
	}
	return len(p), nil
}

func (b *Buffer) publishLocked(e Entry) {
	b.entries.Push(e)
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// slow subscriber
		}
	}
}

// Snapshot returns the kept lines, oldest first.
func (b *Buffer) Snapshot() []Entry {
	return b.entries.Snapshot()
}

// Tail returns up to n of the newest lines, oldest first.
func (b *Buffer) Tail(n int) []Entry {
	return b.entries.Tail(n)
}

// Lines returns the kept lines as written.
func (b *Buffer) Lines() []string {
	snap := b.entries.Snapshot()
	out := make([]string, len(snap))
	for i, e := range snap {
		out[i] = e.line
	}
	return out
}

func (b *Buffer) Subscribe() (ch chan Entry, cancel func()) {
	ch = make(chan Entry, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel = func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

type query struct {
	n   int
	min int
}

func parseQuery(r *http.Request) (query, error) {
	q := query{n: -1}
	if v := r.URL.Query().Get("n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, fmt.Errorf("n must be a non-negative integer")
		}
		q.n = n
	}
	if v := r.URL.Query().Get("level"); v != "" {
		lvl, ok := levels[strings.ToUpper(v)]
		if !ok {
			return q, fmt.Errorf("unknown level %q", v)
		}
		q.min = lvl
	}
	return q, nil
}

func filter(es []Entry, min int) []Entry {
	if min == 0 {
		return es
	}
	out := es[:0:0]
	for _, e := range es {
		if e.atLeast(min) {
			out = append(out, e)
		}
	}
	return out
}

// GET /api/logs[?n=100][&level=warn]
func (b *Buffer) ServeJSON(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	es := filter(b.Snapshot(), q.min)
	if q.n >= 0 && q.n < len(es) {
		es = es[len(es)-q.n:]
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(es)
}

// GET /api/logs/stream[?n=50][&level=warn] (Server-Sent Events). The
// newest n lines are replayed before live ones.
func (b *Buffer) ServeSSE(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch, cancel := b.Subscribe()
	defer cancel()

	if q.n > 0 {
		for _, e := range filter(b.Tail(q.n), q.min) {
			writeSSE(w, e)
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if !e.atLeast(q.min) {
				continue
			}
			writeSSE(w, e)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e Entry) {
	data, _ := json.Marshal(e)
	fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
}
