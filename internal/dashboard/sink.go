package dashboard

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// DefaultRetention is how many log entries the sink keeps.
const DefaultRetention = 50

// Entry is one dashboard log line.
type Entry struct {
	Time    string `json:"time"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Sink is an append-only, bounded log buffer with live subscribers. It
// implements io.Writer so it can be attached to the zerolog multi-writer.
type Sink struct {
	mu      sync.Mutex
	retain  int
	entries []Entry
	subs    map[chan Entry]struct{}
}

func NewSink(retain int) *Sink {
	if retain <= 0 {
		retain = DefaultRetention
	}
	return &Sink{
		retain: retain,
		subs:   make(map[chan Entry]struct{}),
	}
}

// Append records a log entry, evicting the oldest once retention is
// reached, and fans it out to subscribers. Slow subscribers are skipped
// rather than blocked on.
func (s *Sink) Append(kind, message string) Entry {
	e := Entry{
		Time:    time.Now().Format("[15:04:05]"),
		Type:    kind,
		Message: message,
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.retain {
		s.entries = s.entries[len(s.entries)-s.retain:]
	}
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
	s.mu.Unlock()
	return e
}

// Recent returns up to limit of the newest entries, oldest first.
func (s *Sink) Recent(limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]Entry, limit)
	copy(out, s.entries[len(s.entries)-limit:])
	return out
}

// Len reports how many entries are currently retained.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Subscribe registers a live feed. The returned cancel must be called when
// the subscriber goes away.
func (s *Sink) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
	return ch, cancel
}

type zerologLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Write accepts a zerolog JSON line and folds it into the buffer.
func (s *Sink) Write(p []byte) (int, error) {
	var line zerologLine
	if err := json.Unmarshal(p, &line); err != nil {
		s.Append("INFO", strings.TrimSpace(string(p)))
		return len(p), nil
	}
	kind := "INFO"
	switch line.Level {
	case "error", "fatal", "panic":
		kind = "ERROR"
	case "warn":
		kind = "WARN"
	}
	s.Append(kind, line.Message)
	return len(p), nil
}
