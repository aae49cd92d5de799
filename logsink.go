package main

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const logCapacity = 1000

type logEntry struct {
	Time    time.Time
	Message string
}

func (e logEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Time    string `json:"time"`
		Message string `json:"message"`
	}{e.Time.UTC().Format("2006-01-02T15:04:05.000Z"), e.Message})
}

// logSink keeps the most recent entries in a ring. It is safe for
// concurrent append and snapshot.
type logSink struct {
	mu   sync.Mutex
	ring []logEntry
	head int
	size int

	now func() time.Time
	log zerolog.Logger
}

func newLogSink(capacity int, logger zerolog.Logger) *logSink {
	if capacity < 1 {
		capacity = logCapacity
	}
	return &logSink{
		ring: make([]logEntry, capacity),
		now:  time.Now,
		log:  logger.With().Str("component", "logs").Logger(),
	}
}

func (s *logSink) append(msg string) {
	s.mu.Lock()
	e := logEntry{Time: s.now(), Message: msg}
	s.ring[s.head] = e
	s.head = (s.head + 1) % len(s.ring)
	if s.size < len(s.ring) {
		s.size++
	}
	s.mu.Unlock()

	s.log.Info().Msg(msg)
}

// snapshot returns the retained entries, oldest first.
func (s *logSink) snapshot() []logEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]logEntry, s.size)
	start := (s.head - s.size + len(s.ring)) % len(s.ring)
	for i := 0; i < s.size; i++ {
		out[i] = s.ring[(start+i)%len(s.ring)]
	}
	return out
}
