// Package store persists per-session event records.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType labels a session event record.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventDetection    EventType = "detection"
	EventVerdict      EventType = "verdict"
	EventAction       EventType = "action"
	EventModelPause   EventType = "model_pause"
	EventError        EventType = "error"
)

// Record is one line of the session event log.
type Record struct {
	Time      time.Time `json:"ts"`
	SessionID string    `json:"session_id"`
	ElapsedS  int       `json:"elapsed_s"`
	Seq       int       `json:"seq"`
	Type      EventType `json:"type"`
	Category  string    `json:"category,omitempty"`
	Target    string    `json:"target,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Sink receives session events.
type Sink interface {
	Record(r Record)
	Close() error
}

// JSONLSink appends one JSON object per line to a session-stamped file.
type JSONLSink struct {
	mu        sync.Mutex
	f         *os.File
	enc       *json.Encoder
	sessionID string
	start     time.Time
	seq       int
}

// NewJSONLSink opens (creating dir if needed) the event log for a session.
func NewJSONLSink(dir, sessionID string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := fmt.Sprintf("events-%s.jsonl", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &JSONLSink{
		f:         f,
		enc:       json.NewEncoder(f),
		sessionID: sessionID,
		start:     time.Now(),
	}, nil
}

// Record writes one event line. Timestamp, session id, elapsed time,
// and sequence number are filled in here.
func (s *JSONLSink) Record(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	r.Seq = s.seq
	r.SessionID = s.sessionID
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}
	r.ElapsedS = int(time.Since(s.start).Seconds())
	_ = s.enc.Encode(r)
}

// Count returns the number of records written.
func (s *JSONLSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Path returns the event log file path.
func (s *JSONLSink) Path() string {
	return s.f.Name()
}

// Close flushes and closes the log file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(Record) {}
func (NopSink) Close() error  { return nil }
