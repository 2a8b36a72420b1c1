package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// transcriptMaxAge is how long raw transcripts are kept before the
	// next session start cleans them up.
	transcriptMaxAge = 7 * 24 * time.Hour
	transcriptPrefix = "transcript-"
)

// Transcript tees raw PTY output, escape sequences and all, to a
// session-stamped file. The raw form preserves everything strip-based
// views lose and can be replayed through a terminal later.
type Transcript struct {
	mu sync.Mutex
	f  *os.File
}

// NewTranscript opens a transcript file for the session and removes
// transcripts older than a week.
func NewTranscript(dir string) (*Transcript, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	cleanupTranscripts(dir)

	name := fmt.Sprintf("%s%s.raw", transcriptPrefix, time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return &Transcript{f: f}, nil
}

// Write appends a chunk of raw output.
func (t *Transcript) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f.Write(p)
}

// Path returns the transcript file path.
func (t *Transcript) Path() string {
	return t.f.Name()
}

// Close closes the transcript file.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f.Close()
}

func cleanupTranscripts(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-transcriptMaxAge)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), transcriptPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}
