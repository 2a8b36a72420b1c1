package runtime

import (
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/hinshun/vt10x"
)

const (
	// defaultHistorySize bounds the raw output history (~50KB).
	defaultHistorySize = 50000
)

// ScreenTracker maintains a bounded history of raw agent output plus a
// virtual terminal rendering of it. The history answers "what scrolled
// past recently"; the virtual terminal answers "what is on screen right
// now", which matters because agent TUIs repaint with cursor movement
// instead of emitting linear text.
type ScreenTracker struct {
	mu      sync.Mutex
	history *RingBuffer
	term    vt10x.Terminal
	cols    int
	rows    int
}

// NewScreenTracker creates a tracker with the given terminal geometry.
func NewScreenTracker(cols, rows int) *ScreenTracker {
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return &ScreenTracker{
		history: NewRingBuffer(defaultHistorySize),
		term:    vt10x.New(vt10x.WithSize(cols, rows)),
		cols:    cols,
		rows:    rows,
	}
}

// Append feeds a chunk of raw PTY output into the tracker.
func (t *ScreenTracker) Append(chunk []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, _ = t.history.Write(chunk)
	_, _ = t.term.Write(chunk)
}

// Resize updates the virtual terminal geometry.
func (t *ScreenTracker) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cols = cols
	t.rows = rows
	t.term.Resize(cols, rows)
}

// Raw returns the buffered raw output history, escape sequences included.
func (t *ScreenTracker) Raw() []byte {
	return t.history.Bytes()
}

// Tail returns up to n characters of recent output with ANSI escape
// sequences stripped and carriage returns normalized to newlines.
func (t *ScreenTracker) Tail(n int) string {
	clean := ansi.Strip(string(t.history.Bytes()))
	clean = strings.ReplaceAll(clean, "\r\n", "\n")
	clean = strings.ReplaceAll(clean, "\r", "\n")
	if len(clean) > n {
		clean = clean[len(clean)-n:]
	}
	return clean
}

// TopLines returns the first n rows of the rendered screen, trimmed of
// trailing whitespace. Tool headers that scrolled out of the raw tail
// are still visible here as long as they remain painted on screen.
func (t *ScreenTracker) TopLines(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > t.rows {
		n = t.rows
	}

	t.term.Lock()
	defer t.term.Unlock()

	lines := make([]string, 0, n)
	var sb strings.Builder
	for y := 0; y < n; y++ {
		sb.Reset()
		for x := 0; x < t.cols; x++ {
			g := t.term.Cell(x, y)
			if g.Char == 0 {
				sb.WriteByte(' ')
				continue
			}
			sb.WriteRune(g.Char)
		}
		lines = append(lines, strings.TrimRight(sb.String(), " "))
	}
	return lines
}

// Screen returns the full rendered screen as a single string.
func (t *ScreenTracker) Screen() string {
	t.mu.Lock()
	rows := t.rows
	t.mu.Unlock()
	return strings.Join(t.TopLines(rows), "\n")
}
