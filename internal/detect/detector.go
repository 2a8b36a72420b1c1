// Package detect identifies permission dialogs and model pauses in
// agent terminal output.
package detect

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/martymcenroe/unleashed/internal/model"
)

// promptSignatures are the fixed strings Claude Code renders in its
// permission dialogs. Matching happens on ANSI-stripped text.
var promptSignatures = []string{
	"Tab to amend",
	"Do you want to proceed?",
	"Allow this command to run?",
	"Do you want to allow Claude to fetch this content?",
}

// pauseSignatures mark the agent stopping to ask a conversational
// yes/no question instead of requesting a tool permission.
var pauseSignatures = []string{
	"Should I proceed",
	"Should I continue",
	"Would you like me to proceed",
	"Would you like me to continue",
	"Shall I proceed",
	"Shall I continue",
	"Want me to proceed",
	"Want me to continue",
	"Do you want me to proceed",
	"Do you want me to continue",
	"Ready to proceed",
	"Is my plan ready",
}

// toolHeaderRe matches the tool invocation header the agent paints
// above a permission dialog, e.g. "Bash(rm -rf build)".
var toolHeaderRe = regexp.MustCompile(
	`(Read|Write|Edit|Bash|Glob|Grep|WebFetch|WebSearch|Skill|Task|NotebookEdit)\(([^)]{1,500})\)`)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// ternaryMarker distinguishes three-option dialogs that offer a
// "don't ask again" choice from plain yes/no dialogs.
const ternaryMarker = "don't ask again"

const (
	// tailWindow is how much cleaned history the detector inspects for
	// headers and dialog options.
	tailWindow = 2048
	// topLineWindow is how many rendered screen rows are scanned for a
	// tool header that scrolled out of the raw tail.
	topLineWindow = 12
	// contextWindow bounds the cleaned context captured on a request.
	contextWindow = 300
)

// Screen is the view of terminal state the detector needs.
type Screen interface {
	// Tail returns up to n characters of cleaned recent output.
	Tail(n int) string
	// TopLines returns the first n rendered screen rows.
	TopLines(n int) []string
}

// Detector finds permission dialogs in a stream of PTY output chunks.
// It is stateful: model-pause matches are rate limited so one question
// repainted across frames is answered once.
type Detector struct {
	screen Screen

	mu            sync.Mutex
	lastPause     time.Time
	pauseCooldown time.Duration
}

// NewDetector creates a Detector reading screen state from the given view.
func NewDetector(screen Screen) *Detector {
	return &Detector{
		screen:        screen,
		pauseCooldown: 10 * time.Second,
	}
}

// Clean replaces ANSI escape sequences in a raw chunk with spaces.
// Cursor positioning codes are the whitespace between words in a TUI
// repaint; deleting them outright (as ansi.Strip does) would merge
// adjacent words and break signature matching.
func Clean(chunk []byte) string {
	spaced := make([]byte, 0, len(chunk))
	for i := 0; i < len(chunk); i++ {
		b := chunk[i]
		if b != 0x1b {
			if b == '\r' || b == '\n' {
				spaced = append(spaced, ' ')
			} else {
				spaced = append(spaced, b)
			}
			continue
		}
		spaced = append(spaced, ' ')
		if i+1 >= len(chunk) {
			break
		}
		switch chunk[i+1] {
		case '[':
			// CSI: parameters then a final byte in 0x40-0x7e.
			i++
			for i+1 < len(chunk) {
				i++
				if chunk[i] >= 0x40 && chunk[i] <= 0x7e {
					break
				}
			}
		case ']':
			// OSC: terminated by BEL or ESC \.
			i++
			for i+1 < len(chunk) {
				i++
				if chunk[i] == 0x07 {
					break
				}
				if chunk[i] == 0x1b && i+1 < len(chunk) && chunk[i+1] == '\\' {
					i++
					break
				}
			}
		default:
			i++
		}
	}
	return multiSpaceRe.ReplaceAllString(string(spaced), " ")
}

// Detect inspects a chunk of output (caller prepends the overlap window
// so signatures split across reads still match) and returns a
// PermissionRequest if a dialog is present, or nil.
func (d *Detector) Detect(chunk []byte) *model.PermissionRequest {
	clean := Clean(chunk)

	matched := ""
	for _, sig := range promptSignatures {
		if strings.Contains(clean, sig) {
			matched = sig
			break
		}
	}
	if matched == "" {
		return nil
	}

	tail := d.screen.Tail(tailWindow)
	tool, target := d.findToolHeader(tail)

	req := &model.PermissionRequest{
		Category:    categoryFor(tool),
		Cardinality: model.CardinalityBinary,
		Target:      target,
		Context:     trailing(tail, contextWindow),
		DetectedAt:  time.Now(),
	}
	if strings.Contains(strings.ToLower(tail), ternaryMarker) ||
		strings.Contains(strings.ToLower(clean), ternaryMarker) {
		req.Cardinality = model.CardinalityTernary
	}

	// Fetch dialogs carry the URL in the signature line, not a header.
	if req.Target == "" && matched == "Do you want to allow Claude to fetch this content?" {
		req.Category = model.ToolReadOnly
	}
	return req
}

// findToolHeader recovers the most recent tool invocation header. The
// raw tail is checked first; if the header scrolled out of it but is
// still painted on screen, the rendered top rows catch it.
func (d *Detector) findToolHeader(tail string) (tool, target string) {
	if t, arg, ok := lastHeader(tail); ok {
		return t, arg
	}
	for _, line := range d.screen.TopLines(topLineWindow) {
		if t, arg, ok := lastHeader(line); ok {
			tool, target = t, arg
		}
	}
	return tool, target
}

func lastHeader(text string) (tool, arg string, ok bool) {
	matches := toolHeaderRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", "", false
	}
	m := matches[len(matches)-1]
	return m[1], strings.TrimSpace(m[2]), true
}

// categoryFor maps a tool name to its permission category. Unknown
// tool names are treated as shell execution so the strictest rule set
// applies; an empty name means no header was found at all.
func categoryFor(tool string) model.ToolCategory {
	switch tool {
	case "":
		return model.ToolUnclassified
	case "Bash":
		return model.ToolShellExec
	case "Write", "NotebookEdit":
		return model.ToolWrite
	case "Edit":
		return model.ToolEdit
	case "Read", "Glob", "Grep", "WebFetch", "WebSearch":
		return model.ToolReadOnly
	default:
		return model.ToolShellExec
	}
}

// DetectPause reports whether the chunk contains a model pause
// question. A cooldown suppresses repeat matches from TUI repaints of
// the same question.
func (d *Detector) DetectPause(chunk []byte) (string, bool) {
	clean := Clean(chunk)

	for _, sig := range pauseSignatures {
		if !strings.Contains(clean, sig) {
			continue
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if time.Since(d.lastPause) < d.pauseCooldown {
			return "", false
		}
		d.lastPause = time.Now()
		return sig, true
	}
	return "", false
}

// SetPauseCooldown overrides the pause rate limit (used in tests).
func (d *Detector) SetPauseCooldown(cd time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pauseCooldown = cd
}

func trailing(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
