// Package approve turns safety verdicts into keystrokes on the agent's
// PTY, with operator confirmation for escalated operations.
package approve

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmState is the confirmation flow outcome.
type ConfirmState int

const (
	// StateIdle means no confirmation is in progress.
	StateIdle ConfirmState = iota
	// StateWarned means the warning banner has been shown.
	StateWarned
	// StateAwaitingToken means the operator is typing.
	StateAwaitingToken
	// StateConfirmed means the operator typed the confirmation token.
	StateConfirmed
	// StateRejected means the operator typed something else or cancelled.
	StateRejected
	// StateTimedOut means the operator did not answer in time.
	StateTimedOut
)

func (s ConfirmState) String() string {
	switch s {
	case StateWarned:
		return "warned"
	case StateAwaitingToken:
		return "awaiting-token"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	case StateTimedOut:
		return "timed-out"
	default:
		return "idle"
	}
}

const (
	// confirmToken is what the operator must type, exactly, to let an
	// escalated operation through.
	confirmToken = "yes"
	// defaultConfirmTimeout bounds how long the flow waits for input.
	defaultConfirmTimeout = 30 * time.Second
)

var (
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))
)

// Confirmer runs the typed-confirmation flow for escalated operations.
// Keystrokes arrive on a channel because the operator terminal is in
// raw mode and stdin is owned by the supervisor's input loop.
type Confirmer struct {
	out     io.Writer
	input   <-chan []byte
	timeout time.Duration
}

// NewConfirmer creates a Confirmer writing prompts to out and reading
// routed keystrokes from input.
func NewConfirmer(out io.Writer, input <-chan []byte) *Confirmer {
	return &Confirmer{
		out:     out,
		input:   input,
		timeout: defaultConfirmTimeout,
	}
}

// SetTimeout overrides the confirmation deadline.
func (c *Confirmer) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Run walks the flow: warn, collect a typed line, compare against the
// token. Esc or Ctrl+C rejects immediately; the deadline times out.
func (c *Confirmer) Run(ctx context.Context, reason string) ConfirmState {
	drainStale(c.input)

	fmt.Fprintf(c.out, "\r\n%s\r\n",
		warnStyle.Render(fmt.Sprintf("[unleashed] CONFIRM REQUIRED: %s", reason)))
	fmt.Fprintf(c.out, "%s",
		promptStyle.Render(fmt.Sprintf("[unleashed] type %q + Enter to proceed, Esc to deny: ", confirmToken)))

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var typed strings.Builder
	for {
		select {
		case <-ctx.Done():
			fmt.Fprint(c.out, "\r\n")
			return StateRejected
		case <-timer.C:
			fmt.Fprintf(c.out, "\r\n%s\r\n", warnStyle.Render("[unleashed] confirmation timed out, denying"))
			return StateTimedOut
		case keys, ok := <-c.input:
			if !ok {
				return StateRejected
			}
			for _, b := range keys {
				switch b {
				case 0x1b, 0x03: // Esc, Ctrl+C
					fmt.Fprint(c.out, "\r\n")
					return StateRejected
				case '\r', '\n':
					fmt.Fprint(c.out, "\r\n")
					if typed.String() == confirmToken {
						return StateConfirmed
					}
					return StateRejected
				case 0x7f, 0x08: // Backspace
					s := typed.String()
					if len(s) > 0 {
						typed.Reset()
						typed.WriteString(s[:len(s)-1])
						fmt.Fprint(c.out, "\b \b")
					}
				default:
					if b >= 0x20 && b < 0x7f {
						typed.WriteByte(b)
						fmt.Fprintf(c.out, "%c", b)
					}
				}
			}
		}
	}
}
