package approve

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/martymcenroe/unleashed/internal/model"
)

const (
	// settleDelay lets the agent's TUI finish painting the dialog
	// before keystrokes are injected; injecting mid-repaint can land
	// on the wrong widget.
	settleDelay = 100 * time.Millisecond
	// optionDelay separates the option-select keystroke from the
	// confirming Enter on ternary dialogs.
	optionDelay = 100 * time.Millisecond
	// pauseSettleDelay is longer: conversational question renders are
	// slower than permission dialogs.
	pauseSettleDelay = 200 * time.Millisecond
)

var (
	blockStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)
)

// Executor injects approval and denial keystrokes into the agent PTY.
type Executor struct {
	pty       io.Writer
	out       io.Writer
	input     <-chan []byte
	countdown time.Duration

	sleep func(time.Duration) // test seam
}

// NewExecutor creates an Executor. countdown of zero approves
// immediately; a positive value shows a cancellable delay first.
func NewExecutor(pty, out io.Writer, input <-chan []byte, countdown time.Duration) *Executor {
	return &Executor{
		pty:       pty,
		out:       out,
		input:     input,
		countdown: countdown,
		sleep:     time.Sleep,
	}
}

// Approve accepts the dialog. Binary dialogs take a bare Enter; ternary
// dialogs first move selection to the "don't ask again" option so the
// same prompt never comes back. Returns false if the operator cancelled
// during the countdown.
func (e *Executor) Approve(req model.PermissionRequest) (bool, error) {
	if e.countdown > 0 {
		if key, cancelled := e.runCountdown(); cancelled {
			// Hand the intercepted keystroke to the agent so the
			// operator's manual answer is not lost.
			if len(key) > 0 {
				_, _ = e.pty.Write(key)
			}
			return false, nil
		}
	}
	return true, e.inject(req)
}

// ApproveNow accepts the dialog skipping any countdown. Used after a
// typed confirmation, which already was the deliberate pause.
func (e *Executor) ApproveNow(req model.PermissionRequest) error {
	return e.inject(req)
}

func (e *Executor) inject(req model.PermissionRequest) error {
	e.sleep(settleDelay)
	if req.Cardinality == model.CardinalityTernary {
		if _, err := e.pty.Write([]byte("2")); err != nil {
			return fmt.Errorf("select remember option: %w", err)
		}
		e.sleep(optionDelay)
	}
	if _, err := e.pty.Write([]byte("\r")); err != nil {
		return fmt.Errorf("send approval: %w", err)
	}
	e.sleep(settleDelay)
	return nil
}

// Deny leaves the dialog to the operator by sending Esc, which cancels
// it on the agent side without choosing an option.
func (e *Executor) Deny(reason string) error {
	fmt.Fprintf(e.out, "\r\n%s\r\n", blockStyle.Render(fmt.Sprintf("[unleashed] BLOCKED: %s", reason)))
	e.sleep(settleDelay)
	if _, err := e.pty.Write([]byte{0x1b}); err != nil {
		return fmt.Errorf("send deny: %w", err)
	}
	return nil
}

// WarnFailOpen announces that the remote judge failed and the
// operation is being approved anyway. The banner must land before the
// approval so the operator sees why the dialog vanished.
func (e *Executor) WarnFailOpen(reason string) {
	fmt.Fprintf(e.out, "\r\n%s\r\n",
		noticeStyle.Render(fmt.Sprintf("[unleashed] judge unavailable, failing open: %.80s", reason)))
}

// AnswerPause selects the first option of a conversational question
// ("1. Yes"), which also answers plain questions that only need Enter.
func (e *Executor) AnswerPause() error {
	e.sleep(pauseSettleDelay)
	if _, err := e.pty.Write([]byte("1\r")); err != nil {
		return fmt.Errorf("answer pause: %w", err)
	}
	e.sleep(settleDelay)
	return nil
}

// drainStale discards keystrokes routed before a flow started. Bytes
// typed while the guard was held but nothing was reading (a judge call
// in flight) answer nothing; acting on them would let type-ahead drive
// a prompt the operator has not seen yet.
func drainStale(input <-chan []byte) {
	for {
		select {
		case <-input:
		default:
			return
		}
	}
}

// runCountdown displays a per-second countdown. Any keystroke cancels;
// the intercepted bytes are returned so they can be forwarded.
func (e *Executor) runCountdown() (key []byte, cancelled bool) {
	drainStale(e.input)

	secs := int(e.countdown.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for remaining := secs; remaining > 0; {
		fmt.Fprintf(e.out, "\r%s",
			countStyle.Render(fmt.Sprintf("[unleashed] approving in %ds (any key to cancel) ", remaining)))
		select {
		case keys, ok := <-e.input:
			fmt.Fprint(e.out, "\r\n")
			if !ok {
				return nil, true
			}
			return keys, true
		case <-ticker.C:
			remaining--
		}
	}
	fmt.Fprint(e.out, "\r\n")
	return nil, false
}
