package approve

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martymcenroe/unleashed/internal/model"
)

type recordingPTY struct {
	mu     sync.Mutex
	writes [][]byte
}

func (p *recordingPTY) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	p.writes = append(p.writes, cp)
	return len(data), nil
}

func (p *recordingPTY) all() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []byte
	for _, w := range p.writes {
		out = append(out, w...)
	}
	return out
}

func newTestExecutor(countdown time.Duration, input chan []byte) (*Executor, *recordingPTY, *syncBuffer) {
	pty := &recordingPTY{}
	out := &syncBuffer{}
	e := NewExecutor(pty, out, input, countdown)
	e.sleep = func(time.Duration) {}
	return e, pty, out
}

func TestApproveBinary(t *testing.T) {
	e, pty, _ := newTestExecutor(0, nil)

	done, err := e.Approve(model.PermissionRequest{Cardinality: model.CardinalityBinary})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []byte("\r"), pty.all())
}

func TestApproveTernarySelectsRememberOption(t *testing.T) {
	e, pty, _ := newTestExecutor(0, nil)

	done, err := e.Approve(model.PermissionRequest{Cardinality: model.CardinalityTernary})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []byte("2\r"), pty.all())
}

func TestApproveCountdownExpires(t *testing.T) {
	input := make(chan []byte)
	e, pty, out := newTestExecutor(time.Second, input)

	done, err := e.Approve(model.PermissionRequest{Cardinality: model.CardinalityBinary})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []byte("\r"), pty.all())
	assert.Contains(t, out.String(), "approving in")
}

func TestApproveCountdownCancelledForwardsKeystroke(t *testing.T) {
	input := make(chan []byte, 1)
	e, pty, out := newTestExecutor(5*time.Second, input)
	// Operator presses Esc once the countdown is visible.
	feedAfterPrompt(out, input, "approving in", []byte{0x1b})

	start := time.Now()
	done, err := e.Approve(model.PermissionRequest{Cardinality: model.CardinalityBinary})
	require.NoError(t, err)
	assert.False(t, done)
	// The intercepted keystroke reaches the agent; no approval is sent.
	assert.Equal(t, []byte{0x1b}, pty.all())
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestApproveCountdownIgnoresStaleKeystroke(t *testing.T) {
	// A keystroke routed before the countdown began (a judge call was
	// in flight) must not cancel it.
	input := make(chan []byte, 1)
	input <- []byte{0x1b}
	e, pty, _ := newTestExecutor(time.Second, input)

	done, err := e.Approve(model.PermissionRequest{Cardinality: model.CardinalityBinary})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []byte("\r"), pty.all())
}

func TestApproveNowSkipsCountdown(t *testing.T) {
	input := make(chan []byte)
	e, pty, _ := newTestExecutor(time.Hour, input)

	start := time.Now()
	require.NoError(t, e.ApproveNow(model.PermissionRequest{Cardinality: model.CardinalityBinary}))
	assert.Equal(t, []byte("\r"), pty.all())
	assert.Less(t, time.Since(start), time.Second)
}

func TestDenySendsEsc(t *testing.T) {
	e, pty, out := newTestExecutor(0, nil)

	require.NoError(t, e.Deny("matches always-blocked pattern"))
	assert.Equal(t, []byte{0x1b}, pty.all())
	assert.Contains(t, out.String(), "BLOCKED")
	assert.Contains(t, out.String(), "matches always-blocked pattern")
}

func TestWarnFailOpen(t *testing.T) {
	e, _, out := newTestExecutor(0, nil)

	e.WarnFailOpen("judge call failed: timeout")
	assert.Contains(t, out.String(), "failing open")
}

func TestAnswerPause(t *testing.T) {
	e, pty, _ := newTestExecutor(0, nil)

	require.NoError(t, e.AnswerPause())
	assert.Equal(t, []byte("1\r"), pty.all())
}
