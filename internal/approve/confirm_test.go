package approve

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

// feedAfterPrompt sends keystrokes once the flow has painted marker,
// so they arrive after the flow's stale-input drain.
func feedAfterPrompt(out *syncBuffer, input chan<- []byte, marker string, keys ...[]byte) {
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for !strings.Contains(out.String(), marker) {
			if time.Now().After(deadline) {
				return
			}
			time.Sleep(time.Millisecond)
		}
		for _, k := range keys {
			input <- k
		}
	}()
}

func runConfirm(t *testing.T, timeout time.Duration, keys ...[]byte) (ConfirmState, string) {
	t.Helper()
	input := make(chan []byte, len(keys)+1)
	var out syncBuffer
	c := NewConfirmer(&out, input)
	c.SetTimeout(timeout)
	if len(keys) > 0 {
		feedAfterPrompt(&out, input, "Esc to deny", keys...)
	}
	state := c.Run(context.Background(), "irreversible git operation")
	return state, out.String()
}

func TestConfirmTypedToken(t *testing.T) {
	state, out := runConfirm(t, 2*time.Second, []byte("yes\r"))
	assert.Equal(t, StateConfirmed, state)
	assert.Contains(t, out, "CONFIRM REQUIRED")
	assert.Contains(t, out, "irreversible git operation")
}

func TestConfirmTokenAcrossKeystrokes(t *testing.T) {
	state, _ := runConfirm(t, 2*time.Second, []byte("y"), []byte("e"), []byte("s"), []byte("\r"))
	assert.Equal(t, StateConfirmed, state)
}

func TestConfirmWrongToken(t *testing.T) {
	state, _ := runConfirm(t, 2*time.Second, []byte("y\r"))
	assert.Equal(t, StateRejected, state)
}

func TestConfirmCaseSensitive(t *testing.T) {
	state, _ := runConfirm(t, 2*time.Second, []byte("YES\r"))
	assert.Equal(t, StateRejected, state)
}

func TestConfirmEscRejects(t *testing.T) {
	state, _ := runConfirm(t, 2*time.Second, []byte{0x1b})
	assert.Equal(t, StateRejected, state)
}

func TestConfirmCtrlCRejects(t *testing.T) {
	state, _ := runConfirm(t, 2*time.Second, []byte{0x03})
	assert.Equal(t, StateRejected, state)
}

func TestConfirmBackspace(t *testing.T) {
	// "yex" backspace "s" enter -> "yes"
	state, _ := runConfirm(t, 2*time.Second, []byte("yex"), []byte{0x7f}, []byte("s\r"))
	assert.Equal(t, StateConfirmed, state)
}

func TestConfirmIgnoresStaleKeystrokes(t *testing.T) {
	// Bytes routed while the verdict was still being computed must not
	// answer the confirmation prompt.
	input := make(chan []byte, 4)
	input <- []byte("no\r")

	var out syncBuffer
	c := NewConfirmer(&out, input)
	c.SetTimeout(2 * time.Second)
	feedAfterPrompt(&out, input, "Esc to deny", []byte("yes\r"))

	assert.Equal(t, StateConfirmed, c.Run(context.Background(), "reason"))
}

func TestConfirmTimeout(t *testing.T) {
	input := make(chan []byte)
	var out bytes.Buffer
	c := NewConfirmer(&out, input)
	c.SetTimeout(30 * time.Millisecond)

	start := time.Now()
	state := c.Run(context.Background(), "reason")
	assert.Equal(t, StateTimedOut, state)
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, out.String(), "timed out")
}

func TestConfirmContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := make(chan []byte)
	c := NewConfirmer(&bytes.Buffer{}, input)
	c.SetTimeout(time.Minute)

	assert.Equal(t, StateRejected, c.Run(ctx, "reason"))
}

func TestConfirmStateStrings(t *testing.T) {
	assert.Equal(t, "confirmed", StateConfirmed.String())
	assert.Equal(t, "timed-out", StateTimedOut.String())
	assert.Equal(t, "rejected", StateRejected.String())
}
