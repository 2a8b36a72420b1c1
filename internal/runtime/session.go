// Package runtime provides PTY session management and process control.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/aymanbagabas/go-pty"

	"github.com/martymcenroe/unleashed/internal/model"
)

// Session represents a PTY session for an AI agent process.
type Session interface {
	// ID returns the session's unique identifier.
	ID() string
	// Start launches the PTY process.
	Start(ctx context.Context) error
	// Stop terminates the PTY process.
	Stop() error
	// Write sends data to the PTY stdin.
	Write(data []byte) (int, error)
	// Output returns the channel for receiving PTY output.
	Output() <-chan []byte
	// Status returns the current session status.
	Status() model.SessionStatus
	// Resize updates the PTY terminal size.
	Resize(rows, cols uint16) error
}

// PTYSession implements Session on top of go-pty.
type PTYSession struct {
	id          string
	cmd         *exec.Cmd
	pCmd        *pty.Cmd
	ptmx        pty.Pty
	output      chan []byte
	done        chan struct{}
	status      model.SessionStatus
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	exitErr     error
	initialRows uint16
	initialCols uint16
}

// NewPTYSession creates a new PTY session wrapping the given command.
func NewPTYSession(id string, cmd *exec.Cmd) *PTYSession {
	return &PTYSession{
		id:          id,
		cmd:         cmd,
		output:      make(chan []byte, 256),
		done:        make(chan struct{}),
		status:      model.SessionStatusIdle,
		initialRows: 24,
		initialCols: 80,
	}
}

// SetInitialSize sets the PTY size applied at Start.
func (s *PTYSession) SetInitialSize(rows, cols int) {
	if rows > 0 {
		s.initialRows = uint16(rows)
	}
	if cols > 0 {
		s.initialCols = uint16(cols)
	}
}

// ID returns the session identifier.
func (s *PTYSession) ID() string {
	return s.id
}

// Start launches the PTY process.
func (s *PTYSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == model.SessionStatusRunning {
		return errors.New("session already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	ptmx, err := pty.New()
	if err != nil {
		s.status = model.SessionStatusError
		return fmt.Errorf("failed to create pty: %w", err)
	}
	s.ptmx = ptmx

	// Resize before starting the child so the agent's TUI lays out
	// correctly from the first frame. pty.Resize takes (cols, rows).
	_ = s.ptmx.Resize(int(s.initialCols), int(s.initialRows))

	var args []string
	if len(s.cmd.Args) > 1 {
		args = s.cmd.Args[1:]
	}

	// The pty.Pty interface does not expose Command directly; both
	// platform implementations provide it.
	commander, ok := ptmx.(interface {
		Command(string, ...string) *pty.Cmd
	})
	if !ok {
		s.status = model.SessionStatusError
		return errors.New("pty implementation does not support command creation")
	}
	s.pCmd = commander.Command(s.cmd.Path, args...)
	s.pCmd.Env = s.cmd.Env
	s.pCmd.Dir = s.cmd.Dir

	if err := s.pCmd.Start(); err != nil {
		s.status = model.SessionStatusError
		wrapped := fmt.Errorf("start failed: %s: %w", formatCmd(s.cmd), err)
		s.exitErr = wrapped
		return wrapped
	}
	s.status = model.SessionStatusRunning

	go s.readLoop()
	go s.waitLoop()

	return nil
}

func formatCmd(cmd *exec.Cmd) string {
	if cmd == nil {
		return ""
	}
	if len(cmd.Args) > 0 {
		return strings.Join(cmd.Args, " ")
	}
	return cmd.Path
}

// readLoop continuously reads from the PTY and sends to the output channel.
func (s *PTYSession) readLoop() {
	buf := make([]byte, 4096)
	for {
		select {
		case <-s.done:
			return
		default:
			n, err := s.ptmx.Read(buf)
			if err != nil {
				// EOF or error - process likely ended
				s.mu.Lock()
				if s.status == model.SessionStatusRunning {
					s.status = model.SessionStatusStopped
				}
				s.mu.Unlock()
				close(s.output)
				return
			}
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])

				// Non-blocking send; drop oldest on a full channel so a
				// stalled consumer never wedges the child process.
				select {
				case s.output <- data:
				default:
					select {
					case <-s.output:
					default:
					}
					s.output <- data
				}
			}
		}
	}
}

// waitLoop monitors process exit.
func (s *PTYSession) waitLoop() {
	if s.pCmd == nil {
		return
	}
	err := s.pCmd.Wait()
	s.mu.Lock()
	s.exitErr = err
	if s.status == model.SessionStatusRunning {
		s.status = model.SessionStatusStopped
	}
	s.mu.Unlock()
}

// Stop terminates the PTY process.
func (s *PTYSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SessionStatusRunning {
		return nil
	}

	close(s.done)

	if s.cancel != nil {
		s.cancel()
	}

	// Closing the PTY terminates the child on most platforms.
	if s.ptmx != nil {
		s.ptmx.Close()
	}

	if s.pCmd != nil && s.pCmd.Process != nil {
		s.pCmd.Process.Kill()
	}

	s.status = model.SessionStatusStopped
	return nil
}

// Write sends data to PTY stdin.
func (s *PTYSession) Write(data []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status != model.SessionStatusRunning {
		return 0, errors.New("session not running")
	}

	if s.ptmx == nil {
		return 0, errors.New("pty not initialized")
	}

	return s.ptmx.Write(data)
}

// Output returns the output channel. It is closed when the child's
// output stream ends.
func (s *PTYSession) Output() <-chan []byte {
	return s.output
}

// Status returns the current status.
func (s *PTYSession) Status() model.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Alive reports whether the child process is still running.
func (s *PTYSession) Alive() bool {
	return s.Status() == model.SessionStatusRunning
}

// Resize changes the PTY terminal size.
func (s *PTYSession) Resize(rows, cols uint16) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ptmx == nil {
		return errors.New("pty not initialized")
	}

	return s.ptmx.Resize(int(cols), int(rows))
}

// ExitError returns the process exit error, if any.
func (s *PTYSession) ExitError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exitErr
}

// ExitCode returns the child's exit code once it has stopped. The second
// return is false while the child is still running or never started.
func (s *PTYSession) ExitCode() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status == model.SessionStatusRunning || s.pCmd == nil {
		return 0, false
	}
	if s.exitErr == nil {
		return 0, true
	}
	var exitErr *exec.ExitError
	if errors.As(s.exitErr, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return -1, true
}
