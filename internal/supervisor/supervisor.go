// Package supervisor multiplexes operator I/O with a supervised agent
// PTY and drives the permission approval pipeline.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/martymcenroe/unleashed/internal/approve"
	"github.com/martymcenroe/unleashed/internal/detect"
	"github.com/martymcenroe/unleashed/internal/gate"
	"github.com/martymcenroe/unleashed/internal/model"
	"github.com/martymcenroe/unleashed/internal/notify"
	"github.com/martymcenroe/unleashed/internal/runtime"
	"github.com/martymcenroe/unleashed/internal/store"
)

const (
	// overlapSize is how many trailing bytes of the previous chunk are
	// prepended to the next one, so a dialog signature split across
	// two PTY reads still matches.
	overlapSize = 256
	// resizePollInterval is how often the operator terminal size is
	// compared against the PTY size.
	resizePollInterval = 500 * time.Millisecond
)

// Options configures a Supervisor.
type Options struct {
	Session  runtime.Session
	Tracker  *runtime.ScreenTracker
	Detector *detect.Detector
	Gate     *gate.Gate

	Stdin  io.Reader
	Stdout io.Writer

	// Transcript, Events, Dispatcher are optional.
	Transcript io.WriteCloser
	Events     store.Sink
	Dispatcher *notify.Dispatcher
	NotifyCfg  model.NotificationConfig

	Logger *log.Logger

	// Countdown delays auto-approvals; zero approves instantly.
	Countdown time.Duration
	// ConfirmTimeout bounds the typed-confirmation wait.
	ConfirmTimeout time.Duration
	// AnswerPauses enables auto-answering conversational questions.
	AnswerPauses bool

	// TermSize reports the operator terminal geometry for resize
	// propagation. Nil disables polling.
	TermSize func() (cols, rows int, err error)

	SessionID string
}

// Supervisor owns the I/O loops of one supervised session. All PTY
// output, operator input, and resize events funnel through a single
// dispatch loop; approval flows run in a worker goroutine guarded by
// the in-flight guard.
type Supervisor struct {
	opts      Options
	executor  *approve.Executor
	confirmer *approve.Confirmer
	guard     Guard

	inputCh  chan []byte
	routedCh chan []byte

	overlap  []byte
	lastCols int
	lastRows int
	started  time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Supervisor from options.
func New(opts Options) *Supervisor {
	if opts.Events == nil {
		opts.Events = store.NopSink{}
	}
	s := &Supervisor{
		opts:     opts,
		inputCh:  make(chan []byte, 64),
		routedCh: make(chan []byte, 16),
	}
	s.executor = approve.NewExecutor(opts.Session, opts.Stdout, s.routedCh, opts.Countdown)
	s.confirmer = approve.NewConfirmer(opts.Stdout, s.routedCh)
	if opts.ConfirmTimeout > 0 {
		s.confirmer.SetTimeout(opts.ConfirmTimeout)
	}
	return s
}

// Run drives the session until the agent exits or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()
	s.started = time.Now()

	s.opts.Events.Record(store.Record{
		Type:   store.EventSessionStart,
		Detail: s.opts.SessionID,
	})

	go s.readStdin()

	ticker := time.NewTicker(resizePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.finish("cancelled")
			return s.ctx.Err()
		case data, ok := <-s.opts.Session.Output():
			if !ok {
				s.finish("agent exited")
				return nil
			}
			s.handleOutput(data)
		case keys := <-s.inputCh:
			s.handleInput(keys)
		case <-ticker.C:
			s.pollResize()
		}
	}
}

// handleOutput displays a chunk, records it, then looks for dialogs.
// Display always comes first: supervision must never delay what the
// operator sees.
func (s *Supervisor) handleOutput(data []byte) {
	_, _ = s.opts.Stdout.Write(data)
	if s.opts.Transcript != nil {
		_, _ = s.opts.Transcript.Write(data)
	}
	s.opts.Tracker.Append(data)

	if s.guard.Held() {
		s.overlap = tailBytes(data, overlapSize)
		return
	}

	chunk := make([]byte, 0, len(s.overlap)+len(data))
	chunk = append(chunk, s.overlap...)
	chunk = append(chunk, data...)

	if req := s.opts.Detector.Detect(chunk); req != nil {
		s.overlap = nil
		if s.guard.TryAcquire() {
			go s.decide(*req)
		}
		return
	}

	if s.opts.AnswerPauses {
		if sig, ok := s.opts.Detector.DetectPause(chunk); ok {
			s.overlap = nil
			if s.guard.TryAcquire() {
				go s.answerPause(sig)
			}
			return
		}
	}

	s.overlap = tailBytes(data, overlapSize)
}

// handleInput forwards operator keystrokes to the agent, or to the
// approval flow while one is in progress.
func (s *Supervisor) handleInput(keys []byte) {
	if s.guard.Held() {
		select {
		case s.routedCh <- keys:
		default:
			// Flow is between reads; dropping beats blocking the loop.
		}
		return
	}
	if _, err := s.opts.Session.Write(keys); err != nil {
		s.logf("input write failed: %v", err)
	}
}

// decide runs the evaluation pipeline for one permission request. It
// owns the guard and releases it on every path.
func (s *Supervisor) decide(req model.PermissionRequest) {
	defer s.guard.Release()
	defer func() {
		if r := recover(); r != nil {
			s.logf("approval flow panic: %v", r)
		}
	}()

	s.logf("permission detected: category=%s cardinality=%d target=%.100s",
		req.Category, req.Cardinality, req.Target)
	s.opts.Events.Record(store.Record{
		Type:     store.EventDetection,
		Category: string(req.Category),
		Target:   req.Target,
	})

	if !s.opts.Gate.InScope(req.Category) {
		s.approveWith(req, "out of gate scope")
		return
	}

	start := time.Now()
	verdict := s.opts.Gate.Evaluate(s.ctx, req)
	s.opts.Events.Record(store.Record{
		Type:     store.EventVerdict,
		Category: string(req.Category),
		Target:   req.Target,
		Decision: verdict.Decision.String(),
		Rule:     verdict.Rule,
		Reason:   verdict.Reason,
		Detail:   fmt.Sprintf("tier=%d elapsed_ms=%d", verdict.Tier, time.Since(start).Milliseconds()),
	})

	switch verdict.Decision {
	case model.DecisionAllow:
		s.approveWith(req, verdict.Reason)

	case model.DecisionBlock:
		s.deny(req, verdict.Reason)

	case model.DecisionEscalated:
		s.escalate(req, verdict.Reason)

	default:
		// DecisionJudgeError, and defensively anything undecided:
		// fail open, but make it loud.
		s.executor.WarnFailOpen(verdict.Reason)
		s.notifyEvent(notify.EventFailOpen, "Judge unavailable",
			fmt.Sprintf("%s approved without verdict: %s", req.Category, verdict.Reason))
		s.approveWith(req, "fail-open: "+verdict.Reason)
	}
}

func (s *Supervisor) approveWith(req model.PermissionRequest, reason string) {
	done, err := s.executor.Approve(req)
	if err != nil {
		s.logf("approve failed: %v", err)
		s.opts.Events.Record(store.Record{Type: store.EventError, Detail: err.Error()})
		return
	}
	action := "approved"
	if !done {
		action = "countdown cancelled"
	}
	s.logf("%s: %s(%.100s) [%s]", action, req.Category, req.Target, reason)
	s.opts.Events.Record(store.Record{
		Type:     store.EventAction,
		Category: string(req.Category),
		Target:   req.Target,
		Decision: action,
		Reason:   reason,
	})
}

func (s *Supervisor) deny(req model.PermissionRequest, reason string) {
	if err := s.executor.Deny(reason); err != nil {
		s.logf("deny failed: %v", err)
	}
	s.logf("blocked: %s(%.100s): %s", req.Category, req.Target, reason)
	s.opts.Events.Record(store.Record{
		Type:     store.EventAction,
		Category: string(req.Category),
		Target:   req.Target,
		Decision: "blocked",
		Reason:   reason,
	})
	s.notifyEvent(notify.EventBlocked, "Operation blocked",
		fmt.Sprintf("%s: %s", req.Category, reason))
}

func (s *Supervisor) escalate(req model.PermissionRequest, reason string) {
	s.notifyEvent(notify.EventConfirmRequired, "Confirmation required",
		fmt.Sprintf("%s: %s", req.Category, reason))

	state := s.confirmer.Run(s.ctx, reason)
	s.opts.Events.Record(store.Record{
		Type:     store.EventAction,
		Category: string(req.Category),
		Target:   req.Target,
		Decision: "confirm " + state.String(),
		Reason:   reason,
	})

	if state == approve.StateConfirmed {
		if err := s.executor.ApproveNow(req); err != nil {
			s.logf("confirmed approve failed: %v", err)
		}
		s.logf("confirmed by operator: %s(%.100s)", req.Category, req.Target)
		return
	}
	if err := s.executor.Deny(fmt.Sprintf("%s (%s)", reason, state)); err != nil {
		s.logf("deny failed: %v", err)
	}
}

func (s *Supervisor) answerPause(signature string) {
	defer s.guard.Release()
	defer func() {
		if r := recover(); r != nil {
			s.logf("pause answer panic: %v", r)
		}
	}()

	s.logf("model pause: %q", signature)
	s.opts.Events.Record(store.Record{
		Type:   store.EventModelPause,
		Detail: signature,
	})
	if err := s.executor.AnswerPause(); err != nil {
		s.logf("pause answer failed: %v", err)
	}
}

func (s *Supervisor) readStdin() {
	buf := make([]byte, 1024)
	for {
		n, err := s.opts.Stdin.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case s.inputCh <- data:
			case <-s.ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Supervisor) pollResize() {
	if s.opts.TermSize == nil {
		return
	}
	cols, rows, err := s.opts.TermSize()
	if err != nil || cols <= 0 || rows <= 0 {
		return
	}
	if cols == s.lastCols && rows == s.lastRows {
		return
	}
	s.lastCols, s.lastRows = cols, rows
	if err := s.opts.Session.Resize(uint16(rows), uint16(cols)); err != nil {
		s.logf("resize failed: %v", err)
	}
	s.opts.Tracker.Resize(cols, rows)
}

func (s *Supervisor) finish(why string) {
	s.logf("session finished: %s", why)
	s.opts.Events.Record(store.Record{
		Type:   store.EventSessionEnd,
		Detail: why,
	})
	if s.opts.Transcript != nil {
		_ = s.opts.Transcript.Close()
	}
	s.notifyEvent(notify.EventSessionEnded, "Session ended", why)
}

func (s *Supervisor) notifyEvent(t notify.EventType, title, msg string) {
	if s.opts.Dispatcher == nil {
		return
	}
	s.opts.Dispatcher.Dispatch(s.ctx, s.opts.NotifyCfg, notify.Event{
		SessionID: s.opts.SessionID,
		Type:      t,
		Title:     title,
		Message:   msg,
		Timestamp: time.Now(),
	})
}

func (s *Supervisor) logf(format string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Printf(format, args...)
	}
}

// Started returns when Run began, for session summaries.
func (s *Supervisor) Started() time.Time {
	return s.started
}

func tailBytes(data []byte, n int) []byte {
	if len(data) <= n {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	out := make([]byte, n)
	copy(out, data[len(data)-n:])
	return out
}
