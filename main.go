// Unleashed - supervised auto-approval for interactive coding agents.
// Wraps an agent CLI in a PTY, answers its permission dialogs, and
// gates dangerous operations behind local rules and a remote judge.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/martymcenroe/unleashed/internal/app"
	"github.com/martymcenroe/unleashed/internal/detect"
	"github.com/martymcenroe/unleashed/internal/gate"
	"github.com/martymcenroe/unleashed/internal/notify"
	"github.com/martymcenroe/unleashed/internal/runtime"
	"github.com/martymcenroe/unleashed/internal/store"
	"github.com/martymcenroe/unleashed/internal/supervisor"
)

const (
	appName    = "unleashed"
	appVersion = "0.1.0"

	// termReset restores colors, cursor visibility, and mouse modes the
	// agent may leave enabled; the trailing RIS fully reinitializes.
	termReset = "\033[0m\033[?25h\033[?1000l\033[?1002l\033[?1003l\033[?1006l\033c"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		workDir   = flag.String("cwd", "", "working directory for the agent (default: current)")
		scope     = flag.String("scope", "", "gate scope: bash, write, or all (default: config)")
		countdown = flag.Int("countdown", -1, "approval countdown seconds, 0 disables (default: config)")
		noJudge   = flag.Bool("no-judge", false, "disable the remote judge tier")
		version   = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s %s\n", appName, appVersion)
		return 0
	}

	configDir := app.ConfigDir()
	config, err := app.LoadConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	if *scope != "" {
		config.GateScope = *scope
	}
	if *countdown >= 0 {
		config.CountdownSecs = *countdown
	}

	cwd := *workDir
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			fmt.Fprintf(os.Stderr, "Error getting working directory: %v\n", err)
			return 1
		}
	}

	agentPath := config.AgentPath
	if agentPath == "" {
		agentPath = app.DetectAgentPath()
	}
	if !app.ValidateAgentPath(agentPath) {
		fmt.Fprintf(os.Stderr, "Error: agent executable not found; set agent_path in %s\n",
			app.ConfigPath(configDir))
		return 1
	}

	logger, logCloser, err := app.OpenLogger(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		return 1
	}
	defer logCloser.Close()
	logger.Printf("%s %s starting in %s (scope=%s)", appName, appVersion, cwd, config.GateScope)

	sessionID := uuid.NewString()

	var events store.Sink
	if sink, err := store.NewJSONLSink(app.LogDir(configDir), sessionID); err != nil {
		logger.Printf("event sink disabled: %v", err)
		events = store.NopSink{}
	} else {
		events = sink
	}
	defer events.Close()

	var transcript *store.Transcript
	if config.Transcript {
		if transcript, err = store.NewTranscript(app.LogDir(configDir)); err != nil {
			logger.Printf("transcript disabled: %v", err)
			transcript = nil
		}
	}

	rules, err := gate.LoadRules(app.RulesPath(configDir), cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading rules: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var judge gate.Judge
	if !*noJudge {
		if key := os.Getenv(config.JudgeKeyEnv); key != "" {
			j, err := gate.NewClaudeJudge(ctx, key, config.JudgeModel, cwd,
				time.Duration(config.JudgeTimeoutSecs)*time.Second)
			if err != nil {
				logger.Printf("judge disabled: %v", err)
			} else {
				judge = j
			}
		} else {
			logger.Printf("judge disabled: %s not set", config.JudgeKeyEnv)
		}
	}

	g := gate.New(rules, judge, gate.Scope(config.GateScope), cwd)

	cols, rows, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		cols, rows = 120, 40
	}

	tracker := runtime.NewScreenTracker(cols, rows)
	detector := detect.NewDetector(tracker)

	agentArgs := append(append([]string{}, config.AgentArgs...), flag.Args()...)
	cmd := exec.Command(agentPath, agentArgs...)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "UNLEASHED=1")

	session := runtime.NewPTYSession(sessionID, cmd)
	session.SetInitialSize(rows, cols)

	// Raw mode after sizing: querying the size post-change can race
	// and wedge the agent's TUI layout on startup.
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error entering raw mode: %v\n", err)
		return 1
	}
	restore := func() {
		_ = term.Restore(int(os.Stdin.Fd()), oldState)
		fmt.Print(termReset)
	}
	defer restore()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := session.Start(ctx); err != nil {
		restore()
		fmt.Fprintf(os.Stderr, "Error starting agent: %v\n", err)
		return 1
	}
	defer session.Stop()

	var transcriptWC io.WriteCloser
	transcriptPath := ""
	if transcript != nil {
		transcriptWC = transcript
		transcriptPath = transcript.Path()
	}

	sup := supervisor.New(supervisor.Options{
		Session:        session,
		Tracker:        tracker,
		Detector:       detector,
		Gate:           g,
		Stdin:          os.Stdin,
		Stdout:         os.Stdout,
		Transcript:     transcriptWC,
		Events:         events,
		Dispatcher:     notify.NewDispatcher(),
		NotifyCfg:      config.Notifications,
		Logger:         logger,
		Countdown:      time.Duration(config.CountdownSecs) * time.Second,
		ConfirmTimeout: time.Duration(config.ConfirmTimeoutSecs) * time.Second,
		AnswerPauses:   config.AnswerPauses,
		TermSize: func() (int, int, error) {
			return term.GetSize(int(os.Stdin.Fd()))
		},
		SessionID: sessionID,
	})

	runErr := sup.Run(ctx)
	restore()

	summary := supervisor.Summary{
		SessionID:      sessionID,
		Duration:       time.Since(sup.Started()),
		Stats:          g.Stats(),
		TranscriptPath: transcriptPath,
	}
	summary.Prompts = summary.Stats.Total()
	if sink, ok := events.(*store.JSONLSink); ok {
		summary.EventsPath = sink.Path()
	}
	fmt.Println(summary.Render())

	if runErr != nil && runErr != context.Canceled {
		fmt.Fprintf(os.Stderr, "Session error: %v\n", runErr)
		return 1
	}
	if code, ok := session.ExitCode(); ok && code > 0 {
		return code
	}
	return 0
}
