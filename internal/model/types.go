// Package model defines core data structures for Unleashed.
package model

import "time"

// ToolCategory classifies the operation an agent is asking permission for.
type ToolCategory string

const (
	// ToolUnclassified means no tool header could be recovered from the screen.
	ToolUnclassified ToolCategory = "unclassified"
	// ToolShellExec is an arbitrary shell command (Bash).
	ToolShellExec ToolCategory = "shell-exec"
	// ToolWrite creates or overwrites a file.
	ToolWrite ToolCategory = "write"
	// ToolEdit modifies an existing file in place.
	ToolEdit ToolCategory = "edit"
	// ToolReadOnly reads state without mutating it (Read, Glob, Grep, fetches).
	ToolReadOnly ToolCategory = "read-only"
)

// Decision is the outcome of evaluating a permission request.
//
// The zero value is DecisionUncertain so that a rule table which never
// matches falls through to the next evaluation tier rather than silently
// approving.
type Decision int

const (
	// DecisionUncertain means the local rules could not decide.
	DecisionUncertain Decision = iota
	// DecisionAllow approves the operation.
	DecisionAllow
	// DecisionEscalated blocks unless the operator types a confirmation token.
	DecisionEscalated
	// DecisionBlock denies the operation outright.
	DecisionBlock
	// DecisionJudgeError means the remote judge failed; callers fail open.
	DecisionJudgeError
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionEscalated:
		return "escalated"
	case DecisionBlock:
		return "block"
	case DecisionJudgeError:
		return "judge-error"
	default:
		return "uncertain"
	}
}

// Verdict is a Decision plus the evidence behind it.
type Verdict struct {
	Decision Decision
	// Reason is a human-readable explanation shown to the operator.
	Reason string
	// Rule names the local rule that fired, if any.
	Rule string
	// Tier is 1 for local rules, 2 for the remote judge, 3 for fail-open.
	Tier int
}

// Cardinality is the number of options a permission dialog offers.
type Cardinality int

const (
	// CardinalityBinary is a yes/no dialog; Enter accepts.
	CardinalityBinary Cardinality = 2
	// CardinalityTernary adds a "don't ask again" option.
	CardinalityTernary Cardinality = 3
)

// PermissionRequest describes a permission dialog detected on screen.
type PermissionRequest struct {
	Category    ToolCategory
	Cardinality Cardinality
	// Target is the shell command, file path, or URL the agent wants to act on.
	Target string
	// Context is the cleaned screen text surrounding the dialog.
	Context    string
	DetectedAt time.Time
}

// SessionStatus represents the current state of a PTY session.
type SessionStatus string

const (
	// SessionStatusIdle indicates the session is not running.
	SessionStatusIdle SessionStatus = "idle"
	// SessionStatusRunning indicates the session is active.
	SessionStatusRunning SessionStatus = "running"
	// SessionStatusStopped indicates the session has been stopped.
	SessionStatusStopped SessionStatus = "stopped"
	// SessionStatusError indicates the session encountered an error.
	SessionStatusError SessionStatus = "error"
)

// NotificationConfig holds notification settings.
type NotificationConfig struct {
	// Desktop enables desktop notifications via system APIs.
	Desktop bool `json:"desktop"`
	// WebhookURL is the optional URL to send webhook notifications.
	WebhookURL string `json:"webhook_url,omitempty"`
}
