package gate

import (
	"context"
	"sync"

	"github.com/martymcenroe/unleashed/internal/model"
)

// Scope names which tool categories the gate evaluates. Categories
// outside the scope are approved without evaluation.
type Scope string

const (
	// ScopeBash gates shell commands only.
	ScopeBash Scope = "bash"
	// ScopeWrite gates shell commands plus file writes and edits.
	ScopeWrite Scope = "write"
	// ScopeAll gates every category.
	ScopeAll Scope = "all"
)

// Covers reports whether the scope includes the given category.
// Unclassified requests are always covered: a dialog whose tool could
// not be identified must not bypass the gate.
func (s Scope) Covers(cat model.ToolCategory) bool {
	if cat == model.ToolUnclassified {
		return true
	}
	switch s {
	case ScopeBash:
		return cat == model.ToolShellExec
	case ScopeWrite:
		return cat == model.ToolShellExec || cat == model.ToolWrite || cat == model.ToolEdit
	case ScopeAll:
		return true
	default:
		return cat == model.ToolShellExec
	}
}

// Stats counts verdicts by tier and outcome.
type Stats struct {
	LocalAllow  int
	LocalBlock  int
	LocalEscl   int
	JudgeAllow  int
	JudgeBlock  int
	JudgeErrors int
	Skipped     int
}

// Total returns the number of handled requests.
func (s Stats) Total() int {
	return s.LocalAllow + s.LocalBlock + s.LocalEscl + s.JudgeAllow + s.JudgeBlock + s.JudgeErrors + s.Skipped
}

// Gate runs the tiered safety evaluation: local rules first, then the
// remote judge for anything the rules could not decide.
type Gate struct {
	rules   *LocalRules
	judge   Judge
	scope   Scope
	workDir string

	statsMu sync.Mutex
	stats   Stats
}

// New creates a Gate. judge may be nil, in which case undecided
// requests surface as judge errors and fail open at the caller.
func New(rules *LocalRules, judge Judge, scope Scope, workDir string) *Gate {
	if scope == "" {
		scope = ScopeBash
	}
	return &Gate{rules: rules, judge: judge, scope: scope, workDir: workDir}
}

// InScope reports whether the gate evaluates this category at all.
func (g *Gate) InScope(cat model.ToolCategory) bool {
	if !g.scope.Covers(cat) {
		g.statsMu.Lock()
		g.stats.Skipped++
		g.statsMu.Unlock()
		return false
	}
	return true
}

// Evaluate returns a verdict for the request. The result is never
// DecisionUncertain: undecided local verdicts either go to the judge
// or come back as DecisionJudgeError.
func (g *Gate) Evaluate(ctx context.Context, req model.PermissionRequest) model.Verdict {
	v := g.local(req)
	if v.Decision != model.DecisionUncertain {
		g.record(v)
		return v
	}

	if g.judge == nil {
		v = model.Verdict{
			Decision: model.DecisionJudgeError,
			Reason:   "no judge configured",
			Tier:     2,
		}
		g.record(v)
		return v
	}

	v = g.judge.Judge(ctx, req, g.rules.DangerousPaths())
	if v.Decision == model.DecisionUncertain {
		v = model.Verdict{
			Decision: model.DecisionJudgeError,
			Reason:   "judge returned no decision",
			Tier:     2,
		}
	}
	g.record(v)
	return v
}

func (g *Gate) record(v model.Verdict) {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()
	switch {
	case v.Tier == 1 && v.Decision == model.DecisionAllow:
		g.stats.LocalAllow++
	case v.Tier == 1 && v.Decision == model.DecisionBlock:
		g.stats.LocalBlock++
	case v.Tier == 1 && v.Decision == model.DecisionEscalated:
		g.stats.LocalEscl++
	case v.Decision == model.DecisionAllow:
		g.stats.JudgeAllow++
	case v.Decision == model.DecisionBlock:
		g.stats.JudgeBlock++
	case v.Decision == model.DecisionJudgeError:
		g.stats.JudgeErrors++
	}
}

func (g *Gate) local(req model.PermissionRequest) model.Verdict {
	switch req.Category {
	case model.ToolWrite, model.ToolEdit, model.ToolReadOnly:
		return g.rules.CheckPath(req.Target)
	default:
		// Shell commands and unclassified requests get the strictest
		// rule path.
		return g.rules.CheckCommand(req.Target, g.workDir)
	}
}

// Stats returns a snapshot of the verdict counters.
func (g *Gate) Stats() Stats {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()
	return g.stats
}
