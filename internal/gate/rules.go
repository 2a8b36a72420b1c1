// Package gate evaluates permission requests against local rules and
// an optional remote judge.
package gate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/martymcenroe/unleashed/internal/model"
)

// RuleSet is the on-disk rule table. Every list is optional; missing
// lists fall back to the built-in defaults.
type RuleSet struct {
	// AlwaysBlocked commands are denied regardless of path context.
	AlwaysBlocked []string `yaml:"always_blocked"`
	// SafePrefixes are command patterns approved without escalation.
	SafePrefixes []string `yaml:"safe_prefixes"`
	// Destructive commands are allowed only when their target resolves
	// inside a safe path.
	Destructive []string `yaml:"destructive"`
	// GitIrreversible commands require typed operator confirmation.
	GitIrreversible []string `yaml:"git_irreversible"`
	// SafePaths are directories where destructive operations are allowed.
	SafePaths []string `yaml:"safe_paths"`
	// DangerousPaths are substrings that mark a target as sensitive.
	DangerousPaths []string `yaml:"dangerous_paths"`
}

// DefaultRuleSet returns the built-in rule table.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		AlwaysBlocked: []string{
			`(?i)^rm\s+(-[a-zA-Z]+\s+)*(/|~|\$HOME)\s*$`,
			`(?i)\bmkfs(\.\w+)?\b`,
			`\bdd\s+[^|]*\bof=/dev/`,
			`:\(\)\s*\{\s*:\|:&\s*\}\s*;\s*:`,
			`(?i)^(sudo\s+)?(shutdown|reboot|halt|poweroff)\b`,
			`(?i)\bchmod\s+(-[a-zA-Z]+\s+)*777\s+/\s*$`,
			`(?i)curl\s[^|]*\|\s*(ba|z)?sh\b`,
			`(?i)wget\s[^|]*\|\s*(ba|z)?sh\b`,
			`(?i)^sudo\s+rm\b`,
			`>\s*/dev/sd[a-z]`,
		},
		SafePrefixes: []string{
			`^(ls|dir|cat|head|tail|less|more|wc|file|stat|type)\b`,
			`^git\s+(status|log|diff|show|branch\s+--list|branch\s+-vv|remote|stash\s+list|tag|fetch|worktree\s+list)\b`,
			`^git\s+-C\s+\S+\s+(status|log|diff|show|branch|remote|stash|tag|fetch|worktree)\b`,
			`^git\s+(add|commit)\b`,
			`^(pwd|echo|printf|date|whoami|hostname|uname|env)\b`,
			`^(grep|rg|find|fd|ag)\b`,
			`^(python3?|node|npm|npx|poetry|pip3?|go|cargo)\s+(--version|--help|version|help)\b`,
			`^poetry\s+(run|install|add|show|lock)\b`,
			`^(pytest|go\s+(build|test|vet|fmt)|npm\s+(test|run\s+\S+))\b`,
			`^(cd|pushd|popd|mkdir|touch)\b`,
			`^gh\s+(issue|pr|repo|api)\s+(list|view|status)\b`,
			`^tree\b`,
			`^which\b`,
			`^diff\b`,
		},
		Destructive: []string{
			`^rm\s`,
			`^rmdir\b`,
			`^shred\b`,
			`^truncate\s`,
			`^mv\s`,
			`^git\s+checkout\s+--\s`,
		},
		GitIrreversible: []string{
			`^git\s+push\s+.*--force\b`,
			`^git\s+push\s+(\S+\s+)*-f\b`,
			`^git\s+reset\s+--hard\b`,
			`^git\s+clean\s+-[a-zA-Z]*f`,
			`^git\s+push\s+.*--delete\b`,
			`^git\s+branch\s+-D\b`,
			`^git\s+filter-branch\b`,
			`^git\s+rebase\s`,
		},
		SafePaths: nil, // filled with the working directory at load
		DangerousPaths: []string{
			"/etc/", "/usr/", "/boot/", "/var/", "/System/",
			".ssh/", ".aws/", ".gnupg/", ".kube/",
			"id_rsa", "id_ed25519", "credentials", ".env",
			"OneDrive", "AppData",
		},
	}
}

// LocalRules is a compiled RuleSet ready for evaluation.
type LocalRules struct {
	alwaysBlocked   []*regexp.Regexp
	safePrefixes    []*regexp.Regexp
	destructive     []*regexp.Regexp
	gitIrreversible []*regexp.Regexp
	safePaths       []string
	dangerousPaths  []string
}

// LoadRules reads the rule table from path and compiles it. A missing
// file yields the defaults. workDir is always treated as a safe path.
func LoadRules(path, workDir string) (*LocalRules, error) {
	rs := DefaultRuleSet()
	if data, err := os.ReadFile(path); err == nil {
		var loaded RuleSet
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("parse rules %s: %w", path, err)
		}
		rs = merge(rs, loaded)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return Compile(rs, workDir)
}

// merge overlays non-empty lists from loaded onto base.
func merge(base, loaded RuleSet) RuleSet {
	if len(loaded.AlwaysBlocked) > 0 {
		base.AlwaysBlocked = loaded.AlwaysBlocked
	}
	if len(loaded.SafePrefixes) > 0 {
		base.SafePrefixes = loaded.SafePrefixes
	}
	if len(loaded.Destructive) > 0 {
		base.Destructive = loaded.Destructive
	}
	if len(loaded.GitIrreversible) > 0 {
		base.GitIrreversible = loaded.GitIrreversible
	}
	if len(loaded.SafePaths) > 0 {
		base.SafePaths = loaded.SafePaths
	}
	if len(loaded.DangerousPaths) > 0 {
		base.DangerousPaths = loaded.DangerousPaths
	}
	return base
}

// Compile compiles a RuleSet. Malformed patterns are skipped rather
// than failing the whole table; an operator typo must not disable the
// gate.
func Compile(rs RuleSet, workDir string) (*LocalRules, error) {
	r := &LocalRules{
		dangerousPaths: rs.DangerousPaths,
	}
	r.alwaysBlocked = compileAll(rs.AlwaysBlocked)
	r.safePrefixes = compileAll(rs.SafePrefixes)
	r.destructive = compileAll(rs.Destructive)
	r.gitIrreversible = compileAll(rs.GitIrreversible)

	for _, p := range rs.SafePaths {
		r.safePaths = append(r.safePaths, normalizePath(expandHome(p)))
	}
	if workDir != "" {
		r.safePaths = append(r.safePaths, normalizePath(workDir))
	}
	if home, err := os.UserHomeDir(); err == nil {
		r.safePaths = append(r.safePaths, normalizePath(filepath.Join(home, "Projects")))
	}
	return r, nil
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

// CheckCommand evaluates a shell command. See Gate.Evaluate for how
// the verdict is consumed.
func (r *LocalRules) CheckCommand(command, cwd string) model.Verdict {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return model.Verdict{Decision: model.DecisionUncertain, Tier: 1}
	}

	for _, re := range r.gitIrreversible {
		if re.MatchString(cmd) {
			return model.Verdict{
				Decision: model.DecisionEscalated,
				Reason:   "irreversible git operation",
				Rule:     re.String(),
				Tier:     1,
			}
		}
	}

	for _, re := range r.alwaysBlocked {
		if re.MatchString(cmd) {
			return model.Verdict{
				Decision: model.DecisionBlock,
				Reason:   "matches always-blocked pattern",
				Rule:     re.String(),
				Tier:     1,
			}
		}
	}

	for _, re := range r.safePrefixes {
		if re.MatchString(cmd) {
			return model.Verdict{
				Decision: model.DecisionAllow,
				Reason:   "safe command pattern",
				Rule:     re.String(),
				Tier:     1,
			}
		}
	}

	for _, re := range r.destructive {
		if !re.MatchString(cmd) {
			continue
		}
		target, ok := targetPath(cmd, cwd)
		if !ok {
			return model.Verdict{
				Decision: model.DecisionBlock,
				Reason:   "destructive command with undeterminable target",
				Rule:     re.String(),
				Tier:     1,
			}
		}
		if r.withinSafePath(target) {
			return model.Verdict{
				Decision: model.DecisionAllow,
				Reason:   fmt.Sprintf("destructive within safe path: %s", target),
				Rule:     re.String(),
				Tier:     1,
			}
		}
		return model.Verdict{
			Decision: model.DecisionBlock,
			Reason:   fmt.Sprintf("destructive outside safe paths: %s", target),
			Rule:     re.String(),
			Tier:     1,
		}
	}

	return model.Verdict{Decision: model.DecisionUncertain, Tier: 1}
}

// CheckPath evaluates a file target for write, edit, and read
// categories. Sensitive paths escalate to typed confirmation; anything
// else is approved, since file tools cannot leave the machine.
func (r *LocalRules) CheckPath(path string) model.Verdict {
	normalized := normalizePath(expandHome(path))

	for _, danger := range r.dangerousPaths {
		if strings.Contains(normalized, strings.ToLower(danger)) {
			return model.Verdict{
				Decision: model.DecisionEscalated,
				Reason:   fmt.Sprintf("sensitive path: %s", danger),
				Rule:     danger,
				Tier:     1,
			}
		}
	}
	return model.Verdict{
		Decision: model.DecisionAllow,
		Reason:   "file target outside sensitive paths",
		Tier:     1,
	}
}

// DangerousPaths returns the sensitive path markers, for inclusion in
// the remote judge prompt.
func (r *LocalRules) DangerousPaths() []string {
	return r.dangerousPaths
}

func (r *LocalRules) withinSafePath(path string) bool {
	normalized := normalizePath(path)
	for _, safe := range r.safePaths {
		if strings.HasPrefix(normalized, safe) {
			return true
		}
	}
	return false
}

// targetPath extracts the path a destructive command operates on:
// the last argument that is not a flag, resolved against cwd.
func targetPath(cmd, cwd string) (string, bool) {
	fields := strings.Fields(cmd)
	if len(fields) < 2 {
		return "", false
	}
	for i := len(fields) - 1; i >= 1; i-- {
		f := fields[i]
		if strings.HasPrefix(f, "-") {
			continue
		}
		f = strings.Trim(f, `"'`)
		if f == "" {
			continue
		}
		// Globs and shell syntax make the target undeterminable.
		if strings.ContainsAny(f, "*?$`|;&") {
			return "", false
		}
		f = expandHome(f)
		if !filepath.IsAbs(f) {
			if cwd == "" {
				return "", false
			}
			f = filepath.Join(cwd, f)
		}
		return filepath.Clean(f), true
	}
	return "", false
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// normalizePath lowercases and forward-slashes a path so prefix and
// substring checks behave the same on every platform.
func normalizePath(path string) string {
	return strings.ToLower(strings.ReplaceAll(filepath.Clean(path), `\`, "/"))
}
