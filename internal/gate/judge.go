package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/martymcenroe/unleashed/internal/model"
)

// Judge renders a remote safety verdict for requests the local rules
// could not decide.
type Judge interface {
	Judge(ctx context.Context, req model.PermissionRequest, dangerousPaths []string) model.Verdict
}

const judgeSystemPrompt = "You are a security gatekeeper for a development environment. " +
	"The user is a professional engineer running an autonomous coding agent with auto-approval. " +
	"You receive either a shell command or a file operation with a target path. " +
	"For shell commands: check for deletion outside project directories, secret exfiltration, " +
	"system modification, disk operations, or piping remote content to a shell. " +
	"For file operations: check the target path is within project directories and does not " +
	"overwrite system files, credentials, or configuration outside the working tree. " +
	"Reply exactly 'ALLOW' if safe, or 'BLOCK: <reason>' if dangerous."

const (
	defaultJudgeModel   = "claude-3-5-haiku-latest"
	defaultJudgeTimeout = 3 * time.Second
	maxArgChars         = 500
)

// ClaudeJudge implements Judge on top of the Anthropic API.
type ClaudeJudge struct {
	chat    einomodel.ChatModel
	workDir string
	timeout time.Duration
}

// NewClaudeJudge builds a judge using the given API key. modelName and
// timeout fall back to defaults when zero.
func NewClaudeJudge(ctx context.Context, apiKey, modelName, workDir string, timeout time.Duration) (*ClaudeJudge, error) {
	if modelName == "" {
		modelName = defaultJudgeModel
	}
	if timeout <= 0 {
		timeout = defaultJudgeTimeout
	}
	chat, err := claude.NewChatModel(ctx, &claude.Config{
		Model:     modelName,
		APIKey:    apiKey,
		MaxTokens: 200,
	})
	if err != nil {
		return nil, fmt.Errorf("init judge model: %w", err)
	}
	return &ClaudeJudge{chat: chat, workDir: workDir, timeout: timeout}, nil
}

// Judge sends the request to the model and parses its verdict. Any
// transport failure, timeout, or malformed reply yields
// DecisionJudgeError so the caller can fail open visibly.
func (j *ClaudeJudge) Judge(ctx context.Context, req model.PermissionRequest, dangerousPaths []string) model.Verdict {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	args := req.Target
	if len(args) > maxArgChars {
		args = args[:maxArgChars]
	}
	user := fmt.Sprintf("Tool category: %s\nCWD: %s\nSensitive paths: %s\nArgs: %s",
		req.Category, j.workDir, strings.Join(dangerousPaths, ", "), args)

	out, err := j.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(judgeSystemPrompt),
		schema.UserMessage(user),
	})
	if err != nil {
		return model.Verdict{
			Decision: model.DecisionJudgeError,
			Reason:   fmt.Sprintf("judge call failed: %v", err),
			Tier:     2,
		}
	}
	return parseVerdict(out.Content)
}

// parseVerdict interprets the model's reply. Replies outside the
// expected grammar are judge errors, not approvals.
func parseVerdict(reply string) model.Verdict {
	text := strings.TrimSpace(reply)
	switch {
	case strings.HasPrefix(text, "ALLOW"):
		return model.Verdict{Decision: model.DecisionAllow, Reason: "judge approved", Tier: 2}
	case strings.HasPrefix(text, "BLOCK"):
		reason := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(text, "BLOCK"), ":"))
		if reason == "" {
			reason = "judge blocked"
		}
		return model.Verdict{Decision: model.DecisionBlock, Reason: reason, Tier: 2}
	default:
		return model.Verdict{
			Decision: model.DecisionJudgeError,
			Reason:   fmt.Sprintf("malformed judge reply: %.80s", text),
			Tier:     2,
		}
	}
}
