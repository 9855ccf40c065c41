// Package objective executes natural-language objectives with a single model
// call, and flows (scripted shell sessions stored in the VFS).
package objective

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/metrics"
	"github.com/steveyegge/vos/internal/types"
	"github.com/steveyegge/vos/internal/vfs"
)

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "claude-sonnet-4-5-20250929"
	// DefaultMaxTokens bounds the response length.
	DefaultMaxTokens = 4096
	// FlowExt is appended to flow references without an extension.
	FlowExt = ".flow"
)

// ErrNoAPIKey is returned by ExecuteObjective when no model client is configured.
var ErrNoAPIKey = errors.New("ANTHROPIC_API_KEY not set: objective execution is unavailable")

// Shell runs flow steps.
type Shell interface {
	Execute(ctx context.Context, line string) types.ShellResult
}

// Completion is the text and token usage of one model call.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Completer performs a single model call.
type Completer interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// Config configures a Runner.
type Config struct {
	APIKey       string
	Model        string
	MaxTokens    int64
	SystemPrompt string
	// User selects the default flow directory /home/<user>/.flows.
	User  string
	Retry RetryConfig
	// MaxConcurrentCalls limits simultaneous model calls (default 1).
	MaxConcurrentCalls int64
}

// Runner implements the scheduler's objective capability.
type Runner struct {
	fs        *vfs.FS
	shell     Shell
	completer Completer
	flowDir   string
	retry     RetryConfig
	breaker   *circuitBreaker
	sem       *semaphore.Weighted
	log       *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithCompleter replaces the Anthropic client.
func WithCompleter(c Completer) Option {
	return func(r *Runner) { r.completer = c }
}

// New creates a runner. The Anthropic client is built from cfg.APIKey or
// ANTHROPIC_API_KEY; without either, ExecuteObjective returns ErrNoAPIKey.
func New(fs *vfs.FS, shell Shell, cfg Config, opts ...Option) *Runner {
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = DefaultRetryConfig()
	}
	if retry.Timeout <= 0 {
		retry.Timeout = DefaultRetryConfig().Timeout
	}
	if retry.BackoffMultiplier < 1 {
		retry.BackoffMultiplier = 1
	}
	calls := cfg.MaxConcurrentCalls
	if calls <= 0 {
		calls = 1
	}
	user := cfg.User
	if user == "" {
		user = "user"
	}
	r := &Runner{
		fs:      fs,
		shell:   shell,
		flowDir: "/home/" + user + "/.flows",
		retry:   retry,
		breaker: &circuitBreaker{threshold: retry.FailureThreshold, openTimeout: retry.OpenTimeout, now: time.Now},
		sem:     semaphore.NewWeighted(calls),
		log:     logging.Named("objective"),
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey != "" {
		r.completer = NewAnthropicCompleter(apiKey, cfg.Model, cfg.MaxTokens, cfg.SystemPrompt)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetShell binds the shell used for flows after construction.
func (r *Runner) SetShell(s Shell) {
	r.shell = s
}

// ExecuteObjective sends the objective as a single user message and
// returns the response text.
func (r *Runner) ExecuteObjective(ctx context.Context, objective string) (string, error) {
	if strings.TrimSpace(objective) == "" {
		return "", errors.New("objective is empty")
	}
	if r.completer == nil {
		metrics.RecordObjective("objective", false)
		return "", ErrNoAPIKey
	}

	start := time.Now()
	var completion Completion
	err := r.retryWithBackoff(ctx, "objective", func(attemptCtx context.Context) error {
		c, err := r.completer.Complete(attemptCtx, objective)
		if err != nil {
			return err
		}
		completion = c
		return nil
	})
	metrics.RecordObjective("objective", err == nil)
	if err != nil {
		return "", fmt.Errorf("objective failed: %w", err)
	}
	metrics.RecordObjectiveTokens(completion.InputTokens, completion.OutputTokens)
	r.log.Info("objective completed",
		zap.Int64("input_tokens", completion.InputTokens),
		zap.Int64("output_tokens", completion.OutputTokens),
		zap.Duration("duration", time.Since(start)))
	return completion.Text, nil
}

// FlowPath maps a flow reference to its VFS path: absolute paths are used
// as-is, bare names live in the flow directory with FlowExt appended.
func (r *Runner) FlowPath(ref string) string {
	if strings.HasPrefix(ref, "/") {
		return vfs.Clean(ref)
	}
	if !strings.HasSuffix(ref, FlowExt) {
		ref += FlowExt
	}
	return vfs.Resolve(r.flowDir, ref)
}

// ExecuteFlow runs each non-blank, non-comment line of the flow through the
// shell and stops at the first non-zero exit.
func (r *Runner) ExecuteFlow(ctx context.Context, ref string) (string, error) {
	if r.shell == nil {
		return "", errors.New("no shell configured for flows")
	}
	p := r.FlowPath(ref)
	data, err := r.fs.ReadFile(p)
	if err != nil {
		metrics.RecordObjective("flow", false)
		return "", fmt.Errorf("flow %s: %w", ref, err)
	}

	var out strings.Builder
	step := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		step++
		res := r.shell.Execute(ctx, line)
		out.WriteString(res.Stdout)
		if !res.OK() {
			metrics.RecordObjective("flow", false)
			r.log.Warn("flow step failed",
				zap.String("flow", p),
				zap.Int("step", step),
				zap.String("command", line),
				zap.Int("exit_code", res.ExitCode))
			return out.String(), fmt.Errorf("flow %s: step %d (%s) exited %d: %s",
				ref, step, line, res.ExitCode, strings.TrimSpace(res.Stderr))
		}
	}
	metrics.RecordObjective("flow", true)
	r.log.Info("flow completed", zap.String("flow", p), zap.Int("steps", step))
	return out.String(), nil
}

// AnthropicCompleter calls the Messages API.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    string
}

// NewAnthropicCompleter creates a completer for the given key and model.
func NewAnthropicCompleter(apiKey, model string, maxTokens int64, system string) *AnthropicCompleter {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicCompleter{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
		system:    system,
	}
}

// Complete implements Completer.
func (c *AnthropicCompleter) Complete(ctx context.Context, prompt string) (Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.system}}
	}
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, err
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Completion{
		Text:         text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
