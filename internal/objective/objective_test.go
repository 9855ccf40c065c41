package objective

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/vos/internal/types"
	"github.com/steveyegge/vos/internal/vfs"
)

type scriptedCompleter struct {
	errs    []error
	calls   int
	prompts []string
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (Completion, error) {
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return Completion{}, err
		}
	}
	return Completion{Text: "answer to " + prompt, InputTokens: 10, OutputTokens: 20}, nil
}

type recordingShell struct {
	lines []string
}

func (s *recordingShell) Execute(_ context.Context, line string) types.ShellResult {
	s.lines = append(s.lines, line)
	if line == "false" {
		return types.Failure(1, "false: failed\n")
	}
	return types.Success("out:" + line + "\n")
}

func apiError(code int) *anthropic.Error {
	req, _ := http.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	return &anthropic.Error{
		StatusCode: code,
		Request:    req,
		Response:   &http.Response{StatusCode: code, Request: req},
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 2,
		Timeout:           time.Second,
		FailureThreshold:  10,
		OpenTimeout:       time.Minute,
	}
}

func TestExecuteObjectiveWithoutKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	r := New(vfs.New(), nil, Config{})
	_, err := r.ExecuteObjective(context.Background(), "do something")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestExecuteObjective(t *testing.T) {
	c := &scriptedCompleter{}
	r := New(vfs.New(), nil, Config{Retry: fastRetry()}, WithCompleter(c))
	out, err := r.ExecuteObjective(context.Background(), "summarize the repo")
	require.NoError(t, err)
	assert.Equal(t, "answer to summarize the repo", out)
	assert.Equal(t, []string{"summarize the repo"}, c.prompts)

	_, err = r.ExecuteObjective(context.Background(), "  ")
	assert.Error(t, err)
	assert.Equal(t, 1, c.calls)
}

func TestExecuteObjectiveRetriesTransientErrors(t *testing.T) {
	c := &scriptedCompleter{errs: []error{
		apiError(http.StatusServiceUnavailable),
		apiError(http.StatusTooManyRequests),
	}}
	r := New(vfs.New(), nil, Config{Retry: fastRetry()}, WithCompleter(c))
	out, err := r.ExecuteObjective(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "answer to x", out)
	assert.Equal(t, 3, c.calls)
}

func TestExecuteObjectiveGivesUp(t *testing.T) {
	transient := errors.New("connection reset by peer")
	c := &scriptedCompleter{errs: []error{transient, transient, transient, transient}}
	r := New(vfs.New(), nil, Config{Retry: fastRetry()}, WithCompleter(c))
	_, err := r.ExecuteObjective(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, c.calls)
}

func TestExecuteObjectiveNonRetriable(t *testing.T) {
	c := &scriptedCompleter{errs: []error{apiError(http.StatusUnauthorized)}}
	r := New(vfs.New(), nil, Config{Retry: fastRetry()}, WithCompleter(c))
	_, err := r.ExecuteObjective(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, 1, c.calls)
}

func TestCircuitBreakerOpens(t *testing.T) {
	transient := errors.New("request timeout")
	retry := fastRetry()
	retry.MaxRetries = 0
	retry.FailureThreshold = 2
	c := &scriptedCompleter{errs: []error{transient, transient}}
	r := New(vfs.New(), nil, Config{Retry: retry}, WithCompleter(c))

	for i := 0; i < 2; i++ {
		_, err := r.ExecuteObjective(context.Background(), "x")
		require.Error(t, err)
	}
	_, err := r.ExecuteObjective(context.Background(), "x")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, c.calls)
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{apiError(429), true},
		{apiError(529), true},
		{apiError(400), false},
		{errors.New("connection refused"), true},
		{errors.New("invalid request"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetriableError(tt.err), "%v", tt.err)
	}
}

func TestFlowPath(t *testing.T) {
	r := New(vfs.New(), nil, Config{User: "ada"})
	assert.Equal(t, "/home/ada/.flows/nightly.flow", r.FlowPath("nightly"))
	assert.Equal(t, "/home/ada/.flows/nightly.flow", r.FlowPath("nightly.flow"))
	assert.Equal(t, "/srv/deploy.flow", r.FlowPath("/srv/deploy.flow"))
}

func TestExecuteFlow(t *testing.T) {
	ctx := context.Background()
	fs := vfs.New()
	sh := &recordingShell{}
	r := New(fs, sh, Config{})

	require.NoError(t, fs.WriteFile(ctx, "/home/user/.flows/build.flow", []byte(
		"# build the project\n\nmkdir -p /workspace/out\n  echo done > /workspace/out/log\n"), false))
	out, err := r.ExecuteFlow(ctx, "build")
	require.NoError(t, err)
	assert.Equal(t, []string{"mkdir -p /workspace/out", "echo done > /workspace/out/log"}, sh.lines)
	assert.Equal(t, "out:mkdir -p /workspace/out\nout:echo done > /workspace/out/log\n", out)

	sh.lines = nil
	require.NoError(t, fs.WriteFile(ctx, "/flows/stop.flow", []byte("pwd\nfalse\nls\n"), false))
	out, err = r.ExecuteFlow(ctx, "/flows/stop.flow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 2 (false) exited 1")
	assert.Equal(t, []string{"pwd", "false"}, sh.lines)
	assert.Equal(t, "out:pwd\n", out)

	_, err = r.ExecuteFlow(ctx, "missing")
	assert.ErrorIs(t, err, vfs.ErrNotFound)

	_, err = New(fs, nil, Config{}).ExecuteFlow(ctx, "build")
	assert.Error(t, err)
}
