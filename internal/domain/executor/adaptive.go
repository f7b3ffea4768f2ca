package executor

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/zenus-ai/zenus/internal/domain/dag"
	"github.com/zenus-ai/zenus/internal/domain/failure"
	"github.com/zenus-ai/zenus/internal/domain/intent"
	apperrors "github.com/zenus-ai/zenus/pkg/errors"
)

// AdaptivePlanner wraps the parallel executor with per-step retry, backoff,
// and error categorization (spec C9). Sandbox interposition happens inside
// the InvokeFunc the orchestrator supplies; a SandboxViolation surfaces here
// without ever being retried.
type AdaptivePlanner struct {
	exec   *Executor
	logger *zap.Logger
}

// NewAdaptivePlanner wraps exec with retry semantics.
func NewAdaptivePlanner(exec *Executor, logger *zap.Logger) *AdaptivePlanner {
	return &AdaptivePlanner{exec: exec, logger: logger}
}

// Run executes all levels of graph g, retrying individual failed steps
// per the §4.10 retry-decision table with exponential backoff
// (base=2^attempt seconds, capped at 30s, small jitter) before giving up.
func (p *AdaptivePlanner) Run(ctx context.Context, steps []intent.Step, g *dag.Graph, invoke InvokeFunc, cancel <-chan struct{}) []StepResult {
	retryingInvoke := func(stepCtx context.Context, step intent.Step) (*ToolResult, error) {
		return p.invokeWithRetry(stepCtx, step, invoke)
	}
	return p.exec.Run(ctx, steps, g, retryingInvoke, cancel)
}

func (p *AdaptivePlanner) invokeWithRetry(ctx context.Context, step intent.Step, invoke InvokeFunc) (*ToolResult, error) {
	attempt := 0
	var lastResult *ToolResult
	var lastErr error

	for {
		attempt++
		out, err := invoke(ctx, step)
		lastResult, lastErr = out, err

		if err == nil && (out == nil || out.Success) {
			return out, nil
		}

		// Sandbox violations are never retried and surface immediately.
		if apperrors.IsSandboxViolation(err) {
			return out, err
		}

		message := errMessage(err, out)
		errType := failure.Categorize(message)
		retryable, maxAttempts := failure.RetryPolicy(errType)
		if !retryable || attempt >= maxAttempts {
			return out, err
		}

		delay := backoff(attempt)
		p.logger.Warn("step failed, retrying",
			zap.String("step", step.Key()),
			zap.Int("attempt", attempt),
			zap.String("error_type", string(errType)),
			zap.Duration("delay", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastResult, lastErr
		}
	}
}

func errMessage(err error, out *ToolResult) string {
	if err != nil {
		return err.Error()
	}
	if out != nil {
		return out.Error
	}
	return ""
}

// backoff returns 2^attempt seconds capped at 30s, with up to 20% jitter.
func backoff(attempt int) time.Duration {
	base := math.Pow(2, float64(attempt))
	if base > 30 {
		base = 30
	}
	jitter := base * 0.2 * rand.Float64()
	return time.Duration((base + jitter) * float64(time.Second))
}
