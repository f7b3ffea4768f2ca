// Package executor implements the parallel executor (spec C8) and the
// adaptive planner (spec C9): level-wise concurrent dispatch of a DAG with
// per-step deadlines, wrapped with per-step retry and sandbox interposition.
// The worker pool shape is grounded on the teacher's agent.DAGExecutor
// (bounded semaphore + WaitGroup), restructured into a strict level-barrier
// scheduler since spec §4.8/§8 property 4 require full-level completion
// before advancing (the teacher's DAG executor advances per-node).
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zenus-ai/zenus/internal/domain/dag"
	"github.com/zenus-ai/zenus/internal/domain/intent"
	"github.com/zenus-ai/zenus/pkg/safego"
)

// StepResult is the outcome of one step's invocation, written back into a
// dense array indexed by original step position (spec §4.8, §5 ordering
// guarantee).
type StepResult struct {
	Output   *ToolResult
	Err      error
	Attempts int
	Duration time.Duration
}

// ToolResult mirrors tool.Result without importing the tool package, keeping
// the executor decoupled from the concrete registry implementation.
type ToolResult struct {
	Success  bool
	Output   string
	Metadata map[string]interface{}
	Error    string
}

// InvokeFunc executes a single step and returns its result.
type InvokeFunc func(ctx context.Context, step intent.Step) (*ToolResult, error)

// Config tunes the parallel executor.
type Config struct {
	MaxWorkers     int           // default 4
	StepDeadline   time.Duration // default 300s
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxWorkers <= 0 {
		out.MaxWorkers = 4
	}
	if out.StepDeadline <= 0 {
		out.StepDeadline = 300 * time.Second
	}
	return out
}

// Executor runs levels of a DAG in order, dispatching each level's steps
// concurrently onto a bounded worker pool.
type Executor struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an Executor with the given config.
func New(cfg Config, logger *zap.Logger) *Executor {
	return &Executor{cfg: cfg.withDefaults(), logger: logger}
}

// Run executes all steps of graph g level by level. cancel, if non-nil, is
// checked between levels and aborts pending levels promptly; in-flight steps
// still finish or hit their own deadline (spec §4.8, §5).
func (e *Executor) Run(ctx context.Context, steps []intent.Step, g *dag.Graph, invoke InvokeFunc, cancel <-chan struct{}) []StepResult {
	results := make([]StepResult, len(steps))

	for _, level := range g.Levels {
		select {
		case <-cancel:
			for _, idx := range level {
				results[idx] = StepResult{Err: fmt.Errorf("cancelled before execution")}
			}
			continue
		default:
		}

		e.runLevel(ctx, steps, level, invoke, results)
	}
	return results
}

func (e *Executor) runLevel(ctx context.Context, steps []intent.Step, level []int, invoke InvokeFunc, results []StepResult) {
	sem := make(chan struct{}, e.cfg.MaxWorkers)
	done := make(chan struct{}, len(level))

	for _, idx := range level {
		idx := idx
		sem <- struct{}{}
		safego.Go(e.logger, fmt.Sprintf("executor-step-%d", idx), func() {
			defer func() { <-sem; done <- struct{}{} }()
			results[idx] = e.runStep(ctx, steps[idx], invoke)
		})
	}

	for range level {
		<-done
	}
}

func (e *Executor) runStep(ctx context.Context, step intent.Step, invoke InvokeFunc) StepResult {
	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepDeadline)
	defer cancel()

	start := time.Now()
	out, err := invoke(stepCtx, step)
	return StepResult{Output: out, Err: err, Attempts: 1, Duration: time.Since(start)}
}
