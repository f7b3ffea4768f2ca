package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zenus-ai/zenus/internal/domain/dag"
	"github.com/zenus-ai/zenus/internal/domain/intent"
)

func TestRunExecutesIndependentStepsConcurrently(t *testing.T) {
	steps := []intent.Step{
		{Tool: "FileOps", Action: "create_file", Args: map[string]interface{}{"path": "/tmp/a"}},
		{Tool: "FileOps", Action: "create_file", Args: map[string]interface{}{"path": "/tmp/b"}},
	}
	g := dag.Analyze(steps)

	var concurrent int32
	var maxConcurrent int32
	var mu sync.Mutex

	invoke := func(ctx context.Context, step intent.Step) (*ToolResult, error) {
		n := atomic.AddInt32(&concurrent, 1)
		mu.Lock()
		if n > maxConcurrent {
			maxConcurrent = n
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return &ToolResult{Success: true}, nil
	}

	e := New(Config{MaxWorkers: 4}, zap.NewNop())
	results := e.Run(context.Background(), steps, g, invoke, nil)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Err != nil || r.Output == nil || !r.Output.Success {
			t.Fatalf("step %d failed: %+v", i, r)
		}
	}
	if maxConcurrent < 2 {
		t.Fatalf("expected both independent steps to run concurrently, max concurrent=%d", maxConcurrent)
	}
}

func TestRunPreservesResultOrderByStepIndex(t *testing.T) {
	steps := []intent.Step{
		{Tool: "FileOps", Action: "create_file", Args: map[string]interface{}{"path": "/tmp/a"}},
		{Tool: "FileOps", Action: "scan", Args: map[string]interface{}{"path": "/tmp/a"}}, // depends on step 0
	}
	g := dag.Analyze(steps)

	invoke := func(ctx context.Context, step intent.Step) (*ToolResult, error) {
		return &ToolResult{Success: true, Output: step.Action}, nil
	}

	e := New(Config{MaxWorkers: 2}, zap.NewNop())
	results := e.Run(context.Background(), steps, g, invoke, nil)

	if results[0].Output.Output != "create_file" || results[1].Output.Output != "scan" {
		t.Fatalf("expected results indexed by original step position, got %+v", results)
	}
}

func TestRunRespectsCancelBetweenLevels(t *testing.T) {
	steps := []intent.Step{
		{Tool: "PackageOps", Action: "install", Args: map[string]interface{}{"package": "a"}},
		{Tool: "PackageOps", Action: "install", Args: map[string]interface{}{"package": "b"}},
	}
	g := dag.Analyze(steps) // PackageOps steps are sequential: 2 levels

	cancel := make(chan struct{})
	close(cancel) // already cancelled before Run starts

	invoke := func(ctx context.Context, step intent.Step) (*ToolResult, error) {
		return &ToolResult{Success: true}, nil
	}

	e := New(Config{MaxWorkers: 2}, zap.NewNop())
	results := e.Run(context.Background(), steps, g, invoke, cancel)

	for i, r := range results {
		if r.Err == nil {
			t.Fatalf("expected step %d to be reported cancelled, got %+v", i, r)
		}
	}
}

func TestRunHonorsPerStepDeadline(t *testing.T) {
	steps := []intent.Step{{Tool: "FileOps", Action: "scan", Args: map[string]interface{}{"path": "/"}}}
	g := dag.Analyze(steps)

	invoke := func(ctx context.Context, step intent.Step) (*ToolResult, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return &ToolResult{Success: true}, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("step deadline exceeded: %w", ctx.Err())
		}
	}

	e := New(Config{MaxWorkers: 1, StepDeadline: 10 * time.Millisecond}, zap.NewNop())
	results := e.Run(context.Background(), steps, g, invoke, nil)

	if results[0].Err == nil {
		t.Fatal("expected the step to fail once its per-step deadline elapsed")
	}
}
