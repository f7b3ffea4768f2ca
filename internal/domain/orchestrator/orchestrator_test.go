package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/zenus-ai/zenus/pkg/errors"

	"github.com/zenus-ai/zenus/internal/domain/cache"
	"github.com/zenus-ai/zenus/internal/domain/failure"
	"github.com/zenus-ai/zenus/internal/domain/feedback"
	"github.com/zenus-ai/zenus/internal/domain/oracle"
	"github.com/zenus-ai/zenus/internal/domain/rollback"
	"github.com/zenus-ai/zenus/internal/domain/tool"
	"github.com/zenus-ai/zenus/internal/infrastructure/actiontracker"
	"github.com/zenus-ai/zenus/internal/infrastructure/metrics"
	"github.com/zenus-ai/zenus/internal/infrastructure/persistence"
	"github.com/zenus-ai/zenus/internal/infrastructure/persistence/models"
	"github.com/zenus-ai/zenus/internal/infrastructure/router"
	"github.com/zenus-ai/zenus/internal/infrastructure/sandbox"
	"github.com/zenus-ai/zenus/internal/infrastructure/semanticindex"
)

const scanIntentJSON = `{"goal":"list files","steps":[{"tool":"FileOps","action":"scan","args":{"path":"~/notes"},"risk":0}]}`
const deleteIntentJSON = `{"goal":"remove old logs","steps":[{"tool":"FileOps","action":"delete_file","args":{"path":"/tmp/old.log"},"risk":3}]}`

// countingOracle wraps StubOracle to observe how many translate calls reach
// the backend (cache hits must not).
type countingOracle struct {
	oracle.StubOracle
	TranslateCalls int
}

func (c *countingOracle) Translate(ctx context.Context, prompt string, chunks chan<- oracle.Chunk) error {
	c.TranslateCalls++
	return c.StubOracle.Translate(ctx, prompt, chunks)
}

// failFirstOracle errors on the first translate call and delegates afterwards,
// driving the router's fallback cascade.
type failFirstOracle struct {
	oracle.StubOracle
	calls int
}

func (f *failFirstOracle) Translate(ctx context.Context, prompt string, chunks chan<- oracle.Chunk) error {
	f.calls++
	if f.calls == 1 {
		return errors.New("backend unavailable")
	}
	return f.StubOracle.Translate(ctx, prompt, chunks)
}

func newTestRegistry(t *testing.T) tool.Registry {
	t.Helper()
	reg := tool.NewInMemoryRegistry()
	ops := []tool.Operation{
		{
			Tool: "FileOps", Action: "scan", SideEffect: tool.SideEffectReadOnly, Runtime: tool.RuntimeFast,
			Invoke: func(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*tool.Result, error) {
				return &tool.Result{Output: "a.md\nb.md", Success: true}, nil
			},
		},
		{
			Tool: "FileOps", Action: "delete_file", SideEffect: tool.SideEffectDelete, Runtime: tool.RuntimeFast,
			Invoke: func(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*tool.Result, error) {
				return &tool.Result{Output: "deleted", Success: true}, nil
			},
		},
	}
	for _, op := range ops {
		if err := reg.Register(op); err != nil {
			t.Fatalf("register %s: %v", op.Key(), err)
		}
	}
	return reg
}

func newTestOrchestrator(t *testing.T, orc oracle.Oracle, confirm Confirmer, cfg Config) *Orchestrator {
	t.Helper()
	dir := t.TempDir()

	actionsDB, err := persistence.OpenActionsDB(dir)
	if err != nil {
		t.Fatalf("open actions db: %v", err)
	}
	failuresDB, err := persistence.OpenFailuresDB(dir)
	if err != nil {
		t.Fatalf("open failures db: %v", err)
	}

	sb, err := sandbox.New(sandbox.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}

	tracker := actiontracker.New(actionsDB, dir)
	intentCache := cache.New(cache.Config{TTL: time.Hour, Capacity: 16, Path: filepath.Join(dir, "cache.json")})
	rtr := router.New(zap.NewNop(), "")
	engine := rollback.New(tracker, func(models.ActionModel) error { return nil })
	failures := failure.NewStore(failuresDB)
	mc := metrics.New(zap.NewNop(), metrics.Config{})
	fc := feedback.New(feedback.Config{SampleRate: 0.0001})
	semIndex := semanticindex.New(nil, semanticindex.NewInMemoryStore())

	return New(zap.NewNop(), cfg, newTestRegistry(t), sb, orc, intentCache, rtr, tracker, engine, failures, mc, fc, semIndex, confirm)
}

func TestOneShotExecutesAndRecordsActions(t *testing.T) {
	orc := &oracle.StubOracle{TranslateResponses: []string{scanIntentJSON}}
	o := newTestOrchestrator(t, orc, func(string) bool { return true }, Config{})

	outcome, err := o.Execute(context.Background(), "list files in notes", Options{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != "completed" {
		t.Fatalf("expected completed, got %q", outcome.Status)
	}
	if outcome.TransactionID == "" {
		t.Fatal("expected a transaction id")
	}
	if len(outcome.StepResults) != 1 || outcome.StepResults[0].Err != nil {
		t.Fatalf("expected one successful step result, got %+v", outcome.StepResults)
	}

	actions, err := o.Tracker().ListTransactionActions(outcome.TransactionID)
	if err != nil {
		t.Fatalf("ListTransactionActions: %v", err)
	}
	if len(actions) != 1 || actions[0].Tool != "FileOps" || actions[0].Operation != "scan" {
		t.Fatalf("expected the scan action recorded, got %+v", actions)
	}

	txn, err := o.Tracker().LastTransaction()
	if err != nil {
		t.Fatalf("LastTransaction: %v", err)
	}
	if txn.Status != "completed" {
		t.Fatalf("expected transaction completed, got %q", txn.Status)
	}
}

func TestSecondExecutionHitsIntentCache(t *testing.T) {
	orc := &countingOracle{StubOracle: oracle.StubOracle{TranslateResponses: []string{scanIntentJSON}}}
	o := newTestOrchestrator(t, orc, func(string) bool { return true }, Config{})

	for i := 0; i < 2; i++ {
		if _, err := o.Execute(context.Background(), "list files in notes", Options{}); err != nil {
			t.Fatalf("Execute %d: %v", i+1, err)
		}
	}
	if orc.TranslateCalls != 1 {
		t.Fatalf("expected 1 backend translate call (second should hit the cache), got %d", orc.TranslateCalls)
	}
	if o.Cache().Stats().Hits != 1 {
		t.Fatalf("expected 1 cache hit, got %d", o.Cache().Stats().Hits)
	}
}

func TestHighRiskPlanAbortsWhenDeclined(t *testing.T) {
	orc := &oracle.StubOracle{TranslateResponses: []string{deleteIntentJSON}}
	o := newTestOrchestrator(t, orc, func(string) bool { return false }, Config{})

	outcome, err := o.Execute(context.Background(), "list and delete the old log file", Options{ForceOneshot: true})
	if err == nil || !apperrors.IsUserAbort(err) {
		t.Fatalf("expected a UserAbort error, got %v", err)
	}
	if outcome.Status != "aborted" {
		t.Fatalf("expected aborted, got %q", outcome.Status)
	}
	if o.Tracker().OpenTransactionID() != "" {
		t.Fatal("an aborted plan must not leave a transaction open")
	}
}

func TestDryRunRendersPlanWithoutExecuting(t *testing.T) {
	orc := &oracle.StubOracle{TranslateResponses: []string{scanIntentJSON}}
	o := newTestOrchestrator(t, orc, func(string) bool { return true }, Config{})

	outcome, err := o.Execute(context.Background(), "list files in notes", Options{DryRun: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Plan == "" {
		t.Fatal("expected a rendered plan")
	}
	if outcome.TransactionID != "" {
		t.Fatal("dry-run must not open a transaction")
	}
	if len(outcome.StepResults) != 0 {
		t.Fatal("dry-run must not execute steps")
	}
}

func TestTranslateFallsBackToNextTier(t *testing.T) {
	orc := &failFirstOracle{StubOracle: oracle.StubOracle{TranslateResponses: []string{scanIntentJSON}}}
	o := newTestOrchestrator(t, orc, func(string) bool { return true }, Config{})

	outcome, err := o.Execute(context.Background(), "list files in notes", Options{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != "completed" {
		t.Fatalf("expected completed after fallback, got %q", outcome.Status)
	}

	stats := o.Router().Stats()
	if stats[router.TierLocal].Failures != 1 {
		t.Fatalf("expected local tier to record 1 failure, got %d", stats[router.TierLocal].Failures)
	}
	if stats[router.TierCheap].Successes != 1 {
		t.Fatalf("expected cheap tier to record 1 success, got %d", stats[router.TierCheap].Successes)
	}
}

func TestIterativeStopsWhenGoalAchieved(t *testing.T) {
	orc := &oracle.StubOracle{
		TranslateResponses: []string{scanIntentJSON},
		ReflectResponses:   []string{"ACHIEVED: yes\nCONFIDENCE: 0.9\nREASONING: goal satisfied\nNEXT_STEPS:"},
	}
	o := newTestOrchestrator(t, orc, func(string) bool { return true }, Config{BatchSize: 3, MaxIterations: 10})

	outcome, err := o.Execute(context.Background(), "analyze this project and improve the README based on the code", Options{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != "completed" {
		t.Fatalf("expected completed, got %q", outcome.Status)
	}
	if outcome.Iterations != 1 {
		t.Fatalf("expected the loop to stop after 1 iteration, got %d", outcome.Iterations)
	}
}

func TestIterativeBatchBoundaryPromptsAndAborts(t *testing.T) {
	orc := &oracle.StubOracle{
		TranslateResponses: []string{scanIntentJSON},
		ReflectResponses:   []string{"ACHIEVED: no\nCONFIDENCE: 0.6\nREASONING: still working\nNEXT_STEPS: keep going"},
	}
	prompts := 0
	confirm := func(string) bool {
		prompts++
		return false
	}
	o := newTestOrchestrator(t, orc, confirm, Config{BatchSize: 2, MaxIterations: 10})

	outcome, err := o.Execute(context.Background(), "analyze this project and improve the README based on the code", Options{})
	if err == nil || !apperrors.IsUserAbort(err) {
		t.Fatalf("expected a UserAbort at the batch boundary, got %v", err)
	}
	if outcome.Status != "aborted" {
		t.Fatalf("expected aborted, got %q", outcome.Status)
	}
	if outcome.Iterations != 2 {
		t.Fatalf("expected the prompt at iteration 2 (batch size 2), got %d", outcome.Iterations)
	}
	if prompts != 1 {
		t.Fatalf("expected exactly one batch prompt, got %d", prompts)
	}
}

func TestIterativeCapReturnsMaxIterations(t *testing.T) {
	orc := &oracle.StubOracle{
		TranslateResponses: []string{scanIntentJSON},
		ReflectResponses:   []string{"ACHIEVED: no\nCONFIDENCE: 0.6\nREASONING: still working\nNEXT_STEPS: keep going"},
	}
	o := newTestOrchestrator(t, orc, func(string) bool { return true }, Config{BatchSize: 2, MaxIterations: 3})

	outcome, err := o.Execute(context.Background(), "analyze this project and improve the README based on the code", Options{})
	if err == nil {
		t.Fatal("expected a max-iterations error")
	}
	if outcome.Status != "max_iterations" {
		t.Fatalf("expected max_iterations, got %q", outcome.Status)
	}
	if outcome.Iterations != 3 {
		t.Fatalf("expected 3 iterations, got %d", outcome.Iterations)
	}
}
