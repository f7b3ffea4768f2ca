// Package orchestrator wires C1-C14 into the end-to-end controller spec
// §4.15 describes: one state machine per utterance, with an iterative
// sub-machine layered on top of the one-shot path. Grounded on the
// teacher's agent_loop.go + state_machine.go wiring style (a loop owning a
// StateMachine plus references to every collaborating service), generalized
// from the teacher's chat-completion loop to the command-execution pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/zenus-ai/zenus/pkg/errors"

	"github.com/zenus-ai/zenus/internal/domain/cache"
	"github.com/zenus-ai/zenus/internal/domain/complexity"
	"github.com/zenus-ai/zenus/internal/domain/dag"
	"github.com/zenus-ai/zenus/internal/domain/envctx"
	"github.com/zenus-ai/zenus/internal/domain/executor"
	"github.com/zenus-ai/zenus/internal/domain/failure"
	"github.com/zenus-ai/zenus/internal/domain/feedback"
	"github.com/zenus-ai/zenus/internal/domain/goal"
	"github.com/zenus-ai/zenus/internal/domain/intent"
	"github.com/zenus-ai/zenus/internal/domain/oracle"
	"github.com/zenus-ai/zenus/internal/domain/pattern"
	"github.com/zenus-ai/zenus/internal/domain/rollback"
	"github.com/zenus-ai/zenus/internal/domain/tool"
	"github.com/zenus-ai/zenus/internal/infrastructure/actiontracker"
	"github.com/zenus-ai/zenus/internal/infrastructure/metrics"
	"github.com/zenus-ai/zenus/internal/infrastructure/router"
	"github.com/zenus-ai/zenus/internal/infrastructure/sandbox"
	"github.com/zenus-ai/zenus/internal/infrastructure/semanticindex"
)

// Options parametrizes one Execute call (spec §4.15's execute(...) contract).
type Options struct {
	DryRun        bool
	Explain       bool
	Iterative     bool
	ForceOneshot  bool
}

// Outcome is the terminal result of one Execute call.
type Outcome struct {
	Status        string // completed | failed | cancelled | aborted | max_iterations
	TransactionID string
	Intent        *intent.Intent
	StepResults   []executor.StepResult
	Iterations    int
	Warnings      []string
	Plan          string // rendered dry-run / explain plan, when applicable

	// FeedbackEligible reports that this utterance was sampled for a
	// post-execution feedback prompt (spec C18); the CLI layer renders the
	// actual prompt.
	FeedbackEligible bool
}

// Config tunes the orchestrator (spec §6 environment variables).
type Config struct {
	Executor       executor.Config
	BatchSize      int // default 12, iterative.batch_size
	MaxIterations  int // default 50, iterative.max_total
	PreAnalyzeMin  float64 // default 0.7 success-probability confirmation threshold
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 12
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 50
	}
	if c.PreAnalyzeMin <= 0 {
		c.PreAnalyzeMin = 0.7
	}
	return c
}

// Confirmer prompts the user for a yes/no decision, returning their choice.
// Wired by the CLI layer (lipgloss-styled prompt); tests inject a stub.
type Confirmer func(prompt string) bool

// Orchestrator is the single-process, single-instance master controller
// (spec §5: "the system assumes a single orchestrator per process").
type Orchestrator struct {
	logger   *zap.Logger
	cfg      Config
	registry tool.Registry
	sandbox  *sandbox.Sandbox
	oracle   oracle.Oracle

	cache    *cache.Cache
	router   *router.Router
	tracker  *actiontracker.Tracker
	rollback *rollback.Engine
	failures *failure.Store
	metrics  *metrics.Collector
	feedback *feedback.Collector
	semIndex *semanticindex.Index

	confirm Confirmer
}

// New constructs an Orchestrator from its collaborating components. All
// singletons (cache, failures, tracker, router, metrics) are expected to be
// initialized by the caller at process start and torn down at exit (spec
// §9 "Global mutable state").
func New(
	logger *zap.Logger,
	cfg Config,
	registry tool.Registry,
	sb *sandbox.Sandbox,
	orc oracle.Oracle,
	intentCache *cache.Cache,
	rtr *router.Router,
	tracker *actiontracker.Tracker,
	rollbackEngine *rollback.Engine,
	failures *failure.Store,
	mc *metrics.Collector,
	fc *feedback.Collector,
	semIndex *semanticindex.Index,
	confirm Confirmer,
) *Orchestrator {
	return &Orchestrator{
		logger:   logger,
		cfg:      cfg.withDefaults(),
		registry: registry,
		sandbox:  sb,
		oracle:   orc,
		cache:    intentCache,
		router:   rtr,
		tracker:  tracker,
		rollback: rollbackEngine,
		failures: failures,
		metrics:  mc,
		feedback: fc,
		semIndex: semIndex,
		confirm:  confirm,
	}
}

// Execute runs the master state machine for one utterance (spec §4.15).
func (o *Orchestrator) Execute(ctx context.Context, utterance string, opts Options) (*Outcome, error) {
	machine := NewMachine(o.logger)
	_ = machine.Transition(StateComplexity)

	comp := complexity.Analyze(utterance)
	o.metrics.Record("complexity.score", float64(comp.EstimatedSteps), nil)
	score := float64(comp.EstimatedSteps) / 10.0

	if (comp.NeedsIteration || opts.Iterative) && !opts.ForceOneshot {
		return o.runIterative(ctx, utterance, opts, score)
	}

	outcome, _, err := o.runOneShot(ctx, utterance, opts, machine, nil, score)
	return outcome, err
}

// runIterative drives the iterative sub-machine: repeated one-shot passes
// with accumulated observations, batch prompts, a stuck detector, and an
// absolute iteration cap (spec §4.15, §4.13).
func (o *Orchestrator) runIterative(ctx context.Context, userGoal string, opts Options, score float64) (*Outcome, error) {
	tracker := goal.New(userGoal)
	var lastOutcome *Outcome

	for iter := 1; iter <= o.cfg.MaxIterations; iter++ {
		// Each iteration gets a fresh machine: the prior one has reached a
		// terminal state, and the one-shot transition graph has no back-edge.
		machine := NewMachine(o.logger)
		_ = machine.Transition(StateComplexity)
		machine.NextIteration()

		prompt := userGoal
		if obs := tracker.RecentObservations(); len(obs) > 0 {
			prompt = fmt.Sprintf("%s\n\nPrevious observations:\n%s", userGoal, strings.Join(obs, "\n"))
		}

		outcome, stepObservations, err := o.runOneShot(ctx, prompt, opts, machine, tracker, score)
		lastOutcome = outcome
		if err != nil {
			return outcome, err
		}
		if outcome.Intent == nil {
			return outcome, nil
		}

		status, gerr := tracker.Evaluate(ctx, o.oracle, *outcome.Intent, stepObservations, buildReflectPrompt)
		if gerr != nil {
			o.logger.Warn("goal reflection failed", zap.Error(gerr))
		} else if status.Achieved {
			outcome.Status = "completed"
			outcome.Iterations = iter
			return outcome, nil
		}

		if tracker.IsStuck() {
			if o.confirm == nil || !o.confirm("the loop appears stuck on this goal, continue anyway?") {
				outcome.Status = "aborted"
				outcome.Iterations = iter
				return outcome, apperrors.NewUserAbortError("stuck detector interrupted the loop")
			}
		}

		if iter%o.cfg.BatchSize == 0 {
			if o.confirm == nil || !o.confirm(fmt.Sprintf("batch of %d iterations complete, continue?", o.cfg.BatchSize)) {
				outcome.Status = "aborted"
				outcome.Iterations = iter
				return outcome, apperrors.NewUserAbortError("user declined to continue past batch boundary")
			}
		}
	}

	if lastOutcome == nil {
		lastOutcome = &Outcome{}
	}
	lastOutcome.Status = "max_iterations"
	lastOutcome.Iterations = o.cfg.MaxIterations
	return lastOutcome, fmt.Errorf("max iterations (%d) reached without achieving goal", o.cfg.MaxIterations)
}

// runOneShot executes steps 2-12 of the one-shot path (spec §4.15). When
// goalTracker is non-nil this is one iteration of the iterative
// sub-machine rather than a standalone command, and returns the per-step
// observation strings for the next reflection call.
func (o *Orchestrator) runOneShot(ctx context.Context, utterance string, opts Options, machine *Machine, goalTracker *goal.Tracker, score float64) (*Outcome, []string, error) {
	_ = machine.Transition(StateContext)
	snapshot := envctx.Build(".")

	_ = machine.Transition(StateRoute)
	decision := o.router.Route(score)

	_ = machine.Transition(StateCacheLookup)
	key := cache.Key(utterance, fmt.Sprintf("%v", snapshot.Directory))

	var in *intent.Intent
	if cached, ok := o.cache.Get(key); ok {
		in = cached
		_ = machine.Transition(StatePreAnalyze)
	} else {
		_ = machine.Transition(StateTranslate)
		translated, routed, err := o.translateRouted(ctx, utterance, snapshot, decision.SelectedModel)
		if err != nil {
			_ = machine.Transition(StateFailed)
			return &Outcome{Status: "failed"}, nil, err
		}
		in = translated
		o.cache.Set(key, *in)
		o.metrics.Record("router.latency_ms", float64(routed.LatencyMS), map[string]string{"model": string(routed.SelectedModel)})
		if routed.FallbackUsed {
			o.metrics.Record("router.fallback_total", 1, map[string]string{"model": string(routed.SelectedModel)})
		}
		_ = machine.Transition(StatePreAnalyze)
	}

	if err := intent.Validate(in, o.registry); err != nil {
		return &Outcome{Status: "failed", Intent: in}, nil, err
	}

	var warnings []string
	candidateErrTypes := []failure.ErrorType{failure.ErrUnknown}
	for _, s := range in.Steps {
		pre := o.failures.AnalyzeBeforeExecution(s.Tool, candidateErrTypes)
		if pre.SuccessProbability < o.cfg.PreAnalyzeMin && !opts.Explain {
			warnings = append(warnings, pre.Warnings...)
		}
	}
	if in.RequiresConfirmation {
		plan := renderPlan(*in)
		if opts.Explain {
			return &Outcome{Status: "completed", Intent: in, Plan: plan, Warnings: warnings}, nil, nil
		}
		if o.confirm == nil || !o.confirm(plan) {
			_ = machine.Transition(StateAborted)
			return &Outcome{Status: "aborted", Intent: in}, nil, apperrors.NewUserAbortError("user declined the high-risk plan")
		}
	}

	_ = machine.Transition(StateDryRun)
	if opts.DryRun {
		return &Outcome{Status: "completed", Intent: in, Plan: renderPlan(*in), Warnings: warnings}, nil, nil
	}

	_ = machine.Transition(StateOpenTxn)
	txnID, err := o.tracker.Begin(utterance, in.Goal)
	if err != nil {
		return &Outcome{Status: "failed", Intent: in}, nil, err
	}

	_ = machine.Transition(StateSchedule)
	graph := dag.Analyze(in.Steps)

	_ = machine.Transition(StateExecute)
	planner := executor.NewAdaptivePlanner(executor.New(o.cfg.Executor, o.logger), o.logger)
	invoke := o.invokeFunc(txnID, machine)
	results := planner.Run(ctx, in.Steps, graph, invoke, nil)

	var observations []string
	failed := false
	for i, res := range results {
		if res.Err != nil {
			failed = true
			_, _ = o.failures.Log(utterance, in.Goal, in.Steps[i].Tool, failure.Categorize(res.Err.Error()), res.Err.Error(), nil)
			continue
		}
		if res.Output != nil {
			observations = append(observations, fmt.Sprintf("%s.%s(%v) -> %s", in.Steps[i].Tool, in.Steps[i].Action, in.Steps[i].Args, tool.TruncateObservation(res.Output.Output)))
		}
	}

	_ = machine.Transition(StateCloseTxn)
	status := "completed"
	if failed {
		status = "failed"
	}
	_ = o.tracker.End(txnID, status)

	_ = machine.Transition(StateMemoryUpdate)
	if o.semIndex != nil {
		_ = o.semIndex.Record(ctx, txnID, utterance, key)
	}
	feedbackEligible := o.feedback != nil && o.feedback.ShouldPrompt(utterance)
	o.metrics.Record("transaction.status", 1, map[string]string{"status": status})

	_ = machine.Transition(StateComplete)

	outcome := &Outcome{
		Status:           status,
		TransactionID:    txnID,
		Intent:           in,
		StepResults:      results,
		Warnings:         warnings,
		FeedbackEligible: feedbackEligible,
	}
	if failed {
		return outcome, observations, fmt.Errorf("one or more steps failed")
	}
	return outcome, observations, nil
}

// invokeFunc adapts the tool registry + sandbox into an executor.InvokeFunc,
// recording each successful invocation through the action tracker.
func (o *Orchestrator) invokeFunc(txnID string, machine *Machine) executor.InvokeFunc {
	return func(ctx context.Context, step intent.Step) (*executor.ToolResult, error) {
		op, err := o.registry.Resolve(step.Tool, step.Action)
		if err != nil {
			return nil, err
		}
		machine.SetLastTool(step.Tool + "." + step.Action)

		result, err := op.Invoke(ctx, step.Args, o.sandbox)
		if err != nil {
			return nil, err
		}
		if _, recErr := o.tracker.Record(txnID, step.Tool, step.Action, step.Args, map[string]interface{}{"output": result.Output, "success": result.Success, "metadata": result.Metadata}); recErr != nil {
			o.logger.Warn("action tracker record failed", zap.Error(recErr))
		}
		return &executor.ToolResult{Success: result.Success, Output: result.Output, Metadata: result.Metadata, Error: result.Error}, nil
	}
}

// translateRouted calls the oracle's translate() through the router's
// fallback cascade (spec §4.12): starting at primary, each attempt runs with
// the invocation-scoped selected-model variable set to its tier, and any
// failure — transport or schema — moves to the next-higher-capability tier.
func (o *Orchestrator) translateRouted(ctx context.Context, utterance string, snapshot envctx.Snapshot, primary router.Tier) (*intent.Intent, router.Decision, error) {
	prompt := buildTranslatePrompt(utterance, snapshot)

	var in *intent.Intent
	decision, err := o.router.ExecuteWithFallback(ctx, primary, 2, func(fctx context.Context, tier router.Tier) (int, error) {
		restore := scopedModelEnv(tier)
		defer restore()

		text, err := oracle.Drain(fctx, func(chunks chan<- oracle.Chunk) error {
			return o.oracle.Translate(fctx, prompt, chunks)
		})
		if err != nil {
			return 0, apperrors.NewTranslationError("oracle translate call failed", err)
		}

		jsonText, err := oracle.ExtractJSON(text)
		if err != nil {
			return 0, apperrors.NewTranslationError("could not extract intent JSON from oracle response", err)
		}

		parsed, err := intent.Parse([]byte(jsonText))
		if err != nil {
			return len(text) / 4, apperrors.NewSchemaError(fmt.Sprintf("intent JSON failed schema validation: %v", err))
		}
		in = parsed
		return len(text) / 4, nil
	})
	if err != nil {
		return nil, decision, err
	}
	return in, decision, nil
}

// scopedModelEnv sets the selected-model environment variable oracle
// providers read, returning a restore func that reinstates the previous
// value on every exit path, including failure (spec §5 shared-resource
// policy).
func scopedModelEnv(tier router.Tier) func() {
	const key = "ZENUS_SELECTED_MODEL"
	prev, had := os.LookupEnv(key)
	_ = os.Setenv(key, string(tier))
	return func() {
		if had {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	}
}

func buildTranslatePrompt(utterance string, snapshot envctx.Snapshot) string {
	return fmt.Sprintf("Utterance: %s\nDirectory: %s\nGit: %+v\nTime: %s\nRespond with Intent JSON only.",
		utterance, snapshot.Directory.AbsolutePath, snapshot.Git, snapshot.Time.TimeOfDay)
}

func buildReflectPrompt(userGoal string, in intent.Intent, obs []string, history []goal.IterationRecord) string {
	return fmt.Sprintf("Goal: %s\nLatest intent: %s\nObservations:\n%s\nPrior iterations: %d\nRespond with ACHIEVED/CONFIDENCE/REASONING/NEXT_STEPS lines.",
		userGoal, in.Goal, strings.Join(obs, "\n"), len(history))
}

func renderPlan(in intent.Intent) string {
	var sb strings.Builder
	sb.WriteString("Plan for: " + in.Goal + "\n")
	for i, s := range in.Steps {
		sb.WriteString(fmt.Sprintf("  %d. %s.%s risk=%d\n", i+1, s.Tool, s.Action, s.Risk))
	}
	return sb.String()
}

// DetectPatterns mines recurring/workflow/time/tool-preference patterns
// from recent action-tracker history for `status`/`explain` reporting
// (spec C14, wired here rather than duplicated at the CLI layer).
func (o *Orchestrator) DetectPatterns(records []pattern.Record) []pattern.Detected {
	return pattern.Detect(records)
}

// Rollback exposes the rollback engine (spec C5) for the CLI's standalone
// `rollback` command — rollback is never invoked automatically by Execute.
func (o *Orchestrator) Rollback() *rollback.Engine { return o.rollback }

// Tracker exposes the action tracker (spec C4) for `status`/`explain`.
func (o *Orchestrator) Tracker() *actiontracker.Tracker { return o.tracker }

// Failures exposes the failure store (spec C10) for `status`/`explain`.
func (o *Orchestrator) Failures() *failure.Store { return o.failures }

// Router exposes the model router (spec C12) for `status` reporting.
func (o *Orchestrator) Router() *router.Router { return o.router }

// Cache exposes the intent cache (spec C6) for `status` reporting.
func (o *Orchestrator) Cache() *cache.Cache { return o.cache }
