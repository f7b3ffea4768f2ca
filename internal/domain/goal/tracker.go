// Package goal implements the goal tracker (spec C13): evaluating whether an
// iterative loop's goal has been achieved via oracle reflection, and
// detecting when the loop is "stuck".
package goal

import (
	"context"
	"fmt"

	"github.com/zenus-ai/zenus/internal/domain/intent"
	"github.com/zenus-ai/zenus/internal/domain/oracle"
)

// Status is the C13 GoalStatus value (spec §3).
type Status struct {
	Achieved   bool
	Confidence float64
	Reasoning  string
	NextSteps  []string
}

// IterationRecord is one completed iteration's (intent, observations,
// status) tuple, retained for stuck detection and the "previous
// observations" prompt context (spec §4.13, §4.15).
type IterationRecord struct {
	Intent       intent.Intent
	Observations []string
	Status       Status
}

// Tracker drives iterative re-planning: it asks the oracle whether the
// user's goal is achieved given the accumulated observations, and owns the
// stuck detector.
type Tracker struct {
	userGoal    string
	history     []IterationRecord
	stuckCount  int
}

// New creates a Tracker for one iterative run.
func New(userGoal string) *Tracker {
	return &Tracker{userGoal: userGoal}
}

// History returns all recorded iterations so far.
func (t *Tracker) History() []IterationRecord { return t.history }

// StuckCount returns the current consecutive-stuck counter.
func (t *Tracker) StuckCount() int { return t.stuckCount }

// Evaluate calls the oracle's reflect() with (user_goal, original_intent,
// observations, prior history) and records the resulting iteration,
// updating the stuck detector (spec §4.13, §8 invariant 6: stuck_count
// increments iff the last two iterations share intent.goal AND both
// confidences < 0.4).
func (t *Tracker) Evaluate(ctx context.Context, orc oracle.Oracle, currentIntent intent.Intent, observations []string, promptBuilder func(goal string, in intent.Intent, obs []string, history []IterationRecord) string) (Status, error) {
	prompt := promptBuilder(t.userGoal, currentIntent, observations, t.history)

	text, err := oracle.Drain(ctx, func(chunks chan<- oracle.Chunk) error {
		return orc.Reflect(ctx, prompt, chunks)
	})
	if err != nil {
		return Status{}, fmt.Errorf("goal reflection failed: %w", err)
	}

	parsed, err := oracle.ParseReflection(text)
	if err != nil {
		return Status{}, err
	}
	status := Status{
		Achieved:   parsed.Achieved,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
		NextSteps:  parsed.NextSteps,
	}

	t.updateStuckDetector(currentIntent, status)
	t.history = append(t.history, IterationRecord{Intent: currentIntent, Observations: observations, Status: status})

	return status, nil
}

func (t *Tracker) updateStuckDetector(currentIntent intent.Intent, status Status) {
	if len(t.history) == 0 {
		t.stuckCount = 0
		return
	}
	prev := t.history[len(t.history)-1]
	sameGoal := prev.Intent.Goal == currentIntent.Goal
	bothLowConfidence := prev.Status.Confidence < 0.4 && status.Confidence < 0.4
	if sameGoal && bothLowConfidence {
		t.stuckCount++
	} else {
		t.stuckCount = 0
	}
}

// IsStuck reports whether the loop should interrupt for a user prompt
// (stuck_count >= 3, spec §4.13).
func (t *Tracker) IsStuck() bool { return t.stuckCount >= 3 }

// RecentObservations returns up to the last 5 iterations' observations,
// flattened, for "Previous observations:" prompt context (spec §4.15).
func (t *Tracker) RecentObservations() []string {
	start := 0
	if len(t.history) > 5 {
		start = len(t.history) - 5
	}
	var out []string
	for _, rec := range t.history[start:] {
		out = append(out, rec.Observations...)
	}
	return out
}
