// Package rollback implements the rollback engine (spec C5): feasibility
// analysis plus reverse-order inverse execution over a transaction's
// recorded actions.
package rollback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zenus-ai/zenus/internal/infrastructure/actiontracker"
	"github.com/zenus-ai/zenus/internal/infrastructure/persistence/models"
	apperrors "github.com/zenus-ai/zenus/pkg/errors"
)

// Feasibility is the result of Feasible.
type Feasibility struct {
	Possible          bool
	RollbackableCount int
	NonRollbackable   []string // "tool.op" pairs
	Reason            string
}

// Feasible reports whether a transaction's still-active actions can all be
// rolled back. Already-rolled-back actions never block (spec §4.5).
func Feasible(actions []models.ActionModel) Feasibility {
	var f Feasibility
	for _, a := range actions {
		if a.RolledBack {
			continue
		}
		strategy := actiontracker.RollbackStrategy(a.RollbackStrategy)
		if strategy == actiontracker.StrategyManual || strategy == actiontracker.StrategyNotRollbackable {
			f.NonRollbackable = append(f.NonRollbackable, a.Tool+"."+a.Operation)
			continue
		}
		f.RollbackableCount++
	}
	f.Possible = len(f.NonRollbackable) == 0
	if !f.Possible {
		f.Reason = fmt.Sprintf("%d action(s) have no rollback strategy: %v", len(f.NonRollbackable), f.NonRollbackable)
	}
	return f
}

// InverseOp executes the concrete inverse of one action. Kept as an
// injectable function so the engine doesn't need to import the tool
// registry directly (the orchestrator wires it through).
type InverseOp func(action models.ActionModel) error

// Engine drives rollback over a Tracker's recorded actions.
type Engine struct {
	tracker *actiontracker.Tracker
	inverse InverseOp
}

// New creates a rollback Engine. inverse performs the actual side-effecting
// undo for a single action (file restore, move-back, package uninstall...).
func New(tracker *actiontracker.Tracker, inverse InverseOp) *Engine {
	return &Engine{tracker: tracker, inverse: inverse}
}

// PlanStep is one line of a human-readable rollback plan (dry-run mode).
type PlanStep struct {
	ActionID    uint
	Description string
}

// Outcome is the result of a (possibly dry-run) rollback.
type Outcome struct {
	Plan       []PlanStep
	Succeeded  []uint
	Failed     map[uint]error
	FinalStatus string // completed | partial
}

// RollbackTransaction undoes txnID's actions in reverse insertion order
// (spec §4.5). Refuses if any still-active action lacks a strategy, unless
// the caller is RollbackLastN (which explicitly accepts partial coverage).
func (e *Engine) RollbackTransaction(txnID string, dryRun bool) (*Outcome, error) {
	actions, err := e.tracker.ListTransactionActions(txnID)
	if err != nil {
		return nil, err
	}
	return e.rollbackActions(txnID, actions, dryRun, true)
}

// RollbackLastN rolls back the last n actions of the most recent
// transaction, regardless of overall transaction feasibility.
func (e *Engine) RollbackLastN(n int, dryRun bool) (*Outcome, error) {
	txn, err := e.tracker.LastTransaction()
	if err != nil {
		return nil, err
	}
	actions, err := e.tracker.ListTransactionActions(txn.ID)
	if err != nil {
		return nil, err
	}
	if n < len(actions) {
		actions = actions[len(actions)-n:]
	}
	return e.rollbackActions(txn.ID, actions, dryRun, false)
}

func (e *Engine) rollbackActions(txnID string, actions []models.ActionModel, dryRun bool, enforceFeasible bool) (*Outcome, error) {
	if enforceFeasible {
		f := Feasible(actions)
		if !f.Possible {
			return nil, apperrors.NewRollbackError(f.Reason, nil)
		}
	}

	out := &Outcome{Failed: make(map[uint]error)}

	// Reverse insertion order.
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		if a.RolledBack {
			continue
		}
		strategy := actiontracker.RollbackStrategy(a.RollbackStrategy)
		if strategy == actiontracker.StrategyManual || strategy == actiontracker.StrategyNotRollbackable {
			continue
		}

		desc := fmt.Sprintf("undo %s.%s (action #%d) via %s", a.Tool, a.Operation, a.ID, strategy)
		out.Plan = append(out.Plan, PlanStep{ActionID: a.ID, Description: desc})
		if dryRun {
			continue
		}

		if err := e.inverse(a); err != nil {
			out.Failed[a.ID] = err
			continue
		}
		_ = e.tracker.MarkRolledBack(a.ID)
		out.Succeeded = append(out.Succeeded, a.ID)
	}

	if dryRun {
		return out, nil
	}

	if len(out.Failed) == 0 {
		out.FinalStatus = "completed"
	} else {
		out.FinalStatus = "partial"
	}
	_ = e.tracker.SetRollbackStatus(txnID, out.FinalStatus)
	return out, nil
}

// RestoreCheckpoint copies each backed-up file back to its original path.
// Missing backups are warnings, not fatals (spec §4.5).
func (e *Engine) RestoreCheckpoint(name string, dryRun bool) (*Outcome, []string, error) {
	cp, err := e.tracker.GetCheckpoint(name)
	if err != nil {
		return nil, nil, err
	}
	var backups map[string]string
	if err := json.Unmarshal([]byte(cp.BackupPathsJSON), &backups); err != nil {
		return nil, nil, fmt.Errorf("decode checkpoint backups: %w", err)
	}

	out := &Outcome{Failed: make(map[uint]error)}
	var warnings []string

	for original, backup := range backups {
		out.Plan = append(out.Plan, PlanStep{Description: fmt.Sprintf("restore %s from %s", original, backup)})
		if dryRun {
			continue
		}
		if _, err := os.Stat(backup); err != nil {
			warnings = append(warnings, fmt.Sprintf("backup missing for %s: %v", original, err))
			continue
		}
		if err := restoreFile(backup, original); err != nil {
			warnings = append(warnings, fmt.Sprintf("restore %s failed: %v", original, err))
			continue
		}
	}
	if dryRun {
		return out, warnings, nil
	}
	out.FinalStatus = "completed"
	if len(warnings) > 0 {
		out.FinalStatus = "partial"
	}
	return out, warnings, nil
}

func restoreFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
