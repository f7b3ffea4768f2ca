// Package orchestrator implements the master state machine (spec C15) that
// sequences C1-C14 for one utterance. Grounded on the teacher's
// service.StateMachine (a validTransitions table guarding Transition, with
// listener notification outside the lock), generalized from the agent
// loop's streaming/tool-exec states to the one-shot/iterative execution
// states spec §4.15 names.
package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one node of the orchestrator's transition graph (spec §4.15).
type State string

const (
	StateStart        State = "start"
	StateComplexity    State = "complexity"
	StateContext       State = "context"
	StateRoute         State = "route"
	StateCacheLookup   State = "cache_lookup"
	StateTranslate     State = "translate"
	StatePreAnalyze    State = "pre_analyze"
	StateDryRun        State = "dry_run"
	StateOpenTxn       State = "open_txn"
	StateSchedule      State = "schedule"
	StateExecute       State = "execute"
	StateCloseTxn      State = "close_txn"
	StateMemoryUpdate  State = "memory_update"
	StateComplete      State = "complete"
	StateFailed        State = "failed"
	StateAborted       State = "aborted"
	StateMaxIterations State = "max_iterations"
)

var validTransitions = map[State]map[State]bool{
	StateStart: {StateComplexity: true},
	StateComplexity: {
		StateContext: true,
	},
	StateContext: {StateRoute: true},
	StateRoute:   {StateCacheLookup: true},
	StateCacheLookup: {
		StateTranslate:  true,
		StatePreAnalyze: true, // cache hit skips straight to pre-analysis
	},
	StateTranslate: {
		StatePreAnalyze: true,
		StateFailed:     true,
	},
	StatePreAnalyze: {
		StateDryRun: true,
		StateAborted: true,
	},
	StateDryRun: {
		StateComplete: true,
		StateOpenTxn:  true,
	},
	StateOpenTxn:  {StateSchedule: true, StateFailed: true},
	StateSchedule: {StateExecute: true},
	StateExecute: {
		StateCloseTxn: true,
	},
	StateCloseTxn:     {StateMemoryUpdate: true},
	StateMemoryUpdate: {StateComplete: true, StateFailed: true},
	// Terminal states
	StateComplete:      {},
	StateFailed:         {},
	StateAborted:        {},
	StateMaxIterations: {},
}

// Snapshot captures the machine's runtime state at a point in time.
type Snapshot struct {
	State      State
	Iteration  int
	Elapsed    time.Duration
	LastTool   string
	RetryCount int
}

// Machine is a thread-safe orchestrator state machine.
type Machine struct {
	mu         sync.RWMutex
	state      State
	iteration  int
	retryCount int
	lastTool   string
	startTime  time.Time
	logger     *zap.Logger
	listeners  []func(from, to State, snap Snapshot)
}

// NewMachine creates a Machine starting in StateStart.
func NewMachine(logger *zap.Logger) *Machine {
	return &Machine{state: StateStart, startTime: time.Now(), logger: logger}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves the machine to "to", rejecting transitions not in
// validTransitions.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		m.mu.Unlock()
		return fmt.Errorf("invalid orchestrator transition: %s -> %s", from, to)
	}
	m.state = to
	snap := Snapshot{State: to, Iteration: m.iteration, Elapsed: time.Since(m.startTime), LastTool: m.lastTool, RetryCount: m.retryCount}
	listeners := append([]func(from, to State, snap Snapshot){}, m.listeners...)
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Debug("orchestrator transition", zap.String("from", string(from)), zap.String("to", string(to)))
	}
	for _, fn := range listeners {
		fn(from, to, snap)
	}
	return nil
}

// OnTransition registers a listener invoked on every state change.
func (m *Machine) OnTransition(fn func(from, to State, snap Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// NextIteration advances the iteration counter (iterative sub-machine).
func (m *Machine) NextIteration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iteration++
	return m.iteration
}

// SetLastTool records the most recently invoked tool for status reporting.
func (m *Machine) SetLastTool(tool string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTool = tool
}

// IsTerminal reports whether the machine has reached a terminal state.
func (m *Machine) IsTerminal() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch m.state {
	case StateComplete, StateFailed, StateAborted, StateMaxIterations:
		return true
	}
	return false
}
