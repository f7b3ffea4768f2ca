// Package router implements the model router (spec C12): complexity-score
// tier selection with a capability-graded fallback cascade. Grounded on the
// teacher's llm.Router (per-provider stats map, circuit-breaker-guarded
// failover tried in priority order), generalized from "providers" to
// capability "tiers".
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Tier is a capability band of LLM backends (spec glossary).
type Tier string

const (
	TierLocal Tier = "local"
	TierCheap Tier = "cheap"
	TierMid   Tier = "mid"
	TierTop   Tier = "top"
)

// capability gives each tier's statically ordered capability score.
var capability = map[Tier]float64{
	TierLocal: 0.5,
	TierCheap: 0.7,
	TierMid:   0.85,
	TierTop:   1.0,
}

// orderedTiers is capability-ascending, used to build the fallback cascade.
var orderedTiers = []Tier{TierLocal, TierCheap, TierMid, TierTop}

// Capability returns t's statically defined capability score.
func Capability(t Tier) float64 { return capability[t] }

// Select picks the lowest-capability tier on the {0.5,0.7,0.85,1.0} ladder
// whose capability >= score, after clamping score to [0,1] (spec §4.12).
// force, if non-empty, is honored unconditionally (operator override).
func Select(score float64, force Tier) Tier {
	if force != "" {
		return force
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	for _, t := range orderedTiers {
		if capability[t] >= score {
			return t
		}
	}
	return TierTop
}

// Decision records one routing outcome (spec §3 RouterDecision).
type Decision struct {
	SelectedModel   Tier
	ComplexityScore float64
	Reasons         []string
	FallbackUsed    bool
	Success         bool
	LatencyMS       int64
	Tokens          int
}

// tierStats accumulates per-tier counters (spec §4.12).
type tierStats struct {
	Requests       int64
	Successes      int64
	Failures       int64
	TotalTokens    int64
	TotalCostCents int64
	totalLatencyMS int64
}

// AvgLatencyMS returns the running average latency for this tier.
func (s *tierStats) AvgLatencyMS() int64 {
	if s.Requests == 0 {
		return 0
	}
	return s.totalLatencyMS / s.Requests
}

// Router selects a tier per utterance complexity and executes oracle calls
// with a capability-graded fallback cascade (spec C12).
type Router struct {
	mu     sync.Mutex
	stats  map[Tier]*tierStats
	logger *zap.Logger

	sessionRequests int64
	forceModel      Tier
}

// New creates a Router. forceModel, if set, overrides tier selection for
// every call (operator override, spec §4.12 / §6 env var router.force_model).
func New(logger *zap.Logger, forceModel Tier) *Router {
	r := &Router{stats: make(map[Tier]*tierStats), logger: logger, forceModel: forceModel}
	for _, t := range orderedTiers {
		r.stats[t] = &tierStats{}
	}
	return r
}

// Route selects a tier for the given complexity score without executing
// anything.
func (r *Router) Route(score float64) Decision {
	r.mu.Lock()
	force := r.forceModel
	r.mu.Unlock()
	selected := Select(score, force)
	return Decision{SelectedModel: selected, ComplexityScore: score}
}

// SetForceModel updates the operator override at runtime; "" returns the
// router to complexity-based selection. Wired to the config hot-reload
// watcher so long iterative runs pick up a changed router.force_model.
func (r *Router) SetForceModel(t Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forceModel = t
}

// ExecuteWithFallback builds a capability-ascending chain starting at
// primary and tries each in order up to maxFallbacks beyond primary; on any
// error it moves to the next tier. The last failure is propagated if all
// exhaust (spec §4.12).
func (r *Router) ExecuteWithFallback(ctx context.Context, primary Tier, maxFallbacks int, fn func(ctx context.Context, t Tier) (int, error)) (Decision, error) {
	chain := r.fallbackChain(primary, maxFallbacks)

	var lastErr error
	decision := Decision{SelectedModel: primary}

	for i, tier := range chain {
		start := time.Now()
		tokens, err := fn(ctx, tier)
		elapsed := time.Since(start)

		r.record(tier, err == nil, tokens, elapsed)

		if err == nil {
			decision.SelectedModel = tier
			decision.FallbackUsed = i > 0
			decision.Success = true
			decision.LatencyMS = elapsed.Milliseconds()
			decision.Tokens = tokens
			return decision, nil
		}
		lastErr = err
		r.logger.Warn("tier call failed, attempting fallback",
			zap.String("tier", string(tier)), zap.Error(err))
	}

	decision.Success = false
	return decision, fmt.Errorf("all tiers exhausted: %w", lastErr)
}

func (r *Router) fallbackChain(primary Tier, maxFallbacks int) []Tier {
	chain := []Tier{primary}
	primaryIdx := indexOf(primary)
	for i := primaryIdx + 1; i < len(orderedTiers) && len(chain) <= maxFallbacks; i++ {
		chain = append(chain, orderedTiers[i])
	}
	return chain
}

func indexOf(t Tier) int {
	for i, ot := range orderedTiers {
		if ot == t {
			return i
		}
	}
	return 0
}

func (r *Router) record(t Tier, success bool, tokens int, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[t]
	if !ok {
		s = &tierStats{}
		r.stats[t] = s
	}
	s.Requests++
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
	s.TotalTokens += int64(tokens)
	s.totalLatencyMS += latency.Milliseconds()
	r.sessionRequests++
}

// Stats returns a snapshot of per-tier counters.
func (r *Router) Stats() map[Tier]tierStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Tier]tierStats, len(r.stats))
	for t, s := range r.stats {
		out[t] = *s
	}
	return out
}

// SessionRequests returns the total number of routed calls this process has
// made.
func (r *Router) SessionRequests() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionRequests
}
