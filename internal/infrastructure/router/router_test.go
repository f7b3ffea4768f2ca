package router

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestSelectMonotonic(t *testing.T) {
	cases := []struct {
		score float64
		want  Tier
	}{
		{0, TierLocal},
		{0.5, TierLocal},
		{0.6, TierCheap},
		{0.8, TierMid},
		{0.9, TierTop},
		{1.0, TierTop},
	}
	for _, c := range cases {
		if got := Select(c.score, ""); got != c.want {
			t.Errorf("Select(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestSelectMonotonicityAcrossIncreasingScores(t *testing.T) {
	prev := Capability(Select(0, ""))
	for score := 0.0; score <= 1.0; score += 0.05 {
		cur := Capability(Select(score, ""))
		if cur < prev {
			t.Fatalf("capability decreased as score increased: score=%v cur=%v prev=%v", score, cur, prev)
		}
		prev = cur
	}
}

func TestSelectForceOverride(t *testing.T) {
	if got := Select(0.0, TierTop); got != TierTop {
		t.Fatalf("force override ignored: got %v", got)
	}
}

func TestSelectClampsOutOfRangeScores(t *testing.T) {
	if got := Select(-5, ""); got != TierLocal {
		t.Fatalf("expected negative score to clamp to TierLocal, got %v", got)
	}
	if got := Select(5, ""); got != TierTop {
		t.Fatalf("expected >1 score to clamp to TierTop, got %v", got)
	}
}

func TestExecuteWithFallbackSucceedsOnSecondTier(t *testing.T) {
	r := New(zap.NewNop(), "")
	calls := []Tier{}

	decision, err := r.ExecuteWithFallback(context.Background(), TierLocal, 2, func(ctx context.Context, t Tier) (int, error) {
		calls = append(calls, t)
		if t == TierLocal {
			return 0, errors.New("local unavailable")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithFallback: %v", err)
	}
	if !decision.FallbackUsed {
		t.Fatal("expected FallbackUsed to be true")
	}
	if decision.SelectedModel != TierCheap {
		t.Fatalf("expected fallback to TierCheap, got %v", decision.SelectedModel)
	}
	if len(calls) != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d (%v)", len(calls), calls)
	}

	stats := r.Stats()
	if stats[TierLocal].Failures != 1 {
		t.Fatalf("expected 1 failure recorded for TierLocal, got %d", stats[TierLocal].Failures)
	}
	if stats[TierCheap].Successes != 1 {
		t.Fatalf("expected 1 success recorded for TierCheap, got %d", stats[TierCheap].Successes)
	}
}

func TestExecuteWithFallbackExhaustsAllTiers(t *testing.T) {
	r := New(zap.NewNop(), "")
	_, err := r.ExecuteWithFallback(context.Background(), TierMid, 5, func(ctx context.Context, t Tier) (int, error) {
		return 0, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected an error when every tier in the chain fails")
	}
}

func TestExecuteWithFallbackRespectsMaxFallbacks(t *testing.T) {
	r := New(zap.NewNop(), "")
	var attempted []Tier
	_, _ = r.ExecuteWithFallback(context.Background(), TierLocal, 0, func(ctx context.Context, t Tier) (int, error) {
		attempted = append(attempted, t)
		return 0, errors.New("fail")
	})
	if len(attempted) != 1 {
		t.Fatalf("expected maxFallbacks=0 to try exactly 1 tier, got %v", attempted)
	}
}

func TestSessionRequestsAccumulate(t *testing.T) {
	r := New(zap.NewNop(), "")
	for i := 0; i < 3; i++ {
		_, _ = r.ExecuteWithFallback(context.Background(), TierTop, 0, func(ctx context.Context, t Tier) (int, error) {
			return 1, nil
		})
	}
	if r.SessionRequests() != 3 {
		t.Fatalf("expected 3 session requests, got %d", r.SessionRequests())
	}
}
