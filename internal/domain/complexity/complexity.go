// Package complexity implements the task complexity analyzer (spec C11):
// a keyword/structure heuristic deciding one-shot vs iterative execution,
// with an optional oracle override.
package complexity

import (
	"context"
	"strings"

	"github.com/zenus-ai/zenus/internal/domain/oracle"
)

var iterativeKeywords = []string{
	"analyze", "understand", "then", "after", "improve", "based on",
	"find out", "organize by", "refactor", "investigate", "optimize",
}

var oneShotKeywords = []string{
	"list", "show", "create empty", "what is", "print", "display",
}

var conditionalWords = []string{"if", "where", "that", "which"}
var fileKeywords = []string{"file", "files", "directory", "folder", "path"}

// Result is the C11 Complexity value.
type Result struct {
	NeedsIteration bool
	Confidence     float64
	Reasoning      string
	EstimatedSteps int
}

// Analyze scores utterance using the heuristic in spec §4.11.
func Analyze(utterance string) Result {
	lower := strings.ToLower(utterance)
	score := 0
	var reasons []string

	for _, kw := range iterativeKeywords {
		if strings.Contains(lower, kw) {
			score += 3
			reasons = append(reasons, "iterative keyword: "+kw)
		}
	}
	for _, kw := range oneShotKeywords {
		if strings.Contains(lower, kw) {
			score -= 3
			reasons = append(reasons, "one-shot keyword: "+kw)
		}
	}

	sentences := countSentences(utterance)
	if sentences >= 2 {
		score += sentences
		reasons = append(reasons, "multiple sentences")
	}

	clauses := strings.Count(lower, ",") + strings.Count(lower, " and ")
	if clauses > 2 {
		score += 2
		reasons = append(reasons, "many clauses")
	}

	hasFileKW := containsAny(lower, fileKeywords)
	hasConditional := containsAny(lower, conditionalWords)
	if hasFileKW && hasConditional {
		score += 3
		reasons = append(reasons, "file keyword with conditional")
	}

	words := len(strings.Fields(utterance))
	if words > 15 {
		score += 2
		reasons = append(reasons, "long utterance (>15 words)")
	} else if words > 10 {
		score += 1
		reasons = append(reasons, "long utterance (>10 words)")
	}

	confidence := 0.6
	switch {
	case score >= 5:
		confidence = 0.9
	case score >= 2:
		confidence = 0.75
	case score <= -2:
		confidence = 0.85
	}

	estimatedSteps := clamp(score+1, 1, 10)

	return Result{
		NeedsIteration: score >= 2,
		Confidence:     confidence,
		Reasoning:      strings.Join(reasons, "; "),
		EstimatedSteps: estimatedSteps,
	}
}

// AnalyzeWithOracle applies Analyze, then — when confidence < 0.8 and orc is
// non-nil — lets the oracle override the heuristic (spec §4.11). The oracle
// is called through orc.Translate with prompt and is expected to answer with
// JSON carrying "needs_iteration", "confidence", "estimated_steps",
// "reasoning".
func AnalyzeWithOracle(ctx context.Context, utterance string, orc oracle.Oracle, prompt string) Result {
	heuristic := Analyze(utterance)
	if heuristic.Confidence >= 0.8 || orc == nil {
		return heuristic
	}

	text, err := oracle.Drain(ctx, func(chunks chan<- oracle.Chunk) error {
		return orc.Translate(ctx, prompt, chunks)
	})
	if err != nil {
		return heuristic
	}

	override, ok := parseOverride(text)
	if !ok {
		return heuristic
	}
	return override
}

func parseOverride(text string) (Result, bool) {
	obj, err := oracle.RawIntentJSON(text)
	if err != nil {
		return Result{}, false
	}
	needs, ok1 := obj["needs_iteration"].(bool)
	conf, ok2 := obj["confidence"].(float64)
	reasoning, _ := obj["reasoning"].(string)
	steps, _ := obj["estimated_steps"].(float64)
	if !ok1 || !ok2 {
		return Result{}, false
	}
	return Result{
		NeedsIteration: needs,
		Confidence:     conf,
		Reasoning:      reasoning,
		EstimatedSteps: clamp(int(steps), 1, 10),
	}, true
}

func countSentences(s string) int {
	count := 0
	for _, r := range s {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	if count == 0 && strings.TrimSpace(s) != "" {
		count = 1
	}
	return count
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
