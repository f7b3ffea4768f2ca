package failure

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zenus-ai/zenus/internal/infrastructure/persistence/models"
)

// Store persists Failures and upserts their FailurePattern aggregate
// (spec §4.10, §4.4 durability rules: writes strictly monotonic by
// timestamp, reads in ascending id order).
type Store struct {
	db *gorm.DB
}

// NewStore wraps a gorm connection already migrated with the failure models.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Log records a Failure and upserts its FailurePattern row.
func (s *Store) Log(userInput, intentGoal, toolName string, errType ErrorType, message string, context map[string]interface{}) (*models.FailureModel, error) {
	ctxJSON, _ := json.Marshal(context)
	hash := PatternHash(toolName, errType, message)

	rec := &models.FailureModel{
		Timestamp:    time.Now().UTC(),
		UserInput:    userInput,
		IntentGoal:   intentGoal,
		Tool:         toolName,
		ErrorType:    string(errType),
		ErrorMessage: message,
		ContextJSON:  string(ctxJSON),
		PatternHash:  hash,
	}
	if err := s.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("log failure: %w", err)
	}

	var pattern models.FailurePatternModel
	err := s.db.Where("pattern_hash = ?", hash).First(&pattern).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		pattern = models.FailurePatternModel{
			PatternHash: hash,
			Tool:        toolName,
			ErrorType:   string(errType),
			Count:       1,
			LastSeen:    rec.Timestamp,
		}
		if err := s.db.Create(&pattern).Error; err != nil {
			return rec, fmt.Errorf("create failure pattern: %w", err)
		}
	case err != nil:
		return rec, fmt.Errorf("lookup failure pattern: %w", err)
	default:
		pattern.Count++
		pattern.LastSeen = rec.Timestamp
		if err := s.db.Save(&pattern).Error; err != nil {
			return rec, fmt.Errorf("update failure pattern: %w", err)
		}
	}
	return rec, nil
}

// SimilarCount returns how many past failures share this tool and error
// type, used by pre-execution analysis to derate success probability.
func (s *Store) SimilarCount(toolName string, errType ErrorType) int {
	var count int64
	s.db.Model(&models.FailureModel{}).
		Where("tool = ? AND error_type = ?", toolName, string(errType)).
		Count(&count)
	return int(count)
}

// LearnedSuggestions returns patterns whose success_after_fix > 0.5*count,
// i.e. fixes that have demonstrably worked more than half the time they
// were tried (spec §4.10).
func (s *Store) LearnedSuggestions(toolName string) []string {
	var patterns []models.FailurePatternModel
	s.db.Where("tool = ?", toolName).Find(&patterns)

	var out []string
	for _, p := range patterns {
		if p.Count > 0 && float64(p.SuccessAfterFix) > 0.5*float64(p.Count) && p.SuggestedFix != "" {
			out = append(out, p.SuggestedFix)
		}
	}
	return out
}

// PreAnalysis is the per-step pre-execution derate + warnings (spec §4.10).
type PreAnalysis struct {
	SuccessProbability float64
	Warnings           []string
	Suggestions        []string
}

// AnalyzeBeforeExecution derates a step's nominal success probability by
// 0.85/0.7/0.5 for 1/2/>=3 similar past failures, merging static known-fix
// hints with learned pattern suggestions.
func (s *Store) AnalyzeBeforeExecution(toolName string, candidateErrTypes []ErrorType) PreAnalysis {
	prob := 1.0
	var warnings, suggestions []string

	for _, et := range candidateErrTypes {
		n := s.SimilarCount(toolName, et)
		switch {
		case n >= 3:
			prob *= 0.5
		case n == 2:
			prob *= 0.7
		case n == 1:
			prob *= 0.85
		default:
			continue
		}
		warnings = append(warnings, fmt.Sprintf("%s has failed with %s %d time(s) before", toolName, et, n))
		suggestions = append(suggestions, KnownFixes[et]...)
	}
	suggestions = append(suggestions, s.LearnedSuggestions(toolName)...)

	return PreAnalysis{SuccessProbability: prob, Warnings: warnings, Suggestions: dedupe(suggestions)}
}

// PostAnalysis is the result of analyzing a concrete failure after the fact.
type PostAnalysis struct {
	ErrorType        ErrorType
	Suggestions      []string
	SimilarFailures  int
	IsRecurring      bool
	RecoveryPlan     string
}

// AnalyzeAfterFailure returns (error_type, suggestions[<=5], similar count,
// is_recurring) and a recovery plan for known categories (spec §4.10).
func (s *Store) AnalyzeAfterFailure(toolName, message string) PostAnalysis {
	et := Categorize(message)
	similar := s.SimilarCount(toolName, et)

	suggestions := append([]string{}, KnownFixes[et]...)
	suggestions = append(suggestions, s.LearnedSuggestions(toolName)...)
	suggestions = dedupe(suggestions)
	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}

	plan := ""
	if et != ErrUnknown && len(suggestions) > 0 {
		plan = fmt.Sprintf("retry after: %s", suggestions[0])
	}

	return PostAnalysis{
		ErrorType:       et,
		Suggestions:     suggestions,
		SimilarFailures: similar,
		IsRecurring:     similar >= 3,
		RecoveryPlan:    plan,
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
