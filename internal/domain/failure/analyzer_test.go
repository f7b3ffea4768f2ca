package failure

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zenus-ai/zenus/internal/infrastructure/persistence/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "failures.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.FailureModel{}, &models.FailurePatternModel{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return NewStore(db)
}

func TestLogCreatesFailureAndPattern(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Log("delete foo", "cleanup", "FileOps", ErrFileNotFound, "no such file: /tmp/foo", nil)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if rec.PatternHash == "" {
		t.Fatal("expected a pattern hash to be set")
	}
	if s.SimilarCount("FileOps", ErrFileNotFound) != 1 {
		t.Fatalf("expected 1 similar failure, got %d", s.SimilarCount("FileOps", ErrFileNotFound))
	}
}

func TestLogUpsertsPatternCount(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := s.Log("x", "goal", "FileOps", ErrFileNotFound, "no such file: /tmp/a", nil); err != nil {
			t.Fatalf("Log iteration %d: %v", i, err)
		}
	}
	if got := s.SimilarCount("FileOps", ErrFileNotFound); got != 3 {
		t.Fatalf("expected 3 similar failures, got %d", got)
	}
}

func TestAnalyzeBeforeExecutionDeratesBySimilarCount(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := s.Log("x", "goal", "PackageOps", ErrNetworkError, "connection refused", nil); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	pre := s.AnalyzeBeforeExecution("PackageOps", []ErrorType{ErrNetworkError})
	if pre.SuccessProbability != 0.5 {
		t.Fatalf("expected 0.5 derate for >=3 similar failures, got %v", pre.SuccessProbability)
	}
	if len(pre.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", pre.Warnings)
	}
}

func TestAnalyzeBeforeExecutionNoHistoryNoDerate(t *testing.T) {
	s := newTestStore(t)
	pre := s.AnalyzeBeforeExecution("FileOps", []ErrorType{ErrTimeout})
	if pre.SuccessProbability != 1.0 {
		t.Fatalf("expected no derate with no prior failures, got %v", pre.SuccessProbability)
	}
}

func TestAnalyzeAfterFailureCapsSuggestionsAndMarksRecurring(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := s.Log("x", "goal", "FileOps", ErrPermissionDenied, "permission denied", nil); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	post := s.AnalyzeAfterFailure("FileOps", "permission denied while writing")
	if post.ErrorType != ErrPermissionDenied {
		t.Fatalf("expected categorized as permission_denied, got %v", post.ErrorType)
	}
	if !post.IsRecurring {
		t.Fatal("expected IsRecurring = true after 3 similar failures")
	}
	if len(post.Suggestions) > 5 {
		t.Fatalf("expected at most 5 suggestions, got %d", len(post.Suggestions))
	}
	if post.RecoveryPlan == "" {
		t.Fatal("expected a non-empty recovery plan for a known error type")
	}
}

func TestAnalyzeAfterFailureUnknownTypeNoRecoveryPlan(t *testing.T) {
	s := newTestStore(t)
	post := s.AnalyzeAfterFailure("FileOps", "something bizarre went sideways")
	if post.ErrorType != ErrUnknown {
		t.Fatalf("expected unknown categorization, got %v", post.ErrorType)
	}
	if post.RecoveryPlan != "" {
		t.Fatalf("expected no recovery plan for an unknown error type, got %q", post.RecoveryPlan)
	}
}
