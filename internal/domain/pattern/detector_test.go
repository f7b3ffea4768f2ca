package pattern

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDetectRecurringCommand(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	history := []Record{
		{Timestamp: base, Command: "git pull", Tool: "GitOps"},
		{Timestamp: base.Add(24 * time.Hour), Command: "git pull", Tool: "GitOps"},
		{Timestamp: base.Add(48 * time.Hour), Command: "git pull", Tool: "GitOps"},
	}
	found := Detect(history)
	var recurring *Detected
	for i := range found {
		if found[i].Type == TypeRecurring {
			recurring = &found[i]
			break
		}
	}
	if recurring == nil {
		t.Fatal("expected a recurring pattern for a command repeated 3 times")
	}
	if recurring.Count != 3 {
		t.Fatalf("expected count=3, got %d", recurring.Count)
	}
}

func TestDetectRecurringIgnoresUnderThreeOccurrences(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	history := []Record{
		{Timestamp: base, Command: "git pull", Tool: "GitOps"},
		{Timestamp: base.Add(24 * time.Hour), Command: "git pull", Tool: "GitOps"},
	}
	found := detectRecurring(history)
	if len(found) != 0 {
		t.Fatalf("expected no recurring pattern below the 3-occurrence threshold, got %v", found)
	}
}

func TestDetectResultsSortedByConfidenceDescending(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var history []Record
	// Strong tool preference (10/10 = confidence 1.0).
	for i := 0; i < 10; i++ {
		history = append(history, Record{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Command:   "scan directory",
			Tool:      "FileOps",
		})
	}
	// Weak recurring signal (3 occurrences -> confidence 0.3).
	history = append(history,
		Record{Timestamp: base.Add(100 * time.Hour), Command: "restart service web", Tool: "ServiceOps"},
		Record{Timestamp: base.Add(124 * time.Hour), Command: "restart service web", Tool: "ServiceOps"},
		Record{Timestamp: base.Add(148 * time.Hour), Command: "restart service web", Tool: "ServiceOps"},
	)

	found := Detect(history)
	for i := 1; i < len(found); i++ {
		if found[i].Confidence > found[i-1].Confidence {
			t.Fatalf("results not sorted by confidence descending at index %d: %v", i, found)
		}
	}
}

func TestDetectToolPreferenceThreshold(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	history := []Record{
		{Timestamp: base, Command: "a", Tool: "FileOps"},
		{Timestamp: base, Command: "b", Tool: "FileOps"},
		{Timestamp: base, Command: "c", Tool: "FileOps"},
		{Timestamp: base, Command: "d", Tool: "GitOps"},
		{Timestamp: base, Command: "e", Tool: "GitOps"},
		{Timestamp: base, Command: "f", Tool: "GitOps"},
		{Timestamp: base, Command: "g", Tool: "GitOps"},
	}
	found := detectToolPreference(history)
	hasGitOps := false
	for _, d := range found {
		if d.Type == TypeToolPreference && d.Count == 4 {
			hasGitOps = true
		}
	}
	if !hasGitOps {
		t.Fatalf("expected GitOps (4/7 > 0.3) to surface as a tool preference, got %v", found)
	}
}

func TestNormalizeCommandRedactsPathsAndNumbers(t *testing.T) {
	got := normalizeCommand("delete /tmp/project/build42")
	if got != "delete <path>" {
		t.Fatalf("normalizeCommand() = %q, want %q", got, "delete <path>")
	}
}

func TestRecorderWritesWorkflowFile(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)
	d := Detected{Type: TypeWorkflow, Summary: "test workflow", Count: 3, Confidence: 0.6}
	if err := r.RecordWorkflow(0, d); err != nil {
		t.Fatalf("RecordWorkflow: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "workflows", "0.json")); err != nil {
		t.Fatalf("expected workflow file to exist: %v", err)
	}
}
