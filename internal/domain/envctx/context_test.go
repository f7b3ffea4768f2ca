package envctx

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuildReturnsTotalSnapshotEvenForBadDirectory(t *testing.T) {
	snap := Build("/this/path/does/not/exist/at/all")
	// Every subsystem degrades to a sentinel rather than the call erroring.
	if snap.Directory.AbsolutePath == "" {
		t.Fatal("expected a non-empty absolute path even for a nonexistent cwd")
	}
	if snap.Git.IsRepo {
		t.Fatal("expected IsRepo=false for a non-repo/nonexistent path")
	}
	if snap.Time.Timestamp.IsZero() {
		t.Fatal("expected a populated timestamp")
	}
}

func TestBuildDirectoryDetectsProjectType(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	d := buildDirectory(dir)
	found := false
	for _, pt := range d.ProjectTypes {
		if pt == "go" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected go.mod to be detected as project type 'go', got %v", d.ProjectTypes)
	}
}

func TestBuildGitNonRepoReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	g := buildGit(dir)
	if g.IsRepo {
		t.Fatal("expected IsRepo=false for a plain temp directory")
	}
}

func TestBuildTimeBucketsOfDay(t *testing.T) {
	cases := []struct {
		hour int
		want TimeOfDay
	}{
		{6, Morning},
		{13, Afternoon},
		{19, Evening},
		{23, Night},
		{2, Night},
	}
	for _, c := range cases {
		ts := time.Date(2026, 7, 29, c.hour, 0, 0, 0, time.UTC) // 2026-07-29 is a Wednesday
		info := buildTime(ts)
		if info.TimeOfDay != c.want {
			t.Errorf("buildTime(hour=%d).TimeOfDay = %v, want %v", c.hour, info.TimeOfDay, c.want)
		}
	}
}

func TestBuildTimeWeekendDetection(t *testing.T) {
	saturday := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	info := buildTime(saturday)
	if !info.IsWeekend {
		t.Fatal("expected Saturday to be flagged as a weekend")
	}
	if info.IsWorkHour {
		t.Fatal("expected IsWorkHour=false on a weekend even during business hours")
	}
}

func TestBuildTimeWorkHourOnWeekday(t *testing.T) {
	wednesday := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	info := buildTime(wednesday)
	if info.IsWeekend {
		t.Fatal("expected Wednesday to not be a weekend")
	}
	if !info.IsWorkHour {
		t.Fatal("expected 10:00 on a Wednesday to be a work hour")
	}
}

func TestBuildRecentFilesFindsRecentlyModified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recent.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	files := buildRecentFiles(dir, time.Now())
	found := false
	for _, f := range files {
		if f == path {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s to be detected as recently modified, got %v", path, files)
	}
}

func TestBuildRecentFilesSkipsHiddenEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	files := buildRecentFiles(dir, time.Now())
	for _, f := range files {
		if filepath.Base(f) == ".hidden" {
			t.Fatalf("expected hidden files to be skipped, got %v", files)
		}
	}
}
