package metrics

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestRecordAggregatesPerMetric(t *testing.T) {
	c := New(zap.NewNop(), Config{})
	c.Record("step.duration_ms", 100, nil)
	c.Record("step.duration_ms", 300, nil)

	snap, ok := c.MetricSnapshot("step.duration_ms")
	if !ok {
		t.Fatal("expected an aggregate for the recorded metric")
	}
	if snap.Count != 2 || snap.Sum != 400 || snap.Min != 100 || snap.Max != 300 {
		t.Fatalf("unexpected aggregate: %+v", snap)
	}
	if snap.Avg != 200 {
		t.Fatalf("expected avg 200, got %v", snap.Avg)
	}
}

func TestRecordAggregatesPerModel(t *testing.T) {
	c := New(zap.NewNop(), Config{})
	c.Record("router.latency_ms", 50, map[string]string{"model": "local"})
	c.Record("router.latency_ms", 150, map[string]string{"model": "cheap"})
	c.Record("router.latency_ms", 250, map[string]string{"model": "cheap"})

	local, ok := c.ModelSnapshot("router.latency_ms", "local")
	if !ok || local.Count != 1 {
		t.Fatalf("expected 1 local observation, got %+v", local)
	}
	cheap, ok := c.ModelSnapshot("router.latency_ms", "cheap")
	if !ok || cheap.Count != 2 || cheap.Avg != 200 {
		t.Fatalf("expected 2 cheap observations averaging 200, got %+v", cheap)
	}
	if _, ok := c.ModelSnapshot("router.latency_ms", "top"); ok {
		t.Fatal("expected no aggregate for an unseen model")
	}
}

func TestFlushWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	c := New(zap.NewNop(), Config{Path: path})
	c.Record("transaction.status", 1, map[string]string{"status": "completed"})
	c.Record("transaction.status", 1, map[string]string{"status": "failed"})
	c.Flush()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open metrics.jsonl: %v", err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", lines)
	}
}

func TestBufferedRecordsFlushAtThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	c := New(zap.NewNop(), Config{Path: path, FlushEvery: 2})
	c.Record("a", 1, nil)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("one buffered record must not flush yet")
	}
	c.Record("a", 2, nil)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected a flush at the threshold: %v", err)
	}
}
