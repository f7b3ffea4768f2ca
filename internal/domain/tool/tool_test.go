package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zenus-ai/zenus/internal/infrastructure/sandbox"
)

func noopInvoke(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	return &Result{Success: true}, nil
}

func TestRegistryResolveAndHasOperation(t *testing.T) {
	reg := NewInMemoryRegistry()
	op := Operation{Tool: "FileOps", Action: "scan", SideEffect: SideEffectReadOnly, Runtime: RuntimeFast, Invoke: noopInvoke}
	if err := reg.Register(op); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := reg.Resolve("FileOps", "scan")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.SideEffect != SideEffectReadOnly {
		t.Fatalf("expected read_only side effect, got %s", got.SideEffect)
	}
	if !reg.HasOperation("FileOps", "scan") {
		t.Fatal("HasOperation must report registered pairs")
	}
	if reg.HasOperation("FileOps", "nuke") {
		t.Fatal("HasOperation must not report unknown pairs")
	}
}

func TestRegistryUnknownToolError(t *testing.T) {
	reg := NewInMemoryRegistry()
	_, err := reg.Resolve("NoSuchTool", "noop")
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownToolError, got %v", err)
	}
	if unknown.Tool != "NoSuchTool" {
		t.Fatalf("expected the tool name in the error, got %q", unknown.Tool)
	}
}

func TestRegistryRejectsDuplicatesAndInvalid(t *testing.T) {
	reg := NewInMemoryRegistry()
	op := Operation{Tool: "FileOps", Action: "scan", Invoke: noopInvoke}
	if err := reg.Register(op); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(op); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := reg.Register(Operation{Tool: "FileOps", Action: "broken"}); err == nil {
		t.Fatal("expected registration without invoke to fail")
	}
	if err := reg.Register(Operation{Action: "orphan", Invoke: noopInvoke}); err == nil {
		t.Fatal("expected registration without tool name to fail")
	}
}

func TestListTool(t *testing.T) {
	reg := NewInMemoryRegistry()
	for _, action := range []string{"scan", "create_file", "delete_file"} {
		if err := reg.Register(Operation{Tool: "FileOps", Action: action, Invoke: noopInvoke}); err != nil {
			t.Fatalf("Register %s: %v", action, err)
		}
	}
	if err := reg.Register(Operation{Tool: "GitOps", Action: "commit", Invoke: noopInvoke}); err != nil {
		t.Fatalf("Register GitOps.commit: %v", err)
	}

	if got := len(reg.ListTool("FileOps")); got != 3 {
		t.Fatalf("expected 3 FileOps operations, got %d", got)
	}
	if got := len(reg.List()); got != 4 {
		t.Fatalf("expected 4 total operations, got %d", got)
	}
}

func TestBuiltinsRegisterCleanly(t *testing.T) {
	reg := NewInMemoryRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	for _, key := range []string{
		"FileOps.scan", "FileOps.create_file", "FileOps.move_file",
		"PackageOps.install", "GitOps.commit", "GitOps.reset",
		"ServiceOps.start", "ContainerOps.run",
	} {
		parts := strings.SplitN(key, ".", 2)
		if !reg.HasOperation(parts[0], parts[1]) {
			t.Fatalf("expected builtin %s to be registered", key)
		}
	}
}

func TestTruncateObservation(t *testing.T) {
	short := "ok"
	if got := TruncateObservation(short); got != short {
		t.Fatalf("short strings must pass through, got %q", got)
	}
	long := strings.Repeat("x", 500)
	got := TruncateObservation(long)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("long strings must be truncated with an ellipsis, got len=%d", len(got))
	}
	if len([]rune(got)) > 301 {
		t.Fatalf("expected at most 300 chars plus ellipsis, got %d", len([]rune(got)))
	}
}
