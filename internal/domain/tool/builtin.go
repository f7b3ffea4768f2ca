package tool

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zenus-ai/zenus/internal/infrastructure/sandbox"
)

// RegisterBuiltins wires the concrete tool operations referenced throughout
// spec.md (FileOps, PackageOps, GitOps, ServiceOps, ContainerOps). The
// concrete tool *implementations* are explicitly out of scope for the
// execution brain (spec §1 — "treated as a registry of named operations");
// these are real enough to exercise the dependency analyzer, action tracker
// and rollback engine end to end, not a production tool surface.
func RegisterBuiltins(r Registry) error {
	ops := []Operation{
		{
			Tool: "FileOps", Action: "scan", Description: "list files under a directory",
			ArgsSchema: map[string]string{"path": "required"},
			SideEffect: SideEffectReadOnly, Runtime: RuntimeIO, Invoke: fileScan,
		},
		{
			Tool: "FileOps", Action: "create_file", Description: "create a new file",
			ArgsSchema: map[string]string{"path": "required", "content": "optional"},
			SideEffect: SideEffectCreate, Runtime: RuntimeFast, Invoke: fileCreate,
		},
		{
			Tool: "FileOps", Action: "write_file", Description: "overwrite a file's contents",
			ArgsSchema: map[string]string{"path": "required", "content": "required"},
			SideEffect: SideEffectOverwrite, Runtime: RuntimeFast, Invoke: fileWrite,
		},
		{
			Tool: "FileOps", Action: "delete_file", Description: "delete a file",
			ArgsSchema: map[string]string{"path": "required"},
			SideEffect: SideEffectDelete, Runtime: RuntimeFast, Invoke: fileDelete,
		},
		{
			Tool: "FileOps", Action: "copy_file", Description: "copy a file",
			ArgsSchema: map[string]string{"source": "required", "destination": "required"},
			SideEffect: SideEffectCreate, Runtime: RuntimeIO, Invoke: fileCopy,
		},
		{
			Tool: "FileOps", Action: "move_file", Description: "move/rename a file",
			ArgsSchema: map[string]string{"source": "required", "destination": "required"},
			SideEffect: SideEffectCreate, Runtime: RuntimeFast, Invoke: fileMove,
		},
		{
			Tool: "FileOps", Action: "mkdir", Description: "create a directory",
			ArgsSchema: map[string]string{"path": "required"},
			SideEffect: SideEffectCreate, Runtime: RuntimeFast, Invoke: fileMkdir,
		},
		{
			Tool: "PackageOps", Action: "install", Description: "install a package",
			ArgsSchema: map[string]string{"package": "required"},
			SideEffect: SideEffectCreate, Runtime: RuntimeSlow, Invoke: packageInstall,
		},
		{
			Tool: "PackageOps", Action: "uninstall", Description: "uninstall a package",
			ArgsSchema: map[string]string{"package": "required"},
			SideEffect: SideEffectDelete, Runtime: RuntimeSlow, Invoke: packageUninstall,
		},
		{
			Tool: "GitOps", Action: "commit", Description: "create a commit",
			ArgsSchema: map[string]string{"message": "required"},
			SideEffect: SideEffectCreate, Runtime: RuntimeIO, Invoke: gitCommit,
		},
		{
			Tool: "GitOps", Action: "push", Description: "push to a remote",
			ArgsSchema: map[string]string{},
			SideEffect: SideEffectControl, Runtime: RuntimeSlow, Invoke: gitPush,
		},
		{
			Tool: "GitOps", Action: "reset", Description: "reset the branch to a prior commit (rollback inverse of commit)",
			ArgsSchema: map[string]string{"to": "required"},
			SideEffect: SideEffectOverwrite, Runtime: RuntimeFast, Invoke: gitReset,
		},
		{
			Tool: "ServiceOps", Action: "start", Description: "start a service",
			ArgsSchema: map[string]string{"service": "required"},
			SideEffect: SideEffectControl, Runtime: RuntimeIO, Invoke: serviceStart,
		},
		{
			Tool: "ServiceOps", Action: "stop", Description: "stop a service",
			ArgsSchema: map[string]string{"service": "required"},
			SideEffect: SideEffectControl, Runtime: RuntimeIO, Invoke: serviceStop,
		},
		{
			Tool: "ContainerOps", Action: "run", Description: "run a container",
			ArgsSchema: map[string]string{"image": "required"},
			SideEffect: SideEffectCreate, Runtime: RuntimeSlow, Invoke: containerRun,
		},
		{
			Tool: "ContainerOps", Action: "stop", Description: "stop and remove a container",
			ArgsSchema: map[string]string{"container_id": "required"},
			SideEffect: SideEffectDelete, Runtime: RuntimeIO, Invoke: containerStop,
		},
	}
	for _, op := range ops {
		if err := r.Register(op); err != nil {
			return err
		}
	}
	return nil
}

func argStr(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func fileScan(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	path := argStr(args, "path")
	if err := sb.Authorize(path, false); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return &Result{Success: true, Output: fmt.Sprintf("%d entries", len(names)), Metadata: map[string]interface{}{"files": names}}, nil
}

func fileCreate(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	path := argStr(args, "path")
	if err := sb.Authorize(path, true); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return &Result{Success: false, Error: "file already exists"}, nil
	}
	content := argStr(args, "content")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: "created " + path}, nil
}

func fileWrite(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	path := argStr(args, "path")
	if err := sb.Authorize(path, true); err != nil {
		return nil, err
	}
	content := argStr(args, "content")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: "wrote " + path}, nil
}

func fileDelete(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	path := argStr(args, "path")
	if err := sb.Authorize(path, true); err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: "deleted " + path}, nil
}

func fileCopy(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	src, dst := argStr(args, "source"), argStr(args, "destination")
	if err := sb.Authorize(src, false); err != nil {
		return nil, err
	}
	if err := sb.Authorize(dst, true); err != nil {
		return nil, err
	}
	if err := copyFile(src, dst); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: fmt.Sprintf("copied %s -> %s", src, dst)}, nil
}

func fileMove(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	src, dst := argStr(args, "source"), argStr(args, "destination")
	if err := sb.Authorize(src, true); err != nil {
		return nil, err
	}
	if err := sb.Authorize(dst, true); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	if err := os.Rename(src, dst); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: fmt.Sprintf("moved %s -> %s", src, dst)}, nil
}

func fileMkdir(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	path := argStr(args, "path")
	if err := sb.Authorize(path, true); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: "created dir " + path}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func packageInstall(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	pkg := argStr(args, "package")
	res, err := sb.RunSubprocess(ctx, []string{"echo", "install", pkg}, "", nil, 60*time.Second)
	return subprocessResult(res, err, "installed "+pkg)
}

func packageUninstall(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	pkg := argStr(args, "package")
	res, err := sb.RunSubprocess(ctx, []string{"echo", "uninstall", pkg}, "", nil, 60*time.Second)
	return subprocessResult(res, err, "uninstalled "+pkg)
}

// gitCommit records the new commit's parent hash (HEAD~1 right after the
// commit) as "parent_commit" in the result metadata, so the rollback
// engine's inverse ("reset HEAD~1 by recorded hash", spec §4.4) has a
// concrete ref to reset to rather than a relative HEAD~1 that can drift if
// other commits land before rollback runs.
func gitCommit(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	msg := argStr(args, "message")
	res, err := sb.RunSubprocess(ctx, []string{"git", "commit", "-m", msg, "--allow-empty"}, "", nil, 30*time.Second)
	result, rerr := subprocessResult(res, err, "committed")
	if rerr != nil || result == nil || !result.Success {
		return result, rerr
	}
	parentRes, perr := sb.RunSubprocess(ctx, []string{"git", "rev-parse", "HEAD~1"}, "", nil, 10*time.Second)
	if perr == nil && parentRes.ExitCode == 0 {
		result.Metadata = map[string]interface{}{"parent_commit": strings.TrimSpace(parentRes.Stdout)}
	}
	return result, nil
}

func gitPush(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	res, err := sb.RunSubprocess(ctx, []string{"git", "push"}, "", nil, 60*time.Second)
	return subprocessResult(res, err, "pushed")
}

func gitReset(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	to := argStr(args, "to")
	res, err := sb.RunSubprocess(ctx, []string{"git", "reset", "--hard", to}, "", nil, 30*time.Second)
	return subprocessResult(res, err, "reset to "+to)
}

func serviceStart(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	svc := argStr(args, "service")
	res, err := sb.RunSubprocess(ctx, []string{"systemctl", "start", svc}, "", nil, 30*time.Second)
	return subprocessResult(res, err, "started "+svc)
}

func serviceStop(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	svc := argStr(args, "service")
	res, err := sb.RunSubprocess(ctx, []string{"systemctl", "stop", svc}, "", nil, 30*time.Second)
	return subprocessResult(res, err, "stopped "+svc)
}

func containerRun(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	image := argStr(args, "image")
	res, err := sb.RunSubprocess(ctx, []string{"docker", "run", "-d", image}, "", nil, 60*time.Second)
	return subprocessResult(res, err, "ran "+image)
}

func containerStop(ctx context.Context, args map[string]interface{}, sb *sandbox.Sandbox) (*Result, error) {
	id := argStr(args, "container_id")
	res, err := sb.RunSubprocess(ctx, []string{"docker", "stop", id}, "", nil, 30*time.Second)
	result, rerr := subprocessResult(res, err, "stopped "+id)
	if rerr != nil || result == nil || !result.Success {
		return result, rerr
	}
	res, err = sb.RunSubprocess(ctx, []string{"docker", "rm", id}, "", nil, 30*time.Second)
	return subprocessResult(res, err, "stopped and removed "+id)
}

func subprocessResult(res *sandbox.SubprocessResult, err error, okMsg string) (*Result, error) {
	if err != nil {
		if res != nil {
			return &Result{Success: false, Error: err.Error(), Output: res.Stderr}, nil
		}
		return nil, err
	}
	if res.ExitCode != 0 {
		return &Result{Success: false, Error: res.Stderr}, nil
	}
	return &Result{Success: true, Output: okMsg}, nil
}
