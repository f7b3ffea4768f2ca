// Package sandbox implements the execution sandbox (spec C3): path
// allow/deny enforcement, resource caps, and timeouts around every tool
// invocation. Generalized from the teacher's ProcessSandbox (process-group
// isolation, allowed-binary list, deadline pattern) with the path allow/deny
// roots and scoped temp-workspace contract spec.md §4.3 requires.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/zenus-ai/zenus/pkg/errors"
)

// Config configures one Sandbox instance.
type Config struct {
	AllowedRoots  []string      // paths (and their subtrees) operations may touch
	ReadOnlyRoots []string      // subset of AllowedRoots that may never be written to
	AllowedBins   []string      // binaries run_subprocess may execute
	Timeout       time.Duration // default wall-clock cap per subprocess
	TempDir       string        // base dir for temp_workspace()
	EnableNetwork bool
}

// DefaultConfig mirrors the teacher's defaults, widened with path allow/deny
// roots per spec §4.3. Real user HOME stays an allowed root: the sandbox
// provides path-boundary and timeout checks, not full filesystem isolation.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp/zenus-sandbox"
	}
	return &Config{
		AllowedRoots:  []string{home, os.TempDir()},
		ReadOnlyRoots: nil,
		AllowedBins: []string{
			"bash", "sh",
			"ls", "cat", "head", "tail", "grep", "awk", "sed",
			"find", "wc", "sort", "uniq", "cut", "tr",
			"cp", "mv", "rm", "mkdir", "touch", "chmod", "chown",
			"go", "python", "python3", "node", "npm", "npx",
			"git", "make", "cargo", "rustc",
			"pwd", "whoami", "date", "env", "echo", "printf",
			"curl", "wget",
			"systemctl", "docker", "ping", "ip", "ss",
			"tar", "gzip", "unzip", "rsync",
		},
		Timeout:       300 * time.Second,
		TempDir:       filepath.Join(os.TempDir(), "zenus-sandbox"),
		EnableNetwork: true,
	}
}

// Sandbox enforces path and resource boundaries for every tool invocation.
type Sandbox struct {
	mu     sync.RWMutex
	cfg    *Config
	logger *zap.Logger
}

// New creates a Sandbox, ensuring its temp directory exists.
func New(cfg *Config, logger *zap.Logger) (*Sandbox, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox temp dir: %w", err)
	}
	return &Sandbox{cfg: cfg, logger: logger}, nil
}

// Authorize checks that path lies under an allowed root, and — for writes —
// that it doesn't lie under a read-only root. Violations are surfaced as a
// SandboxViolation, which is never retried (spec §4.3, §7).
func (s *Sandbox) Authorize(path string, write bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return apperrors.NewSandboxViolation(fmt.Sprintf("cannot resolve path %q: %v", path, err))
	}

	if !underAnyRoot(abs, s.cfg.AllowedRoots) {
		return apperrors.NewSandboxViolation(fmt.Sprintf("path %q is outside allowed roots", abs))
	}
	if write && underAnyRoot(abs, s.cfg.ReadOnlyRoots) {
		return apperrors.NewSandboxViolation(fmt.Sprintf("path %q is under a read-only root", abs))
	}
	return nil
}

func underAnyRoot(abs string, roots []string) bool {
	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if abs == rootAbs || strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// SubprocessResult is the outcome of RunSubprocess.
type SubprocessResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Killed   bool
}

// RunSubprocess runs argv[0] with argv[1:] under cwd, with env appended to a
// safe base environment, honoring deadline (falls back to the sandbox's
// configured default). The process runs in its own process group so a
// timeout kill reaches children too.
func (s *Sandbox) RunSubprocess(ctx context.Context, argv []string, cwd string, env []string, deadline time.Duration) (*SubprocessResult, error) {
	if len(argv) == 0 {
		return nil, apperrors.NewSandboxViolation("empty argv")
	}
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	if !s.isAllowedBin(argv[0]) {
		return nil, apperrors.NewSandboxViolation(fmt.Sprintf("binary %q is not in the allowed-bin list", argv[0]))
	}
	if cwd != "" {
		if err := s.Authorize(cwd, false); err != nil {
			return nil, err
		}
	}

	cmdPath, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("command not found: %s", argv[0])
	}

	if deadline <= 0 {
		deadline = cfg.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(execCtx, cmdPath, argv[1:]...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Env = append(s.baseEnv(), env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	result := &SubprocessResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.Killed = true
		result.ExitCode = -1
		s.killProcessGroup(cmd)
		return result, fmt.Errorf("command timed out after %v", deadline)
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, fmt.Errorf("execution failed: %w", runErr)
		}
	}
	return result, nil
}

func (s *Sandbox) killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		_ = cmd.Process.Kill()
	}
}

func (s *Sandbox) isAllowedBin(bin string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	base := filepath.Base(bin)
	for _, allowed := range s.cfg.AllowedBins {
		if allowed == base || allowed == bin {
			return true
		}
	}
	return false
}

func (s *Sandbox) baseEnv() []string {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	}
	home, _ := os.UserHomeDir()
	env := []string{
		"PATH=" + path,
		"HOME=" + home,
		"TMPDIR=" + cfg.TempDir,
		"LANG=en_US.UTF-8",
		"LC_ALL=en_US.UTF-8",
	}
	if cfg.EnableNetwork {
		if p := os.Getenv("HTTP_PROXY"); p != "" {
			env = append(env, "HTTP_PROXY="+p)
		}
		if p := os.Getenv("HTTPS_PROXY"); p != "" {
			env = append(env, "HTTPS_PROXY="+p)
		}
	}
	return env
}

// Workspace is a scoped temp directory whose allowed-path extension is
// reverted and whose files are removed on Close, even if the caller's
// operation fails (spec §4.3, §5 "Shared-resource policy").
type Workspace struct {
	Dir string

	sb   *Sandbox
	root string
}

// TempWorkspace acquires a scoped temporary workspace, temporarily extending
// the allowed-roots set to cover it. Close must be called on every exit path.
func (s *Sandbox) TempWorkspace() (*Workspace, error) {
	s.mu.Lock()
	dir, err := os.MkdirTemp(s.cfg.TempDir, "ws-")
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("create temp workspace: %w", err)
	}
	s.cfg.AllowedRoots = append(s.cfg.AllowedRoots, dir)
	s.mu.Unlock()

	return &Workspace{Dir: dir, sb: s, root: dir}, nil
}

// Close removes the workspace directory and reverts the allowed-roots
// extension, regardless of whether the caller's operation succeeded.
func (w *Workspace) Close() error {
	w.sb.mu.Lock()
	roots := make([]string, 0, len(w.sb.cfg.AllowedRoots))
	for _, r := range w.sb.cfg.AllowedRoots {
		if r != w.root {
			roots = append(roots, r)
		}
	}
	w.sb.cfg.AllowedRoots = roots
	w.sb.mu.Unlock()

	return os.RemoveAll(w.root)
}

// ExtendAllowedRoots adds additional paths to the allowed-roots set, e.g.
// when a project-local workspace is discovered at context-build time.
func (s *Sandbox) ExtendAllowedRoots(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.AllowedRoots = append(s.cfg.AllowedRoots, paths...)
}
