// Package application is the composition root: it wires the C1-C19
// components into one process-wide App, grounded on the teacher's
// application.App dependency-injection container (internal/application/app.go),
// generalized from the chat-agent gateway's repositories/services/servers to
// this system's tool registry/sandbox/tracker/cache/router/orchestrator
// stack.
package application

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zenus-ai/zenus/internal/domain/cache"
	"github.com/zenus-ai/zenus/internal/domain/executor"
	"github.com/zenus-ai/zenus/internal/domain/failure"
	"github.com/zenus-ai/zenus/internal/domain/feedback"
	"github.com/zenus-ai/zenus/internal/domain/oracle"
	"github.com/zenus-ai/zenus/internal/domain/orchestrator"
	"github.com/zenus-ai/zenus/internal/domain/rollback"
	"github.com/zenus-ai/zenus/internal/domain/tool"
	"github.com/zenus-ai/zenus/internal/infrastructure/actiontracker"
	"github.com/zenus-ai/zenus/internal/infrastructure/config"
	"github.com/zenus-ai/zenus/internal/infrastructure/metrics"
	"github.com/zenus-ai/zenus/internal/infrastructure/persistence"
	"github.com/zenus-ai/zenus/internal/infrastructure/persistence/models"
	"github.com/zenus-ai/zenus/internal/infrastructure/router"
	"github.com/zenus-ai/zenus/internal/infrastructure/sandbox"
	"github.com/zenus-ai/zenus/internal/infrastructure/semanticindex"
)

// App is the process-wide dependency container. All singletons named in
// spec §9 ("Global mutable state") are initialized once here at process
// start and torn down via Close.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	actionsDB  *gorm.DB
	failuresDB *gorm.DB

	Registry tool.Registry
	Sandbox  *sandbox.Sandbox
	Oracle   oracle.Oracle

	Cache    *cache.Cache
	Router   *router.Router
	Tracker  *actiontracker.Tracker
	Rollback *rollback.Engine
	Failures *failure.Store
	Metrics  *metrics.Collector
	Feedback *feedback.Collector
	SemIndex *semanticindex.Index

	Orchestrator *orchestrator.Orchestrator
}

// New builds the full App: bootstraps ~/.zenus, opens the actions/failures
// stores, registers the builtin tool operations, and wires every C1-C19
// singleton into one Orchestrator. confirm is the CLI's yes/no prompt
// (spec §4.15 pre-analyze / high-risk confirmation, §4.13 stuck/batch
// prompts).
func New(cfg *config.Config, logger *zap.Logger, orc oracle.Oracle, confirm orchestrator.Confirmer) (*App, error) {
	if err := config.Bootstrap(logger, cfg.StateRoot); err != nil {
		logger.Warn("bootstrap failed (non-fatal)", zap.Error(err))
	}
	stateRoot := cfg.StateRoot
	if stateRoot == "" {
		stateRoot = config.HomeDir() + "/state"
	}

	actionsDB, err := persistence.OpenActionsDB(stateRoot)
	if err != nil {
		return nil, fmt.Errorf("open actions db: %w", err)
	}
	failuresDB, err := persistence.OpenFailuresDB(stateRoot)
	if err != nil {
		return nil, fmt.Errorf("open failures db: %w", err)
	}

	registry := tool.NewInMemoryRegistry()
	if err := tool.RegisterBuiltins(registry); err != nil {
		return nil, fmt.Errorf("register builtin tools: %w", err)
	}

	sbCfg := sandbox.DefaultConfig()
	sbCfg.AllowedRoots = append(sbCfg.AllowedRoots, cfg.Sandbox.AllowedRoots...)
	sbCfg.ReadOnlyRoots = append(sbCfg.ReadOnlyRoots, cfg.Sandbox.ReadOnlyRoots...)
	if len(cfg.Sandbox.AllowedBins) > 0 {
		sbCfg.AllowedBins = cfg.Sandbox.AllowedBins
	}
	sbCfg.EnableNetwork = cfg.Sandbox.EnableNetwork
	sb, err := sandbox.New(sbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init sandbox: %w", err)
	}

	intentCache := cache.New(cache.Config{
		TTL:      cfg.Cache.CacheTTL(),
		Capacity: cfg.Cache.MaxEntries,
		Path:     stateRoot + "/cache/intent_cache.json",
	})

	tier := router.Tier(cfg.Router.ForceModel)
	rtr := router.New(logger, tier)

	tracker := actiontracker.New(actionsDB, stateRoot)
	failures := failure.NewStore(failuresDB)

	mc := metrics.New(logger, metrics.Config{Path: stateRoot + "/metrics.jsonl"})
	fc := feedback.New(feedback.Config{SampleRate: cfg.Feedback.SampleRate, Path: stateRoot + "/feedback.jsonl"})
	semIndex := semanticindex.New(nil, semanticindex.NewInMemoryStore())

	rollbackEngine := rollback.New(tracker, buildInverseOp(registry, sb, tracker))

	orcCfg := orchestrator.Config{
		Executor: executor.Config{
			MaxWorkers:   cfg.Executor.MaxWorkers,
			StepDeadline: cfg.Executor.StepDeadline(),
		},
		BatchSize:     cfg.Iterative.BatchSize,
		MaxIterations: cfg.Iterative.MaxTotal,
	}
	o := orchestrator.New(logger, orcCfg, registry, sb, orc, intentCache, rtr, tracker, rollbackEngine, failures, mc, fc, semIndex, confirm)

	return &App{
		Config: cfg, Logger: logger,
		actionsDB: actionsDB, failuresDB: failuresDB,
		Registry: registry, Sandbox: sb, Oracle: orc,
		Cache: intentCache, Router: rtr, Tracker: tracker,
		Rollback: rollbackEngine, Failures: failures, Metrics: mc,
		Feedback: fc, SemIndex: semIndex, Orchestrator: o,
	}, nil
}

// Close flushes best-effort persistent state (spec §9: singletons are
// explicitly torn down by the orchestrator at exit).
func (a *App) Close() {
	a.Cache.Flush()
	a.Metrics.Flush()
	if db, err := a.actionsDB.DB(); err == nil {
		_ = db.Close()
	}
	if db, err := a.failuresDB.DB(); err == nil {
		_ = db.Close()
	}
}

// buildInverseOp adapts the actiontracker's static rollback-strategy table
// into a concrete InverseOp by re-invoking the matching tool registry
// operation with arguments recovered from the recorded action's params
// (spec §4.4/§4.5). Kept outside the rollback package to avoid it needing
// to import the tool registry (see rollback.go's InverseOp doc).
func buildInverseOp(registry tool.Registry, sb *sandbox.Sandbox, tracker *actiontracker.Tracker) rollback.InverseOp {
	return func(action models.ActionModel) error {
		var params map[string]interface{}
		_ = json.Unmarshal([]byte(action.ParamsJSON), &params)

		strategy := actiontracker.RollbackStrategy(action.RollbackStrategy)
		switch strategy {
		case actiontracker.StrategyDeletePath:
			path := stringArg(params, "path", "destination")
			return invokeOp(registry, sb, "FileOps", "delete_file", map[string]interface{}{"path": path})
		case actiontracker.StrategyMoveBack:
			src := stringArg(params, "source")
			dst := stringArg(params, "destination")
			return invokeOp(registry, sb, "FileOps", "move_file", map[string]interface{}{"source": dst, "destination": src})
		case actiontracker.StrategyRestoreFromCheckpoint:
			path := stringArg(params, "path")
			backup, ok := tracker.CheckpointForPath(action.TransactionID, path)
			if !ok {
				return fmt.Errorf("no checkpoint backup found for %s", path)
			}
			return restoreFromBackup(backup, path)
		case actiontracker.StrategyUninstallPackage:
			pkg := stringArg(params, "package")
			return invokeOp(registry, sb, "PackageOps", "uninstall", map[string]interface{}{"package": pkg})
		case actiontracker.StrategyInstallPackage:
			pkg := stringArg(params, "package")
			return invokeOp(registry, sb, "PackageOps", "install", map[string]interface{}{"package": pkg})
		case actiontracker.StrategyGitReset:
			var result map[string]interface{}
			_ = json.Unmarshal([]byte(action.ResultJSON), &result)
			hash := ""
			if md, ok := result["metadata"].(map[string]interface{}); ok {
				hash, _ = md["parent_commit"].(string)
			}
			if hash == "" {
				hash = "HEAD~1"
			}
			return invokeOp(registry, sb, "GitOps", "reset", map[string]interface{}{"to": hash})
		case actiontracker.StrategyServiceStop:
			svc := stringArg(params, "service")
			return invokeOp(registry, sb, "ServiceOps", "stop", map[string]interface{}{"service": svc})
		case actiontracker.StrategyServiceStart:
			svc := stringArg(params, "service")
			return invokeOp(registry, sb, "ServiceOps", "start", map[string]interface{}{"service": svc})
		case actiontracker.StrategyContainerStopRemove:
			id := stringArg(params, "container_id")
			return invokeOp(registry, sb, "ContainerOps", "stop", map[string]interface{}{"container_id": id})
		default:
			return fmt.Errorf("no inverse operation for strategy %q", strategy)
		}
	}
}

func stringArg(params map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := params[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func invokeOp(registry tool.Registry, sb *sandbox.Sandbox, toolName, action string, args map[string]interface{}) error {
	op, err := registry.Resolve(toolName, action)
	if err != nil {
		return err
	}
	res, err := op.Invoke(context.Background(), args, sb)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s.%s inverse failed: %s", toolName, action, res.Error)
	}
	return nil
}

// restoreFromBackup copies a checkpointed backup file back over path,
// undoing a write_file/delete_file step (spec §4.4 restore_from_checkpoint).
func restoreFromBackup(backupPath, path string) error {
	in, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("open backup %s: %w", backupPath, err)
	}
	defer in.Close()
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("restore to %s: %w", path, err)
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
