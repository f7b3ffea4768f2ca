// Command zenus is the CLI entrypoint (spec §6): execute/rollback/status/
// explain subcommands plus version/doctor, grounded on the teacher's
// cmd/cli/main.go cobra root with its model/workspace flag overrides and
// "doctor" diagnostic subcommand.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenus-ai/zenus/internal/application"
	"github.com/zenus-ai/zenus/internal/domain/oracle"
	"github.com/zenus-ai/zenus/internal/domain/orchestrator"
	"github.com/zenus-ai/zenus/internal/domain/pattern"
	"github.com/zenus-ai/zenus/internal/domain/rollback"
	"github.com/zenus-ai/zenus/internal/infrastructure/config"
	"github.com/zenus-ai/zenus/internal/infrastructure/logger"
	"github.com/zenus-ai/zenus/internal/infrastructure/router"
	"github.com/zenus-ai/zenus/internal/interfaces/cli"
	apperrors "github.com/zenus-ai/zenus/pkg/errors"
)

const (
	cliVersion = "0.2.0"
	cliName    = "zenus"
)

// Exit codes per spec §6.
const (
	exitOK              = 0
	exitExecutionFailed = 1
	exitTranslationFail = 2
	exitSandboxViolation = 3
	exitUserAbort       = 4
	exitMaxIterations   = 5
)

func main() {
	root := &cobra.Command{
		Use:           cliName,
		Short:         "zenus — natural language command execution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newExecuteCmd(),
		newRollbackCmd(),
		newStatusCmd(),
		newExplainCmd(),
		newVersionCmd(),
		newDoctorCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch {
	case apperrors.IsUserAbort(err):
		return exitUserAbort
	case apperrors.IsSandboxViolation(err):
		return exitSandboxViolation
	}
	var appErr *apperrors.AppError
	if as(err, &appErr) {
		switch appErr.Code {
		case apperrors.CodeTranslationError, apperrors.CodeSchemaError:
			return exitTranslationFail
		}
	}
	if strings.Contains(err.Error(), "max iterations") {
		return exitMaxIterations
	}
	return exitExecutionFailed
}

func as(err error, target **apperrors.AppError) bool {
	for err != nil {
		if e, ok := err.(*apperrors.AppError); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func newExecuteCmd() *cobra.Command {
	var dryRun, explain, iterative, forceOneshot bool
	cmd := &cobra.Command{
		Use:   "execute <utterance>",
		Short: "translate an utterance into an intent and execute it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer app.Close()

			utterance := strings.Join(args, " ")
			renderer := cli.NewRenderer(80)

			outcome, err := app.Orchestrator.Execute(cmd.Context(), utterance, orchestrator.Options{
				DryRun: dryRun, Explain: explain, Iterative: iterative, ForceOneshot: forceOneshot,
			})
			if outcome != nil {
				if outcome.Plan != "" {
					fmt.Println(outcome.Plan)
				}
				if outcome.Intent != nil && len(outcome.StepResults) > 0 {
					fmt.Println(renderer.RenderStepResults(outcome.Intent.Steps, outcome.StepResults))
				}
				fmt.Printf("status: %s", outcome.Status)
				if outcome.TransactionID != "" {
					fmt.Printf("  transaction: %s", outcome.TransactionID)
				}
				fmt.Println()

				if outcome.FeedbackEligible && app.Config.Feedback.PromptsEnabled {
					if text, ok := cli.PromptFeedback("how did that go? (helps zenus learn)"); ok {
						app.Feedback.Record(utterance, text, 0)
					}
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan without executing")
	cmd.Flags().BoolVar(&explain, "explain", false, "render the plan and stop before confirmation")
	cmd.Flags().BoolVar(&iterative, "iterative", false, "force the iterative sub-machine")
	cmd.Flags().BoolVar(&forceOneshot, "force-oneshot", false, "skip complexity-based iteration")
	return cmd
}

func newRollbackCmd() *cobra.Command {
	var last int
	var transaction, checkpoint string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "undo a prior transaction's actions or restore a checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer app.Close()

			renderer := cli.NewRenderer(80)
			engine := app.Orchestrator.Rollback()

			switch {
			case checkpoint != "":
				out, warnings, err := engine.RestoreCheckpoint(checkpoint, dryRun)
				if err != nil {
					return err
				}
				fmt.Println(renderer.RenderRollbackPlan(out))
				for _, w := range warnings {
					fmt.Println("warning:", w)
				}
				return nil
			case transaction != "":
				out, err := engine.RollbackTransaction(transaction, dryRun)
				if err != nil {
					return err
				}
				fmt.Println(renderer.RenderRollbackPlan(out))
				return nil
			default:
				if last <= 0 {
					last = 1
				}
				out, err := engine.RollbackLastN(last, dryRun)
				if err != nil {
					return err
				}
				fmt.Println(renderer.RenderRollbackPlan(out))
				return nil
			}
		},
	}
	cmd.Flags().IntVar(&last, "last", 0, "roll back the last N actions of the most recent transaction")
	cmd.Flags().StringVar(&transaction, "transaction", "", "roll back a specific transaction by ID")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "restore a named checkpoint")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the rollback plan without executing it")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show cache, router, and transaction summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer app.Close()

			stats := app.Cache.Stats()
			hitRate := 0.0
			if total := stats.Hits + stats.Misses; total > 0 {
				hitRate = float64(stats.Hits) / float64(total)
			}
			cwd, _ := os.Getwd()
			fmt.Println(cli.RenderBanner(cli.BannerInfo{
				Tier:         string(app.Router.Route(0.5).SelectedModel),
				ToolCount:    len(app.Registry.List()),
				StateRoot:    app.Config.StateRoot,
				ProjectLng:   cli.DetectProjectLanguage(cwd),
				CacheHitRate: hitRate,
			}, 80))

			fmt.Printf("cache: size=%d hits=%d misses=%d evictions=%d tokens_saved=%d\n",
				app.Cache.Size(), stats.Hits, stats.Misses, stats.Evictions, stats.TokensSaved())

			txn, err := app.Tracker.LastTransaction()
			if err == nil && txn != nil {
				fmt.Printf("last transaction: %s status=%s rollback_status=%s\n", txn.ID, txn.Status, txn.RollbackStatus)
			}

			for tier, s := range app.Router.Stats() {
				fmt.Printf("router[%s]: requests=%d successes=%d failures=%d avg_latency_ms=%d\n",
					tier, s.Requests, s.Successes, s.Failures, s.AvgLatencyMS())
			}
			fmt.Printf("session requests: %d\n", app.Router.SessionRequests())

			if txns, terr := app.Tracker.RecentTransactions(100); terr == nil && len(txns) > 0 {
				records := make([]pattern.Record, 0, len(txns))
				for _, txn := range txns {
					rec := pattern.Record{Timestamp: txn.StartTime, Command: txn.UserInput}
					if actions, aerr := app.Tracker.ListTransactionActions(txn.ID); aerr == nil && len(actions) > 0 {
						rec.Tool = actions[0].Tool
					}
					records = append(records, rec)
				}
				detected := app.Orchestrator.DetectPatterns(records)
				if len(detected) > 0 {
					fmt.Println("patterns:")
					for _, p := range detected {
						fmt.Printf("  [%s] %s (seen %d times, confidence %.2f)\n", p.Type, p.Summary, p.Count, p.Confidence)
					}
				}
			}
			return nil
		},
	}
}

func newExplainCmd() *cobra.Command {
	var htmlPath string
	cmd := &cobra.Command{
		Use:   "explain [last|history|N]",
		Short: "report why the most recent transaction executed the way it did (history and N are accepted but also report the most recent one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer app.Close()

			target := "last"
			if len(args) > 0 {
				target = args[0]
			}
			if target != "last" && target != "history" {
				if _, perr := strconv.Atoi(target); perr != nil {
					return apperrors.NewInvalidInputError("explain target must be last, history, or a transaction index")
				}
			}

			txn, err := app.Tracker.LastTransaction()
			if err != nil {
				return err
			}
			actions, err := app.Tracker.ListTransactionActions(txn.ID)
			if err != nil {
				return err
			}
			feasibility := rollback.Feasible(actions)

			var md strings.Builder
			fmt.Fprintf(&md, "## Transaction `%s`\n\n", txn.ID)
			fmt.Fprintf(&md, "- goal: %s\n- status: %s\n- rollback status: %s\n\n", txn.IntentGoal, txn.Status, orDash(txn.RollbackStatus))
			for _, a := range actions {
				fmt.Fprintf(&md, "- `%s.%s` rollback strategy `%s`, rolled back: %v\n", a.Tool, a.Operation, a.RollbackStrategy, a.RolledBack)
			}
			fmt.Fprintf(&md, "\nRollback feasible: %v (%s)\n", feasibility.Possible, feasibility.Reason)

			renderer := cli.NewRenderer(80)
			if htmlPath != "" {
				html, herr := renderer.RenderHTML(md.String())
				if herr != nil {
					return herr
				}
				if werr := os.WriteFile(htmlPath, []byte(html), 0o644); werr != nil {
					return werr
				}
				fmt.Println("wrote", htmlPath)
				return nil
			}
			fmt.Println(renderer.RenderMarkdown(md.String()))
			return nil
		},
	}
	cmd.Flags().StringVar(&htmlPath, "html", "", "write the report as HTML to the given path instead of rendering it")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the zenus version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	}
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "diagnose the local environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("zenus doctor v%s\n\n", cliVersion)
			checks := []struct {
				name  string
				check func() (string, bool)
			}{
				{"config file", checkConfig},
				{"config syntax", checkConfigSyntax},
				{"state directory", checkStateDir},
			}
			allOK := true
			for _, c := range checks {
				val, ok := c.check()
				icon := "\033[92m✓\033[0m"
				if !ok {
					icon = "\033[91m✗\033[0m"
					allOK = false
				}
				fmt.Printf("  %s %s: %s\n", icon, c.name, val)
			}
			fmt.Println()
			if allOK {
				fmt.Println("all checks passed")
			} else {
				fmt.Println("one or more checks failed, see above")
			}
			return nil
		},
	}
}

func checkConfig() (string, bool) {
	path := config.HomeDir() + "/config.yaml"
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return "not found: " + path, false
}

func checkConfigSyntax() (string, bool) {
	path := config.HomeDir() + "/config.yaml"
	if _, err := os.Stat(path); err != nil {
		return "skipped (no config file)", true
	}
	if err := config.ValidateFile(path); err != nil {
		return err.Error(), false
	}
	return "valid", true
}

func checkStateDir() (string, bool) {
	path := config.HomeDir() + "/state"
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return "not found: " + path, false
}

// bootstrap wires config+logger+App for one CLI invocation, matching the
// teacher's runInteractive: quiet console logging, config.Load, then the
// composition root. The confirmer is cli.Confirm, a bubbletea y/n prompt
// that falls back to reading a line from stdin.
func bootstrap() (*application.App, *zap.Logger, error) {
	log, err := logger.NewLogger(logger.Config{Level: "error", Format: "console", OutputPath: "stderr"})
	if err != nil {
		return nil, nil, fmt.Errorf("logger init: %w", err)
	}

	cfg, v, err := config.LoadWithViper()
	if err != nil {
		return nil, log, fmt.Errorf("config: %w", err)
	}

	orc := &oracle.StubOracle{
		TranslateResponses: []string{`{"goal":"no-op","steps":[]}`},
	}

	app, err := application.New(cfg, log, orc, cli.Confirm)
	if err != nil {
		return nil, log, fmt.Errorf("init app: %w", err)
	}

	// Hot-reload the operator's force_model override so long iterative runs
	// pick up config edits without a restart.
	watcher := config.NewWatcher(v, *cfg, log)
	watcher.OnChange(func(c config.Config) {
		app.Router.SetForceModel(router.Tier(c.Router.ForceModel))
	})

	return app, log, nil
}
