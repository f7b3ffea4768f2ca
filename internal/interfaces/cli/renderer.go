// Package cli holds the terminal side of the CLI surface (spec §6): the
// lipgloss/glamour rendering of plans, confirmations, DAG levels, and
// failure reports, the banner, and the interactive prompts. The cobra
// commands themselves live in cmd/zenus. Grounded on the teacher's
// interfaces/cli rendering package, generalized from chat/tool-call events
// to intent plans and rollback/explain reports.
package cli

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"

	"github.com/zenus-ai/zenus/internal/domain/dag"
	"github.com/zenus-ai/zenus/internal/domain/executor"
	"github.com/zenus-ai/zenus/internal/domain/failure"
	"github.com/zenus-ai/zenus/internal/domain/intent"
	"github.com/zenus-ai/zenus/internal/domain/rollback"
)

// Renderer handles all output rendering: markdown, plans, confirmations.
type Renderer struct {
	glamour *glamour.TermRenderer
	width   int
}

// NewRenderer creates a renderer with the given terminal width.
func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	return &Renderer{
		glamour: r,
		width:   width,
	}
}

// RenderHTML converts a markdown report to HTML, used by `explain --html`
// to export a transaction report for sharing outside the terminal.
func (r *Renderer) RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return "<!doctype html>\n<meta charset=\"utf-8\">\n" + buf.String(), nil
}

// RenderMarkdown renders markdown text to styled terminal output.
func (r *Renderer) RenderMarkdown(md string) string {
	if r.glamour == nil {
		return md
	}
	out, err := r.glamour.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

func riskStyle(risk intent.Risk) lipgloss.Style {
	switch risk {
	case intent.RiskDestructive:
		return lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	case intent.RiskOverwrite:
		return lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	case intent.RiskCreate:
		return lipgloss.NewStyle().Foreground(colorCyan)
	default:
		return lipgloss.NewStyle().Foreground(colorGray)
	}
}

func riskLabel(risk intent.Risk) string {
	switch risk {
	case intent.RiskReadOnly:
		return "read-only"
	case intent.RiskCreate:
		return "create"
	case intent.RiskOverwrite:
		return "overwrite"
	case intent.RiskDestructive:
		return "destructive"
	default:
		return "unknown"
	}
}

// RenderStep renders one plan step with a risk-colored badge.
func (r *Renderer) RenderStep(i int, s intent.Step) string {
	badge := riskStyle(s.Risk).Render(fmt.Sprintf("[%s]", riskLabel(s.Risk)))
	nameStyle := lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	argStyle := lipgloss.NewStyle().Foreground(colorGray)
	return fmt.Sprintf("  %d. %s %s %s", i+1, badge, nameStyle.Render(s.Tool+"."+s.Action), argStyle.Render(summarizeArgs(s.Args)))
}

// RenderPlan renders a full intent plan as styled lines; RenderConfirmation
// wraps it in a bordered approval box.
func (r *Renderer) RenderPlan(in intent.Intent) string {
	var b strings.Builder
	titleStyle := lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	b.WriteString(titleStyle.Render("Plan: "+in.Goal) + "\n")
	for i, s := range in.Steps {
		b.WriteString(r.RenderStep(i, s) + "\n")
	}
	if in.RequiresConfirmation {
		hintStyle := lipgloss.NewStyle().Foreground(colorGray)
		b.WriteString("\n" + hintStyle.Render("This plan includes a destructive step and requires confirmation."))
	}
	return b.String()
}

// RenderConfirmation wraps RenderPlan in a bordered approval box with a
// yes/no hint, shown before a high-risk step executes.
func (r *Renderer) RenderConfirmation(in intent.Intent) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorYellow).
		Padding(0, 1).
		Width(r.width - 4)
	hintStyle := lipgloss.NewStyle().Foreground(colorGray)
	content := r.RenderPlan(in) + "\n\n" + hintStyle.Render("[y]es  [n]o")
	return boxStyle.Render(content)
}

// RenderDAG renders a computed dependency graph's levels and speedup,
// used by `explain` to show the parallel schedule chosen for a plan.
func (r *Renderer) RenderDAG(g *dag.Graph) string {
	if g == nil || g.N == 0 {
		return ""
	}
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	valueStyle := lipgloss.NewStyle().Foreground(colorWhite)
	var b strings.Builder
	for lvl, members := range g.Levels {
		b.WriteString(fmt.Sprintf("  %s %s %v\n", labelStyle.Render(fmt.Sprintf("level %d", lvl+1)), labelStyle.Render("steps"), members))
	}
	parallel := "no"
	if g.IsParallelizable {
		parallel = "yes"
	}
	b.WriteString(fmt.Sprintf("  %s %s  %s %s",
		labelStyle.Render("speedup"), valueStyle.Render(fmt.Sprintf("%.2fx", g.Speedup)),
		labelStyle.Render("parallelizable"), valueStyle.Render(parallel),
	))
	return b.String()
}

// RenderStepResults renders per-step success/failure for an executed plan.
func (r *Renderer) RenderStepResults(steps []intent.Step, results []executor.StepResult) string {
	var b strings.Builder
	okStyle := lipgloss.NewStyle().Foreground(colorGreen)
	failStyle := lipgloss.NewStyle().Foreground(colorRed)
	durStyle := lipgloss.NewStyle().Foreground(colorGray)
	for i, res := range results {
		name := steps[i].Tool + "." + steps[i].Action
		dur := durStyle.Render(fmt.Sprintf(" (%s)", formatDuration(res.Duration)))
		if res.Err != nil {
			b.WriteString(fmt.Sprintf("  %s %s%s — %s\n", failStyle.Render("✗"), name, dur, res.Err.Error()))
			continue
		}
		b.WriteString(fmt.Sprintf("  %s %s%s\n", okStyle.Render("✓"), name, dur))
	}
	return b.String()
}

// RenderFailure renders a post-failure analysis: error type, top
// suggestions, recovery plan, and a recurring-failure flag.
func (r *Renderer) RenderFailure(tool string, pa failure.PostAnalysis) string {
	titleStyle := lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s failed: %s", tool, pa.ErrorType)) + "\n")
	for _, s := range pa.Suggestions {
		b.WriteString("  - " + s + "\n")
	}
	if pa.RecoveryPlan != "" {
		b.WriteString(labelStyle.Render("  recovery: "+pa.RecoveryPlan) + "\n")
	}
	if pa.IsRecurring {
		b.WriteString(lipgloss.NewStyle().Foreground(colorYellow).Render("  this failure is recurring") + "\n")
	}
	return b.String()
}

// RenderRollbackPlan renders a dry-run rollback plan or a completed
// rollback's per-action outcome.
func (r *Renderer) RenderRollbackPlan(out *rollback.Outcome) string {
	if out == nil {
		return ""
	}
	var b strings.Builder
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	okStyle := lipgloss.NewStyle().Foreground(colorGreen)
	failStyle := lipgloss.NewStyle().Foreground(colorRed)
	for _, step := range out.Plan {
		b.WriteString(fmt.Sprintf("  #%d %s\n", step.ActionID, step.Description))
	}
	for _, id := range out.Succeeded {
		b.WriteString(fmt.Sprintf("  %s action #%d rolled back\n", okStyle.Render("✓"), id))
	}
	for id, err := range out.Failed {
		b.WriteString(fmt.Sprintf("  %s action #%d: %s\n", failStyle.Render("✗"), id, err))
	}
	b.WriteString(labelStyle.Render("  status: " + out.FinalStatus))
	return b.String()
}

// RenderThinking renders a thinking indicator while the oracle streams.
func (r *Renderer) RenderThinking(frame string) string {
	style := lipgloss.NewStyle().Foreground(colorDimCyan).Italic(true)
	return style.Render(fmt.Sprintf("  %s thinking...", frame))
}

// summarizeArgs extracts key args for compact display.
func summarizeArgs(args map[string]interface{}) string {
	if len(args) == 0 {
		return ""
	}

	priority := []string{"command", "path", "source", "destination", "package", "service", "image", "message", "url"}
	var parts []string

	for _, key := range priority {
		if v, ok := args[key]; ok {
			valStr := fmt.Sprintf("%v", v)
			if len(valStr) > 60 {
				valStr = valStr[:60] + "…"
			}
			parts = append(parts, fmt.Sprintf("%s=%s", key, valStr))
		}
	}

	if len(parts) == 0 {
		for k, v := range args {
			valStr := fmt.Sprintf("%v", v)
			if len(valStr) > 60 {
				valStr = valStr[:60] + "…"
			}
			parts = append(parts, fmt.Sprintf("%s=%s", k, valStr))
			break
		}
	}

	return strings.Join(parts, " ")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
