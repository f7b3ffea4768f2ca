package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/lipgloss"
)

const appVersion = "0.2.0"

// brand colors
var (
	colorCyan    = lipgloss.Color("#00D7FF")
	colorDimCyan = lipgloss.Color("#00AFAF")
	colorGray    = lipgloss.Color("#6C6C6C")
	colorWhite   = lipgloss.Color("#FFFFFF")
	colorDim     = lipgloss.Color("#4E4E4E")
	colorGreen   = lipgloss.Color("#00FF87")
	colorYellow  = lipgloss.Color("#FFD75F")
	colorRed     = lipgloss.Color("#FF5F5F")
)

// Logo lines — clean block font, no box-drawing corners
var logoLines = []string{
	" ███████ ███████ ███    ██ ██    ██ ███████ ",
	"      ██ ██      ████   ██ ██    ██ ██      ",
	"    ██   █████   ██ ██  ██ ██    ██ ███████ ",
	"   ██    ██      ██  ██ ██ ██    ██      ██ ",
	" ███████ ███████ ██   ████  ██████  ███████ ",
}

// Gradient colors top→bottom (cyan → blue → violet)
var logoGradient = []lipgloss.Color{
	lipgloss.Color("#00FFFF"),
	lipgloss.Color("#00CFFF"),
	lipgloss.Color("#009FFF"),
	lipgloss.Color("#006FFF"),
	lipgloss.Color("#5F5FFF"),
}

// BannerInfo carries dynamic stats shown in the welcome banner.
type BannerInfo struct {
	Tier         string // model router's selected tier for this session
	ToolCount    int    // operations registered in the tool registry
	StateRoot    string
	ProjectLng   string
	CacheHitRate float64
}

// DetectProjectLanguage scans dir for known project manifest markers.
func DetectProjectLanguage(dir string) string {
	markers := []struct {
		file string
		lang string
	}{
		{"go.mod", "Go"},
		{"Cargo.toml", "Rust"},
		{"package.json", "Node.js"},
		{"pyproject.toml", "Python"},
		{"requirements.txt", "Python"},
		{"pom.xml", "Java"},
		{"build.gradle", "Java"},
		{"Gemfile", "Ruby"},
		{"mix.exs", "Elixir"},
	}
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(dir, m.file)); err == nil {
			return m.lang
		}
	}
	return ""
}

// RenderBanner returns the styled banner with gradient logo that heads the
// `zenus status` report.
func RenderBanner(info BannerInfo, width int) string {
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	valueStyle := lipgloss.NewStyle().Foreground(colorWhite)
	tipStyle := lipgloss.NewStyle().Foreground(colorDim)
	greenStyle := lipgloss.NewStyle().Foreground(colorGreen)
	versionStyle := lipgloss.NewStyle().Foreground(colorDimCyan)

	var logo string
	if width >= 52 {
		for i, line := range logoLines {
			c := logoGradient[i%len(logoGradient)]
			logo += lipgloss.NewStyle().Foreground(c).Bold(true).Render(line) + "\n"
		}
	} else {
		logo = lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Render(" ◇  Z E N U S") + "\n"
	}

	ver := versionStyle.Render(fmt.Sprintf("  v%s", appVersion))

	tierLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("Tier "),
		valueStyle.Render(info.Tier),
	)
	toolsLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("Tools"),
		greenStyle.Render(fmt.Sprintf("%d registered", info.ToolCount)),
	)

	root := info.StateRoot
	if root == "" {
		root, _ = os.Getwd()
	}
	projectDesc := root
	if info.ProjectLng != "" {
		projectDesc += fmt.Sprintf(" (%s)", info.ProjectLng)
	}
	stateLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("State"),
		valueStyle.Render(projectDesc),
	)
	envLine := fmt.Sprintf("  %s %s/%s  %s %s",
		labelStyle.Render("Env  "),
		labelStyle.Render(runtime.GOOS),
		labelStyle.Render(runtime.GOARCH),
		labelStyle.Render("Cache hit-rate"),
		valueStyle.Render(fmt.Sprintf("%.0f%%", info.CacheHitRate*100)),
	)

	tips := tipStyle.Render("  Type an utterance · explain last · rollback --last 1 · Ctrl+C to abort")

	return fmt.Sprintf("\n%s%s\n\n%s\n%s\n%s\n%s\n\n%s\n",
		logo, ver,
		tierLine, toolsLine, stateLine, envLine,
		tips,
	)
}
