// Package envctx implements the context builder (spec C16): a pure value
// snapshot of the current utterance's environment, gathered for prompt
// context. Grounded on the teacher's prompt.BuildContext shape (best-effort
// probes that degrade to sentinel defaults rather than propagate errors),
// adapted from conversational context into directory/git/time/process/
// filesystem/system facts.
package envctx

import (
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Directory describes the working directory (spec §4.16).
type Directory struct {
	AbsolutePath string   `json:"absolute_path"`
	HomeRelative string   `json:"home_relative"`
	ProjectTypes []string `json:"project_types"`
}

// Git describes the repository state of the working directory, if any.
type Git struct {
	IsRepo          bool   `json:"is_repo"`
	Branch          string `json:"branch,omitempty"`
	StatusSummary   string `json:"status_summary,omitempty"`
	ModifiedFiles   int    `json:"modified_files_count"`
	AheadCommits    int    `json:"ahead_commits"`
}

// TimeOfDay buckets the hour-of-day (spec §4.16).
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

// TimeInfo captures temporal context.
type TimeInfo struct {
	Timestamp  time.Time `json:"timestamp"`
	Hour       int       `json:"hour"`
	DayOfWeek  string    `json:"day_of_week"`
	TimeOfDay  TimeOfDay `json:"time_of_day"`
	IsWeekend  bool      `json:"is_weekend"`
	IsWorkHour bool      `json:"is_work_hours"`
}

// Processes summarizes detected dev-tool processes.
type Processes struct {
	Count int      `json:"count"`
	Known []string `json:"known"`
}

// System captures coarse load/disk facts.
type System struct {
	LoadAverage     float64 `json:"load_average"`
	DiskUsagePct    float64 `json:"disk_usage_percent"`
	IsBusy          bool    `json:"is_busy"`
	LowDisk         bool    `json:"low_disk"`
}

// Snapshot is the full C16 value (spec §3, §4.16). It is always populated —
// a failing probe contributes sentinel defaults instead of an error.
type Snapshot struct {
	Directory   Directory   `json:"directory"`
	Git         Git         `json:"git"`
	Time        TimeInfo    `json:"time"`
	Processes   Processes   `json:"processes"`
	RecentFiles []string    `json:"recent_files"`
	System      System      `json:"system"`
}

var manifestFiles = map[string]string{
	"go.mod":           "go",
	"package.json":     "node",
	"Cargo.toml":       "rust",
	"pyproject.toml":   "python",
	"requirements.txt": "python",
	"pom.xml":          "java",
	"build.gradle":     "java",
	"Gemfile":          "ruby",
}

var knownDevTools = []string{"node", "python", "python3", "java", "docker", "postgres", "redis-server", "go"}

// Build gathers a full environment snapshot for cwd. Every probe is
// independently best-effort (spec §4.16: "any subsystem whose probe fails
// contributes its sentinel defaults").
func Build(cwd string) Snapshot {
	now := time.Now()
	return Snapshot{
		Directory:   buildDirectory(cwd),
		Git:         buildGit(cwd),
		Time:        buildTime(now),
		Processes:   buildProcesses(),
		RecentFiles: buildRecentFiles(cwd, now),
		System:      buildSystem(),
	}
}

func buildDirectory(cwd string) Directory {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		abs = cwd
	}
	home, err := os.UserHomeDir()
	homeRel := abs
	if err == nil {
		if rel, rerr := filepath.Rel(home, abs); rerr == nil && !strings.HasPrefix(rel, "..") {
			homeRel = filepath.Join("~", rel)
		}
	}

	var types []string
	entries, err := os.ReadDir(abs)
	if err == nil {
		for _, e := range entries {
			if t, ok := manifestFiles[e.Name()]; ok {
				types = append(types, t)
			}
		}
	}
	return Directory{AbsolutePath: abs, HomeRelative: homeRel, ProjectTypes: types}
}

func buildGit(cwd string) Git {
	g := Git{IsRepo: false}
	if out, err := runGit(cwd, "rev-parse", "--is-inside-work-tree"); err != nil || strings.TrimSpace(out) != "true" {
		return g
	}
	g.IsRepo = true

	if out, err := runGit(cwd, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		g.Branch = strings.TrimSpace(out)
	}
	if out, err := runGit(cwd, "status", "--porcelain"); err == nil {
		lines := nonEmptyLines(out)
		g.ModifiedFiles = len(lines)
		if len(lines) == 0 {
			g.StatusSummary = "clean"
		} else {
			g.StatusSummary = strconv.Itoa(len(lines)) + " file(s) changed"
		}
	}
	if out, err := runGit(cwd, "rev-list", "--count", "@{u}..HEAD"); err == nil {
		if n, perr := strconv.Atoi(strings.TrimSpace(out)); perr == nil {
			g.AheadCommits = n
		}
	}
	return g
}

func runGit(cwd string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = cwd
	out, err := cmd.Output()
	return string(out), err
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func buildTime(now time.Time) TimeInfo {
	hour := now.Hour()
	var tod TimeOfDay
	switch {
	case hour >= 5 && hour < 12:
		tod = Morning
	case hour >= 12 && hour < 17:
		tod = Afternoon
	case hour >= 17 && hour < 21:
		tod = Evening
	default:
		tod = Night
	}
	weekday := now.Weekday()
	isWeekend := weekday == time.Saturday || weekday == time.Sunday
	isWorkHour := !isWeekend && hour >= 9 && hour < 18

	return TimeInfo{
		Timestamp:  now,
		Hour:       hour,
		DayOfWeek:  weekday.String(),
		TimeOfDay:  tod,
		IsWeekend:  isWeekend,
		IsWorkHour: isWorkHour,
	}
}

func buildProcesses() Processes {
	out, err := exec.Command("ps", "-A", "-o", "comm=").Output()
	if err != nil {
		return Processes{}
	}
	lines := nonEmptyLines(string(out))
	seen := make(map[string]bool)
	var known []string
	for _, l := range lines {
		name := strings.TrimSpace(l)
		for _, dt := range knownDevTools {
			if strings.Contains(name, dt) && !seen[dt] {
				seen[dt] = true
				known = append(known, dt)
			}
		}
	}
	return Processes{Count: len(lines), Known: known}
}

func buildRecentFiles(cwd string, now time.Time) []string {
	var out []string
	cutoff := now.Add(-24 * time.Hour)

	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		if depth > 2 || len(out) >= 10 {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if len(out) >= 10 {
				return
			}
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			full := filepath.Join(dir, e.Name())
			if e.IsDir() {
				walk(full, depth+1)
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				out = append(out, full)
			}
		}
	}
	walk(cwd, 0)

	sortByModTimeDesc(out)
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}

func sortByModTimeDesc(paths []string) {
	for i := 1; i < len(paths); i++ {
		for j := i; j > 0; j-- {
			ti, erri := os.Stat(paths[j])
			tj, errj := os.Stat(paths[j-1])
			if erri != nil || errj != nil {
				break
			}
			if ti.ModTime().After(tj.ModTime()) {
				paths[j], paths[j-1] = paths[j-1], paths[j]
			} else {
				break
			}
		}
	}
}

func buildSystem() System {
	s := System{}
	if runtime.GOOS == "linux" {
		if data, err := os.ReadFile("/proc/loadavg"); err == nil {
			fields := strings.Fields(string(data))
			if len(fields) > 0 {
				if v, perr := strconv.ParseFloat(fields[0], 64); perr == nil {
					s.LoadAverage = v
				}
			}
		}
	}
	s.IsBusy = s.LoadAverage > 2.0

	if usr, err := user.Current(); err == nil {
		if pct, ok := diskUsagePercent(usr.HomeDir); ok {
			s.DiskUsagePct = pct
		}
	}
	s.LowDisk = s.DiskUsagePct > 90.0
	return s
}
