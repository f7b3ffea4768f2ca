// Package failure implements the failure logger/analyzer (spec C10):
// categorization, pattern aggregation, pre/post-execution analysis, and the
// retry-decision table the adaptive planner (C9) consults.
package failure

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// ErrorType is the stable taxonomy spec §3 defines.
type ErrorType string

const (
	ErrPermissionDenied ErrorType = "permission_denied"
	ErrFileNotFound     ErrorType = "file_not_found"
	ErrCommandNotFound  ErrorType = "command_not_found"
	ErrSyntaxError      ErrorType = "syntax_error"
	ErrNetworkError     ErrorType = "network_error"
	ErrTimeout          ErrorType = "timeout"
	ErrDiskSpace        ErrorType = "disk_space"
	ErrPackageConflict  ErrorType = "package_conflict"
	ErrMemoryError      ErrorType = "memory_error"
	ErrProcessKilled    ErrorType = "process_killed"
	ErrParseError       ErrorType = "parse_error"
	ErrSandboxViolation ErrorType = "sandbox_violation"
	ErrUnknown          ErrorType = "unknown"
)

// substringMatch pairs each category with the case-insensitive substrings
// that identify it (spec §4.10: "stable case-insensitive substring match").
// Order matters: more specific categories are checked first.
var substringMatch = []struct {
	t      ErrorType
	phrases []string
}{
	{ErrSandboxViolation, []string{"sandbox violation", "outside allowed roots", "read-only root"}},
	{ErrPermissionDenied, []string{"permission denied", "access denied", "eacces", "not authorized", "forbidden"}},
	{ErrFileNotFound, []string{"no such file", "file not found", "enoent", "cannot find the path"}},
	{ErrCommandNotFound, []string{"command not found", "executable file not found", "not recognized as"}},
	{ErrSyntaxError, []string{"syntax error", "unexpected token", "parse error: syntax"}},
	{ErrNetworkError, []string{"connection refused", "network is unreachable", "no route to host", "dns", "tls handshake"}},
	{ErrTimeout, []string{"timed out", "timeout", "deadline exceeded", "context deadline"}},
	{ErrDiskSpace, []string{"no space left", "disk full", "enospc"}},
	{ErrPackageConflict, []string{"conflicting dependency", "version conflict", "could not resolve"}},
	{ErrMemoryError, []string{"out of memory", "oom", "cannot allocate memory"}},
	{ErrProcessKilled, []string{"killed", "signal: killed", "sigkill"}},
	{ErrParseError, []string{"json", "unmarshal", "malformed"}},
}

// Categorize maps an error message to a stable ErrorType via case-insensitive
// substring matching (spec §4.10).
func Categorize(message string) ErrorType {
	lower := strings.ToLower(message)
	for _, entry := range substringMatch {
		for _, phrase := range entry.phrases {
			if strings.Contains(lower, phrase) {
				return entry.t
			}
		}
	}
	return ErrUnknown
}

var (
	pathRe = regexp.MustCompile(`(/[\w.\-]+)+`)
	numRe  = regexp.MustCompile(`\b\d+\b`)
)

// Normalize rewrites an error message so that paths become <path> and
// integers become <NUM>, lowercases, and truncates — spec §4.10 / §8
// invariant 9: normalize(e) = normalize(normalize(e)), stable under
// replacing paths/integers.
func Normalize(message string) string {
	n := pathRe.ReplaceAllString(message, "<path>")
	n = numRe.ReplaceAllString(n, "<NUM>")
	n = strings.ToLower(strings.TrimSpace(n))
	const maxLen = 200
	if len(n) > maxLen {
		n = n[:maxLen]
	}
	return n
}

// PatternHash computes H(tool ‖ error_type ‖ normalize(error_message))
// (spec §3 Failure / FailurePattern).
func PatternHash(tool string, errType ErrorType, message string) string {
	h := sha256.New()
	h.Write([]byte(tool))
	h.Write([]byte{'|'})
	h.Write([]byte(errType))
	h.Write([]byte{'|'})
	h.Write([]byte(Normalize(message)))
	return hex.EncodeToString(h.Sum(nil))
}

// RetryPolicy is the retry-decision table (spec §4.10):
// never retry certain categories, bounded retries for others. maxAttempts
// counts the first attempt, so 2 means one retry.
func RetryPolicy(t ErrorType) (retryable bool, maxAttempts int) {
	switch t {
	case ErrPermissionDenied, ErrFileNotFound, ErrCommandNotFound, ErrSyntaxError, ErrSandboxViolation:
		return false, 0
	case ErrNetworkError, ErrTimeout, ErrMemoryError:
		return true, 3
	case ErrUnknown:
		return true, 2
	default:
		return false, 0
	}
}

// KnownFixes is the static table of categorized hints (spec §4.10), folded
// in from the teacher's suggestion_engine.py equivalent per SPEC_FULL §9.
var KnownFixes = map[ErrorType][]string{
	ErrPermissionDenied: {"check file/directory ownership and mode bits", "re-run with the correct user or elevated sandbox root"},
	ErrFileNotFound:     {"verify the path exists before the step runs", "check for a typo in the path argument"},
	ErrCommandNotFound:  {"install the missing binary", "check the sandbox's allowed-bin list"},
	ErrSyntaxError:      {"validate generated code/config before executing it"},
	ErrNetworkError:     {"check connectivity and DNS resolution", "retry with backoff"},
	ErrTimeout:          {"increase the step deadline", "break the operation into smaller steps"},
	ErrDiskSpace:        {"free disk space or target a different volume"},
	ErrPackageConflict:  {"pin compatible package versions", "use a fresh environment"},
	ErrMemoryError:      {"reduce batch size", "increase memory limit"},
	ErrProcessKilled:    {"check for an external OOM killer or manual termination"},
	ErrParseError:       {"validate the tool's JSON output shape"},
	ErrSandboxViolation: {"request the path be added to the allowed-roots set"},
}
