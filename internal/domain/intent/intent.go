// Package intent holds the typed plan representation produced by translation
// (spec C1): a Goal, a confirmation flag derived from risk, and an ordered
// list of Steps naming a (tool, action) pair to invoke.
package intent

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/zenus-ai/zenus/pkg/errors"
)

// Risk is the step risk ladder: 0 read-only, 1 safe create/move, 2 overwrite,
// 3 destructive/kill.
type Risk int

const (
	RiskReadOnly Risk = iota
	RiskCreate
	RiskOverwrite
	RiskDestructive
)

// Valid reports whether r is one of the four defined risk levels.
func (r Risk) Valid() bool {
	return r >= RiskReadOnly && r <= RiskDestructive
}

// Step is one tool invocation inside an Intent.
type Step struct {
	Tool      string                 `json:"tool"`
	Action    string                 `json:"action"`
	Args      map[string]interface{} `json:"args"`
	Risk      Risk                   `json:"risk"`
	Goal      string                 `json:"goal,omitempty"`
}

// Key identifies the (tool, action) pair this step invokes.
func (s Step) Key() string {
	return s.Tool + "." + s.Action
}

// Intent is the typed, validated plan produced by translation.
type Intent struct {
	Goal                 string `json:"goal"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
	Steps                []Step `json:"steps"`
}

// requiredArgs lists the semantically-required argument keys for write-like
// actions, used by Validate. Kept here (not in the tool registry) because the
// requirement is about the *shape* of a plan, independent of which registry
// happens to be wired in.
var requiredArgs = map[string][]string{
	"FileOps.move_file":   {"source", "destination"},
	"FileOps.copy_file":    {"source", "destination"},
	"FileOps.create_file":  {"path"},
	"FileOps.write_file":   {"path", "content"},
	"FileOps.delete_file":  {"path"},
	"FileOps.scan":         {"path"},
	"PackageOps.install":   {"package"},
	"PackageOps.uninstall": {"package"},
	"GitOps.commit":        {"message"},
	"ServiceOps.start":     {"service"},
	"ServiceOps.stop":      {"service"},
	"ContainerOps.run":     {"image"},
}

// KnownChecker reports whether a (tool, action) pair resolves in the
// registry. Satisfied by tool.Registry; kept as a narrow interface so the
// intent package never imports the tool package's concrete types.
type KnownChecker interface {
	HasOperation(toolName, action string) bool
}

// Parse decodes a JSON Intent, returning a SchemaError on malformed input.
func Parse(data []byte) (*Intent, error) {
	var in Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, apperrors.NewSchemaError(fmt.Sprintf("malformed intent JSON: %v", err))
	}
	return &in, nil
}

// Validate checks an Intent against the schema rules in spec §4.1:
// steps non-empty; tool/action known to the registry; risk within {0,1,2,3};
// required arg keys present for write-like actions.
func Validate(in *Intent, known KnownChecker) error {
	if in == nil {
		return apperrors.NewSchemaError("intent is nil")
	}
	if len(in.Steps) == 0 {
		return apperrors.NewSchemaError("intent has no steps")
	}

	maxRisk := RiskReadOnly
	for i, s := range in.Steps {
		if s.Tool == "" || s.Action == "" {
			return apperrors.NewSchemaError(fmt.Sprintf("step %d: tool and action are required", i))
		}
		if known != nil && !known.HasOperation(s.Tool, s.Action) {
			return apperrors.NewSchemaError(fmt.Sprintf("step %d: unknown tool/action %q", i, s.Key()))
		}
		if !s.Risk.Valid() {
			return apperrors.NewSchemaError(fmt.Sprintf("step %d: risk %d out of range [0,3]", i, s.Risk))
		}
		if req, ok := requiredArgs[s.Key()]; ok {
			for _, key := range req {
				if _, present := s.Args[key]; !present {
					return apperrors.NewSchemaError(fmt.Sprintf("step %d (%s): missing required arg %q", i, s.Key(), key))
				}
			}
		}
		if s.Risk > maxRisk {
			maxRisk = s.Risk
		}
	}

	expectedConfirm := maxRisk >= RiskDestructive
	if in.RequiresConfirmation != expectedConfirm {
		// The schema is authoritative over a stale/forged flag: spec §8
		// invariant 1 requires requires_confirmation == (max risk >= 3).
		in.RequiresConfirmation = expectedConfirm
	}
	return nil
}

// MaxRisk returns the highest risk level among the intent's steps.
func (in *Intent) MaxRisk() Risk {
	max := RiskReadOnly
	for _, s := range in.Steps {
		if s.Risk > max {
			max = s.Risk
		}
	}
	return max
}
