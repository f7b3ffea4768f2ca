package intent

import "testing"

type stubKnown struct {
	known map[string]bool
}

func (k stubKnown) HasOperation(tool, action string) bool {
	return k.known[tool+"."+action]
}

func TestValidateRecomputesRequiresConfirmation(t *testing.T) {
	known := stubKnown{known: map[string]bool{"FileOps.delete_file": true}}

	in := &Intent{
		Goal:                 "delete a file",
		RequiresConfirmation: false, // stale/forged
		Steps: []Step{
			{Tool: "FileOps", Action: "delete_file", Args: map[string]interface{}{"path": "/tmp/x"}, Risk: RiskDestructive},
		},
	}

	if err := Validate(in, known); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !in.RequiresConfirmation {
		t.Fatal("expected RequiresConfirmation to be recomputed true for a destructive step")
	}
}

func TestValidateLowRiskNoConfirmation(t *testing.T) {
	known := stubKnown{known: map[string]bool{"FileOps.scan": true}}
	in := &Intent{
		Goal:                 "list files",
		RequiresConfirmation: true, // stale/forged
		Steps: []Step{
			{Tool: "FileOps", Action: "scan", Args: map[string]interface{}{"path": "."}, Risk: RiskReadOnly},
		},
	}
	if err := Validate(in, known); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if in.RequiresConfirmation {
		t.Fatal("expected RequiresConfirmation to be recomputed false for a read-only step")
	}
}

func TestValidateRejectsUnknownOperation(t *testing.T) {
	known := stubKnown{known: map[string]bool{}}
	in := &Intent{
		Goal:  "do something unknown",
		Steps: []Step{{Tool: "FileOps", Action: "teleport", Risk: RiskReadOnly}},
	}
	if err := Validate(in, known); err == nil {
		t.Fatal("expected an error for an unknown tool/action pair")
	}
}

func TestValidateRejectsMissingRequiredArgs(t *testing.T) {
	known := stubKnown{known: map[string]bool{"FileOps.write_file": true}}
	in := &Intent{
		Goal:  "write a file",
		Steps: []Step{{Tool: "FileOps", Action: "write_file", Args: map[string]interface{}{"path": "/tmp/x"}, Risk: RiskOverwrite}},
	}
	if err := Validate(in, known); err == nil {
		t.Fatal("expected an error for a missing required arg (content)")
	}
}

func TestValidateRejectsEmptySteps(t *testing.T) {
	in := &Intent{Goal: "nothing to do"}
	if err := Validate(in, nil); err == nil {
		t.Fatal("expected an error for an intent with no steps")
	}
}

func TestMaxRisk(t *testing.T) {
	in := &Intent{Steps: []Step{
		{Risk: RiskReadOnly}, {Risk: RiskOverwrite}, {Risk: RiskCreate},
	}}
	if got := in.MaxRisk(); got != RiskOverwrite {
		t.Fatalf("MaxRisk() = %v, want %v", got, RiskOverwrite)
	}
}

func TestParseMalformedJSON(t *testing.T) {
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Fatal("expected a schema error for malformed JSON")
	}
}

func TestParseRoundTrip(t *testing.T) {
	data := []byte(`{"goal":"g","requires_confirmation":false,"steps":[{"tool":"FileOps","action":"scan","args":{"path":"."},"risk":0}]}`)
	in, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if in.Goal != "g" || len(in.Steps) != 1 {
		t.Fatalf("unexpected parsed intent: %+v", in)
	}
}
