package oracle

import (
	"context"
	"errors"
	"testing"
)

func TestDrainAccumulatesChunks(t *testing.T) {
	text, err := Drain(context.Background(), func(chunks chan<- Chunk) error {
		chunks <- Chunk{Text: "hello "}
		chunks <- Chunk{Text: "world"}
		chunks <- Chunk{Done: true}
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("got %q", text)
	}
}

func TestDrainPropagatesError(t *testing.T) {
	_, err := Drain(context.Background(), func(chunks chan<- Chunk) error {
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected Drain to propagate the call error")
	}
}

func TestExtractJSONIgnoresSurroundingProse(t *testing.T) {
	got, err := ExtractJSON(`Sure, here is the plan: {"goal":"g","steps":[]} Hope that helps!`)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if got != `{"goal":"g","steps":[]}` {
		t.Fatalf("got %q", got)
	}
}

func TestExtractJSONNestedBraces(t *testing.T) {
	got, err := ExtractJSON(`{"a":{"b":1},"c":[{"d":2}]}`)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if got != `{"a":{"b":1},"c":[{"d":2}]}` {
		t.Fatalf("got %q", got)
	}
}

func TestExtractJSONIgnoresBracesInStrings(t *testing.T) {
	got, err := ExtractJSON(`{"note":"use { and } carefully"}`)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if got != `{"note":"use { and } carefully"}` {
		t.Fatalf("got %q", got)
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	if _, err := ExtractJSON("no json here"); err == nil {
		t.Fatal("expected an error when no JSON object is present")
	}
}

func TestExtractJSONUnbalanced(t *testing.T) {
	if _, err := ExtractJSON(`{"a": 1`); err == nil {
		t.Fatal("expected an error for an unbalanced object")
	}
}

func TestParseReflectionFullFormat(t *testing.T) {
	text := "ACHIEVED: yes\nCONFIDENCE: 0.92\nREASONING: all files created\nNEXT_STEPS: verify permissions; notify user"
	res, err := ParseReflection(text)
	if err != nil {
		t.Fatalf("ParseReflection: %v", err)
	}
	if !res.Achieved {
		t.Fatal("expected Achieved = true")
	}
	if res.Confidence != 0.92 {
		t.Fatalf("got confidence %v", res.Confidence)
	}
	if res.Reasoning != "all files created" {
		t.Fatalf("got reasoning %q", res.Reasoning)
	}
	if len(res.NextSteps) != 2 || res.NextSteps[0] != "verify permissions" {
		t.Fatalf("got next steps %v", res.NextSteps)
	}
}

func TestParseReflectionMissingReasoningErrors(t *testing.T) {
	text := "ACHIEVED: no\nCONFIDENCE: 0.1"
	if _, err := ParseReflection(text); err == nil {
		t.Fatal("expected a schema error when REASONING is missing")
	}
}

func TestParseReflectionClampsConfidence(t *testing.T) {
	text := "ACHIEVED: no\nCONFIDENCE: 5\nREASONING: overconfident input"
	res, err := ParseReflection(text)
	if err != nil {
		t.Fatalf("ParseReflection: %v", err)
	}
	if res.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", res.Confidence)
	}
}

func TestRawIntentJSON(t *testing.T) {
	m, err := RawIntentJSON(`here: {"goal":"g"}`)
	if err != nil {
		t.Fatalf("RawIntentJSON: %v", err)
	}
	if m["goal"] != "g" {
		t.Fatalf("got %v", m)
	}
}

func TestRawIntentJSONNoObject(t *testing.T) {
	if _, err := RawIntentJSON("nothing here"); err == nil {
		t.Fatal("expected an error when no JSON object is present")
	}
}
