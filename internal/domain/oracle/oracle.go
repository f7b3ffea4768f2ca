// Package oracle declares the external LLM boundary (spec §6): translation
// of an utterance into an Intent, and reflection on whether a goal was
// achieved. Both operations are streamable; concrete providers are out of
// scope for the execution brain (spec §1) — only the interface and a couple
// of test doubles live here.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/zenus-ai/zenus/pkg/errors"
)

// Chunk is one piece of a streamed oracle response.
type Chunk struct {
	Text string
	Done bool
}

// Oracle is the LLM-facing boundary. Implementations must stream chunks onto
// the provided channel and return when the response is complete; they must
// not close the channel, which Drain closes after the call returns. A call
// interrupted by ctx cancellation must not be treated as a successful
// response by the caller (spec §9: "must not update caches or metrics").
type Oracle interface {
	Translate(ctx context.Context, prompt string, chunks chan<- Chunk) error
	Reflect(ctx context.Context, prompt string, chunks chan<- Chunk) error
}

// VisionOracle is the optional embed_image operation (spec §6).
type VisionOracle interface {
	EmbedImage(ctx context.Context, base64Image, prompt string) (string, error)
}

// Drain consumes an Oracle call to completion, accumulating all chunk text
// into a single buffer. The orchestrator always drains before parsing (spec
// §9: "consumes to completion before parsing").
func Drain(ctx context.Context, call func(chan<- Chunk) error) (string, error) {
	chunks := make(chan Chunk, 16)
	errCh := make(chan error, 1)

	go func() {
		errCh <- call(chunks)
		close(chunks)
	}()

	var buf strings.Builder
	for c := range chunks {
		buf.WriteString(c.Text)
	}

	if err := <-errCh; err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExtractJSON pulls the outermost {...} object out of s, tolerating
// surrounding prose the way spec §6's translate contract requires.
func ExtractJSON(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in oracle output")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string literal, braces don't count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in oracle output")
}

// ReflectionResult is the parsed shape of a reflect() response: lines of
// "ACHIEVED: yes|no", "CONFIDENCE: [0,1]", "REASONING: ...", "NEXT_STEPS: ...".
type ReflectionResult struct {
	Achieved   bool
	Confidence float64
	Reasoning  string
	NextSteps  []string
}

// ParseReflection parses the oracle's line-oriented reflect() text format.
func ParseReflection(text string) (*ReflectionResult, error) {
	res := &ReflectionResult{}
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "ACHIEVED:"):
			v := strings.TrimSpace(line[len("ACHIEVED:"):])
			res.Achieved = strings.EqualFold(v, "yes") || strings.EqualFold(v, "true")
		case strings.HasPrefix(upper, "CONFIDENCE:"):
			v := strings.TrimSpace(line[len("CONFIDENCE:"):])
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				res.Confidence = clamp01(f)
			}
		case strings.HasPrefix(upper, "REASONING:"):
			res.Reasoning = strings.TrimSpace(line[len("REASONING:"):])
		case strings.HasPrefix(upper, "NEXT_STEPS:"):
			rest := strings.TrimSpace(line[len("NEXT_STEPS:"):])
			for _, step := range strings.Split(rest, ";") {
				step = strings.TrimSpace(step)
				if step != "" {
					res.NextSteps = append(res.NextSteps, step)
				}
			}
		}
	}
	if res.Reasoning == "" {
		return nil, apperrors.NewSchemaError("reflect() output missing REASONING line")
	}
	return res, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// RawIntentJSON wraps ExtractJSON + json.Unmarshal for callers that only want
// the decoded generic map (used by translation prevalidation before it is
// handed to intent.Parse/Validate).
func RawIntentJSON(text string) (map[string]interface{}, error) {
	obj, err := ExtractJSON(text)
	if err != nil {
		return nil, apperrors.NewTranslationError("oracle returned no parseable JSON", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return nil, apperrors.NewSchemaError(fmt.Sprintf("oracle JSON did not parse: %v", err))
	}
	return m, nil
}
