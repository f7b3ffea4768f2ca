package oracle

import "context"

// StubOracle is a deterministic test double: Translate and Reflect return
// pre-seeded canned text, useful for exercising the orchestrator end to end
// without a live LLM backend (spec §1 explicitly treats backends as external).
type StubOracle struct {
	TranslateResponses []string
	ReflectResponses   []string

	translateCalls int
	reflectCalls   int
}

// Translate and Reflect do not close chunks themselves — the caller (Drain)
// owns the channel lifecycle, since it is the one that created it.
func (s *StubOracle) Translate(ctx context.Context, prompt string, chunks chan<- Chunk) error {
	idx := s.translateCalls
	if idx >= len(s.TranslateResponses) {
		idx = len(s.TranslateResponses) - 1
	}
	s.translateCalls++
	if idx < 0 {
		return nil
	}
	select {
	case chunks <- Chunk{Text: s.TranslateResponses[idx], Done: true}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *StubOracle) Reflect(ctx context.Context, prompt string, chunks chan<- Chunk) error {
	idx := s.reflectCalls
	if idx >= len(s.ReflectResponses) {
		idx = len(s.ReflectResponses) - 1
	}
	s.reflectCalls++
	if idx < 0 {
		return nil
	}
	select {
	case chunks <- Chunk{Text: s.ReflectResponses[idx], Done: true}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
