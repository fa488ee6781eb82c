// Package llm provides the Client interface the Planner and Synthesizer use
// to call a large-language-model backend, plus a genai-backed
// implementation and a generic HTTP variant for any OpenAI-compatible-ish
// endpoint. Only the request/response shape matters — transport is
// pluggable (spec §6 "tolerant of any transport").
package llm

import "context"

// CompletionRequest is the transport-neutral LLM call shape of spec §6.
type CompletionRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client completes a single prompt against an LLM backend.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
