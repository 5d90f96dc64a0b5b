// Package extractor implements the Extractor Adapter (C3): it turns an
// episode body plus a resolved schema subset into the entities and edges
// the graph store should persist. The LLM call itself is abstracted behind
// Provider, mirroring the teacher's internal/service/llm Provider interface,
// so the extraction logic is unit-testable behind a fake and swappable to a
// different backend without touching Extract.
package extractor

import "context"

// CompletionOptions tunes a single completion call. Format, when non-empty,
// asks the backend to constrain output to that shape (the Anthropic backend
// maps "json" onto a system instruction asking for a bare JSON object; the
// response is not guaranteed to be valid JSON).
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
	Format      string
}

// Provider is the narrow interface the extractor drives. Implementations
// must be safe for concurrent use by multiple namespace workers.
type Provider interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
	IsAvailable() bool
}
