// Package llm provides the text-generation collaborator used by the
// discovery job driver for keyword generation, resource curation, and
// evidence planning.
//
// The collaborator returns free-form text that should contain a JSON
// object; ExtractJSON recovers it. Callers decide whether a recovery
// failure is fatal (keyword generation) or falls back to defaults
// (curation steps).
package llm

import "context"

// Generator is the minimal text-generation interface. Implementations
// handle provider-specific API calls, retries, and error handling.
type Generator interface {
	// Generate produces a completion from a system and user prompt.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Provider returns the name of the LLM provider.
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}
