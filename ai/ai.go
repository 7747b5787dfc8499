// Package ai defines the text-generation collaborator interface. The
// generator is injected into the engine at construction time so tests can
// substitute a deterministic fake.
package ai

import "context"

// Generator produces assistant text for a prompt. Implementations may
// take arbitrary wall-clock time and may fail; callers must never invoke
// it while holding session state locks.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// FallbackReply is the canned assistant reply used when the generator is
// unavailable or fails. Upstream failures degrade to this text instead of
// surfacing as connection-level errors.
const FallbackReply = "The AI assistant is unavailable right now. Please try again later."
