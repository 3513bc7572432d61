// Package service defines small domain-level collaborator interfaces
// implemented by infrastructure providers.
package service

import "context"

// Completer is the opaque completion backend. The core's only obligation is
// assembling the prompt and context faithfully; generation itself is out of
// scope.
type Completer interface {
	// Complete sends a system prompt and a user prompt and returns the
	// generated text.
	Complete(ctx context.Context, system, prompt string) (string, error)
}
