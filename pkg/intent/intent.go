// Package intent is the boundary to the external text-to-structured-request
// translator. The core treats the parsed intent and context as opaque values
// and never branches on their internal structure.
package intent

import "context"

// Parsed is the structured form of a raw work request.
type Parsed struct {
	Intent  string            `json:"intent"`
	Context map[string]string `json:"context,omitempty"`
}

// Parser turns raw text into a structured request.
type Parser interface {
	Parse(ctx context.Context, raw string) (Parsed, error)
}

// Passthrough uses the raw text as the intent verbatim, with no context.
// It is the default when no external parser is configured.
type Passthrough struct{}

func (Passthrough) Parse(_ context.Context, raw string) (Parsed, error) {
	return Parsed{Intent: raw}, nil
}
