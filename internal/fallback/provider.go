package fallback

import "context"

// CompletionRequest is one prompt sent to the research backend.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// Provider abstracts the research backend. Implementations must honor the
// context deadline; the generator enforces the per-attempt budget with it.
type Provider interface {
	// Complete sends a completion request and returns the raw text response.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the backend identifier for logging.
	Name() string
}
