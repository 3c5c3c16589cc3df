package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faultline/faultline/pkg/schema"
)

const (
	// DefaultAttemptTimeout bounds one backend call. The user is waiting on
	// an interactive chat turn, not a batch job.
	DefaultAttemptTimeout = 20 * time.Second

	// maxAttempts is the total call budget: the first try plus exactly one
	// retry. After that the route degrades to CLARIFY.
	maxAttempts = 2
)

const systemPrompt = `You are a field-service troubleshooting assistant. ` +
	`Given an equipment descriptor and a problem description, produce a JSON object ` +
	`{"steps": [{"text": "...", "safety": false}, ...]} of 3 to 12 ordered ` +
	`troubleshooting steps a non-expert can follow. Mark a step "safety": true when ` +
	`performing it carelessly could injure someone. Respond with JSON only.`

// Request describes one research attempt.
type Request struct {
	Equipment string
	Problem   string
	Context   string
}

// Generator produces provisional troubleshooting guides through the research
// backend. Every guide it returns has passed schema validation; a failure at
// any stage returns an error the caller degrades to CLARIFY, never raw
// backend output.
type Generator struct {
	provider Provider
	parser   *Parser
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGenerator creates a generator with the given per-attempt timeout.
// A non-positive timeout selects the default.
func NewGenerator(provider Provider, parser *Parser, timeout time.Duration, logger *slog.Logger) *Generator {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Generator{provider: provider, parser: parser, timeout: timeout, logger: logger}
}

// Generate calls the backend, validates the response, and assembles a guide
// in guide_generated status. One retry on failure, then give up.
func (g *Generator) Generate(ctx context.Context, req Request) (*schema.FallbackGuide, error) {
	prompt := buildPrompt(req)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		steps, raw, err := g.attempt(ctx, prompt)
		if err == nil {
			return &schema.FallbackGuide{
				ID:        uuid.NewString(),
				Equipment: req.Equipment,
				Problem:   req.Problem,
				Context:   req.Context,
				Steps:     steps,
				RawSource: raw,
				Status:    schema.StatusGuideGenerated,
				CreatedAt: time.Now().UTC(),
			}, nil
		}
		lastErr = err
		g.logger.WarnContext(ctx, "guide generation attempt failed",
			slog.Int("attempt", attempt),
			slog.String("backend", g.provider.Name()),
			slog.String("error", err.Error()))

		if ctx.Err() != nil {
			break
		}
	}

	return nil, schema.NewError(schema.ErrCodeFallbackUnavailable, "guide generation exhausted its attempts").WithCause(lastErr)
}

func (g *Generator) attempt(ctx context.Context, prompt string) ([]schema.GuideStep, string, error) {
	actx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.provider.Complete(actx, CompletionRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: 0.2,
		JSONMode:    true,
	})
	if err != nil {
		return nil, "", err
	}

	steps, err := g.parser.Parse(raw)
	if err != nil {
		return nil, "", err
	}
	return steps, raw, nil
}

func buildPrompt(req Request) string {
	prompt := fmt.Sprintf("Equipment: %s\nProblem: %s", req.Equipment, req.Problem)
	if req.Context != "" {
		prompt += "\nAdditional context: " + req.Context
	}
	return prompt
}
