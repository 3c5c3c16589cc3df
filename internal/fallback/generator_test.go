package fallback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/faultline/pkg/schema"
)

// stubProvider returns canned responses in order, then repeats the last.
type stubProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(_ context.Context, _ CompletionRequest) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	if s.errs != nil && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.responses[i], nil
}

const goodResponse = `{"steps": [{"text": "Unplug the unit"}, {"text": "Reset the breaker", "safety": true}]}`

func newTestGenerator(t *testing.T, p Provider) *Generator {
	t.Helper()
	parser, err := NewParser()
	require.NoError(t, err)
	return NewGenerator(p, parser, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateSuccess(t *testing.T) {
	g := newTestGenerator(t, &stubProvider{responses: []string{goodResponse}})

	guide, err := g.Generate(context.Background(), Request{
		Equipment: "tumble dryer",
		Problem:   "does not heat",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, guide.ID)
	assert.Equal(t, schema.StatusGuideGenerated, guide.Status)
	assert.Equal(t, "tumble dryer", guide.Equipment)
	require.Len(t, guide.Steps, 2)
	assert.True(t, guide.Steps[1].Safety)
	assert.Equal(t, goodResponse, guide.RawSource)
}

func TestGenerateRetriesOnce(t *testing.T) {
	p := &stubProvider{
		responses: []string{"", goodResponse},
		errs:      []error{errors.New("transient backend failure"), nil},
	}
	g := newTestGenerator(t, p)

	guide, err := g.Generate(context.Background(), Request{Equipment: "dryer", Problem: "no heat"})
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
	assert.Len(t, guide.Steps, 2)
}

func TestGenerateGivesUpAfterTwoAttempts(t *testing.T) {
	p := &stubProvider{
		responses: []string{""},
		errs:      []error{errors.New("backend down")},
	}
	g := newTestGenerator(t, p)

	_, err := g.Generate(context.Background(), Request{Equipment: "dryer", Problem: "no heat"})
	require.Error(t, err)
	assert.Equal(t, 2, p.calls)

	var fe *schema.FaultError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeFallbackUnavailable, fe.Code)
}

func TestGenerateRejectsUnparseableResponse(t *testing.T) {
	p := &stubProvider{responses: []string{"step 1: unplug it"}}
	g := newTestGenerator(t, p)

	_, err := g.Generate(context.Background(), Request{Equipment: "dryer", Problem: "no heat"})
	require.Error(t, err)
	assert.Equal(t, 2, p.calls, "an invalid response is retried like a transport failure")
}

func TestGenerateStopsOnCancelledContext(t *testing.T) {
	p := &stubProvider{
		responses: []string{""},
		errs:      []error{context.Canceled},
	}
	g := newTestGenerator(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Generate(ctx, Request{Equipment: "dryer", Problem: "no heat"})
	require.Error(t, err)
	assert.Equal(t, 1, p.calls, "no retry once the caller's context is done")
}
