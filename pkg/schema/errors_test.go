package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Error codes are plain string constants; FaultError.Code compares against
// them directly.
func TestErrorCodeConstants(t *testing.T) {
	var code string

	code = ErrCodeFallbackUnavailable
	assert.Equal(t, "FALLBACK_UNAVAILABLE", code)
	code = ErrCodeStaleToken
	assert.Equal(t, "STALE_TOKEN", code)
	code = ErrCodeAmbiguousRoute
	assert.Equal(t, "AMBIGUOUS_ROUTE", code)

	fe := NewError(ErrCodeFallbackUnavailable, "backend down")
	assert.Equal(t, ErrCodeFallbackUnavailable, fe.Code)
}

func TestFaultErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *FaultError
		want string
	}{
		{
			name: "bare",
			err:  NewError(ErrCodeParse, "bad input"),
			want: "[PARSE_ERROR] bad input",
		},
		{
			name: "with node",
			err:  NewError(ErrCodeOrphanNode, "unreachable").WithNode("wiring"),
			want: "[ORPHAN_NODE] node wiring: unreachable",
		},
		{
			name: "with line",
			err:  NewError(ErrCodeParse, "unterminated quote").WithLine(7),
			want: "[PARSE_ERROR] line 7: unterminated quote",
		},
		{
			name: "with node and line",
			err:  NewErrorf(ErrCodeDanglingEdge, "edge to %s", "ghost").WithNode("a").WithLine(3),
			want: "[DANGLING_EDGE] node a (line 3): edge to ghost",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestFaultErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	fe := NewError(ErrCodeFallbackUnavailable, "research backend call failed").WithCause(cause)

	require.ErrorIs(t, fe, cause)

	var got *FaultError
	require.ErrorAs(t, error(fe), &got)
	assert.Equal(t, ErrCodeFallbackUnavailable, got.Code)
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, NewError(ErrCodeDecode, "").IsRecoverable())
	assert.True(t, NewError(ErrCodeStaleToken, "").IsRecoverable())
	assert.True(t, NewError(ErrCodeInvalidTransition, "").IsRecoverable())

	assert.False(t, NewError(ErrCodeEncoding, "").IsRecoverable())
	assert.False(t, NewError(ErrCodeParse, "").IsRecoverable())
	assert.False(t, NewError(ErrCodeFallbackUnavailable, "").IsRecoverable())
}
