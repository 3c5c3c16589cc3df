package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/faultline/faultline/pkg/schema"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		score  float64
		safety bool
		want   schema.Route
	}{
		{"safety overrides high score", 0.95, true, schema.RouteEscalate},
		{"safety overrides low score", 0.1, true, schema.RouteEscalate},
		{"high confidence", 0.92, false, schema.RouteLookup},
		{"lookup boundary inclusive", 0.8, false, schema.RouteLookup},
		{"just below lookup", 0.79999, false, schema.RouteResearch},
		{"mid confidence", 0.5, false, schema.RouteResearch},
		{"research boundary inclusive", 0.4, false, schema.RouteResearch},
		{"just below research", 0.39999, false, schema.RouteClarify},
		{"no match", 0, false, schema.RouteClarify},
		{"negative similarity", -0.2, false, schema.RouteClarify},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.score, tc.safety))
		})
	}
}
