package router

import "github.com/faultline/faultline/pkg/schema"

// Score thresholds for the routing decision. Boundaries are inclusive:
// exactly 0.8 is a LOOKUP, exactly 0.4 is a RESEARCH.
const (
	LookupThreshold   = 0.8
	ResearchThreshold = 0.4
)

// Decide selects the route for an unmatched query. Pure and side-effect
// free: the single network call behind RESEARCH and the gap logging live
// with the engine, so this table is testable without a live backend.
//
// Precedence order:
//  1. safety flag → ESCALATE, regardless of score
//  2. score ≥ 0.8 → LOOKUP
//  3. score ≥ 0.4 → RESEARCH
//  4. otherwise  → CLARIFY
func Decide(score float64, safety bool) schema.Route {
	switch {
	case safety:
		return schema.RouteEscalate
	case score >= LookupThreshold:
		return schema.RouteLookup
	case score >= ResearchThreshold:
		return schema.RouteResearch
	default:
		return schema.RouteClarify
	}
}
