package router

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/faultline/faultline/pkg/schema"
)

// DefaultSafetyRules flag hazards that must never receive generated
// instructions. Rules are expr expressions over {query, equipment}, both
// lowercased before evaluation.
var DefaultSafetyRules = []string{
	`indexOf(query, "gas leak") >= 0 or indexOf(query, "smell of gas") >= 0 or indexOf(query, "gas smell") >= 0`,
	`indexOf(query, "live wire") >= 0 or indexOf(query, "exposed wiring") >= 0 or indexOf(query, "sparking") >= 0 or indexOf(query, "electric shock") >= 0`,
	`indexOf(query, "overpressure") >= 0 or indexOf(query, "pressure relief") >= 0 or indexOf(query, "burst pipe") >= 0`,
	`indexOf(query, "asbestos") >= 0`,
	`indexOf(query, "burning smell") >= 0 or indexOf(query, "smoke") >= 0 or indexOf(query, "on fire") >= 0`,
}

// SafetyRules evaluates author-configurable hazard rules against a query.
// Rules are compiled once at construction; a rule that does not compile is
// a startup error, never a runtime panic. Safe for concurrent use: compiled
// programs are immutable after construction.
type SafetyRules struct {
	sources  []string
	programs []*vm.Program
}

// NewSafetyRules compiles the given expr rules. Empty input compiles the
// default rule set.
func NewSafetyRules(rules []string) (*SafetyRules, error) {
	if len(rules) == 0 {
		rules = DefaultSafetyRules
	}

	s := &SafetyRules{sources: rules}
	for _, rule := range rules {
		prg, err := expr.Compile(rule,
			expr.Env(map[string]any{"query": "", "equipment": ""}),
			expr.AsBool(),
		)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"safety rule %q does not compile: %s", rule, err.Error()).WithCause(err)
		}
		s.programs = append(s.programs, prg)
	}
	return s, nil
}

// Match reports whether any rule flags the query. A rule that fails at
// evaluation is treated as matched: when in doubt about a hazard, escalate.
func (s *SafetyRules) Match(query, equipment string) bool {
	env := map[string]any{
		"query":     strings.ToLower(query),
		"equipment": strings.ToLower(equipment),
	}
	for _, prg := range s.programs {
		out, err := vm.Run(prg, env)
		if err != nil {
			return true
		}
		if b, ok := out.(bool); ok && b {
			return true
		}
	}
	return false
}

// Rules returns the rule sources, for diagnostics.
func (s *SafetyRules) Rules() []string {
	return s.sources
}
