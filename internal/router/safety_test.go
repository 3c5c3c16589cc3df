package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRulesFlagHazards(t *testing.T) {
	s, err := NewSafetyRules(nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"gas leak", "I think there is a gas leak near the boiler", true},
		{"case insensitive", "SMELL OF GAS in the kitchen", true},
		{"live wire", "there's a live wire hanging out of the socket", true},
		{"sparking", "the motor is sparking when it starts", true},
		{"burst pipe", "a burst pipe is flooding the basement", true},
		{"asbestos", "the old insulation might be asbestos", true},
		{"smoke", "smoke is coming out of the dryer vent", true},
		{"benign noise", "the washing machine is rattling during spin", false},
		{"benign no-start", "my dryer won't turn on", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Match(tc.query, "appliance"))
		})
	}
}

func TestCustomRulesUseEquipment(t *testing.T) {
	s, err := NewSafetyRules([]string{
		`indexOf(equipment, "boiler") >= 0 and indexOf(query, "pilot") >= 0`,
	})
	require.NoError(t, err)

	assert.True(t, s.Match("the pilot light keeps going out", "Vaillant boiler"))
	assert.False(t, s.Match("the pilot light keeps going out", "toaster"))
}

func TestInvalidRuleFailsAtConstruction(t *testing.T) {
	_, err := NewSafetyRules([]string{`indexOf(query,`})
	require.Error(t, err)
}

func TestNonBoolRuleFailsAtConstruction(t *testing.T) {
	_, err := NewSafetyRules([]string{`indexOf(query, "x")`})
	require.Error(t, err)
}

func TestRulesExposesSources(t *testing.T) {
	rules := []string{`indexOf(query, "fire") >= 0`}
	s, err := NewSafetyRules(rules)
	require.NoError(t, err)
	assert.Equal(t, rules, s.Rules())
}
