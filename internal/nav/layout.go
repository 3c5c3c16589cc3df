package nav

import (
	"unicode/utf8"

	"github.com/faultline/faultline/pkg/schema"
)

const (
	// MaxButtonsPerRow is the transport's hard row cap.
	MaxButtonsPerRow = 8

	// MaxLabelWidth is the platform display width for a button label, in
	// runes. Longer labels are truncated with an ellipsis, never dropped.
	MaxLabelWidth = 28

	// MaxTotalButtons is the transport's documented per-message cap on
	// renderable choices.
	MaxTotalButtons = 96
)

// Contextual button labels.
const (
	labelBack     = "◀ Back"
	labelRestart  = "↺ Start over"
	labelSave     = "Save as draft"
	labelReferral = "Contact a specialist"
)

// LayoutOptions selects which contextual actions apply at a node.
type LayoutOptions struct {
	HasHistory bool // BACK is omitted entirely when false, not disabled
	AllowSave  bool // save-as-draft affordance (provisional guide renders)
}

// Layout turns a node's outgoing choices plus contextual actions into a
// rendering-ready button grid. Ordering is deterministic: edges in declared
// order, then BACK, RESTART, SAVE. Safety-critical nodes suppress the normal
// action set in favor of a referral-only layout.
func Layout(node *schema.DiagramNode, opts LayoutOptions) [][]schema.Button {
	if node.SafetyCritical() {
		return [][]schema.Button{{
			{Label: labelReferral, Action: schema.UserAction{Kind: schema.ActionReferral}},
			{Label: labelRestart, Action: schema.UserAction{Kind: schema.ActionRestart}},
		}}
	}

	// Contextual actions in fixed priority order: back, restart, save.
	// Built first so the edge cap can reserve room for them.
	var ctxRow []schema.Button
	if opts.HasHistory && !node.IsTerminal() {
		ctxRow = append(ctxRow, schema.Button{Label: labelBack, Action: schema.UserAction{Kind: schema.ActionBack}})
	}
	ctxRow = append(ctxRow, schema.Button{Label: labelRestart, Action: schema.UserAction{Kind: schema.ActionRestart}})
	if opts.AllowSave {
		ctxRow = append(ctxRow, schema.Button{Label: labelSave, Action: schema.UserAction{Kind: schema.ActionSave}})
	}

	var grid [][]schema.Button

	// Edge buttons, declared order, chunked into full rows, capped so the
	// whole message stays within MaxTotalButtons.
	edgeCap := MaxTotalButtons - len(ctxRow)
	var row []schema.Button
	total := 0
	for _, e := range node.Edges {
		if total == edgeCap {
			break
		}
		row = append(row, schema.Button{
			Label:  TruncateLabel(e.Label),
			Action: schema.UserAction{Kind: schema.ActionSelect, Label: e.Label},
		})
		total++
		if len(row) == MaxButtonsPerRow {
			grid = append(grid, row)
			row = nil
		}
	}
	if len(row) > 0 {
		grid = append(grid, row)
	}

	grid = append(grid, ctxRow)

	return grid
}

// TruncateLabel enforces the display width with a trailing ellipsis.
func TruncateLabel(label string) string {
	if utf8.RuneCountInString(label) <= MaxLabelWidth {
		return label
	}
	runes := []rune(label)
	return string(runes[:MaxLabelWidth-1]) + "…"
}
