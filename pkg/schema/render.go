package schema

// ActionKind enumerates the button actions the navigator understands.
type ActionKind string

const (
	ActionSelect   ActionKind = "select"
	ActionBack     ActionKind = "back"
	ActionRestart  ActionKind = "restart"
	ActionSave     ActionKind = "save"
	ActionReferral ActionKind = "referral"
)

// UserAction is a decoded user interaction: the action kind plus, for
// select, the edge label that was chosen.
type UserAction struct {
	Kind  ActionKind `json:"kind"`
	Label string     `json:"label,omitempty"`
}

// Button is one rendering-ready button descriptor.
type Button struct {
	Label  string     `json:"label"`
	Action UserAction `json:"action"`
}

// RenderInstruction is the full output of one navigation transition.
// The transport must apply it as an edit of the existing message,
// identified by MessageID; never as a new message.
type RenderInstruction struct {
	MessageID string     `json:"message_id"`
	Text      string     `json:"text"`
	MediaRef  string     `json:"media_ref,omitempty"`
	Safety    bool       `json:"safety,omitempty"` // render text in a distinct block
	Notice    string     `json:"notice,omitempty"` // one-line recovery notice, if any
	Buttons   [][]Button `json:"buttons,omitempty"`
	Token     string     `json:"token"` // byte-bounded navigation token
}
