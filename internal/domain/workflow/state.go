package workflow

// State represents a status in the offer lifecycle
type State string

const (
	StateDraft                  State = "Draft"
	StatePendingManagerApproval State = "PendingManagerApproval"
	StateSent                   State = "Sent"
	StateUnderReview            State = "UnderReview"
	StateNeedsModification      State = "NeedsModification"
	StateAccepted               State = "Accepted"
	StateRejected               State = "Rejected"
	StateExpired                State = "Expired"
)

var validStates = map[State]bool{
	StateDraft:                  true,
	StatePendingManagerApproval: true,
	StateSent:                   true,
	StateUnderReview:            true,
	StateNeedsModification:      true,
	StateAccepted:               true,
	StateRejected:               true,
	StateExpired:                true,
}

var terminalStates = map[State]bool{
	StateAccepted: true,
	StateRejected: true,
	StateExpired:  true,
}

// AllStates lists every lifecycle state in table order
func AllStates() []State {
	return []State{
		StateDraft,
		StatePendingManagerApproval,
		StateSent,
		StateUnderReview,
		StateNeedsModification,
		StateAccepted,
		StateRejected,
		StateExpired,
	}
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}
