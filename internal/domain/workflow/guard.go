package workflow

import "time"

// Input is everything the guard needs to decide on a single transition request.
// It carries no references into storage, so evaluation stays pure.
type Input struct {
	From     State
	Trigger  Trigger
	Roles    RoleSet
	Approved bool

	// ExpiresAt is the latest validUntil of the offer, nil when none is set
	ExpiresAt *time.Time
	Now       time.Time

	Reason      string
	AssignedTo  string
	HasRevision bool

	// DryRun marks a what-if evaluation without a payload; payload requirements are skipped
	DryRun bool
}

// Outcome is the result of a permitted evaluation
type Outcome struct {
	From    State
	To      State
	Trigger Trigger

	// NoOp is set when the trigger targets the state the offer is already in
	NoOp bool
}

// Guard decides whether lifecycle transitions are allowed
type Guard interface {
	// Evaluate returns the outcome of firing in.Trigger from in.From, or a typed error
	Evaluate(in Input) (Outcome, error)

	// CanFire reports whether Evaluate would succeed
	CanFire(in Input) bool

	// PermittedTriggers returns the triggers that would succeed for in, ignoring in.Trigger
	PermittedTriggers(in Input) []Trigger
}
