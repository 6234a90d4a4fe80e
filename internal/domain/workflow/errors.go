package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrApprovalRequired is returned when an offer is sent without a recorded manager approval.
	// It always arrives wrapped in a TransitionError.
	ErrApprovalRequired = errors.New("manager approval required")

	// ErrUnauthorized is returned when the actor's roles do not permit the trigger
	ErrUnauthorized = errors.New("unauthorized")
)

// TransitionError describes a rejected transition. It matches ErrInvalidTransition
// and, when set, its Cause (for example ErrApprovalRequired).
type TransitionError struct {
	From    State
	To      State
	Trigger Trigger
	Reason  string
	Cause   error
}

func (e *TransitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: cannot fire %s from %s", ErrInvalidTransition, e.Trigger, e.From)
	if e.To != "" {
		fmt.Fprintf(&b, " to %s", e.To)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Unwrap exposes both the transition sentinel and the specific cause
func (e *TransitionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInvalidTransition}
	}
	return []error{ErrInvalidTransition, e.Cause}
}

// UnauthorizedError is returned when none of the actor's roles may fire the trigger
type UnauthorizedError struct {
	Trigger Trigger
	Roles   RoleSet
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s: roles [%s] may not fire %s", ErrUnauthorized, strings.Join(e.Roles.Strings(), ","), e.Trigger)
}

func (e *UnauthorizedError) Unwrap() error {
	return ErrUnauthorized
}
