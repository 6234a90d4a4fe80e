package workflow

import (
	"errors"
	"strings"
)

var (
	errReasonRequired   = errors.New("a non-empty reason is required")
	errAssigneeRequired = errors.New("assignedTo is required")
	errRevisionRequired = errors.New("a revision is required")
	errNotYetExpired    = errors.New("validUntil has not fully elapsed")
)

var (
	managerRoles = []Role{RoleSalesManager, RoleSuperAdmin}
	staffRoles   = []Role{RoleSalesSupport, RoleSalesManager, RoleSuperAdmin}
)

// NewOfferGuard builds the offer lifecycle rules table
func NewOfferGuard() Guard {
	builder := NewBuilder()

	builder.
		Authorize(TriggerApprove, managerRoles...).
		Authorize(TriggerReject, managerRoles...).
		Authorize(TriggerSendToSalesman, staffRoles...).
		Authorize(TriggerMarkUnderReview, managerRoles...).
		Authorize(TriggerResumeToSent, managerRoles...).
		Authorize(TriggerMarkNeedsModification, managerRoles...).
		Authorize(TriggerEdited, RoleSalesSupport).
		Authorize(TriggerClientAccepted, staffRoles...).
		Authorize(TriggerClientRejected, staffRoles...).
		Authorize(TriggerSweepExpire, RoleSystem).
		Authorize(TriggerAssign, staffRoles...).
		Authorize(TriggerRevise, staffRoles...)

	// Draft: approval is a gate flag on the record rather than a separate state
	builder.Configure(StateDraft).
		Permit(TriggerRequestApproval, StatePendingManagerApproval).
		Permit(TriggerApprove, StateDraft).
		PermitIf(TriggerSendToSalesman, StateSent, requireApproval).
		Permit(TriggerMarkNeedsModification, StateNeedsModification).
		PermitReentryIf(TriggerAssign, requireAssignee).
		PermitReentryIf(TriggerRevise, requireRevision)

	builder.Configure(StatePendingManagerApproval).
		Permit(TriggerApprove, StateDraft).
		PermitIf(TriggerReject, StateRejected, requireReason).
		Ignore(TriggerRequestApproval)

	builder.Configure(StateSent).
		Permit(TriggerMarkUnderReview, StateUnderReview).
		Permit(TriggerMarkNeedsModification, StateNeedsModification).
		Permit(TriggerClientAccepted, StateAccepted).
		Permit(TriggerClientRejected, StateRejected).
		PermitIf(TriggerSweepExpire, StateExpired, requireElapsed).
		Ignore(TriggerSendToSalesman).
		Ignore(TriggerResumeToSent)

	builder.Configure(StateUnderReview).
		Permit(TriggerResumeToSent, StateSent).
		Permit(TriggerMarkNeedsModification, StateNeedsModification).
		Permit(TriggerClientAccepted, StateAccepted).
		Permit(TriggerClientRejected, StateRejected).
		PermitIf(TriggerSweepExpire, StateExpired, requireElapsed).
		Ignore(TriggerMarkUnderReview)

	builder.Configure(StateNeedsModification).
		Permit(TriggerEdited, StateDraft).
		Ignore(TriggerMarkNeedsModification)

	// Accepted, Rejected and Expired are terminal and have no configuration

	return builder.Build()
}

func requireApproval(in Input) error {
	if !in.Approved {
		return ErrApprovalRequired
	}
	return nil
}

func requireReason(in Input) error {
	if in.DryRun || strings.TrimSpace(in.Reason) != "" {
		return nil
	}
	return errReasonRequired
}

func requireAssignee(in Input) error {
	if in.DryRun || strings.TrimSpace(in.AssignedTo) != "" {
		return nil
	}
	return errAssigneeRequired
}

func requireRevision(in Input) error {
	if in.DryRun || in.HasRevision {
		return nil
	}
	return errRevisionRequired
}

func requireElapsed(in Input) error {
	if in.ExpiresAt == nil || !in.Now.After(*in.ExpiresAt) {
		return errNotYetExpired
	}
	return nil
}
