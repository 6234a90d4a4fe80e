package workflow

// Trigger represents a lifecycle event that may move an offer between states
type Trigger string

const (
	TriggerRequestApproval       Trigger = "requestApproval"
	TriggerApprove               Trigger = "approve"
	TriggerReject                Trigger = "reject"
	TriggerSendToSalesman        Trigger = "sendToSalesman"
	TriggerMarkUnderReview       Trigger = "markUnderReview"
	TriggerResumeToSent          Trigger = "resumeToSent"
	TriggerMarkNeedsModification Trigger = "markNeedsModification"
	TriggerEdited                Trigger = "edited"
	TriggerClientAccepted        Trigger = "clientAccepted"
	TriggerClientRejected        Trigger = "clientRejected"
	TriggerSweepExpire           Trigger = "sweepExpire"
	TriggerAssign                Trigger = "assign"
	TriggerRevise                Trigger = "revise"
)

var validTriggers = map[Trigger]bool{
	TriggerRequestApproval:       true,
	TriggerApprove:               true,
	TriggerReject:                true,
	TriggerSendToSalesman:        true,
	TriggerMarkUnderReview:       true,
	TriggerResumeToSent:          true,
	TriggerMarkNeedsModification: true,
	TriggerEdited:                true,
	TriggerClientAccepted:        true,
	TriggerClientRejected:        true,
	TriggerSweepExpire:           true,
	TriggerAssign:                true,
	TriggerRevise:                true,
}

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// IsValid returns true if the trigger is a known lifecycle event
func (t Trigger) IsValid() bool {
	return validTriggers[t]
}
