package workflow

import (
	"strings"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

// applyEffects builds the next version of an offer for a permitted outcome.
// current is never modified.
func applyEffects(current *entity.Offer, out domainwf.Outcome, cmd TransitionCommand, now time.Time) (*entity.Offer, error) {
	next := current.Clone()
	p := cmd.Payload
	by := cmd.Actor.ID

	switch out.Trigger {
	case domainwf.TriggerApprove:
		at := now
		next.Approval = &entity.Approval{ApprovedBy: by, ApprovedAt: &at, Comments: p.Comments}
		next.ApprovalHistory = append(next.ApprovalHistory, entity.ApprovalDecision{
			Decision: entity.DecisionApproved, By: by, At: now, Comments: p.Comments,
		})

	case domainwf.TriggerReject:
		reason := strings.TrimSpace(p.Reason)
		next.Approval = &entity.Approval{RejectionReason: reason, Comments: p.Comments}
		next.ApprovalHistory = append(next.ApprovalHistory, entity.ApprovalDecision{
			Decision: entity.DecisionRejected, By: by, At: now, Reason: reason, Comments: p.Comments,
		})

	case domainwf.TriggerMarkNeedsModification:
		clearApproval(next, by, now, p.Reason)
		next.ModificationReason = strings.TrimSpace(p.Reason)

	case domainwf.TriggerRevise:
		if err := applyRevision(next, p.Revision); err != nil {
			return nil, err
		}
		clearApproval(next, by, now, "revised")

	case domainwf.TriggerEdited:
		if p.Revision != nil {
			if err := applyRevision(next, p.Revision); err != nil {
				return nil, err
			}
		}
		clearApproval(next, by, now, "edited")

	case domainwf.TriggerSendToSalesman:
		at := now
		next.SentAt = &at

	case domainwf.TriggerClientAccepted, domainwf.TriggerClientRejected:
		next.ClientResponse = strings.TrimSpace(p.ClientResponse)

	case domainwf.TriggerAssign:
		next.AssignedTo = strings.TrimSpace(p.AssignedTo)
	}

	next.Status = out.To
	next.Version = current.Version + 1
	next.UpdatedAt = now

	return next, nil
}

// applyRevision validates against the original creation day and replaces the contents
func applyRevision(o *entity.Offer, revision *entity.Contents) error {
	contents, err := revision.Normalize(o.CreatedAt)
	if err != nil {
		return err
	}
	contents.Apply(o)
	return nil
}

func clearApproval(o *entity.Offer, by string, at time.Time, reason string) {
	if o.Approval == nil {
		return
	}
	o.Approval = nil
	o.ApprovalHistory = append(o.ApprovalHistory, entity.ApprovalDecision{
		Decision: entity.DecisionCleared, By: by, At: at, Reason: strings.TrimSpace(reason),
	})
}
