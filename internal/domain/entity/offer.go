package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

// Offer is a priced proposal sent from the organization to a client
type Offer struct {
	ID                 string             `json:"id"`
	ClientID           string             `json:"client_id"`
	CreatedBy          string             `json:"created_by"`
	AssignedTo         string             `json:"assigned_to,omitempty"`
	Status             workflow.State     `json:"status"`
	LineItems          []LineItem         `json:"line_items,omitempty"`
	ProductDescription string             `json:"product_description,omitempty"`
	TotalAmount        float64            `json:"total_amount"`
	DiscountAmount     float64            `json:"discount_amount"`
	ValidUntil         []time.Time        `json:"valid_until,omitempty"`
	Approval           *Approval          `json:"approval,omitempty"`
	ApprovalHistory    []ApprovalDecision `json:"approval_history,omitempty"`
	ModificationReason string             `json:"modification_reason,omitempty"`
	ClientResponse     string             `json:"client_response,omitempty"`
	Annotations        []Annotation       `json:"annotations,omitempty"`
	LinkedRequestID    string             `json:"linked_request_id,omitempty"`
	Version            int64              `json:"version"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	SentAt             *time.Time         `json:"sent_at,omitempty"`
}

// LineItem is a single priced entry. Price is the line total.
type LineItem struct {
	ProductID   string  `json:"product_id,omitempty"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// Approval is the latest manager decision on an offer
type Approval struct {
	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Comments        string     `json:"comments,omitempty"`
}

// Decision kinds recorded in the approval history
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionCleared  = "cleared"
)

// ApprovalDecision is one append-only entry of the approval history
type ApprovalDecision struct {
	Decision string    `json:"decision"`
	By       string    `json:"by"`
	At       time.Time `json:"at"`
	Reason   string    `json:"reason,omitempty"`
	Comments string    `json:"comments,omitempty"`
}

// Annotation is a free-text note; the only change allowed on a terminal offer
type Annotation struct {
	By   string    `json:"by"`
	At   time.Time `json:"at"`
	Note string    `json:"note"`
}

// Approved reports whether a manager approval is currently recorded
func (o *Offer) Approved() bool {
	return o.Approval != nil && o.Approval.ApprovedBy != "" && o.Approval.RejectionReason == ""
}

// ExpiresAt returns the latest validUntil, or nil when none is set
func (o *Offer) ExpiresAt() *time.Time {
	return LatestOf(o.ValidUntil)
}

// IsTerminal reports whether the offer can no longer change status
func (o *Offer) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// Clone returns a deep copy so callers can build the next version without touching the loaded one
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}

	c := *o
	c.LineItems = append([]LineItem(nil), o.LineItems...)
	c.ValidUntil = append([]time.Time(nil), o.ValidUntil...)
	c.ApprovalHistory = append([]ApprovalDecision(nil), o.ApprovalHistory...)
	c.Annotations = append([]Annotation(nil), o.Annotations...)

	if o.Approval != nil {
		a := *o.Approval
		if o.Approval.ApprovedAt != nil {
			t := *o.Approval.ApprovedAt
			a.ApprovedAt = &t
		}
		c.Approval = &a
	}
	if o.SentAt != nil {
		t := *o.SentAt
		c.SentAt = &t
	}

	return &c
}

// LatestOf returns the maximum of times, or nil for an empty slice
func LatestOf(times []time.Time) *time.Time {
	if len(times) == 0 {
		return nil
	}
	latest := times[0]
	for _, t := range times[1:] {
		if t.After(latest) {
			latest = t
		}
	}
	return &latest
}

// SumLineItems totals the line prices in decimal so 0.1 + 0.2 stays 0.3
func SumLineItems(items []LineItem) float64 {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(decimal.NewFromFloat(item.Price))
	}
	return total.InexactFloat64()
}
