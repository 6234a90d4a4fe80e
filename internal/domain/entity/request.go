package entity

import "time"

// OfferRequest statuses touched by this service
const (
	RequestStatusOpen  = "Open"
	RequestStatusReady = "Ready"
)

// OfferRequest is the upstream ask an offer answers. Triage happens elsewhere;
// this service only marks it Ready once the offer is sent.
type OfferRequest struct {
	ID                string    `json:"id"`
	ClientID          string    `json:"client_id"`
	RequestedBy       string    `json:"requested_by"`
	RequestedProducts string    `json:"requested_products,omitempty"`
	Status            string    `json:"status"`
	OfferID           string    `json:"offer_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
