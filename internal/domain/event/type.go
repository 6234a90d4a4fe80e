package event

// Type identifies the type of lifecycle event
type Type string

const (
	TypeOfferCreated      Type = "offer.created"
	TypeOfferTransitioned Type = "offer.transitioned"
	TypeOfferAnnotated    Type = "offer.annotated"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeOfferCreated,
		TypeOfferTransitioned,
		TypeOfferAnnotated:
		return true
	default:
		return false
	}
}
