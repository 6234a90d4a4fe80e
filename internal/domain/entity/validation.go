package entity

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrValidation is matched by every ValidationError
var ErrValidation = errors.New("validation error")

// cents rounds an amount to the precision totals are compared at
func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// ValidationError reports malformed or missing offer content
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Contents is the editable commercial part of an offer
type Contents struct {
	LineItems          []LineItem  `json:"line_items,omitempty"`
	ProductDescription string      `json:"product_description,omitempty"`
	TotalAmount        float64     `json:"total_amount,omitempty"`
	DiscountAmount     float64     `json:"discount_amount,omitempty"`
	ValidUntil         []time.Time `json:"valid_until,omitempty"`
}

// Normalize validates the contents against the offer creation day and returns them with
// the total computed. A supplied total must match the line items when items are present.
func (c Contents) Normalize(createdAt time.Time) (Contents, error) {
	out := c
	out.ProductDescription = strings.TrimSpace(c.ProductDescription)
	out.LineItems = make([]LineItem, 0, len(c.LineItems))

	for i, item := range c.LineItems {
		field := fmt.Sprintf("line_items[%d]", i)
		if item.Price < 0 || !finite(item.Price) {
			return Contents{}, invalid(field+".price", "must be a non-negative amount")
		}
		if item.Quantity < 0 {
			return Contents{}, invalid(field+".quantity", "must not be negative")
		}
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		item.Description = strings.TrimSpace(item.Description)
		out.LineItems = append(out.LineItems, item)
	}

	if len(out.LineItems) == 0 && out.ProductDescription == "" {
		return Contents{}, invalid("line_items", "at least one line item or a product description is required")
	}

	if !finite(c.TotalAmount) {
		return Contents{}, invalid("total_amount", "must be a finite amount")
	}

	if len(out.LineItems) > 0 {
		sum := SumLineItems(out.LineItems)
		if c.TotalAmount != 0 && !cents(c.TotalAmount).Equal(cents(sum)) {
			return Contents{}, invalid("total_amount", "%.2f does not match the line item sum %.2f", c.TotalAmount, sum)
		}
		out.TotalAmount = sum
	}

	if out.TotalAmount <= 0 {
		return Contents{}, invalid("total_amount", "must be greater than zero")
	}

	if c.DiscountAmount < 0 || !finite(c.DiscountAmount) {
		return Contents{}, invalid("discount_amount", "must not be negative")
	}
	if cents(c.DiscountAmount).GreaterThan(cents(out.TotalAmount)) {
		return Contents{}, invalid("discount_amount", "must not exceed the total amount")
	}

	creationDay := startOfDay(createdAt)
	out.ValidUntil = make([]time.Time, 0, len(c.ValidUntil))
	for i, v := range c.ValidUntil {
		if v.IsZero() {
			return Contents{}, invalid(fmt.Sprintf("valid_until[%d]", i), "must be set")
		}
		if v.Before(creationDay) {
			return Contents{}, invalid(fmt.Sprintf("valid_until[%d]", i), "must not be before the creation date")
		}
		out.ValidUntil = append(out.ValidUntil, v.UTC())
	}

	return out, nil
}

// Apply copies normalized contents onto the offer
func (c Contents) Apply(o *Offer) {
	o.LineItems = c.LineItems
	o.ProductDescription = c.ProductDescription
	o.TotalAmount = c.TotalAmount
	o.DiscountAmount = c.DiscountAmount
	o.ValidUntil = c.ValidUntil
}

// ContentsOf extracts the editable part of an offer
func ContentsOf(o *Offer) Contents {
	return Contents{
		LineItems:          append([]LineItem(nil), o.LineItems...),
		ProductDescription: o.ProductDescription,
		TotalAmount:        o.TotalAmount,
		DiscountAmount:     o.DiscountAmount,
		ValidUntil:         append([]time.Time(nil), o.ValidUntil...),
	}
}

// ValidateClientID checks the client reference of a new offer
func ValidateClientID(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return invalid("client_id", "is required")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
