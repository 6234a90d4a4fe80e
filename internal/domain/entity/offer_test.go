package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

func TestContents_Normalize(t *testing.T) {
	created := time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)
	sameDayEarlier := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	dayBefore := time.Date(2026, 5, 3, 23, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		contents  Contents
		wantTotal float64
		wantField string
	}{
		{
			name:      "total computed from line items",
			contents:  Contents{LineItems: []LineItem{{Description: "pump", Price: 600}, {Description: "install", Price: 400}}},
			wantTotal: 1000,
		},
		{
			name:      "matching supplied total accepted",
			contents:  Contents{LineItems: []LineItem{{Price: 1000}}, TotalAmount: 1000.001},
			wantTotal: 1000,
		},
		{
			name:      "fractional prices sum exactly",
			contents:  Contents{LineItems: []LineItem{{Price: 0.1}, {Price: 0.2}}, TotalAmount: 0.3},
			wantTotal: 0.3,
		},
		{
			name:      "free text with explicit total",
			contents:  Contents{ProductDescription: "annual maintenance", TotalAmount: 250},
			wantTotal: 250,
		},
		{
			name:      "validUntil earlier on the creation day is allowed",
			contents:  Contents{LineItems: []LineItem{{Price: 10}}, ValidUntil: []time.Time{sameDayEarlier}},
			wantTotal: 10,
		},
		{
			name:      "no items and no description",
			contents:  Contents{TotalAmount: 100},
			wantField: "line_items",
		},
		{
			name:      "blank description",
			contents:  Contents{ProductDescription: "   ", TotalAmount: 100},
			wantField: "line_items",
		},
		{
			name:      "mismatching total",
			contents:  Contents{LineItems: []LineItem{{Price: 100}}, TotalAmount: 120},
			wantField: "total_amount",
		},
		{
			name:      "zero total",
			contents:  Contents{LineItems: []LineItem{{Price: 0}}},
			wantField: "total_amount",
		},
		{
			name:      "negative price",
			contents:  Contents{LineItems: []LineItem{{Price: -5}, {Price: 10}}},
			wantField: "line_items[0].price",
		},
		{
			name:      "negative discount",
			contents:  Contents{LineItems: []LineItem{{Price: 100}}, DiscountAmount: -1},
			wantField: "discount_amount",
		},
		{
			name:      "discount above total",
			contents:  Contents{LineItems: []LineItem{{Price: 100}}, DiscountAmount: 101},
			wantField: "discount_amount",
		},
		{
			name:      "validUntil before creation day",
			contents:  Contents{LineItems: []LineItem{{Price: 100}}, ValidUntil: []time.Time{dayBefore}},
			wantField: "valid_until[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.contents.Normalize(created)

			if tt.wantField != "" {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("expected *ValidationError, got %v", err)
				}
				if ve.Field != tt.wantField {
					t.Errorf("ValidationError.Field = %v, want %v", ve.Field, tt.wantField)
				}
				if !errors.Is(err, ErrValidation) {
					t.Errorf("error should match ErrValidation")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.TotalAmount != tt.wantTotal {
				t.Errorf("TotalAmount = %v, want %v", got.TotalAmount, tt.wantTotal)
			}
		})
	}
}

func TestContents_NormalizeDefaultsQuantity(t *testing.T) {
	got, err := Contents{LineItems: []LineItem{{Description: " valve ", Price: 20}}}.Normalize(time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.LineItems[0].Quantity != 1 {
		t.Errorf("Quantity = %d, want 1", got.LineItems[0].Quantity)
	}
	if got.LineItems[0].Description != "valve" {
		t.Errorf("Description = %q, want %q", got.LineItems[0].Description, "valve")
	}
}

func TestValidateClientID(t *testing.T) {
	if err := ValidateClientID(""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty client id should fail validation, got %v", err)
	}
	if err := ValidateClientID("42"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOffer_Approved(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		approval *Approval
		expected bool
	}{
		{"no approval", nil, false},
		{"approved", &Approval{ApprovedBy: "mgr", ApprovedAt: &now}, true},
		{"rejected", &Approval{RejectionReason: "too expensive"}, false},
		{"empty record", &Approval{Comments: "looked at it"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Offer{Approval: tt.approval}
			if got := o.Approved(); got != tt.expected {
				t.Errorf("Offer.Approved() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestOffer_ExpiresAt(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	o := &Offer{ValidUntil: []time.Time{b, a}}
	if got := o.ExpiresAt(); got == nil || !got.Equal(b) {
		t.Errorf("ExpiresAt() = %v, want %v", got, b)
	}

	if got := (&Offer{}).ExpiresAt(); got != nil {
		t.Errorf("ExpiresAt() = %v, want nil", got)
	}
}

func TestOffer_CloneIsDeep(t *testing.T) {
	at := time.Now()
	o := &Offer{
		Status:    workflow.StateDraft,
		LineItems: []LineItem{{Price: 1}},
		Approval:  &Approval{ApprovedBy: "mgr", ApprovedAt: &at},
	}

	c := o.Clone()
	c.LineItems[0].Price = 99
	c.Approval.ApprovedBy = "other"

	if o.LineItems[0].Price != 1 {
		t.Error("Clone() shares line items with the original")
	}
	if o.Approval.ApprovedBy != "mgr" {
		t.Error("Clone() shares the approval record with the original")
	}
}

func TestActor_IsStaff(t *testing.T) {
	if SystemActor.IsStaff() {
		t.Error("system actor should not count as staff")
	}
	if !(Actor{ID: "u1", Roles: workflow.RoleSet{workflow.RoleSalesSupport}}).IsStaff() {
		t.Error("SalesSupport should count as staff")
	}
}
