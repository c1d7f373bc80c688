package models

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// OrderEvent is the inbound order payload pushed by the commerce channel.
// It arrives after transport-level signature verification, either on the
// webhook endpoint or on the order events queue.
type OrderEvent struct {
	ExternalID      json.Number      `json:"id"`
	Name            string           `json:"name"`
	FinancialStatus string           `json:"financial_status"`
	Currency        string           `json:"currency"`
	CreatedAt       time.Time        `json:"created_at"`
	TotalPrice      decimal.Decimal  `json:"total_price"`
	SubtotalPrice   decimal.Decimal  `json:"subtotal_price"`
	TotalDiscounts  decimal.Decimal  `json:"total_discounts"`
	TotalTax        decimal.Decimal  `json:"total_tax"`
	SourceName      string           `json:"source_name"`
	LineItems       []OrderEventLine `json:"line_items"`
	Customer        *EventCustomer   `json:"customer"`
	ShippingAddress json.RawMessage  `json:"shipping_address"`
	BillingAddress  json.RawMessage  `json:"billing_address"`
	ShippingLines   []ShippingLine   `json:"shipping_lines"`
	DiscountCodes   []DiscountCode   `json:"discount_codes"`
	AssignedRep     string           `json:"assigned_rep"`
}

// OrderEventLine is one line item of an inbound order event
type OrderEventLine struct {
	VariantID      json.Number      `json:"variant_id"`
	Title          string           `json:"title"`
	Quantity       int              `json:"quantity"`
	Price          decimal.Decimal  `json:"price"`
	CompareAtPrice *decimal.Decimal `json:"compare_at_price"`
	SKU            string           `json:"sku"`
	Barcode        string           `json:"barcode"`
	Vendor         string           `json:"vendor"`
	ProductType    string           `json:"product_type"`
}

// EventCustomer holds the optional customer contact block of an event
type EventCustomer struct {
	ExternalID json.Number `json:"id"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name"`
	Phone      string      `json:"phone"`
	Email      string      `json:"email"`
}

// ShippingLine is one shipping charge entry of an event
type ShippingLine struct {
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
}

// DiscountCode is one applied discount entry of an event
type DiscountCode struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
	Type   string          `json:"type"`
}

// Financial status values that indicate the order has been paid in full.
// Paid orders skip the physical fulfillment pipeline entirely.
const (
	FinancialStatusPaid = "paid"
)

// Paid reports whether the event's financial status indicates payment
func (e *OrderEvent) Paid() bool {
	return e.FinancialStatus == FinancialStatusPaid
}

// Validate checks the required fields of an inbound order event
func (e *OrderEvent) Validate() error {
	if e.ExternalID.String() == "" {
		return errors.New("order event is missing an external id")
	}
	if e.Currency == "" {
		return errors.New("order event is missing a currency")
	}
	if len(e.LineItems) == 0 {
		return errors.New("order event has no line items")
	}
	for i, line := range e.LineItems {
		if line.VariantID.String() == "" {
			return errors.Errorf("line item %d is missing a variant id", i)
		}
		if line.Quantity <= 0 {
			return errors.Errorf("line item %d has a non-positive quantity", i)
		}
	}
	return nil
}

// ParseOrderEvent unmarshals and validates a raw inbound payload
func ParseOrderEvent(raw []byte) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal order event")
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}
