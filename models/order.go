package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a payment attempt.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"   // intent recorded, gateway not involved yet
	OrderStatusApproved  OrderStatus = "approved"  // server approved the gateway payment
	OrderStatusPaid      OrderStatus = "paid"      // transaction hash recorded
	OrderStatusCompleted OrderStatus = "completed" // gateway acknowledged completion
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Settled reports whether a transaction hash has been recorded for the order.
func (s OrderStatus) Settled() bool {
	return s == OrderStatusPaid || s == OrderStatusCompleted
}

// Open reports whether the order is still waiting for the payer.
func (s OrderStatus) Open() bool {
	return s == OrderStatusCreated || s == OrderStatusApproved
}

// Order tracks one payment attempt against the gateway. Status is the only stored state;
// the paid and cancelled flags are derived from it.
type Order struct {
	ID            string          `json:"orderId"`
	PaymentID     *string         `json:"paymentId"` // gateway identifier, null until assigned
	JobID         *string         `json:"jobId"`     // null for records synthesized from a bare callback
	PayerUID      string          `json:"payerUid,omitempty"`
	FreelancerUID *string         `json:"freelancerUid,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Total         decimal.Decimal `json:"total"`
	Memo          string          `json:"memo,omitempty"`
	TxID          *string         `json:"txid"` // null until the chain confirms
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
}

// Paid reports whether the order has settled.
func (o *Order) Paid() bool {
	return o.Status.Settled()
}

// Cancelled reports whether the order was cancelled.
func (o *Order) Cancelled() bool {
	return o.Status == OrderStatusCancelled
}

// PaymentIDValue returns the gateway identifier or an empty string.
func (o *Order) PaymentIDValue() string {
	if o.PaymentID == nil {
		return ""
	}
	return *o.PaymentID
}

// JobIDValue returns the linked job id or an empty string.
func (o *Order) JobIDValue() string {
	if o.JobID == nil {
		return ""
	}
	return *o.JobID
}

// TxIDValue returns the transaction hash or an empty string.
func (o *Order) TxIDValue() string {
	if o.TxID == nil {
		return ""
	}
	return *o.TxID
}

// MarshalJSON adds the derived paid and cancelled flags.
func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		Paid      bool `json:"paid"`
		Cancelled bool `json:"cancelled"`
	}{
		order:     order(o),
		Paid:      o.Paid(),
		Cancelled: o.Cancelled(),
	})
}

// OrderRef identifies an order either by internal id or by gateway payment id.
type OrderRef struct {
	OrderID   string
	PaymentID string
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
