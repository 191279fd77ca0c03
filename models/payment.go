package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PiPayment is the payment description returned by the Pi Platform API.
type PiPayment struct {
	Identifier  string          `json:"identifier"`
	UserUID     string          `json:"user_uid"`
	Amount      decimal.Decimal `json:"amount"`
	Memo        string          `json:"memo"`
	Metadata    PaymentMetadata `json:"metadata"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Direction   string          `json:"direction"`
	Network     string          `json:"network"`
	CreatedAt   string          `json:"created_at"`
	Status      PiPaymentStatus `json:"status"`
	Transaction *PiTransaction  `json:"transaction"`
}

// PaymentMetadata is the free-form metadata the frontend attaches to a payment.
// Only the fields the server relies on are decoded.
type PaymentMetadata struct {
	JobID      string           `json:"jobId"`
	ContractID string           `json:"contractId,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
}

// PiPaymentStatus holds the gateway-side progress flags of a payment.
type PiPaymentStatus struct {
	DeveloperApproved   bool `json:"developer_approved"`
	TransactionVerified bool `json:"transaction_verified"`
	DeveloperCompleted  bool `json:"developer_completed"`
	Cancelled           bool `json:"cancelled"`
	UserCancelled       bool `json:"user_cancelled"`
}

// PiTransaction is the on-chain part of a payment.
type PiTransaction struct {
	TxID     string `json:"txid"`
	Verified bool   `json:"verified"`
	Link     string `json:"_link"`
}

// ChainTransaction is the subset of a Horizon transaction record used for verification.
type ChainTransaction struct {
	ID        string    `json:"id"`
	Hash      string    `json:"hash"`
	Memo      string    `json:"memo"`
	Ledger    int64     `json:"ledger"`
	CreatedAt time.Time `json:"created_at"`
}

// FeePolicy is the platform surcharge rule: percent of the budget with a floor.
type FeePolicy struct {
	Percent decimal.Decimal
	Minimum decimal.Decimal
}

// DefaultFeePolicy is 5% with a 0.01 floor.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		Percent: decimal.RequireFromString("0.05"),
		Minimum: decimal.RequireFromString("0.01"),
	}
}
