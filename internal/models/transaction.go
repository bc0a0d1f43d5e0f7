package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction directions.
const (
	DirectionDeposit    = "DEPOSIT"
	DirectionWithdrawal = "WITHDRAWAL"
)

// Transaction statuses. StatusNotFound is a sentinel returned by the public
// status lookup and is never persisted.
const (
	StatusPending    = "PENDING"
	StatusPaidOut    = "PAID_OUT"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
	StatusMediation  = "MEDIATION"
	StatusChargeback = "CHARGEBACK"
	StatusNotFound   = "NOT_FOUND"
)

// Transaction is a ledger entry for a deposit or withdrawal. The fee schedule
// applied at creation time is captured on the row (FeePercentage, FeeFixed) so
// fees are never recomputed after the fact.
type Transaction struct {
	ID                int64           `json:"id" db:"id"`
	TransactionID     string          `json:"transaction_id" db:"transaction_id"`
	ExternalReference string          `json:"external_reference,omitempty" db:"external_reference"`
	EndToEndID        string          `json:"end_to_end_id,omitempty" db:"end_to_end_id"`
	UserID            string          `json:"user_id" db:"user_id"`
	Direction         string          `json:"direction" db:"direction"`
	GrossAmount       decimal.Decimal `json:"gross_amount" db:"gross_amount"`
	FeeAmount         decimal.Decimal `json:"fee_amount" db:"fee_amount"`
	NetAmount         decimal.Decimal `json:"net_amount" db:"net_amount"`
	TotalDebited      decimal.Decimal `json:"total_debited" db:"total_debited"`
	FeePercentage     decimal.Decimal `json:"fee_percentage" db:"fee_percentage"`
	FeeFixed          decimal.Decimal `json:"fee_fixed" db:"fee_fixed"`
	Status            string          `json:"status" db:"status"`
	Description       string          `json:"description,omitempty" db:"description"`
	PayerName         string          `json:"payer_name,omitempty" db:"payer_name"`
	PayerDocument     string          `json:"payer_document,omitempty" db:"payer_document"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// DepositRequest is the payload for manual (admin-created) deposits.
type DepositRequest struct {
	UserID      string          `json:"user_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description" validate:"max=200"`
}

// WithdrawalRequest is the payload for PIX withdrawals.
type WithdrawalRequest struct {
	UserID      string          `json:"user_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	PixKey      string          `json:"pix_key" validate:"max=140"`
	Description string          `json:"description" validate:"max=200"`
}

// PixChargeRequest creates a gateway-originated deposit charge awaiting
// confirmation from the PSP.
type PixChargeRequest struct {
	UserID        string          `json:"user_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	PayerName     string          `json:"payer_name" validate:"max=120"`
	PayerDocument string          `json:"payer_document" validate:"max=20"`
	Description   string          `json:"description" validate:"max=200"`
}

// WebhookEvent is the PSP confirmation callback payload.
type WebhookEvent struct {
	TransactionID     string `json:"transaction_id" validate:"required"`
	ExternalReference string `json:"external_reference"`
	EndToEndID        string `json:"end_to_end_id"`
	Event             string `json:"event" validate:"required,oneof=CONFIRMED FAILED"`
}

// StatusUpdateRequest transitions a transaction through the status machine.
type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListFilter narrows transaction listings. Search matches payer name, payer
// document and transaction id.
type ListFilter struct {
	UserID string
	Status string
	From   *time.Time
	To     *time.Time
	Search string
	Page   int
	Limit  int
}
