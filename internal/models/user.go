package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is an account holder. Balance mutations happen only through conditional
// updates in the balance service; WithdrawalBlocked freezes cash-out
// independently of the balance.
type User struct {
	ID                string          `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	Document          string          `json:"document" db:"document"`
	Balance           decimal.Decimal `json:"balance" db:"balance"`
	WithdrawalBlocked bool            `json:"withdrawal_blocked" db:"withdrawal_blocked"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}
