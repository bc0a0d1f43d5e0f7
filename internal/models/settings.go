package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeTier differentiates low-value and high-value transactions. Tiers are
// ordered by threshold; the first tier whose threshold the gross amount does
// not exceed wins.
type FeeTier struct {
	Threshold  decimal.Decimal `json:"threshold"`
	Percentage decimal.Decimal `json:"percentage"`
	Fixed      decimal.Decimal `json:"fixed"`
}

// FeeSchedule is the admin-configured fee rule set, read at transaction
// creation time and immutable per transaction once applied.
type FeeSchedule struct {
	Percentage      decimal.Decimal `json:"percentage"`
	Fixed           decimal.Decimal `json:"fixed"`
	FlexibleEnabled bool            `json:"flexible_enabled"`
	FlexibleTiers   []FeeTier       `json:"flexible_tiers,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at,omitempty"`
}
