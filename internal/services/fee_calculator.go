package services

import (
	"github.com/shopspring/decimal"

	"github.com/orizonpaybr/gateway-api-sub000/internal/models"
)

var hundred = decimal.NewFromInt(100)

// FeeBreakdown is the result of applying a fee schedule to a gross amount.
// AppliedPercentage and AppliedFixed echo the rates actually used (base or
// tier) so the ledger can capture them on the row.
type FeeBreakdown struct {
	Fee               decimal.Decimal
	Net               decimal.Decimal
	AppliedPercentage decimal.Decimal
	AppliedFixed      decimal.Decimal
}

// ComputeFee applies the schedule to a gross amount: percentage of gross plus
// the fixed fee, rounded half-up to 2 decimal places. Net is gross minus fee.
// Pure and deterministic; returns ErrFeeExceedsAmount when the configured fee
// would consume the whole amount.
func ComputeFee(gross decimal.Decimal, schedule *models.FeeSchedule) (*FeeBreakdown, error) {
	if !gross.IsPositive() {
		return nil, newValidationError("amount must be greater than zero")
	}

	percentage, fixed := selectRates(gross, schedule)

	fee := gross.Mul(percentage).Div(hundred).Add(fixed).Round(2)
	if fee.IsNegative() {
		fee = decimal.Zero
	}

	net := gross.Sub(fee)
	if net.IsNegative() {
		// Schedule misconfiguration; fail fast rather than settle a negative net.
		return nil, ErrFeeExceedsAmount
	}

	return &FeeBreakdown{
		Fee:               fee,
		Net:               net,
		AppliedPercentage: percentage,
		AppliedFixed:      fixed,
	}, nil
}

// selectRates resolves the percentage/fixed pair for the amount. With flexible
// tiers enabled the tiers are scanned in order and the first tier whose
// threshold covers the amount wins; amounts above every threshold fall into
// the last tier.
func selectRates(gross decimal.Decimal, schedule *models.FeeSchedule) (decimal.Decimal, decimal.Decimal) {
	if !schedule.FlexibleEnabled || len(schedule.FlexibleTiers) == 0 {
		return schedule.Percentage, schedule.Fixed
	}

	for _, tier := range schedule.FlexibleTiers {
		if gross.LessThanOrEqual(tier.Threshold) {
			return tier.Percentage, tier.Fixed
		}
	}

	last := schedule.FlexibleTiers[len(schedule.FlexibleTiers)-1]
	return last.Percentage, last.Fixed
}
