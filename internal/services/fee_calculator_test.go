package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/orizonpaybr/gateway-api-sub000/internal/models"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestComputeFee(t *testing.T) {
	schedule := &models.FeeSchedule{
		Percentage: dec("2.5"),
		Fixed:      dec("0.50"),
	}

	t.Run("percentage plus fixed", func(t *testing.T) {
		b, err := ComputeFee(dec("100.00"), schedule)

		assert.NoError(t, err)
		assert.Equal(t, "3.00", b.Fee.StringFixed(2))
		assert.Equal(t, "97.00", b.Net.StringFixed(2))
		assert.Equal(t, "2.50", b.AppliedPercentage.StringFixed(2))
		assert.Equal(t, "0.50", b.AppliedFixed.StringFixed(2))
	})

	t.Run("rounds half up to two decimals", func(t *testing.T) {
		// 10.00 * 0.05% = 0.005, rounds up to 0.01
		b, err := ComputeFee(dec("10.00"), &models.FeeSchedule{Percentage: dec("0.05")})

		assert.NoError(t, err)
		assert.Equal(t, "0.01", b.Fee.StringFixed(2))
		assert.Equal(t, "9.99", b.Net.StringFixed(2))
	})

	t.Run("rounds down below half", func(t *testing.T) {
		// 10.01 * 3.5% = 0.35035, rounds down to 0.35
		b, err := ComputeFee(dec("10.01"), &models.FeeSchedule{Percentage: dec("3.5")})

		assert.NoError(t, err)
		assert.Equal(t, "0.35", b.Fee.StringFixed(2))
	})

	t.Run("zero schedule charges nothing", func(t *testing.T) {
		b, err := ComputeFee(dec("55.55"), &models.FeeSchedule{})

		assert.NoError(t, err)
		assert.Equal(t, "0.00", b.Fee.StringFixed(2))
		assert.Equal(t, "55.55", b.Net.StringFixed(2))
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		_, err := ComputeFee(decimal.Zero, schedule)

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("rejects negative amount", func(t *testing.T) {
		_, err := ComputeFee(dec("-10"), schedule)

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("fee consuming whole amount is rejected", func(t *testing.T) {
		_, err := ComputeFee(dec("1.00"), &models.FeeSchedule{Fixed: dec("2.00")})

		assert.ErrorIs(t, err, ErrFeeExceedsAmount)
	})
}

func TestComputeFee_FlexibleTiers(t *testing.T) {
	schedule := &models.FeeSchedule{
		Percentage:      dec("5"),
		Fixed:           dec("9.99"),
		FlexibleEnabled: true,
		FlexibleTiers: []models.FeeTier{
			{Threshold: dec("100"), Percentage: dec("1"), Fixed: dec("0")},
			{Threshold: dec("500"), Percentage: dec("2"), Fixed: dec("1.00")},
		},
	}

	t.Run("amount within first tier", func(t *testing.T) {
		b, err := ComputeFee(dec("50"), schedule)

		assert.NoError(t, err)
		assert.Equal(t, "0.50", b.Fee.StringFixed(2))
		assert.Equal(t, "1.00", b.AppliedPercentage.StringFixed(2))
	})

	t.Run("threshold boundary belongs to the tier", func(t *testing.T) {
		b, err := ComputeFee(dec("100"), schedule)

		assert.NoError(t, err)
		assert.Equal(t, "1.00", b.Fee.StringFixed(2))
	})

	t.Run("amount in second tier", func(t *testing.T) {
		b, err := ComputeFee(dec("300"), schedule)

		assert.NoError(t, err)
		assert.Equal(t, "7.00", b.Fee.StringFixed(2))
	})

	t.Run("amount above every threshold uses last tier", func(t *testing.T) {
		b, err := ComputeFee(dec("1000"), schedule)

		assert.NoError(t, err)
		assert.Equal(t, "21.00", b.Fee.StringFixed(2))
		assert.Equal(t, "2.00", b.AppliedPercentage.StringFixed(2))
	})

	t.Run("disabled tiers fall back to base rates", func(t *testing.T) {
		flat := *schedule
		flat.FlexibleEnabled = false

		b, err := ComputeFee(dec("50"), &flat)

		assert.NoError(t, err)
		assert.Equal(t, "12.49", b.Fee.StringFixed(2))
	})

	t.Run("enabled but empty tier list uses base rates", func(t *testing.T) {
		b, err := ComputeFee(dec("100"), &models.FeeSchedule{
			Percentage:      dec("1"),
			FlexibleEnabled: true,
		})

		assert.NoError(t, err)
		assert.Equal(t, "1.00", b.Fee.StringFixed(2))
	})
}
