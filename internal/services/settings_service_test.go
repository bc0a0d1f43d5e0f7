package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/orizonpaybr/gateway-api-sub000/internal/models"
)

func TestSettingsService_GetFeeSchedule(t *testing.T) {
	ctx := context.Background()

	t.Run("loads schedule from database", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettingsService(db, nil)

		tiers := `[{"threshold":"100","percentage":"1","fixed":"0"}]`
		mock.ExpectQuery("SELECT fee_percentage, fee_fixed, flexible_enabled").
			WillReturnRows(sqlmock.NewRows([]string{"fee_percentage", "fee_fixed", "flexible_enabled", "flexible_tiers", "updated_at"}).
				AddRow("2.5", "0.50", true, []byte(tiers), time.Now()))

		schedule, err := service.GetFeeSchedule(ctx)

		assert.NoError(t, err)
		assert.Equal(t, "2.50", schedule.Percentage.StringFixed(2))
		assert.Equal(t, "0.50", schedule.Fixed.StringFixed(2))
		assert.True(t, schedule.FlexibleEnabled)
		assert.Len(t, schedule.FlexibleTiers, 1)
		assert.Equal(t, "100", schedule.FlexibleTiers[0].Threshold.String())
	})

	t.Run("missing settings row falls back to zero fees", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettingsService(db, nil)

		mock.ExpectQuery("SELECT fee_percentage, fee_fixed, flexible_enabled").
			WillReturnError(sql.ErrNoRows)

		schedule, err := service.GetFeeSchedule(ctx)

		assert.NoError(t, err)
		assert.True(t, schedule.Percentage.IsZero())
		assert.True(t, schedule.Fixed.IsZero())
	})

	t.Run("cache hit skips the database", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewSettingsService(db, redisClient)

		cached, _ := json.Marshal(&models.FeeSchedule{Percentage: dec("1.5")})
		redisMock.ExpectGet(feeScheduleCacheKey).SetVal(string(cached))

		schedule, err := service.GetFeeSchedule(ctx)

		assert.NoError(t, err)
		assert.Equal(t, "1.50", schedule.Percentage.StringFixed(2))
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestSettingsService_UpdateFeeSchedule(t *testing.T) {
	ctx := context.Background()

	t.Run("persists and logs the new schedule", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettingsService(db, nil)

		mock.ExpectExec("INSERT INTO app_settings").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = service.UpdateFeeSchedule(ctx, &models.FeeSchedule{
			Percentage: dec("3"),
			Fixed:      dec("1.00"),
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalidates the cache", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewSettingsService(db, redisClient)

		mock.ExpectExec("INSERT INTO app_settings").
			WillReturnResult(sqlmock.NewResult(0, 1))
		redisMock.ExpectDel(feeScheduleCacheKey).SetVal(1)

		err = service.UpdateFeeSchedule(ctx, &models.FeeSchedule{Percentage: dec("3")})

		assert.NoError(t, err)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("rejects invalid schedules", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettingsService(db, nil)

		invalid := []*models.FeeSchedule{
			{Percentage: dec("101")},
			{Percentage: dec("-1")},
			{Fixed: dec("-0.01")},
			{FlexibleTiers: []models.FeeTier{{Threshold: dec("0"), Percentage: dec("1")}}},
			{FlexibleTiers: []models.FeeTier{
				{Threshold: dec("500"), Percentage: dec("1")},
				{Threshold: dec("100"), Percentage: dec("2")},
			}},
		}

		for _, schedule := range invalid {
			err := service.UpdateFeeSchedule(ctx, schedule)

			var validationErr *ValidationError
			assert.ErrorAs(t, err, &validationErr)
		}
	})
}
