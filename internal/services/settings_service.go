package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/orizonpaybr/gateway-api-sub000/internal/models"
)

const (
	feeScheduleCacheKey = "settings:fee_schedule"
	feeScheduleCacheTTL = 5 * time.Minute
)

// SettingsService loads and updates the app_settings singleton row holding the
// fee schedule. Reads go through a redis cache that is explicitly invalidated
// on every admin update; the schedule is never held as process-global state.
type SettingsService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewSettingsService(db *sql.DB, redisClient *redis.Client) *SettingsService {
	return &SettingsService{db: db, redis: redisClient}
}

// GetFeeSchedule returns the fee schedule in effect right now.
func (s *SettingsService) GetFeeSchedule(ctx context.Context) (*models.FeeSchedule, error) {
	if s.redis != nil {
		if data, err := s.redis.Get(ctx, feeScheduleCacheKey).Bytes(); err == nil {
			var cached models.FeeSchedule
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	schedule, err := s.loadFeeSchedule()
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(schedule); err == nil {
			if err := s.redis.Set(ctx, feeScheduleCacheKey, data, feeScheduleCacheTTL).Err(); err != nil {
				log.Printf("[SETTINGS] Failed to cache fee schedule: %v", err)
			}
		}
	}

	return schedule, nil
}

func (s *SettingsService) loadFeeSchedule() (*models.FeeSchedule, error) {
	var schedule models.FeeSchedule
	var tiersJSON []byte
	err := s.db.QueryRow(`
		SELECT fee_percentage, fee_fixed, flexible_enabled, COALESCE(flexible_tiers, '[]'), updated_at
		FROM app_settings
		WHERE id = 1
	`).Scan(&schedule.Percentage, &schedule.Fixed, &schedule.FlexibleEnabled,
		&tiersJSON, &schedule.UpdatedAt)

	if err == sql.ErrNoRows {
		// No settings row yet; fall back to a zero-fee schedule.
		return &models.FeeSchedule{Percentage: decimal.Zero, Fixed: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fee schedule: %w", err)
	}

	if err := json.Unmarshal(tiersJSON, &schedule.FlexibleTiers); err != nil {
		return nil, fmt.Errorf("failed to parse flexible tiers: %w", err)
	}

	return &schedule, nil
}

// UpdateFeeSchedule persists a new schedule and invalidates the cache so the
// next transaction reads the fresh rates.
func (s *SettingsService) UpdateFeeSchedule(ctx context.Context, schedule *models.FeeSchedule) error {
	if err := validateFeeSchedule(schedule); err != nil {
		return err
	}

	tiersJSON, err := json.Marshal(schedule.FlexibleTiers)
	if err != nil {
		return fmt.Errorf("failed to encode flexible tiers: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO app_settings (id, fee_percentage, fee_fixed, flexible_enabled, flexible_tiers, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			fee_percentage = EXCLUDED.fee_percentage,
			fee_fixed = EXCLUDED.fee_fixed,
			flexible_enabled = EXCLUDED.flexible_enabled,
			flexible_tiers = EXCLUDED.flexible_tiers,
			updated_at = NOW()
	`, schedule.Percentage, schedule.Fixed, schedule.FlexibleEnabled, tiersJSON)
	if err != nil {
		return fmt.Errorf("failed to store fee schedule: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, feeScheduleCacheKey).Err(); err != nil {
			log.Printf("[SETTINGS] Failed to invalidate fee schedule cache: %v", err)
		}
	}

	log.Printf("[SETTINGS] Fee schedule updated: percentage=%s fixed=%s flexible=%t",
		schedule.Percentage.String(), schedule.Fixed.String(), schedule.FlexibleEnabled)
	return nil
}

func validateFeeSchedule(schedule *models.FeeSchedule) error {
	if schedule.Percentage.IsNegative() || schedule.Percentage.GreaterThan(hundred) {
		return newValidationError("fee percentage must be between 0 and 100")
	}
	if schedule.Fixed.IsNegative() {
		return newValidationError("fixed fee must not be negative")
	}
	for i, tier := range schedule.FlexibleTiers {
		if tier.Percentage.IsNegative() || tier.Percentage.GreaterThan(hundred) {
			return newValidationError("tier %d: percentage must be between 0 and 100", i)
		}
		if tier.Fixed.IsNegative() {
			return newValidationError("tier %d: fixed fee must not be negative", i)
		}
		if !tier.Threshold.IsPositive() {
			return newValidationError("tier %d: threshold must be greater than zero", i)
		}
		if i > 0 && !tier.Threshold.GreaterThan(schedule.FlexibleTiers[i-1].Threshold) {
			return newValidationError("tier %d: thresholds must be strictly increasing", i)
		}
	}
	return nil
}
