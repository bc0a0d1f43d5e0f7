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
)

const dashboardCacheTTL = 60 * time.Second

// DashboardSummary aggregates settled movement for a period.
type DashboardSummary struct {
	DepositCount     int             `json:"deposit_count"`
	DepositTotal     decimal.Decimal `json:"deposit_total"`
	WithdrawalCount  int             `json:"withdrawal_count"`
	WithdrawalTotal  decimal.Decimal `json:"withdrawal_total"`
	FeeTotal         decimal.Decimal `json:"fee_total"`
	PendingCount     int             `json:"pending_count"`
	From             time.Time       `json:"from"`
	To               time.Time       `json:"to"`
}

// DashboardService serves read-heavy aggregates from a short-TTL cache. Cache
// keys embed the ledger version marker, so any ledger write makes every older
// entry unreachable without explicit deletes.
type DashboardService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewDashboardService(db *sql.DB, redisClient *redis.Client) *DashboardService {
	return &DashboardService{db: db, redis: redisClient}
}

// Summary returns aggregate totals between from and to (inclusive).
func (s *DashboardService) Summary(ctx context.Context, from, to time.Time) (*DashboardSummary, error) {
	cacheKey := s.cacheKey(ctx, from, to)

	if s.redis != nil && cacheKey != "" {
		if data, err := s.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached DashboardSummary
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	summary := &DashboardSummary{From: from, To: to}
	err := s.db.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE direction = 'DEPOSIT' AND status IN ('PAID_OUT', 'COMPLETED')),
			COALESCE(SUM(net_amount) FILTER (WHERE direction = 'DEPOSIT' AND status IN ('PAID_OUT', 'COMPLETED')), 0),
			COUNT(*) FILTER (WHERE direction = 'WITHDRAWAL' AND status IN ('PAID_OUT', 'COMPLETED')),
			COALESCE(SUM(total_debited) FILTER (WHERE direction = 'WITHDRAWAL' AND status IN ('PAID_OUT', 'COMPLETED')), 0),
			COALESCE(SUM(fee_amount) FILTER (WHERE status IN ('PAID_OUT', 'COMPLETED')), 0),
			COUNT(*) FILTER (WHERE status = 'PENDING')
		FROM transactions
		WHERE created_at BETWEEN $1 AND $2
	`, from, to).Scan(&summary.DepositCount, &summary.DepositTotal,
		&summary.WithdrawalCount, &summary.WithdrawalTotal,
		&summary.FeeTotal, &summary.PendingCount)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate dashboard summary: %w", err)
	}

	if s.redis != nil && cacheKey != "" {
		if data, err := json.Marshal(summary); err == nil {
			if err := s.redis.Set(ctx, cacheKey, data, dashboardCacheTTL).Err(); err != nil {
				log.Printf("[DASHBOARD] Failed to cache summary: %v", err)
			}
		}
	}

	return summary, nil
}

func (s *DashboardService) cacheKey(ctx context.Context, from, to time.Time) string {
	if s.redis == nil {
		return ""
	}

	version, err := s.redis.Get(ctx, ledgerVersionKey).Result()
	if err == redis.Nil {
		version = "0"
	} else if err != nil {
		log.Printf("[DASHBOARD] Failed to read ledger version, skipping cache: %v", err)
		return ""
	}

	return fmt.Sprintf("dashboard:summary:v%s:%d:%d", version, from.Unix(), to.Unix())
}
