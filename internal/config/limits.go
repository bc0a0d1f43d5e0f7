package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// LimitsConfig carries the operational ceilings of the transaction API:
// minimum amounts, listing page caps and the public consult rate limit.
type LimitsConfig struct {
	MinDepositAmount    decimal.Decimal
	MinWithdrawalAmount decimal.Decimal
	DefaultPageSize     int
	MaxPageSize         int
	ConsultRateLimit    int
	ConsultRateWindow   time.Duration
	ChargeExpiry        time.Duration
}

func LoadLimitsConfig() *LimitsConfig {
	return &LimitsConfig{
		MinDepositAmount:    getEnvAsDecimal("MIN_DEPOSIT_AMOUNT", "1.00"),
		MinWithdrawalAmount: getEnvAsDecimal("MIN_WITHDRAWAL_AMOUNT", "1.00"),
		DefaultPageSize:     getEnvAsInt("LIST_DEFAULT_PAGE_SIZE", 20),
		MaxPageSize:         getEnvAsInt("LIST_MAX_PAGE_SIZE", 100),
		ConsultRateLimit:    getEnvAsInt("CONSULT_RATE_LIMIT", 20),
		ConsultRateWindow:   getEnvAsDuration("CONSULT_RATE_WINDOW", 1*time.Minute),
		ChargeExpiry:        getEnvAsDuration("PIX_CHARGE_EXPIRY", 30*time.Minute),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsDecimal(key, defaultVal string) decimal.Decimal {
	if d, err := decimal.NewFromString(getEnv(key, defaultVal)); err == nil {
		return d
	}
	d, _ := decimal.NewFromString(defaultVal)
	return d
}
