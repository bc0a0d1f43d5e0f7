package services

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/orizonpaybr/gateway-api-sub000/internal/models"
)

// BalanceService owns every mutation of user balances. Debits go through a
// single conditional UPDATE so two concurrent withdrawals can never both
// succeed on the same funds.
type BalanceService struct {
	db *sql.DB
}

func NewBalanceService(db *sql.DB) *BalanceService {
	return &BalanceService{db: db}
}

// GetUser resolves an account holder. Returns ErrUserNotFound when absent.
func (s *BalanceService) GetUser(userID string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(`
		SELECT id, name, document, balance, withdrawal_blocked, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Name, &user.Document, &user.Balance,
		&user.WithdrawalBlocked, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}

	return &user, nil
}

// CreditTx increases the balance unconditionally and returns the new balance.
func (s *BalanceService) CreditTx(tx *sql.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(`
		UPDATE users
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`, amount, userID).Scan(&balance)

	if err == sql.ErrNoRows {
		return decimal.Zero, ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit user %s: %w", userID, err)
	}

	return balance, nil
}

// DebitTx decreases the balance only when the account is not blocked and the
// funds cover the amount. The check and the mutation are one statement; the
// RowsAffected result decides the outcome, never a prior read.
func (s *BalanceService) DebitTx(tx *sql.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(`
		UPDATE users
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND withdrawal_blocked = FALSE AND balance >= $1
		RETURNING balance
	`, amount, userID).Scan(&balance)

	if err == sql.ErrNoRows {
		return decimal.Zero, s.debitFailure(tx, userID, amount)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to debit user %s: %w", userID, err)
	}

	return balance, nil
}

// debitFailure distinguishes why the conditional update matched no row.
func (s *BalanceService) debitFailure(tx *sql.Tx, userID string, amount decimal.Decimal) error {
	var available decimal.Decimal
	var blocked bool
	err := tx.QueryRow(`
		SELECT balance, withdrawal_blocked FROM users WHERE id = $1
	`, userID).Scan(&available, &blocked)

	if err == sql.ErrNoRows {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect account %s after rejected debit: %w", userID, err)
	}

	if blocked {
		return ErrWithdrawalBlocked
	}

	return &InsufficientBalanceError{Available: available, Required: amount}
}
