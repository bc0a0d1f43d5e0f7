package services

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/orizonpaybr/gateway-api-sub000/internal/models"
)

// LedgerService is the append-only transaction store. Uniqueness of
// transaction_id and external_reference is enforced by database constraints,
// never by a check-then-insert.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// Allowed status transitions. CANCELLED and CHARGEBACK are terminal.
var statusTransitions = map[string][]string{
	models.StatusPending:    {models.StatusPaidOut, models.StatusCompleted, models.StatusCancelled, models.StatusMediation},
	models.StatusPaidOut:    {models.StatusMediation, models.StatusChargeback},
	models.StatusCompleted:  {models.StatusMediation, models.StatusChargeback},
	models.StatusMediation:  {models.StatusCompleted, models.StatusChargeback, models.StatusCancelled},
	models.StatusCancelled:  {},
	models.StatusChargeback: {},
}

// IsValidStatus reports whether s is a persistable transaction status.
func IsValidStatus(s string) bool {
	_, ok := statusTransitions[s]
	return ok
}

func transitionAllowed(from, to string) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

const transactionColumns = `
	id, transaction_id, COALESCE(external_reference, ''), COALESCE(end_to_end_id, ''),
	user_id, direction, gross_amount, fee_amount, net_amount, total_debited,
	fee_percentage, fee_fixed, status, COALESCE(description, ''),
	COALESCE(payer_name, ''), COALESCE(payer_document, ''), created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.TransactionID, &t.ExternalReference, &t.EndToEndID,
		&t.UserID, &t.Direction, &t.GrossAmount, &t.FeeAmount, &t.NetAmount,
		&t.TotalDebited, &t.FeePercentage, &t.FeeFixed, &t.Status, &t.Description,
		&t.PayerName, &t.PayerDocument, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTx appends a ledger entry inside the caller's transaction. A unique
// violation on transaction_id or external_reference surfaces as
// DuplicateTransactionError.
func (s *LedgerService) CreateTx(tx *sql.Tx, t *models.Transaction) error {
	err := tx.QueryRow(`
		INSERT INTO transactions
		(transaction_id, external_reference, end_to_end_id, user_id, direction,
		 gross_amount, fee_amount, net_amount, total_debited, fee_percentage,
		 fee_fixed, status, description, payer_name, payer_document, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, t.TransactionID, t.ExternalReference, t.EndToEndID, t.UserID, t.Direction,
		t.GrossAmount, t.FeeAmount, t.NetAmount, t.TotalDebited, t.FeePercentage,
		t.FeeFixed, t.Status, t.Description, t.PayerName, t.PayerDocument).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return &DuplicateTransactionError{TransactionID: t.TransactionID}
		}
		return fmt.Errorf("failed to append ledger entry %s: %w", t.TransactionID, err)
	}

	return nil
}

// GetByTransactionID fetches a single ledger entry.
func (s *LedgerService) GetByTransactionID(transactionID string) (*models.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRow(`
		SELECT`+transactionColumns+`
		FROM transactions
		WHERE transaction_id = $1
	`, transactionID))

	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", transactionID, err)
	}

	return t, nil
}

// LookupStatus serves the public, unauthenticated status consult: matches
// transaction_id or external_reference and returns the NOT_FOUND sentinel
// instead of an error when nothing matches.
func (s *LedgerService) LookupStatus(identifier string) (string, error) {
	var status string
	err := s.db.QueryRow(`
		SELECT status FROM transactions
		WHERE transaction_id = $1 OR external_reference = $1
		LIMIT 1
	`, identifier).Scan(&status)

	if err == sql.ErrNoRows {
		return models.StatusNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up status for %s: %w", identifier, err)
	}

	return status, nil
}

// UpdateStatusTx transitions a ledger entry inside the caller's transaction.
// The current row is locked so concurrent transitions serialize; a transition
// the state machine does not allow fails with InvalidTransitionError.
func (s *LedgerService) UpdateStatusTx(tx *sql.Tx, transactionID, newStatus string) (*models.Transaction, error) {
	if !IsValidStatus(newStatus) {
		return nil, ErrInvalidStatus
	}

	var current string
	err := tx.QueryRow(`
		SELECT status FROM transactions WHERE transaction_id = $1 FOR UPDATE
	`, transactionID).Scan(&current)

	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock transaction %s: %w", transactionID, err)
	}

	if !transitionAllowed(current, newStatus) {
		return nil, &InvalidTransitionError{From: current, To: newStatus}
	}

	t, err := scanTransaction(tx.QueryRow(`
		UPDATE transactions
		SET status = $1, updated_at = NOW()
		WHERE transaction_id = $2
		RETURNING`+transactionColumns, newStatus, transactionID))
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction %s: %w", transactionID, err)
	}

	return t, nil
}

// List returns filtered ledger entries, newest first, plus the total count for
// pagination. Limits above MaxPageSize are clamped, never unbounded.
func (s *LedgerService) List(filter models.ListFilter, defaultLimit, maxLimit int) ([]models.Transaction, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	var conditions []string
	var args []any
	argIndex := 1

	addCondition := func(condition string, value any) {
		conditions = append(conditions, fmt.Sprintf(condition, argIndex))
		args = append(args, value)
		argIndex++
	}

	if filter.UserID != "" {
		addCondition("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		addCondition("status = $%d", filter.Status)
	}
	if filter.From != nil {
		addCondition("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		addCondition("created_at <= $%d", *filter.To)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(payer_name ILIKE $%d OR payer_document ILIKE $%d OR transaction_id ILIKE $%d)",
			argIndex, argIndex, argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := "SELECT" + transactionColumns + " FROM transactions" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, total, nil
}
