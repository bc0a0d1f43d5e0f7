package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/orizonpaybr/gateway-api-sub000/internal/audit"
	"github.com/orizonpaybr/gateway-api-sub000/internal/config"
	"github.com/orizonpaybr/gateway-api-sub000/internal/models"
)

const (
	ledgerVersionKey     = "ledger:version"
	notificationQueueKey = "notification_queue"
)

// TransactionService is the stateless orchestrator: validate, compute fees,
// check preconditions, then write the ledger entry and mutate the balance in
// one database transaction. Business failures are rejected before any
// mutation; after that the two writes commit or roll back together.
type TransactionService struct {
	db         *sql.DB
	redis      *redis.Client
	ledger     *LedgerService
	balances   *BalanceService
	settings   *SettingsService
	settlement *SettlementService
	audit      *audit.Logger
	validator  *ValidationHelper
	limits     *config.LimitsConfig
}

func NewTransactionService(db *sql.DB, redisClient *redis.Client, limits *config.LimitsConfig) *TransactionService {
	return &TransactionService{
		db:         db,
		redis:      redisClient,
		ledger:     NewLedgerService(db),
		balances:   NewBalanceService(db),
		settings:   NewSettingsService(db, redisClient),
		settlement: NewSettlementService(redisClient),
		audit:      audit.NewLogger(),
		validator:  NewValidationHelper(),
		limits:     limits,
	}
}

// Ledger returns the read side used by collaborator handlers.
func (ts *TransactionService) Ledger() *LedgerService {
	return ts.ledger
}

// Settings exposes the fee schedule administration.
func (ts *TransactionService) Settings() *SettingsService {
	return ts.settings
}

// ProcessDeposit settles a manual deposit immediately: the net amount (gross
// minus fee) is credited and the ledger entry is written PAID_OUT.
func (ts *TransactionService) ProcessDeposit(ctx context.Context, req *models.DepositRequest) (*models.Transaction, error) {
	if err := ts.validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.Amount.LessThan(ts.limits.MinDepositAmount) {
		return nil, newValidationError("amount must be at least %s", ts.limits.MinDepositAmount.StringFixed(2))
	}

	user, err := ts.balances.GetUser(req.UserID)
	if err != nil {
		return nil, err
	}

	schedule, err := ts.settings.GetFeeSchedule(ctx)
	if err != nil {
		return nil, err
	}

	breakdown, err := ComputeFee(req.Amount, schedule)
	if err != nil {
		return nil, err
	}

	t := &models.Transaction{
		TransactionID: uuid.New().String(),
		UserID:        user.ID,
		Direction:     models.DirectionDeposit,
		GrossAmount:   req.Amount,
		FeeAmount:     breakdown.Fee,
		NetAmount:     breakdown.Net,
		FeePercentage: breakdown.AppliedPercentage,
		FeeFixed:      breakdown.AppliedFixed,
		Status:        models.StatusPaidOut,
		Description:   req.Description,
		PayerName:     user.Name,
		PayerDocument: user.Document,
	}

	dbTx, err := ts.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := ts.ledger.CreateTx(dbTx, t); err != nil {
		return nil, err
	}
	if _, err := ts.balances.CreditTx(dbTx, user.ID, breakdown.Net); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deposit %s: %w", t.TransactionID, err)
	}

	ts.audit.LogTransaction(t.TransactionID, user.ID, t.Direction, t.NetAmount.StringFixed(2), t.Status)
	ts.afterLedgerWrite(ctx, t, "DEPOSIT_SETTLED")
	return t, nil
}

// ProcessWithdrawal debits gross plus fee from the balance and records the
// beneficiary net (gross minus fee). The conditional debit is the only
// sufficiency check; concurrent withdrawals race on it, never on a prior read.
func (ts *TransactionService) ProcessWithdrawal(ctx context.Context, req *models.WithdrawalRequest) (*models.Transaction, error) {
	if err := ts.validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.Amount.LessThan(ts.limits.MinWithdrawalAmount) {
		return nil, newValidationError("amount must be at least %s", ts.limits.MinWithdrawalAmount.StringFixed(2))
	}

	user, err := ts.balances.GetUser(req.UserID)
	if err != nil {
		return nil, err
	}
	if user.WithdrawalBlocked {
		return nil, ErrWithdrawalBlocked
	}

	schedule, err := ts.settings.GetFeeSchedule(ctx)
	if err != nil {
		return nil, err
	}

	breakdown, err := ComputeFee(req.Amount, schedule)
	if err != nil {
		return nil, err
	}
	totalDebited := req.Amount.Add(breakdown.Fee)

	t := &models.Transaction{
		TransactionID: uuid.New().String(),
		UserID:        user.ID,
		Direction:     models.DirectionWithdrawal,
		GrossAmount:   req.Amount,
		FeeAmount:     breakdown.Fee,
		NetAmount:     breakdown.Net,
		TotalDebited:  totalDebited,
		FeePercentage: breakdown.AppliedPercentage,
		FeeFixed:      breakdown.AppliedFixed,
		Status:        models.StatusPaidOut,
		Description:   req.Description,
		PayerName:     user.Name,
		PayerDocument: user.Document,
	}

	dbTx, err := ts.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := ts.balances.DebitTx(dbTx, user.ID, totalDebited); err != nil {
		return nil, err
	}
	if err := ts.ledger.CreateTx(dbTx, t); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit withdrawal %s: %w", t.TransactionID, err)
	}

	ts.audit.LogTransaction(t.TransactionID, user.ID, t.Direction, totalDebited.StringFixed(2), t.Status)
	ts.afterLedgerWrite(ctx, t, "WITHDRAWAL_SETTLED")

	if err := ts.settlement.QueueWithdrawal(ctx, t, req.PixKey); err != nil {
		log.Printf("[TRANSACTION] Failed to queue settlement for %s: %v", t.TransactionID, err)
		ts.audit.LogError(t.TransactionID, user.ID, err)
	}

	return t, nil
}

// OpenPixCharge records a gateway-originated deposit as PENDING. The balance
// is untouched until the PSP confirms through the webhook.
func (ts *TransactionService) OpenPixCharge(ctx context.Context, req *models.PixChargeRequest) (*models.Transaction, error) {
	if err := ts.validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.Amount.LessThan(ts.limits.MinDepositAmount) {
		return nil, newValidationError("amount must be at least %s", ts.limits.MinDepositAmount.StringFixed(2))
	}

	user, err := ts.balances.GetUser(req.UserID)
	if err != nil {
		return nil, err
	}

	schedule, err := ts.settings.GetFeeSchedule(ctx)
	if err != nil {
		return nil, err
	}

	breakdown, err := ComputeFee(req.Amount, schedule)
	if err != nil {
		return nil, err
	}

	payerName := req.PayerName
	if payerName == "" {
		payerName = user.Name
	}
	payerDocument := req.PayerDocument
	if payerDocument == "" {
		payerDocument = user.Document
	}

	t := &models.Transaction{
		TransactionID: uuid.New().String(),
		UserID:        user.ID,
		Direction:     models.DirectionDeposit,
		GrossAmount:   req.Amount,
		FeeAmount:     breakdown.Fee,
		NetAmount:     breakdown.Net,
		FeePercentage: breakdown.AppliedPercentage,
		FeeFixed:      breakdown.AppliedFixed,
		Status:        models.StatusPending,
		Description:   req.Description,
		PayerName:     payerName,
		PayerDocument: payerDocument,
	}

	dbTx, err := ts.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := ts.ledger.CreateTx(dbTx, t); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit charge %s: %w", t.TransactionID, err)
	}

	ts.audit.LogTransaction(t.TransactionID, user.ID, t.Direction, t.GrossAmount.StringFixed(2), t.Status)
	ts.afterLedgerWrite(ctx, t, "CHARGE_OPENED")
	return t, nil
}

// ConfirmGatewayTransaction applies a PSP webhook: CONFIRMED settles a pending
// deposit (status PAID_OUT plus the net credit, one transaction), FAILED
// cancels it. Replays of an already-applied event are acknowledged without
// touching anything.
func (ts *TransactionService) ConfirmGatewayTransaction(ctx context.Context, ev *models.WebhookEvent) (*models.Transaction, error) {
	if err := ts.validator.ValidateStruct(ev); err != nil {
		return nil, err
	}

	current, err := ts.ledger.GetByTransactionID(ev.TransactionID)
	if err != nil {
		return nil, err
	}

	target := models.StatusPaidOut
	if ev.Event == "FAILED" {
		target = models.StatusCancelled
	}
	if current.Status == target {
		log.Printf("[WEBHOOK] Transaction %s already %s, ignoring replay", ev.TransactionID, target)
		return current, nil
	}

	dbTx, err := ts.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	t, err := ts.ledger.UpdateStatusTx(dbTx, ev.TransactionID, target)
	if err != nil {
		return nil, err
	}

	if ev.ExternalReference != "" || ev.EndToEndID != "" {
		if _, err := dbTx.Exec(`
			UPDATE transactions
			SET external_reference = COALESCE(NULLIF($1, ''), external_reference),
			    end_to_end_id = COALESCE(NULLIF($2, ''), end_to_end_id)
			WHERE transaction_id = $3
		`, ev.ExternalReference, ev.EndToEndID, ev.TransactionID); err != nil {
			return nil, fmt.Errorf("failed to record gateway references for %s: %w", ev.TransactionID, err)
		}
		t.ExternalReference = ev.ExternalReference
		t.EndToEndID = ev.EndToEndID
	}

	if target == models.StatusPaidOut && t.Direction == models.DirectionDeposit {
		if _, err := ts.balances.CreditTx(dbTx, t.UserID, t.NetAmount); err != nil {
			return nil, err
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit webhook for %s: %w", ev.TransactionID, err)
	}

	ts.audit.LogStatusChange(t.TransactionID, current.Status, target)
	ts.afterLedgerWrite(ctx, t, "GATEWAY_"+ev.Event)
	return t, nil
}

// ChangeStatus applies an admin status transition through the state machine.
func (ts *TransactionService) ChangeStatus(ctx context.Context, transactionID, newStatus string) (*models.Transaction, error) {
	dbTx, err := ts.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	t, err := ts.ledger.UpdateStatusTx(dbTx, transactionID, newStatus)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change for %s: %w", transactionID, err)
	}

	ts.audit.LogStatusChange(transactionID, "", newStatus)
	ts.afterLedgerWrite(ctx, t, "STATUS_"+newStatus)
	return t, nil
}

// afterLedgerWrite makes the write observable to the read side: the version
// marker invalidates cached aggregates and the notification queue feeds the
// external notifier.
func (ts *TransactionService) afterLedgerWrite(ctx context.Context, t *models.Transaction, event string) {
	if ts.redis == nil {
		return
	}

	if err := ts.redis.Incr(ctx, ledgerVersionKey).Err(); err != nil {
		log.Printf("[TRANSACTION] Failed to bump ledger version: %v", err)
	}

	payload, err := json.Marshal(map[string]string{
		"event":          event,
		"transaction_id": t.TransactionID,
		"user_id":        t.UserID,
		"direction":      t.Direction,
		"status":         t.Status,
	})
	if err != nil {
		return
	}
	if err := ts.redis.RPush(ctx, notificationQueueKey, payload).Err(); err != nil {
		log.Printf("[TRANSACTION] Failed to queue notification for %s: %v", t.TransactionID, err)
	}
}

// HTTP handlers

// CreateDeposit handles manual deposit creation
// @Summary Create a manual deposit
// @Description Settle an admin-created deposit immediately, crediting the net amount
// @Tags transactions
// @Accept json
// @Produce json
// @Param deposit body models.DepositRequest true "Deposit data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /transactions/deposits [post]
func (ts *TransactionService) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req models.DepositRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	t, err := ts.ProcessDeposit(r.Context(), &req)
	if err != nil {
		WriteTransactionError(w, "deposit", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": t,
	})
}

// CreateWithdrawal handles PIX withdrawal creation
// @Summary Create a withdrawal
// @Description Debit gross plus fee from the balance and queue settlement
// @Tags transactions
// @Accept json
// @Produce json
// @Param withdrawal body models.WithdrawalRequest true "Withdrawal data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /transactions/withdrawals [post]
func (ts *TransactionService) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req models.WithdrawalRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	t, err := ts.ProcessWithdrawal(r.Context(), &req)
	if err != nil {
		WriteTransactionError(w, "withdrawal", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": t,
	})
}

// GetTransaction retrieves a single transaction
// @Summary Get transaction by ID
// @Tags transactions
// @Produce json
// @Param txId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} map[string]string
// @Router /transactions/{txId} [get]
func (ts *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txId")

	t, err := ts.ledger.GetByTransactionID(txID)
	if err != nil {
		WriteTransactionError(w, "fetch", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

// ListTransactions retrieves transactions with filters
// @Summary List transactions
// @Description Filter by status, date range and free-text search; newest first
// @Tags transactions
// @Produce json
// @Param user_id query string false "Filter by user"
// @Param status query string false "Filter by status"
// @Param from query string false "Start date (RFC 3339)"
// @Param to query string false "End date (RFC 3339)"
// @Param search query string false "Search payer name, document or transaction id"
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size (default 20, max 100)"
// @Success 200 {object} object{transactions=[]models.Transaction,total=int,page=int}
// @Router /transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter := models.ListFilter{
		UserID: r.URL.Query().Get("user_id"),
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}

	if filter.Status != "" && !IsValidStatus(filter.Status) {
		SendErrorResponse(w, "Invalid status filter", http.StatusBadRequest, nil)
		return
	}

	if from := r.URL.Query().Get("from"); from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			SendErrorResponse(w, "Invalid from date", http.StatusBadRequest, nil)
			return
		}
		filter.From = &parsed
	}
	if to := r.URL.Query().Get("to"); to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			SendErrorResponse(w, "Invalid to date", http.StatusBadRequest, nil)
			return
		}
		filter.To = &parsed
	}
	if page := r.URL.Query().Get("page"); page != "" {
		filter.Page, _ = strconv.Atoi(page)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		filter.Limit, _ = strconv.Atoi(limit)
	}

	transactions, total, err := ts.ledger.List(filter, ts.limits.DefaultPageSize, ts.limits.MaxPageSize)
	if err != nil {
		WriteTransactionError(w, "list", err)
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"total":        total,
		"page":         page,
	})
}

// UpdateTransactionStatus applies an admin status transition
// @Summary Update transaction status
// @Tags transactions
// @Accept json
// @Produce json
// @Param txId path string true "Transaction ID"
// @Param status body models.StatusUpdateRequest true "New status"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /transactions/{txId}/status [put]
func (ts *TransactionService) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txId")

	var req models.StatusUpdateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	t, err := ts.ChangeStatus(r.Context(), txID, req.Status)
	if err != nil {
		WriteTransactionError(w, "status update", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": t,
	})
}

// LookupStatus serves the public status consult
// @Summary Look up transaction status
// @Description Public endpoint; returns NOT_FOUND as a status, never 404
// @Tags transactions
// @Produce json
// @Param identifier path string true "Transaction ID or external reference"
// @Success 200 {object} object{status=string}
// @Router /consult/{identifier} [get]
func (ts *TransactionService) LookupStatus(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	status, err := ts.ledger.LookupStatus(identifier)
	if err != nil {
		log.Printf("[CONSULT] Lookup failed for %s: %v", identifier, err)
		SendErrorResponse(w, "Failed to look up status", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// GetFeeSettings reads the current fee schedule
// @Summary Get fee schedule
// @Tags settings
// @Produce json
// @Success 200 {object} models.FeeSchedule
// @Router /settings/fees [get]
func (ts *TransactionService) GetFeeSettings(w http.ResponseWriter, r *http.Request) {
	schedule, err := ts.settings.GetFeeSchedule(r.Context())
	if err != nil {
		WriteTransactionError(w, "settings", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedule)
}

// UpdateFeeSettings replaces the fee schedule
// @Summary Update fee schedule
// @Tags settings
// @Accept json
// @Produce json
// @Param schedule body models.FeeSchedule true "New fee schedule"
// @Success 200 {object} models.FeeSchedule
// @Failure 400 {object} map[string]string
// @Router /settings/fees [put]
func (ts *TransactionService) UpdateFeeSettings(w http.ResponseWriter, r *http.Request) {
	var schedule models.FeeSchedule
	if !decodeRequest(w, r, &schedule) {
		return
	}

	if err := ts.settings.UpdateFeeSchedule(r.Context(), &schedule); err != nil {
		WriteTransactionError(w, "settings", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// decodeRequest enforces the standard body handling: 1 MB cap, no unknown
// fields, exactly one JSON object.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	return true
}

// WriteTransactionError maps the error taxonomy onto HTTP statuses.
func WriteTransactionError(w http.ResponseWriter, operation string, err error) {
	var validationErr *ValidationError
	var insufficientErr *InsufficientBalanceError
	var duplicateErr *DuplicateTransactionError
	var transitionErr *InvalidTransitionError

	switch {
	case errors.As(err, &validationErr):
		SendErrorResponse(w, validationErr.Message, http.StatusBadRequest, nil)
	case errors.As(err, &insufficientErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":     "Insufficient balance",
			"available": insufficientErr.Available,
			"required":  insufficientErr.Required,
		})
	case errors.Is(err, ErrUserNotFound):
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
	case errors.Is(err, ErrTransactionNotFound):
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
	case errors.Is(err, ErrWithdrawalBlocked):
		SendErrorResponse(w, "Withdrawals are blocked for this account", http.StatusForbidden, nil)
	case errors.As(err, &duplicateErr):
		SendErrorResponse(w, duplicateErr.Error(), http.StatusConflict, nil)
	case errors.As(err, &transitionErr):
		SendErrorResponse(w, transitionErr.Error(), http.StatusUnprocessableEntity, nil)
	case errors.Is(err, ErrInvalidStatus):
		SendErrorResponse(w, "Unknown transaction status", http.StatusUnprocessableEntity, nil)
	case errors.Is(err, ErrFeeExceedsAmount):
		SendErrorResponse(w, "Configured fee exceeds transaction amount", http.StatusBadRequest, nil)
	case isValidatorError(err):
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
	default:
		log.Printf("[TRANSACTION] %s failed: %v", operation, err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
	}
}
