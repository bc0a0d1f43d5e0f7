package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/orizonpaybr/gateway-api-sub000/internal/config"
	"github.com/orizonpaybr/gateway-api-sub000/internal/services"
)

func newTestPixHandler(t *testing.T, secret string) (*PixHandler, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	limits := &config.LimitsConfig{
		MinDepositAmount:    decimal.NewFromInt(1),
		MinWithdrawalAmount: decimal.NewFromInt(1),
		DefaultPageSize:     20,
		MaxPageSize:         100,
	}

	transactions := services.NewTransactionService(db, nil, limits)
	pix := services.NewPixService(nil, "11999998888", "ORIZON PAY", "SAO PAULO")
	handler := NewPixHandler(transactions, pix, 30*time.Minute, secret)

	return handler, mock, func() { db.Close() }
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPixHandler_Webhook(t *testing.T) {
	t.Run("missing signature", func(t *testing.T) {
		handler, _, closeDB := newTestPixHandler(t, "psp-secret")
		defer closeDB()

		r := httptest.NewRequest("POST", "/pix/webhook", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()

		handler.Webhook(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("tampered body", func(t *testing.T) {
		handler, _, closeDB := newTestPixHandler(t, "psp-secret")
		defer closeDB()

		body := []byte(`{"transaction_id":"tx-1","event":"CONFIRMED"}`)
		r := httptest.NewRequest("POST", "/pix/webhook", bytes.NewBuffer(body))
		r.Header.Set("X-Webhook-Signature", sign("psp-secret", []byte("something else")))
		w := httptest.NewRecorder()

		handler.Webhook(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unconfigured secret rejects everything", func(t *testing.T) {
		handler, _, closeDB := newTestPixHandler(t, "")
		defer closeDB()

		body := []byte(`{"transaction_id":"tx-1","event":"CONFIRMED"}`)
		r := httptest.NewRequest("POST", "/pix/webhook", bytes.NewBuffer(body))
		r.Header.Set("X-Webhook-Signature", sign("", body))
		w := httptest.NewRecorder()

		handler.Webhook(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid signature for unknown transaction", func(t *testing.T) {
		handler, mock, closeDB := newTestPixHandler(t, "psp-secret")
		defer closeDB()

		mock.ExpectQuery("SELECT(.+)FROM transactions").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		body := []byte(`{"transaction_id":"ghost","event":"CONFIRMED"}`)
		r := httptest.NewRequest("POST", "/pix/webhook", bytes.NewBuffer(body))
		r.Header.Set("X-Webhook-Signature", sign("psp-secret", body))
		w := httptest.NewRecorder()

		handler.Webhook(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("signed but malformed payload", func(t *testing.T) {
		handler, _, closeDB := newTestPixHandler(t, "psp-secret")
		defer closeDB()

		body := []byte(`not json`)
		r := httptest.NewRequest("POST", "/pix/webhook", bytes.NewBuffer(body))
		r.Header.Set("X-Webhook-Signature", sign("psp-secret", body))
		w := httptest.NewRecorder()

		handler.Webhook(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPixHandler_CreateCharge(t *testing.T) {
	t.Run("invalid body", func(t *testing.T) {
		handler, _, closeDB := newTestPixHandler(t, "psp-secret")
		defer closeDB()

		r := httptest.NewRequest("POST", "/pix/charges", bytes.NewBufferString("nope"))
		w := httptest.NewRecorder()

		handler.CreateCharge(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		handler, mock, closeDB := newTestPixHandler(t, "psp-secret")
		defer closeDB()

		mock.ExpectQuery("SELECT id, name, document, balance, withdrawal_blocked").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		body := `{"user_id":"ghost","amount":"10.00"}`
		r := httptest.NewRequest("POST", "/pix/charges", bytes.NewBufferString(body))
		w := httptest.NewRecorder()

		handler.CreateCharge(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
