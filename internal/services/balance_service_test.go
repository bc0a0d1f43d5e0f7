package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestBalanceService_GetUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewBalanceService(db)

	t.Run("existing user", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT id, name, document, balance, withdrawal_blocked").
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "document", "balance", "withdrawal_blocked", "created_at", "updated_at"}).
				AddRow("42", "Maria Souza", "12345678900", "1000.00", false, now, now))

		user, err := service.GetUser("42")

		assert.NoError(t, err)
		assert.Equal(t, "Maria Souza", user.Name)
		assert.Equal(t, "1000.00", user.Balance.StringFixed(2))
		assert.False(t, user.WithdrawalBlocked)
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, document, balance, withdrawal_blocked").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := service.GetUser("missing")

		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceService_DebitTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewBalanceService(db)

	t.Run("sufficient funds", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users").
			WithArgs(dec("103.00"), "42").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("897.00"))

		tx, err := db.Begin()
		assert.NoError(t, err)

		balance, err := service.DebitTx(tx, "42", dec("103.00"))

		assert.NoError(t, err)
		assert.Equal(t, "897.00", balance.StringFixed(2))
	})

	t.Run("insufficient funds reports available and required", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT balance, withdrawal_blocked FROM users").
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows([]string{"balance", "withdrawal_blocked"}).
				AddRow("50.00", false))

		tx, err := db.Begin()
		assert.NoError(t, err)

		_, err = service.DebitTx(tx, "42", dec("103.00"))

		var insufficientErr *InsufficientBalanceError
		assert.ErrorAs(t, err, &insufficientErr)
		assert.Equal(t, "50.00", insufficientErr.Available.StringFixed(2))
		assert.Equal(t, "103.00", insufficientErr.Required.StringFixed(2))
	})

	t.Run("blocked account", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT balance, withdrawal_blocked FROM users").
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows([]string{"balance", "withdrawal_blocked"}).
				AddRow("1000.00", true))

		tx, err := db.Begin()
		assert.NoError(t, err)

		_, err = service.DebitTx(tx, "42", dec("10.00"))

		assert.ErrorIs(t, err, ErrWithdrawalBlocked)
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT balance, withdrawal_blocked FROM users").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		tx, err := db.Begin()
		assert.NoError(t, err)

		_, err = service.DebitTx(tx, "missing", dec("10.00"))

		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestBalanceService_CreditTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewBalanceService(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users").
		WithArgs(dec("97.00"), "42").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("1097.00"))

	tx, err := db.Begin()
	assert.NoError(t, err)

	balance, err := service.CreditTx(tx, "42", dec("97.00"))

	assert.NoError(t, err)
	assert.Equal(t, "1097.00", balance.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}
