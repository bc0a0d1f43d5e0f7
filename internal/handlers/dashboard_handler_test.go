package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/orizonpaybr/gateway-api-sub000/internal/services"
)

func TestDashboardHandler_Summary(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	handler := NewDashboardHandler(services.NewDashboardService(db, nil))

	t.Run("defaults to the last 30 days", func(t *testing.T) {
		mock.ExpectQuery("FROM transactions").
			WillReturnRows(sqlmock.NewRows([]string{
				"deposit_count", "deposit_total", "withdrawal_count",
				"withdrawal_total", "fee_total", "pending_count",
			}).AddRow(2, "194.00", 1, "103.00", "9.00", 0))

		r := httptest.NewRequest("GET", "/dashboard/summary", nil)
		w := httptest.NewRecorder()

		handler.Summary(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var summary map[string]any
		json.Unmarshal(w.Body.Bytes(), &summary)
		assert.Equal(t, float64(2), summary["deposit_count"])
	})

	t.Run("rejects malformed period", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/dashboard/summary?from=yesterday", nil)
		w := httptest.NewRecorder()

		handler.Summary(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
