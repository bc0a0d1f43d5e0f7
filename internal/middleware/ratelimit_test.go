package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("fails open without redis", func(t *testing.T) {
		handler := RateLimit(nil, 20, time.Minute)(okHandler())

		r := httptest.NewRequest("GET", "/consult/tx-1", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("first request in the window passes", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		handler := RateLimit(redisClient, 20, time.Minute)(okHandler())

		key := "ratelimit:/consult/tx-1:192.0.2.1"
		redisMock.ExpectIncr(key).SetVal(1)
		redisMock.ExpectExpire(key, time.Minute).SetVal(true)

		r := httptest.NewRequest("GET", "/consult/tx-1", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("request above the limit is rejected", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		handler := RateLimit(redisClient, 20, time.Minute)(okHandler())

		redisMock.ExpectIncr("ratelimit:/consult/tx-1:192.0.2.1").SetVal(21)

		r := httptest.NewRequest("GET", "/consult/tx-1", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
	})
}
