package middleware

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimit enforces a fixed-window per-IP limit backed by redis. Used on the
// public status consult (20 requests/minute by default). Without redis the
// limiter fails open.
func RateLimit(redisClient *redis.Client, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if redisClient == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			key := fmt.Sprintf("ratelimit:%s:%s", r.URL.Path, ip)
			count, err := redisClient.Incr(r.Context(), key).Result()
			if err != nil {
				log.Printf("[RATELIMIT] Redis error, failing open: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				redisClient.Expire(r.Context(), key, window)
			}

			if count > int64(limit) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
