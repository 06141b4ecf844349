package middleware

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

// RateLimit allows perSecond requests per second with a burst of one
// second's worth. Excess requests get 429. perSecond <= 0 disables limiting.
func RateLimit(perSecond float64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if perSecond <= 0 {
			return next
		}
		burst := max(1, int(math.Ceil(perSecond)))
		limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
		retryAfter := strconv.Itoa(max(1, int(math.Ceil(1/perSecond))))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
