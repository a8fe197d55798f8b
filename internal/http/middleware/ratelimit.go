package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ulule/limiter/v3"

	"github.com/aanand-mishra/students-service/internal/logger"
	"github.com/aanand-mishra/students-service/internal/utils/response"
)

// RateLimit admits requests through l, keyed by client address, and
// answers 429 once an address exceeds its window.
//
// Every response carries RateLimit-Limit, RateLimit-Remaining and
// RateLimit-Reset (seconds until the window closes). If the counter store
// fails the request is let through and the failure logged.
func RateLimit(l *limiter.Limiter, log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			c, err := l.Get(r.Context(), ip)
			if err != nil {
				log.Error("rate limiter unavailable, admitting request",
					slog.String("ip", ip), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			reset := secondsUntil(time.Unix(c.Reset, 0))
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.FormatInt(c.Limit, 10))
			h.Set("RateLimit-Remaining", strconv.FormatInt(c.Remaining, 10))
			h.Set("RateLimit-Reset", strconv.Itoa(reset))

			if c.Reached {
				log.Warn("rate limit exceeded", slog.String("ip", ip))
				h.Set("Retry-After", strconv.Itoa(reset))
				response.WriteJSON(w, http.StatusTooManyRequests, response.Error(response.MsgTooManyRequests))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func secondsUntil(t time.Time) int {
	s := math.Ceil(time.Until(t).Seconds())
	if s < 0 {
		return 0
	}
	return int(s)
}
