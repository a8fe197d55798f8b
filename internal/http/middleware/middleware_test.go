package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"

	"github.com/aanand-mishra/students-service/internal/ratelimit"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

// logLines decodes every JSON line written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
})

func requestFrom(ip string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/students", nil)
	r.RemoteAddr = ip + ":54321"
	return r
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler, mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1"))

	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	r.RemoteAddr = "192.0.2.7:1234"
	assert.Equal(t, "192.0.2.7", ClientIP(r))

	r.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", ClientIP(r))

	r.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", ClientIP(r))

	r.RemoteAddr = ""
	assert.Equal(t, "unknown", ClientIP(r))
}

func TestRateLimitRejectsExcessThenResets(t *testing.T) {
	lim, err := ratelimit.New(ratelimit.NewMemoryStore(), 2, 300*time.Millisecond)
	require.NoError(t, err)

	log, buf := newTestLogger()
	h := RateLimit(lim, log)(okHandler)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestFrom("10.0.0.1"))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("RateLimit-Limit"))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"status":"error","error":"Too many requests, please try again later."}`, rr.Body.String())
	assert.Equal(t, "0", rr.Header().Get("RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "10.0.0.1", lines[0]["ip"])

	// A different address has its own window.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("10.0.0.2"))
	assert.Equal(t, http.StatusOK, rr.Code)

	// Once the window has elapsed the counter starts over.
	time.Sleep(350 * time.Millisecond)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("10.0.0.1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("RateLimit-Remaining"))
}

// brokenStore fails every call, the way an unreachable Redis does.
type brokenStore struct{}

var errStoreDown = errors.New("redis: connection refused")

func (brokenStore) Get(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errStoreDown
}

func (brokenStore) Peek(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errStoreDown
}

func (brokenStore) Reset(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errStoreDown
}

func (brokenStore) Increment(context.Context, string, int64, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errStoreDown
}

func TestRateLimitFailsOpen(t *testing.T) {
	lim, err := ratelimit.New(brokenStore{}, 1, time.Minute)
	require.NoError(t, err)

	log, buf := newTestLogger()
	h := RateLimit(lim, log)(okHandler)

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestFrom("10.0.0.1"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
	assert.Contains(t, buf.String(), "connection refused")
}

func TestRecoverAnswers500(t *testing.T) {
	log, buf := newTestLogger()
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	})

	rr := httptest.NewRecorder()
	Recover(log)(boom).ServeHTTP(rr, requestFrom("10.0.0.1"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"status":"error","error":"Internal server error"}`, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "nil map")

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "unhandled error", lines[0]["msg"])
	assert.Equal(t, "nil map write", lines[0]["panic"])
}

func TestRecoverRepanicsAbort(t *testing.T) {
	log, _ := newTestLogger()
	abort := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	})

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		Recover(log)(abort).ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1"))
	})
}

func TestLoggerRecordsOutcome(t *testing.T) {
	log, buf := newTestLogger()
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("nope"))
	})

	Logger(log)(failing).ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.9"))

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "request", line["msg"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/api/v1/students", line["path"])
	assert.Equal(t, "10.0.0.9", line["ip"])
	assert.Equal(t, float64(500), line["status"])
	assert.Equal(t, float64(4), line["bytes"])
}

func TestSecureHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecureHeaders(okHandler).ServeHTTP(rr, requestFrom("10.0.0.1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rr.Header().Get("Referrer-Policy"))
	assert.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Empty(t, rr.Header().Get("Strict-Transport-Security"), "plain HTTP gets no HSTS")
}

func TestSecureHeadersHSTSBehindTLSProxy(t *testing.T) {
	r := requestFrom("10.0.0.1")
	r.Header.Set("X-Forwarded-Proto", "https")

	rr := httptest.NewRecorder()
	SecureHeaders(okHandler).ServeHTTP(rr, r)

	assert.Contains(t, rr.Header().Get("Strict-Transport-Security"), "max-age=15552000")
}
