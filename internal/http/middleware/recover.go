package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/aanand-mishra/students-service/internal/utils/response"
)

// Recover is the last line of defence: a panic anywhere below it is
// logged with its stack and answered with a generic 500.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// net/http uses this panic to abort a response on purpose.
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				log.Error("unhandled error",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				response.WriteJSON(w, http.StatusInternalServerError, response.InternalError())
			}()

			next.ServeHTTP(w, r)
		})
	}
}
