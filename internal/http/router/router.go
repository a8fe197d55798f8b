// Package router declares the HTTP surface of the service and assembles
// the middleware chain around it.
//
// Route table (all under /api/v1):
//
//	GET    /health          → liveness probe
//	POST   /students        → create a student
//	GET    /students        → list all students
//	GET    /students/{id}   → get one student
//	PUT    /students/{id}   → update a student (partial)
//	PATCH  /students/{id}   → update a student (partial)
//	DELETE /students/{id}   → delete a student
package router

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/ulule/limiter/v3"

	"github.com/aanand-mishra/students-service/internal/http/handlers/student"
	"github.com/aanand-mishra/students-service/internal/http/middleware"
	"github.com/aanand-mishra/students-service/internal/storage"
	"github.com/aanand-mishra/students-service/internal/utils/response"
)

// Prefix is the version prefix every route is mounted under.
const Prefix = "/api/v1"

// Options are the collaborators the router wires together.
type Options struct {
	Storage storage.Storage
	Limiter *limiter.Limiter
	Logger  *slog.Logger

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string

	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
}

// Routes is the bare dispatch table: method + path → handler.
func Routes(s storage.Storage) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+Prefix+"/health", Health)

	mux.HandleFunc("POST "+Prefix+"/students", student.New(s))
	mux.HandleFunc("GET "+Prefix+"/students", student.GetList(s))
	mux.HandleFunc("GET "+Prefix+"/students/{id}", student.GetByID(s))
	mux.HandleFunc("PUT "+Prefix+"/students/{id}", student.Update(s))
	mux.HandleFunc("PATCH "+Prefix+"/students/{id}", student.Update(s))
	mux.HandleFunc("DELETE "+Prefix+"/students/{id}", student.Delete(s))

	// Anything else is answered in the same JSON shape as other errors.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusNotFound, response.Error("route not found"))
	})

	return mux
}

// Health handles GET /api/v1/health.
func Health(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, response.OK())
}

// New returns the full handler: every request passes through the access
// log, panic recovery, security headers, CORS and the rate limiter before
// it reaches the routes.
func New(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins(opts.CORSOrigins),
		handlers.AllowedMethods([]string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	mws := []middleware.Middleware{
		middleware.Logger(log),
		middleware.Recover(log),
		middleware.SecureHeaders,
		middleware.Middleware(cors),
	}
	if opts.Limiter != nil {
		mws = append(mws, middleware.RateLimit(opts.Limiter, log))
	}
	if opts.TrustProxy {
		mws = append([]middleware.Middleware{handlers.ProxyHeaders}, mws...)
	}

	return middleware.Chain(Routes(opts.Storage), mws...)
}
