package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/iago/pptx-generator-back/internal/http/handlers"
	"github.com/iago/pptx-generator-back/internal/http/middleware"
	"github.com/rs/zerolog"
)

type RouterDependencies struct {
	API         *handlers.API
	Logger      zerolog.Logger
	AuthToken   string
	CORSOrigins []string
	RateLimiter *middleware.RateLimiter
}

func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimiddleware.RealIP,
		middleware.RequestID(deps.Logger),
		middleware.AccessLog,
		chimiddleware.Recoverer,
		middleware.CORS(middleware.CORSConfig{AllowedOrigins: deps.CORSOrigins}),
	)
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Middleware)
	}
	r.Use(middleware.Auth(deps.AuthToken))

	r.Get("/health", deps.API.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", deps.API.Generate)
		r.Get("/jobs/{id}", deps.API.JobStatus)
		r.Get("/jobs/{id}/download", deps.API.Download)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return r
}
