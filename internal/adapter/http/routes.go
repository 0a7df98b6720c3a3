package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	hxotel "github.com/hexswarm/hexswarm/internal/adapter/otel"
	"github.com/hexswarm/hexswarm/internal/middleware"
	"github.com/hexswarm/hexswarm/internal/port/cache"
)

// RouterOptions configures NewRouter. Nil fields disable the feature they
// back.
type RouterOptions struct {
	ServiceName    string
	CORSOrigin     string
	Limiter        *middleware.RateLimiter
	Idempotency    cache.Cache
	IdempotencyTTL time.Duration
	WebSocket      http.HandlerFunc
}

// NewRouter builds the REST API with its middleware chain.
func NewRouter(h *Handlers, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(hxotel.HTTPMiddleware(opts.ServiceName, "/health"))
	r.Use(Logger)
	r.Use(CORS(opts.CORSOrigin))
	r.Use(SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.WebSocket != nil {
		r.Get("/ws", opts.WebSocket)
	}
	MountRoutes(r, h, opts)
	return r
}

// MountRoutes registers the task API under /api/v1.
func MountRoutes(r chi.Router, h *Handlers, opts RouterOptions) {
	r.Route("/api/v1", func(r chi.Router) {
		submit := r.With()
		if opts.Limiter != nil {
			submit = submit.With(opts.Limiter.Handler)
		}
		if opts.Idempotency != nil {
			submit = submit.With(middleware.Idempotency(opts.Idempotency, opts.IdempotencyTTL))
		}
		submit.Post("/tasks", h.SubmitTask)

		r.Get("/tasks/{id}", h.GetTaskStatus)
		r.Get("/tasks/{id}/result", h.GetTaskResult)
		r.Post("/tasks/{id}/cancel", h.CancelTask)

		r.Get("/agent", h.GetAgent)
		r.Get("/resources", h.GetResources)
		r.Get("/performance", h.GetPerformance)
		r.Get("/notifications", h.GetNotifications)
	})
}
