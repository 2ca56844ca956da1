package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"listinglens/internal/http/handlers"
	"listinglens/internal/middleware"
)

// NewRouter wires the request layer around the injected App container.
func NewRouter(app *handlers.App) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, middleware.RequestID, middleware.Logger(app.Logger), chimw.Recoverer)
	r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/works", func(r chi.Router) {
		r.Post("/", app.WorkCreate)
		r.Get("/{work_id}", app.WorkStatus)
		r.Post("/{work_id}/enhance", app.WorkEnhance)
	})

	r.Get("/v1/queue/status", app.QueueStatus)

	return r
}
