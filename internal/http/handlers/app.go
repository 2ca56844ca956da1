package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"listinglens/internal/cache"
	"listinglens/internal/coordinator"
	"listinglens/internal/domain"
	"listinglens/internal/infra"
	"listinglens/internal/queue"
)

// App is the handler container. All collaborators are injected at startup;
// in particular there is exactly one AdmissionQueue per process and it lives
// here, not in package state.
type App struct {
	Config      *infra.Config
	Logger      zerolog.Logger
	Coordinator *coordinator.Coordinator
	Queue       *queue.AdmissionQueue
	Works       domain.WorkRepository
	StatusCache *cache.StatusCache
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
