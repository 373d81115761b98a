package handlers

import (
	"encoding/json"
	"net/http"

	"imagine/internal/cache"
	"imagine/internal/domain"
	"imagine/internal/engine"
	"imagine/internal/infra"
)

// App is the handler container. Cache is optional; when nil the read path
// always goes to the repository.
type App struct {
	Engine *engine.Service
	Repo   domain.TaskRepository
	Cache  *cache.StatusCache
	Logger infra.Logger
}

// NewApp wires the handler dependencies.
func NewApp(eng *engine.Service, repo domain.TaskRepository, statusCache *cache.StatusCache, logger infra.Logger) *App {
	return &App{Engine: eng, Repo: repo, Cache: statusCache, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{"error": map[string]string{
		"code":    code,
		"message": message,
	}})
}

// Health reports liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// currentOwnerID extracts the caller identity. Authentication lives in the
// fronting infrastructure; this service trusts the forwarded header.
func (a *App) currentOwnerID(r *http.Request) string {
	return r.Header.Get("X-Owner-ID")
}
