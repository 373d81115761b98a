package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"imagine/internal/http/handlers"
	"imagine/internal/infra"
	"imagine/internal/middleware"
)

// NewRouter assembles the HTTP surface.
func NewRouter(app *handlers.App, logger infra.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer, middleware.Logger(logger))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/images", func(r chi.Router) {
		r.Post("/", app.DrawImage)
		r.Get("/{id}", app.GetImage)
		r.Delete("/{id}", app.DeleteImage)
		r.Post("/{id}/actions", app.ImageAction)
	})

	r.Post("/v1/midjourney/notify", app.MidjourneyNotify)

	return r
}
