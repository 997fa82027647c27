package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes возвращает роутер admin API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(Recovery(h.logger))
	r.Use(Correlation)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})

	// Пробы и метрики — без логирования запросов
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Logging(h.logger))

		r.Get("/processor", h.GetProcessor)
		r.Get("/health/{processorId}", h.GetHealthSnapshot)
	})

	return r
}
