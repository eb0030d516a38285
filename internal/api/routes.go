package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует маршруты API статуса.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Служебные
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Текущий flow
	h.handle(mux, "/api/v1/run", h.GetLastRun)
	h.handle(mux, "/api/v1/nodes", h.ListNodes)
	h.handle(mux, "/api/v1/nodes/{id}/result", h.GetNodeResult)
	h.handle(mux, "/api/v1/nodes/{id}/error", h.GetNodeError)
	h.handle(mux, "/api/v1/cache", h.GetCacheInfo)

	// Сохранённые runs
	if h.runs != nil {
		h.handle(mux, "/api/v1/runs", h.ListRuns)
		h.handle(mux, "/api/v1/runs/{id}", h.GetRun)
	}
}

// handle регистрирует GET-маршрут с логированием и метриками.
func (h *Handler) handle(mux *http.ServeMux, path string, fn http.HandlerFunc) {
	mux.Handle("GET "+path, h.route(path, fn))
}

// Health отвечает "ok", пока процесс жив.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
