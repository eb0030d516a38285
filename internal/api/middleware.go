package api

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/sdtmflow/internal/telemetry"
)

// httpMetrics — метрики запросов к API статуса.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: telemetry.Namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Status API requests by route and response code.",
		}, []string{"route", "code"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: telemetry.Namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Status API request time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"route"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// route оборачивает обработчик маршрута: восстановление после паники,
// запись в лог и метрики. Метка route — шаблон пути, не сам путь.
func (h *Handler) route(pattern string, fn http.HandlerFunc) http.Handler {
	return h.observe(pattern, h.recoverPanic(pattern, fn))
}

func (h *Handler) observe(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		if h.metrics != nil {
			h.metrics.requests.WithLabelValues(pattern, strconv.Itoa(sw.status)).Inc()
			h.metrics.duration.WithLabelValues(pattern).Observe(elapsed.Seconds())
		}
		h.logger.Debug("status api request",
			"route", pattern,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", elapsed,
		)
	})
}

func (h *Handler) recoverPanic(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("status api handler panic",
					"route", pattern,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				h.fail(w, http.StatusInternalServerError, CodeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusWriter запоминает код ответа для лога и метрик.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}
