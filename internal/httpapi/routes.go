// Package httpapi exposes the engine's read-only observability surface:
// a liveness probe, Prometheus metrics and a JSON snapshot of the
// engine's own Stats(). It carries none of the chat bot's subscription
// or settings endpoints - those live on the notification sink, out of
// this module's scope.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/svyatogor/spreadup/internal/engine"
	"github.com/svyatogor/spreadup/internal/metrics"
	"github.com/svyatogor/spreadup/pkg/logging"
)

// StatsSource is the subset of *engine.Engine the status handler needs,
// narrowed so tests can fake it without building a real Engine.
type StatsSource interface {
	Stats() engine.Stats
}

// NewRouter builds the status router: GET /healthz, GET /metrics and
// GET /stats. Recovery and request logging wrap every route the same
// way the chat bot's API router wraps its own.
func NewRouter(source StatsSource) *mux.Router {
	router := mux.NewRouter()
	router.Use(recoveryMiddleware)
	router.Use(loggingMiddleware)

	router.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/stats", statsHandler(source)).Methods(http.MethodGet)

	return router
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func statsHandler(source StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := source.Stats()
		sampleMetrics(stats)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			http.Error(w, "failed to encode stats", http.StatusInternalServerError)
		}
	}
}

// sampleMetrics pushes the engine's pull-based Stats() snapshot into the
// push-based Prometheus gauges without the engine's scan loop touching the
// metrics package on every iteration. /metrics reports the values sampled
// by the most recent /stats request.
func sampleMetrics(stats engine.Stats) {
	metrics.CacheEntries.Set(float64(stats.Cache.Entries))

	for id, cs := range stats.Connectors {
		metrics.RecordConnectorState(string(id), cs.State)
		metrics.ConnectorReconnects.WithLabelValues(string(id)).Set(float64(cs.Reconnects))
	}
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.L().Debug("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}
