// Package api implements the HTTP Gateway: the mux router, middleware, and
// handlers fronting the Submission Service and Scan Store.
package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/scanforge/vulnscan-engine/internal/cache"
	"github.com/scanforge/vulnscan-engine/internal/config"
	"github.com/scanforge/vulnscan-engine/internal/store"
	"github.com/scanforge/vulnscan-engine/internal/submission"
	"github.com/scanforge/vulnscan-engine/pkg/observability"
)

// Gateway wires the Submission Service, Scan Store, optional dashboard
// cache, and observability components into one HTTP surface.
type Gateway struct {
	Submission *submission.Service
	Store      *store.Store
	Cache      *cache.Cache
	Health     *observability.HealthService
	Metrics    *observability.MetricsService
	Config     *config.Config
}

// NewRouter builds the /api/v1 router, wrapped with CORS and request-ID
// middleware.
func (gw *Gateway) NewRouter() http.Handler {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/scan", gw.submitScan).Methods(http.MethodPost)
	v1.HandleFunc("/scan/upload", gw.submitScanUpload).Methods(http.MethodPost)
	v1.HandleFunc("/scan/{id}", gw.getScan).Methods(http.MethodGet)
	v1.HandleFunc("/scan/{id}/status", gw.getScanStatus).Methods(http.MethodGet)
	v1.HandleFunc("/scan/{id}", gw.deleteScan).Methods(http.MethodDelete)
	v1.HandleFunc("/scans", gw.listScans).Methods(http.MethodGet)
	v1.HandleFunc("/scans/retry-candidates", gw.retryCandidates).Methods(http.MethodGet)
	v1.HandleFunc("/dashboard/stats", gw.dashboardStats).Methods(http.MethodGet)
	v1.HandleFunc("/dashboard/trend/{image}", gw.dashboardTrend).Methods(http.MethodGet)

	if gw.Health != nil {
		r.HandleFunc("/healthz", gw.Health.HTTPHandler())
		r.HandleFunc("/health/readiness", gw.Health.HTTPHandler())
		r.HandleFunc("/health/liveness", gw.Health.HTTPHandler())
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   gw.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Cache"},
		AllowCredentials: true,
	})

	return c.Handler(requestIDMiddleware(r))
}

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware echoes a caller-supplied request ID or mints a fresh
// one, per the HTTP API contract that every response carries X-Request-ID.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// requestTimeout bounds the context deadline applied to handlers that reach
// the store, independent of the scanner's own timeout.
const requestTimeout = 10 * time.Second
