package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/scanforge/vulnscan-engine/internal/scanerr"
	"github.com/scanforge/vulnscan-engine/internal/scanmodel"
	"github.com/scanforge/vulnscan-engine/internal/store"
	"github.com/scanforge/vulnscan-engine/pkg/observability"
)

type submitRequest struct {
	ImageName   string `json:"image_name"`
	ImageTag    string `json:"image_tag"`
	Registry    string `json:"registry"`
	ForceRescan bool   `json:"force_rescan"`
}

// submitScan implements POST /api/v1/scan per the HTTP API table: 200 on
// cache hit, 202 on newly queued or joined in-progress, 409 on a raced
// duplicate, 422 on validation, 503 on store unavailability.
func (gw *Gateway) submitScan(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, scanerr.New(scanerr.CodeValidation, "malformed request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := gw.Submission.Submit(ctx, req.ImageName, req.ImageTag, req.Registry, req.ForceRescan, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusAccepted
	cacheHeader := "MISS"
	switch {
	case req.ForceRescan:
		cacheHeader = "BYPASS"
	case result.CacheHit:
		status = http.StatusOK
		cacheHeader = "HIT"
	case !result.NewlyCreated:
		cacheHeader = "MISS"
	}

	w.Header().Set("X-Cache", cacheHeader)
	writeJSON(w, status, struct {
		CacheHit bool    `json:"cache_hit"`
		ScanDTO  ScanDTO `json:"scan"`
	}{
		CacheHit: result.CacheHit,
		ScanDTO:  FromScan(result.Scan, false),
	})

	if gw.Metrics != nil && result.NewlyCreated {
		gw.Metrics.RecordScanSubmitted(&observability.MetricLabels{
			Component: "submission",
			Registry:  result.Scan.Registry,
		})
	}
}

// getScan implements GET /api/v1/scan/{id}: the full record. The raw report
// is included only when the caller passes include_raw_report=true.
func (gw *Gateway) getScan(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	includeReport := r.URL.Query().Get("include_raw_report") == "true"

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	scan, err := gw.Store.GetByID(ctx, id, includeReport)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromScan(scan, includeReport))
}

// getScanStatus implements GET /api/v1/scan/{id}/status: the lightweight
// poll response, omitting the raw report and findings.
func (gw *Gateway) getScanStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	scan, err := gw.Store.GetByID(ctx, id, false)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusFromScan(scan))
}

// deleteScan implements DELETE /api/v1/scan/{id}, cascading to
// vulnerability details and audit rows via the Scan Store.
func (gw *Gateway) deleteScan(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	found, err := gw.Store.Delete(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, scanerr.New(scanerr.CodeScanNotFound, id.String(), nil))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": "deleted"})
}

// listScans implements GET /api/v1/scans: paginated, filterable by status,
// image substring, and compliance.
func (gw *Gateway) listScans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.ListFilter{
		ImageSubstr:   q.Get("image"),
		CompliantOnly: q.Get("compliant_only") == "true",
		Page:          atoiOr(q.Get("page"), 1),
		PageSize:      atoiOr(q.Get("page_size"), 20),
	}
	if raw := q.Get("status"); raw != "" {
		s := scanmodel.Status(raw)
		filter.Status = &s
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	scans, total, err := gw.Store.List(ctx, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]ScanDTO, 0, len(scans))
	for i := range scans {
		dtos = append(dtos, FromScan(&scans[i], false))
	}

	writeJSON(w, http.StatusOK, ListResponseDTO{
		Scans:    dtos,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

// retryCandidates implements GET /api/v1/scans/retry-candidates: failed
// scans still eligible for retry under the configured max-retries ceiling,
// oldest first.
func (gw *Gateway) retryCandidates(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	scans, err := gw.Store.RetryCandidates(ctx, gw.Config.ScanMaxRetries)
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]ScanDTO, 0, len(scans))
	for i := range scans {
		dtos = append(dtos, FromScan(&scans[i], false))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// dashboardStats implements GET /api/v1/dashboard/stats: compliance summary
// and top-vulnerable-images aggregation, cached in Redis when configured.
func (gw *Gateway) dashboardStats(w http.ResponseWriter, r *http.Request) {
	const cacheKey = "dashboard:stats"

	var cached DashboardStatsDTO
	if gw.Cache.GetJSON(r.Context(), cacheKey, &cached) {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	compliance, err := gw.Store.ComplianceSummaryReport(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	top, err := gw.Store.TopVulnerableImages(ctx, 10)
	if err != nil {
		writeError(w, err)
		return
	}

	dto := DashboardStatsDTO{Compliance: compliance, TopRisk: top}
	gw.Cache.SetJSON(r.Context(), cacheKey, dto)

	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, dto)
}

// dashboardTrend implements GET /api/v1/dashboard/trend/{image}: the
// risk-score time series for one (registry, image, tag) triple. Registry and
// tag come from the query string and default to docker.io and latest.
func (gw *Gateway) dashboardTrend(w http.ResponseWriter, r *http.Request) {
	image := mux.Vars(r)["image"]
	registry := r.URL.Query().Get("registry")
	if registry == "" {
		registry = "docker.io"
	}
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		tag = "latest"
	}
	days := atoiOr(r.URL.Query().Get("days"), 30)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	since := time.Now().UTC().AddDate(0, 0, -days)
	scans, err := gw.Store.HistoryForImage(ctx, registry, image, tag, since)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TrendFromScans(scans))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorToStatus(err), map[string]string{"error": err.Error()})
}

func parseID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, scanerr.New(scanerr.CodeValidation, "invalid scan id: "+raw, err)
	}
	return id, nil
}

func atoiOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func actorFromRequest(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "api"
}
