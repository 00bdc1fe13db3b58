// CLAUDE:SUMMARY JSON HTTP boundary for the dashboard: load trigger, record preview, metric views, source catalog, health.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hazyhaar/secop-dashboard/pkg/dashboard"
	"github.com/hazyhaar/secop-dashboard/pkg/kit"
	"github.com/hazyhaar/secop-dashboard/pkg/metrics"
	"github.com/hazyhaar/secop-dashboard/pkg/secop"
)

// NewRouter returns an http.Handler with all dashboard API routes.
func NewRouter(svc *dashboard.Service, catalog SourceLister, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	h := &handler{eps: newEndpoints(svc, catalog, logger), svc: svc}

	mux.HandleFunc("GET /v1/load", methodNotAllowed) // loading has side effects
	mux.HandleFunc("POST /v1/load", h.handleLoad)
	mux.HandleFunc("GET /v1/records", h.handleRecords)
	mux.HandleFunc("GET /v1/metrics/per-capita", h.handlePerCapita)
	mux.HandleFunc("GET /v1/metrics/correlation", h.handleCorrelation)
	mux.HandleFunc("GET /v1/metrics/monthly", h.handleMonthly)
	mux.HandleFunc("GET /v1/metrics/totals", h.handleTotals)
	mux.HandleFunc("GET /v1/metrics/pivot", h.handlePivot)
	mux.HandleFunc("GET /v1/sources", h.handleSources)
	mux.HandleFunc("GET /v1/health", h.handleHealth)

	return cors(requestID(mux))
}

type handler struct {
	eps endpoints
	svc *dashboard.Service
}

// --- load ---

type httpLoadRequest struct {
	Limit int `json:"limit"`
}

func (h *handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req httpLoadRequest
	if r.ContentLength != 0 {
		r.Body = http.MaxBytesReader(w, r.Body, 4*1024)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}
	h.serve(w, r, h.eps.load, &loadReq{Limit: req.Limit})
}

// --- records ---

func (h *handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	n, ok := intParam(w, r, "n")
	if !ok {
		return
	}
	h.serve(w, r, h.eps.records, &recordsReq{N: n})
}

// --- metrics ---

func (h *handler) handlePerCapita(w http.ResponseWriter, r *http.Request) {
	year, ok := intParam(w, r, "year")
	if !ok {
		return
	}
	top, ok := intParam(w, r, "top")
	if !ok {
		return
	}
	h.serve(w, r, h.eps.perCapita, &perCapitaReq{Year: year, TopN: top})
}

func (h *handler) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	year, ok := intParam(w, r, "year")
	if !ok {
		return
	}
	h.serve(w, r, h.eps.correlation, &correlationReq{Year: year})
}

func (h *handler) handleMonthly(w http.ResponseWriter, r *http.Request) {
	since, ok := intParam(w, r, "since")
	if !ok {
		return
	}
	h.serve(w, r, h.eps.monthly, &monthlyReq{Since: since})
}

func (h *handler) handleTotals(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.eps.totals, nil)
}

func (h *handler) handlePivot(w http.ResponseWriter, r *http.Request) {
	since, ok := intParam(w, r, "since")
	if !ok {
		return
	}
	h.serve(w, r, h.eps.pivot, &monthlyReq{Since: since})
}

// --- sources ---

func (h *handler) handleSources(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.eps.sources, nil)
}

// --- health ---

type healthResponse struct {
	Status     string     `json:"status"`
	Loaded     bool       `json:"loaded"`
	SnapshotID *uuid.UUID `json:"snapshot_id,omitempty"`
	Records    int        `json:"records"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if snap := h.svc.Current(); snap != nil {
		resp.Loaded = true
		resp.SnapshotID = &snap.ID
		resp.Records = snap.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

func (h *handler) serve(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req any) {
	resp, err := ep(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps dashboard errors to HTTP status codes.
func statusFor(err error) int {
	var (
		connErr       *secop.ConnectionError
		unexpectedErr *secop.UnexpectedError
	)
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	case errors.As(err, &unexpectedErr):
		return http.StatusInternalServerError
	case errors.Is(err, metrics.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dashboard.ErrNoData):
		return http.StatusConflict
	case errors.Is(err, dashboard.ErrNoPopulation):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// intParam reads an optional integer query parameter; absent means 0. On a
// malformed value it writes a 400 and returns false.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be an integer", name))
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// requestID propagates X-Request-ID, generating one when absent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithTransport(kit.WithRequestID(r.Context(), id), "http")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
