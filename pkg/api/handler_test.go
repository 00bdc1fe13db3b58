package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/secop-dashboard/pkg/clean"
	"github.com/hazyhaar/secop-dashboard/pkg/dashboard"
	"github.com/hazyhaar/secop-dashboard/pkg/normalize"
	"github.com/hazyhaar/secop-dashboard/pkg/population"
	"github.com/hazyhaar/secop-dashboard/pkg/secop"
	"github.com/hazyhaar/secop-dashboard/pkg/sources"
)

const contractsJSON = `[
	{"valor_contrato":"1.000","fecha_inicio_ejecuci_n":"2020-01-15","departamento_entidad":"Bogotá D.C.","tipo_de_contrato":"Prestación de Servicios"},
	{"valor_contrato":"500","fecha_inicio_ejecuci_n":"2020-01-20","departamento_entidad":"Antioquia","tipo_de_contrato":"Obra"},
	{"valor_contrato":"250","fecha_inicio_ejecuci_n":"2019-07-02","departamento_entidad":"ANTIOQUIA","tipo_de_contrato":"obra"}
]`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// upstream fakes the SECOP resource; status 0 means 200 with contractsJSON.
func upstream(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != 0 {
			w.WriteHeader(status)
		}
		if body == "" {
			body = contractsJSON
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testIndex() *population.Index {
	return population.NewIndex([]population.Record{
		{RegionName: "Bogotá D.C.", Year: 2035, Population: 8000},
		{RegionName: "Antioquia", Year: 2035, Population: 4000},
	}, normalize.Region)
}

func testService(t *testing.T, resourceURL string) *dashboard.Service {
	t.Helper()
	client := secop.NewClient(resourceURL, 5*time.Second, secop.WithLogger(quietLogger()))
	return dashboard.NewService(client, clean.New(clean.Schema{}, quietLogger()), dashboard.Options{},
		dashboard.WithLogger(quietLogger()),
		dashboard.WithPopulationIndex(testIndex()),
	)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: invalid JSON %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, decoded
}

func TestRouter_BeforeLoad(t *testing.T) {
	h := NewRouter(testService(t, upstream(t, 0, "").URL), nil, quietLogger())

	for _, path := range []string{"/v1/records", "/v1/metrics/per-capita", "/v1/metrics/monthly", "/v1/metrics/totals", "/v1/metrics/pivot"} {
		w, body := doRequest(t, h, http.MethodGet, path, "")
		if w.Code != http.StatusConflict {
			t.Errorf("%s: status = %d, want 409", path, w.Code)
		}
		if body["error"] == nil {
			t.Errorf("%s: missing error message", path)
		}
	}

	w, body := doRequest(t, h, http.MethodGet, "/v1/health", "")
	if w.Code != http.StatusOK || body["loaded"] != false {
		t.Errorf("health = %d %v", w.Code, body)
	}
}

func TestRouter_LoadAndMetrics(t *testing.T) {
	h := NewRouter(testService(t, upstream(t, 0, "").URL), nil, quietLogger())

	w, body := doRequest(t, h, http.MethodPost, "/v1/load", `{"limit": 3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("load status = %d: %v", w.Code, body)
	}
	if body["records"] != float64(3) {
		t.Errorf("records = %v", body["records"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	w, body = doRequest(t, h, http.MethodGet, "/v1/records?n=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("records status = %d", w.Code)
	}
	recs := body["records"].([]any)
	if len(recs) != 1 || recs[0].(map[string]any)["department_name"] != "bogota d.c." {
		t.Errorf("records = %v", recs)
	}

	w, body = doRequest(t, h, http.MethodGet, "/v1/metrics/per-capita?top=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("per-capita status = %d: %v", w.Code, body)
	}
	regions := body["regions"].([]any)
	if len(regions) != 1 || regions[0].(map[string]any)["region_key"] != "antioquia" {
		t.Errorf("regions = %v", regions)
	}

	w, body = doRequest(t, h, http.MethodGet, "/v1/metrics/correlation", "")
	if w.Code != http.StatusOK {
		t.Fatalf("correlation status = %d: %v", w.Code, body)
	}
	if body["year"] != float64(2035) || len(body["pairs"].([]any)) != 2 {
		t.Errorf("correlation = %v", body)
	}

	w, body = doRequest(t, h, http.MethodGet, "/v1/metrics/monthly?since=2020", "")
	if w.Code != http.StatusOK || len(body["buckets"].([]any)) != 2 {
		t.Errorf("monthly = %d %v", w.Code, body)
	}

	w, body = doRequest(t, h, http.MethodGet, "/v1/metrics/totals", "")
	if w.Code != http.StatusOK {
		t.Fatalf("totals status = %d", w.Code)
	}
	first := body["totals"].([]any)[0].(map[string]any)
	if first["contract_type"] != "prestacion de servicios" || first["total_value"] != "1000" {
		t.Errorf("totals = %v", body["totals"])
	}

	w, body = doRequest(t, h, http.MethodGet, "/v1/metrics/pivot?since=-1", "")
	if w.Code != http.StatusOK || len(body["months"].([]any)) != 2 || len(body["types"].([]any)) != 2 {
		t.Errorf("pivot = %d %v", w.Code, body)
	}

	_, body = doRequest(t, h, http.MethodGet, "/v1/health", "")
	if body["loaded"] != true || body["records"] != float64(3) {
		t.Errorf("health = %v", body)
	}
}

func TestRouter_InsufficientCorrelation(t *testing.T) {
	h := NewRouter(testService(t, upstream(t, 0, "").URL), nil, quietLogger())
	doRequest(t, h, http.MethodPost, "/v1/load", "")

	w, body := doRequest(t, h, http.MethodGet, "/v1/metrics/correlation?year=2019", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422: %v", w.Code, body)
	}
}

func TestRouter_LoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   int
	}{
		{"upstream 503", http.StatusServiceUnavailable, "down", http.StatusBadGateway},
		{"malformed payload", 0, `{"not":"an array"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := testService(t, upstream(t, tt.status, tt.body).URL)
			h := NewRouter(svc, nil, quietLogger())

			w, body := doRequest(t, h, http.MethodPost, "/v1/load", "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %v", w.Code, tt.want, body)
			}
			if svc.Current() != nil {
				t.Error("failed load left a snapshot")
			}
		})
	}
}

func TestRouter_BadRequests(t *testing.T) {
	h := NewRouter(testService(t, upstream(t, 0, "").URL), nil, quietLogger())

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/v1/load", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/v1/load", "{", http.StatusBadRequest},
		{http.MethodPost, "/v1/load?limit=abc", "", http.StatusBadRequest},
		{http.MethodPost, "/v1/load", `{"limit": -5}`, http.StatusBadRequest},
		{http.MethodGet, "/v1/metrics/per-capita?year=soon", "", http.StatusBadRequest},
		{http.MethodGet, "/v1/records?n=5000", "", http.StatusBadRequest},
	}
	for _, c := range cases {
		w, _ := doRequest(t, h, c.method, c.path, c.body)
		if w.Code != c.want {
			t.Errorf("%s %s: status = %d, want %d", c.method, c.path, w.Code, c.want)
		}
	}
}

func TestRouter_Sources(t *testing.T) {
	db, err := sources.Open(filepath.Join(t.TempDir(), "sources.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.Seed([]sources.Definition{{ID: dashboard.SourceID, Kind: sources.KindAPI, Description: "SECOP", Location: secop.DefaultURL}}); err != nil {
		t.Fatal(err)
	}

	h := NewRouter(testService(t, upstream(t, 0, "").URL), db, quietLogger())
	w, body := doRequest(t, h, http.MethodGet, "/v1/sources", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	list := body["sources"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["source_id"] != dashboard.SourceID {
		t.Errorf("sources = %v", list)
	}

	empty := NewRouter(testService(t, upstream(t, 0, "").URL), nil, quietLogger())
	_, body = doRequest(t, empty, http.MethodGet, "/v1/sources", "")
	if got := body["sources"].([]any); len(got) != 0 {
		t.Errorf("sources without catalog = %v", got)
	}
}

func TestRouter_CORSAndRequestID(t *testing.T) {
	h := NewRouter(testService(t, upstream(t, 0, "").URL), nil, quietLogger())

	req := httptest.NewRequest(http.MethodOptions, "/v1/load", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", w.Code, w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil).WithContext(context.Background())
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}
