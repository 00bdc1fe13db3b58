package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hazyhaar/secop-dashboard/pkg/clean"
	"github.com/hazyhaar/secop-dashboard/pkg/dashboard"
	"github.com/hazyhaar/secop-dashboard/pkg/kit"
	"github.com/hazyhaar/secop-dashboard/pkg/metrics"
	"github.com/hazyhaar/secop-dashboard/pkg/sources"
)

// Shared request/response types used by both HTTP and MCP transports.

const (
	defaultPreview = 10
	maxPreview     = 1000
)

type loadReq struct {
	Limit int
}

type loadResponse struct {
	Snapshot *dashboard.Snapshot `json:"snapshot"`
	Records  int                 `json:"records"`
}

type recordsReq struct {
	N int
}

type recordsResponse struct {
	SnapshotID uuid.UUID      `json:"snapshot_id"`
	Total      int            `json:"total"`
	Columns    []string       `json:"columns"`
	Records    []clean.Record `json:"records"`
}

type perCapitaReq struct {
	Year int
	TopN int
}

type correlationReq struct {
	Year int
}

type monthlyReq struct {
	Since int
}

type monthlyResponse struct {
	Buckets []metrics.MonthlyTypeValue `json:"buckets"`
}

type totalsResponse struct {
	Totals []metrics.TypeTotal `json:"totals"`
}

type sourcesResponse struct {
	Sources []sources.Source `json:"sources"`
}

// SourceLister lists the catalogued data sources.
type SourceLister interface {
	List() ([]sources.Source, error)
}

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

// endpoints are the kit.Endpoints backed by the dashboard service.
type endpoints struct {
	load        kit.Endpoint
	records     kit.Endpoint
	perCapita   kit.Endpoint
	correlation kit.Endpoint
	monthly     kit.Endpoint
	totals      kit.Endpoint
	pivot       kit.Endpoint
	sources     kit.Endpoint
}

func newEndpoints(svc *dashboard.Service, catalog SourceLister, logger *slog.Logger) endpoints {
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.RequestID(), kit.Logging(logger, name))(ep)
	}
	return endpoints{
		load:        wrap("load_contracts", loadEndpoint(svc)),
		records:     wrap("records", recordsEndpoint(svc)),
		perCapita:   wrap("per_capita_rate", perCapitaEndpoint(svc)),
		correlation: wrap("population_correlation", correlationEndpoint(svc)),
		monthly:     wrap("monthly_value_by_type", monthlyEndpoint(svc)),
		totals:      wrap("totals_by_type", totalsEndpoint(svc)),
		pivot:       wrap("monthly_pivot", pivotEndpoint(svc)),
		sources:     wrap("list_sources", sourcesEndpoint(catalog)),
	}
}

func loadEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*loadReq)
		if req.Limit < 0 {
			return nil, fmt.Errorf("%w: limit must be positive, got %d", errBadRequest, req.Limit)
		}
		snap, err := svc.Load(ctx, req.Limit)
		if err != nil {
			return nil, err
		}
		return loadResponse{Snapshot: snap, Records: snap.Len()}, nil
	}
}

func recordsEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*recordsReq)
		n := req.N
		if n == 0 {
			n = defaultPreview
		}
		if n < 0 || n > maxPreview {
			return nil, fmt.Errorf("%w: n must be between 1 and %d", errBadRequest, maxPreview)
		}
		snap, err := svc.Snapshot()
		if err != nil {
			return nil, err
		}
		return recordsResponse{
			SnapshotID: snap.ID,
			Total:      snap.Len(),
			Columns:    snap.Columns,
			Records:    snap.Preview(n),
		}, nil
	}
}

func perCapitaEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*perCapitaReq)
		if req.TopN < 0 {
			return nil, fmt.Errorf("%w: top_n must not be negative", errBadRequest)
		}
		return svc.PerCapita(ctx, req.Year, req.TopN)
	}
}

func correlationEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*correlationReq)
		view, err := svc.Correlation(ctx, req.Year)
		if err != nil {
			return nil, err
		}
		return view, nil
	}
}

func monthlyEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*monthlyReq)
		buckets, err := svc.Monthly(req.Since)
		if err != nil {
			return nil, err
		}
		return monthlyResponse{Buckets: buckets}, nil
	}
}

func totalsEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		totals, err := svc.Totals()
		if err != nil {
			return nil, err
		}
		return totalsResponse{Totals: totals}, nil
	}
}

func pivotEndpoint(svc *dashboard.Service) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*monthlyReq)
		return svc.Pivot(req.Since)
	}
}

func sourcesEndpoint(catalog SourceLister) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		if catalog == nil {
			return sourcesResponse{Sources: []sources.Source{}}, nil
		}
		list, err := catalog.List()
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []sources.Source{}
		}
		return sourcesResponse{Sources: list}, nil
	}
}
