// CLAUDE:SUMMARY Pipeline service: load -> clean -> snapshot, population index cache, and the derived metric views.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/secop-dashboard/pkg/clean"
	"github.com/hazyhaar/secop-dashboard/pkg/metrics"
	"github.com/hazyhaar/secop-dashboard/pkg/normalize"
	"github.com/hazyhaar/secop-dashboard/pkg/population"
	"github.com/hazyhaar/secop-dashboard/pkg/secop"
)

// SourceID identifies the procurement API in the load history.
const SourceID = "secop-integrado"

var (
	// ErrNoData is returned by views when no successful load is current.
	ErrNoData = errors.New("no contract data loaded")
	// ErrNoPopulation is returned when no population source is configured.
	ErrNoPopulation = errors.New("no population sources configured")
)

// Loader fetches raw procurement records.
type Loader interface {
	Load(ctx context.Context, limit int) ([]secop.Record, error)
}

// LoadRecorder persists load outcomes.
type LoadRecorder interface {
	RecordLoad(ctx context.Context, sourceID string, startedAt time.Time, rows int, loadErr error) error
}

// Options parameterizes the derived views.
type Options struct {
	Limit           int `yaml:"-"`
	TopN            int `yaml:"top_n" validate:"gte=0"`
	RateYear        int `yaml:"rate_year" validate:"gte=0"`
	CorrelationYear int `yaml:"correlation_year" validate:"gte=0"`
	MonthlySince    int `yaml:"monthly_since" validate:"gte=-1"` // 0: default cutoff, -1: every year
}

// DefaultOptions returns the reference dashboard parameters.
func DefaultOptions() Options {
	return Options{
		Limit:           secop.DefaultLimit,
		TopN:            metrics.DefaultTopN,
		CorrelationYear: metrics.DefaultCorrelationYear,
		MonthlySince:    metrics.DefaultMonthlySince,
	}
}

// Snapshot is one successful load: the current record set, replaced
// wholesale by the next load and never mutated.
type Snapshot struct {
	ID       uuid.UUID      `json:"id"`
	LoadedAt time.Time      `json:"loaded_at"`
	Limit    int            `json:"limit"`
	RawCount int            `json:"raw_count"`
	Records  []clean.Record `json:"-"`
	Columns  []string       `json:"columns"`
}

// Len returns the number of cleaned records.
func (s *Snapshot) Len() int { return len(s.Records) }

// Preview returns the first n records.
func (s *Snapshot) Preview(n int) []clean.Record {
	if n < 0 || n > len(s.Records) {
		n = len(s.Records)
	}
	return s.Records[:n]
}

// NewSnapshot cleans raw into a snapshot.
func NewSnapshot(raw []secop.Record, limit int, cleaner *clean.Cleaner) *Snapshot {
	records := cleaner.Clean(raw)
	return &Snapshot{
		ID:       uuid.New(),
		LoadedAt: time.Now().UTC(),
		Limit:    limit,
		RawCount: len(raw),
		Records:  records,
		Columns:  clean.Columns(records),
	}
}

// Views are the derivations of one snapshot. CorrelationError is set
// instead of a coefficient when the correlation could not be computed.
type Views struct {
	SnapshotID       uuid.UUID                  `json:"snapshot_id"`
	PerCapita        metrics.RateView           `json:"per_capita"`
	Correlation      metrics.CorrelationView    `json:"correlation"`
	CorrelationError string                     `json:"correlation_error,omitempty"`
	Monthly          []metrics.MonthlyTypeValue `json:"monthly"`
	Totals           []metrics.TypeTotal        `json:"totals"`
	Pivot            metrics.Pivot              `json:"pivot"`
}

// BuildViews derives every view of snap against idx.
func BuildViews(snap *Snapshot, idx *population.Index, opts Options) Views {
	buckets := metrics.Monthly(snap.Records)
	recent := metrics.Since(buckets, opts.MonthlySince)

	v := Views{
		SnapshotID: snap.ID,
		PerCapita:  metrics.PerCapita(snap.Records, idx, opts.RateYear, opts.TopN),
		Monthly:    recent,
		Totals:     metrics.TotalsByType(buckets),
		Pivot:      metrics.PivotTable(recent),
	}
	corr, err := metrics.Correlation(snap.Records, idx, opts.CorrelationYear)
	v.Correlation = corr
	if err != nil {
		v.CorrelationError = err.Error()
	}
	return v
}

// Service threads the loader, the cleaner and the metrics, and keeps the
// current snapshot.
type Service struct {
	loader   Loader
	cleaner  *clean.Cleaner
	pop      *population.Loader
	sources  []population.Source
	recorder LoadRecorder
	opts     Options
	logger   *slog.Logger

	current atomic.Pointer[Snapshot]

	popMu  sync.Mutex
	popIdx *population.Index
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder records every load outcome.
func WithRecorder(r LoadRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithPopulation sets the population loader and its sources.
func WithPopulation(l *population.Loader, sources ...population.Source) Option {
	return func(s *Service) {
		s.pop = l
		s.sources = sources
	}
}

// WithPopulationIndex installs a prebuilt index.
func WithPopulationIndex(idx *population.Index) Option {
	return func(s *Service) { s.popIdx = idx }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service. Zero option fields fall back to
// DefaultOptions, except RateYear where 0 means the latest year.
func NewService(loader Loader, cleaner *clean.Cleaner, opts Options, options ...Option) *Service {
	d := DefaultOptions()
	if opts.Limit <= 0 {
		opts.Limit = d.Limit
	}
	if opts.TopN == 0 {
		opts.TopN = d.TopN
	}
	if opts.CorrelationYear == 0 {
		opts.CorrelationYear = d.CorrelationYear
	}
	if opts.MonthlySince == 0 {
		opts.MonthlySince = d.MonthlySince
	}

	s := &Service{
		loader:  loader,
		cleaner: cleaner,
		opts:    opts,
		logger:  slog.Default(),
	}
	for _, o := range options {
		o(s)
	}
	if s.cleaner == nil {
		s.cleaner = clean.New(clean.Schema{}, s.logger)
	}
	return s
}

// Options returns the effective view parameters.
func (s *Service) Options() Options { return s.opts }

// Load fetches up to limit records (the configured limit when limit <= 0),
// cleans them and makes the result current. On failure the current snapshot
// is cleared and the loader error is returned unchanged.
func (s *Service) Load(ctx context.Context, limit int) (*Snapshot, error) {
	if limit <= 0 {
		limit = s.opts.Limit
	}
	start := time.Now()
	s.logger.Info("load start", "limit", limit)

	raw, err := s.loader.Load(ctx, limit)
	if err != nil {
		s.current.Store(nil)
		s.record(ctx, start, 0, err)
		s.logger.Warn("load failed", "limit", limit, "error", err)
		return nil, err
	}

	snap := NewSnapshot(raw, limit, s.cleaner)
	s.current.Store(snap)
	s.record(ctx, start, len(raw), nil)
	s.logger.Info("load finished",
		"snapshot", snap.ID,
		"raw", snap.RawCount,
		"records", snap.Len(),
		"duration", time.Since(start),
	)
	return snap, nil
}

func (s *Service) record(ctx context.Context, start time.Time, rows int, loadErr error) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordLoad(ctx, SourceID, start, rows, loadErr); err != nil {
		s.logger.Error("record load", "error", err)
	}
}

// Current returns the current snapshot, or nil.
func (s *Service) Current() *Snapshot { return s.current.Load() }

// Snapshot returns the current snapshot or ErrNoData.
func (s *Service) Snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoData
	}
	return snap, nil
}

// Population returns the population index, reading the sources on first use.
func (s *Service) Population(ctx context.Context) (*population.Index, error) {
	s.popMu.Lock()
	defer s.popMu.Unlock()
	if s.popIdx != nil {
		return s.popIdx, nil
	}
	if s.pop == nil || len(s.sources) == 0 {
		return nil, ErrNoPopulation
	}
	records, err := s.pop.Load(ctx, s.sources...)
	if err != nil {
		return nil, fmt.Errorf("load population: %w", err)
	}
	s.popIdx = population.NewIndex(records, normalize.Region)
	s.logger.Info("population index built", "records", len(records), "regions", s.popIdx.Len(), "years", len(s.popIdx.Years()))
	return s.popIdx, nil
}

// ReloadPopulation rereads the population sources. The previous index is
// kept when the reload fails.
func (s *Service) ReloadPopulation(ctx context.Context) error {
	if s.pop == nil || len(s.sources) == 0 {
		return ErrNoPopulation
	}
	records, err := s.pop.Load(ctx, s.sources...)
	if err != nil {
		return fmt.Errorf("reload population: %w", err)
	}
	idx := population.NewIndex(records, normalize.Region)

	s.popMu.Lock()
	s.popIdx = idx
	s.popMu.Unlock()
	s.logger.Info("population index reloaded", "records", len(records), "regions", idx.Len())
	return nil
}

func (s *Service) inputs(ctx context.Context) (*Snapshot, *population.Index, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, nil, err
	}
	idx, err := s.Population(ctx)
	if err != nil {
		return nil, nil, err
	}
	return snap, idx, nil
}

// PerCapita ranks regions of the current snapshot by contracts per 1,000
// inhabitants. year 0 uses the configured rate year.
func (s *Service) PerCapita(ctx context.Context, year, topN int) (metrics.RateView, error) {
	snap, idx, err := s.inputs(ctx)
	if err != nil {
		return metrics.RateView{}, err
	}
	if year == 0 {
		year = s.opts.RateYear
	}
	if topN == 0 {
		topN = s.opts.TopN
	}
	return metrics.PerCapita(snap.Records, idx, year, topN), nil
}

// Correlation compares contract volume with population in year, or the
// configured correlation year when year is 0.
func (s *Service) Correlation(ctx context.Context, year int) (metrics.CorrelationView, error) {
	snap, idx, err := s.inputs(ctx)
	if err != nil {
		return metrics.CorrelationView{}, err
	}
	if year == 0 {
		year = s.opts.CorrelationYear
	}
	return metrics.Correlation(snap.Records, idx, year)
}

// Monthly returns the (month, type) buckets from since onward; since 0 uses
// the configured cutoff and a negative since keeps every year.
func (s *Service) Monthly(since int) ([]metrics.MonthlyTypeValue, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	buckets := metrics.Monthly(snap.Records)
	switch {
	case since == 0:
		return metrics.Since(buckets, s.opts.MonthlySince), nil
	case since < 0:
		return buckets, nil
	default:
		return metrics.Since(buckets, since), nil
	}
}

// Totals sums contracted value per type over every month.
func (s *Service) Totals() ([]metrics.TypeTotal, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return metrics.TotalsByType(metrics.Monthly(snap.Records)), nil
}

// Pivot spreads the buckets from since onward into a month x type grid.
func (s *Service) Pivot(since int) (metrics.Pivot, error) {
	buckets, err := s.Monthly(since)
	if err != nil {
		return metrics.Pivot{}, err
	}
	return metrics.PivotTable(buckets), nil
}

// Views derives every view of the current snapshot.
func (s *Service) Views(ctx context.Context) (Views, error) {
	snap, idx, err := s.inputs(ctx)
	if err != nil {
		return Views{}, err
	}
	return BuildViews(snap, idx, s.opts), nil
}
