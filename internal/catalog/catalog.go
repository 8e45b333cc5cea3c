// Package catalog serves engine reports over the stored rate catalog.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/fdrates/internal/domain"
	"github.com/opensource-finance/fdrates/internal/engine"
	"github.com/opensource-finance/fdrates/internal/rules"
)

// Cache keys for precomputed reports.
const (
	KeySummary     = "report:summary"
	KeyTerms       = "report:terms"
	KeyTopRates    = "report:top_rates"
	KeyLeaderboard = "report:leaderboard"
)

// Keys lists every cached report key.
func Keys() []string {
	return []string{KeySummary, KeyTerms, KeyTopRates, KeyLeaderboard}
}

var tracer = otel.Tracer("fdrates-catalog")

// Service loads catalog snapshots and runs the engine over them.
// Reports that do not depend on request input are cached.
type Service struct {
	store    domain.RateStore
	cache    domain.Cache
	filters  *rules.Engine
	analysis domain.AnalysisConfig
	ttl      time.Duration

	// generation advances on every Invalidate. Reports computed from an
	// older snapshot are not written back.
	generation atomic.Uint64
}

// NewService creates a catalog service. cache and filters may be nil.
func NewService(store domain.RateStore, cache domain.Cache, filters *rules.Engine, analysis domain.AnalysisConfig, ttl time.Duration) *Service {
	if analysis.TopN <= 0 {
		analysis.TopN = engine.DefaultTopN
	}
	if analysis.TopRates <= 0 {
		analysis.TopRates = engine.DefaultTopRates
	}
	if analysis.LeaderboardSize <= 0 {
		analysis.LeaderboardSize = 10
	}
	return &Service{
		store:    store,
		cache:    cache,
		filters:  filters,
		analysis: analysis,
		ttl:      ttl,
	}
}

// Snapshot returns the whole stored catalog, valid or not.
func (s *Service) Snapshot(ctx context.Context) ([]domain.RateRecord, error) {
	records, err := s.store.ListRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return records, nil
}

// Get returns one stored record.
func (s *Service) Get(ctx context.Context, id int64) (*domain.RateRecord, error) {
	return s.store.GetRate(ctx, id)
}

// Delete removes one record and drops cached reports.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteRate(ctx, id); err != nil {
		return err
	}
	return s.Invalidate(ctx)
}

// Summary returns the market summary over the valid catalog.
// It fails with engine.ErrNoDataAvailable when nothing is valid.
func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	ctx, span := tracer.Start(ctx, "catalog.Summary")
	defer span.End()

	var cached cachedSummary
	if s.load(ctx, span, KeySummary, &cached) {
		return cached.summary(), nil
	}

	gen := s.generation.Load()
	records, err := s.Snapshot(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	summary, ok := engine.Summarize(engine.Validate(records))
	if !ok {
		return domain.Summary{}, engine.ErrNoDataAvailable
	}

	s.save(ctx, gen, KeySummary, newCachedSummary(&summary))
	return summary, nil
}

// Terms returns overall and per-bucket summaries.
func (s *Service) Terms(ctx context.Context) (engine.TermsReport, error) {
	ctx, span := tracer.Start(ctx, "catalog.Terms")
	defer span.End()

	var cached cachedTerms
	if s.load(ctx, span, KeyTerms, &cached) {
		return cached.report(), nil
	}

	gen := s.generation.Load()
	records, err := s.Snapshot(ctx)
	if err != nil {
		return engine.TermsReport{}, err
	}
	report := engine.AnalyzeTerms(records)

	s.save(ctx, gen, KeyTerms, newCachedTerms(report))
	return report, nil
}

// Recommend ranks offers for an investor. A zero TopN uses the configured default.
func (s *Service) Recommend(ctx context.Context, req engine.Request) (engine.Recommendation, error) {
	ctx, span := tracer.Start(ctx, "catalog.Recommend", trace.WithAttributes(
		attribute.String("risk_preference", string(req.Risk)),
		attribute.Int("top_n", req.TopN),
	))
	defer span.End()

	if req.TopN <= 0 {
		req.TopN = s.analysis.TopN
	}

	records, err := s.Snapshot(ctx)
	if err != nil {
		return engine.Recommendation{}, err
	}

	rec, err := engine.Recommend(records, req)
	if err != nil {
		return engine.Recommendation{}, err
	}
	span.SetAttributes(
		attribute.String("term", string(rec.Term)),
		attribute.Bool("fallback", rec.FellBack),
	)
	return rec, nil
}

// TopRates returns the n best offers. The default length is cached.
func (s *Service) TopRates(ctx context.Context, n int) ([]domain.RateRecord, error) {
	ctx, span := tracer.Start(ctx, "catalog.TopRates", trace.WithAttributes(attribute.Int("limit", n)))
	defer span.End()

	if n <= 0 {
		n = s.analysis.TopRates
	}
	useCache := n == s.analysis.TopRates

	if useCache {
		var cached []domain.RateRecord
		if s.load(ctx, span, KeyTopRates, &cached) {
			return cached, nil
		}
	}

	gen := s.generation.Load()
	records, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	top := engine.TopRates(records, n)

	if useCache {
		s.save(ctx, gen, KeyTopRates, top)
	}
	return top, nil
}

// Leaderboard ranks banks by average rate. The default length is cached.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]engine.BankStanding, error) {
	ctx, span := tracer.Start(ctx, "catalog.Leaderboard", trace.WithAttributes(attribute.Int("limit", n)))
	defer span.End()

	if n <= 0 {
		n = s.analysis.LeaderboardSize
	}
	useCache := n == s.analysis.LeaderboardSize

	if useCache {
		var cached []engine.BankStanding
		if s.load(ctx, span, KeyLeaderboard, &cached) {
			return cached, nil
		}
	}

	gen := s.generation.Load()
	records, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	board := engine.BankLeaderboard(records, n)

	if useCache {
		s.save(ctx, gen, KeyLeaderboard, board)
	}
	return board, nil
}

// BrowseQuery selects and orders the rates table.
type BrowseQuery struct {
	Filter    engine.Filter
	Expr      string
	Preset    string
	Sort      engine.SortKey
	Direction engine.SortDirection
}

// Browse filters and sorts the valid catalog. Expr and Preset are CEL
// expressions over record fields; both must match when both are set.
func (s *Service) Browse(ctx context.Context, q BrowseQuery) ([]domain.RateRecord, error) {
	ctx, span := tracer.Start(ctx, "catalog.Browse", trace.WithAttributes(
		attribute.String("sort", string(q.Sort)),
		attribute.String("preset", q.Preset),
	))
	defer span.End()

	filter := q.Filter
	var predicates []rules.Predicate

	if q.Preset != "" {
		expr, ok := rules.Preset(q.Preset)
		if !ok {
			return nil, fmt.Errorf("%w: unknown preset %q", rules.ErrInvalidExpression, q.Preset)
		}
		p, err := s.compile(expr)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, p)
	}
	if q.Expr != "" {
		p, err := s.compile(q.Expr)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, p)
	}
	if len(predicates) > 0 {
		filter.Match = func(rec domain.RateRecord) bool {
			for _, p := range predicates {
				if !p(rec) {
					return false
				}
			}
			return true
		}
	}

	records, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out, err := engine.FilterAndSort(records, filter, q.Sort, q.Direction)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(out)))
	return out, nil
}

func (s *Service) compile(expr string) (rules.Predicate, error) {
	if s.filters == nil {
		return nil, fmt.Errorf("%w: filter expressions are disabled", rules.ErrInvalidExpression)
	}
	return s.filters.Compile(expr)
}

// Invalidate drops every cached report.
func (s *Service) Invalidate(ctx context.Context) error {
	s.generation.Add(1)
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, Keys()...); err != nil {
		return fmt.Errorf("invalidate reports: %w", err)
	}
	return nil
}

// Warm recomputes every cached report from a fresh snapshot.
func (s *Service) Warm(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "catalog.Warm")
	defer span.End()

	if err := s.Invalidate(ctx); err != nil {
		return err
	}
	if _, err := s.Summary(ctx); err != nil && !errors.Is(err, engine.ErrNoDataAvailable) {
		return err
	}
	if _, err := s.Terms(ctx); err != nil {
		return err
	}
	if _, err := s.TopRates(ctx, 0); err != nil {
		return err
	}
	if _, err := s.Leaderboard(ctx, 0); err != nil {
		return err
	}
	return nil
}

// Ping checks the store and the cache.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

// load reads a cached report into dst. Cache failures count as misses.
func (s *Service) load(ctx context.Context, span trace.Span, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if data == nil {
		span.SetAttributes(attribute.Bool("cache_hit", false))
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		slog.Warn("discarding corrupt cache entry", "key", key, "error", err)
		return false
	}
	span.SetAttributes(attribute.Bool("cache_hit", true))
	return true
}

// save writes a report computed at generation gen. Failures are logged,
// not returned. A report that raced an Invalidate is dropped.
func (s *Service) save(ctx context.Context, gen uint64, key string, v any) {
	if s.cache == nil || s.generation.Load() != gen {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
		return
	}
	if s.generation.Load() != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			slog.Warn("cache delete failed", "key", key, "error", err)
		}
	}
}
