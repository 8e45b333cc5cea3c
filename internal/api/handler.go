package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/fdrates/internal/catalog"
	"github.com/opensource-finance/fdrates/internal/domain"
	"github.com/opensource-finance/fdrates/internal/engine"
	"github.com/opensource-finance/fdrates/internal/repository"
	"github.com/opensource-finance/fdrates/internal/rules"
	"github.com/opensource-finance/fdrates/internal/worker"
)

// maxBodyBytes caps POST bodies.
const maxBodyBytes = 10 << 20

// StatsSource reports ingest worker counters for /health.
type StatsSource interface {
	GetStats() worker.Stats
}

// Handler holds dependencies for API handlers.
type Handler struct {
	reports  *catalog.Service
	bus      domain.EventBus
	stats    StatsSource
	analysis domain.AnalysisConfig
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(reports *catalog.Service, bus domain.EventBus, stats StatsSource, analysis domain.AnalysisConfig, version string) *Handler {
	return &Handler{
		reports:  reports,
		bus:      bus,
		stats:    stats,
		analysis: analysis,
		version:  version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "healthy",
		"version": h.version,
	}
	if err := h.reports.Ping(r.Context()); err != nil {
		slog.Warn("health check failed", "error", err)
		resp["status"] = "degraded"
	}
	if h.stats != nil {
		resp["worker"] = h.stats.GetStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRates returns the validated catalog, filtered and sorted by query
// parameters: bank, tenure, min_rate, max_rate, min_days, max_days, expr,
// preset, sort and order.
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	q, err := parseBrowseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rates, err := h.reports.Browse(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rates": nonNil(rates),
		"count": len(rates),
	})
}

func parseBrowseQuery(values url.Values) (catalog.BrowseQuery, error) {
	q := catalog.BrowseQuery{
		Filter: engine.Filter{
			BankSubstring:   strings.TrimSpace(values.Get("bank")),
			TenureSubstring: strings.TrimSpace(values.Get("tenure")),
		},
		Expr:   strings.TrimSpace(values.Get("expr")),
		Preset: strings.TrimSpace(values.Get("preset")),
		Sort:   engine.SortKey(strings.TrimSpace(values.Get("sort"))),
	}

	var err error
	if q.Filter.MinRate, err = floatParam(values, "min_rate"); err != nil {
		return q, err
	}
	if q.Filter.MaxRate, err = floatParam(values, "max_rate"); err != nil {
		return q, err
	}
	if q.Filter.MinDays, err = intParam(values, "min_days"); err != nil {
		return q, err
	}
	if q.Filter.MaxDays, err = intParam(values, "max_days"); err != nil {
		return q, err
	}
	if q.Direction, err = engine.ParseSortDirection(values.Get("order")); err != nil {
		return q, err
	}
	return q, nil
}

// GetRate returns one stored record.
func (h *Handler) GetRate(w http.ResponseWriter, r *http.Request) {
	id, ok := rateID(w, r)
	if !ok {
		return
	}

	rate, err := h.reports.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

// IngestRequest is the object form of the POST /rates body. A bare JSON
// array of records is accepted as well.
type IngestRequest struct {
	Source  string              `json:"source,omitempty"`
	Records []domain.RateRecord `json:"records"`
}

// IngestRates publishes a batch for the ingest worker and answers 202.
func (h *Handler) IngestRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	req, err := decodeIngest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "at least one record is required")
		return
	}

	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	if req.Source == "" {
		req.Source = "api"
	}

	payload, err := json.Marshal(domain.RatesIngested{
		Source:  req.Source,
		TraceID: traceID,
		Records: req.Records,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.bus.Publish(ctx, domain.TopicRatesIngested, payload); err != nil {
		slog.Error("failed to publish rates", "trace_id", traceID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue records")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": len(req.Records),
		"traceId":  traceID,
	})
}

func decodeIngest(body io.Reader) (IngestRequest, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return IngestRequest{}, errors.New("invalid JSON request body")
	}

	var req IngestRequest
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &req.Records); err != nil {
			return IngestRequest{}, errors.New("invalid record list")
		}
		return req, nil
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return IngestRequest{}, errors.New("invalid JSON request body")
	}
	return req, nil
}

// DeleteRate removes one record and announces the change.
func (h *Handler) DeleteRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := rateID(w, r)
	if !ok {
		return
	}

	if err := h.reports.Delete(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(domain.CatalogUpdated{Reason: "delete"})
		if err := h.bus.Publish(ctx, domain.TopicCatalogUpdated, payload); err != nil {
			slog.Error("failed to publish catalog update", "id", id, "error", err)
		}
	}

	slog.Info("rate deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": id,
	})
}

// Summary returns {avg_rate, max_rate, best_bank} over the valid catalog.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reports.Summary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// TermSegmentResponse is the term analysis for one risk preference.
type TermSegmentResponse struct {
	RiskPreference domain.RiskPreference `json:"risk_preference"`
	Term           domain.TermBucket     `json:"term"`
	Summary        *domain.Summary       `json:"summary"`
	Count          int                   `json:"count"`
}

// Terms returns the overall and per-bucket summaries. With a
// risk_preference parameter only the matching bucket is returned.
func (h *Handler) Terms(w http.ResponseWriter, r *http.Request) {
	var (
		risk     domain.RiskPreference
		selected bool
	)
	if text := r.URL.Query().Get("risk_preference"); strings.TrimSpace(text) != "" {
		p, err := engine.ParseRiskPreference(text)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		risk, selected = p, true
	}

	report, err := h.reports.Terms(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !selected {
		writeJSON(w, http.StatusOK, report)
		return
	}

	bucket := risk.Bucket()
	writeJSON(w, http.StatusOK, TermSegmentResponse{
		RiskPreference: risk,
		Term:           bucket,
		Summary:        report.Segment(bucket),
		Count:          report.Counts[bucket],
	})
}

// AnalyzeRequest is the body of POST /analyze. GET /analyze takes the same
// fields as query parameters.
type AnalyzeRequest struct {
	RiskPreference   string   `json:"risk_preference"`
	InvestmentAmount *float64 `json:"investment_amount"`
	TopN             int      `json:"top_n"`
}

// AnalyzeResponse is the recommendation report.
type AnalyzeResponse struct {
	AvgRate         float64             `json:"avg_rate"`
	MaxRate         float64             `json:"max_rate"`
	BestBank        string              `json:"best_bank"`
	Recommendations []domain.RateRecord `json:"recommendations"`
	ProjectedReturn float64             `json:"projected_return"`
	Term            domain.TermBucket   `json:"term"`
	Fallback        bool                `json:"fallback"`
	TermCount       int                 `json:"term_count"`
}

// Analyze recommends offers for a risk preference and investment amount.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
			return
		}
	} else {
		values := r.URL.Query()
		req.RiskPreference = values.Get("risk_preference")

		amount, err := floatParam(values, "investment_amount")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.InvestmentAmount = amount

		topN, err := intParam(values, "top_n")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if topN != nil {
			req.TopN = *topN
		}
	}

	if strings.TrimSpace(req.RiskPreference) == "" {
		req.RiskPreference = string(domain.RiskModerate)
	}
	risk, err := engine.ParseRiskPreference(req.RiskPreference)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount := h.analysis.DefaultInvestment
	if req.InvestmentAmount != nil {
		amount = *req.InvestmentAmount
	}
	if req.TopN < 0 {
		writeError(w, http.StatusBadRequest, "top_n must not be negative")
		return
	}

	rec, err := h.reports.Recommend(r.Context(), engine.Request{
		Risk:   risk,
		Amount: amount,
		TopN:   req.TopN,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		AvgRate:         rec.Summary.RoundedAverage(),
		MaxRate:         rec.Summary.MaxRate,
		BestBank:        rec.Summary.BestBank,
		Recommendations: nonNil(rec.Recommendations),
		ProjectedReturn: rec.ProjectedReturn,
		Term:            rec.Term,
		Fallback:        rec.FellBack,
		TermCount:       rec.BucketSize,
	})
}

// TopBanks returns the best offers across the catalog.
func (h *Handler) TopBanks(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	top, err := h.reports.TopRates(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"top_banks": nonNil(top),
	})
}

// Leaderboard ranks banks by their average regular rate.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	board, err := h.reports.Leaderboard(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"banks": nonNil(board),
	})
}

// FilterPreset is a named filter expression usable as ?preset= on /rates.
type FilterPreset struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// Filters lists the built-in filter presets.
func (h *Handler) Filters(w http.ResponseWriter, r *http.Request) {
	names := rules.PresetNames()
	presets := make([]FilterPreset, 0, len(names))
	for _, name := range names {
		expr, _ := rules.Preset(name)
		presets = append(presets, FilterPreset{Name: name, Expression: expr})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"presets": presets,
	})
}

// fail maps service errors onto HTTP responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrNoDataAvailable):
		writeError(w, http.StatusNotFound, engine.ErrNoDataAvailable.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "rate not found")
	case errors.Is(err, engine.ErrInvalidRiskPreference),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrUnknownSortKey),
		errors.Is(err, engine.ErrInvalidSortDirection),
		errors.Is(err, rules.ErrInvalidExpression):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed",
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func rateID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid rate id")
		return 0, false
	}
	return id, true
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if limit == nil {
		return 0, true
	}
	if *limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must not be negative")
		return 0, false
	}
	return *limit, true
}

func floatParam(values url.Values, name string) (*float64, error) {
	text := strings.TrimSpace(values.Get(name))
	if text == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, text)
	}
	return &v, nil
}

func intParam(values url.Values, name string) (*int, error) {
	text := strings.TrimSpace(values.Get(name))
	if text == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, text)
	}
	return &v, nil
}

// nonNil keeps empty lists as [] on the wire.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
