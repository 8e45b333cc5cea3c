// Package worker ingests rate batches from the EventBus into the store.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/fdrates/internal/domain"
	"github.com/opensource-finance/fdrates/internal/tenure"
)

// Invalidator drops cached reports after the catalog changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Worker consumes RatesIngested messages.
type Worker struct {
	bus     domain.EventBus
	store   domain.RateStore
	reports Invalidator
	now     func() time.Time

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	batches atomic.Int64
	written atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// NewWorker creates an ingest worker. reports may be nil.
func NewWorker(bus domain.EventBus, store domain.RateStore, reports Invalidator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		store:   store,
		reports: reports,
		now:     func() time.Time { return time.Now().UTC() },
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the ingest topic and to catalog updates. Updates
// published by other instances drop this instance's cached reports.
func (w *Worker) Start() error {
	handlers := []struct {
		topic   string
		handler domain.MessageHandler
	}{
		{domain.TopicRatesIngested, w.handleMessage},
		{domain.TopicCatalogUpdated, w.handleCatalogUpdate},
	}

	for _, h := range handlers {
		sub, err := w.bus.Subscribe(w.ctx, h.topic, h.handler)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", h.topic, err)
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	slog.Info("ingest worker started",
		"topics", []string{domain.TopicRatesIngested, domain.TopicCatalogUpdated},
	)
	return nil
}

func (w *Worker) handleCatalogUpdate(ctx context.Context, msg *domain.Message) error {
	if w.reports == nil {
		return nil
	}
	var update domain.CatalogUpdated
	if err := json.Unmarshal(msg.Payload, &update); err != nil {
		slog.Warn("malformed catalog update", "message_id", msg.ID, "error", err)
	}
	if err := w.reports.Invalidate(ctx); err != nil {
		slog.Error("failed to invalidate reports",
			"message_id", msg.ID,
			"reason", update.Reason,
			"error", err,
		)
		return err
	}
	slog.Debug("reports invalidated", "message_id", msg.ID, "reason", update.Reason)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var batch domain.RatesIngested
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse ingest message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if batch.TraceID == "" {
		batch.TraceID = msg.ID
	}

	_, err := w.Ingest(ctx, batch)
	return err
}

// Ingest prepares and stores one batch, then drops cached reports and
// announces the change on TopicCatalogUpdated.
func (w *Worker) Ingest(ctx context.Context, batch domain.RatesIngested) (int, error) {
	start := time.Now()
	w.batches.Add(1)

	records, skipped := PrepareRecords(batch.Records, w.now())
	w.skipped.Add(int64(skipped))
	if skipped > 0 {
		slog.Warn("skipped records without a bank or tenure",
			"trace_id", batch.TraceID,
			"skipped", skipped,
		)
	}
	if len(records) == 0 {
		return 0, nil
	}

	written, err := w.store.UpsertRates(ctx, records)
	if err != nil {
		w.failed.Add(1)
		slog.Error("failed to store rates",
			"trace_id", batch.TraceID,
			"source", batch.Source,
			"error", err,
		)
		return 0, err
	}
	w.written.Add(int64(written))

	if w.reports != nil {
		if err := w.reports.Invalidate(ctx); err != nil {
			slog.Error("failed to invalidate reports",
				"trace_id", batch.TraceID,
				"error", err,
			)
		}
	}

	payload, _ := json.Marshal(domain.CatalogUpdated{Reason: "ingest", Written: written})
	if err := w.bus.Publish(ctx, domain.TopicCatalogUpdated, payload); err != nil {
		slog.Error("failed to publish catalog update",
			"trace_id", batch.TraceID,
			"error", err,
		)
	}

	slog.Info("rates ingested",
		"trace_id", batch.TraceID,
		"source", batch.Source,
		"written", written,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return written, nil
}

// PrepareRecords fills the fields upstream sources leave out. Missing day
// bounds are read from the tenure description, max_days defaults to
// min_days, and scraped_date defaults to now. A missing description is
// written from the day bounds, since it keys the record within its bank.
// Records without a bank, or without both description and days, are
// dropped and counted.
func PrepareRecords(records []domain.RateRecord, now time.Time) ([]domain.RateRecord, int) {
	out := make([]domain.RateRecord, 0, len(records))
	skipped := 0
	for _, rec := range records {
		rec.Bank = strings.TrimSpace(rec.Bank)
		if rec.Bank == "" {
			skipped++
			continue
		}
		rec.TenureDescription = strings.TrimSpace(rec.TenureDescription)
		rec.Category = domain.ParseCategory(string(rec.Category))

		if rec.MinDays <= 0 || rec.MaxDays <= 0 {
			if band, ok := tenure.Parse(rec.TenureDescription); ok {
				if rec.MinDays <= 0 {
					rec.MinDays = band.MinDays
				}
				if rec.MaxDays <= 0 {
					rec.MaxDays = band.MaxDays
				}
			}
		}
		if rec.MaxDays < rec.MinDays {
			rec.MaxDays = rec.MinDays
		}

		if rec.TenureDescription == "" {
			if rec.MinDays <= 0 {
				skipped++
				continue
			}
			rec.TenureDescription = describeDays(rec.MinDays, rec.MaxDays)
		}

		if rec.ScrapedAt == nil {
			t := now
			rec.ScrapedAt = &t
		}
		out = append(out, rec)
	}
	return out, skipped
}

func describeDays(lo, hi int) string {
	if lo == hi {
		return fmt.Sprintf("%d days", lo)
	}
	return fmt.Sprintf("%d days to %d days", lo, hi)
}

// Stop cancels the worker context and unsubscribes.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("ingest worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Batches           int64    `json:"batches"`
	Written           int64    `json:"written"`
	Skipped           int64    `json:"skipped"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Batches:           w.batches.Load(),
		Written:           w.written.Load(),
		Skipped:           w.skipped.Load(),
		Failed:            w.failed.Load(),
	}
}
