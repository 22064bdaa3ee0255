// Package ingest pulls ordered receipt records from a block source and
// feeds them through the projection engine, persisting a block-height
// checkpoint so restarts resume where they left off. Redelivery at or below
// the checkpoint is harmless: the engine's writes are idempotent upserts.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"socialindex/events"
	"socialindex/observability/metrics"
	"socialindex/projection"
)

// Source delivers receipt records in stream order (block height, then log
// index). Implementations must never split a block across two fetches: all
// records sharing the final returned height are included even when that
// overruns the limit, so the caller can checkpoint on block boundaries.
type Source interface {
	FetchRecords(ctx context.Context, afterHeight uint64, limit int) ([]events.Record, error)
}

// Watcher drives the projection pipeline from a Source.
type Watcher struct {
	source       Source
	engine       *projection.Engine
	store        projection.Store
	decoder      *events.Decoder
	log          *slog.Logger
	met          *metrics.PipelineMetrics
	pollInterval time.Duration
	batchSize    int
}

// NewWatcher constructs a watcher with a five second poll and
// hundred-record batches.
func NewWatcher(source Source, engine *projection.Engine, store projection.Store, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		source:       source,
		engine:       engine,
		store:        store,
		decoder:      events.NewDecoder(log),
		log:          log,
		met:          metrics.Pipeline(),
		pollInterval: 5 * time.Second,
		batchSize:    100,
	}
}

// SetPollInterval overrides the polling cadence; non-positive values keep
// the default.
func (w *Watcher) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		w.pollInterval = interval
	}
}

// SetBatchSize overrides the fetch batch size; non-positive values keep the
// default.
func (w *Watcher) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// Run polls until the context is cancelled. Fetch and store errors are
// logged and retried on the next tick; the checkpoint guarantees no effect
// is lost across retries.
func (w *Watcher) Run(ctx context.Context) error {
	after, err := w.store.Checkpoint(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next, err := w.poll(ctx, after)
			if err != nil {
				w.log.Error("ingest poll failed", "error", err, "after_height", after)
				continue
			}
			after = next
		}
	}
}

// Drain processes everything the source currently has and returns. Used for
// file replays and tests.
func (w *Watcher) Drain(ctx context.Context) error {
	after, err := w.store.Checkpoint(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	for {
		next, err := w.poll(ctx, after)
		if err != nil {
			return err
		}
		if next == after {
			return nil
		}
		after = next
	}
}

// dropStats classifies what Decode discarded from rec: a record missing its
// identity is one record-level drop regardless of how many entries it
// carried; otherwise each discarded entry counts individually.
func dropStats(rec events.Record, decoded int) (reason string, count int) {
	if !rec.Usable() {
		return "unusable_record", 1
	}
	if dropped := len(rec.Body.Data) - decoded; dropped > 0 {
		return "unusable_event", dropped
	}
	return "", 0
}

func (w *Watcher) poll(ctx context.Context, after uint64) (uint64, error) {
	records, err := w.source.FetchRecords(ctx, after, w.batchSize)
	if err != nil {
		return after, fmt.Errorf("fetch records: %w", err)
	}
	if len(records) == 0 {
		return after, nil
	}
	last := after
	for _, rec := range records {
		envelopes := w.decoder.Decode(rec)
		if reason, count := dropStats(rec, len(envelopes)); count > 0 {
			for i := 0; i < count; i++ {
				w.met.ObserveDropped(reason)
			}
		}
		for i := range envelopes {
			// On failure the whole batch is refetched from the old
			// checkpoint; already-applied events replay as no-ops.
			if err := w.engine.Apply(ctx, &envelopes[i]); err != nil {
				return after, err
			}
		}
		if rec.BlockHeight > last {
			last = rec.BlockHeight
		}
	}
	if err := w.store.SetCheckpoint(ctx, last); err != nil {
		return after, fmt.Errorf("set checkpoint: %w", err)
	}
	w.met.ObserveBlock(last)
	return last, nil
}
