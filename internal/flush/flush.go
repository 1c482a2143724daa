// Package flush turns a generation's buffered records into one export batch
// on the generation's terminal event.
package flush

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spanlink/spanlink/internal/model"
	"github.com/spanlink/spanlink/internal/otlp"
	"github.com/spanlink/spanlink/internal/store"
)

// scopeName is the instrumentation scope every exported batch carries.
const scopeName = "spanlink"

// Uploader delivers one encoded batch. Transport, retries, and auth are the
// implementation's concern; the flusher only sees success or failure.
type Uploader interface {
	Upload(ctx context.Context, req otlp.ExportRequest) error
}

// Flusher drains, encodes, and uploads generation batches.
type Flusher struct {
	spans    *store.SpanStore
	uploader Uploader
	logger   *slog.Logger
	// preserve keeps flushed store files on disk for debugging.
	preserve bool
}

// NewFlusher returns a flusher over the given store and uploader.
func NewFlusher(spans *store.SpanStore, uploader Uploader, logger *slog.Logger, preserve bool) *Flusher {
	return &Flusher{spans: spans, uploader: uploader, logger: logger, preserve: preserve}
}

// Flush drains the generation's store, merges the per-record resource
// fragments under {service.name: serviceName}, uploads one batch, and
// discards the drained records. An empty or missing store is a successful
// no-op. On upload failure the store is left intact and the error returned;
// there is no retry loop here.
func (f *Flusher) Flush(ctx context.Context, genID, serviceName string) error {
	start := time.Now()

	d, err := f.spans.Drain(ctx, genID)
	if err != nil {
		return fmt.Errorf("flush: drain generation: %w", err)
	}
	if len(d.Spans) == 0 {
		if d.Lines > 0 {
			// Only malformed lines: nothing to export. Discard exactly the
			// drained prefix so a record appended since the drain survives.
			f.logger.Warn("flush: store held no parseable records",
				"generation_id", genID, "lines", d.Lines)
			if !f.preserve {
				if err := f.spans.DiscardDrained(ctx, genID, d.Lines); err != nil {
					f.logger.Warn("flush: could not discard malformed records",
						"generation_id", genID, "error", err)
				}
			}
		}
		return nil
	}

	req := otlp.EncodeBatch(d.Spans, scopeName, otlp.EncodeResource(serviceName, d.Resource))
	if err := f.uploader.Upload(ctx, req); err != nil {
		return fmt.Errorf("flush: upload generation batch: %w", err)
	}

	if f.preserve {
		f.logger.Info("flush: preserve mode, keeping store file", "generation_id", genID)
	} else if err := f.spans.DiscardDrained(ctx, genID, d.Lines); err != nil {
		// The batch was delivered; a leftover file is reclaimed by the sweep.
		f.logger.Warn("flush: could not discard drained records",
			"generation_id", genID, "error", err)
	}

	f.logger.Info("flush: batch exported",
		"generation_id", genID, "spans", len(d.Spans),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// ExportSpan uploads a single record immediately, bypassing the store. Used
// for spans that carry no generation id and therefore cannot be batched.
func (f *Flusher) ExportSpan(ctx context.Context, rec model.SpanRecord, serviceName string) error {
	req := otlp.EncodeBatch(
		[]otlp.Span{otlp.EncodeSpan(rec)},
		scopeName,
		otlp.EncodeResource(serviceName, rec.Resource),
	)
	if err := f.uploader.Upload(ctx, req); err != nil {
		return fmt.Errorf("flush: export single span: %w", err)
	}
	return nil
}
