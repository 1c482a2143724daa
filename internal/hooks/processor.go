package hooks

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spanlink/spanlink/internal/event"
	"github.com/spanlink/spanlink/internal/flush"
	"github.com/spanlink/spanlink/internal/identity"
	"github.com/spanlink/spanlink/internal/model"
	"github.com/spanlink/spanlink/internal/otlp"
	"github.com/spanlink/spanlink/internal/store"
)

// Processor handles one hook invocation end to end.
type Processor struct {
	spans       *store.SpanStore
	contexts    *store.ContextStore
	resolver    *identity.Resolver
	flusher     *flush.Flusher
	serviceName string
	redact      bool
	logger      *slog.Logger
}

// NewProcessor wires the per-invocation pipeline.
func NewProcessor(
	spans *store.SpanStore,
	contexts *store.ContextStore,
	resolver *identity.Resolver,
	flusher *flush.Flusher,
	serviceName string,
	redact bool,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		spans:       spans,
		contexts:    contexts,
		resolver:    resolver,
		flusher:     flusher,
		serviceName: serviceName,
		redact:      redact,
		logger:      logger,
	}
}

// Handle processes one hook payload and returns the host response.
//
// Telemetry delivery never gates the host's control flow: storage and upload
// failures are logged and the response is still produced. The only error
// returned is a payload that cannot be parsed at all.
func (p *Processor) Handle(ctx context.Context, payload []byte) (Response, error) {
	startNS := uint64(time.Now().UnixNano())

	ev, err := Parse(payload)
	if err != nil {
		return Response{}, err
	}
	cls := event.Classify(ev.Name)

	// Identity first: terminal events still parent into the context state
	// that the flush cleanup below is about to delete.
	idn := p.resolver.Resolve(ctx, ev.GenerationID, ev.ConversationID, ev.Name)

	if cls.Terminal && ev.GenerationID != "" {
		if err := p.flusher.Flush(ctx, ev.GenerationID, p.serviceName); err != nil {
			p.logger.Error("hooks: terminal flush failed, store retained",
				"generation_id", ev.GenerationID, "event", ev.Name, "error", err)
		} else if err := p.contexts.Cleanup(ev.GenerationID); err != nil {
			p.logger.Warn("hooks: context cleanup failed",
				"generation_id", ev.GenerationID, "error", err)
		}
	}

	rec := p.buildRecord(ev, cls, idn, startNS)

	if ev.GenerationID == "" {
		// No batching scope; best effort immediate export of this one span.
		p.logger.Warn("hooks: event has no generation id, exporting unbuffered", "event", ev.Name)
		if err := p.flusher.ExportSpan(ctx, rec, p.serviceName); err != nil {
			p.logger.Error("hooks: unbuffered export failed", "event", ev.Name, "error", err)
		}
	} else {
		if err := p.spans.Append(ctx, ev.GenerationID, otlp.EncodeSpan(rec), rec.Resource); err != nil {
			p.logger.Error("hooks: span append failed",
				"generation_id", ev.GenerationID, "event", ev.Name, "error", err)
		}
		if err := p.contexts.Save(ctx, ev.GenerationID, ev.Name, idn.TraceID, idn.SpanID); err != nil {
			p.logger.Error("hooks: context save failed",
				"generation_id", ev.GenerationID, "event", ev.Name, "error", err)
		}
	}

	if idn.Root && ev.ConversationID != "" {
		if err := p.contexts.SaveConversationTraceID(ctx, ev.ConversationID, idn.TraceID); err != nil {
			p.logger.Warn("hooks: conversation trace id save failed",
				"conversation_id", ev.ConversationID, "error", err)
		}
	}

	p.logger.Info("hooks: event processed",
		"event", ev.Name,
		"trace_id", idn.TraceID.String(),
		"span_id", idn.SpanID.String(),
		"root", idn.Parent == nil)

	if cls.NeedsPermission {
		return Response{Permission: "allow"}, nil
	}
	return Response{}, nil
}

func (p *Processor) buildRecord(ev Event, cls event.Class, idn identity.Identity, startNS uint64) model.SpanRecord {
	fields := ev.Fields
	if p.redact {
		fields = redactFields(fields)
	}

	rec := model.SpanRecord{
		TraceID:    idn.TraceID,
		SpanID:     idn.SpanID,
		Name:       "agent." + ev.Name,
		Kind:       cls.Kind,
		StartNS:    startNS,
		EndNS:      uint64(time.Now().UnixNano()),
		Attributes: buildAttributes(ev, cls, fields),
		Status:     spanStatus(ev, fields),
		Resource:   p.resource(),
	}
	if idn.Parent != nil {
		rec.Parent = idn.Parent.SpanID
	}
	return rec
}

func spanStatus(ev Event, fields map[string]any) model.Status {
	if ev.Name == "postToolUseFailure" {
		return model.Status{Code: model.StatusError, Message: getString(fields, "error")}
	}
	return model.Status{Code: model.StatusOK}
}

// resource identifies this emitting process. Fragments from different
// invocations are merged last-write-wins at flush time.
func (p *Processor) resource() map[string]any {
	res := map[string]any{
		"service.name":           p.serviceName,
		"telemetry.sdk.name":     "spanlink",
		"telemetry.sdk.language": "go",
		"process.pid":            os.Getpid(),
	}
	if host, err := os.Hostname(); err == nil {
		res["host.name"] = host
	}
	return res
}
