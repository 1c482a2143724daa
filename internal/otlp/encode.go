package otlp

import (
	"fmt"
	"sort"
	"strconv"

	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/spanlink/spanlink/internal/model"
)

// serviceNameKey is the resource attribute every exported batch carries.
var serviceNameKey = string(semconv.ServiceNameKey)

var kindCodes = map[model.SpanKind]int{
	model.SpanKindInternal: 1,
	model.SpanKindServer:   2,
	model.SpanKindClient:   3,
	model.SpanKindProducer: 4,
	model.SpanKindConsumer: 5,
}

var statusCodes = map[model.StatusCode]int{
	model.StatusUnset: 0,
	model.StatusOK:    1,
	model.StatusError: 2,
}

// EncodeSpan converts a record to wire form. It is total: every record
// encodes, and unknown kinds or status codes map to their unspecified wire
// values rather than failing.
func EncodeSpan(rec model.SpanRecord) Span {
	s := Span{
		TraceID:           rec.TraceID.String(),
		SpanID:            rec.SpanID.String(),
		Name:              rec.Name,
		Kind:              kindCodes[rec.Kind], // unknown kind → 0 (unspecified)
		StartTimeUnixNano: strconv.FormatUint(rec.StartNS, 10),
		EndTimeUnixNano:   strconv.FormatUint(rec.EndNS, 10),
		Attributes:        encodeAttrs(rec.Attributes),
		Status:            encodeStatus(rec.Status),
	}
	if rec.Parent.IsValid() {
		s.ParentSpanID = rec.Parent.String()
	}
	for _, ev := range rec.Events {
		s.Events = append(s.Events, Event{
			TimeUnixNano: strconv.FormatUint(ev.TimeNS, 10),
			Name:         ev.Name,
			Attributes:   encodeEventAttrs(ev.Attributes),
		})
	}
	return s
}

// EncodeBatch wraps already-encoded spans in a single resource/scope batch.
func EncodeBatch(spans []Span, scopeName string, resource []KeyValue) ExportRequest {
	return ExportRequest{
		ResourceSpans: []ResourceSpans{{
			Resource:   Resource{Attributes: resource},
			ScopeSpans: []ScopeSpans{{Scope: Scope{Name: scopeName}, Spans: spans}},
		}},
	}
}

// EncodeResource builds the batch resource attributes. service.name is
// always present exactly once, with serviceName winning over any stored
// fragment; the remaining keys are emitted in sorted order so the output
// is deterministic across runs.
func EncodeResource(serviceName string, attrs map[string]any) []KeyValue {
	out := make([]KeyValue, 0, len(attrs)+1)
	out = append(out, KeyValue{Key: serviceNameKey, Value: EncodeValue(serviceName)})

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if k == serviceNameKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, KeyValue{Key: k, Value: EncodeValue(attrs[k])})
	}
	return out
}

// EncodeValue maps a Go value to the OTLP AnyValue form. Unsupported types
// fall back to their string rendering.
func EncodeValue(v any) Value {
	switch val := v.(type) {
	case bool:
		return Value{BoolValue: &val}
	case int:
		return intValue(int64(val))
	case int32:
		return intValue(int64(val))
	case int64:
		return intValue(val)
	case uint64:
		s := strconv.FormatUint(val, 10)
		return Value{IntValue: &s}
	case float32:
		f := float64(val)
		return Value{DoubleValue: &f}
	case float64:
		return Value{DoubleValue: &val}
	case string:
		return Value{StringValue: &val}
	default:
		s := fmt.Sprint(v)
		return Value{StringValue: &s}
	}
}

func intValue(v int64) Value {
	s := strconv.FormatInt(v, 10)
	return Value{IntValue: &s}
}

func encodeAttrs(attrs []model.KeyValue) []KeyValue {
	// attributes is always present on the wire, even when empty.
	out := make([]KeyValue, 0, len(attrs))
	for _, kv := range attrs {
		out = append(out, KeyValue{Key: kv.Key, Value: EncodeValue(kv.Value)})
	}
	return out
}

func encodeEventAttrs(attrs []model.KeyValue) []KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	return encodeAttrs(attrs)
}

func encodeStatus(st model.Status) Status {
	return Status{Code: statusCodes[st.Code], Message: st.Message}
}
