// Package model defines the span record shared by the store, encoder, and
// flush pipeline. Records are immutable once built.
package model

import (
	"go.opentelemetry.io/otel/trace"
)

// SpanKind represents the OTEL span kind.
type SpanKind string

const (
	SpanKindInternal SpanKind = "internal"
	SpanKindServer   SpanKind = "server"
	SpanKindClient   SpanKind = "client"
	SpanKindProducer SpanKind = "producer"
	SpanKindConsumer SpanKind = "consumer"
)

// StatusCode represents the OTEL span status code.
type StatusCode string

const (
	StatusUnset StatusCode = "unset"
	StatusOK    StatusCode = "ok"
	StatusError StatusCode = "error"
)

// Status is the span outcome. Message is only meaningful for StatusError.
type Status struct {
	Code    StatusCode
	Message string
}

// KeyValue is one attribute. Value may be bool, any integer type, float,
// or string; anything else is rendered to its string form at encode time.
// Attributes are a slice, not a map, so emission order is stable.
type KeyValue struct {
	Key   string
	Value any
}

// Event is a timestamped annotation nested inside a span.
type Event struct {
	TimeNS     uint64
	Name       string
	Attributes []KeyValue
}

// SpanRecord is one timed operation. A zero Parent means the span is a root
// within its trace.
type SpanRecord struct {
	TraceID    trace.TraceID
	SpanID     trace.SpanID
	Parent     trace.SpanID
	Name       string
	Kind       SpanKind
	StartNS    uint64
	EndNS      uint64
	Attributes []KeyValue
	Status     Status
	Events     []Event

	// Resource identifies the emitting process. Stored as a per-line
	// fragment alongside the span and merged at flush time.
	Resource map[string]any
}
