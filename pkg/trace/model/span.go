package model

import (
	"strconv"
	"time"
)

type SpanKind string

const (
	KindServer   SpanKind = "SPAN_KIND_SERVER"
	KindClient   SpanKind = "SPAN_KIND_CLIENT"
	KindProducer SpanKind = "SPAN_KIND_PRODUCER"
	KindConsumer SpanKind = "SPAN_KIND_CONSUMER"
	KindInternal SpanKind = "SPAN_KIND_INTERNAL"
)

type SpanStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// IsError reports whether the status marks the span as failed. Both wire
// values 1 and 2 are treated as errors to cover exports that use either
// convention; 0 is unset/OK.
func (s SpanStatus) IsError() bool {
	return s.Code == 1 || s.Code == 2
}

// AttributeValue holds a span attribute value, which arrives from the wire as
// either a string or an integer.
type AttributeValue struct {
	StringValue string `json:"string_value,omitempty"`
	IntValue    int64  `json:"int_value,omitempty"`
	IsInt       bool   `json:"is_int,omitempty"`
}

func StringAttribute(value string) AttributeValue {
	return AttributeValue{StringValue: value}
}

func IntAttribute(value int64) AttributeValue {
	return AttributeValue{IntValue: value, IsInt: true}
}

// AsString renders the value as text regardless of the wire type.
func (v AttributeValue) AsString() string {
	if v.IsInt {
		return strconv.FormatInt(v.IntValue, 10)
	}
	return v.StringValue
}

// AsInt parses the value as an integer, returning ok=false for non-numeric
// string values.
func (v AttributeValue) AsInt() (int64, bool) {
	if v.IsInt {
		return v.IntValue, true
	}
	n, err := strconv.ParseInt(v.StringValue, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

type Span struct {
	TraceID      string                    `json:"trace_id"`
	SpanID       string                    `json:"span_id"`
	ParentSpanID string                    `json:"parent_span_id"`
	ServiceName  string                    `json:"service_name"`
	Name         string                    `json:"name"`
	Kind         SpanKind                  `json:"kind"`
	StartTime    time.Time                 `json:"start_time"`
	EndTime      time.Time                 `json:"end_time"`
	Attributes   map[string]AttributeValue `json:"attributes"`
	Status       SpanStatus                `json:"status"`
}

func (s *Span) Attribute(key string) (AttributeValue, bool) {
	v, ok := s.Attributes[key]
	return v, ok
}

func (s *Span) DurationMs() float64 {
	return float64(s.EndTime.UnixNano()-s.StartTime.UnixNano()) / 1e6
}
