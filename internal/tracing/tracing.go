package tracing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in and out of the gateway.
const RequestIDHeader = "X-Request-ID"

// MaxRequestIDLength bounds caller-supplied request ids.
const MaxRequestIDLength = 128

type scopeKey struct{}

// scope is the per-request state kept on the context.
type scope struct {
	requestID string
	start     time.Time
}

// RequestInfo is a snapshot of the request scope plus the active span ids.
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id,omitempty"`
	SpanID    string    `json:"span_id,omitempty"`
	StartTime time.Time `json:"start_time"`
}

// GenerateRequestID returns a new "req_"-prefixed id.
func GenerateRequestID() string {
	return "req_" + uuid.New().String()
}

// AcceptRequestID keeps a caller-supplied id when it is printable and short
// enough, and generates a fresh one otherwise.
func AcceptRequestID(supplied string) string {
	supplied = strings.TrimSpace(supplied)
	if supplied == "" || len(supplied) > MaxRequestIDLength {
		return GenerateRequestID()
	}
	for _, r := range supplied {
		if r < 0x21 || r > 0x7e {
			return GenerateRequestID()
		}
	}
	return supplied
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	s := scopeFrom(ctx)
	s.requestID = requestID
	return context.WithValue(ctx, scopeKey{}, s)
}

func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	s := scopeFrom(ctx)
	s.start = startTime
	return context.WithValue(ctx, scopeKey{}, s)
}

func GetRequestID(ctx context.Context) string {
	return scopeFrom(ctx).requestID
}

func GetStartTime(ctx context.Context) time.Time {
	return scopeFrom(ctx).start
}

// GetRequestInfo combines the request scope with the trace and span ids of
// the active OpenTelemetry span, if any.
func GetRequestInfo(ctx context.Context) *RequestInfo {
	s := scopeFrom(ctx)
	return &RequestInfo{
		RequestID: s.requestID,
		TraceID:   GetOtelTraceID(ctx),
		SpanID:    GetOtelSpanID(ctx),
		StartTime: s.start,
	}
}

// Duration is the time elapsed since the request started, or zero when no
// start time was recorded.
func Duration(ctx context.Context) time.Duration {
	start := GetStartTime(ctx)
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}
