package httpx

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

func genTraceID() string {
	for {
		u := uuid.New()
		if u != uuid.Nil {
			return hex.EncodeToString(u[:])
		}
	}
}

func genSpanID() string {
	for {
		u := uuid.New()
		// the first 8 bytes carry the random part before the version nibble
		if !allZero(u[:8]) {
			return hex.EncodeToString(u[:8])
		}
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// parseTraceparent extracts trace-id, span-id, flags. Returns ok=false if invalid.
func parseTraceparent(v string) (traceID, spanID, flags string, ok bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", "", "", false
	}
	parts := strings.Split(v, "-")
	if len(parts) < 4 {
		return "", "", "", false
	}
	ver, tid, sid, fl := parts[0], parts[1], parts[2], parts[3]
	if len(ver) != 2 || len(tid) != 32 || len(sid) != 16 || len(fl) != 2 {
		return "", "", "", false
	}
	if !isHex(tid) || !isHex(sid) || !isHex(fl) {
		return "", "", "", false
	}
	if strings.Trim(tid, "0") == "" || strings.Trim(sid, "0") == "" {
		return "", "", "", false
	}
	return strings.ToLower(tid), strings.ToLower(sid), strings.ToLower(fl), true
}

func formatTraceparent(traceID, spanID, flags string) string {
	if flags == "" {
		flags = "01"
	}
	return "00-" + strings.ToLower(traceID) + "-" + strings.ToLower(spanID) + "-" + strings.ToLower(flags)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			continue
		}
		return false
	}
	return true
}

// Trace carries minimal W3C trace context for a request.
// TraceID is 32-hex, SpanID is 16-hex. Flags are 2-hex (e.g. "01").
type Trace struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Flags        string
	// State is the inbound tracestate with invalid members removed.
	State *TraceState
}

// Traceparent renders the trace as a traceparent header value.
func (t Trace) Traceparent() string {
	return formatTraceparent(t.TraceID, t.SpanID, t.Flags)
}

// traceFromHeader continues an inbound trace or starts a new one. The
// server always allocates a fresh span for the request it is serving.
func traceFromHeader(h *Header) Trace {
	if tid, sid, fl, ok := parseTraceparent(h.Get("Traceparent")); ok {
		return Trace{
			TraceID:      tid,
			SpanID:       genSpanID(),
			ParentSpanID: sid,
			Flags:        fl,
			State:        ParseTraceState(strings.Join(h.Values("Tracestate"), ",")),
		}
	}
	return Trace{TraceID: genTraceID(), SpanID: genSpanID(), Flags: "01", State: &TraceState{}}
}

type traceKeyType struct{}

var traceKey traceKeyType

// WithTrace stores trace context in ctx.
func WithTrace(ctx context.Context, tr Trace) context.Context {
	return context.WithValue(ctx, traceKey, tr)
}

// TraceFrom extracts trace context from ctx.
func TraceFrom(ctx context.Context) (Trace, bool) {
	if v := ctx.Value(traceKey); v != nil {
		if tr, ok := v.(Trace); ok {
			return tr, true
		}
	}
	return Trace{}, false
}
