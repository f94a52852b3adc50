package httpx

import (
	"strings"
)

// maxTraceStateEntries is the W3C limit on tracestate list members.
const maxTraceStateEntries = 32

// traceStateKey is the member the server adds for its own span.
const traceStateKey = "connective"

// TraceState is an ordered tracestate list, most recent vendor first.
// Invalid or duplicate members are dropped when parsing.
type TraceState struct {
	order []string
	kv    map[string]string
}

// ParseTraceState parses a tracestate header value.
func ParseTraceState(v string) *TraceState {
	ts := &TraceState{kv: make(map[string]string)}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		k, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		val = strings.TrimSpace(val)
		if !validTSKey(k) || !validTSValue(val) {
			continue
		}
		if _, dup := ts.kv[k]; dup {
			continue
		}
		if len(ts.order) == maxTraceStateEntries {
			break
		}
		ts.kv[k] = val
		ts.order = append(ts.order, k)
	}
	return ts
}

// Set inserts or updates key and moves it to the front. It returns
// false for an invalid key or value.
func (ts *TraceState) Set(key, value string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	v := strings.TrimSpace(value)
	if !validTSKey(k) || !validTSValue(v) {
		return false
	}
	if ts.kv == nil {
		ts.kv = make(map[string]string)
	}
	if _, ok := ts.kv[k]; ok {
		ts.remove(k)
	}
	ts.kv[k] = v
	ts.order = append([]string{k}, ts.order...)
	if len(ts.order) > maxTraceStateEntries {
		last := ts.order[len(ts.order)-1]
		ts.remove(last)
		delete(ts.kv, last)
	}
	return true
}

func (ts *TraceState) Len() int { return len(ts.order) }

func (ts *TraceState) remove(k string) {
	for i, ek := range ts.order {
		if ek == k {
			ts.order = append(ts.order[:i], ts.order[i+1:]...)
			return
		}
	}
}

// String renders the list as a header value.
func (ts *TraceState) String() string {
	var sb strings.Builder
	for i, k := range ts.order {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(ts.kv[k])
	}
	return sb.String()
}

// validTSKey accepts key or key@tenant made of a-z0-9 and _-*./
func validTSKey(k string) bool {
	if k == "" {
		return false
	}
	parts := strings.Split(k, "@")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for i := 0; i < len(p); i++ {
			c := p[i]
			if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-' || c == '*' || c == '/' || c == '.' {
				continue
			}
			return false
		}
	}
	return true
}

func validTSValue(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c < 0x20 || c == 0x7f || c == ',' || c == '=' {
			return false
		}
	}
	return true
}
