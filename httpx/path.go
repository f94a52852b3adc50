package httpx

import (
	"fmt"
	"net/url"
	"strings"
)

// SanitizePath normalizes a decoded request path: backslashes become
// slashes, empty segments are dropped, the result has exactly one
// leading slash and no trailing slash unless it is the root.
func SanitizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	segs := strings.Split(p, "/")
	out := segs[:0]
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return "/" + strings.Join(out, "/")
}

// escapesRoot reports whether a sanitized path tries to climb out of the
// served root. Any segment that starts or ends with ".." is refused,
// which also covers disguised forms such as "..../".
func escapesRoot(p string) bool {
	for _, s := range strings.Split(p, "/") {
		if strings.HasPrefix(s, "..") || strings.HasSuffix(s, "..") {
			return true
		}
	}
	return false
}

// ParentPath returns the path one level up, or "" for the root.
func ParentPath(p string) string {
	if p == "/" || p == "" {
		return ""
	}
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

// splitResource separates a request target into its raw path and raw
// query. Absolute-form targets are reduced to their path.
func splitResource(resource string) (rawPath, rawQuery string) {
	if strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://") {
		rest := resource[strings.Index(resource, "://")+3:]
		if i := strings.IndexAny(rest, "/?"); i >= 0 {
			resource = rest[i:]
		} else {
			resource = "/"
		}
	}
	if i := strings.IndexByte(resource, '#'); i >= 0 {
		resource = resource[:i]
	}
	if i := strings.IndexByte(resource, '?'); i >= 0 {
		return resource[:i], resource[i+1:]
	}
	return resource, ""
}

// decodePath percent-decodes and sanitizes the raw path.
func decodePath(raw string) (string, error) {
	dec, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	p := SanitizePath(dec)
	if escapesRoot(p) {
		return "", fmt.Errorf("%w: %q", ErrForbiddenPath, p)
	}
	return p, nil
}

// decodeQueryValue decodes a query component, keeping the raw text when
// it is not valid percent-encoding.
func decodeQueryValue(s string) string {
	if d, err := url.QueryUnescape(s); err == nil {
		return d
	}
	return s
}

// Param is one decoded query parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered set of query parameters. A repeated key keeps its
// first position and takes the last value.
type Params []Param

// Get returns the value for key and whether it was present.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

func (p Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

func parseParams(rawQuery string) Params {
	var out Params
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		k, v = decodeQueryValue(k), decodeQueryValue(v)
		replaced := false
		for i := range out {
			if out[i].Key == k {
				out[i].Value = v
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, Param{Key: k, Value: v})
		}
	}
	return out
}
