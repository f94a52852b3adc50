package httpx

import (
	"bytes"
	"context"
	"io"
	"strings"

	"dqx0.com/go/connective/httpx/internal/iox"
)

// Request is the parsed view of an incoming message. Apart from the
// body stream it is immutable once constructed.
//
// The body reports "touched" as soon as any code obtains it through
// Body, BodyBytes, BodyString or TransferBody. The router uses this to
// decide whether a declining handler may be followed by another one.
type Request struct {
	proto    string
	method   string
	resource string
	path     string
	query    string
	params   Params
	header   *Header

	body    io.Reader
	length  int64
	touched bool
	cached  []byte

	ctx context.Context
	id  string
}

// NewRequest builds a request from its wire parts. length is the
// declared body length, or -1 for a body that runs to the end of its
// framing (chunked). A body of known length is wrapped in a
// length-limited reader unless it already is one.
//
// The resource is split into path and query; the path is percent
// decoded and sanitized. Invalid escapes in the path yield an error
// wrapping ErrMalformedRequest, paths that climb out of the root one
// wrapping ErrForbiddenPath.
func NewRequest(body io.Reader, length int64, hdr *Header, proto, method, resource string) (*Request, error) {
	rawPath, rawQuery := splitResource(resource)
	p, err := decodePath(rawPath)
	if err != nil {
		return nil, err
	}
	if hdr == nil {
		hdr = NewHeader()
	}
	method = strings.ToUpper(method)
	if body != nil && length == 0 && bodylessMethod(method) {
		body = nil
	}
	if body != nil && length >= 0 {
		if _, ok := body.(*iox.LengthLimited); !ok {
			body = iox.NewLengthLimited(body, length, true)
		}
	}
	if body == nil {
		length = 0
	}
	return &Request{
		proto:    proto,
		method:   method,
		resource: resource,
		path:     p,
		query:    decodeQueryValue(rawQuery),
		params:   parseParams(rawQuery),
		header:   hdr,
		body:     body,
		length:   length,
		ctx:      context.Background(),
	}, nil
}

func bodylessMethod(m string) bool {
	switch m {
	case "GET", "HEAD", "DELETE", "OPTIONS":
		return true
	}
	return false
}

func (r *Request) Proto() string  { return r.proto }
func (r *Request) Method() string { return r.method }

// RawResource is the request target exactly as received.
func (r *Request) RawResource() string { return r.resource }

// Path is the decoded, sanitized path.
func (r *Request) Path() string { return r.path }

// Query is the decoded query string without the leading '?'.
func (r *Request) Query() string { return r.query }

// QueryParams returns the decoded parameters in order of first
// appearance.
func (r *Request) QueryParams() Params { return r.params }

// Param returns a single query parameter.
func (r *Request) Param(key string) (string, bool) { return r.params.Get(key) }

func (r *Request) Header() *Header { return r.header }

func (r *Request) HeaderValue(name string) string { return r.header.Get(name) }

func (r *Request) HasHeader(name string) bool { return r.header.Has(name) }

// HasBody reports whether the request carries a body, which makes it a
// push request for routing purposes.
func (r *Request) HasBody() bool { return r.body != nil }

// BodyLength is the declared body length, -1 for chunked bodies and 0
// when there is no body.
func (r *Request) BodyLength() int64 { return r.length }

// BodyTouched reports whether the body has been handed out. It stays
// false for requests without a body.
func (r *Request) BodyTouched() bool { return r.touched }

// Body returns the body stream and marks it touched. After BodyBytes
// has been called it returns a reader over the cached bytes.
func (r *Request) Body() io.Reader {
	if r.body == nil {
		return strings.NewReader("")
	}
	r.touched = true
	if r.cached != nil {
		return bytes.NewReader(r.cached)
	}
	return r.body
}

// BodyBytes reads the whole body once and caches it.
func (r *Request) BodyBytes() ([]byte, error) {
	if r.body == nil {
		return []byte{}, nil
	}
	if r.cached != nil {
		r.touched = true
		return r.cached, nil
	}
	b, err := io.ReadAll(r.Body())
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = []byte{}
	}
	r.cached = b
	return b, nil
}

func (r *Request) BodyString() (string, error) {
	b, err := r.BodyBytes()
	return string(b), err
}

// TransferBody copies the body to w.
func (r *Request) TransferBody(w io.Writer) (int64, error) {
	return iox.Transfer(w, r.Body())
}

// discardBody consumes what is left of the body so the connection can
// carry the next request.
func (r *Request) discardBody() error {
	switch b := r.body.(type) {
	case nil:
		return nil
	case *iox.LengthLimited:
		return b.Drain()
	case io.Closer:
		return b.Close()
	default:
		_, err := io.Copy(io.Discard, b)
		return err
	}
}

// Context carries the request ID, trace and serving client.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// ID is the server generated request identifier.
func (r *Request) ID() string { return r.id }

func (r *Request) String() string { return r.method + " " + r.resource }
