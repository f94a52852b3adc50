package httpx

import (
	"bytes"
	"io"
	"strings"
	"time"

	"dqx0.com/go/connective/httpx/internal/http1"
)

// TimeFormat is the layout of Date and Last-Modified header values.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

const octetStream = "application/octet-stream"

// SwitchMode selects how a scheduled protocol switch is announced.
type SwitchMode int

const (
	// SwitchUpgrade answers 101 with Upgrade and Connection: Upgrade.
	SwitchUpgrade SwitchMode = iota + 1
	// SwitchConnect answers 200 like a CONNECT tunnel.
	SwitchConnect
	// SwitchRaw writes nothing; the callback owns the wire entirely.
	SwitchRaw
)

func (m SwitchMode) String() string {
	switch m {
	case SwitchUpgrade:
		return "upgrade"
	case SwitchConnect:
		return "connect"
	case SwitchRaw:
		return "raw"
	default:
		return "none"
	}
}

// SwitchFunc receives the client once the HTTP loop has released its
// connection. The engine does not close the connection afterwards.
type SwitchFunc func(c *Client)

type protocolSwitch struct {
	mode     SwitchMode
	protocol string
	fn       SwitchFunc
}

// Response is the mutable outgoing message built by handlers.
//
// The status defaults to 200 OK but is reported as unassigned until
// SetStatus is called. A response that ends up with no body degrades to
// 204 No Content when its status was never assigned, and receives a
// generated error page when its status is not a success.
type Response struct {
	proto    string
	status   int
	message  string
	assigned bool
	header   *Header

	body   []byte
	stream io.Reader
	length int64
	isSet  bool

	sw *protocolSwitch
}

// NewResponse returns a 200 OK response with no body and an empty header.
func NewResponse(proto string) *Response {
	if proto == "" {
		proto = "HTTP/1.1"
	}
	return &Response{proto: proto, status: 200, message: "OK", header: NewHeader()}
}

func (r *Response) Proto() string   { return r.proto }
func (r *Response) Header() *Header { return r.header }
func (r *Response) Status() int     { return r.status }
func (r *Response) Message() string { return r.message }

// StatusAssigned reports whether SetStatus was called.
func (r *Response) StatusAssigned() bool { return r.assigned }

// SetStatus assigns the status. An empty message selects the standard
// reason phrase.
func (r *Response) SetStatus(code int, message string) {
	if message == "" {
		message = http1.StatusText(code)
	}
	r.status, r.message, r.assigned = code, message, true
}

// IsSuccess is true for informational, success and redirect codes.
func (r *Response) IsSuccess() bool {
	return r.status >= 100 && r.status < 400
}

// SetContent sets an in-memory body. An empty contentType removes the
// Content-Type header. Any stream attached before is closed.
func (r *Response) SetContent(contentType string, b []byte) {
	r.releaseStream()
	r.setContentType(contentType)
	r.body, r.stream, r.length, r.isSet = b, nil, int64(len(b)), true
}

func (r *Response) SetContentString(contentType, s string) {
	r.SetContent(contentType, []byte(s))
}

// SetContentStream sets a streamed body of the given length, or of
// unknown length when length is negative. The stream is closed after
// sending if it implements io.Closer.
func (r *Response) SetContentStream(contentType string, s io.Reader, length int64) {
	r.releaseStream()
	r.setContentType(contentType)
	if length < 0 {
		length = -1
	}
	r.body, r.stream, r.length, r.isSet = nil, s, length, true
}

// SetBody sets an in-memory body typed application/octet-stream.
func (r *Response) SetBody(b []byte) { r.SetContent(octetStream, b) }

// SetBodyStream sets a streamed body typed application/octet-stream.
func (r *Response) SetBodyStream(s io.Reader, length int64) {
	r.SetContentStream(octetStream, s, length)
}

// ClearContent drops the body and its Content-Type.
func (r *Response) ClearContent() {
	r.releaseStream()
	r.header.Del("Content-Type")
	r.body, r.stream, r.length, r.isSet = nil, nil, 0, false
}

func (r *Response) setContentType(ct string) {
	if ct == "" {
		r.header.Del("Content-Type")
		return
	}
	r.header.Set("Content-Type", ct)
}

func (r *Response) releaseStream() {
	if c, ok := r.stream.(io.Closer); ok {
		_ = c.Close()
	}
	r.stream = nil
}

// HasBody reports whether content was assigned.
func (r *Response) HasBody() bool { return r.isSet }

// BodyLength is the body length, -1 when a stream has unknown length.
func (r *Response) BodyLength() int64 {
	if !r.isSet {
		return 0
	}
	return r.length
}

// Body returns a reader over the current content.
func (r *Response) Body() io.Reader {
	switch {
	case r.stream != nil:
		return r.stream
	case r.body != nil:
		return bytes.NewReader(r.body)
	default:
		return strings.NewReader("")
	}
}

// Close releases the body stream. It is safe to call more than once.
func (r *Response) Close() error {
	var err error
	if c, ok := r.stream.(io.Closer); ok {
		err = c.Close()
	}
	r.stream = nil
	return err
}

// Redirect answers 302 Found pointing at location.
func (r *Response) Redirect(location string) { r.RedirectStatus(302, location) }

func (r *Response) RedirectStatus(code int, location string) {
	r.SetStatus(code, "")
	r.header.Set("Location", location)
}

// SetLastModified stamps the Last-Modified header.
func (r *Response) SetLastModified(t time.Time) {
	r.header.Set("Last-Modified", t.UTC().Format(TimeFormat))
}

// SwitchProtocolsUpgrade schedules a 101 switch to protocol.
func (r *Response) SwitchProtocolsUpgrade(protocol string, fn SwitchFunc) {
	r.SetStatus(101, "")
	r.header.Set("Upgrade", protocol)
	r.header.Set("Connection", "Upgrade")
	r.scheduleSwitch(SwitchUpgrade, protocol, fn)
}

// SwitchProtocolsConnect schedules a CONNECT style handoff answered with
// 200.
func (r *Response) SwitchProtocolsConnect(fn SwitchFunc) {
	r.SetStatus(200, "Connection Established")
	r.scheduleSwitch(SwitchConnect, "", fn)
}

// SwitchProtocolsRaw schedules a handoff without any HTTP answer. The
// callback is expected to speak first.
func (r *Response) SwitchProtocolsRaw(fn SwitchFunc) {
	r.scheduleSwitch(SwitchRaw, "", fn)
}

func (r *Response) scheduleSwitch(mode SwitchMode, protocol string, fn SwitchFunc) {
	r.ClearContent()
	r.sw = &protocolSwitch{mode: mode, protocol: protocol, fn: fn}
}

// SwitchScheduled reports whether a protocol switch is pending.
func (r *Response) SwitchScheduled() bool { return r.sw != nil }

// SwitchProtocol returns the pending switch mode and protocol name.
func (r *Response) SwitchProtocol() (SwitchMode, string) {
	if r.sw == nil {
		return 0, ""
	}
	return r.sw.mode, r.sw.protocol
}
