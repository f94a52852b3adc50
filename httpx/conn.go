package httpx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dqx0.com/go/connective/httpx/internal/http1"
	"dqx0.com/go/connective/httpx/internal/iox"
	"dqx0.com/go/connective/internal/obs"
)

// Client is one accepted connection. It reads requests in arrival order
// and answers each before reading the next.
type Client struct {
	id     uint64
	server *Server
	conn   net.Conn
	br     *bufio.Reader
	bw     *bufio.Writer
	log    obs.Logger

	proxy proxyResolution

	closed    atomic.Bool
	closeOnce sync.Once

	// mu orders the idle flag with read deadline changes so a stop
	// never shortens the deadline of a request already being read.
	mu   sync.Mutex
	idle bool
}

// drainGrace bounds how long a stopping server still waits for a request
// on an idle connection.
const drainGrace = 100 * time.Millisecond

func newClient(s *Server, id uint64, c net.Conn) *Client {
	cl := &Client{
		id:     id,
		server: s,
		conn:   c,
		br:     bufio.NewReader(c),
		bw:     bufio.NewWriter(c),
	}
	cl.proxy.effective = hostOnly(c.RemoteAddr().String())
	cl.log = obs.With(s.logger(), fmt.Sprintf("client %d %s", id, c.RemoteAddr()))
	return cl
}

func (c *Client) ID() uint64      { return c.id }
func (c *Client) Server() *Server { return c.server }

// Conn is the underlying connection. Reads must go through Reader, which
// may already hold buffered bytes.
func (c *Client) Conn() net.Conn        { return c.conn }
func (c *Client) Reader() *bufio.Reader { return c.br }
func (c *Client) Writer() *bufio.Writer { return c.bw }
func (c *Client) Logger() obs.Logger    { return c.log }
func (c *Client) SocketAddr() string    { return c.conn.RemoteAddr().String() }

// ProxyChain is the X-Forwarded-For chain of the current request, client
// first.
func (c *Client) ProxyChain() []string { return append([]string(nil), c.proxy.chain...) }

// IsProxied reports whether a trusted proxy supplied RemoteAddr.
func (c *Client) IsProxied() bool { return c.proxy.authoritative != "" }

// AuthoritativeProxy is the trusted proxy whose assertion was accepted.
func (c *Client) AuthoritativeProxy() string { return c.proxy.authoritative }

// RemoteAddr is the client address: the socket peer, or the address
// asserted by a trusted proxy for the current request.
func (c *Client) RemoteAddr() string { return c.proxy.effective }

// ProxiedAddress is the originating address claimed by X-Forwarded-For,
// trusted or not, or "" when the request was not forwarded.
func (c *Client) ProxiedAddress() string {
	if len(c.proxy.chain) == 0 {
		return ""
	}
	return c.proxy.chain[0]
}

// IsConnected reports whether the connection is still owned and open.
func (c *Client) IsConnected() bool { return !c.closed.Load() }

// Close closes the connection. Further calls are no-ops.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

// interruptIdle shortens the wait of a connection idling between
// requests so that a graceful stop does not wait for the idle timeout.
// A connection that is reading a request is left alone.
func (c *Client) interruptIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idle {
		_ = c.conn.SetReadDeadline(time.Now().Add(drainGrace))
	}
}

// awaitRequest blocks until the first byte of the next request is
// buffered. It reports false when the connection should end instead.
func (c *Client) awaitRequest() bool {
	s := c.server
	c.mu.Lock()
	c.idle = true
	var deadline time.Time
	switch {
	case s.stopping.Load():
		deadline = time.Now().Add(drainGrace)
	case s.IdleTimeout > 0:
		deadline = time.Now().Add(s.IdleTimeout)
	}
	_ = c.conn.SetReadDeadline(deadline)
	c.mu.Unlock()

	_, err := c.br.Peek(1)

	c.mu.Lock()
	c.idle = false
	deadline = time.Time{}
	if s.IdleTimeout > 0 {
		deadline = time.Now().Add(s.IdleTimeout)
	}
	_ = c.conn.SetReadDeadline(deadline)
	c.mu.Unlock()
	if err != nil {
		c.readFailed(err)
		return false
	}
	return true
}

// serve runs the keep-alive loop. It returns the pending protocol switch
// when a response scheduled one; the connection then stays open. Once
// the server is stopping every response carries Connection: close, so
// the loop ends after the request in progress.
func (c *Client) serve() *protocolSwitch {
	s := c.server
	for c.awaitRequest() {
		rr := &http1.Reader{BR: c.br, MaxHeaderBytes: s.headerLimit(), MaxTotalHeaderBytes: s.totalHeaderLimit()}
		pr, err := rr.ReadRequest()
		if err != nil {
			c.readFailed(err)
			break
		}
		_ = c.conn.SetReadDeadline(time.Time{})
		keep, sw, err := c.handle(pr)
		if err != nil {
			c.log.Logf(obs.Error, "%v", err)
			break
		}
		if sw != nil {
			return sw
		}
		if !keep {
			break
		}
	}
	_ = c.Close()
	return nil
}

// serveGuarded is serve with panics confined to this connection.
func (c *Client) serveGuarded() (sw *protocolSwitch) {
	defer c.recoverPanic("serving connection")
	return c.serve()
}

// runSwitch hands the connection to the switch callback.
func (c *Client) runSwitch(sw *protocolSwitch) {
	defer c.recoverPanic(sw.mode.String() + " switch")
	sw.fn(c)
}

func (c *Client) recoverPanic(what string) {
	if r := recover(); r != nil {
		c.log.Logf(obs.Error, "panic %s: %v", what, r)
		_ = c.Close()
	}
}

func (c *Client) readFailed(err error) {
	var ne net.Error
	switch {
	case err == io.EOF, errors.Is(err, net.ErrClosed), c.closed.Load():
		return
	case errors.As(err, &ne) && ne.Timeout():
		c.log.Logf(obs.Debug, "idle connection closed")
		return
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.log.Logf(obs.Debug, "connection closed mid request")
		return
	}
	status := 400
	switch {
	case errors.Is(err, http1.ErrLineTooLong), errors.Is(err, http1.ErrHeaderTooLarge):
		status = 431
	case errors.Is(err, http1.ErrUnsupportedProto):
		status = 505
	}
	c.log.Logf(obs.Warn, "bad request: %v", err)
	c.reject(status, "")
}

// reject answers a request that never made it into a Request.
func (c *Client) reject(status int, message string) {
	_, _, defaults, gen := c.server.snapshot()
	res := NewResponse("HTTP/1.1")
	c.stampHeaders(res, defaults)
	res.SetStatus(status, message)
	x := &Exchange{Server: c.server, Client: c, Response: res}
	c.finalize(x, gen)
	res.Header().Set("Connection", "close")
	if err := c.write(x, false); err != nil {
		c.log.Logf(obs.Debug, "writing %d: %v", status, err)
	}
	_ = res.Close()
}

// handle runs one request through layers and content sources and
// writes the response.
func (c *Client) handle(pr *http1.ParsedRequest) (keep bool, sw *protocolSwitch, err error) {
	s := c.server
	start := time.Now()
	layers, sources, defaults, gen := s.snapshot()

	hdr := headerFromFields(pr.Fields)
	c.proxy = resolveProxies(&s.proxies, hostOnly(c.SocketAddr()), forwardedChain(hdr))

	req, rerr := NewRequest(pr.Body, pr.ContentLength, hdr, pr.Proto, pr.Method, pr.RequestURI)
	if rerr != nil {
		c.log.Logf(obs.Warn, "rejecting %s %s: %v", pr.Method, pr.RequestURI, rerr)
		c.reject(400, "")
		return false, nil, nil
	}
	req.id = genID()
	ctx := WithRequestID(context.Background(), req.id)
	if cid := hdr.Get("X-Request-ID"); cid != "" {
		ctx = WithCorrelationID(ctx, cid)
	}
	tr := traceFromHeader(hdr)
	tr.State.Set(traceStateKey, tr.SpanID)
	ctx = WithTrace(ctx, tr)
	req.ctx = withClient(ctx, c)

	res := NewResponse(pr.Proto)
	defer res.Close()
	c.stampHeaders(res, defaults)
	res.Header().Set("Traceparent", tr.Traceparent())
	res.Header().Set("Tracestate", tr.State.String())
	x := &Exchange{Server: s, Client: c, Request: req, Response: res}

	if req.HasBody() && strings.EqualFold(hdr.Get("Expect"), "100-continue") {
		if err := http1.WriteContinue(c.bw, pr.Proto); err == nil {
			_ = c.bw.Flush()
		}
	}

	handled, herr := c.dispatch(req.Path(), x, layers, sources)
	if derr := req.discardBody(); derr != nil && herr == nil {
		c.log.Logf(obs.Debug, "discarding body of %s: %v", req, derr)
		keep = false
	} else {
		keep = wantsKeepAlive(req)
	}
	if herr != nil {
		c.log.Logf(obs.Error, "%s %s: %v", req.Proto(), req, herr)
		res.sw = nil
		res.ClearContent()
		res.SetStatus(500, "")
		res.Header().Set("Connection", "close")
		keep = false
	} else if !handled && !res.StatusAssigned() {
		if knownMethod(req.Method()) {
			res.SetStatus(404, "")
		} else {
			res.SetStatus(405, "")
		}
	}
	c.finalize(x, gen)

	level := obs.Info
	if !res.IsSuccess() {
		level = obs.Error
	}
	c.log.Logf(level, "%s %s %s : %d %s", req.Proto(), req.Method(), req.Path(), res.Status(), res.Message())
	s.meter().Counter("connective_requests_total", 1,
		obs.Label{Key: "method", Value: req.Method()}, obs.Label{Key: "status", Value: strconv.Itoa(res.Status())})
	defer func() {
		s.meter().Histogram("connective_request_seconds", time.Since(start).Seconds(),
			obs.Label{Key: "method", Value: req.Method()})
	}()

	if res.sw != nil {
		if err := c.write(x, true); err != nil {
			return false, nil, fmt.Errorf("switching protocols: %w", err)
		}
		return true, res.sw, nil
	}
	if err := c.write(x, keep && !s.stopping.Load()); err != nil {
		return false, nil, fmt.Errorf("writing response to %s: %w", req, err)
	}
	return c.keepAfterWrite(res), nil, nil
}

// dispatch runs the layers and the content-source chain. A panic in
// handler code is turned into an error.
func (c *Client) dispatch(path string, x *Exchange, layers []Layer, sources []ContentSource) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			handled, err = false, fmt.Errorf("panic serving %s: %v", x.Request, r)
		}
	}()
	ok, err := runLayers(layers, path, x)
	if err != nil || !ok {
		return false, err
	}
	return runChain(sources, path, x)
}

func (c *Client) stampHeaders(res *Response, defaults *Header) {
	res.Header().Set("Server", c.server.serverHeader())
	defaults.Each(func(name, value string) {
		res.Header().Add(name, value)
	})
}

// finalize synthesizes an error page, stamps Date and degrades an
// unassigned empty response to 204.
func (c *Client) finalize(x *Exchange, gen ErrorPageGenerator) {
	res := x.Response
	if !res.HasBody() && !res.IsSuccess() && res.sw == nil {
		if gen == nil {
			gen = TemplateErrorPage{}
		}
		ct, body := gen.ErrorPage(x)
		res.SetContent(ct, body)
	}
	res.Header().Set("Date", time.Now().UTC().Format(TimeFormat))
	if !res.HasBody() && !res.StatusAssigned() && res.sw == nil {
		res.SetStatus(204, "")
	}
}

// write sends the status line, headers and body. keep selects the
// Connection header unless the response already carries one.
func (c *Client) write(x *Exchange, keep bool) error {
	res := x.Response
	if res.sw != nil && res.sw.mode == SwitchRaw {
		return c.bw.Flush()
	}
	head := x.Request != nil && x.Request.Method() == "HEAD"
	http10 := res.Proto() == "HTTP/1.0"
	h := res.Header()
	bodyAllowed := http1.BodyAllowed(res.Status()) && res.sw == nil

	chunked := false
	h.Del("Content-Length")
	h.Del("Transfer-Encoding")
	if bodyAllowed {
		switch n := res.BodyLength(); {
		case n >= 0:
			h.Set("Content-Length", strconv.FormatInt(n, 10))
		case head:
		case http10:
			keep = false
			h.Set("Connection", "close")
		default:
			chunked = true
			h.Set("Transfer-Encoding", "chunked")
		}
	}
	if res.sw == nil && !h.Has("Connection") {
		switch {
		case !keep:
			h.Set("Connection", "close")
		case http10:
			h.Set("Connection", "keep-alive")
		}
	}
	if err := http1.WriteHead(c.bw, res.Proto(), res.Status(), res.Message(), h.fields()); err != nil {
		return err
	}
	if bodyAllowed && !head && res.HasBody() {
		var err error
		switch n := res.BodyLength(); {
		case chunked:
			if _, err = iox.Transfer(http1.ChunkWriter{BW: c.bw}, res.Body()); err == nil {
				err = http1.EndChunked(c.bw)
			}
		case n >= 0:
			_, err = iox.TransferN(c.bw, res.Body(), n)
		default:
			_, err = iox.Transfer(c.bw, res.Body())
		}
		if err != nil {
			return err
		}
	}
	return c.bw.Flush()
}

func (c *Client) keepAfterWrite(res *Response) bool {
	return !http1.HasToken(res.Header().Values("Connection"), "close") && !c.server.stopping.Load()
}

func wantsKeepAlive(req *Request) bool {
	conn := req.Header().Values("Connection")
	if req.Proto() == "HTTP/1.0" {
		return http1.HasToken(conn, "keep-alive")
	}
	return !http1.HasToken(conn, "close")
}

func knownMethod(m string) bool {
	switch m {
	case "GET", "PUT", "DELETE", "PATCH", "POST", "HEAD":
		return true
	}
	return false
}
