// Package wsbridge serves WebSocket endpoints on an httpx.Server.
//
// The handshake is answered by gorilla/websocket after the server has
// released the connection through a raw protocol switch, so the engine
// never writes a status line for these requests.
package wsbridge

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"

	"dqx0.com/go/connective/httpx"
	"dqx0.com/go/connective/internal/obs"
)

// ConnFunc is called with the established WebSocket connection and the
// request that opened it. The connection is closed when it returns.
type ConnFunc func(ws *websocket.Conn, req *httpx.Request)

// New returns a handler at path that switches matching WebSocket
// handshakes to fn. Requests that are not WebSocket handshakes are left
// to other handlers.
func New(path string, upgrader *websocket.Upgrader, fn ConnFunc, opts ...httpx.Option) httpx.Handler {
	if upgrader == nil {
		upgrader = &websocket.Upgrader{}
	}
	b := &bridge{upgrader: upgrader, fn: fn}
	opts = append([]httpx.Option{httpx.WithMatcher(isHandshake)}, opts...)
	return httpx.NewDynamicHandler(path, b.handle, opts...)
}

type bridge struct {
	upgrader *websocket.Upgrader
	fn       ConnFunc
}

func isHandshake(c *httpx.Call) bool {
	return websocket.IsWebSocketUpgrade(toHTTPRequest(c.Request, ""))
}

func (b *bridge) handle(c *httpx.Call) (bool, error) {
	req := c.Request
	c.Response.SwitchProtocolsRaw(func(cl *httpx.Client) {
		b.serve(cl, req)
	})
	return true, nil
}

func (b *bridge) serve(cl *httpx.Client, req *httpx.Request) {
	log := cl.Logger()
	w := &hijackWriter{client: cl, header: http.Header{}}
	ws, err := b.upgrader.Upgrade(w, toHTTPRequest(req, cl.SocketAddr()), nil)
	if err != nil {
		log.Logf(obs.Warn, "websocket handshake for %s failed: %v", req.Path(), err)
		if !w.hijacked {
			w.flushError()
		}
		_ = cl.Close()
		return
	}
	log.Logf(obs.Debug, "websocket established on %s", req.Path())
	defer ws.Close()
	b.fn(ws, req)
}

// toHTTPRequest presents the parsed request the way gorilla expects it.
func toHTTPRequest(req *httpx.Request, remote string) *http.Request {
	u, err := url.ParseRequestURI(req.RawResource())
	if err != nil {
		u = &url.URL{Path: req.Path()}
	}
	r := &http.Request{
		Method:     req.Method(),
		URL:        u,
		Proto:      req.Proto(),
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{},
		Host:       req.HeaderValue("Host"),
		RequestURI: req.RawResource(),
		RemoteAddr: remote,
	}
	if req.Proto() == "HTTP/1.0" {
		r.ProtoMinor = 0
	}
	req.Header().Each(func(name, value string) {
		r.Header.Add(name, value)
	})
	return r.WithContext(req.Context())
}

var errHijacked = errors.New("wsbridge: connection was hijacked")

// hijackWriter lets gorilla take over the client connection. When the
// handshake is refused it records the error response instead, which is
// then written as a complete HTTP message.
type hijackWriter struct {
	client   *httpx.Client
	header   http.Header
	status   int
	body     bytes.Buffer
	hijacked bool
}

func (w *hijackWriter) Header() http.Header { return w.header }

func (w *hijackWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *hijackWriter) Write(p []byte) (int, error) {
	if w.hijacked {
		return 0, errHijacked
	}
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return w.client.Conn(), bufio.NewReadWriter(w.client.Reader(), w.client.Writer()), nil
}

func (w *hijackWriter) flushError() {
	status := w.status
	if status == 0 {
		status = http.StatusBadRequest
	}
	bw := w.client.Writer()
	fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	w.header.Set("Content-Length", strconv.Itoa(w.body.Len()))
	w.header.Set("Connection", "close")
	_ = w.header.Write(bw)
	bw.WriteString("\r\n")
	bw.Write(w.body.Bytes())
	_ = bw.Flush()
}
