package httpx

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"dqx0.com/go/connective/internal/obs"
)

const (
	DefaultName    = "Connective"
	DefaultVersion = "1.0"

	defaultMaxHeaderBytes      = 8 << 10
	defaultMaxTotalHeaderBytes = 64 << 10
)

// Server accepts connections and serves each on its own goroutine.
//
// The exported fields are read when a connection is accepted and must
// not be changed while the server runs. Handler registration, default
// headers, layers, the error page generator and trusted proxies may be
// changed at any time; the content source chain only while stopped.
type Server struct {
	// Name and Version make up the Server header and appear on error
	// pages.
	Name    string
	Version string
	// MaxHeaderBytes bounds a single head line, MaxTotalHeaderBytes the
	// whole header block.
	MaxHeaderBytes      int
	MaxTotalHeaderBytes int
	// IdleTimeout bounds the wait for the next request on a connection.
	// Zero waits forever.
	IdleTimeout time.Duration
	// TLSConfig, when set, makes Start serve TLS.
	TLSConfig *tls.Config
	Logger    obs.Logger
	Meter     obs.Meter

	addr     string
	handlers *HandlerSet

	mu             sync.Mutex
	defaultHeaders *Header
	sources        []ContentSource
	layers         []Layer
	errorPage      ErrorPageGenerator
	done           chan struct{}

	proxies trustedProxies

	running    atomic.Bool
	stopping   atomic.Bool
	ln         net.Listener
	acceptDone chan struct{}
	wg         sync.WaitGroup
	conns      *xsync.MapOf[uint64, *Client]
	nextID     atomic.Uint64
}

// NewServer returns a stopped server that will listen on addr.
func NewServer(addr string) *Server {
	return &Server{
		Name:           DefaultName,
		Version:        DefaultVersion,
		addr:           addr,
		handlers:       NewHandlerSet(),
		defaultHeaders: NewHeader(),
		conns:          xsync.NewMapOf[uint64, *Client](),
	}
}

// Handlers is the handler set served by the default content source.
func (s *Server) Handlers() *HandlerSet { return s.handlers }

// SetHandlers replaces the handler set, for example with a case
// insensitive one. It fails while the server runs.
func (s *Server) SetHandlers(hs *HandlerSet) error {
	if s.running.Load() {
		return ErrServerRunning
	}
	s.handlers = hs
	return nil
}

// AddContentSource puts src at the head of the chain; the previous head
// becomes its parent.
func (s *Server) AddContentSource(src ContentSource) error {
	if s.running.Load() {
		return ErrServerRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append([]ContentSource{src}, s.chainLocked()...)
	return nil
}

// SetContentSources replaces the chain, head first. An empty list
// restores the default chain serving Handlers().
func (s *Server) SetContentSources(srcs ...ContentSource) error {
	if s.running.Load() {
		return ErrServerRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append([]ContentSource(nil), srcs...)
	return nil
}

// ContentSources returns the chain, head first.
func (s *Server) ContentSources() []ContentSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainLocked()
}

func (s *Server) chainLocked() []ContentSource {
	if len(s.sources) == 0 {
		return []ContentSource{NewHandlerSetSource(s.handlers)}
	}
	return append([]ContentSource(nil), s.sources...)
}

// AddLayer appends a layer; layers run in the order they were added.
func (s *Server) AddLayer(l Layer) {
	s.mu.Lock()
	s.layers = append(s.layers, l)
	s.mu.Unlock()
}

func (s *Server) snapshot() ([]Layer, []ContentSource, *Header, ErrorPageGenerator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Layer(nil), s.layers...), s.chainLocked(), s.defaultHeaders.Clone(), s.errorPage
}

// SetDefaultHeader adds a header sent with every response.
func (s *Server) SetDefaultHeader(name, value string, appendValue bool) {
	s.mu.Lock()
	s.defaultHeaders.AddHeader(name, value, appendValue)
	s.mu.Unlock()
}

// RemoveDefaultHeader drops a default header.
func (s *Server) RemoveDefaultHeader(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultHeaders.Del(name)
}

// DefaultHeaders returns a copy of the default headers.
func (s *Server) DefaultHeaders() *Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultHeaders.Clone()
}

// SetErrorPageGenerator replaces the error page renderer; nil restores
// the built-in template.
func (s *Server) SetErrorPageGenerator(g ErrorPageGenerator) {
	s.mu.Lock()
	s.errorPage = g
	s.mu.Unlock()
}

// AddTrustedProxy trusts an IP address or CIDR range to assert client
// addresses through X-Forwarded-For.
func (s *Server) AddTrustedProxy(addr string) error { return s.proxies.add(addr) }

func (s *Server) RemoveTrustedProxy(addr string) bool { return s.proxies.remove(addr) }

func (s *Server) ClearTrustedProxies() { s.proxies.clear() }

func (s *Server) TrustedProxies() []string { return s.proxies.list() }

// IsTrustedProxy reports whether addr (host or host:port) is trusted.
func (s *Server) IsTrustedProxy(addr string) bool { return s.proxies.trusts(addr) }

// Addr returns the bound address while running, the configured one
// otherwise.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Start opens the listening socket and begins accepting connections.
func (s *Server) Start() error {
	if s.running.Load() {
		return ErrServerRunning
	}
	addr := s.addr
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if s.TLSConfig != nil {
		ln = tls.NewListener(ln, s.TLSConfig)
	}
	if err := s.StartOn(ln); err != nil {
		_ = ln.Close()
		return err
	}
	return nil
}

// StartOn serves connections accepted from ln.
func (s *Server) StartOn(ln net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerRunning
	}
	s.stopping.Store(false)
	s.mu.Lock()
	s.ln = ln
	s.done = make(chan struct{})
	s.acceptDone = make(chan struct{})
	s.mu.Unlock()
	s.logger().Logf(obs.Info, "listening on %s", ln.Addr())
	go s.acceptLoop(ln, s.acceptDone)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)
	var delay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else if delay *= 2; delay > time.Second {
					delay = time.Second
				}
				s.logger().Logf(obs.Warn, "accept error: %v; retrying in %v", err, delay)
				time.Sleep(delay)
				continue
			}
			s.logger().Logf(obs.Error, "accept failed: %v", err)
			return
		}
		delay = 0
		s.meter().Counter("connective_connections_total", 1)
		cl := newClient(s, s.nextID.Add(1), c)
		s.conns.Store(cl.id, cl)
		s.wg.Add(1)
		go s.serveClient(cl)
	}
}

// serveClient runs the HTTP loop. A scheduled protocol switch runs after
// the client was released from tracking, so Stop does not wait for it
// and StopForced does not close its connection.
func (s *Server) serveClient(cl *Client) {
	sw := cl.serveGuarded()
	s.conns.Delete(cl.id)
	s.wg.Done()
	if sw != nil {
		s.meter().Counter("connective_protocol_switches_total", 1,
			obs.Label{Key: "mode", Value: sw.mode.String()}, obs.Label{Key: "protocol", Value: sw.protocol})
		cl.runSwitch(sw)
	}
}

func (s *Server) IsRunning() bool { return s.running.Load() }

// WaitForExit blocks until the server has stopped. It returns at once
// when the server is not running.
func (s *Server) WaitForExit() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil || !s.running.Load() {
		return
	}
	<-done
}

// Stop closes the listener and waits for every connection to finish its
// current request. Idle keep-alive connections are woken and closed.
func (s *Server) Stop() error { return s.Shutdown(context.Background()) }

// Shutdown is Stop bounded by ctx; when ctx ends first the remaining
// connections are closed forcibly and ctx.Err() is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.beginStop() {
		return ErrServerStopped
	}
	s.conns.Range(func(_ uint64, c *Client) bool {
		c.interruptIdle()
		return true
	})
	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
		s.closeAll()
		<-drained
	}
	s.finishStop()
	return err
}

// StopForced closes the listener and every tracked connection
// immediately.
func (s *Server) StopForced() error {
	if !s.beginStop() {
		return ErrServerStopped
	}
	s.closeAll()
	s.wg.Wait()
	s.finishStop()
	return nil
}

func (s *Server) beginStop() bool {
	if !s.running.Load() || !s.stopping.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	ln, acceptDone := s.ln, s.acceptDone
	s.mu.Unlock()
	_ = ln.Close()
	<-acceptDone
	return true
}

func (s *Server) closeAll() {
	s.conns.Range(func(_ uint64, c *Client) bool {
		_ = c.Close()
		return true
	})
}

func (s *Server) finishStop() {
	s.mu.Lock()
	s.ln = nil
	done := s.done
	s.mu.Unlock()
	s.running.Store(false)
	s.logger().Logf(obs.Info, "server stopped")
	close(done)
}

// Connections is the number of connections currently served.
func (s *Server) Connections() int { return s.conns.Size() }

func (s *Server) logger() obs.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return obs.SlogLogger{}
}

func (s *Server) meter() obs.Meter {
	if s.Meter != nil {
		return s.Meter
	}
	return obs.NopMeter{}
}

func (s *Server) headerLimit() int {
	if s.MaxHeaderBytes <= 0 {
		return defaultMaxHeaderBytes
	}
	return s.MaxHeaderBytes
}

func (s *Server) totalHeaderLimit() int {
	if s.MaxTotalHeaderBytes <= 0 {
		return defaultMaxTotalHeaderBytes
	}
	return s.MaxTotalHeaderBytes
}

func (s *Server) serverHeader() string {
	if s.Version == "" {
		return s.Name
	}
	return s.Name + "/" + s.Version
}
