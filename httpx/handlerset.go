package httpx

import (
	"strings"
	"sync"

	"dqx0.com/go/connective/internal/obs"
)

// HandlerSet stores handlers by path and dispatches a request to the
// most specific, method compatible one.
//
// Registration and lookup take a short lock; dispatch iterates over a
// copied snapshot so handlers may register or unregister others while
// serving.
type HandlerSet struct {
	mu              sync.Mutex
	caseInsensitive bool
	exact           map[string][]Handler
	children        map[string][]Handler
}

func NewHandlerSet() *HandlerSet {
	return &HandlerSet{
		exact:    make(map[string][]Handler),
		children: make(map[string][]Handler),
	}
}

// NewCaseInsensitiveHandlerSet matches paths regardless of case. The
// path handed to handlers keeps the case of the request.
func NewCaseInsensitiveHandlerSet() *HandlerSet {
	s := NewHandlerSet()
	s.caseInsensitive = true
	return s
}

func (s *HandlerSet) key(p string) string {
	if s.caseInsensitive {
		return strings.ToLower(p)
	}
	return p
}

// Register adds h under its sanitized path. Handlers registered at the
// same path are tried in registration order.
func (s *HandlerSet) Register(h Handler) {
	k := s.key(SanitizePath(h.Path()))
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.SupportsChildPaths() {
		s.children[k] = append(s.children[k], h)
	} else {
		s.exact[k] = append(s.exact[k], h)
	}
}

// Unregister removes h and reports whether it was registered.
func (s *HandlerSet) Unregister(h Handler) bool {
	k := s.key(SanitizePath(h.Path()))
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.exact
	if h.SupportsChildPaths() {
		m = s.children
	}
	list := m[k]
	for i, c := range list {
		if c == h {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(m, k)
			} else {
				m[k] = list
			}
			return true
		}
	}
	return false
}

// Handle registers a request handler built from fn.
func (s *HandlerSet) Handle(path string, fn HandleFunc, opts ...Option) Handler {
	h := NewHandler(path, fn, opts...)
	s.Register(h)
	return h
}

// HandlePush registers a push handler built from fn.
func (s *HandlerSet) HandlePush(path string, fn HandleFunc, opts ...Option) PushHandler {
	h := NewPushHandler(path, fn, opts...)
	s.Register(h)
	return h
}

// Handlers returns a snapshot of every registered handler.
func (s *HandlerSet) Handlers() []Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Handler
	for _, l := range s.exact {
		out = append(out, l...)
	}
	for _, l := range s.children {
		out = append(out, l...)
	}
	return out
}

func (s *HandlerSet) snapshot(m map[string][]Handler, k string) []Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := m[k]
	if len(l) == 0 {
		return nil
	}
	return append([]Handler(nil), l...)
}

// Serve dispatches x to the best handler for path.
//
// Exact-path handlers are tried first, then handlers accepting child
// paths from the request path up to the root. At every level handlers
// with an explicit method list go before those accepting any method.
// When no handler claims the request but one was skipped only because
// of its method, the response gets 405 unless a status is already
// assigned.
//
// Returned errors come from the handlers and are not recovered here.
func (s *HandlerSet) Serve(path string, x *Exchange) (bool, error) {
	path = SanitizePath(path)
	k := s.key(path)
	c := &Call{
		Exchange:    x,
		Path:        path,
		Method:      x.Request.Method(),
		ContentType: x.Request.HeaderValue("Content-Type"),
	}
	d := dispatch{call: c, push: x.Request.HasBody(), log: x.logger()}

	if done, err := d.level(s.snapshot(s.exact, k)); done || err != nil {
		return d.finish(err)
	}
	for lvl := k; lvl != ""; lvl = ParentPath(lvl) {
		if done, err := d.level(s.snapshot(s.children, lvl)); done || err != nil {
			return d.finish(err)
		}
	}
	return d.finish(nil)
}

type dispatch struct {
	call         *Call
	push         bool
	log          obs.Logger
	incompatible bool
	handled      bool
}

// finish assigns 405 to an unclaimed request that a handler skipped
// for its method, including when the search stopped early.
func (d *dispatch) finish(err error) (bool, error) {
	res := d.call.Response
	if err == nil && !d.handled && d.incompatible && !res.StatusAssigned() {
		res.SetStatus(405, "")
	}
	return d.handled, err
}

// level runs the two passes over one bucket. done is set when the
// request was claimed or when the search has to stop because a
// declining handler consumed the body.
func (d *dispatch) level(cands []Handler) (done bool, err error) {
	if len(cands) == 0 {
		return false, nil
	}
	for _, wildcard := range [2]bool{false, true} {
		for _, h := range cands {
			ms := h.Methods()
			if anyMethod(ms) != wildcard {
				continue
			}
			if !wildcard && !acceptsMethod(ms, d.call.Method) {
				d.incompatible = true
				continue
			}
			if !acceptsShape(h, d.push) {
				continue
			}
			if !h.Match(d.call) {
				continue
			}
			ok, err := h.Instantiate(d.call).HandleRequest()
			if err != nil {
				return true, err
			}
			if ok {
				d.handled = true
				return true, nil
			}
			if d.call.Request.BodyTouched() {
				d.log.Logf(obs.Warn, "handler at %s read the request body of %s %s and declined; not trying other handlers",
					h.Path(), d.call.Method, d.call.Path)
				return true, nil
			}
		}
	}
	return false, nil
}
