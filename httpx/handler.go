package httpx

import (
	"strings"

	"dqx0.com/go/connective/internal/obs"
)

// Exchange groups the live objects of one request.
type Exchange struct {
	Server   *Server
	Client   *Client
	Request  *Request
	Response *Response
}

func (x *Exchange) logger() obs.Logger {
	if x.Client != nil {
		return x.Client.Logger()
	}
	if x.Server != nil {
		return x.Server.logger()
	}
	return obs.NopLogger{}
}

// Call is what a handler sees when it is matched and instantiated: the
// exchange plus the routing inputs.
type Call struct {
	*Exchange
	Path        string
	Method      string
	ContentType string
}

// Handler is a reusable routing prototype. It never holds per-request
// state; Instantiate binds a Call into a fresh Instance for each
// dispatch.
//
// Methods returns the accepted methods; "*" or an empty list accepts any
// method.
type Handler interface {
	Path() string
	SupportsChildPaths() bool
	Methods() []string
	Match(c *Call) bool
	Instantiate(c *Call) Instance
}

// Instance is a handler bound to one request. HandleRequest returns
// false to let the next candidate try.
type Instance interface {
	HandleRequest() (bool, error)
}

// PushHandler accepts requests that carry a body. SupportsNonPush
// additionally admits bodyless requests.
type PushHandler interface {
	Handler
	SupportsNonPush() bool
}

// HandleFunc serves a request and always claims it.
type HandleFunc func(c *Call) error

// DynamicFunc serves a request and may decline it.
type DynamicFunc func(c *Call) (bool, error)

// MatchFunc decides whether a handler is eligible for a call.
type MatchFunc func(c *Call) bool

// Option tunes a handler built by NewHandler and friends.
type Option func(*funcHandler)

// WithChildPaths makes the handler accept every path below its own.
func WithChildPaths() Option {
	return func(h *funcHandler) { h.children = true }
}

// WithMethods overrides the default method list.
func WithMethods(methods ...string) Option {
	return func(h *funcHandler) {
		h.methods = normalizeMethods(methods)
		h.methodsSet = true
	}
}

// WithNonPush lets a push handler also serve bodyless requests.
func WithNonPush() Option {
	return func(h *funcHandler) { h.nonPush = true }
}

func WithMatcher(m MatchFunc) Option {
	return func(h *funcHandler) { h.match = m }
}

type funcHandler struct {
	path       string
	children   bool
	methods    []string
	methodsSet bool
	nonPush    bool
	match      MatchFunc
	fn         DynamicFunc
}

func (h *funcHandler) Path() string             { return h.path }
func (h *funcHandler) SupportsChildPaths() bool { return h.children }
func (h *funcHandler) Methods() []string        { return append([]string(nil), h.methods...) }

func (h *funcHandler) Match(c *Call) bool {
	if h.match == nil {
		return true
	}
	return h.match(c)
}

func (h *funcHandler) Instantiate(c *Call) Instance {
	return &funcInstance{call: c, fn: h.fn}
}

type funcPushHandler struct {
	*funcHandler
}

func (h funcPushHandler) SupportsNonPush() bool { return h.nonPush }

type funcInstance struct {
	call *Call
	fn   DynamicFunc
}

func (i *funcInstance) HandleRequest() (bool, error) {
	return i.fn(i.call)
}

func claim(fn HandleFunc) DynamicFunc {
	return func(c *Call) (bool, error) {
		if err := fn(c); err != nil {
			return false, err
		}
		return true, nil
	}
}

func newFuncHandler(path string, fn DynamicFunc, opts []Option) *funcHandler {
	h := &funcHandler{path: SanitizePath(path), fn: fn}
	for _, o := range opts {
		o(h)
	}
	return h
}

// NewHandler returns a request handler accepting GET by default.
func NewHandler(path string, fn HandleFunc, opts ...Option) Handler {
	return NewDynamicHandler(path, claim(fn), opts...)
}

// NewDynamicHandler is NewHandler for functions that may decline.
func NewDynamicHandler(path string, fn DynamicFunc, opts ...Option) Handler {
	h := newFuncHandler(path, fn, opts)
	if !h.methodsSet {
		h.methods = []string{"GET"}
	}
	return h
}

// NewPushHandler returns a body-accepting handler. It accepts PUT and
// POST by default, and GET as well when WithNonPush is given.
func NewPushHandler(path string, fn HandleFunc, opts ...Option) PushHandler {
	return NewDynamicPushHandler(path, claim(fn), opts...)
}

func NewDynamicPushHandler(path string, fn DynamicFunc, opts ...Option) PushHandler {
	h := newFuncHandler(path, fn, opts)
	if !h.methodsSet {
		if h.nonPush {
			h.methods = []string{"GET", "PUT", "POST"}
		} else {
			h.methods = []string{"PUT", "POST"}
		}
	}
	return funcPushHandler{h}
}

func normalizeMethods(ms []string) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, strings.ToUpper(strings.TrimSpace(m)))
	}
	return out
}

func anyMethod(ms []string) bool {
	if len(ms) == 0 {
		return true
	}
	for _, m := range ms {
		if m == "*" {
			return true
		}
	}
	return false
}

func acceptsMethod(ms []string, method string) bool {
	for _, m := range ms {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// acceptsShape applies the push rules: a request with a body needs a
// push handler, a bodyless one needs a plain handler or a push handler
// that supports non-push calls.
func acceptsShape(h Handler, push bool) bool {
	ph, isPush := h.(PushHandler)
	if push {
		return isPush
	}
	return !isPush || ph.SupportsNonPush()
}
