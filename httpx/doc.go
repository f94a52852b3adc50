// Package httpx is an embeddable HTTP/1.1 server engine.
//
// A Server accepts connections and serves each on its own goroutine.
// Every request runs through the server's layers, then through a chain
// of content sources. The default chain holds a single source backed by
// a HandlerSet, which routes by path specificity:
//
//   - handlers registered for the exact path are tried first;
//   - then handlers accepting child paths, from the request path up to
//     the root, so the longest registered prefix wins;
//   - at every level handlers with explicit methods go before handlers
//     accepting any method;
//   - requests with a body only reach push handlers.
//
// A handler may decline a request so the next candidate can try, unless
// it already read the request body. When nothing serves a request the
// response is 405 if a handler was skipped only because of its method,
// 404 otherwise.
//
// Handlers are prototypes: each match instantiates a fresh Instance
// bound to the request, so handlers hold no per-request state.
//
// Quick start:
//
//	s := httpx.NewServer(":8080")
//	s.Handlers().Handle("/hello", func(c *httpx.Call) error {
//	    c.Response.SetContentString("text/plain; charset=utf-8", "hello")
//	    return nil
//	})
//	if err := s.Start(); err != nil { log.Fatal(err) }
//	s.WaitForExit()
//
// A response may hand the connection over to another protocol with
// SwitchProtocolsUpgrade, SwitchProtocolsConnect or SwitchProtocolsRaw;
// the callback runs once the HTTP loop has released the connection.
package httpx
