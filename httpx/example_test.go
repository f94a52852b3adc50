package httpx_test

import (
	"context"
	"fmt"
	"io"
	"strings"

	"dqx0.com/go/connective/httpx"
)

// ExampleHeader shows the ordered, case-insensitive header collection.
func ExampleHeader() {
	h := httpx.NewHeader()
	h.Add("X-Foo", "a")
	h.Add("x-foo", "b")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Println(h.Get("X-FOO"))
	fmt.Println(h.Values("X-Foo"))
	fmt.Println(h.Names())
	h.Del("X-Foo")
	fmt.Println(h.Len())
	// Output:
	// a
	// [a b]
	// [X-Foo Content-Type]
	// 1
}

func ExampleTraceState() {
	ts := httpx.ParseTraceState("vendor1=abc,bad key=1")
	ts.Set("vendor2", "xyz")
	ts.Set("vendor1", "def")
	fmt.Println(ts.String())
	// Output:
	// vendor1=def,vendor2=xyz
}

// ExampleTraceFrom shows storing and retrieving trace info via context.
func ExampleTraceFrom() {
	tr := httpx.Trace{TraceID: "0123456789abcdef0123456789abcdef", SpanID: "0123456789abcdef", Flags: "01"}
	ctx := httpx.WithTrace(context.Background(), tr)
	got, ok := httpx.TraceFrom(ctx)
	fmt.Println(ok, got.Traceparent())
	// Output:
	// true 00-0123456789abcdef0123456789abcdef-0123456789abcdef-01
}

func ExampleSanitizePath() {
	fmt.Println(httpx.SanitizePath(`//static\css//site.css/`))
	fmt.Println(httpx.ParentPath("/static/css"))
	// Output:
	// /static/css/site.css
	// /static
}

// ExampleNewRequest decodes the target of a request line.
func ExampleNewRequest() {
	req, err := httpx.NewRequest(nil, 0, nil, "HTTP/1.1", "get", "/files/a%20b.txt?v=1&mode=raw")
	if err != nil {
		fmt.Println(err)
		return
	}
	mode, _ := req.Param("mode")
	fmt.Println(req.Method(), req.Path(), mode)
	// Output:
	// GET /files/a b.txt raw
}

// ExampleHandlerSet routes a request to the most specific handler.
func ExampleHandlerSet() {
	hs := httpx.NewHandlerSet()
	hs.Handle("/", func(c *httpx.Call) error {
		c.Response.SetContentString("text/plain", "fallback for "+c.Path)
		return nil
	}, httpx.WithChildPaths())
	hs.Handle("/hello", func(c *httpx.Call) error {
		c.Response.SetContentString("text/plain", "hello")
		return nil
	})

	for _, target := range []string{"/hello", "/hello/world"} {
		req, _ := httpx.NewRequest(nil, 0, nil, "HTTP/1.1", "GET", target)
		res := httpx.NewResponse("HTTP/1.1")
		ok, err := hs.Serve(req.Path(), &httpx.Exchange{Request: req, Response: res})
		body, _ := io.ReadAll(res.Body())
		fmt.Println(ok, err, string(body))
	}
	// Output:
	// true <nil> hello
	// true <nil> fallback for /hello/world
}

// ExampleHandlerSet_HandlePush shows a handler that accepts both bodyless
// and body-carrying requests.
func ExampleHandlerSet_HandlePush() {
	hs := httpx.NewHandlerSet()
	hs.HandlePush("/test", func(c *httpx.Call) error {
		if !c.Request.HasBody() {
			c.Response.SetContentString("text/plain", "12345")
			return nil
		}
		b, err := c.Request.BodyString()
		c.Response.SetContentString("text/plain", b+"-test")
		return err
	}, httpx.WithNonPush())

	serve := func(method, body string) {
		var rd io.Reader
		if body != "" {
			rd = strings.NewReader(body)
		}
		req, _ := httpx.NewRequest(rd, int64(len(body)), nil, "HTTP/1.1", method, "/test")
		res := httpx.NewResponse("HTTP/1.1")
		hs.Serve(req.Path(), &httpx.Exchange{Request: req, Response: res})
		out, _ := io.ReadAll(res.Body())
		fmt.Println(string(out))
	}
	serve("GET", "")
	serve("POST", "Test")
	// Output:
	// 12345
	// Test-test
}

// ExampleServer wires a server together; Start binds the listener.
func ExampleServer() {
	s := httpx.NewServer("127.0.0.1:8080")
	s.SetDefaultHeader("X-Content-Type-Options", "nosniff", false)
	s.Handlers().Handle("/health", func(c *httpx.Call) error {
		c.Response.SetContentString("text/plain", "ok")
		return nil
	})
	s.AddLayer(httpx.LayerFunc(func(path string, x *httpx.Exchange) (bool, error) {
		return !strings.HasPrefix(path, "/private"), nil
	}))
	fmt.Println(len(s.ContentSources()), s.IsRunning())
	// Output:
	// 1 false
}
