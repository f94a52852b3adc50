package httpx

import (
	_ "embed"
	"html"
	"strconv"
	"strings"
)

//go:embed error.template.html
var defaultErrorTemplate string

// ErrorPageGenerator renders the body sent for error responses that
// carry no content of their own. x.Request is nil when the request
// could not be parsed.
type ErrorPageGenerator interface {
	ErrorPage(x *Exchange) (contentType string, body []byte)
}

// ErrorPageFunc adapts a function to ErrorPageGenerator.
type ErrorPageFunc func(x *Exchange) (string, []byte)

func (f ErrorPageFunc) ErrorPage(x *Exchange) (string, []byte) { return f(x) }

// TemplateErrorPage fills %path%, %server-name%, %server-version%,
// %error-status% and %error-message% in an HTML template. Values are
// HTML escaped.
type TemplateErrorPage struct {
	Template string
}

func (t TemplateErrorPage) ErrorPage(x *Exchange) (string, []byte) {
	tpl := t.Template
	if tpl == "" {
		tpl = defaultErrorTemplate
	}
	var name, version, path string
	if x.Server != nil {
		name, version = x.Server.Name, x.Server.Version
	}
	if x.Request != nil {
		path = x.Request.Path()
	}
	r := strings.NewReplacer(
		"%path%", html.EscapeString(path),
		"%server-name%", html.EscapeString(name),
		"%server-version%", html.EscapeString(version),
		"%error-status%", strconv.Itoa(x.Response.Status()),
		"%error-message%", html.EscapeString(x.Response.Message()),
	)
	return "text/html; charset=utf-8", []byte(r.Replace(tpl))
}
