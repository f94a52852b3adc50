package http1

import (
	"bufio"
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// WriteContinue writes an interim 100 Continue response.
func WriteContinue(bw *bufio.Writer, proto string) error {
	if proto == "" {
		proto = "HTTP/1.1"
	}
	_, err := fmt.Fprintf(bw, "%s 100 Continue\r\n\r\n", proto)
	return err
}

// SanitizeHeaderKey ensures a header name is a valid token; returns the
// empty string if invalid.
func SanitizeHeaderKey(k string) string {
	if !httpguts.ValidHeaderFieldName(k) {
		return ""
	}
	return k
}

// SanitizeHeaderValue removes CR/LF and control chars except HTAB.
func SanitizeHeaderValue(v string) string {
	if v == "" || httpguts.ValidHeaderFieldValue(v) && !strings.ContainsAny(v, "\r\n") {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0x7f {
			continue
		}
		if c < 0x20 && c != '\t' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// HasToken reports whether any of the comma separated values carries
// token, ignoring case (e.g. "Connection: keep-alive, Upgrade").
func HasToken(values []string, token string) bool {
	return httpguts.HeaderValuesContainsToken(values, token)
}
