package http1

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"dqx0.com/go/connective/httpx/internal/iox"
)

var (
	ErrMalformed        = errors.New("http1: malformed message")
	ErrUnsupportedProto = errors.New("http1: unsupported protocol version")
	ErrLineTooLong      = errors.New("http1: header line too long")
	ErrHeaderTooLarge   = errors.New("http1: header section too large")
	ErrFraming          = errors.New("http1: conflicting or invalid body framing")
)

// maxLeadingBlankLines bounds the empty lines tolerated before a request line.
const maxLeadingBlankLines = 4

// Field is one header line in arrival order.
type Field struct {
	Name  string
	Value string
}

// ParsedRequest is a minimal representation parsed from the wire.
//
// Body is nil when the message carries no body. For Content-Length
// framing it is an *iox.LengthLimited over the connection reader; for
// chunked framing it is a *ChunkedReader and ContentLength is -1.
type ParsedRequest struct {
	Method        string
	RequestURI    string
	Proto         string
	Fields        []Field
	ContentLength int64
	Chunked       bool
	Body          io.Reader
}

// Get returns the first value of the named field (case-insensitive).
func (p *ParsedRequest) Get(name string) string {
	return lookup(p.Fields, name)
}

type Reader struct {
	BR                  *bufio.Reader
	MaxHeaderBytes      int
	MaxTotalHeaderBytes int
	total               int
}

// ReadRequest reads one request head and prepares its body framing.
// A connection closed cleanly before the first byte yields io.EOF.
func (r *Reader) ReadRequest() (*ParsedRequest, error) {
	r.total = 0
	var line string
	var err error
	for i := 0; ; i++ {
		line, err = r.readLine(i == 0)
		if err != nil {
			return nil, err
		}
		if line != "" {
			break
		}
		if i >= maxLeadingBlankLines {
			return nil, ErrMalformed
		}
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return nil, ErrMalformed
	}
	method, uri, proto := parts[0], parts[1], parts[2]
	if !httpguts.ValidHeaderFieldName(method) || uri == "" {
		return nil, ErrMalformed
	}
	if !strings.HasPrefix(proto, "HTTP/1.") {
		return nil, ErrUnsupportedProto
	}
	r.total = 0
	fields, err := r.readFields()
	if err != nil {
		return nil, err
	}
	pr := &ParsedRequest{
		Method:     method,
		RequestURI: uri,
		Proto:      proto,
		Fields:     fields,
	}
	if err := frameBody(pr, r.BR, r.MaxHeaderBytes); err != nil {
		return nil, err
	}
	return pr, nil
}

func frameBody(pr *ParsedRequest, br *bufio.Reader, maxLine int) error {
	te := values(pr.Fields, "Transfer-Encoding")
	cls := values(pr.Fields, "Content-Length")
	if len(te) > 0 {
		if len(cls) > 0 {
			return ErrFraming
		}
		if !lastCodingChunked(te) {
			return ErrFraming
		}
		pr.Chunked = true
		pr.ContentLength = -1
		pr.Body = NewChunkedReader(br, maxLine)
		return nil
	}
	if len(cls) == 0 {
		pr.ContentLength = 0
		return nil
	}
	n, err := parseContentLength(cls)
	if err != nil {
		return err
	}
	pr.ContentLength = n
	pr.Body = iox.NewLengthLimited(br, n, false)
	return nil
}

// parseContentLength accepts repeated or comma separated values only
// when they all agree.
func parseContentLength(vals []string) (int64, error) {
	var n int64 = -1
	for _, v := range vals {
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			x, err := strconv.ParseInt(p, 10, 64)
			if err != nil || x < 0 {
				return 0, ErrFraming
			}
			if n != -1 && x != n {
				return 0, ErrFraming
			}
			n = x
		}
	}
	return n, nil
}

func lastCodingChunked(te []string) bool {
	last := te[len(te)-1]
	if i := strings.LastIndexByte(last, ','); i >= 0 {
		last = last[i+1:]
	}
	return strings.EqualFold(strings.TrimSpace(last), "chunked")
}

func (r *Reader) readFields() ([]Field, error) {
	var fields []Field
	for {
		line, err := r.readLine(false)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return fields, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			// obsolete line folding
			return nil, ErrMalformed
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, ErrMalformed
		}
		k := line[:i]
		if !httpguts.ValidHeaderFieldName(k) {
			return nil, ErrMalformed
		}
		v := strings.TrimSpace(line[i+1:])
		fields = append(fields, Field{Name: k, Value: v})
	}
}

// readLine reads one CRLF (or bare LF) terminated line without the
// terminator. When first is set a clean EOF before any byte is returned
// as io.EOF so callers can tell an idle close from a truncated message.
func (r *Reader) readLine(first bool) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.BR.ReadByte()
		if err != nil {
			if err == io.EOF && (sb.Len() > 0 || !first) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == '\n' {
			break
		}
		if b != '\r' {
			sb.WriteByte(b)
		}
		if r.MaxHeaderBytes > 0 && sb.Len() > r.MaxHeaderBytes {
			return "", ErrLineTooLong
		}
	}
	r.total += sb.Len()
	if r.MaxTotalHeaderBytes > 0 && r.total > r.MaxTotalHeaderBytes {
		return "", ErrHeaderTooLarge
	}
	return sb.String(), nil
}

func lookup(fields []Field, name string) string {
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

func values(fields []Field, name string) []string {
	var out []string
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}
