package http1

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

func readReq(t *testing.T, raw string, maxLine, maxTotal int) (*ParsedRequest, error) {
	t.Helper()
	r := &Reader{BR: bufio.NewReader(strings.NewReader(raw)), MaxHeaderBytes: maxLine, MaxTotalHeaderBytes: maxTotal}
	return r.ReadRequest()
}

func TestReader_ContentLengthBody(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhelloGET"
	pr, err := readReq(t, raw, 8<<10, 64<<10)
	if err != nil {
		t.Fatalf("ReadRequest error: %v", err)
	}
	if pr.Method != "POST" || pr.RequestURI != "/x" || pr.Proto != "HTTP/1.1" {
		t.Fatalf("request line=%q %q %q", pr.Method, pr.RequestURI, pr.Proto)
	}
	if pr.ContentLength != 5 {
		t.Fatalf("ContentLength=%d", pr.ContentLength)
	}
	b, _ := io.ReadAll(pr.Body)
	if string(b) != "hello" {
		t.Fatalf("body=%q", string(b))
	}
}

func TestReader_NoBody(t *testing.T) {
	pr, err := readReq(t, "GET / HTTP/1.0\r\nHost: x\r\n\r\n", 0, 0)
	if err != nil {
		t.Fatalf("ReadRequest error: %v", err)
	}
	if pr.Body != nil || pr.Chunked {
		t.Fatalf("unexpected body framing: %+v", pr)
	}
	if pr.Get("host") != "x" {
		t.Fatalf("Get(host)=%q", pr.Get("host"))
	}
}

func TestReader_ChunkedBody(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n3;ext=1\r\nhey\r\n2\r\n!!\r\n0\r\nX-Trailer: y\r\n\r\n"
	pr, err := readReq(t, raw, 8<<10, 64<<10)
	if err != nil {
		t.Fatalf("ReadRequest error: %v", err)
	}
	if pr.ContentLength != -1 || !pr.Chunked {
		t.Fatalf("ContentLength=%d chunked=%v", pr.ContentLength, pr.Chunked)
	}
	b, _ := io.ReadAll(pr.Body)
	if string(b) != "hey!!" {
		t.Fatalf("body=%q", string(b))
	}
	if !pr.Body.(*ChunkedReader).Finished() {
		t.Fatal("chunked reader not finished")
	}
}

func TestReader_ChunkedDrainKeepsStreamAligned(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nabcd\r\n0\r\n\r\nGET /next HTTP/1.1\r\n\r\n"
	r := &Reader{BR: bufio.NewReader(strings.NewReader(raw))}
	pr, err := r.ReadRequest()
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := pr.Body.(*ChunkedReader).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	next, err := r.ReadRequest()
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if next.RequestURI != "/next" {
		t.Fatalf("RequestURI=%q", next.RequestURI)
	}
}

func TestReader_CLTEConflict(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\nContent-Length: 5\r\n\r\n"
	if _, err := readReq(t, raw, 8<<10, 64<<10); !errors.Is(err, ErrFraming) {
		t.Fatalf("err=%v want ErrFraming", err)
	}
}

func TestReader_TransferEncodingNotChunked(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: gzip\r\n\r\n"
	if _, err := readReq(t, raw, 0, 0); !errors.Is(err, ErrFraming) {
		t.Fatalf("err=%v want ErrFraming", err)
	}
}

func TestReader_MultipleContentLength(t *testing.T) {
	if _, err := readReq(t, "POST / HTTP/1.1\r\nContent-Length: 5, 6\r\n\r\n", 0, 0); err == nil {
		t.Fatal("expected error for mismatched Content-Length")
	}
	pr, err := readReq(t, "POST / HTTP/1.1\r\nContent-Length: 2\r\nContent-Length: 2\r\n\r\nok", 0, 0)
	if err != nil {
		t.Fatalf("agreeing Content-Length rejected: %v", err)
	}
	if pr.ContentLength != 2 {
		t.Fatalf("ContentLength=%d", pr.ContentLength)
	}
}

func TestReader_InvalidHeaderName(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nBad( : v\r\n\r\n"
	if _, err := readReq(t, raw, 8<<10, 64<<10); err == nil {
		t.Fatal("expected error for invalid header name")
	}
}

func TestReader_ObsFoldRejected(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nA: b\r\n c\r\n\r\n"
	if _, err := readReq(t, raw, 0, 0); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err=%v want ErrMalformed", err)
	}
}

func TestReader_RequestLine(t *testing.T) {
	if _, err := readReq(t, "GET /\r\n\r\n", 0, 0); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err=%v want ErrMalformed", err)
	}
	if _, err := readReq(t, "GET / HTTP/2.0\r\n\r\n", 0, 0); !errors.Is(err, ErrUnsupportedProto) {
		t.Fatalf("err=%v want ErrUnsupportedProto", err)
	}
	pr, err := readReq(t, "\r\n\r\nGET / HTTP/1.1\r\n\r\n", 0, 0)
	if err != nil {
		t.Fatalf("leading blank lines: %v", err)
	}
	if pr.Method != "GET" {
		t.Fatalf("Method=%q", pr.Method)
	}
}

func TestReader_EOF(t *testing.T) {
	if _, err := readReq(t, "", 0, 0); err != io.EOF {
		t.Fatalf("err=%v want io.EOF", err)
	}
	if _, err := readReq(t, "GET / HTTP/1.1\r\nHost:", 0, 0); err != io.ErrUnexpectedEOF {
		t.Fatalf("err=%v want io.ErrUnexpectedEOF", err)
	}
}

func TestReader_LineLimits(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nX-Long: " + strings.Repeat("a", 64) + "\r\n\r\n"
	if _, err := readReq(t, raw, 32, 0); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("err=%v want ErrLineTooLong", err)
	}
	raw = "GET / HTTP/1.1\r\nA: b\r\nC: d\r\nE: f\r\n\r\n"
	if _, err := readReq(t, raw, 8<<10, 6); !errors.Is(err, ErrHeaderTooLarge) {
		t.Fatalf("err=%v want ErrHeaderTooLarge", err)
	}
}

func TestReadResponseHead(t *testing.T) {
	raw := "HTTP/1.1 101 Switching Protocols\r\nUpgrade: echo\r\nConnection: Upgrade\r\n\r\nrest"
	br := bufio.NewReader(strings.NewReader(raw))
	pr, err := ReadResponseHead(br, 0)
	if err != nil {
		t.Fatalf("ReadResponseHead: %v", err)
	}
	if pr.Status != 101 || pr.Get("upgrade") != "echo" {
		t.Fatalf("got %+v", pr)
	}
	rest, _ := io.ReadAll(br)
	if string(rest) != "rest" {
		t.Fatalf("rest=%q", rest)
	}
}
