package httpx

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// fakePeer answers the first request on a fresh listener with reply.
func fakePeer(t *testing.T, reply string) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	got := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		br := bufio.NewReader(c)
		var sb strings.Builder
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			sb.WriteString(line)
			if line == "\r\n" {
				break
			}
		}
		got <- sb.String()
		io.WriteString(c, reply)
		time.Sleep(50 * time.Millisecond)
	}()
	return ln.Addr().String(), got
}

func TestDialUpgrade_RequestShape(t *testing.T) {
	addr, got := fakePeer(t, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: chat\r\nConnection: upgrade\r\n\r\nfirst")
	h := NewHeader()
	h.Set("X-Token", "t1")
	uc, err := DialUpgrade(context.Background(), addr, UpgradeRequest{Target: "/chat", Host: "example.test", Protocol: "chat", Header: h})
	if err != nil {
		t.Fatalf("DialUpgrade: %v", err)
	}
	defer uc.Close()
	req := <-got
	for _, want := range []string{"GET /chat HTTP/1.1\r\n", "X-Token: t1\r\n", "Host: example.test\r\n", "Upgrade: chat\r\n", "Connection: Upgrade\r\n"} {
		if !strings.Contains(req, want) {
			t.Fatalf("request %q lacks %q", req, want)
		}
	}
	b := make([]byte, 5)
	if _, err := io.ReadFull(uc, b); err != nil || string(b) != "first" {
		t.Fatalf("buffered bytes lost: %q %v", b, err)
	}
}

func TestDialUpgrade_ProtocolNotConfirmed(t *testing.T) {
	addr, _ := fakePeer(t, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: other\r\nConnection: Upgrade\r\n\r\n")
	_, err := DialUpgrade(context.Background(), addr, UpgradeRequest{Protocol: "chat"})
	if !errors.Is(err, ErrUpgradeRejected) {
		t.Fatalf("err=%v", err)
	}
}

func TestDialUpgrade_ConnectNeeds200(t *testing.T) {
	addr, _ := fakePeer(t, "HTTP/1.1 101 Switching Protocols\r\n\r\n")
	_, err := DialUpgrade(context.Background(), addr, UpgradeRequest{Method: "connect", Target: "h:1"})
	if !errors.Is(err, ErrUpgradeRejected) {
		t.Fatalf("err=%v", err)
	}
}

func TestTemplateErrorPage(t *testing.T) {
	req, err := NewRequest(nil, 0, nil, "HTTP/1.1", "GET", "/%3Cscript%3E")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	res := NewResponse("HTTP/1.1")
	res.SetStatus(404, "")
	s := NewServer("")
	x := &Exchange{Server: s, Request: req, Response: res}

	ct, body := TemplateErrorPage{}.ErrorPage(x)
	if !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type %q", ct)
	}
	page := string(body)
	for _, want := range []string{"404 Not Found", "/&lt;script&gt;", DefaultName + " " + DefaultVersion} {
		if !strings.Contains(page, want) {
			t.Fatalf("page lacks %q:\n%s", want, page)
		}
	}
	if strings.Contains(page, "<script>") {
		t.Fatal("path not escaped")
	}

	_, body = TemplateErrorPage{Template: "%error-status%|%path%"}.ErrorPage(&Exchange{Response: res})
	if string(body) != "404|" {
		t.Fatalf("custom template: %q", body)
	}
}
