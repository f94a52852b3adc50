package httpx

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"dqx0.com/go/connective/httpx/internal/http1"
)

// UpgradeRequest describes a client side protocol switch.
type UpgradeRequest struct {
	// Method defaults to GET. With CONNECT a 200 answer completes the
	// switch instead of 101.
	Method string
	// Target is the request target; defaults to "/".
	Target string
	// Host defaults to the dialed address.
	Host string
	// Protocol is sent as the Upgrade token and must be echoed by the
	// server. Unused for CONNECT.
	Protocol string
	Header   *Header
	Body     []byte

	// TLSConfig, when set, dials TLS.
	TLSConfig   *tls.Config
	DialTimeout time.Duration
}

// UpgradedConn is the connection after a successful switch. Reads first
// drain whatever the handshake reader buffered.
type UpgradedConn struct {
	net.Conn
	br *bufio.Reader

	Status int
	Header *Header
}

func (u *UpgradedConn) Read(p []byte) (int, error) { return u.br.Read(p) }

// Reader exposes the buffered reader over the connection.
func (u *UpgradedConn) Reader() *bufio.Reader { return u.br }

// DialUpgrade connects to addr, sends the upgrade request and waits for
// the server to switch. Any other answer yields an error wrapping
// ErrUpgradeRejected and the connection is closed.
func DialUpgrade(ctx context.Context, addr string, ur UpgradeRequest) (*UpgradedConn, error) {
	method := strings.ToUpper(ur.Method)
	if method == "" {
		method = "GET"
	}
	connect := method == "CONNECT"
	target := ur.Target
	if target == "" {
		target = "/"
	}
	host := ur.Host
	if host == "" {
		host = addr
	}

	d := net.Dialer{Timeout: ur.DialTimeout}
	var c net.Conn
	var err error
	if ur.TLSConfig != nil {
		cfg := ur.TLSConfig
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = hostOnly(addr)
		}
		td := tls.Dialer{NetDialer: &d, Config: cfg}
		c, err = td.DialContext(ctx, "tcp", addr)
	} else {
		c, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.SetDeadline(dl)
	}

	h := NewHeader()
	if ur.Header != nil {
		h = ur.Header.Clone()
	}
	h.SetDefault("Host", host)
	if !connect {
		h.Set("Upgrade", ur.Protocol)
		h.Set("Connection", "Upgrade")
	}
	if len(ur.Body) > 0 {
		h.Set("Content-Length", strconv.Itoa(len(ur.Body)))
	}

	bw := bufio.NewWriter(c)
	fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", method, target)
	h.Each(func(name, value string) {
		fmt.Fprintf(bw, "%s: %s\r\n", http1.SanitizeHeaderKey(name), http1.SanitizeHeaderValue(value))
	})
	bw.WriteString("\r\n")
	bw.Write(ur.Body)
	if err := bw.Flush(); err != nil {
		_ = c.Close()
		return nil, err
	}

	br := bufio.NewReader(c)
	pr, err := http1.ReadResponseHead(br, defaultMaxHeaderBytes)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	want := 101
	if connect {
		want = 200
	}
	if pr.Status != want {
		_ = c.Close()
		return nil, fmt.Errorf("%w: %d %s", ErrUpgradeRejected, pr.Status, pr.Reason)
	}
	if !connect {
		if !http1.HasToken(pr.Values("Upgrade"), ur.Protocol) || !http1.HasToken(pr.Values("Connection"), "upgrade") {
			_ = c.Close()
			return nil, fmt.Errorf("%w: server did not confirm %q", ErrUpgradeRejected, ur.Protocol)
		}
	}
	if _, ok := ctx.Deadline(); ok {
		_ = c.SetDeadline(time.Time{})
	}
	return &UpgradedConn{Conn: c, br: br, Status: pr.Status, Header: headerFromFields(pr.Fields)}, nil
}
