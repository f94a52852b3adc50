package httpx

import (
	"fmt"
	"net"
	"strings"
	"sync"
)

// trustedProxies is the set of peers allowed to assert another client
// address through X-Forwarded-For. Entries are single addresses or CIDR
// ranges.
type trustedProxies struct {
	mu      sync.RWMutex
	entries []proxyEntry
}

type proxyEntry struct {
	raw  string
	ip   net.IP
	cidr *net.IPNet
}

func parseProxyEntry(s string) (proxyEntry, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, cidr, err := net.ParseCIDR(s)
		if err != nil {
			return proxyEntry{}, fmt.Errorf("httpx: trusted proxy %q: %w", s, err)
		}
		return proxyEntry{raw: cidr.String(), cidr: cidr}, nil
	}
	ip := net.ParseIP(strings.Trim(s, "[]"))
	if ip == nil {
		return proxyEntry{}, fmt.Errorf("httpx: trusted proxy %q: not an IP address", s)
	}
	return proxyEntry{raw: ip.String(), ip: ip}, nil
}

func (e proxyEntry) contains(ip net.IP) bool {
	if e.cidr != nil {
		return e.cidr.Contains(ip)
	}
	return e.ip.Equal(ip)
}

func (t *trustedProxies) add(s string) error {
	e, err := parseProxyEntry(s)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, have := range t.entries {
		if have.raw == e.raw {
			return nil
		}
	}
	t.entries = append(t.entries, e)
	return nil
}

func (t *trustedProxies) remove(s string) bool {
	e, err := parseProxyEntry(s)
	if err != nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, have := range t.entries {
		if have.raw == e.raw {
			t.entries = append(t.entries[:i:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (t *trustedProxies) clear() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}

func (t *trustedProxies) list() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.raw
	}
	return out
}

func (t *trustedProxies) trusts(addr string) bool {
	ip := net.ParseIP(strings.Trim(hostOnly(addr), "[]"))
	if ip == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.contains(ip) {
			return true
		}
	}
	return false
}

// hostOnly strips a port from host:port forms.
func hostOnly(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}

// forwardedChain parses X-Forwarded-For values, client first.
func forwardedChain(h *Header) []string {
	var out []string
	for _, v := range h.Values("X-Forwarded-For") {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// proxyResolution is the outcome of walking the forwarding chain from
// the socket peer towards the originating client.
type proxyResolution struct {
	chain         []string
	effective     string
	authoritative string
}

// resolveProxies trusts a forwarded address only when every hop after it
// is a trusted proxy, starting with the socket peer.
func resolveProxies(t *trustedProxies, socketHost string, chain []string) proxyResolution {
	res := proxyResolution{chain: chain, effective: socketHost}
	cur := socketHost
	for i := len(chain) - 1; i >= 0; i-- {
		if !t.trusts(cur) {
			break
		}
		res.authoritative = cur
		cur = chain[i]
		res.effective = cur
	}
	return res
}
