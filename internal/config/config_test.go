package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dqx0.com/go/connective/internal/obs"
)

const sample = `
listen: 127.0.0.1:9000
server_name: Edge
idle_timeout: 30s
case_insensitive_paths: true
trusted_proxies: [10.0.0.1, 192.168.0.0/16]
default_headers:
  - name: X-Frame-Options
    value: DENY
  - name: Vary
    value: Accept
  - name: Vary
    value: Origin
    append: true
log_level: debug
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "connective.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_File(t *testing.T) {
	c, err := Load(writeFile(t, sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Listen != "127.0.0.1:9000" || c.ServerName != "Edge" || c.IdleTimeout != 30*time.Second {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.ServerVersion != "1.0" {
		t.Fatalf("default version lost: %q", c.ServerVersion)
	}
	if len(c.TrustedProxies) != 2 || len(c.DefaultHeaders) != 3 || !c.DefaultHeaders[2].Append {
		t.Fatalf("lists: %+v", c)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	if _, err := Load(writeFile(t, "listen: :1\nlisten_addr: :2\n")); err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	c, err := Load(writeFile(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Listen != ":8080" {
		t.Fatalf("Listen=%q", c.Listen)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CONNECTIVE_LISTEN":           ":7000",
		"CONNECTIVE_TRUSTED_PROXIES":  " 10.1.1.1 , ,10.2.0.0/16",
		"CONNECTIVE_LOG_LEVEL":        "warn",
		"CONNECTIVE_IDLE_TIMEOUT":     "5s",
		"CONNECTIVE_MAX_HEADER_BYTES": "4096",
	}
	c := Default()
	if err := c.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if c.Listen != ":7000" || c.LogLevel != "warn" || c.IdleTimeout != 5*time.Second || c.MaxHeaderBytes != 4096 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if strings.Join(c.TrustedProxies, "|") != "10.1.1.1|10.2.0.0/16" {
		t.Fatalf("proxies=%q", c.TrustedProxies)
	}

	env = map[string]string{"CONNECTIVE_MAX_HEADER_BYTES": "lots"}
	if err := c.ApplyEnv(func(k string) string { return env[k] }); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err=%v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"bad proxy", func(c *Config) { c.TrustedProxies = []string{"proxy.local"} }},
		{"bad cidr", func(c *Config) { c.TrustedProxies = []string{"10.0.0.0/99"} }},
		{"bad header", func(c *Config) { c.DefaultHeaders = []DefaultHeader{{Name: "Bad Name", Value: "x"}} }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"half tls", func(c *Config) { c.TLS.CertFile = "cert.pem" }},
		{"limits", func(c *Config) { c.MaxHeaderBytes, c.MaxTotalHeaderBytes = 4096, 1024 }},
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tc := range cases {
		c := Default()
		tc.mod(c)
		if err := c.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: err=%v", tc.name, err)
		}
	}
}

func TestNewServer(t *testing.T) {
	c := Default()
	if err := c.Decode(strings.NewReader(sample)); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	s, err := c.NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if s.Name != "Edge" || s.IdleTimeout != 30*time.Second || s.Addr() != "127.0.0.1:9000" {
		t.Fatalf("server fields: %s %v %s", s.Name, s.IdleTimeout, s.Addr())
	}
	if !s.IsTrustedProxy("192.168.4.4") || s.IsTrustedProxy("10.0.0.2") {
		t.Fatal("trusted proxies not applied")
	}
	if got := s.DefaultHeaders().Values("Vary"); strings.Join(got, ",") != "Accept,Origin" {
		t.Fatalf("Vary=%q", got)
	}
	if s.TLSConfig != nil {
		t.Fatal("TLS configured without key pair")
	}
}

func TestApply_MissingKeyPair(t *testing.T) {
	c := Default()
	c.TLS = TLS{CertFile: filepath.Join(t.TempDir(), "none.pem"), KeyFile: "none.key"}
	if _, err := c.NewServer(); err == nil {
		t.Fatal("missing key pair accepted")
	}
}

func TestLogger(t *testing.T) {
	var sb strings.Builder
	c := Default()
	c.LogLevel = "warn"
	l := c.Logger(&sb)
	l.Logf(obs.Debug, "hidden")
	l.Logf(obs.Error, "shown %d", 1)
	if strings.Contains(sb.String(), "hidden") || !strings.Contains(sb.String(), "shown 1") {
		t.Fatalf("log output %q", sb.String())
	}
}
