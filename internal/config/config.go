// Package config loads the standalone server configuration from YAML and
// the environment and applies it to an httpx.Server.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
	"gopkg.in/yaml.v3"

	"dqx0.com/go/connective/httpx"
	"dqx0.com/go/connective/internal/obs"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the typed server configuration.
type Config struct {
	Listen               string          `yaml:"listen"`
	ServerName           string          `yaml:"server_name"`
	ServerVersion        string          `yaml:"server_version"`
	MaxHeaderBytes       int             `yaml:"max_header_bytes"`
	MaxTotalHeaderBytes  int             `yaml:"max_total_header_bytes"`
	IdleTimeout          time.Duration   `yaml:"idle_timeout"`
	CaseInsensitivePaths bool            `yaml:"case_insensitive_paths"`
	TrustedProxies       []string        `yaml:"trusted_proxies"`
	DefaultHeaders       []DefaultHeader `yaml:"default_headers"`
	LogLevel             string          `yaml:"log_level"`
	TLS                  TLS             `yaml:"tls"`
}

// DefaultHeader is one header sent with every response. Append adds the
// value next to earlier ones of the same name instead of replacing them.
type DefaultHeader struct {
	Name   string `yaml:"name"`
	Value  string `yaml:"value"`
	Append bool   `yaml:"append"`
}

type TLS struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:        ":8080",
		ServerName:    httpx.DefaultName,
		ServerVersion: httpx.DefaultVersion,
		IdleTimeout:   2 * time.Minute,
		LogLevel:      "info",
	}
}

// Load reads path on top of Default, applies the environment and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		if err := c.Decode(f); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Decode merges YAML from r into c. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from CONNECTIVE_* variables read through
// getenv. Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("CONNECTIVE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := getenv("CONNECTIVE_SERVER_NAME"); v != "" {
		c.ServerName = v
	}
	if v := getenv("CONNECTIVE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("CONNECTIVE_TRUSTED_PROXIES"); v != "" {
		c.TrustedProxies = splitList(v)
	}
	if v := getenv("CONNECTIVE_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: CONNECTIVE_IDLE_TIMEOUT: %v", ErrInvalid, err)
		}
		c.IdleTimeout = d
	}
	if n, ok, err := getenvInt(getenv, "CONNECTIVE_MAX_HEADER_BYTES"); err != nil {
		return err
	} else if ok {
		c.MaxHeaderBytes = n
	}
	return nil
}

func getenvInt(getenv func(string) string, key string) (int, bool, error) {
	v := getenv(key)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
	}
	return n, true, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the values Apply would otherwise fail on at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, fmt.Errorf("%w: listen is empty", ErrInvalid))
	}
	if c.ServerName == "" {
		errs = append(errs, fmt.Errorf("%w: server_name is empty", ErrInvalid))
	}
	if c.MaxHeaderBytes < 0 || c.MaxTotalHeaderBytes < 0 {
		errs = append(errs, fmt.Errorf("%w: header limits must not be negative", ErrInvalid))
	}
	if c.MaxHeaderBytes > 0 && c.MaxTotalHeaderBytes > 0 && c.MaxTotalHeaderBytes < c.MaxHeaderBytes {
		errs = append(errs, fmt.Errorf("%w: max_total_header_bytes is below max_header_bytes", ErrInvalid))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: idle_timeout is negative", ErrInvalid))
	}
	for _, p := range c.TrustedProxies {
		if !validProxy(p) {
			errs = append(errs, fmt.Errorf("%w: trusted proxy %q is neither an IP nor a CIDR", ErrInvalid, p))
		}
	}
	for _, h := range c.DefaultHeaders {
		if !httpguts.ValidHeaderFieldName(h.Name) || !httpguts.ValidHeaderFieldValue(h.Value) {
			errs = append(errs, fmt.Errorf("%w: default header %q", ErrInvalid, h.Name))
		}
	}
	if _, err := obs.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalid, err))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, fmt.Errorf("%w: tls needs both cert_file and key_file", ErrInvalid))
	}
	return errors.Join(errs...)
}

func validProxy(p string) bool {
	if strings.Contains(p, "/") {
		_, _, err := net.ParseCIDR(p)
		return err == nil
	}
	return net.ParseIP(p) != nil
}

// Logger builds the slog-backed logger selected by log_level, writing
// text records to w.
func (c *Config) Logger(w io.Writer) obs.Logger {
	lvl, err := obs.ParseLevel(c.LogLevel)
	if err != nil {
		lvl = obs.Info
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl.Slog()})
	return obs.SlogLogger{L: slog.New(h)}
}

// NewServer returns a stopped server listening on c.Listen with c
// applied.
func (c *Config) NewServer() (*httpx.Server, error) {
	s := httpx.NewServer(c.Listen)
	if err := c.Apply(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply copies the configuration onto a stopped server.
func (c *Config) Apply(s *httpx.Server) error {
	if s.IsRunning() {
		return httpx.ErrServerRunning
	}
	s.Name = c.ServerName
	s.Version = c.ServerVersion
	s.MaxHeaderBytes = c.MaxHeaderBytes
	s.MaxTotalHeaderBytes = c.MaxTotalHeaderBytes
	s.IdleTimeout = c.IdleTimeout
	if c.CaseInsensitivePaths {
		if err := s.SetHandlers(httpx.NewCaseInsensitiveHandlerSet()); err != nil {
			return err
		}
	}
	for _, p := range c.TrustedProxies {
		if err := s.AddTrustedProxy(p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	for _, h := range c.DefaultHeaders {
		s.SetDefaultHeader(h.Name, h.Value, h.Append)
	}
	if c.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("config: loading tls key pair: %w", err)
		}
		s.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}
	return nil
}
