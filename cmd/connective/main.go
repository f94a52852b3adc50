package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"dqx0.com/go/connective/httpx"
	"dqx0.com/go/connective/httpx/wsbridge"
	"dqx0.com/go/connective/internal/config"
	"dqx0.com/go/connective/internal/obs"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML configuration file")
	listen := flag.String("listen", "", "listen address, overrides the configuration")
	grace := flag.Duration("grace", 10*time.Second, "how long to wait for requests in flight on shutdown")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	log := cfg.Logger(os.Stderr)

	s, err := cfg.NewServer()
	if err != nil {
		log.Logf(obs.Error, "configuring server: %v", err)
		os.Exit(1)
	}
	s.Logger = log
	mount(s)

	if err := s.Start(); err != nil {
		log.Logf(obs.Error, "listen failed: %v", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Logf(obs.Info, "received %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), *grace)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Logf(obs.Warn, "forced shutdown: %v", err)
	}
}

// mount registers the built-in endpoints.
func mount(s *httpx.Server) {
	hs := s.Handlers()
	hs.Handle("/health", func(c *httpx.Call) error {
		c.Response.SetContentString("text/plain; charset=utf-8", "ok\n")
		return nil
	}, httpx.WithMethods("GET", "HEAD"))
	hs.HandlePush("/echo", func(c *httpx.Call) error {
		ct := c.Request.HeaderValue("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}
		b, err := c.Request.BodyBytes()
		if err != nil {
			return err
		}
		c.Response.SetContent(ct, b)
		return nil
	})
	hs.Register(wsbridge.New("/ws/echo", &websocket.Upgrader{}, func(ws *websocket.Conn, _ *httpx.Request) {
		defer ws.Close()
		for {
			mt, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
}
