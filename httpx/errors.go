package httpx

import (
	"errors"

	"dqx0.com/go/connective/httpx/internal/iox"
)

var (
	ErrBadRequest        = errors.New("httpx: bad request")
	ErrMalformedRequest  = errors.New("httpx: malformed request")
	ErrForbiddenPath     = errors.New("httpx: path escapes the served root")
	ErrHeaderTooLarge    = errors.New("httpx: header too large")
	ErrProtocolViolation = errors.New("httpx: protocol violation")
	ErrServerRunning     = errors.New("httpx: server is running")
	ErrServerStopped     = errors.New("httpx: server is not running")
	ErrUpgradeRejected   = errors.New("httpx: protocol upgrade rejected")
	ErrBodyClosed        = iox.ErrClosed
)
