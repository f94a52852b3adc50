package httpx

import "context"

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyCorrelationID
	ctxKeyClient
)

// WithRequestID returns a new context that carries a request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFrom extracts the request ID from ctx.
func RequestIDFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxKeyRequestID).(string)
	return s, ok && s != ""
}

// WithCorrelationID returns a new context that carries the ID a peer
// sent in X-Request-ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

// CorrelationIDFrom extracts the correlation ID from ctx.
func CorrelationIDFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxKeyCorrelationID).(string)
	return s, ok && s != ""
}

// ClientFrom returns the connection serving the request ctx belongs to.
func ClientFrom(ctx context.Context) (*Client, bool) {
	c, ok := ctx.Value(ctxKeyClient).(*Client)
	return c, ok && c != nil
}

func withClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, ctxKeyClient, c)
}
