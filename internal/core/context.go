package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "client_ua"
)

// Client identifies who requested a run. It is stored with run history.
type Client struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ContextWithIPAddress adds the requester's IP address to ctx.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the requester's User-Agent to ctx.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ClientFromContext returns the requester recorded on ctx.
func ClientFromContext(ctx context.Context) Client {
	var c Client
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		c.IPAddress = v
	}
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		c.UserAgent = v
	}
	return c
}
