package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/csvlint/internal/core"
)

// WithRequestMetadata records the client IP and User-Agent on ctx so runs
// started by the request are stored with them.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, clientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
