package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/tabinfer/internal/core"
)

// WithRequestMetadata records the client address for run history. RemoteAddr
// has already been rewritten by TrustedRealIP when the peer is a trusted proxy.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClientIP(ctx, clientIP(r))
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
