// Package transport defines how a request is moved over the network.
// Implementations live in its subpackages.
package transport

import (
	"context"

	"httpcore/application/http/semantic"

	"github.com/pkg/errors"
)

var ErrSessionClosed = errors.New("session is closed")

// Config is decided when a session is opened.
// A request whose ALPN or proxy differs needs another session.
type Config struct {
	ALPN semantic.ALPN

	// Proxy is empty for direct connections.
	Proxy string
}

func ConfigOf(req *semantic.Request) Config {
	cfg := Config{ALPN: req.ALPN}
	if req.Proxy != nil {
		cfg.Proxy = req.Proxy.String()
	}
	return cfg
}

type Transport interface {
	Open(ctx context.Context, cfg Config) (Session, error)
}

// Session is an exclusively owned connection state, e.g. reusable connections.
// Session is not safe for concurrent use.
type Session interface {
	// Execute sends req and returns bytes of the whole response as received.
	// Zero bytes means the peer sent nothing.
	Execute(ctx context.Context, req *semantic.Request) ([]byte, error)

	// Close releases the session. It is safe to call multiple times.
	Close() error
}
