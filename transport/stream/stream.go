// Package stream implements [transport.Transport] over stream connections,
// speaking HTTP/1.x on its own and HTTP/2 through golang.org/x/net/http2.
package stream

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"httpcore/application/http/semantic"
	"httpcore/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// Dialer is satisfied by [net.Dialer] and [pipe.Network].
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

type Transport struct {
	dialer Dialer

	opts Options

	logger *slog.Logger
	clock  clock.Clock
}

var _ transport.Transport = (*Transport)(nil)

func New(d Dialer, logger *slog.Logger, clock clock.Clock, opts Options) *Transport {
	return &Transport{
		dialer: d,
		opts:   opts,
		logger: logger,
		clock:  clock,
	}
}

var ErrUnsupportedProxy = errors.New("unsupported proxy")

// Open validates cfg. Connections are dialed lazily, by Execute.
func (t *Transport) Open(ctx context.Context, cfg transport.Config) (transport.Session, error) {
	if _, err := semantic.ParseALPN(string(cfg.ALPN)); err != nil {
		return nil, errors.Wrap(err, "opening session")
	}

	s := &session{
		t:     t,
		cfg:   cfg,
		conns: make(map[string]*entry),
	}

	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, errors.Wrap(err, "parsing proxy")
		}

		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, errors.Wrapf(ErrUnsupportedProxy, "%q", u.Redacted())
		}
		s.proxy = u
	}

	return s, nil
}

// exchanger carries requests over a single connection.
type exchanger interface {
	roundtrip(ctx context.Context, req *semantic.Request) ([]byte, error)

	// reusable reports whether another request can be sent.
	reusable() bool
	close() error
}

type entry struct {
	exchanger
	uses uint
}

type session struct {
	t *Transport

	cfg   transport.Config
	proxy *url.URL

	// keyed by scheme and authority.
	conns  map[string]*entry
	closed bool
}

var _ transport.Session = (*session)(nil)

func (s *session) Execute(ctx context.Context, req *semantic.Request) ([]byte, error) {
	if s.closed {
		return nil, transport.ErrSessionClosed
	}
	if req.URL == nil {
		return nil, errors.New("request has no url")
	}

	key := req.URL.Scheme + "://" + hostport(req.URL)

	for retried := false; ; retried = true {
		e, err := s.conn(ctx, key, req.URL)
		if err != nil {
			return nil, err
		}
		e.uses++

		raw, err := e.roundtrip(ctx, req)
		if err == nil {
			if !e.reusable() {
				s.drop(key)
			}
			return raw, nil
		}

		s.drop(key)

		if len(raw) > 0 || ctx.Err() != nil || isTimeout(err) {
			return raw, err
		}

		// The server might have closed an idle connection right before we used it.
		if e.uses > 1 && !retried && req.Method.IsIdempotent() {
			s.t.logger.Debug("retrying on a new connection", "key", key, "error", err)
			continue
		}

		if e.uses == 1 && isEOF(err) {
			// The peer closed a fresh connection without a word.
			return []byte{}, nil
		}

		return nil, err
	}
}

func (s *session) conn(ctx context.Context, key string, target *url.URL) (*entry, error) {
	if e, ok := s.conns[key]; ok {
		return e, nil
	}

	ex, err := s.dial(ctx, target)
	if err != nil {
		return nil, err
	}

	e := &entry{exchanger: ex}
	s.conns[key] = e

	return e, nil
}

func (s *session) drop(key string) {
	e, ok := s.conns[key]
	if !ok {
		return
	}
	delete(s.conns, key)

	if err := e.close(); err != nil {
		s.t.logger.Debug("closing connection", "key", key, "error", err)
	}
}

// Close closes every connection of the session.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var first error
	for key, e := range s.conns {
		if err := e.close(); err != nil && first == nil {
			first = errors.Wrapf(err, "closing connection to %s", key)
		}
	}
	clear(s.conns)

	return first
}

// hostport returns host:port of u, filling in the default port of its scheme.
func hostport(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(int(semantic.DefaultPort(u.Scheme)))
	}
	return net.JoinHostPort(u.Hostname(), port)
}
