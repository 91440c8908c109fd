// Package client sends requests built up with [Builder] through a [transport.Transport].
package client

import (
	"context"
	"log/slog"
	"sync"

	"httpcore/application/http/semantic"
	"httpcore/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// Client owns a single transport session and sends one request at a time.
// Configuration set through the embedded [Builder] is kept across requests.
type Client struct {
	*Builder

	transport  transport.Transport
	session    transport.Session
	sessionCfg transport.Config

	// mu serializes sends and guards the session.
	mu     sync.Mutex
	closed bool

	opts Options

	logger *slog.Logger
	clock  clock.Clock
}

func New(
	t transport.Transport,
	logger *slog.Logger,
	clock clock.Clock,
	opts Options,
) *Client {
	return &Client{
		Builder:   NewBuilder(),
		transport: t,
		opts:      opts,
		logger:    logger,
		clock:     clock,
	}
}

var ErrClientClosed = errors.New("client is closed")

// Send sends the request built so far with method.
// A second Send waits until the first one returns.
// Setters of the embedded Builder are not synchronized with Send.
func (c *Client) Send(ctx context.Context, method semantic.Method) (*semantic.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sendLocked(ctx, method)
}

func (c *Client) sendLocked(ctx context.Context, method semantic.Method) (*semantic.Response, error) {
	if c.closed {
		return nil, newError(KindTransport, ErrClientClosed)
	}

	req, err := c.build(method)
	if err != nil {
		return nil, err
	}
	// The callback belongs to a single request.
	c.req.OnBody = nil

	target := req.TargetURL()
	// Userinfo of URLs is kept out of logs.
	logURL := target.Redacted()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = c.clock.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	c.logger.Debug("sending request", "method", req.Method, "url", logURL, "alpn", req.ALPN)

	raw, err := c.roundtrip(ctx, req)
	if err != nil {
		// The connection might be left in the middle of the exchange.
		c.releaseSessionLocked()

		err = transportError(err)
		c.logger.Warn("request failed", "method", req.Method, "url", logURL, "error", err)
		return nil, err
	}

	res, err := semantic.ParseResponse(raw, semantic.RequestInfo{Method: req.Method, URI: target.String()}, c.opts.Parse)
	if err != nil {
		return nil, newError(KindParse, err)
	}

	c.logger.Debug("received response", "method", req.Method, "url", logURL, "status", res.StatusCode())

	return res, nil
}

func (c *Client) build(method semantic.Method) (*semantic.Request, error) {
	switch method {
	case semantic.MethodGet,
		semantic.MethodPost,
		semantic.MethodPut,
		semantic.MethodDelete,
		semantic.MethodOptions,
		semantic.MethodTrace,
		semantic.MethodHead:
	default:
		return nil, invalidArgument("unsupported method: %q", method)
	}

	req := c.Builder.Request()
	req.Method = method

	if req.URL == nil {
		return nil, invalidArgument("url is not set")
	}

	req.EnsureHeadersSet()

	return req, nil
}

func (c *Client) roundtrip(ctx context.Context, req *semantic.Request) ([]byte, error) {
	cfg := transport.ConfigOf(req)
	if c.session != nil && c.sessionCfg != cfg {
		// Protocol or proxy has changed. Connections of the session can't be used anymore.
		c.releaseSessionLocked()
	}

	if c.session == nil {
		session, err := c.transport.Open(ctx, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "opening session")
		}
		c.session, c.sessionCfg = session, cfg
	}

	raw, err := c.session.Execute(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "executing request")
	}

	return raw, nil
}

func (c *Client) releaseSessionLocked() {
	if c.session == nil {
		return
	}

	if err := c.session.Close(); err != nil {
		c.logger.Warn("closing session", "error", err)
	}
	c.session = nil
}

// Close releases the session. Close waits for the ongoing Send.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.session == nil {
		return nil
	}

	err := c.session.Close()
	c.session = nil
	if err != nil {
		return newError(KindTransport, errors.Wrap(err, "closing session"))
	}

	return nil
}

// do sets url and sends, without another send slipping in between.
func (c *Client) do(ctx context.Context, method semantic.Method, url string) (*semantic.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.SetURL(url); err != nil {
		return nil, err
	}
	return c.sendLocked(ctx, method)
}

func (c *Client) Get(ctx context.Context, url string) (*semantic.Response, error) {
	return c.do(ctx, semantic.MethodGet, url)
}

func (c *Client) Post(ctx context.Context, url string) (*semantic.Response, error) {
	return c.do(ctx, semantic.MethodPost, url)
}

func (c *Client) Put(ctx context.Context, url string) (*semantic.Response, error) {
	return c.do(ctx, semantic.MethodPut, url)
}

func (c *Client) Head(ctx context.Context, url string) (*semantic.Response, error) {
	return c.do(ctx, semantic.MethodHead, url)
}

func (c *Client) Options(ctx context.Context, url string) (*semantic.Response, error) {
	return c.do(ctx, semantic.MethodOptions, url)
}

func (c *Client) Delete(ctx context.Context, url string) (*semantic.Response, error) {
	return c.do(ctx, semantic.MethodDelete, url)
}

func (c *Client) Trace(ctx context.Context, url string) (*semantic.Response, error) {
	return c.do(ctx, semantic.MethodTrace, url)
}
