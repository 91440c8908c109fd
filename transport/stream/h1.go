package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"

	"httpcore/application/http"
	"httpcore/application/http/semantic"

	"github.com/pkg/errors"
)

// h1Conn exchanges one request at a time in HTTP/1.x syntax.
type h1Conn struct {
	conn    net.Conn
	version http.Version

	// br reads conn through rec, so rec holds every byte br has taken from conn.
	br  *bufio.Reader
	rec *bytes.Buffer

	keepAlive bool

	t *Transport
}

func newH1Conn(conn net.Conn, t *Transport, alpn semantic.ALPN) *h1Conn {
	c := &h1Conn{
		conn:    conn,
		version: http.Version11,
		rec:     bytes.NewBuffer(nil),
		t:       t,
	}
	if alpn == semantic.ALPNHTTP10 {
		c.version = http.Version10
	}
	c.br = bufio.NewReader(io.TeeReader(conn, c.rec))

	return c
}

func (c *h1Conn) roundtrip(ctx context.Context, req *semantic.Request) (_ []byte, err error) {
	c.keepAlive = false
	c.rec.Reset()

	now := c.t.clock.Now()
	if d := c.t.opts.Timeout.Write; d > 0 {
		_ = c.conn.SetWriteDeadline(now.Add(d))
	}
	if d := c.t.opts.Timeout.Read; d > 0 {
		_ = c.conn.SetReadDeadline(now.Add(d))
	}

	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(c.t.past()) })
	defer func() {
		if !stop() {
			// The deadline was spoiled by cancellation.
			c.keepAlive = false
			if err != nil {
				err = ctxErr(ctx, err)
			}
		}
	}()

	if err := c.write(req); err != nil {
		return nil, errors.Wrap(err, "writing request")
	}

	reusable, err := semantic.ReadResponse(c.br, req.Method, c.t.opts.Decode, req.BodyWriter())
	if err != nil {
		return c.received(), errors.Wrap(err, "reading response")
	}

	// Bytes left behind don't belong to any request.
	c.keepAlive = reusable && c.br.Buffered() == 0
	if c.keepAlive {
		_ = c.conn.SetDeadline(time.Time{})
	}

	return c.received(), nil
}

// received returns the bytes of the response consumed by the last exchange.
func (c *h1Conn) received() []byte {
	raw := c.rec.Bytes()
	return bytes.Clone(raw[:len(raw)-c.br.Buffered()])
}

func (c *h1Conn) write(req *semantic.Request) error {
	target := req.TargetURL()
	body := req.BodyBytes()

	enc := http.NewRequestEncoder(c.conn, c.t.opts.Encode)
	return enc.Encode(http.Request{
		RequestLine: http.RequestLine{
			Method:  string(req.Method),
			Target:  target.RequestURI(),
			Version: c.version,
		},
		Headers: requestFields(req, target, body),
		Body:    bytes.NewReader(body),
	})
}

// requestFields puts Host first, then the headers as set.
// Content-Length is added when the request has a body or the method expects one.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.6-5
func requestFields(req *semantic.Request, target *url.URL, body []byte) []http.Field {
	h := req.Headers.Clone()

	host, ok := h.Get("Host")
	if !ok {
		host = target.Host
	}
	h.Del("Host")

	fields := make([]http.Field, 0, h.Len()+2)
	fields = append(fields, http.Field{Name: "Host", Value: host})
	fields = append(fields, h.Fields()...)

	framed := h.Has("Content-Length") || h.Has("Transfer-Encoding")
	expectsBody := req.Method == semantic.MethodPost || req.Method == semantic.MethodPut
	if !framed && (len(body) > 0 || expectsBody) {
		fields = append(fields, http.Field{Name: "Content-Length", Value: strconv.Itoa(len(body))})
	}

	return fields
}

func (c *h1Conn) reusable() bool { return c.keepAlive }

func (c *h1Conn) close() error { return c.conn.Close() }
