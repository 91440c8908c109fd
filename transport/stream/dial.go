package stream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"httpcore/application/http"
	"httpcore/application/http/semantic"
	iolib "httpcore/lib/io"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"
)

var ErrTunnelRefused = errors.New("proxy refused to open a tunnel")

// maxTunnelResponse limits the head of a CONNECT response.
const maxTunnelResponse = 16 << 10

func (s *session) dial(ctx context.Context, target *url.URL) (exchanger, error) {
	addr := hostport(target)

	attempts := max(s.t.opts.ConnectAttempts, 1)

	var (
		ex  exchanger
		err error
	)
	for attempt := uint(1); attempt <= attempts; attempt++ {
		ex, err = s.dialOnce(ctx, target, addr)
		if err == nil {
			return ex, nil
		}
		if ctx.Err() != nil {
			break
		}

		s.t.logger.Debug("dial failed", "addr", addr, "attempt", attempt, "error", err)
	}

	return nil, errors.Wrapf(err, "dialing %s", addr)
}

func (s *session) dialOnce(ctx context.Context, target *url.URL, addr string) (exchanger, error) {
	if d := s.t.opts.Timeout.Connect; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = s.t.clock.WithTimeout(ctx, d)
		defer cancel()
	}

	var proxyURL string
	if s.proxy != nil {
		proxyURL = s.proxy.Redacted()
	}
	s.t.logger.Debug("dialing", "addr", addr, "proxy", proxyURL, "alpn", s.cfg.ALPN)

	var (
		conn net.Conn
		err  error
	)
	switch {
	case s.proxy == nil:
		conn, err = s.t.dialer.DialContext(ctx, "tcp", addr)
	case s.proxy.Scheme == "socks5" || s.proxy.Scheme == "socks5h":
		conn, err = s.dialSOCKS(ctx, addr)
	default:
		conn, err = s.dialTunnel(ctx, addr)
	}
	if err != nil {
		return nil, err
	}

	if target.Scheme != "https" {
		if s.cfg.ALPN == semantic.ALPNHTTP2 {
			// Prior knowledge.
			// Reference: https://datatracker.ietf.org/doc/html/rfc9113#section-3.3
			return newH2Conn(conn, s.t)
		}
		return newH1Conn(conn, s.t, s.cfg.ALPN), nil
	}

	tlsConn, err := s.t.handshake(ctx, conn, target.Hostname(), nextProtos(s.cfg.ALPN))
	if err != nil {
		conn.Close()
		return nil, err
	}

	if tlsConn.ConnectionState().NegotiatedProtocol == "h2" {
		return newH2Conn(tlsConn, s.t)
	}
	return newH1Conn(tlsConn, s.t, s.cfg.ALPN), nil
}

func nextProtos(alpn semantic.ALPN) []string {
	switch alpn {
	case semantic.ALPNHTTP10:
		return []string{string(semantic.ALPNHTTP10)}
	case semantic.ALPNHTTP11:
		return []string{string(semantic.ALPNHTTP11)}
	}
	return []string{string(semantic.ALPNHTTP2), string(semantic.ALPNHTTP11)}
}

func (t *Transport) handshake(ctx context.Context, conn net.Conn, serverName string, protos []string) (*tls.Conn, error) {
	cfg := &tls.Config{}
	if t.opts.TLSConfig != nil {
		cfg = t.opts.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	cfg.NextProtos = protos

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, errors.Wrap(err, "tls handshake")
	}

	return tlsConn, nil
}

// dialTunnel opens a tunnel to addr through an HTTP proxy.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-9.3.6
func (s *session) dialTunnel(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := s.t.dialer.DialContext(ctx, "tcp", hostport(s.proxy))
	if err != nil {
		return nil, errors.Wrap(err, "dialing proxy")
	}

	if s.proxy.Scheme == "https" {
		tlsConn, err := s.t.handshake(ctx, conn, s.proxy.Hostname(), []string{string(semantic.ALPNHTTP11)})
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "connecting proxy")
		}
		conn = tlsConn
	}

	tunnel, err := s.connect(ctx, conn, addr)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return tunnel, nil
}

func (s *session) connect(ctx context.Context, conn net.Conn, addr string) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(s.t.past()) })
	defer stop()

	headers := []http.Field{{Name: "Host", Value: addr}}
	if u := s.proxy.User; u != nil {
		password, _ := u.Password()
		credentials := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + password))
		headers = append(headers, http.Field{Name: "Proxy-Authorization", Value: "Basic " + credentials})
	}

	enc := http.NewRequestEncoder(conn, s.t.opts.Encode)
	err := enc.Encode(http.Request{
		RequestLine: http.RequestLine{
			Method:  string(semantic.MethodConnect),
			Target:  addr,
			Version: http.Version11,
		},
		Headers: headers,
	})
	if err != nil {
		return nil, ctxErr(ctx, errors.Wrap(err, "writing CONNECT request"))
	}

	// Bytes following the header block already belong to the tunnel.
	ur := iolib.NewUntilReader(conn)
	head, err := ur.ReadUntilLimit([]byte("\r\n\r\n"), maxTunnelResponse)
	if err != nil {
		return nil, ctxErr(ctx, errors.Wrap(err, "reading CONNECT response"))
	}

	line, _, _ := bytes.Cut(head, []byte("\r\n"))
	statusLine, err := http.ParseStatusLine(line)
	if err != nil {
		return nil, errors.Wrap(err, "parsing CONNECT response")
	}
	if statusLine.StatusCode/100 != 2 {
		return nil, errors.Wrapf(ErrTunnelRefused, "%d %s", statusLine.StatusCode, statusLine.ReasonPhrase)
	}

	if !stop() {
		return nil, ctxErr(ctx, errors.New("connecting proxy"))
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, errors.Wrap(err, "resetting deadline")
	}

	if ur.Buffered() > 0 {
		return &prefixedConn{Conn: conn, r: ur}, nil
	}
	return conn, nil
}

// prefixedConn serves bytes read ahead of the tunnel before reading conn.
type prefixedConn struct {
	net.Conn
	r io.Reader
}

func (c *prefixedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

// forwardDialer lets the SOCKS5 dialer reach the proxy through [Dialer].
type forwardDialer struct{ Dialer }

func (d forwardDialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

// dialSOCKS connects to addr through a SOCKS5 proxy.
// Host names are resolved by the proxy for both socks5 and socks5h.
func (s *session) dialSOCKS(ctx context.Context, addr string) (net.Conn, error) {
	var auth *proxy.Auth
	if u := s.proxy.User; u != nil {
		password, _ := u.Password()
		auth = &proxy.Auth{User: u.Username(), Password: password}
	}

	d, err := proxy.SOCKS5("tcp", hostport(s.proxy), auth, forwardDialer{s.t.dialer})
	if err != nil {
		return nil, errors.Wrap(err, "creating socks5 dialer")
	}

	conn, err := d.(proxy.ContextDialer).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "dialing through socks5 proxy")
	}

	return conn, nil
}

// past returns a deadline which has already passed, by the transport clock.
func (t *Transport) past() time.Time { return t.clock.Now().Add(-time.Second) }

// ctxErr prefers the error of ctx, as it explains why IO was interrupted.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), err.Error())
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
