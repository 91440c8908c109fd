package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"httpcore/application/http"
	"httpcore/application/http/semantic"
	"httpcore/application/http/semantic/status"

	"github.com/pkg/errors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

const (
	// Advertised to the peer.
	initialWindowSize  = 4 << 20
	maxHeaderListSize  = 10 << 20
	initialHeaderTable = 4096

	// Reference: https://datatracker.ietf.org/doc/html/rfc9113#section-6.5.2
	defaultWindowSize   = 65535
	defaultMaxFrameSize = 16 << 10

	maxStreamID = 1<<31 - 1
)

var ErrMalformedHeaders = errors.New("malformed http2 header block")

// h2Conn exchanges requests one at a time over an HTTP/2 connection.
// Header fields are kept in the order they arrive on the wire.
// Responses are rendered in HTTP/1 syntax, with HTTP/2 as their version.
type h2Conn struct {
	conn net.Conn
	wbuf *bufio.Writer
	fr   *http2.Framer

	hbuf *bytes.Buffer
	henc *hpack.Encoder

	peer peerSettings
	// sendWindow is the connection-level window for DATA we send.
	sendWindow int64

	nextStreamID uint32
	goAway       bool
	broken       bool

	t *Transport
}

// peerSettings are the limits the peer announced with SETTINGS.
type peerSettings struct {
	maxFrameSize      uint32
	initialWindowSize uint32
	maxHeaderListSize uint32
}

// h2Stream is the state of the exchange in flight.
type h2Stream struct {
	id         uint32
	sendWindow int64

	status   uint
	fields   []http.Field
	trailers []http.Field
	body     *bytes.Buffer
	onBody   io.Writer

	done bool
}

func (st *h2Stream) hasHeaders() bool { return st.status != 0 }

// newH2Conn sends the connection preface. The server preface is read along with the first response.
// Reference: https://datatracker.ietf.org/doc/html/rfc9113#section-3.4
func newH2Conn(conn net.Conn, t *Transport) (*h2Conn, error) {
	wbuf := bufio.NewWriter(conn)
	fr := http2.NewFramer(wbuf, bufio.NewReader(conn))
	fr.ReadMetaHeaders = hpack.NewDecoder(initialHeaderTable, nil)
	fr.MaxHeaderListSize = maxHeaderListSize

	hbuf := bytes.NewBuffer(nil)

	c := &h2Conn{
		conn: conn,
		wbuf: wbuf,
		fr:   fr,
		hbuf: hbuf,
		henc: hpack.NewEncoder(hbuf),
		peer: peerSettings{
			maxFrameSize:      defaultMaxFrameSize,
			initialWindowSize: defaultWindowSize,
			maxHeaderListSize: 0xffffffff,
		},
		sendWindow:   defaultWindowSize,
		nextStreamID: 1,
		t:            t,
	}

	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "starting http2 connection")
	}

	return c, nil
}

func (c *h2Conn) handshake() error {
	if d := c.t.opts.Timeout.Write; d > 0 {
		_ = c.conn.SetWriteDeadline(c.t.clock.Now().Add(d))
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := c.wbuf.WriteString(http2.ClientPreface); err != nil {
		return err
	}
	err := c.fr.WriteSettings(
		http2.Setting{ID: http2.SettingEnablePush, Val: 0},
		http2.Setting{ID: http2.SettingInitialWindowSize, Val: initialWindowSize},
		http2.Setting{ID: http2.SettingMaxHeaderListSize, Val: maxHeaderListSize},
	)
	if err != nil {
		return err
	}
	if err := c.fr.WriteWindowUpdate(0, initialWindowSize-defaultWindowSize); err != nil {
		return err
	}

	return c.wbuf.Flush()
}

func (c *h2Conn) roundtrip(ctx context.Context, req *semantic.Request) (_ []byte, err error) {
	now := c.t.clock.Now()
	if d := c.t.opts.Timeout.Write; d > 0 {
		_ = c.conn.SetWriteDeadline(now.Add(d))
	}
	if d := c.t.opts.Timeout.Read; d > 0 {
		_ = c.conn.SetReadDeadline(now.Add(d))
	}

	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(c.t.past()) })
	defer func() {
		if err != nil {
			c.broken = true
		}
		if !stop() {
			c.broken = true
			if err != nil {
				err = ctxErr(ctx, err)
			}
		}
	}()

	st := &h2Stream{
		id:         c.nextStreamID,
		sendWindow: int64(c.peer.initialWindowSize),
		body:       bytes.NewBuffer(nil),
		onBody:     req.BodyWriter(),
	}
	c.nextStreamID += 2

	body := req.BodyBytes()
	if err := c.writeHeaders(st, req, body); err != nil {
		return nil, errors.Wrap(err, "writing headers")
	}
	if err := c.writeBody(st, body); err != nil {
		return nil, errors.Wrap(err, "writing body")
	}

	for !st.done {
		if err := c.readFrame(st); err != nil {
			return nil, errors.Wrap(err, "reading response")
		}
	}
	if err := c.wbuf.Flush(); err != nil {
		return nil, errors.Wrap(err, "flushing")
	}

	_ = c.conn.SetDeadline(time.Time{})

	raw, err := c.render(st)
	if err != nil {
		return nil, errors.Wrap(err, "rendering http2 response")
	}

	return raw, nil
}

// Connection-specific fields are not allowed in HTTP/2.
// Reference: https://datatracker.ietf.org/doc/html/rfc9113#section-8.2.2
var connectionFields = []string{"Connection", "Keep-Alive", "Proxy-Connection", "Transfer-Encoding", "Upgrade"}

func isConnectionField(f http.Field) bool {
	if strings.EqualFold(f.Name, "TE") {
		return !strings.EqualFold(strings.TrimSpace(f.Value), "trailers")
	}
	return slices.ContainsFunc(connectionFields, func(name string) bool { return strings.EqualFold(name, f.Name) })
}

// requestHeaderFields lists pseudo-header fields first, then the headers as set.
// Content-Length is recomputed from the body.
// Reference: https://datatracker.ietf.org/doc/html/rfc9113#section-8.3.1
func requestHeaderFields(req *semantic.Request, body []byte) []hpack.HeaderField {
	target := req.TargetURL()

	authority, ok := req.Headers.Get("Host")
	if !ok {
		authority = target.Host
	}

	fields := []hpack.HeaderField{
		{Name: ":method", Value: string(req.Method)},
		{Name: ":scheme", Value: target.Scheme},
		{Name: ":authority", Value: authority},
		{Name: ":path", Value: target.RequestURI()},
	}

	for _, f := range req.Headers.Fields() {
		switch {
		case strings.EqualFold(f.Name, "Host"), strings.EqualFold(f.Name, "Content-Length"):
		case isConnectionField(f):
		default:
			fields = append(fields, hpack.HeaderField{Name: strings.ToLower(f.Name), Value: f.Value})
		}
	}

	expectsBody := req.Method == semantic.MethodPost || req.Method == semantic.MethodPut
	if len(body) > 0 || expectsBody {
		fields = append(fields, hpack.HeaderField{Name: "content-length", Value: strconv.Itoa(len(body))})
	}

	return fields
}

func (c *h2Conn) writeHeaders(st *h2Stream, req *semantic.Request, body []byte) error {
	fields := requestHeaderFields(req, body)

	var size uint32
	for _, f := range fields {
		size += f.Size()
	}
	if size > c.peer.maxHeaderListSize {
		return errors.Errorf("header list of %d bytes exceeds limit of peer, %d", size, c.peer.maxHeaderListSize)
	}

	c.hbuf.Reset()
	for _, f := range fields {
		if err := c.henc.WriteField(f); err != nil {
			return err
		}
	}

	// Header block larger than a frame continues in CONTINUATION frames.
	block := c.hbuf.Bytes()
	first := true
	for len(block) > 0 || first {
		chunk := block
		if len(chunk) > int(c.peer.maxFrameSize) {
			chunk = chunk[:c.peer.maxFrameSize]
		}
		block = block[len(chunk):]
		endHeaders := len(block) == 0

		var err error
		if first {
			err = c.fr.WriteHeaders(http2.HeadersFrameParam{
				StreamID:      st.id,
				BlockFragment: chunk,
				EndStream:     len(body) == 0,
				EndHeaders:    endHeaders,
			})
			first = false
		} else {
			err = c.fr.WriteContinuation(st.id, endHeaders, chunk)
		}
		if err != nil {
			return err
		}
	}

	return c.wbuf.Flush()
}

// writeBody sends body in DATA frames, as far as flow control allows.
// Reference: https://datatracker.ietf.org/doc/html/rfc9113#section-5.2
func (c *h2Conn) writeBody(st *h2Stream, body []byte) error {
	for len(body) > 0 {
		if st.done {
			// The server answered without waiting for the rest.
			return nil
		}

		n := min(int64(len(body)), int64(c.peer.maxFrameSize), c.sendWindow, st.sendWindow)
		if n <= 0 {
			if err := c.readFrame(st); err != nil {
				return errors.Wrap(err, "waiting for window update")
			}
			continue
		}

		chunk := body[:n]
		body = body[n:]
		c.sendWindow -= n
		st.sendWindow -= n

		if err := c.fr.WriteData(st.id, len(body) == 0, chunk); err != nil {
			return err
		}
	}

	return c.wbuf.Flush()
}

// readFrame reads and handles a single frame.
// Pending writes are flushed first, as the peer might be waiting for them.
func (c *h2Conn) readFrame(st *h2Stream) error {
	if err := c.wbuf.Flush(); err != nil {
		return err
	}

	f, err := c.fr.ReadFrame()
	if err != nil {
		return err
	}

	switch f := f.(type) {
	case *http2.SettingsFrame:
		if f.IsAck() {
			return nil
		}
		if err := f.ForeachSetting(func(s http2.Setting) error { return c.applySetting(st, s) }); err != nil {
			return err
		}
		return c.fr.WriteSettingsAck()

	case *http2.PingFrame:
		if f.IsAck() {
			return nil
		}
		return c.fr.WritePing(true, f.Data)

	case *http2.WindowUpdateFrame:
		switch f.StreamID {
		case 0:
			c.sendWindow += int64(f.Increment)
		case st.id:
			st.sendWindow += int64(f.Increment)
		}
		return nil

	case *http2.GoAwayFrame:
		c.goAway = true
		if f.LastStreamID < st.id {
			return http2.GoAwayError{LastStreamID: f.LastStreamID, ErrCode: f.ErrCode, DebugData: string(f.DebugData())}
		}
		return nil

	case *http2.RSTStreamFrame:
		if f.StreamID != st.id {
			return nil
		}
		if f.ErrCode == http2.ErrCodeNo && st.hasHeaders() && st.done {
			return nil
		}
		return http2.StreamError{StreamID: f.StreamID, Code: f.ErrCode}

	case *http2.MetaHeadersFrame:
		if f.StreamID != st.id {
			return nil
		}
		return c.handleHeaders(st, f)

	case *http2.DataFrame:
		if f.StreamID != st.id {
			return nil
		}
		return c.handleData(st, f)
	}

	// PRIORITY and unknown frames carry nothing for us.
	return nil
}

func (c *h2Conn) applySetting(st *h2Stream, s http2.Setting) error {
	if err := s.Valid(); err != nil {
		return err
	}

	switch s.ID {
	case http2.SettingMaxFrameSize:
		c.peer.maxFrameSize = s.Val
	case http2.SettingInitialWindowSize:
		// The change applies to open streams too, and may make their window negative.
		// Reference: https://datatracker.ietf.org/doc/html/rfc9113#section-6.9.2
		st.sendWindow += int64(s.Val) - int64(c.peer.initialWindowSize)
		c.peer.initialWindowSize = s.Val
	case http2.SettingMaxHeaderListSize:
		c.peer.maxHeaderListSize = s.Val
	case http2.SettingHeaderTableSize:
		c.henc.SetMaxDynamicTableSizeLimit(s.Val)
	}
	return nil
}

func (c *h2Conn) handleHeaders(st *h2Stream, f *http2.MetaHeadersFrame) error {
	if f.Truncated {
		return errors.Wrap(ErrMalformedHeaders, "header list too large")
	}

	fields := make([]http.Field, 0, len(f.Fields))
	for _, hf := range f.RegularFields() {
		fields = append(fields, http.Field{Name: hf.Name, Value: hf.Value})
	}

	if st.hasHeaders() {
		// Reference: https://datatracker.ietf.org/doc/html/rfc9113#section-8.1
		if !f.StreamEnded() {
			return errors.Wrap(ErrMalformedHeaders, "trailer section does not end the stream")
		}
		st.trailers = fields
		st.done = true
		return nil
	}

	code, err := strconv.ParseUint(f.PseudoValue("status"), 10, 16)
	if err != nil || code < 100 || code > 999 {
		return errors.Wrapf(ErrMalformedHeaders, "invalid status %q", f.PseudoValue("status"))
	}

	if status.IsInformational(uint(code)) {
		// Interim responses are not rendered.
		return nil
	}

	st.status = uint(code)
	st.fields = fields
	st.done = f.StreamEnded()
	return nil
}

func (c *h2Conn) handleData(st *h2Stream, f *http2.DataFrame) error {
	if !st.hasHeaders() {
		return errors.Wrap(ErrMalformedHeaders, "data before headers")
	}

	data := f.Data()
	st.body.Write(data)
	if st.onBody != nil && len(data) > 0 {
		if _, err := st.onBody.Write(data); err != nil {
			return err
		}
	}

	if f.StreamEnded() {
		st.done = true
	}

	// Return what was consumed, padding included.
	if n := f.Header().Length; n > 0 {
		if err := c.fr.WriteWindowUpdate(0, n); err != nil {
			return err
		}
		if !st.done {
			if err := c.fr.WriteWindowUpdate(st.id, n); err != nil {
				return err
			}
		}
	}

	return nil
}

// render writes the response of st in HTTP/1 message syntax.
// Trailers can only be carried by the chunked coding there, so the body gets chunked when it has any.
func (c *h2Conn) render(st *h2Stream) ([]byte, error) {
	fields := st.fields
	body := st.body.Bytes()

	var rd io.Reader = bytes.NewReader(body)
	if len(st.trailers) > 0 {
		fields = slices.DeleteFunc(slices.Clone(fields), func(f http.Field) bool {
			return strings.EqualFold(f.Name, "Content-Length")
		})
		fields = append(fields, http.Field{Name: "Transfer-Encoding", Value: "chunked"})
		rd = bytes.NewReader(chunked(body, st.trailers))
	}

	buf := bytes.NewBuffer(nil)
	enc := http.NewResponseEncoder(buf, c.t.opts.Encode)
	err := enc.Encode(http.Response{
		StatusLine: http.StatusLine{
			Version:      http.Version20,
			StatusCode:   st.status,
			ReasonPhrase: status.ReasonPhrase(st.status),
		},
		Headers: fields,
		Body:    rd,
	})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7.1
func chunked(body []byte, trailers []http.Field) []byte {
	buf := bytes.NewBuffer(nil)
	if len(body) > 0 {
		buf.WriteString(strconv.FormatInt(int64(len(body)), 16))
		buf.WriteString("\r\n")
		buf.Write(body)
		buf.WriteString("\r\n")
	}

	buf.WriteString("0\r\n")
	for _, f := range trailers {
		buf.Write(f.Text())
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")

	return buf.Bytes()
}

func (c *h2Conn) reusable() bool {
	return !c.broken && !c.goAway && c.nextStreamID <= maxStreamID
}

func (c *h2Conn) close() error { return c.conn.Close() }
