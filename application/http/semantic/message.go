package semantic

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"httpcore/application/http"
	"httpcore/application/http/semantic/status"
	"httpcore/application/http/transfer"
	iolib "httpcore/lib/io"

	"github.com/pkg/errors"
)

var ErrInvalidContentLength = errors.New("content length is invalid")

// extractContentLength extracts content length from headers.
// ok is false if there's no Content-Length.
func extractContentLength(h Headers) (length uint, ok bool, err error) {
	values := h.Tokens("Content-Length")
	if len(values) == 0 {
		return 0, false, nil
	}

	// Any value greater than or equal to 0 is valid.
	// But let's restrict it to 64bit uint.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.6-10
	for _, v := range values {
		if v != values[0] {
			// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3-2.5
			return 0, false, errors.Wrapf(ErrInvalidContentLength, "differing values %q", values)
		}
	}

	len64, err := strconv.ParseUint(values[0], 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(ErrInvalidContentLength, "%q", values[0])
	}

	return uint(len64), true, nil
}

func transferCodings(h Headers) []transfer.Coding {
	return transfer.ParseCodings(strings.Join(h.Values("Transfer-Encoding"), ","))
}

// IsChunked reports whether the message body is delimited by the chunked coding.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3-2.4.1
func IsChunked(h Headers) bool {
	codings := transferCodings(h)
	return len(codings) > 0 && codings[len(codings)-1] == transfer.CodingChunked
}

// HasResponseBody reports whether a response of code, answering method, can have content.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3-2.1
func HasResponseBody(method Method, code uint) bool {
	return method != MethodHead && !status.HasNoContent(code)
}

// bodyReader returns reader which yields the message body from r, with the transfer codings removed.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3
func bodyReader(
	r io.Reader,
	h Headers,
	cp *transfer.CodingPipeliner,
	onTrailer func(trailers Headers),
) (io.Reader, error) {
	if codings := transferCodings(h); len(codings) > 0 {
		// Transfer-Encoding overrides Content-Length.
		body, err := cp.Decode(r, codings, func(f []http.Field) { onTrailer(NewHeaders(f)) })
		if err != nil {
			return nil, errors.Wrap(err, "decoding transfer coding")
		}
		return body, nil
	}

	length, ok, err := extractContentLength(h)
	if err != nil {
		return nil, err
	}
	if ok {
		return iolib.ExactReader(r, length), nil
	}

	// Close-delimited.
	return r, nil
}

// ReadResponse reads the next whole response to method off br, following its framing.
// Payload of the final response is copied to body without its transfer coding.
// A nil body discards it.
// It reports whether the connection may carry another exchange afterwards.
func ReadResponse(br *bufio.Reader, method Method, opts http.DecodeOptions, body io.Writer) (reusable bool, err error) {
	rd := http.NewResponseDecoder(br, opts)

	var msg http.Response
	for {
		if err := rd.Decode(&msg); err != nil {
			return false, err
		}
		if status.IsInformational(msg.StatusCode) && msg.StatusCode != status.SwitchingProtocols.Code {
			continue
		}
		break
	}

	if msg.StatusCode == status.SwitchingProtocols.Code {
		// The connection now speaks another protocol.
		return false, nil
	}

	h := NewHeaders(msg.Headers)
	reusable = isPersistent(msg.Version, h)
	if !HasResponseBody(method, msg.StatusCode) {
		return reusable, nil
	}

	var payload io.Reader
	switch {
	case IsChunked(h):
		payload = transfer.NewChunkedReader(msg.Body)
	case h.Has("Transfer-Encoding"):
		// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3-2.4.2
		payload, reusable = msg.Body, false
	default:
		length, ok, err := extractContentLength(h)
		if err != nil {
			return false, err
		}
		if ok {
			payload = iolib.ExactReader(msg.Body, length)
		} else {
			payload, reusable = msg.Body, false
		}
	}

	if body == nil {
		body = io.Discard
	}
	if _, err := io.Copy(body, payload); err != nil {
		return false, errors.Wrap(err, "reading body")
	}

	return reusable, nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-9.3
func isPersistent(version http.Version, h Headers) bool {
	if h.HasToken("Connection", "close") {
		return false
	}
	if version == http.Version10 {
		return h.HasToken("Connection", "keep-alive")
	}
	return true
}
