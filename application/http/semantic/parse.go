package semantic

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	"httpcore/application/http"
	"httpcore/application/http/content"
	"httpcore/application/http/semantic/status"
	"httpcore/application/http/transfer"

	"github.com/pkg/errors"
)

type ParseOptions struct {
	Decode http.DecodeOptions

	// DecodeContent decodes body with Content-Encoding.
	// Body with an unsupported coding is left as is.
	DecodeContent bool

	// TransferCoders adds decoders for transfer codings other than chunked, gzip and deflate.
	TransferCoders []transfer.Coder
}

var DefaultParseOptions = ParseOptions{
	Decode:        http.DefaultDecodeOptions,
	DecodeContent: true,
}

// RequestInfo identifies the request a response answers.
type RequestInfo struct {
	Method Method
	URI    string
}

// ParseError reports raw bytes which could not be parsed into a response.
type ParseError struct {
	Raw []byte
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing response(%d bytes): %s", len(e.Raw), e.Err)
}

func (e *ParseError) Cause() error  { return e.Err }
func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(raw []byte, err error) *ParseError {
	return &ParseError{Raw: bytes.Clone(raw), Err: err}
}

// ParseResponse parses raw bytes of a whole response into [Response].
// Empty raw means no data was received, which is reported with status code -1.
// Any failure is reported as [*ParseError].
func ParseResponse(raw []byte, info RequestInfo, opts ParseOptions) (*Response, error) {
	response := &Response{
		statusCode: -1,
		method:     info.Method,
		uri:        info.URI,
		body:       []byte{},
		raw:        bytes.Clone(raw),
	}
	if len(raw) == 0 {
		response.raw = []byte{}
		return response, nil
	}

	rd := http.NewResponseDecoder(bytes.NewReader(raw), opts.Decode)

	var msg http.Response
	for {
		if err := rd.Decode(&msg); err != nil {
			return nil, newParseError(raw, err)
		}

		// Interim responses are followed by the final response.
		// 101 is final for this connection.
		// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.2
		if status.IsInformational(msg.StatusCode) && msg.StatusCode != status.SwitchingProtocols.Code {
			continue
		}
		break
	}

	response.version = msg.Version
	response.statusCode = int(msg.StatusCode)
	response.reasonPhrase = msg.ReasonPhrase
	if response.reasonPhrase == "" {
		response.reasonPhrase = status.ReasonPhrase(msg.StatusCode)
	}
	// Set-Cookie lines are moved into cookies. Raw keeps them as received.
	for _, f := range msg.Headers {
		if !strings.EqualFold(f.Name, "Set-Cookie") {
			response.headers.Add(f.Name, f.Value)
			continue
		}

		c, err := ParseSetCookie(f.Value)
		if err != nil {
			continue
		}
		response.cookies = append(response.cookies, c)
	}

	if HasResponseBody(info.Method, msg.StatusCode) {
		body, err := readBody(msg.Body, response, opts)
		if err != nil {
			return nil, newParseError(raw, err)
		}
		response.body = body
	}

	return response, nil
}

func readBody(r io.Reader, response *Response, opts ParseOptions) ([]byte, error) {
	cp := transfer.NewCodingPipeliner(opts.TransferCoders)

	br, err := bodyReader(r, response.headers, cp, func(trailers Headers) {
		response.trailers = trailers
	})
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, errors.Wrap(err, "reading body")
	}

	if !opts.DecodeContent || len(body) == 0 {
		return body, nil
	}

	codings := content.ParseCodings(strings.Join(response.headers.Values("Content-Encoding"), ","))
	for _, coding := range codings {
		if !content.Supported(coding) {
			return body, nil
		}
	}

	decoded, err := content.Decode(body, codings)
	if err != nil {
		return nil, errors.Wrap(err, "decoding content coding")
	}
	response.uncompressed = slices.ContainsFunc(codings, func(c content.Coding) bool {
		return c != content.CodingIdentity
	})

	return decoded, nil
}
