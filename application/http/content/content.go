// Package content decodes content codings of a message body.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.4.1
package content

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

type Coding string

const (
	CodingIdentity Coding = "identity"
	CodingGzip     Coding = "gzip"
	CodingXGzip    Coding = "x-gzip"
	CodingDeflate  Coding = "deflate"
	CodingBrotli   Coding = "br"
	CodingZstd     Coding = "zstd"
)

var ErrUnsupportedCoding = errors.New("coding is unsupported")

// Supported reports whether NewReader can decode coding.
func Supported(coding Coding) bool {
	switch coding {
	case CodingIdentity, CodingGzip, CodingXGzip, CodingDeflate, CodingBrotli, CodingZstd:
		return true
	}
	return false
}

// ParseCodings splits a coding list(e.g. value of Content-Encoding) in order of application.
// Coding names are case-insensitive.
func ParseCodings(value string) []Coding {
	codings := make([]Coding, 0)
	for _, s := range strings.Split(value, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		codings = append(codings, Coding(s))
	}
	return codings
}

// NewReader returns reader which decodes r encoded with coding.
// The caller should close the reader to release decoder resources.
func NewReader(coding Coding, r io.Reader) (io.ReadCloser, error) {
	switch Coding(strings.ToLower(string(coding))) {
	case CodingIdentity:
		return io.NopCloser(r), nil

	case CodingGzip, CodingXGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading gzip header")
		}
		return gr, nil

	case CodingDeflate:
		return newDeflateReader(r)

	case CodingBrotli:
		return io.NopCloser(brotli.NewReader(r)), nil

	case CodingZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "creating zstd decoder")
		}
		return dec.IOReadCloser(), nil
	}

	return nil, errors.Wrapf(ErrUnsupportedCoding, "%q", coding)
}

// "deflate" is the zlib format, but some servers send raw deflate data without zlib header.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.4.1.2
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)

	header, err := br.Peek(2)
	if err == nil && isZlibHeader(header[0], header[1]) {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "reading zlib header")
		}
		return zr, nil
	}

	return flate.NewReader(br), nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc1950#section-2.2
func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0F == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// Decode decodes body encoded with codings.
// Codings are listed in the order they were applied, so they are undone in reverse order.
func Decode(body []byte, codings []Coding) ([]byte, error) {
	for idx := len(codings) - 1; idx >= 0; idx-- {
		decoded, err := decodeOne(codings[idx], body)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %q", codings[idx])
		}
		body = decoded
	}

	return body, nil
}

func decodeOne(coding Coding, body []byte) ([]byte, error) {
	r, err := NewReader(coding, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading decoded data")
	}

	return b, nil
}
