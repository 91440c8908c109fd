// Package transfer decodes transfer codings of a message body.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7
package transfer

import (
	"io"
	"strings"

	"httpcore/application/http"
	"httpcore/application/http/content"

	"github.com/pkg/errors"
)

type Coding string

const (
	CodingChunked Coding = "chunked"
	CodingGzip    Coding = "gzip"
	CodingXGzip   Coding = "x-gzip"
	CodingDeflate Coding = "deflate"
)

type Coder interface {
	Coding() Coding
	NewReader(r io.Reader) (io.Reader, error)
}

type chunkedCoder struct{}

func NewChunkedCoder() Coder { return chunkedCoder{} }

func (chunkedCoder) Coding() Coding { return CodingChunked }

func (chunkedCoder) NewReader(r io.Reader) (io.Reader, error) {
	return NewChunkedReader(r), nil
}

// contentCoder reuses content coding decoders, which share the registry of codings.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7.2
type contentCoder struct{ coding Coding }

func (cc contentCoder) Coding() Coding { return cc.coding }

func (cc contentCoder) NewReader(r io.Reader) (io.Reader, error) {
	return content.NewReader(content.Coding(cc.coding), r)
}

type CodingPipeliner struct{ coders map[Coding]Coder }

func NewCodingPipeliner(customs []Coder) *CodingPipeliner {
	cp := &CodingPipeliner{}
	cp.coders = map[Coding]Coder{
		CodingChunked: NewChunkedCoder(),
		CodingGzip:    contentCoder{CodingGzip},
		CodingXGzip:   contentCoder{CodingXGzip},
		CodingDeflate: contentCoder{CodingDeflate},
	}

	for _, coder := range customs {
		cp.coders[coder.Coding()] = coder
	}

	return cp
}

var ErrUnsupportedCoding = errors.New("coding is unsupported")

// ParseCodings splits value of Transfer-Encoding in order of application.
func ParseCodings(value string) []Coding {
	codings := make([]Coding, 0)
	for _, s := range strings.Split(value, ",") {
		// Transfer parameters are not used by any supported coding.
		s, _, _ = strings.Cut(s, ";")
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		codings = append(codings, Coding(s))
	}
	return codings
}

// Decode returns reader which undoes codings from r, in reverse order of application.
// onTrailer is called with the trailer section of the chunked coding, if any.
func (cp *CodingPipeliner) Decode(r io.Reader, codings []Coding, onTrailer func(f []http.Field)) (io.Reader, error) {
	for idx := len(codings) - 1; idx >= 0; idx-- {
		coding := codings[idx]
		coder, ok := cp.coders[coding]
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedCoding, "%q", coding)
		}

		decoded, err := coder.NewReader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "creating %q reader", coding)
		}

		if cr, ok := decoded.(*ChunkedReader); ok && onTrailer != nil {
			cr.SetOnTrailerReceived(func(f []http.Field) {
				if len(f) == 0 {
					return
				}
				onTrailer(f)
			})
		}

		r = decoded
	}

	return r, nil
}
