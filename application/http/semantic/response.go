package semantic

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"

	"httpcore/application/http"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html/charset"
)

// Response is a parsed response. It is immutable; accessors hand out copies.
// The only way to build one is [ParseResponse].
type Response struct {
	version      http.Version
	statusCode   int
	reasonPhrase string

	headers  Headers
	cookies  []Cookie
	trailers Headers

	method Method
	uri    string

	body []byte
	raw  []byte

	uncompressed bool
}

// Protocol returns protocol text of the status line(e.g. "HTTP/1.1", "HTTP/2").
// It is empty if no data was received.
func (r *Response) Protocol() string {
	if r.statusCode < 0 {
		return ""
	}
	return r.version.String()
}

func (r *Response) Version() http.Version { return r.version }

// StatusCode returns -1 if no data was received.
func (r *Response) StatusCode() int { return r.statusCode }

func (r *Response) ReasonPhrase() string { return r.reasonPhrase }

func (r *Response) Headers() Headers { return r.headers.Clone() }

// Header returns the first value of the header named name.
func (r *Response) Header(name string) (string, bool) { return r.headers.Get(name) }

// Cookies returns cookies given by every Set-Cookie, in order.
func (r *Response) Cookies() []Cookie {
	cookies := make([]Cookie, 0, len(r.cookies))
	for _, c := range r.cookies {
		cookies = append(cookies, c.Clone())
	}
	return cookies
}

// Cookie returns the last cookie named name.
func (r *Response) Cookie(name string) (Cookie, bool) {
	for idx := len(r.cookies) - 1; idx >= 0; idx-- {
		if r.cookies[idx].Name == name {
			return r.cookies[idx].Clone(), true
		}
	}
	return Cookie{}, false
}

// Trailers returns trailer section of a chunked body.
func (r *Response) Trailers() Headers { return r.trailers.Clone() }

// Method returns method of the request which produced r.
func (r *Response) Method() Method { return r.method }

// URI returns target URI of the request which produced r.
func (r *Response) URI() string { return r.uri }

// Body returns copy of the decoded body. It is never nil.
// Headers describe the message as received, so Content-Encoding and Content-Length
// still refer to the encoded payload when [Response.Uncompressed] is true.
func (r *Response) Body() []byte {
	b := make([]byte, len(r.body))
	copy(b, r.body)
	return b
}

func (r *Response) Len() int { return len(r.body) }

// Uncompressed reports whether a content coding was removed from the body.
func (r *Response) Uncompressed() bool { return r.uncompressed }

// Raw returns bytes received from the transport, as is.
func (r *Response) Raw() []byte {
	b := make([]byte, len(r.raw))
	copy(b, r.raw)
	return b
}

// Text decodes body into UTF-8 text,
// using charset declared in Content-Type or sniffed from the body.
func (r *Response) Text() (string, error) {
	contentType, _ := r.headers.Get("Content-Type")

	cr, err := charset.NewReader(bytes.NewReader(r.body), contentType)
	if err != nil {
		return "", errors.Wrap(err, "creating charset reader")
	}

	b, err := io.ReadAll(cr)
	if err != nil {
		return "", errors.Wrap(err, "decoding charset")
	}

	return string(b), nil
}

// JSON unmarshals body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return errors.Wrap(err, "unmarshaling body")
	}
	return nil
}

// JSONPath looks up path(in gjson syntax, e.g. "data.items.0.name") in JSON body.
// The result doesn't exist if body isn't valid JSON.
func (r *Response) JSONPath(path string) gjson.Result {
	if !gjson.ValidBytes(r.body) {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.body, path)
}

// Location returns redirect target.
// Relative reference is resolved against URI.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-10.2.2
func (r *Response) Location() (string, bool) {
	loc, ok := r.headers.Get("Location")
	if !ok {
		return "", false
	}

	base, err := url.Parse(r.uri)
	if err != nil || r.uri == "" {
		return loc, true
	}

	ref, err := url.Parse(loc)
	if err != nil {
		return loc, true
	}

	return base.ResolveReference(ref).String(), true
}
