package semantic

import (
	"io"
	"net/url"
	"strings"
	"time"
)

// Request is everything needed to send a single request.
// It is built up by the client and handed to the transport.
type Request struct {
	Method Method
	URL    *url.URL

	// ALPN is protocol preference. ALPNUnset lets the transport decide.
	ALPN ALPN
	// Proxy is nil when the request is sent directly.
	Proxy *url.URL

	Headers Headers
	// Params are appended to the query of URL in order.
	Params [][2]string

	// Body is nil when there's no payload.
	Body Body
	// ContentType overrides Content-Type header and the default of Body.
	ContentType string

	Cookies []Cookie

	// Timeout bounds the round trip. Zero means no timeout.
	Timeout time.Duration

	// OnBody is called with pieces of the response payload as they arrive,
	// without transfer coding. Content coding is left as received.
	// p must not be retained after the call.
	OnBody func(p []byte)
}

// Clone returns deep copy of r.
func (r *Request) Clone() *Request {
	clone := *r

	if r.URL != nil {
		u := *r.URL
		if r.URL.User != nil {
			u.User = cloneUserinfo(r.URL.User)
		}
		clone.URL = &u
	}
	if r.Proxy != nil {
		u := *r.Proxy
		if r.Proxy.User != nil {
			u.User = cloneUserinfo(r.Proxy.User)
		}
		clone.Proxy = &u
	}

	clone.Headers = r.Headers.Clone()

	if r.Params != nil {
		clone.Params = make([][2]string, len(r.Params))
		copy(clone.Params, r.Params)
	}

	if b, ok := r.Body.(BytesBody); ok {
		clone.Body = BytesBody(b.Bytes())
	}

	if r.Cookies != nil {
		clone.Cookies = make([]Cookie, 0, len(r.Cookies))
		for _, c := range r.Cookies {
			clone.Cookies = append(clone.Cookies, c.Clone())
		}
	}

	return &clone
}

func cloneUserinfo(u *url.Userinfo) *url.Userinfo {
	if password, ok := u.Password(); ok {
		return url.UserPassword(u.Username(), password)
	}
	return url.User(u.Username())
}

// TargetURL returns URL with Params merged into its query.
func (r *Request) TargetURL() *url.URL {
	if r.URL == nil {
		return nil
	}

	u := *r.URL
	if len(r.Params) == 0 {
		return &u
	}

	// url.Values would sort the keys. Keep the order instead.
	pairs := make([]string, 0, len(r.Params)+1)
	if u.RawQuery != "" {
		pairs = append(pairs, u.RawQuery)
	}
	for _, p := range r.Params {
		pairs = append(pairs, url.QueryEscape(p[0])+"="+url.QueryEscape(p[1]))
	}
	u.RawQuery = strings.Join(pairs, "&")

	return &u
}

// EnsureHeadersSet writes Content-Type and Cookie headers from the other fields.
// Content-Type is taken from ContentType, then an existing header, then the default of Body.
// Cookies are appended to the existing Cookie header.
// It should be called once, on the request about to be sent.
func (r *Request) EnsureHeadersSet() {
	switch {
	case r.ContentType != "":
		r.Headers.Set("Content-Type", r.ContentType)
	case r.Headers.Has("Content-Type"):
	case r.Body != nil:
		r.Headers.Set("Content-Type", r.Body.ContentType())
	}

	if len(r.Cookies) > 0 {
		pairs := r.Headers.Values("Cookie")
		pairs = append(pairs, CookieHeader(r.Cookies))
		r.Headers.Set("Cookie", strings.Join(pairs, "; "))
	}
}

// BodyBytes returns payload of r, or nil if it has no body.
func (r *Request) BodyBytes() []byte {
	if r.Body == nil {
		return nil
	}
	return r.Body.Bytes()
}

// BodyWriter returns a writer passing everything written to OnBody.
// It returns nil if OnBody is not set.
func (r *Request) BodyWriter() io.Writer {
	if r.OnBody == nil {
		return nil
	}
	return bodyFunc(r.OnBody)
}

type bodyFunc func(p []byte)

func (f bodyFunc) Write(p []byte) (int, error) {
	if len(p) > 0 {
		f(p)
	}
	return len(p), nil
}
