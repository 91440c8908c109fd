package client

import (
	"net/url"
	"strings"
	"time"

	"httpcore/application/http/semantic"
	"httpcore/application/util/rule"

	"github.com/tidwall/gjson"
)

// Builder accumulates configuration of the next request.
// Every setter validates its input and leaves the builder untouched on failure.
type Builder struct {
	req semantic.Request
}

func NewBuilder() *Builder {
	return &Builder{req: semantic.Request{Method: semantic.MethodGet}}
}

// Request returns deep copy of the request being built.
func (b *Builder) Request() *semantic.Request { return b.req.Clone() }

func validateField(name, value string) error {
	if name == "" {
		return invalidArgument("header name is empty")
	}
	// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.1
	if !rule.IsValidToken(name) {
		return invalidArgument("header name is not a token: %q", name)
	}
	if !rule.IsValidFieldValue(value) {
		return invalidArgument("header value of %q contains CR, LF or NUL", name)
	}
	return nil
}

// SetHeader replaces every header named name with a single one.
func (b *Builder) SetHeader(name, value string) error {
	if err := validateField(name, value); err != nil {
		return err
	}

	b.req.Headers.Set(name, value)
	return nil
}

// AddHeader appends a header. Duplicates are kept in order.
func (b *Builder) AddHeader(name, value string) error {
	if err := validateField(name, value); err != nil {
		return err
	}

	b.req.Headers.Add(name, value)
	return nil
}

// SetHeaderJSON replaces all the headers with members of a JSON object, in order.
// Non-string values are sent as their JSON text.
func (b *Builder) SetHeaderJSON(obj string) error {
	fields, err := jsonObjectPairs(obj)
	if err != nil {
		return err
	}

	var headers semantic.Headers
	for _, f := range fields {
		if err := validateField(f[0], f[1]); err != nil {
			return err
		}
		headers.Add(f[0], f[1])
	}

	b.req.Headers = headers
	return nil
}

func jsonObjectPairs(obj string) ([][2]string, error) {
	if !gjson.Valid(obj) {
		return nil, invalidArgument("invalid json: %q", obj)
	}

	parsed := gjson.Parse(obj)
	if !parsed.IsObject() {
		return nil, invalidArgument("json is not an object: %q", obj)
	}

	pairs := make([][2]string, 0)
	parsed.ForEach(func(key, value gjson.Result) bool {
		v := value.Raw
		if value.Type == gjson.String {
			v = value.Str
		}
		pairs = append(pairs, [2]string{key.String(), v})
		return true
	})

	return pairs, nil
}

// SetURL sets target of the request. It must be an absolute http(s) URL.
func (b *Builder) SetURL(raw string) error {
	u, err := parseTargetURL(raw)
	if err != nil {
		return err
	}

	b.req.URL = u
	return nil
}

func parseTargetURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, invalidArgument("url is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, newError(KindInvalidArgument, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, invalidArgument("url scheme should be http or https: %q", u.Redacted())
	}
	if u.Host == "" {
		return nil, invalidArgument("url has no host: %q", u.Redacted())
	}

	return u, nil
}

// SetProxy sets proxy URL. Supported schemes are http, https, socks5 and socks5h.
func (b *Builder) SetProxy(raw string) error {
	if raw == "" {
		return invalidArgument("proxy is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return newError(KindInvalidArgument, err)
	}

	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return invalidArgument("unsupported proxy scheme: %q", u.Redacted())
	}
	if u.Hostname() == "" {
		return invalidArgument("proxy has no host: %q", u.Redacted())
	}

	b.req.Proxy = u
	return nil
}

// ClearProxy lets the following requests be sent directly.
func (b *Builder) ClearProxy() { b.req.Proxy = nil }

// AddParam appends a query parameter. Duplicates are kept in order.
func (b *Builder) AddParam(name, value string) error {
	if name == "" {
		return invalidArgument("param name is empty")
	}

	b.req.Params = append(b.req.Params, [2]string{name, value})
	return nil
}

// SetParams replaces all the query parameters.
func (b *Builder) SetParams(params [][2]string) error {
	for _, p := range params {
		if p[0] == "" {
			return invalidArgument("param name is empty")
		}
	}

	b.req.Params = append([][2]string(nil), params...)
	return nil
}

// SetData sets form data or raw text body.
// A JSON object is converted into url-encoded form, keeping order of its members.
func (b *Builder) SetData(data string) error {
	trimmed := strings.TrimSpace(data)
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		pairs, err := jsonObjectPairs(trimmed)
		if err != nil {
			return err
		}

		encoded := make([]string, 0, len(pairs))
		for _, p := range pairs {
			encoded = append(encoded, url.QueryEscape(p[0])+"="+url.QueryEscape(p[1]))
		}
		data = strings.Join(encoded, "&")
	}

	b.req.Body = semantic.DataBody(data)
	return nil
}

// SetJSON sets JSON body. text must be valid JSON.
func (b *Builder) SetJSON(text string) error {
	if !gjson.Valid(text) {
		return invalidArgument("invalid json: %q", text)
	}

	b.req.Body = semantic.JSONBody(text)
	return nil
}

// SetBytes sets binary body. p is copied as is, NUL bytes included.
func (b *Builder) SetBytes(p []byte) error {
	body := make([]byte, len(p))
	copy(body, p)

	b.req.Body = semantic.BytesBody(body)
	return nil
}

// SetContentType overrides Content-Type of the request.
func (b *Builder) SetContentType(contentType string) error {
	if contentType == "" {
		return invalidArgument("content type is empty")
	}
	if !rule.IsValidFieldValue(contentType) {
		return invalidArgument("content type contains CR, LF or NUL")
	}

	b.req.ContentType = contentType
	return nil
}

// SetCookie replaces all the cookies with cookie-string(e.g. "a=1; b=2").
func (b *Builder) SetCookie(raw string) error {
	if !rule.IsValidFieldValue(raw) {
		return invalidArgument("cookie contains CR, LF or NUL")
	}

	cookies, err := semantic.ParseCookies(raw)
	if err != nil {
		return newError(KindInvalidArgument, err)
	}

	b.req.Cookies = cookies
	return nil
}

// AddCookie appends a cookie.
func (b *Builder) AddCookie(name, value string) error {
	if name == "" {
		return invalidArgument("cookie name is empty")
	}
	if strings.ContainsAny(name, "=; ") || strings.Contains(value, ";") ||
		!rule.IsValidFieldValue(name) || !rule.IsValidFieldValue(value) {
		return invalidArgument("cookie %q has forbidden character", name)
	}

	b.req.Cookies = append(b.req.Cookies, semantic.Cookie{Name: name, Value: value})
	return nil
}

// SetALPN sets protocol preference. Empty string lets the transport decide.
func (b *Builder) SetALPN(alpn string) error {
	a, err := semantic.ParseALPN(alpn)
	if err != nil {
		return newError(KindInvalidArgument, err)
	}

	b.req.ALPN = a
	return nil
}

// SetTimeout bounds the whole round trip of each request.
// Zero disables it, leaving only per-operation timeouts of the transport.
func (b *Builder) SetTimeout(d time.Duration) error {
	if d < 0 {
		return invalidArgument("negative timeout: %s", d)
	}

	b.req.Timeout = d
	return nil
}

// SetOnBody streams the payload of the next response to f as it arrives.
// It only applies to the next request: f is cleared once the request completes.
// A nil f stops streaming.
func (b *Builder) SetOnBody(f func(p []byte)) { b.req.OnBody = f }
