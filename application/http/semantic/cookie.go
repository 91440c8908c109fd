package semantic

import (
	"strconv"
	"strings"
	"time"

	"httpcore/application/util/rule"

	"github.com/pkg/errors"
)

type SameSite string

const (
	SameSiteUnset  SameSite = ""
	SameSiteLax    SameSite = "Lax"
	SameSiteStrict SameSite = "Strict"
	SameSiteNone   SameSite = "None"
)

// Cookie is a name-value pair with the attributes given by Set-Cookie.
// Attributes are zero when absent.
// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-4.1
type Cookie struct {
	Name  string
	Value string

	MaxAge   *int
	Domain   string
	Path     string
	HttpOnly bool
	Secure   bool
	Expires  time.Time
	SameSite SameSite

	// Partitioned is the CHIPS attribute.
	// Reference: https://datatracker.ietf.org/doc/html/draft-cutler-httpbis-partitioned-cookies
	Partitioned bool
}

func (c Cookie) Clone() Cookie {
	if c.MaxAge != nil {
		maxAge := *c.MaxAge
		c.MaxAge = &maxAge
	}
	return c
}

// Pair returns cookie-pair as it is sent in Cookie header.
func (c Cookie) Pair() string { return c.Name + "=" + c.Value }

var ErrMalformedCookie = errors.New("cookie is malformed")

// ParseSetCookie parses value of Set-Cookie.
// Unknown attributes and attributes with invalid value are ignored.
// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.2
func ParseSetCookie(value string) (Cookie, error) {
	parts := strings.Split(value, ";")

	name, val, found := strings.Cut(parts[0], "=")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return Cookie{}, errors.Wrapf(ErrMalformedCookie, "%q", parts[0])
	}

	c := Cookie{
		Name:  name,
		Value: string(rule.Unquote([]byte(strings.TrimSpace(val)))),
	}

	for _, attr := range parts[1:] {
		k, v, _ := strings.Cut(attr, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)

		switch strings.ToLower(k) {
		case "max-age":
			// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.2.2
			if maxAge, err := strconv.Atoi(v); err == nil {
				c.MaxAge = &maxAge
			}
		case "expires":
			if t, err := parseCookieDate(v); err == nil {
				c.Expires = t
			}
		case "domain":
			// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.2.3
			c.Domain = strings.ToLower(strings.TrimPrefix(v, "."))
		case "path":
			c.Path = v
		case "secure":
			c.Secure = true
		case "httponly":
			c.HttpOnly = true
		case "samesite":
			switch strings.ToLower(v) {
			case "lax":
				c.SameSite = SameSiteLax
			case "strict":
				c.SameSite = SameSiteStrict
			case "none":
				c.SameSite = SameSiteNone
			}
		case "partitioned":
			c.Partitioned = true
		}
	}

	return c, nil
}

// Netscape cookie date, still sent by many servers.
const cookieDateFormat = "Mon, 02-Jan-2006 15:04:05 MST"

func parseCookieDate(raw string) (time.Time, error) {
	if t, err := ParseDate(raw); err == nil {
		return t, nil
	}
	return time.Parse(cookieDateFormat, raw)
}

// ParseCookies parses cookie-string(e.g. "a=1; b=2") as it is sent in Cookie header.
// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-4.2.1
func ParseCookies(raw string) ([]Cookie, error) {
	cookies := make([]Cookie, 0)
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		name, value, found := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, errors.Wrapf(ErrMalformedCookie, "%q", pair)
		}

		cookies = append(cookies, Cookie{Name: name, Value: strings.TrimSpace(value)})
	}

	return cookies, nil
}

// CookieHeader serializes cookies into a single Cookie header value.
// Attributes are not sent.
func CookieHeader(cookies []Cookie) string {
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Pair())
	}
	return strings.Join(pairs, "; ")
}
