package semantic

import (
	"time"

	"github.com/pkg/errors"
)

// DefaultPort returns well-known port of scheme, or 0 if unknown.
func DefaultPort(scheme string) uint16 {
	switch scheme {
	case "http":
		return 80
	case "https":
		return 443
	case "socks5", "socks5h":
		return 1080
	}
	return 0
}

type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"

	// MethodConnect is only used to open a tunnel through a proxy.
	MethodConnect Method = "CONNECT"
)

var ErrUnknownMethod = errors.New("unknown method")

// Methods returns every method a request can be sent with.
func Methods() []Method {
	return []Method{
		MethodGet, MethodPost, MethodPut, MethodDelete, MethodOptions, MethodTrace, MethodHead,
	}
}

// ParseMethod parses method name. Method names are case-sensitive.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-9.1-5
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownMethod, "%q", s)
}

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-9.2.1-3
func DefaultSafeMethods() []Method {
	return []Method{
		MethodGet, MethodHead, MethodOptions, MethodTrace,
	}
}

// IsIdempotent reports whether the request can be repeated without changing its intended effect.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-9.2.2
func (m Method) IsIdempotent() bool {
	switch m {
	case MethodPut, MethodDelete:
		return true
	}
	for _, safe := range DefaultSafeMethods() {
		if m == safe {
			return true
		}
	}
	return false
}

// ALPN is protocol identifier negotiated with TLS ALPN extension.
// Reference: https://www.iana.org/assignments/tls-extensiontype-values/tls-extensiontype-values.xhtml#alpn-protocol-ids
type ALPN string

const (
	// ALPNUnset lets the transport decide.
	ALPNUnset  ALPN = ""
	ALPNHTTP10 ALPN = "http/1.0"
	ALPNHTTP11 ALPN = "http/1.1"
	ALPNHTTP2  ALPN = "h2"
)

var ErrUnknownALPN = errors.New("unknown alpn protocol")

func ParseALPN(s string) (ALPN, error) {
	switch a := ALPN(s); a {
	case ALPNUnset, ALPNHTTP10, ALPNHTTP11, ALPNHTTP2:
		return a, nil
	}
	return "", errors.Wrapf(ErrUnknownALPN, "%q", s)
}

const (
	// Preferred format: IMF-fixdate
	imfFixDateFormat = time.RFC1123
	// Obsolete RFC 850 format
	rfc850DateFormat = time.RFC850
	// Obsolete asctime format
	asctimeDateFormat = time.ANSIC
)

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.7
func ParseDate(raw string) (time.Time, error) {
	layouts := []string{imfFixDateFormat, rfc850DateFormat, asctimeDateFormat}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errors.Errorf("invalid time format: %q", raw)
}
