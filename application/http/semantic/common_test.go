package semantic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	tz := time.FixedZone("GMT", 0)
	expected := time.Date(1994, 11, 6, 8, 49, 37, 0, tz)

	testcases := []struct {
		desc    string
		input   string
		useTz   *time.Location
		wantErr bool
	}{
		{
			desc:  "IMF-fixdate",
			input: "Sun, 06 Nov 1994 08:49:37 GMT",
		},
		{
			desc:  "obsolete RFC 850 format",
			input: "Sunday, 06-Nov-94 08:49:37 GMT",
		},
		{
			// It has no timezone info.
			// So we'll manually add it in loop below.
			desc:  "ANSI C's asctime() format",
			input: "Sun Nov  6 08:49:37 1994",
			useTz: tz,
		},
		{
			desc:    "datetime",
			input:   "1994-11-06 08:49:37",
			wantErr: true,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			tm, err := ParseDate(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			if tc.useTz != nil {
				tm = tm.In(tc.useTz)
			}

			assert.NoError(t, err)
			assert.Equal(t, expected, tm)
		})
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range Methods() {
		parsed, err := ParseMethod(string(m))
		assert.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	_, err := ParseMethod("get")
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = ParseMethod("CONNECT")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestMethodIsIdempotent(t *testing.T) {
	testcases := []struct {
		method   Method
		expected bool
	}{
		{MethodGet, true},
		{MethodHead, true},
		{MethodOptions, true},
		{MethodTrace, true},
		{MethodPut, true},
		{MethodDelete, true},
		{MethodPost, false},
		{MethodConnect, false},
	}

	for _, tc := range testcases {
		t.Run(string(tc.method), func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.method.IsIdempotent())
		})
	}
}

func TestParseALPN(t *testing.T) {
	testcases := []struct {
		input    string
		expected ALPN
		wantErr  bool
	}{
		{input: "", expected: ALPNUnset},
		{input: "http/1.0", expected: ALPNHTTP10},
		{input: "http/1.1", expected: ALPNHTTP11},
		{input: "h2", expected: ALPNHTTP2},
		{input: "h3", wantErr: true},
		{input: "HTTP/1.1", wantErr: true},
	}

	for _, tc := range testcases {
		t.Run(tc.input, func(t *testing.T) {
			a, err := ParseALPN(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnknownALPN)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, a)
		})
	}
}

func TestDefaultPort(t *testing.T) {
	assert.Equal(t, uint16(80), DefaultPort("http"))
	assert.Equal(t, uint16(443), DefaultPort("https"))
	assert.Equal(t, uint16(1080), DefaultPort("socks5"))
	assert.Zero(t, DefaultPort("ftp"))
}
