package stream

import (
	"crypto/tls"
	"time"

	"httpcore/application/http"
)

type Options struct {
	// TLSConfig is cloned for every TLS connection.
	// ServerName and NextProtos are filled in per connection.
	TLSConfig *tls.Config

	Timeout TimeoutOptions

	// ConnectAttempts is how many times a connection is dialed before giving up.
	// Zero is treated as one.
	ConnectAttempts uint

	Encode http.EncodeOptions
	Decode http.DecodeOptions
}

// Zero value of each timeout disables it.
type TimeoutOptions struct {
	// Connect bounds each dial attempt, including proxy negotiation and TLS handshake.
	Connect time.Duration

	// Write bounds sending a request.
	Write time.Duration

	// Read bounds receiving a whole response, counted from the start of the exchange.
	Read time.Duration
}

var DefaultOptions = Options{
	Timeout: TimeoutOptions{
		Connect: 30 * time.Second,
		Write:   30 * time.Second,
		Read:    60 * time.Second,
	},
	ConnectAttempts: 1,
	Encode:          http.DefaultEncodeOptions,
	Decode:          http.DefaultDecodeOptions,
}
