package semantic

import "bytes"

// Body is payload of a request.
// Each kind has its own default media type, which is used when no Content-Type is given.
type Body interface {
	Bytes() []byte
	ContentType() string
}

// DataBody is form data or raw text.
type DataBody string

func (b DataBody) Bytes() []byte       { return []byte(b) }
func (b DataBody) ContentType() string { return "application/x-www-form-urlencoded" }

// JSONBody is JSON text.
type JSONBody string

func (b JSONBody) Bytes() []byte       { return []byte(b) }
func (b JSONBody) ContentType() string { return "application/json" }

// BytesBody is binary payload. NUL bytes are kept as is.
type BytesBody []byte

func (b BytesBody) Bytes() []byte       { return bytes.Clone(b) }
func (b BytesBody) ContentType() string { return "application/octet-stream" }
