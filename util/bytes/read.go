package bytesutil

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

var ErrLimitExceeded = errors.New("read limit exceeded before delimiter")

// ReadUntil reads from r until delim. The output will include delim.
// If limit is greater than 0, reading stops with [ErrLimitExceeded]
// as soon as more than limit bytes are consumed without seeing delim.
func ReadUntil(r *bufio.Reader, delim []byte, limit uint) ([]byte, error) {
	if len(delim) == 0 {
		return nil, errors.New("delim has zero length")
	}

	buf := bytes.NewBuffer(nil)
	last := delim[len(delim)-1]
	for {
		b, err := r.ReadSlice(last)
		buf.Write(b)

		if limit > 0 && uint(buf.Len()) > limit {
			return nil, ErrLimitExceeded
		}

		switch {
		case err == nil:
			if bytes.HasSuffix(buf.Bytes(), delim) {
				return buf.Bytes(), nil
			}
		case errors.Is(err, bufio.ErrBufferFull):
			// Line is longer than the bufio buffer. Keep reading.
		case errors.Is(err, io.EOF):
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}
