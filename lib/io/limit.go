package iolib

import "io"

// LimitReader creates new [LimitedReader]
func LimitReader(r io.Reader, n uint) io.Reader { return &LimitedReader{R: r, N: n} }

// ExactReader creates new [LimitedReader] which reports [io.ErrUnexpectedEOF]
// if r ends before n bytes are read.
func ExactReader(r io.Reader, n uint) io.Reader { return &LimitedReader{R: r, N: n, Exact: true} }

// LimitedReader is uint port of [io.LimitedReader]
type LimitedReader struct {
	R io.Reader // underlying reader
	N uint      // max bytes remaining

	// Exact turns an early EOF of R into io.ErrUnexpectedEOF.
	Exact bool
}

func (l *LimitedReader) Read(p []byte) (n int, err error) {
	if l.N == 0 {
		return 0, io.EOF
	}
	if uint(len(p)) > l.N {
		p = p[:l.N]
	}
	n, err = l.R.Read(p)
	l.N -= uint(n)
	if err == io.EOF && l.Exact && l.N > 0 {
		err = io.ErrUnexpectedEOF
	}
	return
}
