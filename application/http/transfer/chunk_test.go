package transfer

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"httpcore/application/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ChunkedReaderTestSuite struct {
	suite.Suite
}

func TestChunkedReaderTestSuite(t *testing.T) {
	suite.Run(t, new(ChunkedReaderTestSuite))
}

func (s *ChunkedReaderTestSuite) TestRead() {
	input := []byte("" +
		"5;ext=foo\r\n" +
		"ABCDE\r\n" +
		"a\r\n" +
		"FGHIJKLNMO\r\n" +
		"0\r\n" + // last chunk
		"Hello: World\r\n" + // trailer
		"\r\n", // empty trailer (last trailer)
	)

	trailers := make([]http.Field, 0)
	cr := NewChunkedReader(bytes.NewReader(input))
	cr.SetOnTrailerReceived(func(f []http.Field) { trailers = f })

	buf := make([]byte, 2)
	// First read reads only AB
	n, err := cr.Read(buf)
	s.Require().NoError(err)
	s.Equal(len(buf), n)
	s.Equal([]byte("AB"), buf)

	buf = make([]byte, 10)
	// Second read reads all the data in first chunk.
	n, err = cr.Read(buf)
	s.Require().NoError(err)
	s.Equal(3, n)
	s.Equal([]byte("CDE"), buf[:n])

	// Third read reads all the data in second chunk.
	n, err = cr.Read(buf)
	s.Require().NoError(err)
	s.Equal(len(buf), n)
	s.Equal([]byte("FGHIJKLNMO"), buf)

	// Fourth read reads last chunk.
	n, err = cr.Read(buf)
	s.Require().ErrorIs(err, io.EOF)
	s.Equal(0, n)

	s.Len(trailers, 1)
	expected := http.Field{Name: "Hello", Value: "World"}
	s.Equal(expected, trailers[0])

	// Reading after the last chunk keeps returning EOF.
	n, err = cr.Read(buf)
	s.ErrorIs(err, io.EOF)
	s.Zero(n)
}

func (s *ChunkedReaderTestSuite) TestReadAll() {
	cr := NewChunkedReader(strings.NewReader("4\r\ntest\r\n0\r\n\r\n"))

	b, err := io.ReadAll(cr)
	s.Require().NoError(err)
	s.Equal("test", string(b))
}

func (s *ChunkedReaderTestSuite) TestReadTruncated() {
	testcases := []struct {
		desc  string
		input string
	}{
		{desc: "data cut", input: "a\r\nABC"},
		{desc: "delimiter cut", input: "3\r\nABC\r"},
		{desc: "last chunk missing", input: "3\r\nABC\r\n"},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			cr := NewChunkedReader(strings.NewReader(tc.input))

			_, err := io.ReadAll(cr)
			s.ErrorIs(err, io.ErrUnexpectedEOF)
		})
	}
}

func (s *ChunkedReaderTestSuite) TestReadBadDelimiter() {
	cr := NewChunkedReader(strings.NewReader("3\r\nABCDE\r\n0\r\n\r\n"))

	_, err := io.ReadAll(cr)
	s.Error(err)
}

func (s *ChunkedReaderTestSuite) TestDecodeChunk() {
	testcases := []struct {
		desc     string
		input    []byte
		expected Chunk
		wantErr  bool
	}{
		{
			desc: "example chunk",
			input: []byte(
				"5;ext=foo\r\n" +
					"ABCDE\r\n",
			),
			expected: Chunk{
				Size: 5,
				Extensions: [][2]string{
					{"ext", "foo"},
				},
			},
		},
		{
			desc: "BWS inside chunk",
			input: []byte(
				"5 ; ext = foo\r\n" +
					"ABCDE\r\n",
			),
			expected: Chunk{
				Size: 5,
				Extensions: [][2]string{
					{"ext", "foo"},
				},
			},
		},
		{
			desc: "quoted extension",
			input: []byte(
				"5;ext=\"f\\\"oo\"\r\n" +
					"ABCDE\r\n",
			),
			expected: Chunk{
				Size: 5,
				Extensions: [][2]string{
					{"ext", "f\"oo"},
				},
			},
		},
		{
			desc:    "malformed chunk (empty)",
			input:   []byte("\r\n"),
			wantErr: true,
		},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			cr := NewChunkedReader(bytes.NewReader(tc.input))

			err := cr.decodeChunk()
			if tc.wantErr {
				s.Error(err)
				return
			}

			s.NoError(err)

			data, err := io.ReadAll(cr.chunk.data)
			s.NoError(err)

			cr.chunk.data = nil

			s.Equal(tc.expected, *cr.chunk)
			s.Len(data, int(cr.chunk.Size)+2) // ignore crlf
		})
	}
}

func TestDecodeChunkSize(t *testing.T) {
	testcases := []struct {
		desc     string
		input    []byte
		expected uint
		wantErr  bool
	}{
		{
			desc:     "normal hex",
			input:    []byte("FF"),
			expected: 0xFF,
		},
		{
			desc:    "invalid hex",
			input:   []byte("haha this aint hex"),
			wantErr: true,
		},
		{
			desc:    "negative",
			input:   []byte("-1"),
			wantErr: true,
		},
		{
			desc:    "hex too long",
			input:   []byte("FFFFFFFFFFFFFFFFFF"), // 9 bytes
			wantErr: true,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			size, err := decodeChunkSize(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, size)
		})
	}
}

func (s *ChunkedReaderTestSuite) TestDecodeTrailers() {
	r := strings.NewReader(
		"" +
			"Hello: World\r\n" +
			"Foo: Bar\r\n" +
			"\r\n",
	)
	expected := []http.Field{
		{Name: "Hello", Value: "World"},
		{Name: "Foo", Value: "Bar"},
	}

	store := make([]http.Field, 0)
	cr := NewChunkedReader(r)
	cr.SetOnTrailerReceived(func(f []http.Field) { store = f })

	s.NoError(cr.decodeTrailers())
	s.Equal(expected, store)
}

func TestReadLine(t *testing.T) {
	line := []byte("hello\r\n")
	result, err := readLine(bufio.NewReader(bytes.NewReader(line)))
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), result)
}
