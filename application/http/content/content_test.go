package content

import (
	"bytes"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var plain = []byte("Hello, World! Hello, World! Hello, World!")

func encode(t *testing.T, coding Coding, data []byte) []byte {
	t.Helper()

	buf := bytes.NewBuffer(nil)

	var w io.WriteCloser
	switch coding {
	case CodingGzip, CodingXGzip:
		w = gzip.NewWriter(buf)
	case CodingDeflate:
		w = zlib.NewWriter(buf)
	case CodingBrotli:
		w = brotli.NewWriter(buf)
	case CodingZstd:
		zw, err := zstd.NewWriter(buf)
		require.NoError(t, err)
		w = zw
	default:
		return bytes.Clone(data)
	}

	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

type ContentTestSuite struct {
	suite.Suite
}

func TestContentTestSuite(t *testing.T) {
	suite.Run(t, new(ContentTestSuite))
}

func (s *ContentTestSuite) TestNewReader() {
	testcases := []struct {
		desc   string
		coding Coding
	}{
		{desc: "identity", coding: CodingIdentity},
		{desc: "gzip", coding: CodingGzip},
		{desc: "x-gzip", coding: CodingXGzip},
		{desc: "deflate", coding: CodingDeflate},
		{desc: "brotli", coding: CodingBrotli},
		{desc: "zstd", coding: CodingZstd},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			encoded := encode(s.T(), tc.coding, plain)

			r, err := NewReader(tc.coding, bytes.NewReader(encoded))
			s.Require().NoError(err)
			defer r.Close()

			b, err := io.ReadAll(r)
			s.Require().NoError(err)
			s.Equal(plain, b)
		})
	}
}

func (s *ContentTestSuite) TestNewReaderRawDeflate() {
	buf := bytes.NewBuffer(nil)
	fw, err := flate.NewWriter(buf, flate.DefaultCompression)
	s.Require().NoError(err)
	_, err = fw.Write(plain)
	s.Require().NoError(err)
	s.Require().NoError(fw.Close())

	r, err := NewReader(CodingDeflate, buf)
	s.Require().NoError(err)
	defer r.Close()

	b, err := io.ReadAll(r)
	s.Require().NoError(err)
	s.Equal(plain, b)
}

func (s *ContentTestSuite) TestNewReaderUnsupported() {
	_, err := NewReader("compress", bytes.NewReader(plain))
	s.ErrorIs(err, ErrUnsupportedCoding)
}

func (s *ContentTestSuite) TestNewReaderBrokenGzip() {
	_, err := NewReader(CodingGzip, bytes.NewReader([]byte("not gzip")))
	s.Error(err)
}

func (s *ContentTestSuite) TestDecode() {
	// Applied gzip first, then br.
	encoded := encode(s.T(), CodingBrotli, encode(s.T(), CodingGzip, plain))

	decoded, err := Decode(encoded, []Coding{CodingGzip, CodingBrotli})
	s.Require().NoError(err)
	s.Equal(plain, decoded)
}

func TestParseCodings(t *testing.T) {
	testcases := []struct {
		desc     string
		input    string
		expected []Coding
	}{
		{desc: "single", input: "gzip", expected: []Coding{CodingGzip}},
		{desc: "list with spaces", input: "gzip , BR", expected: []Coding{CodingGzip, CodingBrotli}},
		{desc: "empty members", input: ",gzip,,", expected: []Coding{CodingGzip}},
		{desc: "empty", input: "", expected: []Coding{}},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseCodings(tc.input))
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(CodingZstd))
	assert.True(t, Supported(CodingIdentity))
	assert.False(t, Supported("compress"))
}
