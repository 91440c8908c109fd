package transfer

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"

	"httpcore/application/http"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type CodingPipelinerTestSuite struct {
	suite.Suite

	cp *CodingPipeliner
}

func TestCodingPipelinerTestSuite(t *testing.T) {
	suite.Run(t, new(CodingPipelinerTestSuite))
}

func (s *CodingPipelinerTestSuite) SetupTest() {
	s.cp = NewCodingPipeliner(nil)
}

func (s *CodingPipelinerTestSuite) TestDecodeChunked() {
	var trailers []http.Field
	r, err := s.cp.Decode(
		strings.NewReader("4\r\ntest\r\n0\r\nExpires: never\r\n\r\n"),
		[]Coding{CodingChunked},
		func(f []http.Field) { trailers = f },
	)
	s.Require().NoError(err)

	b, err := io.ReadAll(r)
	s.Require().NoError(err)
	s.Equal("test", string(b))
	s.Equal([]http.Field{{Name: "Expires", Value: "never"}}, trailers)
}

func (s *CodingPipelinerTestSuite) TestDecodeGzipChunked() {
	gz := bytes.NewBuffer(nil)
	gw := gzip.NewWriter(gz)
	_, err := gw.Write([]byte("Hello, World!"))
	s.Require().NoError(err)
	s.Require().NoError(gw.Close())

	// Single chunk carrying gzip data.
	chunked := bytes.NewBuffer(nil)
	chunked.WriteString(strconv.FormatInt(int64(gz.Len()), 16) + "\r\n")
	chunked.Write(gz.Bytes())
	chunked.WriteString("\r\n0\r\n\r\n")

	r, err := s.cp.Decode(chunked, []Coding{CodingGzip, CodingChunked}, nil)
	s.Require().NoError(err)

	b, err := io.ReadAll(r)
	s.Require().NoError(err)
	s.Equal("Hello, World!", string(b))
}

func (s *CodingPipelinerTestSuite) TestDecodeUnsupported() {
	_, err := s.cp.Decode(strings.NewReader(""), []Coding{"compress"}, nil)
	s.ErrorIs(err, ErrUnsupportedCoding)
}

type upperCoder struct{}

func (upperCoder) Coding() Coding { return "upper" }
func (upperCoder) NewReader(r io.Reader) (io.Reader, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(bytes.ToUpper(b)), nil
}

func (s *CodingPipelinerTestSuite) TestDecodeCustom() {
	cp := NewCodingPipeliner([]Coder{upperCoder{}})

	r, err := cp.Decode(strings.NewReader("hello"), []Coding{"upper"}, nil)
	s.Require().NoError(err)

	b, err := io.ReadAll(r)
	s.Require().NoError(err)
	s.Equal("HELLO", string(b))
}

func TestParseCodings(t *testing.T) {
	testcases := []struct {
		desc     string
		input    string
		expected []Coding
	}{
		{desc: "chunked", input: "chunked", expected: []Coding{CodingChunked}},
		{desc: "list", input: "gzip, Chunked", expected: []Coding{CodingGzip, CodingChunked}},
		{desc: "parameter", input: "gzip;q=1, chunked", expected: []Coding{CodingGzip, CodingChunked}},
		{desc: "empty", input: "", expected: []Coding{}},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseCodings(tc.input))
		})
	}
}
