package semantic

import (
	"bytes"
	"strings"

	"httpcore/application/http"
	"httpcore/application/util/rule"
)

// Headers is an ordered list of fields.
// Names are kept as given, and looked up case-insensitively.
// Duplicated fields are kept in order.
type Headers struct{ fields []http.Field }

// NewHeaders creates headers from raw fields. fields are copied.
func NewHeaders(fields []http.Field) Headers {
	if fields == nil {
		return Headers{}
	}

	clone := make([]http.Field, len(fields))
	copy(clone, fields)

	return Headers{fields: clone}
}

// Fields returns copy of all the fields in order.
func (h Headers) Fields() []http.Field {
	clone := make([]http.Field, len(h.fields))
	copy(clone, h.fields)

	return clone
}

func (h Headers) Len() int { return len(h.fields) }

func (h Headers) Clone() Headers { return NewHeaders(h.fields) }

func (h Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Get assumes the field is a singleton field.
// Even if name has multiple lines, it will only return the first value.
// For list-based field, use [Headers.Values] or [Headers.Tokens].
func (h Headers) Get(name string) (value string, ok bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns values of every line named name, in order.
func (h Headers) Values(name string) []string {
	values := make([]string, 0)
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

// Tokens treats the field as a list-based field and splits every line into its members.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.1
func (h Headers) Tokens(name string) []string {
	tokens := make([]string, 0)
	for _, v := range h.Values(name) {
		tokens = append(tokens, tokenizeFieldValues([]byte(v))...)
	}
	return tokens
}

// HasToken reports whether list-based field contains token, case-insensitively.
func (h Headers) HasToken(name, token string) bool {
	for _, t := range h.Tokens(name) {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

// Set assumes the field is a singleton field.
// The first line named name is overwritten and the rest are removed.
// For list-based field, use [Headers.Add].
func (h *Headers) Set(name, value string) {
	set := false
	fields := make([]http.Field, 0, len(h.fields))
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			if set {
				continue
			}
			f = http.Field{Name: name, Value: value}
			set = true
		}
		fields = append(fields, f)
	}

	if !set {
		fields = append(fields, http.Field{Name: name, Value: value})
	}

	h.fields = fields
}

func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, http.Field{Name: name, Value: value})
}

func (h *Headers) Del(name string) {
	fields := make([]http.Field, 0, len(h.fields))
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			fields = append(fields, f)
		}
	}
	h.fields = fields
}

func tokenizeFieldValues(fieldValue []byte) []string {
	tokens := make([]string, 0)
	buf := bytes.NewBuffer(nil)

	parts := bytes.Split(fieldValue, []byte{','})

	// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.4-1
	quoted := false

	for _, part := range parts {
		if quoted {
			// Comma inside quote, let's write it again.
			buf.WriteByte(',')
		}

		for idx := 0; idx < len(part); idx++ {
			c := part[idx]
			if c == '"' && (idx == 0 || part[idx-1] != '\\') {
				quoted = !quoted
			}

			buf.WriteByte(c)
		}

		if !quoted {
			tokens = addToken(tokens, buf.Bytes())
			buf.Reset()
		}
	}

	if buf.Len() > 0 {
		// Quote didn't end properly.
		// At least write the raw token.
		tokens = addToken(tokens, buf.Bytes())
	}

	return tokens
}

func addToken(tokens []string, token []byte) []string {
	token = bytes.TrimFunc(token, rule.IsWhitespace)
	token = rule.Unquote(token)
	if len(token) == 0 {
		// Don't append if it's empty.
		return tokens
	}
	return append(tokens, string(token))
}
