package httpx

import (
	"errors"
	"strings"

	"dqx0.com/go/connective/httpx/internal/http1"
)

// Header is an ordered, case-insensitive multi-value header collection.
//
// Values added under any casing of a name are grouped under the casing
// used when the name was first added. Names keep their insertion order;
// replacing the values of a name keeps its position. The zero value is
// an empty collection ready to use.
type Header struct {
	entries []headerEntry
}

type headerEntry struct {
	name   string
	values []string
}

// NewHeader returns an empty collection.
func NewHeader() *Header { return &Header{} }

func (h *Header) index(name string) int {
	for i := range h.entries {
		if strings.EqualFold(h.entries[i].name, name) {
			return i
		}
	}
	return -1
}

// AddHeader appends value to name when appendValue is set, otherwise it
// replaces every prior value of name.
func (h *Header) AddHeader(name, value string, appendValue bool) {
	i := h.index(name)
	switch {
	case i < 0:
		h.entries = append(h.entries, headerEntry{name: name, values: []string{value}})
	case appendValue:
		h.entries[i].values = append(h.entries[i].values, value)
	default:
		h.entries[i].values = []string{value}
	}
}

// Add appends a value.
func (h *Header) Add(name, value string) { h.AddHeader(name, value, true) }

// Set replaces all values of name with value.
func (h *Header) Set(name, value string) { h.AddHeader(name, value, false) }

// SetDefault sets name only when it is not present yet.
func (h *Header) SetDefault(name, value string) {
	if !h.Has(name) {
		h.Set(name, value)
	}
}

// Get returns the first value of name or "".
func (h *Header) Get(name string) string {
	if h == nil {
		return ""
	}
	if i := h.index(name); i >= 0 {
		return h.entries[i].values[0]
	}
	return ""
}

// Values returns a copy of every value of name in insertion order.
func (h *Header) Values(name string) []string {
	if h == nil {
		return nil
	}
	if i := h.index(name); i >= 0 {
		return append([]string(nil), h.entries[i].values...)
	}
	return nil
}

func (h *Header) Has(name string) bool {
	return h != nil && h.index(name) >= 0
}

// Del removes every value of name and reports whether it was present.
// A name added again after Del moves to the end of the collection.
func (h *Header) Del(name string) bool {
	i := h.index(name)
	if i < 0 {
		return false
	}
	h.entries = append(h.entries[:i], h.entries[i+1:]...)
	return true
}

// Names returns the header names in insertion order.
func (h *Header) Names() []string {
	if h == nil {
		return nil
	}
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.name
	}
	return out
}

// Len is the number of distinct names.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Each calls fn for every (name, value) pair in order.
func (h *Header) Each(fn func(name, value string)) {
	if h == nil {
		return
	}
	for _, e := range h.entries {
		for _, v := range e.values {
			fn(e.name, v)
		}
	}
}

func (h *Header) Clone() *Header {
	c := &Header{}
	if h == nil {
		return c
	}
	c.entries = make([]headerEntry, len(h.entries))
	for i, e := range h.entries {
		c.entries[i] = headerEntry{name: e.name, values: append([]string(nil), e.values...)}
	}
	return c
}

// String serializes the collection as "name: value" lines joined by
// CRLF. Backslashes and line breaks inside values are escaped so the
// output can be parsed back by ParseHeader.
func (h *Header) String() string {
	var sb strings.Builder
	first := true
	h.Each(func(name, value string) {
		if !first {
			sb.WriteString("\r\n")
		}
		first = false
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(escapeHeaderValue(value))
	})
	return sb.String()
}

func (h *Header) fields() []http1.Field {
	var out []http1.Field
	h.Each(func(name, value string) {
		out = append(out, http1.Field{Name: name, Value: value})
	})
	return out
}

func headerFromFields(fields []http1.Field) *Header {
	h := &Header{}
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}
	return h
}

var errHeaderSyntax = errors.New("httpx: invalid serialized header line")

// ParseHeader parses the output of Header.String.
func ParseHeader(s string) (*Header, error) {
	h := &Header{}
	if s == "" {
		return h, nil
	}
	for _, line := range strings.Split(s, "\r\n") {
		i := strings.Index(line, ": ")
		if i <= 0 {
			return nil, errHeaderSyntax
		}
		v, err := unescapeHeaderValue(line[i+2:])
		if err != nil {
			return nil, err
		}
		h.Add(line[:i], v)
	}
	return h, nil
}

var headerEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

func escapeHeaderValue(v string) string {
	if !strings.ContainsAny(v, "\\\r\n") {
		return v
	}
	return headerEscaper.Replace(v)
}

func unescapeHeaderValue(v string) (string, error) {
	if !strings.Contains(v, `\`) {
		return v, nil
	}
	var sb strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(v) {
			return "", errHeaderSyntax
		}
		switch v[i] {
		case '\\':
			sb.WriteByte('\\')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		default:
			return "", errHeaderSyntax
		}
	}
	return sb.String(), nil
}
