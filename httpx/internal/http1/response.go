package http1

import (
	"bufio"
	"strconv"
	"strings"
)

// ParsedResponse is the head of a response read by the upgrade dialer.
type ParsedResponse struct {
	Proto  string
	Status int
	Reason string
	Fields []Field
}

// Get returns the first value of the named field (case-insensitive).
func (p *ParsedResponse) Get(name string) string {
	return lookup(p.Fields, name)
}

// Values returns every value of the named field.
func (p *ParsedResponse) Values(name string) []string {
	return values(p.Fields, name)
}

// ReadResponseHead reads a status line and header block.
func ReadResponseHead(br *bufio.Reader, maxLine int) (*ParsedResponse, error) {
	line, err := readLineLimit(br, maxLine)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, ErrMalformed
	}
	if !strings.HasPrefix(parts[0], "HTTP/1.") {
		return nil, ErrUnsupportedProto
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return nil, ErrMalformed
	}
	pr := &ParsedResponse{Proto: parts[0], Status: code}
	if len(parts) == 3 {
		pr.Reason = parts[2]
	}
	for {
		line, err := readLineLimit(br, maxLine)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return pr, nil
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, ErrMalformed
		}
		pr.Fields = append(pr.Fields, Field{Name: line[:i], Value: strings.TrimSpace(line[i+1:])})
	}
}
