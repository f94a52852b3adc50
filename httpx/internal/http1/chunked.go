package http1

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var errChunkFormat = errors.New("http1: invalid chunk format")

// ChunkedReader decodes a Transfer-Encoding: chunked request body.
type ChunkedReader struct {
	br       *bufio.Reader
	remain   int64
	finished bool
	maxLine  int // line limit for chunk header and trailer lines
}

func NewChunkedReader(br *bufio.Reader, maxLine int) *ChunkedReader {
	return &ChunkedReader{br: br, remain: -1, maxLine: maxLine}
}

func (c *ChunkedReader) Read(p []byte) (int, error) {
	if c.finished {
		return 0, io.EOF
	}
	// No remaining bytes in the current chunk: read the next size line.
	if c.remain <= 0 {
		size, err := c.readChunkSize()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			if err := c.readTrailers(); err != nil {
				return 0, err
			}
			c.finished = true
			return 0, io.EOF
		}
		c.remain = size
	}
	if len(p) == 0 {
		return 0, nil
	}
	toRead := int64(len(p))
	if toRead > c.remain {
		toRead = c.remain
	}
	n, err := io.ReadFull(c.br, p[:toRead])
	c.remain -= int64(n)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, err
	}
	if c.remain == 0 {
		if err := c.expectCRLF(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Finished reports whether the terminating chunk was consumed.
func (c *ChunkedReader) Finished() bool { return c.finished }

// Close drains the body to its end so the connection can be reused.
func (c *ChunkedReader) Close() error {
	return c.Drain()
}

// Drain consumes the rest of the chunk stream including trailers.
func (c *ChunkedReader) Drain() error {
	buf := make([]byte, 1024)
	for !c.finished {
		_, err := c.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *ChunkedReader) readChunkSize() (int64, error) {
	line, err := readLineLimit(c.br, c.maxLine)
	if err != nil {
		return 0, err
	}
	// Strip chunk extensions: "<hex>;<ext>"
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, errChunkFormat
	}
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return 0, errChunkFormat
	}
	return n, nil
}

func (c *ChunkedReader) expectCRLF() error {
	b1, err := c.br.ReadByte()
	if err != nil {
		return err
	}
	if b1 == '\n' {
		return nil
	}
	b2, err := c.br.ReadByte()
	if err != nil {
		return err
	}
	if b1 != '\r' || b2 != '\n' {
		return fmt.Errorf("http1: expected CRLF after chunk, got %q%q", b1, b2)
	}
	return nil
}

func (c *ChunkedReader) readTrailers() error {
	for {
		line, err := readLineLimit(c.br, c.maxLine)
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		// Trailer fields are ignored.
	}
}

func readLineLimit(br *bufio.Reader, limit int) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == '\n' {
			break
		}
		if b != '\r' {
			sb.WriteByte(b)
		}
		if limit > 0 && sb.Len() > limit {
			return "", ErrLineTooLong
		}
	}
	return sb.String(), nil
}
