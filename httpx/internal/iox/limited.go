package iox

import (
	"errors"
	"io"
)

// ErrClosed is returned when reading from a closed LengthLimited.
var ErrClosed = errors.New("iox: stream closed")

// LengthLimited reads at most a declared number of bytes from an
// underlying reader. It decouples body framing from the connection
// stream: once the declared length is consumed it reports io.EOF even
// though the delegate may have more data (the next request).
type LengthLimited struct {
	r          io.Reader
	length     int64
	remain     int64
	allowClose bool
	closed     bool
}

// NewLengthLimited wraps r so that at most length bytes are read. When
// allowClose is false, Close only marks the stream closed and leaves r
// open.
func NewLengthLimited(r io.Reader, length int64, allowClose bool) *LengthLimited {
	if length < 0 {
		length = 0
	}
	return &LengthLimited{r: r, length: length, remain: length, allowClose: allowClose}
}

func (l *LengthLimited) Read(p []byte) (int, error) {
	if l.closed {
		return 0, ErrClosed
	}
	if l.remain <= 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if int64(len(p)) > l.remain {
		p = p[:l.remain]
	}
	n, err := l.r.Read(p)
	l.remain -= int64(n)
	if err == io.EOF && l.remain > 0 {
		// Delegate ended before the declared length.
		l.remain = 0
		return n, io.ErrUnexpectedEOF
	}
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Len reports the declared length.
func (l *LengthLimited) Len() int64 { return l.length }

// Remaining reports how many declared bytes have not been read yet.
func (l *LengthLimited) Remaining() int64 { return l.remain }

// Closed reports whether Close was called.
func (l *LengthLimited) Closed() bool { return l.closed }

// Close marks the stream closed. The delegate is closed only when the
// stream was created with allowClose.
func (l *LengthLimited) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if l.allowClose {
		if c, ok := l.r.(io.Closer); ok {
			return c.Close()
		}
	}
	return nil
}

// Drain discards the unread part of the declared length from the
// delegate, even after Close, so the delegate is positioned right after
// the framed data.
func (l *LengthLimited) Drain() error {
	if l.remain <= 0 {
		return nil
	}
	n, err := io.CopyN(io.Discard, l.r, l.remain)
	l.remain -= n
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
