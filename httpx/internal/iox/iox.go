// Package iox holds the small stream helpers shared by the HTTP engine.
package iox

import (
	"io"
)

const transferChunk = 20 << 10

// Transfer copies src into dst using fixed-size chunks until src is
// exhausted.
func Transfer(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, transferChunk)
	return io.CopyBuffer(dst, onlyReader{src}, buf)
}

// TransferN copies exactly n bytes from src into dst. A short source is
// reported as io.ErrUnexpectedEOF.
func TransferN(dst io.Writer, src io.Reader, n int64) (int64, error) {
	buf := make([]byte, transferChunk)
	written, err := io.CopyBuffer(dst, io.LimitReader(onlyReader{src}, n), buf)
	if err == nil && written < n {
		err = io.ErrUnexpectedEOF
	}
	return written, err
}

// onlyReader hides WriterTo/ReaderFrom so the chunk buffer is honoured.
type onlyReader struct{ io.Reader }
