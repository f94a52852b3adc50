package http1

import (
	"bufio"
	"fmt"
	"strconv"
)

// WriteHead writes the status line, the given fields in order and the
// blank line that ends the head. Fields with invalid names are skipped
// and values are stripped of CR/LF.
func WriteHead(bw *bufio.Writer, proto string, status int, reason string, fields []Field) error {
	if proto == "" {
		proto = "HTTP/1.1"
	}
	if reason == "" {
		reason = StatusText(status)
	}
	if _, err := fmt.Fprintf(bw, "%s %d %s\r\n", proto, status, SanitizeHeaderValue(reason)); err != nil {
		return err
	}
	for _, f := range fields {
		k := SanitizeHeaderKey(f.Name)
		if k == "" {
			continue
		}
		if _, err := fmt.Fprintf(bw, "%s: %s\r\n", k, SanitizeHeaderValue(f.Value)); err != nil {
			return err
		}
	}
	_, err := bw.WriteString("\r\n")
	return err
}

// WriteChunk writes one chunk for chunked transfer encoding.
func WriteChunk(bw *bufio.Writer, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := bw.WriteString(strconv.FormatInt(int64(len(p)), 16) + "\r\n"); err != nil {
		return 0, err
	}
	if _, err := bw.Write(p); err != nil {
		return 0, err
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return 0, err
	}
	return len(p), nil
}

// EndChunked writes the terminating zero-length chunk.
func EndChunked(bw *bufio.Writer) error {
	_, err := bw.WriteString("0\r\n\r\n")
	return err
}

// ChunkWriter adapts WriteChunk to io.Writer.
type ChunkWriter struct {
	BW *bufio.Writer
}

func (w ChunkWriter) Write(p []byte) (int, error) {
	return WriteChunk(w.BW, p)
}

// BodyAllowed reports whether a response with this status may carry a
// body.
func BodyAllowed(status int) bool {
	if status >= 100 && status < 200 {
		return false
	}
	return status != 204 && status != 304
}

// StatusText returns the reason phrase for the most common codes.
func StatusText(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 101:
		return "Switching Protocols"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 202:
		return "Accepted"
	case 204:
		return "No Content"
	case 206:
		return "Partial Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 303:
		return "See Other"
	case 304:
		return "Not Modified"
	case 307:
		return "Temporary Redirect"
	case 308:
		return "Permanent Redirect"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 409:
		return "Conflict"
	case 411:
		return "Length Required"
	case 413:
		return "Content Too Large"
	case 415:
		return "Unsupported Media Type"
	case 426:
		return "Upgrade Required"
	case 429:
		return "Too Many Requests"
	case 431:
		return "Request Header Fields Too Large"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	case 505:
		return "HTTP Version Not Supported"
	default:
		return "Unknown"
	}
}
