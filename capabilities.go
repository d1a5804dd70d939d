package teeio

import (
	"errors"
	"fmt"
	"io"
)

// BufferedReader is the buffered capability a primary stream needs for
// Reader's Peek, Discard, ReadBytes and ReadString. *bufio.Reader satisfies it.
type BufferedReader interface {
	io.Reader
	Peek(n int) ([]byte, error)
	Discard(n int) (discarded int, err error)
	ReadBytes(delim byte) ([]byte, error)
	ReadString(delim byte) (string, error)
}

var (
	// errInvalidWrite means a writer reported a byte count outside [0, len(p)].
	errInvalidWrite = errors.New("teeio: invalid write result")
	// errInvalidRead means a reader reported a byte count outside [0, len(p)].
	errInvalidRead = errors.New("teeio: invalid read result")
)

// unsupported reports that the wrapped stream lacks the named capability.
func unsupported(capability string) error {
	return fmt.Errorf("teeio: primary does not implement %s: %w", capability, errors.ErrUnsupported)
}

// realized reports whether bytes returned alongside err were actually
// delivered. io.EOF only marks the end of the stream.
func realized(err error) bool {
	return err == nil || err == io.EOF
}

// writeFull writes all of p to w, retrying short writes.
func writeFull(w io.Writer, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := w.Write(p[written:])
		if n < 0 || n > len(p)-written {
			return written, errInvalidWrite
		}
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// flush flushes w if it buffers. Both the bufio style Flush() error and the
// http.Flusher style Flush() are recognised.
func flush(w io.Writer) error {
	switch f := w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}
