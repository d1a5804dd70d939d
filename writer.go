package teeio

import (
	"fmt"
	"io"
)

// Writer writes to a left stream and mirrors exactly what left accepted to a
// right stream. Unlike io.MultiWriter, a short write on left is honoured: only
// the accepted prefix reaches right.
//
// A failure on left aborts the call before right is touched. A failure on
// right is reported even though left already committed the data.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	left  io.Writer
	right io.Writer
}

// NewWriter returns a Writer that writes to left and mirrors to right.
func NewWriter(left, right io.Writer) *Writer {
	return &Writer{
		left:  left,
		right: right,
	}
}

// Write writes p to left and mirrors the n bytes left accepted. A count
// outside [0, len(p)] from left is reported as an error and nothing is
// mirrored.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.left.Write(p)
	if n < 0 || n > len(p) {
		if err == nil {
			err = errInvalidWrite
		}
		return 0, err
	}
	if err != nil {
		return n, err
	}
	if _, err := writeFull(w.right, p[:n]); err != nil {
		return n, err
	}
	return n, nil
}

// WriteString implements io.StringWriter.
func (w *Writer) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// WriteAll writes the whole of p to left, retrying short writes, and then the
// whole of p to right.
func (w *Writer) WriteAll(p []byte) error {
	if _, err := writeFull(w.left, p); err != nil {
		return err
	}
	_, err := writeFull(w.right, p)
	return err
}

// Printf formats once and writes the identical bytes to left and right.
// It returns the number of formatted bytes.
func (w *Writer) Printf(format string, a ...any) (int, error) {
	b := fmt.Appendf(nil, format, a...)
	if n, err := writeFull(w.left, b); err != nil {
		return n, err
	}
	if _, err := writeFull(w.right, b); err != nil {
		return len(b), err
	}
	return len(b), nil
}

// Flush flushes left and then right. Right is not flushed if left fails.
func (w *Writer) Flush() error {
	if err := flush(w.left); err != nil {
		return err
	}
	return flush(w.right)
}

// Left returns the primary stream.
func (w *Writer) Left() io.Writer {
	return w.left
}

// Right returns the mirror stream.
func (w *Writer) Right() io.Writer {
	return w.right
}

// Unwrap hands both streams back to the caller. The Writer must not be used
// afterwards.
func (w *Writer) Unwrap() (io.Writer, io.Writer) {
	left, right := w.left, w.right
	w.left, w.right = nil, nil
	return left, right
}
