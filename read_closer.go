package teeio

import "io"

// ReadCloser is a Reader over an io.ReadCloser, such as an HTTP body.
type ReadCloser struct {
	*Reader
	closer io.Closer
}

// NewReadCloser creates a ReadCloser that reads from rc and mirrors to sink.
func NewReadCloser(rc io.ReadCloser, sink io.Writer) *ReadCloser {
	return &ReadCloser{
		Reader: NewReader(rc, sink),
		closer: rc,
	}
}

// Close closes the primary. The sink is left open.
func (t *ReadCloser) Close() error {
	return t.closer.Close()
}
