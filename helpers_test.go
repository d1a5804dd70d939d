package teeio

import (
	"bytes"
	"errors"
)

const helloText = "Hello, world!\n"

var (
	errPrimary = errors.New("primary failed")
	errMirror  = errors.New("mirror failed")
)

// shortWriter accepts at most max bytes per Write without reporting an error.
type shortWriter struct {
	bytes.Buffer
	max int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.max {
		p = p[:w.max]
	}
	return w.Buffer.Write(p)
}

// failWriter rejects every write.
type failWriter struct {
	err error
}

func (w failWriter) Write(p []byte) (int, error) {
	return 0, w.err
}

// miscountWriter stores p but reports n as the number of bytes written.
type miscountWriter struct {
	bytes.Buffer
	n int
}

func (w *miscountWriter) Write(p []byte) (int, error) {
	w.Buffer.Write(p)
	return w.n, nil
}

// miscountReader fills p but reports n as the number of bytes read.
type miscountReader struct {
	n int
}

func (r miscountReader) Read(p []byte) (int, error) {
	copy(p, helloText)
	return r.n, nil
}

// dataErrReader returns its data together with a non-EOF error.
type dataErrReader struct {
	data []byte
	err  error
}

func (r *dataErrReader) Read(p []byte) (int, error) {
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, r.err
}

// flushLog records flush calls in order and can be told to fail.
type flushLog struct {
	bytes.Buffer
	name  string
	calls *[]string
	err   error
}

func (f *flushLog) Flush() error {
	*f.calls = append(*f.calls, f.name)
	return f.err
}

// closeTracker counts Close calls.
type closeTracker struct {
	*bytes.Reader
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return nil
}
