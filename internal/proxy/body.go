package proxy

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/agstrc/teeio"
)

// bodyWaitTimeout bounds how long forward waits for the transport to finish
// with a request body after the response has been relayed.
const bodyWaitTimeout = 5 * time.Second

// bodyCapture collects a request body as the transport reads it. The
// transport may still be sending the body after RoundTrip returns, so writes
// and snapshots are serialized and done is closed once the body is closed.
type bodyCapture struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	done chan struct{}
	once sync.Once
}

func newBodyCapture() *bodyCapture {
	return &bodyCapture{done: make(chan struct{})}
}

func (c *bodyCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// wrap returns rc mirrored into c. Closing the result marks the capture done.
func (c *bodyCapture) wrap(rc io.ReadCloser) io.ReadCloser {
	return &capturedBody{ReadCloser: teeio.NewReadCloser(rc, c), capture: c}
}

// snapshot waits until the body is closed, ctx ends or bodyWaitTimeout
// passes, and returns a copy of what was captured so far.
func (c *bodyCapture) snapshot(ctx context.Context) []byte {
	timer := time.NewTimer(bodyWaitTimeout)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-ctx.Done():
	case <-timer.C:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.buf.Bytes())
}

// capturedBody is a request body mirrored into a bodyCapture.
type capturedBody struct {
	*teeio.ReadCloser
	capture *bodyCapture
}

// Close closes the underlying body and releases snapshot.
func (b *capturedBody) Close() error {
	err := b.ReadCloser.Close()
	b.capture.once.Do(func() { close(b.capture.done) })
	return err
}
