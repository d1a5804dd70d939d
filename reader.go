package teeio

import (
	"bytes"
	"io"
)

// Reader reads from a primary stream and writes every byte it hands back to
// the caller to a sink. There is no internal buffering: the sink write
// completes before the read returns.
//
// Errors from the primary are returned unchanged and nothing is mirrored for
// that call. If the primary succeeds but the sink write fails, the sink's error
// is returned. The bytes have then been consumed from the primary but not
// mirrored, so the sink may lag behind the caller.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	primary io.Reader
	sink    io.Writer
}

// NewReader returns a Reader that reads from primary and mirrors to sink.
func NewReader(primary io.Reader, sink io.Writer) *Reader {
	return &Reader{
		primary: primary,
		sink:    sink,
	}
}

// Read reads up to len(p) bytes from the primary and mirrors p[:n].
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.primary.Read(p)
	if n < 0 || n > len(p) {
		return 0, errInvalidRead
	}
	if n > 0 && realized(err) {
		if _, werr := writeFull(r.sink, p[:n]); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// ReadToEnd appends the remainder of the primary to buf and mirrors exactly
// the appended region. Content already in buf is not mirrored again.
func (r *Reader) ReadToEnd(buf *bytes.Buffer) (int64, error) {
	start := buf.Len()
	n, err := buf.ReadFrom(r.primary)
	if err != nil {
		return n, err
	}
	if _, err := writeFull(r.sink, buf.Bytes()[start:]); err != nil {
		return n, err
	}
	return n, nil
}

// ReadFull fills p from the primary with io.ReadFull semantics. p is mirrored
// only once it has been filled completely.
func (r *Reader) ReadFull(p []byte) (int, error) {
	n, err := io.ReadFull(r.primary, p)
	if err != nil {
		return n, err
	}
	if _, err := writeFull(r.sink, p); err != nil {
		return n, err
	}
	return n, nil
}

// Peek returns the next n bytes of the primary without consuming them.
// Peeked bytes are not mirrored.
func (r *Reader) Peek(n int) ([]byte, error) {
	br, ok := r.primary.(BufferedReader)
	if !ok {
		return nil, unsupported("BufferedReader")
	}
	return br.Peek(n)
}

// Discard skips the next n bytes of the primary. Discarded bytes are never
// mirrored, even when they were previously peeked.
func (r *Reader) Discard(n int) (int, error) {
	br, ok := r.primary.(BufferedReader)
	if !ok {
		return 0, unsupported("BufferedReader")
	}
	return br.Discard(n)
}

// ReadBytes reads until the first occurrence of delim and mirrors the
// returned bytes, delimiter included. As with bufio.Reader, data read before
// io.EOF is returned (and mirrored) together with io.EOF.
func (r *Reader) ReadBytes(delim byte) ([]byte, error) {
	br, ok := r.primary.(BufferedReader)
	if !ok {
		return nil, unsupported("BufferedReader")
	}
	line, err := br.ReadBytes(delim)
	if len(line) > 0 && realized(err) {
		if _, werr := writeFull(r.sink, line); werr != nil {
			return line, werr
		}
	}
	return line, err
}

// ReadString is ReadBytes for text. ReadString('\n') reads one line.
func (r *Reader) ReadString(delim byte) (string, error) {
	br, ok := r.primary.(BufferedReader)
	if !ok {
		return "", unsupported("BufferedReader")
	}
	line, err := br.ReadString(delim)
	if len(line) > 0 && realized(err) {
		if _, werr := writeFull(r.sink, []byte(line)); werr != nil {
			return line, werr
		}
	}
	return line, err
}

// Seek seeks the primary. Seeking never mirrors anything.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	s, ok := r.primary.(io.Seeker)
	if !ok {
		return 0, unsupported("io.Seeker")
	}
	return s.Seek(offset, whence)
}

// Position returns the primary's current offset.
func (r *Reader) Position() (int64, error) {
	return r.Seek(0, io.SeekCurrent)
}

// Primary returns the wrapped stream. Reading from it directly bypasses the sink.
func (r *Reader) Primary() io.Reader {
	return r.primary
}

// Sink returns the mirror stream.
func (r *Reader) Sink() io.Writer {
	return r.sink
}

// Unwrap hands both streams back to the caller. The Reader must not be used
// afterwards.
func (r *Reader) Unwrap() (io.Reader, io.Writer) {
	primary, sink := r.primary, r.sink
	r.primary, r.sink = nil, nil
	return primary, sink
}
