// Package capture writes proxied traffic to a capture log.
package capture

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agstrc/teeio"
)

const timestampLayout = "2006-01-02 15:04:05"

var footer = "\n" + strings.Repeat("=", 50) + "\n\n"

// Recorder appends request/response pairs and tunnel payloads to a log. Each
// record is written once and mirrored verbatim to an optional echo writer,
// typically stderr.
type Recorder struct {
	mu     sync.Mutex
	out    *teeio.Writer
	closer io.Closer
	now    func() time.Time
	newID  func() string
}

// New returns a Recorder writing to dst and mirroring to echo. A nil echo
// disables mirroring. If echo fails it is dropped and dst keeps receiving
// every record.
func New(dst io.Writer, echo io.Writer) *Recorder {
	var mirror io.Writer = io.Discard
	if echo != nil {
		mirror = &echoWriter{w: echo}
	}
	return &Recorder{
		out:   teeio.NewWriter(bufio.NewWriter(dst), mirror),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Open appends to the capture log at path, creating it if needed.
func Open(path string, echo io.Writer) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture log: %w", err)
	}
	r := New(file, echo)
	r.closer = file
	return r, nil
}

// echoWriter forwards to w until the first failed write, then drops all
// further output. It never reports an error, so a broken echo cannot cut a
// record short in the log.
type echoWriter struct {
	w      io.Writer
	failed bool
}

func (e *echoWriter) Write(p []byte) (int, error) {
	if e.failed {
		return len(p), nil
	}
	n, err := e.w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		e.failed = true
		log.Warn().Err(err).Msg("capture echo failed, echo disabled")
	}
	return len(p), nil
}

// RecordExchange writes a dump of req and resp, bodies included.
func (r *Recorder) RecordExchange(req *http.Request, resp *http.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	r.write(id, func() error {
		if _, err := r.out.Printf("\n=== %s EXCHANGE %s ===\n", r.now().Format(timestampLayout), id); err != nil {
			return err
		}
		if err := r.section("REQUEST", func() ([]byte, error) { return httputil.DumpRequest(req, true) }); err != nil {
			return err
		}
		return r.section("RESPONSE", func() ([]byte, error) { return httputil.DumpResponse(resp, true) })
	})
}

// RecordTunnel writes hex dumps of both directions of a raw tunnel.
func (r *Recorder) RecordTunnel(target string, sent, received []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	r.write(id, func() error {
		if _, err := r.out.Printf("\n=== %s TUNNEL %s %s ===\n", r.now().Format(timestampLayout), id, target); err != nil {
			return err
		}
		if _, err := r.out.Printf("SENT (%d bytes):\n%s", len(sent), spew.Sdump(sent)); err != nil {
			return err
		}
		_, err := r.out.Printf("\nRECEIVED (%d bytes):\n%s", len(received), spew.Sdump(received))
		return err
	})
}

// section writes a heading followed by a dump. A failed dump is noted in the
// log instead of aborting the record.
func (r *Recorder) section(title string, dump func() ([]byte, error)) error {
	if _, err := r.out.Printf("%s:\n", title); err != nil {
		return err
	}
	body, err := dump()
	if err != nil {
		_, werr := r.out.Printf("failed to dump %s: %v\n", strings.ToLower(title), err)
		return werr
	}
	if err := r.out.WriteAll(body); err != nil {
		return err
	}
	_, err = r.out.WriteString("\n\n")
	return err
}

func (r *Recorder) write(id string, body func() error) {
	if err := body(); err != nil {
		log.Error().Err(err).Str("id", id).Msg("write capture record failed")
		return
	}
	if err := r.out.WriteAll([]byte(footer)); err != nil {
		log.Error().Err(err).Str("id", id).Msg("write capture record failed")
		return
	}
	if err := r.out.Flush(); err != nil {
		log.Error().Err(err).Str("id", id).Msg("flush capture log failed")
	}
}

// Close flushes the log and closes it if it was opened by Open.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.out.Flush(); err != nil {
		return fmt.Errorf("flush capture log: %w", err)
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
