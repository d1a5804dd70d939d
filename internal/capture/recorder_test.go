package capture

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRecorder(dst, echo io.Writer) *Recorder {
	r := New(dst, echo)
	r.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) }
	r.newID = func() string { return "test-id" }
	return r
}

func sampleExchange(t *testing.T) (*http.Request, *http.Response) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://example.com/items", strings.NewReader(`{"name":"tee"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp := &http.Response{
		Status:        "201 Created",
		StatusCode:    http.StatusCreated,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Body:          io.NopCloser(strings.NewReader("created")),
		ContentLength: int64(len("created")),
		Request:       req,
	}
	return req, resp
}

func TestRecorder_RecordExchange(t *testing.T) {
	var dst, echo bytes.Buffer
	r := fixedRecorder(&dst, &echo)

	req, resp := sampleExchange(t)
	r.RecordExchange(req, resp)

	out := dst.String()
	assert.Contains(t, out, "=== 2024-05-01 12:30:00 EXCHANGE test-id ===")
	assert.Contains(t, out, "REQUEST:\nPOST /items HTTP/1.1\r\n")
	assert.Contains(t, out, `{"name":"tee"}`)
	assert.Contains(t, out, "RESPONSE:\nHTTP/1.1 201 Created\r\n")
	assert.Contains(t, out, "created")
	assert.True(t, strings.HasSuffix(out, footer))

	assert.Equal(t, out, echo.String())
}

func TestRecorder_RecordTunnel(t *testing.T) {
	var dst bytes.Buffer
	r := fixedRecorder(&dst, nil)

	r.RecordTunnel("127.0.0.1:7000", []byte("ping\n"), []byte("ECHO: ping\n"))

	out := dst.String()
	assert.Contains(t, out, "=== 2024-05-01 12:30:00 TUNNEL test-id 127.0.0.1:7000 ===")
	assert.Contains(t, out, "SENT (5 bytes):")
	assert.Contains(t, out, "|ping.|")
	assert.Contains(t, out, "RECEIVED (11 bytes):")
	assert.Contains(t, out, "|ECHO: ping.|")
}

func TestRecorder_GeneratesExchangeIDs(t *testing.T) {
	var dst bytes.Buffer
	r := New(&dst, nil)

	req, resp := sampleExchange(t)
	r.RecordExchange(req, resp)

	match := regexp.MustCompile(`EXCHANGE (\S+) ===`).FindStringSubmatch(dst.String())
	require.Len(t, match, 2)
	_, err := uuid.Parse(match[1])
	assert.NoError(t, err)
}

type failWriter struct {
	calls int
}

func (f *failWriter) Write([]byte) (int, error) {
	f.calls++
	return 0, errors.New("echo closed")
}

func TestRecorder_EchoFailureKeepsLog(t *testing.T) {
	var dst bytes.Buffer
	echo := &failWriter{}
	r := fixedRecorder(&dst, echo)

	r.RecordTunnel("127.0.0.1:7000", []byte("ping"), []byte("pong"))
	r.RecordTunnel("127.0.0.1:7001", []byte("again"), nil)
	req, resp := sampleExchange(t)
	r.RecordExchange(req, resp)
	require.NoError(t, r.Close())

	out := dst.String()
	assert.Contains(t, out, "TUNNEL test-id 127.0.0.1:7000")
	assert.Contains(t, out, "TUNNEL test-id 127.0.0.1:7001")
	assert.Equal(t, 2, strings.Count(out, "SENT ("))
	assert.Equal(t, 2, strings.Count(out, "RECEIVED ("))
	assert.Contains(t, out, "|pong|")
	assert.Contains(t, out, "REQUEST:\nPOST /items HTTP/1.1\r\n")
	assert.Contains(t, out, "RESPONSE:\nHTTP/1.1 201 Created\r\n")
	assert.Equal(t, 3, strings.Count(out, footer))
	assert.True(t, strings.HasSuffix(out, footer))

	assert.Equal(t, 1, echo.calls, "echo should be dropped after its first failure")
}

func TestRecorder_ShortEchoDisablesEcho(t *testing.T) {
	var dst bytes.Buffer
	echo := &limitedWriter{max: 4}
	r := fixedRecorder(&dst, echo)

	r.RecordTunnel("127.0.0.1:7000", []byte("ping"), nil)
	r.RecordTunnel("127.0.0.1:7001", []byte("ping"), nil)

	assert.Equal(t, 2, strings.Count(dst.String(), footer))
	assert.Equal(t, "\n===", echo.String())
}

// limitedWriter accepts at most max bytes in total and then reports short
// writes without an error.
type limitedWriter struct {
	bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	room := w.max - w.Len()
	if room < len(p) {
		p = p[:room]
	}
	return w.Buffer.Write(p)
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.log")
	var echo bytes.Buffer

	r, err := Open(path, &echo)
	require.NoError(t, err)
	r.newID = func() string { return "test-id" }

	r.RecordTunnel("127.0.0.1:7000", []byte("a"), []byte("b"))
	r.RecordTunnel("127.0.0.1:7001", []byte("c"), []byte("d"))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, echo.String(), string(data))
	assert.Equal(t, 2, strings.Count(string(data), "TUNNEL test-id"))
}

func TestOpen_Error(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "capture.log"), nil)
	assert.ErrorContains(t, err, "open capture log")
}
