package proxy

import (
	"bytes"
	"errors"
	"io"
	"maps"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/agstrc/teeio"
	"github.com/agstrc/teeio/internal/certs"
)

const (
	httpsPort = "443"
	httpPort  = "80"
)

var (
	badGatewayMsg     = []byte("Bad gateway")
	invalidRequestMsg = []byte("Invalid request")
	internalErrorMsg  = []byte("Internal server error")
)

// Recorder receives the traffic mirrored while proxying. Implementations must
// be safe for concurrent use; the proxy calls them from many connections.
type Recorder interface {
	RecordExchange(req *http.Request, resp *http.Response)
	RecordTunnel(target string, sent, received []byte)
}

// Handler is a forward proxy that mirrors the bodies and tunnel bytes it
// relays into a Recorder.
type Handler struct {
	transport      http.RoundTripper
	issuer         *certs.Issuer
	recorder       Recorder
	captureTunnels bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithoutTunnelCapture relays raw CONNECT tunnels without mirroring them.
func WithoutTunnelCapture() Option {
	return func(h *Handler) { h.captureTunnels = false }
}

// NewHandler creates a Handler. A nil recorder disables capturing.
func NewHandler(transport http.RoundTripper, issuer *certs.Issuer, recorder Recorder, opts ...Option) *Handler {
	h := &Handler{
		transport:      transport,
		issuer:         issuer,
		recorder:       recorder,
		captureTunnels: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles CONNECT tunnels and absolute-form proxy requests.
func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		log.Debug().Str("host", r.RequestURI).Msg("handling CONNECT request")
		h.handleConnect(rw, r)
		return
	}

	log.Debug().Str("method", r.Method).Str("url", r.RequestURI).Msg("handling HTTP request")
	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, r.RequestURI, r.Body)
	if err != nil {
		log.Warn().Err(err).Str("method", r.Method).Str("url", r.RequestURI).Msg("invalid proxy request")
		writeError(rw, http.StatusBadRequest, invalidRequestMsg)
		return
	}
	upstreamReq.Header = r.Header.Clone()
	stripHopByHop(upstreamReq.Header)

	h.forward(rw, upstreamReq)
}

// forward relays req upstream and streams the response back, mirroring both
// bodies when a recorder is configured.
func (h *Handler) forward(rw http.ResponseWriter, req *http.Request) {
	var reqBody *bodyCapture
	if h.recorder != nil && req.Body != nil && req.Body != http.NoBody {
		reqBody = newBodyCapture()
		req.Body = reqBody.wrap(req.Body)
	}

	resp, err := h.transport.RoundTrip(req)
	if err != nil {
		log.Warn().Err(err).Str("url", req.URL.String()).Msg("upstream request failed")
		writeError(rw, http.StatusBadGateway, badGatewayMsg)
		return
	}
	defer resp.Body.Close()

	log.Debug().Int("status", resp.StatusCode).Str("url", req.URL.String()).Msg("upstream responded")

	header := resp.Header.Clone()
	stripHopByHop(header)
	clear(rw.Header())
	maps.Copy(rw.Header(), header)
	rw.WriteHeader(resp.StatusCode)

	if h.recorder == nil {
		if _, err := io.Copy(rw, resp.Body); err != nil {
			log.Warn().Err(err).Msg("copy response body failed")
		}
		return
	}

	var respBody bytes.Buffer
	out := teeio.NewWriter(rw, &respBody)
	if _, err := io.Copy(out, resp.Body); err != nil {
		log.Warn().Err(err).Msg("copy response body failed")
		return
	}
	if err := out.Flush(); err != nil {
		log.Debug().Err(err).Msg("flush response failed")
	}

	var sent []byte
	if reqBody != nil {
		sent = reqBody.snapshot(req.Context())
	}
	reqCopy := req.Clone(req.Context())
	reqCopy.Body = io.NopCloser(bytes.NewReader(sent))
	respCopy := *resp
	respCopy.Body = io.NopCloser(bytes.NewReader(respBody.Bytes()))
	h.recorder.RecordExchange(reqCopy, &respCopy)
}

// writeError sends status with a short plain-text message.
func writeError(rw http.ResponseWriter, status int, msg []byte) {
	rw.WriteHeader(status)
	rw.Write(msg)
}

// handleConnect hijacks the client connection and dispatches on the target
// port: TLS interception, plain HTTP over the tunnel, or a raw tunnel.
func (h *Handler) handleConnect(rw http.ResponseWriter, r *http.Request) {
	host, port, err := net.SplitHostPort(r.RequestURI)
	if err != nil {
		log.Warn().Err(err).Str("request_uri", r.RequestURI).Msg("invalid CONNECT target")
		writeError(rw, http.StatusBadRequest, []byte("Invalid CONNECT request: unable to parse host and port"))
		return
	}

	hijacker, ok := rw.(http.Hijacker)
	if !ok {
		log.Warn().Err(errors.New("response writer does not support hijacking")).Msg("hijack failed")
		writeError(rw, http.StatusInternalServerError, internalErrorMsg)
		return
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		log.Warn().Err(err).Msg("hijack failed")
		writeError(rw, http.StatusInternalServerError, internalErrorMsg)
		return
	}

	switch port {
	case httpsPort:
		h.interceptTLS(conn, host, r.Proto)
	case httpPort:
		h.interceptHTTP(conn, host, r.Proto)
	default:
		h.tunnel(conn, host, port, r.Proto)
	}
}
