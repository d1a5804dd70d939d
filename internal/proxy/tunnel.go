package proxy

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/agstrc/teeio"
)

// connectEstablished is the response line that opens a CONNECT tunnel.
func connectEstablished(proto string) []byte {
	return fmt.Appendf(nil, "%s 200 Connection Established\r\n\r\n", proto)
}

// tunnel relays raw bytes between the client and host:port. Each direction is
// read through a teeio.Reader so the recorder sees exactly what was relayed.
func (h *Handler) tunnel(conn net.Conn, host, port, proto string) {
	target := net.JoinHostPort(host, port)
	logger := log.With().Str("target", target).Logger()

	upstream, err := net.Dial("tcp", target)
	if err != nil {
		logger.Warn().Err(err).Msg("dial upstream failed")
		conn.Close()
		return
	}

	if _, err := conn.Write(connectEstablished(proto)); err != nil {
		logger.Error().Err(err).Msg("write CONNECT response failed")
		conn.Close()
		upstream.Close()
		return
	}
	logger.Debug().Msg("tunnel established")

	var clientSrc, upstreamSrc io.Reader = conn, upstream
	capturing := h.recorder != nil && h.captureTunnels
	var sent, received bytes.Buffer
	if capturing {
		clientSrc = teeio.NewReader(conn, &sent)
		upstreamSrc = teeio.NewReader(upstream, &received)
	}

	var g errgroup.Group
	g.Go(func() error {
		defer upstream.Close()
		_, err := io.Copy(upstream, clientSrc)
		return err
	})
	g.Go(func() error {
		defer conn.Close()
		_, err := io.Copy(conn, upstreamSrc)
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Debug().Err(err).Msg("tunnel copy finished")
	}
	logger.Debug().Int("sent", sent.Len()).Int("received", received.Len()).Msg("tunnel closed")

	if capturing {
		h.recorder.RecordTunnel(target, sent.Bytes(), received.Bytes())
	}
}

// interceptTLS terminates TLS with a leaf issued for host and proxies the
// decrypted requests.
func (h *Handler) interceptTLS(conn net.Conn, host, proto string) {
	if _, err := conn.Write(connectEstablished(proto)); err != nil {
		log.Error().Err(err).Msg("write CONNECT response failed")
		conn.Close()
		return
	}

	cert, err := h.issuer.Certificate(host)
	if err != nil {
		log.Error().Err(err).Str("host", host).Msg("issue certificate failed")
		conn.Close()
		return
	}

	tlsConn := tls.Server(conn, &tls.Config{
		Certificates: []tls.Certificate{*cert},
		NextProtos:   []string{"http/1.1"},
	})
	if err := tlsConn.Handshake(); err != nil {
		log.Warn().Err(err).Str("host", host).Msg("TLS handshake failed")
		tlsConn.Close()
		return
	}
	log.Debug().Str("host", host).Msg("TLS intercepted")

	h.serveTunnel(tlsConn, "https", host)
}

// interceptHTTP serves plain HTTP requests sent through a CONNECT to port 80.
func (h *Handler) interceptHTTP(conn net.Conn, host, proto string) {
	if _, err := conn.Write(connectEstablished(proto)); err != nil {
		log.Error().Err(err).Msg("write CONNECT response failed")
		conn.Close()
		return
	}
	h.serveTunnel(conn, "http", host)
}

// serveTunnel serves HTTP requests arriving on an established tunnel until the
// connection closes.
func (h *Handler) serveTunnel(conn net.Conn, scheme, host string) {
	handler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		upstreamReq := r.Clone(r.Context())
		upstreamReq.URL.Scheme = scheme
		upstreamReq.URL.Host = host
		upstreamReq.RequestURI = ""
		stripHopByHop(upstreamReq.Header)
		h.forward(rw, upstreamReq)
	})

	server := &http.Server{Handler: handler}
	server.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateClosed || state == http.StateHijacked {
			server.Close()
		}
	}
	server.Serve(newConnListener(conn))
}
