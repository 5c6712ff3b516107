package distribution

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN is the application protocol viewers negotiate on their QUIC
// connection.
const ALPN = "reframe/1"

// Application error codes sent on connection close.
const (
	errCodeUnknownStream quic.ApplicationErrorCode = 0x01
	errCodeBadRequest    quic.ApplicationErrorCode = 0x02
)

// subscribeTimeout bounds how long a connected viewer may take to send
// its subscribe line before the connection is dropped.
const subscribeTimeout = 10 * time.Second

// RelayLookup resolves a stream key to its Relay, or false when no such
// source is live.
type RelayLookup func(key string) (*Relay, bool)

// Server accepts QUIC viewer connections. A viewer opens one bidirectional
// stream, sends the stream key it wants terminated by '\n', and then
// receives varint-framed geometry and frame records on the same stream
// until it disconnects or the source ends.
type Server struct {
	log     *slog.Logger
	addr    string
	tlsConf *tls.Config
	lookup  RelayLookup

	nextViewerID atomic.Int64
}

// NewServer creates a viewer server listening on addr with the given TLS
// certificate. If log is nil, slog.Default() is used.
func NewServer(addr string, cert tls.Certificate, lookup RelayLookup, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:  log.With("component", "quic-server"),
		addr: addr,
		tlsConf: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{ALPN},
		},
		lookup: lookup,
	}
}

// Start begins accepting viewer connections. It blocks until the context
// is cancelled.
func (s *Server) Start(ctx context.Context) error {
	l, err := quic.ListenAddr(s.addr, s.tlsConf, &quic.Config{
		MaxIdleTimeout: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("QUIC listen on %s: %w", s.addr, err)
	}
	defer l.Close()
	s.log.Info("listening", "addr", s.addr)

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn quic.Connection) {
	acceptCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	stream, err := conn.AcceptStream(acceptCtx)
	cancel()
	if err != nil {
		s.log.Debug("no subscribe stream", "remote", conn.RemoteAddr(), "error", err)
		conn.CloseWithError(errCodeBadRequest, "no subscribe stream")
		return
	}

	key, err := readSubscribeLine(stream)
	if err != nil {
		s.log.Debug("bad subscribe line", "remote", conn.RemoteAddr(), "error", err)
		conn.CloseWithError(errCodeBadRequest, "bad subscribe line")
		return
	}

	relay, ok := s.lookup(key)
	if !ok {
		s.log.Info("viewer requested unknown stream", "stream_key", key, "remote", conn.RemoteAddr())
		conn.CloseWithError(errCodeUnknownStream, "unknown stream key")
		return
	}

	id := fmt.Sprintf("%s#%d", conn.RemoteAddr(), s.nextViewerID.Add(1))
	sess := newViewerSession(id, stream, NewRecordWriter(), s.log)

	relay.Attach(sess)
	defer relay.Detach(id)

	s.log.Info("viewer connected", "stream_key", key, "viewer", id)
	err = sess.run(ctx)

	stats := sess.Stats()
	s.log.Info("viewer disconnected", "stream_key", key, "viewer", id,
		"frames", stats.FramesSent, "dropped", stats.FramesDropped,
		"bytes", stats.BytesSent, "reason", err)
	conn.CloseWithError(0, "")
}

// readSubscribeLine reads the newline-terminated stream key a viewer
// sends after connecting.
func readSubscribeLine(r quic.Stream) (string, error) {
	line, err := bufio.NewReaderSize(r, 256).ReadString('\n')
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", fmt.Errorf("empty stream key")
	}
	return key, nil
}
