// Package srt accepts SRT connections carrying raw video bytes. The SRT
// stream ID declares the source key and geometry
// ("key?format:WxH@num/den"); connections without a parseable geometry
// are rejected at the handshake, since no frame size can be derived for
// them.
package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/reframe/ingest"
	"github.com/zsiec/reframe/rawvideo"
)

// srtReadBufferSize is the read buffer for SRT socket reads.
// 1316 bytes is the standard SRT payload size.
const srtReadBufferSize = 1316 * 10

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// Server accepts incoming SRT publish connections and registers them with
// the ingest registry for re-framing.
type Server struct {
	log      *slog.Logger
	addr     string
	registry *ingest.Registry
}

// NewServer creates an SRT server that listens on addr and registers
// incoming sources with the given registry. If log is nil, slog.Default()
// is used.
func NewServer(addr string, registry *ingest.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log.With("component", "srt-server"),
		addr:     addr,
		registry: registry,
	}
}

// Start begins accepting SRT publish connections. It blocks until the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	s.log.Info("listening", "addr", s.addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if _, _, err := parseStreamID(req.StreamID); err != nil {
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		key, geo, err := parseStreamID(conn.StreamID())
		if err != nil {
			// Vetted at accept time already; failing here means the
			// stream ID mutated between handshake and accept.
			s.log.Warn("stream ID rejected", "stream_id", conn.StreamID(), "error", err)
			conn.Close()
			continue
		}
		s.log.Info("publish", "stream_key", key, "geometry", geo.String(), "remote", conn.RemoteAddr())

		go s.handleConnection(ctx, conn, key, geo)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn *srtgo.Conn, key string, geo rawvideo.Geometry) {
	defer conn.Close()

	source, writer, err := s.registry.Register(key, geo)
	if err != nil {
		s.log.Warn("rejecting publish", "stream_key", key, "error", err)
		return
	}
	source.SetRemoteAddr(conn.RemoteAddr().String())

	buf := make([]byte, srtReadBufferSize)
	for {
		if ctx.Err() != nil {
			break
		}
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("read error", "stream_key", key, "error", err)
			}
			break
		}
		source.RecordRead(n)
		if _, err := writer.Write(buf[:n]); err != nil {
			s.log.Debug("pipe write error", "stream_key", key, "error", err)
			break
		}
	}

	stats := source.Stats()
	s.registry.Unregister(key)
	s.log.Info("connection closed", "stream_key", key,
		"bytes", stats.BytesReceived, "reads", stats.ReadCount,
		"uptime_ms", stats.UptimeMs)
}

// parseStreamID splits an SRT stream ID of the form "key?geometry",
// e.g. "cam1?i420:1280x720@30000/1001". The key defaults to "default"
// when empty; the geometry part is mandatory.
func parseStreamID(streamID string) (string, rawvideo.Geometry, error) {
	streamID = strings.TrimPrefix(streamID, "/")

	key, geoStr, ok := strings.Cut(streamID, "?")
	if !ok || geoStr == "" {
		return "", rawvideo.Geometry{}, fmt.Errorf("stream ID %q: missing geometry", streamID)
	}
	if key == "" {
		key = "default"
	}

	geo, err := rawvideo.ParseGeometry(geoStr)
	if err != nil {
		return "", rawvideo.Geometry{}, err
	}
	return key, geo, nil
}
