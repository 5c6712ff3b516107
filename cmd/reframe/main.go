// Command reframe re-frames raw video byte streams into timestamped,
// fixed-size frames. In server mode it accepts SRT publishers and serves
// viewers over QUIC; with --stdin it re-frames a single stream from
// standard input to varint records on standard output.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/reframe/certs"
	"github.com/zsiec/reframe/distribution"
	"github.com/zsiec/reframe/ingest"
	srtingest "github.com/zsiec/reframe/ingest/srt"
	"github.com/zsiec/reframe/media"
	"github.com/zsiec/reframe/pipeline"
	"github.com/zsiec/reframe/rawvideo"
	"github.com/zsiec/reframe/stream"
)

var version = "dev"

func main() {
	var (
		srtAddr      = pflag.String("srt-listen", ":6000", "SRT publish listen address")
		quicAddr     = pflag.String("quic-listen", ":4443", "QUIC viewer listen address")
		window       = pflag.Int("window", pipeline.DefaultDemandWindow, "frames requested per demand batch")
		pace         = pflag.Bool("pace", true, "throttle delivery to the stream's frame rate")
		certValidity = pflag.Duration("cert-validity", 14*24*time.Hour, "self-signed certificate validity")
		stdinMode    = pflag.Bool("stdin", false, "re-frame stdin to varint records on stdout")
		geometryStr  = pflag.String("geometry", "", "stream geometry for --stdin mode, e.g. i420:1280x720@30/1")
	)
	pflag.Parse()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if *stdinMode {
		if err := runStdin(ctx, *geometryStr, *window, *pace); err != nil {
			slog.Error("stdin re-framing failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cert, err := certs.Generate(*certValidity)
	if err != nil {
		slog.Error("failed to generate cert", "error", err)
		os.Exit(1)
	}

	slog.Info("reframe starting",
		"version", version,
		"srt", *srtAddr,
		"quic", *quicAddr,
		"cert_hash", cert.FingerprintBase64(),
	)

	g, ctx := errgroup.WithContext(ctx)

	a := &app{
		mgr:    stream.NewManager(nil),
		window: *window,
		pace:   *pace,
	}

	// The registry callback captures the errgroup-derived context so
	// sessions shut down when any component fails.
	a.registry = ingest.NewRegistry(func(key string, input io.Reader, geo rawvideo.Geometry) {
		a.handleNewSource(ctx, key, input, geo)
	})

	srtSrv := srtingest.NewServer(*srtAddr, a.registry, nil)
	quicSrv := distribution.NewServer(*quicAddr, cert.TLSCert, a.lookupRelay, nil)

	g.Go(func() error {
		return srtSrv.Start(ctx)
	})
	g.Go(func() error {
		return quicSrv.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type app struct {
	mgr      *stream.Manager
	registry *ingest.Registry
	window   int
	pace     bool
}

// lookupRelay resolves viewer subscriptions to the session's relay.
func (a *app) lookupRelay(key string) (*distribution.Relay, bool) {
	s, ok := a.mgr.Get(key)
	if !ok {
		return nil, false
	}
	return s.Relay, true
}

// handleNewSource builds and runs a re-framing session for a newly
// registered source. It returns when the source ends.
func (a *app) handleNewSource(ctx context.Context, key string, input io.Reader, geo rawvideo.Geometry) {
	slog.Info("new source from ingest", "key", key, "geometry", geo.String())

	relay := distribution.NewRelay(a.window)

	var sink pipeline.Sink = relay
	if a.pace {
		sink = pipeline.NewPacedSink(relay, geo, a.window)
	}

	p, err := pipeline.New(key, geo, input, sink, nil)
	if err != nil {
		slog.Error("rejecting source", "key", key, "error", err)
		a.registry.Unregister(key)
		return
	}

	if _, created := a.mgr.Create(key, p, relay); !created {
		// Unregister closes the pipe so the publisher's writes fail fast
		// instead of blocking on a session nobody will run.
		slog.Warn("rejecting duplicate source connection", "key", key)
		a.registry.Unregister(key)
		return
	}
	defer a.mgr.Remove(key)

	if err := p.Run(ctx); err != nil {
		slog.Error("pipeline error", "stream", key, "error", err)
	}
	slog.Info("source ended", "key", key)
}

// runStdin re-frames a single raw stream from stdin, writing varint
// geometry and frame records to stdout.
func runStdin(ctx context.Context, geometryStr string, window int, pace bool) error {
	if geometryStr == "" {
		return errors.New("--stdin requires --geometry")
	}
	geo, err := rawvideo.ParseGeometry(geometryStr)
	if err != nil {
		return err
	}

	writer := distribution.NewRecordWriter()
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	if _, err := writer.WriteGeometry(out, geo); err != nil {
		return fmt.Errorf("write geometry record: %w", err)
	}

	var sink pipeline.Sink = &pipeline.FixedWindowSink{
		Window: window,
		Handler: func(frames []media.RawFrame) error {
			for i := range frames {
				if _, err := writer.WriteFrame(out, &frames[i]); err != nil {
					return fmt.Errorf("write frame record: %w", err)
				}
			}
			return out.Flush()
		},
	}
	if pace {
		sink = pipeline.NewPacedSink(sink, geo, window)
	}

	p, err := pipeline.New("stdin", geo, os.Stdin, sink, nil)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}
