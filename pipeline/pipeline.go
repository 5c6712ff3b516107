// Package pipeline orchestrates the ingest-to-distribution data flow for a
// single raw video source. It is a pull scheduler: the sink's demand is
// translated into an upstream byte request, the requested bytes are read
// from the source, re-framed by the slicer, and the resulting frames are
// delivered downstream. No byte is read from the source before demand for
// it exists, which bounds buffering to what has already been pulled in.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/reframe/media"
	"github.com/zsiec/reframe/rational"
	"github.com/zsiec/reframe/rawvideo"
	"github.com/zsiec/reframe/slicer"
)

// readBufferSize caps a single source read. Demand larger than this is
// satisfied across multiple reads.
const readBufferSize = 256 * 1024

// Sink is the downstream consumer driving the pipeline. Demand blocks
// until the sink is ready for more output and says how much; Deliver hands
// over the frames that resulted from satisfying that demand.
type Sink interface {
	Demand(ctx context.Context) (slicer.Demand, error)
	Deliver(frames []media.RawFrame) error
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	FramesEmitted  int64  `json:"framesEmitted"`
	BytesIn        int64  `json:"bytesIn"`
	BytesRequested int64  `json:"bytesRequested"`
	PendingBytes   int    `json:"pendingBytes"`
	FrameSize      int    `json:"frameSize"`
	LastPTS        string `json:"lastPts"`
	UptimeMs       int64  `json:"uptimeMs"`
}

// Pipeline couples one source, one Slicer, and one Sink. The slicer itself
// is single-owner state; the pipeline's mutex serializes the Run loop
// against geometry renegotiation and session reset arriving from the
// ingest layer.
type Pipeline struct {
	log    *slog.Logger
	key    string
	source io.Reader
	sink   Sink

	mu sync.Mutex
	sl *slicer.Slicer

	framesEmitted  atomic.Int64
	bytesIn        atomic.Int64
	bytesRequested atomic.Int64
	lastPTS        atomic.Pointer[rational.Rational]
	startTime      time.Time
}

// New creates a Pipeline for the given source. It fails if the geometry
// has no defined frame size.
func New(key string, geo rawvideo.Geometry, source io.Reader, sink Sink, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}
	sl, err := slicer.New(geo)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		log:       log.With("component", "pipeline", "stream", key),
		key:       key,
		source:    source,
		sink:      sink,
		sl:        sl,
		startTime: time.Now(),
	}, nil
}

// Run drives the pull loop until the context is cancelled, the source
// ends, or the sink stops demanding. Leftover bytes short of a frame are
// discarded with the session; partial frames are never emitted.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.Info("pipeline started",
		"geometry", p.Geometry().String(),
		"frame_size", p.FrameSize(),
	)

	buf := make([]byte, readBufferSize)
	for {
		demand, err := p.sink.Demand(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				p.log.Info("sink stopped demanding", "frames", p.framesEmitted.Load())
				return nil
			}
			return fmt.Errorf("sink demand: %w", err)
		}

		want := slicer.TranslateDemand(demand, p.FrameSize())
		if want <= 0 {
			continue
		}
		p.bytesRequested.Add(int64(want))

		if err := p.pull(ctx, buf, want); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, io.EOF) {
				p.log.Info("source ended",
					"frames", p.framesEmitted.Load(),
					"bytes", p.bytesIn.Load(),
					"discarded_pending", p.Pending(),
				)
				return nil
			}
			return err
		}
	}
}

// pull reads want bytes from the source (tolerating short reads), ingests
// them, and delivers any complete frames.
func (p *Pipeline) pull(ctx context.Context, buf []byte, want int) error {
	for want > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		limit := want
		if limit > len(buf) {
			limit = len(buf)
		}
		n, err := p.source.Read(buf[:limit])
		if n > 0 {
			p.bytesIn.Add(int64(n))
			want -= n

			p.mu.Lock()
			frames, ingestErr := p.sl.Ingest(buf[:n], false)
			p.mu.Unlock()
			if ingestErr != nil {
				return fmt.Errorf("ingest: %w", ingestErr)
			}
			if len(frames) > 0 {
				p.framesEmitted.Add(int64(len(frames)))
				pts := frames[len(frames)-1].PTS
				p.lastPTS.Store(&pts)
				if err := p.sink.Deliver(frames); err != nil {
					return fmt.Errorf("deliver: %w", err)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return io.EOF
			}
			return fmt.Errorf("source read: %w", err)
		}
	}
	return nil
}

// UpdateGeometry applies a renegotiated geometry from the format channel.
// Buffered bytes and the running timestamp survive the switch.
func (p *Pipeline) UpdateGeometry(geo rawvideo.Geometry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sl.UpdateGeometry(geo); err != nil {
		return err
	}
	p.log.Info("geometry updated",
		"geometry", geo.String(),
		"frame_size", p.sl.FrameSize(),
		"pending", p.sl.Pending(),
	)
	return nil
}

// Reset discards pending bytes when the session leaves active playback.
// The timeline continues where it left off.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	dropped := p.sl.Pending()
	p.sl.Reset()
	p.mu.Unlock()
	p.log.Info("session reset", "dropped_pending", dropped)
}

// FrameSize returns the current frame size in bytes.
func (p *Pipeline) FrameSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sl.FrameSize()
}

// Geometry returns the geometry currently in effect.
func (p *Pipeline) Geometry() rawvideo.Geometry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sl.Geometry()
}

// Pending returns the number of buffered bytes not yet forming a frame.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sl.Pending()
}

// Snapshot returns the pipeline's counters for monitoring.
func (p *Pipeline) Snapshot() Stats {
	lastPTS := "0/1"
	if pts := p.lastPTS.Load(); pts != nil {
		lastPTS = pts.String()
	}
	return Stats{
		FramesEmitted:  p.framesEmitted.Load(),
		BytesIn:        p.bytesIn.Load(),
		BytesRequested: p.bytesRequested.Load(),
		PendingBytes:   p.Pending(),
		FrameSize:      p.FrameSize(),
		LastPTS:        lastPTS,
		UptimeMs:       time.Since(p.startTime).Milliseconds(),
	}
}
