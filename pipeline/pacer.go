package pipeline

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/zsiec/reframe/media"
	"github.com/zsiec/reframe/rawvideo"
	"github.com/zsiec/reframe/slicer"
)

// DefaultDemandWindow is the number of frames requested per demand batch
// when the caller does not choose one.
const DefaultDemandWindow = 16

// PacedSink wraps a Sink and throttles its frame demand to the stream's
// frame rate, so a pipeline fed from a file or a faster-than-realtime
// source emits frames at presentation speed. Byte-unit demand and
// unclocked geometries pass through unpaced; pacing is wall-clock
// scheduling only and never feeds back into timestamp arithmetic.
type PacedSink struct {
	inner   Sink
	limiter *rate.Limiter
}

// NewPacedSink wraps inner with a limiter derived from the geometry's
// frame rate. window frames of burst are allowed so demand batches are not
// broken up; window <= 0 uses DefaultDemandWindow.
func NewPacedSink(inner Sink, geo rawvideo.Geometry, window int) *PacedSink {
	if window <= 0 {
		window = DefaultDemandWindow
	}
	var limiter *rate.Limiter
	if geo.FrameRate.Num > 0 {
		limiter = rate.NewLimiter(rate.Limit(geo.FrameRate.Float64()), window)
	}
	return &PacedSink{inner: inner, limiter: limiter}
}

// Demand obtains the inner sink's demand, then blocks until the limiter
// releases that many frames.
func (p *PacedSink) Demand(ctx context.Context) (slicer.Demand, error) {
	d, err := p.inner.Demand(ctx)
	if err != nil {
		return d, err
	}
	if p.limiter != nil && d.Unit == slicer.DemandFrames && d.Amount > 0 {
		n := d.Amount
		if n > p.limiter.Burst() {
			n = p.limiter.Burst()
			d.Amount = n
		}
		if err := p.limiter.WaitN(ctx, n); err != nil {
			return slicer.Demand{}, err
		}
	}
	return d, nil
}

// Deliver forwards frames to the inner sink.
func (p *PacedSink) Deliver(frames []media.RawFrame) error {
	return p.inner.Deliver(frames)
}

// FixedWindowSink is a free-running demand source for sinks that accept
// everything as fast as it arrives, such as the stdout record writer. Each
// Demand call asks for one window of frames; wrap it in a PacedSink for
// realtime delivery.
type FixedWindowSink struct {
	Handler func(frames []media.RawFrame) error
	Window  int
}

// Demand asks for one window of frames.
func (f *FixedWindowSink) Demand(ctx context.Context) (slicer.Demand, error) {
	if err := ctx.Err(); err != nil {
		return slicer.Demand{}, err
	}
	window := f.Window
	if window <= 0 {
		window = DefaultDemandWindow
	}
	return slicer.Demand{Unit: slicer.DemandFrames, Amount: window}, nil
}

// Deliver invokes the handler.
func (f *FixedWindowSink) Deliver(frames []media.RawFrame) error {
	return f.Handler(frames)
}
