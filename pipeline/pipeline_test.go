package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/zsiec/reframe/media"
	"github.com/zsiec/reframe/rational"
	"github.com/zsiec/reframe/rawvideo"
	"github.com/zsiec/reframe/slicer"
)

func testGeometry() rawvideo.Geometry {
	return rawvideo.Geometry{
		Format:    rawvideo.FormatGray8,
		Width:     4,
		Height:    2,
		FrameRate: rational.New(30, 1),
	}
}

// scriptedSink replays a fixed list of demands, then reports EOF. It
// records every delivered frame.
type scriptedSink struct {
	demands []slicer.Demand
	next    int
	frames  []media.RawFrame
}

func (s *scriptedSink) Demand(ctx context.Context) (slicer.Demand, error) {
	if s.next >= len(s.demands) {
		return slicer.Demand{}, io.EOF
	}
	d := s.demands[s.next]
	s.next++
	return d, nil
}

func (s *scriptedSink) Deliver(frames []media.RawFrame) error {
	s.frames = append(s.frames, frames...)
	return nil
}

// countingReader fails the test if it is read before the sink issued any
// demand, and tracks total bytes served.
type countingReader struct {
	t        *testing.T
	inner    io.Reader
	sink     *scriptedSink
	total    int
	maxChunk int
}

func (r *countingReader) Read(p []byte) (int, error) {
	if r.sink.next == 0 {
		r.t.Error("source read before any demand was issued")
	}
	if r.maxChunk > 0 && len(p) > r.maxChunk {
		p = p[:r.maxChunk]
	}
	n, err := r.inner.Read(p)
	r.total += n
	return n, err
}

func input(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestPipelinePullLoop(t *testing.T) {
	t.Parallel()

	sink := &scriptedSink{demands: []slicer.Demand{
		{Unit: slicer.DemandFrames, Amount: 2},
		{Unit: slicer.DemandBytes, Amount: 8},
	}}
	src := &countingReader{t: t, inner: bytes.NewReader(input(64)), sink: sink}

	p, err := New("test", testGeometry(), src, sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 2 frames × 8 bytes + 8 raw bytes = 24 bytes requested and read.
	if src.total != 24 {
		t.Errorf("bytes read: got %d, want 24", src.total)
	}
	if len(sink.frames) != 3 {
		t.Fatalf("frames delivered: got %d, want 3", len(sink.frames))
	}
	for i, f := range sink.frames {
		if want := rational.New(1000000000, 30).MulInt(int64(i)); f.PTS != want {
			t.Errorf("frame %d PTS: got %v, want %v", i, f.PTS, want)
		}
	}

	stats := p.Snapshot()
	if stats.FramesEmitted != 3 || stats.BytesIn != 24 || stats.BytesRequested != 24 {
		t.Errorf("stats: got %+v", stats)
	}
}

func TestPipelineShortReads(t *testing.T) {
	t.Parallel()

	sink := &scriptedSink{demands: []slicer.Demand{
		{Unit: slicer.DemandFrames, Amount: 4},
	}}
	// 3-byte reads force the pipeline to accumulate toward the demand.
	src := &countingReader{t: t, inner: bytes.NewReader(input(32)), sink: sink, maxChunk: 3}

	p, err := New("test", testGeometry(), src, sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sink.frames) != 4 {
		t.Fatalf("frames delivered: got %d, want 4", len(sink.frames))
	}
	for i, f := range sink.frames {
		if !bytes.Equal(f.Data, input(32)[i*8:(i+1)*8]) {
			t.Errorf("frame %d payload mismatch", i)
		}
	}
}

func TestPipelineSourceEOFMidDemand(t *testing.T) {
	t.Parallel()

	sink := &scriptedSink{demands: []slicer.Demand{
		{Unit: slicer.DemandFrames, Amount: 10},
	}}
	// Only 19 bytes available: two frames and 3 discarded pending bytes.
	src := &countingReader{t: t, inner: bytes.NewReader(input(19)), sink: sink}

	p, err := New("test", testGeometry(), src, sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run should treat source EOF as clean shutdown, got %v", err)
	}

	if len(sink.frames) != 2 {
		t.Errorf("frames delivered: got %d, want 2", len(sink.frames))
	}
	if p.Pending() != 3 {
		t.Errorf("pending: got %d, want 3", p.Pending())
	}
}

func TestPipelineContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	sink := &FixedWindowSink{Handler: func([]media.RawFrame) error { return nil }}

	pr, pw := io.Pipe()
	p, err := New("test", testGeometry(), pr, sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	pw.CloseWithError(context.Canceled)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel: got %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPipelineUpdateGeometry(t *testing.T) {
	t.Parallel()

	sink := &scriptedSink{}
	p, err := New("test", testGeometry(), bytes.NewReader(nil), sink, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	geo := testGeometry()
	geo.Width = 8
	if err := p.UpdateGeometry(geo); err != nil {
		t.Fatalf("UpdateGeometry failed: %v", err)
	}
	if p.FrameSize() != 16 {
		t.Errorf("frame size: got %d, want 16", p.FrameSize())
	}

	bad := testGeometry()
	bad.Width = 0
	var geoErr *rawvideo.GeometryError
	if err := p.UpdateGeometry(bad); !errors.As(err, &geoErr) {
		t.Errorf("got %v, want GeometryError", err)
	}
}

func TestFixedWindowSinkDemand(t *testing.T) {
	t.Parallel()

	sink := &FixedWindowSink{Window: 4}
	d, err := sink.Demand(context.Background())
	if err != nil {
		t.Fatalf("Demand failed: %v", err)
	}
	if d.Unit != slicer.DemandFrames || d.Amount != 4 {
		t.Errorf("demand: got %+v", d)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sink.Demand(ctx); err == nil {
		t.Error("Demand with cancelled context should fail")
	}
}

func TestPacedSinkPassesUnclocked(t *testing.T) {
	t.Parallel()

	delivered := 0
	inner := &FixedWindowSink{Window: 8, Handler: func(f []media.RawFrame) error {
		delivered += len(f)
		return nil
	}}
	geo := testGeometry()
	geo.FrameRate = rational.Zero

	paced := NewPacedSink(inner, geo, 8)
	d, err := paced.Demand(context.Background())
	if err != nil {
		t.Fatalf("Demand failed: %v", err)
	}
	if d.Amount != 8 {
		t.Errorf("unclocked demand: got %d, want 8", d.Amount)
	}
	if err := paced.Deliver(make([]media.RawFrame, 3)); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if delivered != 3 {
		t.Errorf("delivered: got %d, want 3", delivered)
	}
}

func TestPacedSinkClampsToBurst(t *testing.T) {
	t.Parallel()

	inner := &FixedWindowSink{Window: 100}
	paced := NewPacedSink(inner, testGeometry(), 10)

	// The first demand is served from the initial burst allowance and must
	// be clamped to it.
	d, err := paced.Demand(context.Background())
	if err != nil {
		t.Fatalf("Demand failed: %v", err)
	}
	if d.Amount != 10 {
		t.Errorf("clamped demand: got %d, want 10", d.Amount)
	}
}
