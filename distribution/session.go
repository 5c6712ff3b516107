package distribution

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/reframe/media"
	"github.com/zsiec/reframe/rawvideo"
)

// Compile-time interface check.
var _ Viewer = (*viewerSession)(nil)

// viewerSession delivers frames from a Relay to one connected viewer. A
// buffered channel decouples the relay's fan-out from the viewer's write
// speed; when the buffer is full, SendFrame drops the frame and counts it
// instead of blocking the relay.
type viewerSession struct {
	id     string
	log    *slog.Logger
	writer FrameWriter
	out    io.Writer
	ch     chan media.RawFrame

	framesSent    atomic.Int64
	framesDropped atomic.Int64
	bytesSent     atomic.Int64
	connectedAt   time.Time
}

func newViewerSession(id string, out io.Writer, writer FrameWriter, log *slog.Logger) *viewerSession {
	if log == nil {
		log = slog.Default()
	}
	return &viewerSession{
		id:          id,
		log:         log.With("component", "viewer", "viewer", id),
		writer:      writer,
		out:         out,
		ch:          make(chan media.RawFrame, media.FrameBufferSize),
		connectedAt: time.Now(),
	}
}

func (v *viewerSession) ID() string {
	return v.id
}

// SendFrame enqueues a frame for delivery, dropping it if the viewer's
// buffer is full.
func (v *viewerSession) SendFrame(frame media.RawFrame) {
	select {
	case v.ch <- frame:
	default:
		v.framesDropped.Add(1)
	}
}

// Stats returns this viewer's delivery counters.
func (v *viewerSession) Stats() ViewerStats {
	return ViewerStats{
		ID:            v.id,
		FramesSent:    v.framesSent.Load(),
		FramesDropped: v.framesDropped.Load(),
		BytesSent:     v.bytesSent.Load(),
		ConnectedAt:   v.connectedAt.UnixMilli(),
	}
}

// run writes queued frames to the viewer's stream until the context is
// cancelled or a write fails. A geometry record precedes the first frame
// and every frame whose geometry differs from the last one announced, so
// renegotiation reaches viewers in-band.
func (v *viewerSession) run(ctx context.Context) error {
	var announced *rawvideo.Geometry

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-v.ch:
			if announced == nil || *announced != frame.Geometry {
				geo := frame.Geometry
				n, err := v.writer.WriteGeometry(v.out, geo)
				v.bytesSent.Add(n)
				if err != nil {
					return fmt.Errorf("write geometry record: %w", err)
				}
				announced = &geo
			}

			n, err := v.writer.WriteFrame(v.out, &frame)
			v.bytesSent.Add(n)
			if err != nil {
				return fmt.Errorf("write frame record: %w", err)
			}
			v.framesSent.Add(1)
		}
	}
}
