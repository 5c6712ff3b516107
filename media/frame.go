// Package media defines the core frame type that flows through the reframe
// processing pipeline, from slicing through distribution.
package media

import (
	"github.com/zsiec/reframe/rational"
	"github.com/zsiec/reframe/rawvideo"
)

// FrameBufferSize is the per-viewer channel depth used to decouple frame
// production from consumption. Sized to absorb scheduling jitter without
// excessive memory: two seconds of video at 30fps.
const FrameBufferSize = 60

// RawFrame is one uncompressed picture cut from the ingest byte stream.
// Data is exactly the frame size derived from Geometry, and Geometry is
// the descriptor the frame was sliced under, propagated downstream
// unchanged. PTS is the exact presentation timestamp in nanoseconds,
// expressed as a fraction to avoid rounding across long streams.
type RawFrame struct {
	Data     []byte
	PTS      rational.Rational
	Geometry rawvideo.Geometry
}
