// Package slicer turns an arbitrarily chunked raw video byte stream into a
// sequence of fixed-size frames, each stamped with an exact presentation
// timestamp derived from the stream's frame rate. It inspects nothing but
// byte counts: pixel data passes through untouched.
package slicer

import (
	"errors"

	"github.com/zsiec/reframe/media"
	"github.com/zsiec/reframe/rational"
	"github.com/zsiec/reframe/rawvideo"
)

// ErrUpstreamTimestamp is returned by Ingest when a chunk arrives carrying
// its own timing metadata. Timing is solely this component's
// responsibility; an upstream that stamps chunks is violating the framing
// contract and the session cannot continue.
var ErrUpstreamTimestamp = errors.New("upstream chunk carries timing metadata")

// Slicer accumulates ingested bytes and cuts them into frames of the exact
// size the current geometry dictates. It is owned by a single session and
// is not safe for concurrent use: callers serialize Ingest,
// UpdateGeometry, and Reset.
type Slicer struct {
	geometry      rawvideo.Geometry
	frameSize     int
	pending       []byte
	frameDuration rational.Rational
	timestamp     rational.Rational
}

// New creates a Slicer for the given geometry. It fails with a
// *rawvideo.GeometryError if the format/dimension combination has no
// defined frame size; a Slicer that constructs successfully can never hit
// a sizing error later.
func New(geo rawvideo.Geometry) (*Slicer, error) {
	s := &Slicer{timestamp: rational.Zero}
	if err := s.applyGeometry(geo); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Slicer) applyGeometry(geo rawvideo.Geometry) error {
	size, err := geo.FrameSize()
	if err != nil {
		return err
	}
	s.geometry = geo
	s.frameSize = size
	s.frameDuration = geo.FrameDuration(rawvideo.TimeUnitNanoseconds)
	return nil
}

// UpdateGeometry switches the slicer to a renegotiated geometry,
// recomputing the frame size and duration. Bytes already pending and the
// running timestamp are preserved: a format change does not re-time or
// drop buffered data. On error the previous geometry stays in effect.
func (s *Slicer) UpdateGeometry(geo rawvideo.Geometry) error {
	return s.applyGeometry(geo)
}

// Ingest appends chunk to the pending buffer and returns every complete
// frame the buffer now holds, in arrival order. Each frame is stamped with
// the running timestamp, which then advances by one frame duration; a zero
// duration (unclocked stream) leaves the timestamp where it is. Bytes
// short of a full frame stay pending for the next call, so the pending
// length is always below the frame size on return.
//
// chunkHasTimestamp must be false; true reports a contract breach by the
// upstream byte source and fails with ErrUpstreamTimestamp before any
// bytes are consumed.
func (s *Slicer) Ingest(chunk []byte, chunkHasTimestamp bool) ([]media.RawFrame, error) {
	if chunkHasTimestamp {
		return nil, ErrUpstreamTimestamp
	}
	s.pending = append(s.pending, chunk...)

	if len(s.pending) < s.frameSize {
		return nil, nil
	}

	n := len(s.pending) / s.frameSize
	frames := make([]media.RawFrame, 0, n)
	for i := 0; i < n; i++ {
		// Frames own their bytes: the pending buffer is reused across
		// calls, so each frame is copied out, not aliased.
		data := make([]byte, s.frameSize)
		copy(data, s.pending[i*s.frameSize:])

		frames = append(frames, media.RawFrame{
			Data:     data,
			PTS:      s.timestamp,
			Geometry: s.geometry,
		})
		if !s.frameDuration.IsZero() {
			s.timestamp = s.timestamp.Add(s.frameDuration)
		}
	}
	s.pending = s.pending[:copy(s.pending, s.pending[n*s.frameSize:])]
	return frames, nil
}

// Reset discards pending bytes when a session leaves active playback.
// Geometry, frame duration, and the running timestamp are preserved, so a
// restarted session continues its timeline. Partial frames are never
// flushed: whatever was pending is silently dropped.
func (s *Slicer) Reset() {
	s.pending = s.pending[:0]
}

// FrameSize returns the byte size of one frame under the current geometry.
func (s *Slicer) FrameSize() int {
	return s.frameSize
}

// Pending returns the number of buffered bytes not yet forming a frame.
func (s *Slicer) Pending() int {
	return len(s.pending)
}

// Geometry returns the geometry frames are currently sliced under.
func (s *Slicer) Geometry() rawvideo.Geometry {
	return s.geometry
}

// Timestamp returns the presentation timestamp the next emitted frame
// will carry.
func (s *Slicer) Timestamp() rational.Rational {
	return s.timestamp
}
