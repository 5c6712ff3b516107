// Package rawvideo defines the geometry of an uncompressed video stream:
// pixel format, dimensions, and frame rate, and the pure arithmetic that
// derives per-frame byte counts and durations from them. Geometry is
// validated once, at construction; a valid geometry can never fail to size
// a frame at runtime.
package rawvideo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zsiec/reframe/rational"
)

// TimeUnitNanoseconds is the default timestamp time base: frame durations
// and presentation timestamps are fractions of a second scaled by this unit.
const TimeUnitNanoseconds int64 = 1_000_000_000

// Geometry describes the fixed per-frame layout of a raw video stream.
// FrameRate with a zero numerator means the stream is unclocked: frames
// carry no timing and the slicer does not advance timestamps.
type Geometry struct {
	Format    PixelFormat
	Width     uint32
	Height    uint32
	FrameRate rational.Rational
}

// GeometryError reports a format/dimension combination for which no frame
// byte size is defined. It is returned at construction or renegotiation,
// never mid-stream.
type GeometryError struct {
	Format PixelFormat
	Width  uint32
	Height uint32
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("invalid geometry %s %dx%d: %s", e.Format, e.Width, e.Height, e.Reason)
}

func (g Geometry) invalid(reason string) *GeometryError {
	return &GeometryError{Format: g.Format, Width: g.Width, Height: g.Height, Reason: reason}
}

// FrameSize returns the exact byte count of one frame in this geometry.
// The count is plane-aware: subsampled formats require even dimensions so
// every chroma plane has an integral byte size.
func (g Geometry) FrameSize() (int, error) {
	layout, ok := formatLayouts[g.Format]
	if !ok {
		return 0, g.invalid("unsupported pixel format")
	}
	if g.Width == 0 || g.Height == 0 {
		return 0, g.invalid("zero dimension")
	}
	if layout.evenWidth && g.Width%2 != 0 {
		return 0, g.invalid("width must be even for subsampled chroma")
	}
	if layout.evenHeight && g.Height%2 != 0 {
		return 0, g.invalid("height must be even for subsampled chroma")
	}
	// A zero numerator means unclocked, regardless of denominator, so the
	// zero-value FrameRate is valid. Only a declared fraction is checked.
	if g.FrameRate.Num < 0 || (g.FrameRate.Num != 0 && g.FrameRate.Den <= 0) {
		return 0, g.invalid("frame rate must be a non-negative fraction")
	}
	// bitsPerPixel × width is a whole number of bits per row for every
	// supported layout once the alignment checks above hold.
	return int(uint64(g.Width) * uint64(g.Height) * uint64(layout.bitsPerPixel) / 8), nil
}

// FrameDuration returns the presentation-time interval between consecutive
// frames, as an exact fraction of timeUnit. A zero frame-rate numerator
// yields the zero duration, meaning timestamps do not advance.
func (g Geometry) FrameDuration(timeUnit int64) rational.Rational {
	if g.FrameRate.Num == 0 {
		return rational.Zero
	}
	return rational.New(g.FrameRate.Den*timeUnit, g.FrameRate.Num)
}

// String formats the geometry in the same form ParseGeometry accepts.
func (g Geometry) String() string {
	return fmt.Sprintf("%s:%dx%d@%s", g.Format, g.Width, g.Height, g.FrameRate)
}

// ParseGeometry parses a geometry descriptor of the form
// "format:WxH@num/den", e.g. "i420:1280x720@30000/1001". The frame-rate
// suffix is optional; omitting it produces an unclocked geometry. The
// result is validated via FrameSize.
func ParseGeometry(s string) (Geometry, error) {
	head, rateStr, hasRate := strings.Cut(s, "@")

	formatStr, dims, ok := strings.Cut(head, ":")
	if !ok {
		return Geometry{}, fmt.Errorf("parse geometry %q: want format:WxH[@num/den]", s)
	}

	widthStr, heightStr, ok := strings.Cut(dims, "x")
	if !ok {
		return Geometry{}, fmt.Errorf("parse geometry %q: want format:WxH[@num/den]", s)
	}
	width, err := strconv.ParseUint(widthStr, 10, 32)
	if err != nil {
		return Geometry{}, fmt.Errorf("parse geometry %q: width: %w", s, err)
	}
	height, err := strconv.ParseUint(heightStr, 10, 32)
	if err != nil {
		return Geometry{}, fmt.Errorf("parse geometry %q: height: %w", s, err)
	}

	g := Geometry{
		Format:    PixelFormat(formatStr),
		Width:     uint32(width),
		Height:    uint32(height),
		FrameRate: rational.Zero,
	}

	if hasRate {
		rate, err := rational.Parse(rateStr)
		if err != nil {
			return Geometry{}, fmt.Errorf("parse geometry %q: %w", s, err)
		}
		g.FrameRate = rate
	}

	if _, err := g.FrameSize(); err != nil {
		return Geometry{}, err
	}
	return g, nil
}
