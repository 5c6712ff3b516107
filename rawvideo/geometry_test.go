package rawvideo

import (
	"errors"
	"testing"

	"github.com/zsiec/reframe/rational"
)

func TestFrameSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		format PixelFormat
		w, h   uint32
		want   int
	}{
		{FormatGray8, 4, 2, 8},
		{FormatGray8, 640, 480, 307200},
		{FormatY16, 640, 480, 614400},
		{FormatI420, 1280, 720, 1382400},
		{FormatNV12, 1280, 720, 1382400},
		{FormatI422, 1280, 720, 1843200},
		{FormatI444, 1280, 720, 2764800},
		{FormatYUY2, 1280, 720, 1843200},
		{FormatUYVY, 1280, 720, 1843200},
		{FormatRGB24, 1920, 1080, 6220800},
		{FormatBGR24, 1920, 1080, 6220800},
		{FormatRGBA, 1920, 1080, 8294400},
		{FormatBGRA, 1920, 1080, 8294400},
	}

	for _, tc := range cases {
		g := Geometry{Format: tc.format, Width: tc.w, Height: tc.h, FrameRate: rational.Zero}
		size, err := g.FrameSize()
		if err != nil {
			t.Errorf("%s %dx%d: unexpected error: %v", tc.format, tc.w, tc.h, err)
			continue
		}
		if size != tc.want {
			t.Errorf("%s %dx%d: got %d bytes, want %d", tc.format, tc.w, tc.h, size, tc.want)
		}
	}
}

func TestFrameSizeZeroDimension(t *testing.T) {
	t.Parallel()

	for _, g := range []Geometry{
		{Format: FormatGray8, Width: 0, Height: 480},
		{Format: FormatGray8, Width: 640, Height: 0},
	} {
		_, err := g.FrameSize()
		var geoErr *GeometryError
		if !errors.As(err, &geoErr) {
			t.Errorf("%dx%d: got %v, want GeometryError", g.Width, g.Height, err)
		}
	}
}

func TestFrameSizeUnsupportedFormat(t *testing.T) {
	t.Parallel()
	g := Geometry{Format: "p010", Width: 640, Height: 480}
	_, err := g.FrameSize()
	var geoErr *GeometryError
	if !errors.As(err, &geoErr) {
		t.Fatalf("got %v, want GeometryError", err)
	}
}

func TestFrameSizeOddDimensionSubsampled(t *testing.T) {
	t.Parallel()

	// 4:2:0 needs both dimensions even; 4:2:2 only the width.
	if _, err := (Geometry{Format: FormatI420, Width: 641, Height: 480}).FrameSize(); err == nil {
		t.Error("i420 with odd width should fail")
	}
	if _, err := (Geometry{Format: FormatI420, Width: 640, Height: 481}).FrameSize(); err == nil {
		t.Error("i420 with odd height should fail")
	}
	if _, err := (Geometry{Format: FormatI422, Width: 640, Height: 481}).FrameSize(); err != nil {
		t.Errorf("i422 with odd height should be fine, got %v", err)
	}
	if _, err := (Geometry{Format: FormatGray8, Width: 641, Height: 481}).FrameSize(); err != nil {
		t.Errorf("gray8 with odd dimensions should be fine, got %v", err)
	}
}

func TestFrameSizeZeroValueFrameRate(t *testing.T) {
	t.Parallel()

	// A Geometry built without an explicit FrameRate is unclocked, not
	// invalid. Only a declared fraction gets range-checked.
	g := Geometry{Format: FormatGray8, Width: 640, Height: 480}
	size, err := g.FrameSize()
	if err != nil {
		t.Fatalf("zero-value frame rate: unexpected error: %v", err)
	}
	if size != 307200 {
		t.Errorf("got %d bytes, want 307200", size)
	}
	if !g.FrameDuration(TimeUnitNanoseconds).IsZero() {
		t.Error("zero-value frame rate should yield zero duration")
	}

	var geoErr *GeometryError
	for _, rate := range []rational.Rational{{Num: -30, Den: 1}, {Num: 30, Den: 0}} {
		g.FrameRate = rate
		if _, err := g.FrameSize(); !errors.As(err, &geoErr) {
			t.Errorf("frame rate %d/%d: got %v, want GeometryError", rate.Num, rate.Den, err)
		}
	}
}

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	g := Geometry{Format: FormatGray8, Width: 4, Height: 2, FrameRate: rational.New(30, 1)}
	d := g.FrameDuration(TimeUnitNanoseconds)
	if want := rational.New(1000000000, 30); d != want {
		t.Errorf("30fps duration: got %v, want %v", d, want)
	}

	g.FrameRate = rational.New(30000, 1001)
	d = g.FrameDuration(TimeUnitNanoseconds)
	if want := rational.New(1001000000000, 30000); d != want {
		t.Errorf("29.97fps duration: got %v, want %v", d, want)
	}
}

func TestFrameDurationZeroRate(t *testing.T) {
	t.Parallel()
	g := Geometry{Format: FormatGray8, Width: 4, Height: 2, FrameRate: rational.New(0, 1)}
	if d := g.FrameDuration(TimeUnitNanoseconds); !d.IsZero() {
		t.Errorf("zero frame rate: got duration %v, want 0", d)
	}
}

func TestParseGeometry(t *testing.T) {
	t.Parallel()

	g, err := ParseGeometry("i420:1280x720@30000/1001")
	if err != nil {
		t.Fatalf("ParseGeometry failed: %v", err)
	}
	if g.Format != FormatI420 || g.Width != 1280 || g.Height != 720 {
		t.Errorf("got %v", g)
	}
	if g.FrameRate != rational.New(30000, 1001) {
		t.Errorf("frame rate: got %v, want 30000/1001", g.FrameRate)
	}
}

func TestParseGeometryNoRate(t *testing.T) {
	t.Parallel()
	g, err := ParseGeometry("gray8:640x480")
	if err != nil {
		t.Fatalf("ParseGeometry failed: %v", err)
	}
	if !g.FrameRate.IsZero() {
		t.Errorf("frame rate: got %v, want 0", g.FrameRate)
	}
}

func TestParseGeometryRoundTrip(t *testing.T) {
	t.Parallel()
	g, err := ParseGeometry("bgra:1920x1080@25/1")
	if err != nil {
		t.Fatalf("ParseGeometry failed: %v", err)
	}
	back, err := ParseGeometry(g.String())
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if back != g {
		t.Errorf("round trip: got %v, want %v", back, g)
	}
}

func TestParseGeometryInvalid(t *testing.T) {
	t.Parallel()
	for _, s := range []string{
		"",
		"gray8",
		"gray8:0x480",
		"gray8:640x480@1/0",
		"p010:640x480",
		"gray8:WxH",
		"gray8:4x2abc",
		"gray8:4ax2",
		"gray8:4x2x1",
		"gray8:-4x2",
	} {
		if _, err := ParseGeometry(s); err == nil {
			t.Errorf("ParseGeometry(%q) should fail", s)
		}
	}
}
