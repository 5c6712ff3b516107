package rawvideo

// PixelFormat identifies the memory layout of one uncompressed video frame.
// The set covers the common planar YUV, packed YUV, packed RGB, and
// single-plane grayscale layouts seen on capture and decode paths.
type PixelFormat string

// Supported pixel formats.
const (
	FormatI420  PixelFormat = "i420"  // planar YUV 4:2:0, 12 bpp
	FormatI422  PixelFormat = "i422"  // planar YUV 4:2:2, 16 bpp
	FormatI444  PixelFormat = "i444"  // planar YUV 4:4:4, 24 bpp
	FormatNV12  PixelFormat = "nv12"  // Y plane + interleaved UV, 12 bpp
	FormatYUY2  PixelFormat = "yuy2"  // packed YUV 4:2:2, 16 bpp
	FormatUYVY  PixelFormat = "uyvy"  // packed YUV 4:2:2, 16 bpp
	FormatRGB24 PixelFormat = "rgb24" // packed RGB, 24 bpp
	FormatBGR24 PixelFormat = "bgr24" // packed BGR, 24 bpp
	FormatRGBA  PixelFormat = "rgba"  // packed RGB + alpha, 32 bpp
	FormatBGRA  PixelFormat = "bgra"  // packed BGR + alpha, 32 bpp
	FormatGray8 PixelFormat = "gray8" // single plane, 8-bit luma
	FormatY16   PixelFormat = "y16"   // single plane, 16-bit luma
)

func (f PixelFormat) String() string {
	return string(f)
}

// formatLayout describes how a format's byte size derives from its
// dimensions: bits per pixel plus the horizontal/vertical alignment the
// chroma subsampling imposes.
type formatLayout struct {
	bitsPerPixel int
	evenWidth    bool
	evenHeight   bool
}

var formatLayouts = map[PixelFormat]formatLayout{
	FormatI420:  {bitsPerPixel: 12, evenWidth: true, evenHeight: true},
	FormatI422:  {bitsPerPixel: 16, evenWidth: true},
	FormatI444:  {bitsPerPixel: 24},
	FormatNV12:  {bitsPerPixel: 12, evenWidth: true, evenHeight: true},
	FormatYUY2:  {bitsPerPixel: 16, evenWidth: true},
	FormatUYVY:  {bitsPerPixel: 16, evenWidth: true},
	FormatRGB24: {bitsPerPixel: 24},
	FormatBGR24: {bitsPerPixel: 24},
	FormatRGBA:  {bitsPerPixel: 32},
	FormatBGRA:  {bitsPerPixel: 32},
	FormatGray8: {bitsPerPixel: 8},
	FormatY16:   {bitsPerPixel: 16},
}

// Known reports whether f is a supported pixel format.
func (f PixelFormat) Known() bool {
	_, ok := formatLayouts[f]
	return ok
}
