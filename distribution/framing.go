// Package distribution implements the viewer delivery layer: the fan-out
// relay that turns viewer appetite into pipeline demand, the QUIC server
// viewers connect to, and the varint record framing frames travel in.
package distribution

import (
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/reframe/media"
	"github.com/zsiec/reframe/rational"
	"github.com/zsiec/reframe/rawvideo"
)

// Record type tags on a viewer stream.
const (
	recordTypeGeometry uint64 = 0x01
	recordTypeFrame    uint64 = 0x02
)

// maxRecordPayload bounds a frame payload a reader will accept: an 8K BGRA
// frame is ~127MB, so 256MB leaves headroom without letting a corrupt
// length allocate unbounded memory.
const maxRecordPayload = 256 << 20

// FrameWriter abstracts the wire format used to write re-framed video to
// viewer streams.
type FrameWriter interface {
	// WriteGeometry writes a geometry record announcing the descriptor
	// subsequent frames were sliced under.
	WriteGeometry(w io.Writer, geo rawvideo.Geometry) (int64, error)

	// WriteFrame writes a single frame record (timestamp + payload),
	// returning the total bytes written.
	WriteFrame(w io.Writer, frame *media.RawFrame) (int64, error)
}

// Compile-time interface check.
var _ FrameWriter = (*recordWriter)(nil)

// recordWriter implements FrameWriter with QUIC varint framing:
//
//	geometry record: tag, format length+bytes, width, height, rate num, rate den
//	frame record:    tag, pts num, pts den, payload length, payload
//
// All integers are QUIC varints; the PTS fraction is written verbatim so
// receivers keep the exact timestamp.
type recordWriter struct{}

// NewRecordWriter returns the standard varint FrameWriter.
func NewRecordWriter() FrameWriter {
	return &recordWriter{}
}

func (recordWriter) WriteGeometry(w io.Writer, geo rawvideo.Geometry) (int64, error) {
	format := []byte(geo.Format)

	var buf []byte
	buf = quicvarint.Append(buf, recordTypeGeometry)
	buf = quicvarint.Append(buf, uint64(len(format)))
	buf = append(buf, format...)
	buf = quicvarint.Append(buf, uint64(geo.Width))
	buf = quicvarint.Append(buf, uint64(geo.Height))
	buf = quicvarint.Append(buf, uint64(geo.FrameRate.Num))
	buf = quicvarint.Append(buf, uint64(geo.FrameRate.Den))

	n, err := w.Write(buf)
	return int64(n), err
}

func (recordWriter) WriteFrame(w io.Writer, frame *media.RawFrame) (int64, error) {
	var header []byte
	header = quicvarint.Append(header, recordTypeFrame)
	header = quicvarint.Append(header, uint64(frame.PTS.Num))
	header = quicvarint.Append(header, uint64(frame.PTS.Den))
	header = quicvarint.Append(header, uint64(len(frame.Data)))

	n, err := w.Write(header)
	total := int64(n)
	if err != nil {
		return total, err
	}
	n, err = w.Write(frame.Data)
	total += int64(n)
	return total, err
}

// Record is one decoded wire record: exactly one of Geometry or Frame is
// set.
type Record struct {
	Geometry *rawvideo.Geometry
	Frame    *media.RawFrame
}

// RecordReader decodes the record stream produced by the record writer.
// Used by client tooling and tests.
type RecordReader struct {
	r   quicvarint.Reader
	geo *rawvideo.Geometry
}

// NewRecordReader wraps r for record decoding.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r: quicvarint.NewReader(r)}
}

// Next returns the next record, or io.EOF at clean end of stream. Frames
// are tagged with the most recent geometry record seen.
func (rr *RecordReader) Next() (Record, error) {
	tag, err := quicvarint.Read(rr.r)
	if err != nil {
		return Record{}, err
	}

	switch tag {
	case recordTypeGeometry:
		geo, err := rr.readGeometry()
		if err != nil {
			return Record{}, err
		}
		rr.geo = geo
		return Record{Geometry: geo}, nil
	case recordTypeFrame:
		frame, err := rr.readFrame()
		if err != nil {
			return Record{}, err
		}
		return Record{Frame: frame}, nil
	default:
		return Record{}, fmt.Errorf("unknown record type 0x%x", tag)
	}
}

func (rr *RecordReader) readGeometry() (*rawvideo.Geometry, error) {
	formatLen, err := quicvarint.Read(rr.r)
	if err != nil {
		return nil, fmt.Errorf("geometry record: %w", err)
	}
	if formatLen > 64 {
		return nil, fmt.Errorf("geometry record: format name length %d", formatLen)
	}
	format := make([]byte, formatLen)
	if _, err := io.ReadFull(rr.r, format); err != nil {
		return nil, fmt.Errorf("geometry record: %w", err)
	}

	var fields [4]uint64
	for i := range fields {
		v, err := quicvarint.Read(rr.r)
		if err != nil {
			return nil, fmt.Errorf("geometry record: %w", err)
		}
		fields[i] = v
	}
	if fields[3] == 0 {
		return nil, fmt.Errorf("geometry record: zero frame-rate denominator")
	}

	return &rawvideo.Geometry{
		Format:    rawvideo.PixelFormat(format),
		Width:     uint32(fields[0]),
		Height:    uint32(fields[1]),
		FrameRate: rational.New(int64(fields[2]), int64(fields[3])),
	}, nil
}

func (rr *RecordReader) readFrame() (*media.RawFrame, error) {
	num, err := quicvarint.Read(rr.r)
	if err != nil {
		return nil, fmt.Errorf("frame record: %w", err)
	}
	den, err := quicvarint.Read(rr.r)
	if err != nil {
		return nil, fmt.Errorf("frame record: %w", err)
	}
	if den == 0 {
		return nil, fmt.Errorf("frame record: zero PTS denominator")
	}
	size, err := quicvarint.Read(rr.r)
	if err != nil {
		return nil, fmt.Errorf("frame record: %w", err)
	}
	if size > maxRecordPayload {
		return nil, fmt.Errorf("frame record: payload length %d exceeds limit", size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(rr.r, data); err != nil {
		return nil, fmt.Errorf("frame record: %w", err)
	}

	frame := &media.RawFrame{
		Data: data,
		PTS:  rational.New(int64(num), int64(den)),
	}
	if rr.geo != nil {
		frame.Geometry = *rr.geo
	}
	return frame, nil
}
