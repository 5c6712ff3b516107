package slicer

// DemandUnit says whether a downstream demand counts whole frames or raw
// bytes.
type DemandUnit int

// Demand units.
const (
	DemandFrames DemandUnit = iota
	DemandBytes
)

func (u DemandUnit) String() string {
	switch u {
	case DemandFrames:
		return "frames"
	case DemandBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Demand is a pull request from a downstream consumer: how much output it
// is ready to receive, in frames or bytes.
type Demand struct {
	Unit   DemandUnit
	Amount int
}

// TranslateDemand converts downstream demand into the byte count to
// request from the upstream source. Frame demand scales by the frame
// size; byte demand passes through unchanged. Pure function, no state:
// this is what keeps the pull contract exact, with the slicer never
// over-requesting from upstream.
func TranslateDemand(d Demand, frameSize int) int {
	if d.Unit == DemandFrames {
		return d.Amount * frameSize
	}
	return d.Amount
}
