package distribution

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zsiec/reframe/media"
	"github.com/zsiec/reframe/slicer"
)

// Viewer is the interface a viewer session must implement to receive
// frames from a Relay. SendFrame must not block: a slow viewer drops
// frames rather than stalling the fan-out.
type Viewer interface {
	ID() string
	SendFrame(frame media.RawFrame)
	Stats() ViewerStats
}

// ViewerStats captures per-viewer delivery counters.
type ViewerStats struct {
	ID            string `json:"id"`
	FramesSent    int64  `json:"framesSent"`
	FramesDropped int64  `json:"framesDropped"`
	BytesSent     int64  `json:"bytesSent"`
	ConnectedAt   int64  `json:"connectedAt"`
}

// Relay is the fan-out hub for a single source. It implements
// pipeline.Sink: demand is issued only while at least one viewer is
// attached, so an unwatched source pulls nothing from upstream. The most
// recent frame is cached and replayed to late joiners so they see a
// picture before the next frame arrives.
type Relay struct {
	log    *slog.Logger
	window int

	mu      sync.RWMutex
	viewers map[string]Viewer
	wake    chan struct{}

	frameMu   sync.RWMutex
	lastFrame *media.RawFrame
}

// NewRelay creates a Relay with no viewers. window is the number of
// frames requested per demand batch; window <= 0 uses a batch of 16.
func NewRelay(window int) *Relay {
	if window <= 0 {
		window = 16
	}
	return &Relay{
		log:     slog.With("component", "relay"),
		window:  window,
		viewers: make(map[string]Viewer),
		wake:    make(chan struct{}, 1),
	}
}

// Attach adds a viewer and replays the cached frame to it, then wakes the
// demand loop.
func (r *Relay) Attach(v Viewer) {
	r.frameMu.RLock()
	last := r.lastFrame
	r.frameMu.RUnlock()
	if last != nil {
		v.SendFrame(*last)
	}

	r.mu.Lock()
	r.viewers[v.ID()] = v
	count := len(r.viewers)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	r.log.Debug("viewer attached", "viewer", v.ID(), "count", count)
}

// Detach removes a viewer by ID.
func (r *Relay) Detach(id string) {
	r.mu.Lock()
	_, ok := r.viewers[id]
	if ok {
		delete(r.viewers, id)
	}
	count := len(r.viewers)
	r.mu.Unlock()

	if ok {
		r.log.Debug("viewer detached", "viewer", id, "count", count)
	}
}

// ViewerCount returns the number of attached viewers.
func (r *Relay) ViewerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

// ViewerStatsAll returns delivery counters for every attached viewer.
func (r *Relay) ViewerStatsAll() []ViewerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ViewerStats, 0, len(r.viewers))
	for _, v := range r.viewers {
		out = append(out, v.Stats())
	}
	return out
}

// Demand implements pipeline.Sink. It blocks until a viewer is attached,
// then requests one window of frames.
func (r *Relay) Demand(ctx context.Context) (slicer.Demand, error) {
	for {
		if r.ViewerCount() > 0 {
			return slicer.Demand{Unit: slicer.DemandFrames, Amount: r.window}, nil
		}
		select {
		case <-ctx.Done():
			return slicer.Demand{}, ctx.Err()
		case <-r.wake:
		}
	}
}

// Deliver implements pipeline.Sink, fanning frames out to every viewer
// and refreshing the late-joiner cache.
func (r *Relay) Deliver(frames []media.RawFrame) error {
	if len(frames) == 0 {
		return nil
	}

	last := frames[len(frames)-1]
	r.frameMu.Lock()
	r.lastFrame = &last
	r.frameMu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.viewers {
		for _, f := range frames {
			v.SendFrame(f)
		}
	}
	return nil
}
