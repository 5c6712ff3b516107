// Package ingest manages active raw-video sources, coupling SRT byte
// readers with their negotiated geometry, lifecycle signaling, and
// pipeline dispatch.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/reframe/rawvideo"
)

// ErrDuplicateKey is returned by Register when a source with the same key
// is already live. The existing source keeps its registration.
var ErrDuplicateKey = errors.New("stream key already registered")

// SourceStats captures connection-level metrics for an ingest source,
// exposed for monitoring the health of the byte stream.
type SourceStats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Source represents an active ingest connection: the raw byte reader the
// slicer pipeline consumes, the geometry the publisher declared, and
// lifecycle signaling. Bytes written to the internal pipe by the SRT
// receiver are read on demand by the pull scheduler, so the pipe itself
// enforces the backpressure contract toward the network.
type Source struct {
	Key       string
	StartedAt time.Time
	Geometry  rawvideo.Geometry
	input     io.ReadCloser
	pw        io.WriteCloser
	done      chan struct{}

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	remoteAddr    atomic.Value
}

// RecordRead increments the byte and read counters, called by the SRT
// receiver after each successful socket read.
func (s *Source) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr stores the remote address of the publishing connection
// for diagnostics.
func (s *Source) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Stats returns a snapshot of ingest connection metrics.
func (s *Source) Stats() SourceStats {
	addr, _ := s.remoteAddr.Load().(string)
	return SourceStats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Done is closed when the source is unregistered.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Registry tracks active sources by key and dispatches new ones to the
// onSource callback for pipeline setup. It is the rendezvous point between
// the SRT ingest layer and the slicing/distribution pipeline.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*Source

	onSource func(key string, input io.Reader, geo rawvideo.Geometry)
}

// NewRegistry creates a Registry. The onSource callback is invoked
// asynchronously whenever a new source is registered.
func NewRegistry(onSource func(key string, input io.Reader, geo rawvideo.Geometry)) *Registry {
	return &Registry{
		sources:  make(map[string]*Source),
		onSource: onSource,
	}
}

// Register creates a new ingest source with the given key and geometry,
// returning the Source and the Writer the SRT receiver should pump bytes
// into. A key that is already live is rejected with ErrDuplicateKey so a
// second publisher cannot hijack or orphan a running session. If an
// onSource callback is set, it is invoked asynchronously.
func (r *Registry) Register(key string, geo rawvideo.Geometry) (*Source, io.Writer, error) {
	pr, pw := io.Pipe()

	src := &Source{
		Key:       key,
		StartedAt: time.Now(),
		Geometry:  geo,
		input:     pr,
		pw:        pw,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if _, exists := r.sources[key]; exists {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("register %q: %w", key, ErrDuplicateKey)
	}
	r.sources[key] = src
	r.mu.Unlock()

	if r.onSource != nil {
		go r.onSource(key, pr, geo)
	}

	return src, pw, nil
}

// Unregister removes a source by key, closing its pipe and signaling Done.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	src, ok := r.sources[key]
	if ok {
		delete(r.sources, key)
	}
	r.mu.Unlock()

	if ok {
		src.pw.Close()
		close(src.done)
	}
}

// Get returns the Source for the given key, or false if not found.
func (r *Registry) Get(key string) (*Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[key]
	return s, ok
}
