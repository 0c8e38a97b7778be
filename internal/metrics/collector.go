// Package metrics is a dependency-free collector for the live server:
// region lifecycle, frame traffic, patch output, and token outcomes.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	RegionsJoined    int64 `json:"regions_joined"`
	RegionsDestroyed int64 `json:"regions_destroyed"`
	ActiveRegions    int64 `json:"active_regions"`
	MaxActiveRegions int64 `json:"max_active_regions"`

	FramesIn  int64 `json:"frames_in"`
	FramesOut int64 `json:"frames_out"`

	PatchesSent  int64 `json:"patches_sent"`
	RenderErrors int64 `json:"render_errors"`

	TokensIssued  int64 `json:"tokens_issued"`
	TokenFailures int64 `json:"token_failures"`

	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime"`
}

// Collector aggregates counters with atomics; safe for every goroutine the
// server runs.
type Collector struct {
	regionsJoined    int64
	regionsDestroyed int64
	activeRegions    int64
	maxActiveRegions int64

	framesIn  int64
	framesOut int64

	patchesSent  int64
	renderErrors int64

	tokensIssued  int64
	tokenFailures int64

	mu        sync.Mutex
	startTime time.Time
}

// NewCollector starts a collector with the clock at now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RegionJoined records an actor spawn and tracks the high-water mark.
func (c *Collector) RegionJoined() {
	atomic.AddInt64(&c.regionsJoined, 1)
	active := atomic.AddInt64(&c.activeRegions, 1)
	for {
		max := atomic.LoadInt64(&c.maxActiveRegions)
		if active <= max || atomic.CompareAndSwapInt64(&c.maxActiveRegions, max, active) {
			return
		}
	}
}

// RegionDestroyed records an actor termination.
func (c *Collector) RegionDestroyed() {
	atomic.AddInt64(&c.regionsDestroyed, 1)
	atomic.AddInt64(&c.activeRegions, -1)
}

// FrameIn counts one inbound client frame.
func (c *Collector) FrameIn() {
	atomic.AddInt64(&c.framesIn, 1)
}

// FrameOut counts one outbound server frame.
func (c *Collector) FrameOut() {
	atomic.AddInt64(&c.framesOut, 1)
}

// PatchSent counts one patch frame.
func (c *Collector) PatchSent() {
	atomic.AddInt64(&c.patchesSent, 1)
}

// RenderError counts one failed render or event handler.
func (c *Collector) RenderError() {
	atomic.AddInt64(&c.renderErrors, 1)
}

// TokenIssued counts one signed join token.
func (c *Collector) TokenIssued() {
	atomic.AddInt64(&c.tokensIssued, 1)
}

// TokenFailure counts one rejected join token.
func (c *Collector) TokenFailure() {
	atomic.AddInt64(&c.tokenFailures, 1)
}

// Get returns a consistent-enough snapshot of all counters.
func (c *Collector) Get() Snapshot {
	c.mu.Lock()
	start := c.startTime
	c.mu.Unlock()

	return Snapshot{
		RegionsJoined:    atomic.LoadInt64(&c.regionsJoined),
		RegionsDestroyed: atomic.LoadInt64(&c.regionsDestroyed),
		ActiveRegions:    atomic.LoadInt64(&c.activeRegions),
		MaxActiveRegions: atomic.LoadInt64(&c.maxActiveRegions),
		FramesIn:         atomic.LoadInt64(&c.framesIn),
		FramesOut:        atomic.LoadInt64(&c.framesOut),
		PatchesSent:      atomic.LoadInt64(&c.patchesSent),
		RenderErrors:     atomic.LoadInt64(&c.renderErrors),
		TokensIssued:     atomic.LoadInt64(&c.tokensIssued),
		TokenFailures:    atomic.LoadInt64(&c.tokenFailures),
		StartTime:        start,
		Uptime:           time.Since(start),
	}
}

// TokenSuccessRate returns the percentage of verified joins.
func (c *Collector) TokenSuccessRate() float64 {
	issued := atomic.LoadInt64(&c.tokensIssued)
	failures := atomic.LoadInt64(&c.tokenFailures)
	total := issued + failures
	if total == 0 {
		return 100.0
	}
	return float64(issued) / float64(total) * 100.0
}

// Reset zeroes every counter and restarts the clock.
func (c *Collector) Reset() {
	atomic.StoreInt64(&c.regionsJoined, 0)
	atomic.StoreInt64(&c.regionsDestroyed, 0)
	atomic.StoreInt64(&c.activeRegions, 0)
	atomic.StoreInt64(&c.maxActiveRegions, 0)
	atomic.StoreInt64(&c.framesIn, 0)
	atomic.StoreInt64(&c.framesOut, 0)
	atomic.StoreInt64(&c.patchesSent, 0)
	atomic.StoreInt64(&c.renderErrors, 0)
	atomic.StoreInt64(&c.tokensIssued, 0)
	atomic.StoreInt64(&c.tokenFailures, 0)

	c.mu.Lock()
	c.startTime = time.Now()
	c.mu.Unlock()
}
