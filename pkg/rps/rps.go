package rps

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	windowSize = time.Second
	numBuckets = 10
)

// RPSStats counts statements over a one second sliding window split into
// buckets. The lifetime total is kept even while the window is disabled.
type RPSStats struct {
	mu         sync.Mutex
	clock      Clock
	bucketDur  time.Duration
	buckets    [numBuckets]int64
	lastBucket int
	lastTime   time.Time
	window     int64
	peak       float64
	startTime  time.Time

	total   *atomic.Int64
	enabled *atomic.Bool
}

type Snapshot struct {
	CurrentRPS    float64
	AvgRPS        float64
	PeakRPS       float64
	TotalRequests int64
}

func NewRPSStats(enabled bool) *RPSStats {
	return NewRPSStatsWithClock(realClock{}, enabled)
}

func NewRPSStatsWithClock(clock Clock, enabled bool) *RPSStats {
	now := clock.Now()
	return &RPSStats{
		clock:     clock,
		bucketDur: windowSize / numBuckets,
		lastTime:  now,
		startTime: now,
		total:     atomic.NewInt64(0),
		enabled:   atomic.NewBool(enabled),
	}
}

func (r *RPSStats) SetEnabled(enable bool) {
	r.enabled.Store(enable)
}

func (r *RPSStats) OnRequest() {
	r.total.Inc()
	if !r.enabled.Load() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.advance(r.clock.Now())
	r.buckets[r.lastBucket]++
	r.window++
	if cur := float64(r.window) / windowSize.Seconds(); cur > r.peak {
		r.peak = cur
	}
}

// advance clears buckets that fell out of the window. Called with mu held.
func (r *RPSStats) advance(now time.Time) {
	elapsed := now.Sub(r.lastTime)
	if elapsed < r.bucketDur {
		return
	}

	steps := int(elapsed / r.bucketDur)
	if steps >= numBuckets {
		r.buckets = [numBuckets]int64{}
		r.window = 0
		r.lastBucket = 0
	} else {
		for range steps {
			r.lastBucket = (r.lastBucket + 1) % numBuckets
			r.window -= r.buckets[r.lastBucket]
			r.buckets[r.lastBucket] = 0
		}
	}
	r.lastTime = now
}

func (r *RPSStats) Snapshot() Snapshot {
	total := r.total.Load()
	if !r.enabled.Load() {
		return Snapshot{TotalRequests: total}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	r.advance(now)

	s := Snapshot{
		CurrentRPS:    float64(r.window) / windowSize.Seconds(),
		PeakRPS:       r.peak,
		TotalRequests: total,
	}
	if elapsed := now.Sub(r.startTime).Seconds(); elapsed > 0 {
		s.AvgRPS = float64(total) / elapsed
	}
	return s
}
