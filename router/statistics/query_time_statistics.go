package statistics

import (
	"sort"
	"sync"
	"time"

	"github.com/caio/go-tdigest"
)

type StatisticsType string

const (
	// Statement is the end-to-end time of a statement in the dispatcher.
	Statement = StatisticsType("statement")
	// DataSource is the time of a single execution unit on its data source.
	DataSource = StatisticsType("datasource")
)

// StatHolder keeps execution time digests in milliseconds per key.
type StatHolder struct {
	mu sync.Mutex

	quantiles []float64
	digests   map[StatisticsType]map[string]*tdigest.TDigest
}

func NewStatHolder(quantiles []float64) *StatHolder {
	return &StatHolder{
		quantiles: quantiles,
		digests: map[StatisticsType]map[string]*tdigest.TDigest{
			Statement:  {},
			DataSource: {},
		},
	}
}

func (h *StatHolder) Quantiles() []float64 {
	return h.quantiles
}

func (h *StatHolder) Record(tip StatisticsType, key string, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byKey, ok := h.digests[tip]
	if !ok {
		byKey = map[string]*tdigest.TDigest{}
		h.digests[tip] = byKey
	}
	td, ok := byKey[key]
	if !ok {
		td, _ = tdigest.New()
		byKey[key] = td
	}
	_ = td.Add(float64(d.Microseconds()) / 1000)
}

// RecordSince records the time elapsed since start.
func (h *StatHolder) RecordSince(tip StatisticsType, key string, start time.Time) {
	h.Record(tip, key, time.Since(start))
}

func (h *StatHolder) GetTimeQuantile(tip StatisticsType, key string, q float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	td, ok := h.digests[tip][key]
	if !ok {
		return 0
	}
	return td.Quantile(q)
}

func (h *StatHolder) Count(tip StatisticsType, key string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	td, ok := h.digests[tip][key]
	if !ok {
		return 0
	}
	return td.Count()
}

// Keys lists keys with recorded data, sorted.
func (h *StatHolder) Keys(tip StatisticsType) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ret := make([]string, 0, len(h.digests[tip]))
	for k := range h.digests[tip] {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
