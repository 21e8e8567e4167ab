package errcounter

import "sync"

type ErrCounter interface {
	ReportError(errtype string)
	ErrorCounts() map[string]uint64
}

type counter struct {
	mu     sync.Mutex
	counts map[string]uint64
}

var _ ErrCounter = &counter{}

func New() ErrCounter {
	return &counter{counts: map[string]uint64{}}
}

func (c *counter) ReportError(errtype string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[errtype]++
}

// ErrorCounts returns a copy of the counters.
func (c *counter) ErrorCounts() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make(map[string]uint64, len(c.counts))
	for k, v := range c.counts {
		ret[k] = v
	}
	return ret
}
