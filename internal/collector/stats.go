package collector

import (
	"encoding/json"
	"sync"
	"time"

	"collectord/pkg/types"
)

// statsCounter backs the STATS service.
type statsCounter struct {
	mu sync.Mutex
	s  types.Stats
}

func newStatsCounter(now time.Time) *statsCounter {
	return &statsCounter{s: types.Stats{Since: now.Unix()}}
}

func (c *statsCounter) received(size int) {
	c.mu.Lock()
	c.s.Events++
	c.s.Bytes += uint64(size)
	c.s.LastSize = size
	c.mu.Unlock()
}

func (c *statsCounter) decodeFailed() {
	c.mu.Lock()
	c.s.DecodeFailures++
	c.mu.Unlock()
}

func (c *statsCounter) composite() {
	c.mu.Lock()
	c.s.Composites++
	c.mu.Unlock()
}

func (c *statsCounter) snapshot() types.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

func (c *statsCounter) payload() []byte {
	b, err := json.Marshal(c.snapshot())
	if err != nil {
		return []byte("{}")
	}
	return b
}
