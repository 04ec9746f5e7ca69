package collector

import "sync"

// MemoryPublisher stores notices in-memory for tests.
type MemoryPublisher struct {
	mu      sync.Mutex
	notices []Notice
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(n Notice) {
	p.mu.Lock()
	p.notices = append(p.notices, n)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Notices() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Notice, len(p.notices))
	copy(out, p.notices)
	return out
}

// Count returns how many notices named name were published.
func (p *MemoryPublisher) Count(name string) int {
	n := 0
	for _, e := range p.Notices() {
		if e.Name == name {
			n++
		}
	}
	return n
}
