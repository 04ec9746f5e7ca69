package streamsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"collectord/internal/event"
	"collectord/pkg/types"
)

type queued struct {
	ev *event.Event
	at time.Time
}

// producer is one connection's slot in the table.
type producer struct {
	id      string
	active  bool
	queue   []queued
	last    uint64
	hasLast bool
}

func (p *producer) pop() *event.Event {
	ev := p.queue[0].ev
	p.queue[0] = queued{}
	p.queue = p.queue[1:]
	if len(p.queue) == 0 {
		p.queue = nil
	}
	return ev
}

// Synchronizer aligns producer queues into composite events.
type Synchronizer struct {
	// emitMu serializes rounds and sink delivery so composites leave in
	// trigger order. Taken before mu.
	emitMu sync.Mutex
	mu     sync.Mutex

	order []*producer
	byID  map[string]*producer

	target    uint64
	hasTarget bool

	sink          Sink
	compositeType string
	maxPending    int
	timeout       time.Duration
	now           func() time.Time
	logger        zerolog.Logger
}

// New creates a Synchronizer delivering to sink with default settings.
func New(sink Sink) *Synchronizer {
	return NewWithConfig(Config{Sink: sink})
}

// NewWithConfig creates a Synchronizer from cfg, filling unset fields with
// defaults.
func NewWithConfig(cfg Config) *Synchronizer {
	s := &Synchronizer{
		byID:          make(map[string]*producer),
		sink:          cfg.Sink,
		compositeType: cfg.CompositeType,
		maxPending:    cfg.MaxPending,
		timeout:       cfg.StragglerTimeout,
		now:           cfg.Now,
		logger:        zerolog.Nop(),
	}
	if s.sink == nil {
		s.sink = SinkFunc(func(*event.Event) {})
	}
	if s.compositeType == "" {
		s.compositeType = DefaultCompositeType
	}
	if s.maxPending <= 0 {
		s.maxPending = defaultMaxPending
	}
	if s.timeout == 0 {
		s.timeout = defaultStragglerTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if cfg.Logger != nil {
		s.logger = *cfg.Logger
	}
	return s
}

// OnConnect registers a producer as active. Reconnecting an id already in the
// table discards whatever it still had queued.
func (s *Synchronizer) OnConnect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[id]; ok {
		if n := len(p.queue); n > 0 {
			droppedEventsTotal.WithLabelValues("reconnect").Add(float64(n))
			s.logger.Warn().Str("producer", id).Int("discarded", n).Msg("producer reconnected with stale queue")
		}
		p.queue = nil
		p.hasLast = false
		p.active = true
		return
	}
	s.addLocked(id)
	s.logger.Info().Str("producer", id).Msg("producer connected")
}

// OnDisconnect marks a producer inactive. Its queued events still take part in
// later rounds; the slot is removed once the queue is empty.
func (s *Synchronizer) OnDisconnect(id string) {
	s.mu.Lock()
	p, ok := s.byID[id]
	if ok {
		p.active = false
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.logger.Info().Str("producer", id).Msg("producer disconnected")
	s.drive()
}

// OnEventArrived appends ev to the producer's queue and runs any rounds that
// became ready. An event whose trigger number is below the producer's
// previous one is dropped with an OutOfOrderError.
func (s *Synchronizer) OnEventArrived(id string, ev *event.Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	s.mu.Lock()
	p, ok := s.byID[id]
	if !ok {
		p = s.addLocked(id)
	}
	if p.hasLast && ev.TriggerN < p.last {
		err := &OutOfOrderError{Producer: id, Trigger: ev.TriggerN, Last: p.last}
		s.mu.Unlock()
		droppedEventsTotal.WithLabelValues("out_of_order").Inc()
		s.logger.Warn().Err(err).Msg("dropping out of order event")
		return err
	}
	p.queue = append(p.queue, queued{ev: ev, at: s.now()})
	p.last = ev.TriggerN
	p.hasLast = true
	s.mu.Unlock()

	s.drive()
	return nil
}

// TryAssemble runs a single round for target regardless of readiness. The
// composite is handed to the sink and returned, or nil when no producer
// contributed. The next target becomes target+1 either way.
func (s *Synchronizer) TryAssemble(target uint64) *event.Event {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.mu.Lock()
	c := s.assembleLocked(target)
	s.mu.Unlock()
	if c != nil {
		s.emit([]*event.Event{c})
	}
	return c
}

// Poll runs rounds that became ready through the passage of time.
func (s *Synchronizer) Poll() {
	s.drive()
}

// Run polls at half the straggler timeout until ctx is done. It returns
// immediately when the timeout is disabled.
func (s *Synchronizer) Run(ctx context.Context) {
	if s.timeout <= 0 {
		return
	}
	ticker := time.NewTicker(s.timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll()
		}
	}
}

// Flush assembles and delivers everything still queued regardless of
// readiness.
func (s *Synchronizer) Flush() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.mu.Lock()
	var out []*event.Event
	for s.anyQueuedLocked() {
		out = s.stepLocked(out)
	}
	s.sweepLocked()
	s.mu.Unlock()
	s.emit(out)
}

// Target returns the trigger number of the next round. ok is false until the
// first round has been initialized.
func (s *Synchronizer) Target() (target uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.hasTarget
}

// Producers returns the table in connection order.
func (s *Synchronizer) Producers() []types.ProducerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ProducerStatus, 0, len(s.order))
	for _, p := range s.order {
		st := types.ProducerStatus{ID: p.id, Active: p.active, Queued: len(p.queue)}
		if len(p.queue) > 0 {
			front := p.queue[0].ev.TriggerN
			st.FrontTrigger = &front
		}
		out = append(out, st)
	}
	return out
}

func (s *Synchronizer) addLocked(id string) *producer {
	p := &producer{id: id, active: true}
	s.byID[id] = p
	s.order = append(s.order, p)
	producersGauge.Set(float64(len(s.order)))
	return p
}

// drive runs rounds while the table is ready and hands the composites to the
// sink in order.
func (s *Synchronizer) drive() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.mu.Lock()
	var out []*event.Event
	now := s.now()
	for s.readyLocked(now) {
		out = s.stepLocked(out)
	}
	s.mu.Unlock()
	s.emit(out)
}

func (s *Synchronizer) emit(out []*event.Event) {
	for _, c := range out {
		s.sink.OnCompositeEvent(c)
	}
}

// stepLocked runs one round at the current target. A round that produced
// nothing while every front is ahead of the target jumps the target to the
// lowest front so the next round makes progress.
func (s *Synchronizer) stepLocked(out []*event.Event) []*event.Event {
	if !s.hasTarget {
		lo, _ := s.minFrontLocked()
		s.target = lo
		s.hasTarget = true
	}
	if c := s.assembleLocked(s.target); c != nil {
		return append(out, c)
	}
	if lo, ok := s.minFrontLocked(); ok && lo > s.target {
		s.target = lo
	}
	return out
}

func (s *Synchronizer) assembleLocked(target uint64) *event.Event {
	s.sweepLocked()
	var composite *event.Event
	for _, p := range s.order {
		for len(p.queue) > 0 && p.queue[0].ev.TriggerN < target {
			late := p.pop()
			droppedEventsTotal.WithLabelValues("straggler").Inc()
			s.logger.Warn().
				Str("producer", p.id).
				Uint64("trigger", late.TriggerN).
				Uint64("target", target).
				Msg("dropping late event")
		}
		if len(p.queue) == 0 || p.queue[0].ev.TriggerN != target {
			continue
		}
		sub := p.pop()
		if composite == nil {
			composite = &event.Event{
				Type:      s.compositeType,
				RunNumber: sub.RunNumber,
				TriggerN:  target,
				Timestamp: sub.Timestamp,
			}
		}
		composite.AddSubEvent(sub)
	}
	s.target = target + 1
	s.hasTarget = true
	s.sweepLocked()
	if composite != nil {
		compositesTotal.Inc()
	}
	return composite
}

// sweepLocked drops inactive producers whose queues have drained.
func (s *Synchronizer) sweepLocked() {
	kept := s.order[:0]
	for _, p := range s.order {
		if !p.active && len(p.queue) == 0 {
			delete(s.byID, p.id)
			s.logger.Debug().Str("producer", p.id).Msg("producer removed")
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(s.order); i++ {
		s.order[i] = nil
	}
	s.order = kept
	producersGauge.Set(float64(len(s.order)))
}

func (s *Synchronizer) readyLocked(now time.Time) bool {
	if !s.anyQueuedLocked() {
		return false
	}
	all := true
	for _, p := range s.order {
		n := len(p.queue)
		if n >= s.maxPending {
			return true
		}
		if n > 0 && s.timeout > 0 && now.Sub(p.queue[0].at) >= s.timeout {
			return true
		}
		if p.active && n == 0 {
			all = false
		}
	}
	return all
}

func (s *Synchronizer) anyQueuedLocked() bool {
	for _, p := range s.order {
		if len(p.queue) > 0 {
			return true
		}
	}
	return false
}

func (s *Synchronizer) minFrontLocked() (uint64, bool) {
	var lo uint64
	found := false
	for _, p := range s.order {
		if len(p.queue) == 0 {
			continue
		}
		if t := p.queue[0].ev.TriggerN; !found || t < lo {
			lo = t
			found = true
		}
	}
	return lo, found
}
