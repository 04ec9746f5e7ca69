package transport

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Delivery records one outbound service update made through a Memory substrate.
// Clients is nil for a broadcast.
type Delivery struct {
	Service string
	Payload []byte
	Clients []ClientID
}

// Memory is an in-process Substrate. Inbound traffic is injected with Command,
// Request and Disconnect; outbound updates are recorded for inspection.
type Memory struct {
	mu          sync.Mutex
	commands    map[string]CommandHandler
	requests    map[string]RequestHandler
	services    map[string][]byte
	announced   map[string]bool
	disconnect  []func(ClientID)
	deliveries  []Delivery
	announceErr error
}

// NewMemory returns an empty in-process substrate.
func NewMemory() *Memory {
	return &Memory{
		commands:  make(map[string]CommandHandler),
		requests:  make(map[string]RequestHandler),
		services:  make(map[string][]byte),
		announced: make(map[string]bool),
	}
}

// FailAnnounce makes subsequent Announce calls return err.
func (m *Memory) FailAnnounce(err error) {
	m.mu.Lock()
	m.announceErr = err
	m.mu.Unlock()
}

func (m *Memory) BindCommand(name string, h CommandHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bound(name) {
		return NameInUse(name)
	}
	m.commands[name] = h
	return nil
}

func (m *Memory) BindRequest(name string, h RequestHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bound(name) {
		return NameInUse(name)
	}
	m.requests[name] = h
	return nil
}

func (m *Memory) PublishService(name string, initial []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bound(name) {
		return NameInUse(name)
	}
	m.services[name] = slices.Clone(initial)
	return nil
}

func (m *Memory) UpdateService(name string, payload []byte) error {
	return m.update(name, payload, nil)
}

func (m *Memory) UpdateServiceTo(name string, payload []byte, clients []ClientID) error {
	if len(clients) == 0 {
		return nil
	}
	return m.update(name, payload, slices.Clone(clients))
}

func (m *Memory) update(name string, payload []byte, clients []ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[name]; !ok {
		return UnknownService(name)
	}
	p := slices.Clone(payload)
	if clients == nil {
		m.services[name] = p
	}
	m.deliveries = append(m.deliveries, Delivery{Service: name, Payload: p, Clients: clients})
	return nil
}

func (m *Memory) OnClientDisconnect(fn func(ClientID)) {
	m.mu.Lock()
	m.disconnect = append(m.disconnect, fn)
	m.mu.Unlock()
}

func (m *Memory) Announce(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.announceErr != nil {
		return m.announceErr
	}
	m.announced[prefix] = true
	return nil
}

func (m *Memory) Retract(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for n := range m.commands {
		if strings.HasPrefix(n, prefix) {
			delete(m.commands, n)
		}
	}
	for n := range m.requests {
		if strings.HasPrefix(n, prefix) {
			delete(m.requests, n)
		}
	}
	for n := range m.services {
		if strings.HasPrefix(n, prefix) {
			delete(m.services, n)
		}
	}
	delete(m.announced, prefix)
}

// Announced reports whether prefix is currently announced.
func (m *Memory) Announced(prefix string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.announced[prefix]
}

// Command delivers an inbound command. It reports false if name is not bound.
func (m *Memory) Command(name string, client ClientID, payload []byte) bool {
	m.mu.Lock()
	h := m.commands[name]
	m.mu.Unlock()
	if h == nil {
		return false
	}
	h(client, payload)
	return true
}

// Request performs an inbound request and returns the reply.
func (m *Memory) Request(name string, client ClientID, payload []byte) ([]byte, bool) {
	m.mu.Lock()
	h := m.requests[name]
	m.mu.Unlock()
	if h == nil {
		return nil, false
	}
	return h(client, payload), true
}

// Disconnect notifies disconnect handlers that client went away.
func (m *Memory) Disconnect(client ClientID) {
	m.mu.Lock()
	fns := slices.Clone(m.disconnect)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(client)
	}
}

// Service returns the last broadcast value of a service.
func (m *Memory) Service(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.services[name]
	return slices.Clone(b), ok
}

// Deliveries returns a copy of every recorded update.
func (m *Memory) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.deliveries)
}

// ResetDeliveries forgets recorded updates.
func (m *Memory) ResetDeliveries() {
	m.mu.Lock()
	m.deliveries = nil
	m.mu.Unlock()
}

func (m *Memory) bound(name string) bool {
	if _, ok := m.commands[name]; ok {
		return true
	}
	if _, ok := m.requests[name]; ok {
		return true
	}
	_, ok := m.services[name]
	return ok
}
