package collector

import (
	"time"

	"github.com/rs/zerolog"

	"collectord/internal/event"
	"collectord/internal/transport"
)

// Defaults applied when corresponding HubConfig fields are unset.
const (
	defaultCollectorName   = "DEFAULT"
	defaultAnnounceTimeout = 5 * time.Second
)

// HubConfig encapsulates all tunables for Hub construction.
type HubConfig struct {
	CollectorName string
	Substrate     transport.Substrate
	// Serializer decodes inbound payloads; nil keeps raw payloads only.
	Serializer event.Serializer
	// AnnounceTimeout bounds how long Start waits for the substrate.
	AnnounceTimeout time.Duration
	Logger          *zerolog.Logger
	Publisher       NoticePublisher
}

// NewWithConfig constructs a Hub from HubConfig.
func NewWithConfig(cfg HubConfig) *Hub {
	h := &Hub{
		name:     cfg.CollectorName,
		sub:      cfg.Substrate,
		registry: NewRegistry(),
		buffer:   NewEventBuffer(cfg.Serializer),
		stats:    newStatsCounter(time.Now()),
		pub:      cfg.Publisher,
		announce: cfg.AnnounceTimeout,
	}
	if h.name == "" {
		h.name = defaultCollectorName
	}
	if h.sub == nil {
		h.sub = transport.NewMemory()
	}
	if h.announce <= 0 {
		h.announce = defaultAnnounceTimeout
	}
	if cfg.Logger != nil {
		h.log = cfg.Logger.With().Str("component", "hub").Logger()
	} else {
		h.log = zerolog.Nop()
	}
	if h.pub == nil {
		h.pub = noopPublisher{}
	}
	h.sub.OnClientDisconnect(h.handleClientExit)
	return h
}
