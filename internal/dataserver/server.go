// Package dataserver accepts producer connections and feeds their events to a
// stream synchronizer. Each websocket connection is one producer; each message
// on it is one encoded event.
package dataserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"collectord/internal/event"
	"collectord/internal/streamsync"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultMaxMessageBytes = 8 << 20

	// NameParam is the query parameter carrying the producer id.
	NameParam = "name"
)

// Receiver consumes producer lifecycle and events.
type Receiver interface {
	OnConnect(id string)
	OnDisconnect(id string)
	OnEventArrived(id string, ev *event.Event) error
}

var _ Receiver = (*streamsync.Synchronizer)(nil)

var messagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "collectord",
		Subsystem: "dataserver",
		Name:      "messages_total",
		Help:      "Producer messages received, by result",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(messagesTotal)
}

// Config encapsulates Server tunables.
type Config struct {
	Receiver        Receiver
	Serializer      event.Serializer
	MaxMessageBytes int64
	CheckOrigin     func(r *http.Request) bool
	Logger          *zerolog.Logger
}

// Server is an http.Handler accepting producer websocket connections.
type Server struct {
	recv       Receiver
	ser        event.Serializer
	upgrader   websocket.Upgrader
	maxMessage int64
	logger     zerolog.Logger

	mu   sync.Mutex
	live map[string]struct{}
}

// New creates a Server. A nil serializer selects JSON.
func New(cfg Config) *Server {
	s := &Server{
		recv:       cfg.Receiver,
		ser:        cfg.Serializer,
		maxMessage: cfg.MaxMessageBytes,
		logger:     zerolog.Nop(),
		live:       make(map[string]struct{}),
	}
	if s.ser == nil {
		s.ser = event.NewJSONSerializer()
	}
	if s.maxMessage <= 0 {
		s.maxMessage = defaultMaxMessageBytes
	}
	if cfg.Logger != nil {
		s.logger = *cfg.Logger
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: cfg.CheckOrigin}
	if s.upgrader.CheckOrigin == nil {
		s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return s
}

// Connected returns the number of live producer connections.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func (s *Server) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[id]; ok {
		return false
	}
	s.live[id] = struct{}{}
	return true
}

func (s *Server) release(id string) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}

// ServeHTTP upgrades the request into a producer connection. The producer id
// comes from the name query parameter, or is generated when absent. A second
// connection for a live id is refused with 409.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(NameParam)
	if id == "" {
		id = uuid.NewString()
	}
	if !s.claim(id) {
		http.Error(w, "producer already connected: "+id, http.StatusConflict)
		return
	}
	defer s.release(id)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("producer", id).Msg("producer upgrade failed")
		return
	}
	defer ws.Close()

	s.recv.OnConnect(id)
	defer s.recv.OnDisconnect(id)
	s.logger.Info().Str("producer", id).Str("remote", r.RemoteAddr).Msg("producer connected")

	done := make(chan struct{})
	defer close(done)
	go pinger(ws, done)

	ws.SetReadLimit(s.maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("producer", id).Msg("producer read error")
			}
			s.logger.Info().Str("producer", id).Msg("producer disconnected")
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		s.handle(id, data)
	}
}

func (s *Server) handle(id string, data []byte) {
	ev, err := s.ser.Decode(data)
	if err != nil {
		messagesTotal.WithLabelValues("decode_error").Inc()
		s.logger.Warn().Err(err).Str("producer", id).Int("bytes", len(data)).Msg("dropping undecodable event")
		return
	}
	if ev.Producer == "" {
		ev.Producer = id
	}
	if err := s.recv.OnEventArrived(id, ev); err != nil {
		messagesTotal.WithLabelValues("rejected").Inc()
		return
	}
	messagesTotal.WithLabelValues("accepted").Inc()
}

func pinger(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
