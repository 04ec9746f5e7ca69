package wsbus

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collectord/internal/transport"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	defaultSendBuffer      = 256
	defaultMaxMessageBytes = 8 << 20
)

// Config encapsulates Server tunables.
type Config struct {
	// SendBuffer bounds each connection's outbound queue. A frame that does
	// not fit is dropped for that connection.
	SendBuffer      int
	MaxMessageBytes int64
	CheckOrigin     func(r *http.Request) bool
	Logger          *zerolog.Logger
}

type service struct {
	value []byte
	subs  map[transport.ClientID]struct{}
}

// Server is a transport.Substrate whose clients connect over websocket. Mount
// it as an http.Handler.
type Server struct {
	mu         sync.Mutex
	commands   map[string]transport.CommandHandler
	requests   map[string]transport.RequestHandler
	services   map[string]*service
	announced  map[string]bool
	conns      map[transport.ClientID]*conn
	disconnect []func(transport.ClientID)

	upgrader   websocket.Upgrader
	sendBuffer int
	maxMessage int64
	logger     zerolog.Logger
}

var _ transport.Substrate = (*Server)(nil)

// NewServer creates an empty Server.
func NewServer(cfg Config) *Server {
	s := &Server{
		commands:   make(map[string]transport.CommandHandler),
		requests:   make(map[string]transport.RequestHandler),
		services:   make(map[string]*service),
		announced:  make(map[string]bool),
		conns:      make(map[transport.ClientID]*conn),
		sendBuffer: cfg.SendBuffer,
		maxMessage: cfg.MaxMessageBytes,
		logger:     zerolog.Nop(),
	}
	if s.sendBuffer <= 0 {
		s.sendBuffer = defaultSendBuffer
	}
	if s.maxMessage <= 0 {
		s.maxMessage = defaultMaxMessageBytes
	}
	if cfg.Logger != nil {
		s.logger = *cfg.Logger
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     cfg.CheckOrigin,
	}
	if s.upgrader.CheckOrigin == nil {
		s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return s
}

func (s *Server) boundLocked(name string) bool {
	if _, ok := s.commands[name]; ok {
		return true
	}
	if _, ok := s.requests[name]; ok {
		return true
	}
	_, ok := s.services[name]
	return ok
}

// reachableLocked reports whether name lies under an announced prefix.
func (s *Server) reachableLocked(name string) bool {
	for p := range s.announced {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func (s *Server) BindCommand(name string, h transport.CommandHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundLocked(name) {
		return transport.NameInUse(name)
	}
	s.commands[name] = h
	return nil
}

func (s *Server) BindRequest(name string, h transport.RequestHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundLocked(name) {
		return transport.NameInUse(name)
	}
	s.requests[name] = h
	return nil
}

func (s *Server) PublishService(name string, initial []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundLocked(name) {
		return transport.NameInUse(name)
	}
	s.services[name] = &service{
		value: slices.Clone(initial),
		subs:  make(map[transport.ClientID]struct{}),
	}
	return nil
}

// UpdateService stores payload as the service value and pushes it to every
// subscriber.
func (s *Server) UpdateService(name string, payload []byte) error {
	s.mu.Lock()
	svc, ok := s.services[name]
	if !ok {
		s.mu.Unlock()
		return transport.UnknownService(name)
	}
	p := slices.Clone(payload)
	svc.value = p
	targets := s.subscribersLocked(svc, nil)
	s.mu.Unlock()

	s.fanout(targets, Frame{Op: OpUpdate, Name: name, Payload: p})
	return nil
}

// UpdateServiceTo pushes payload to the listed clients that subscribe to the
// service. The stored value is left unchanged.
func (s *Server) UpdateServiceTo(name string, payload []byte, clients []transport.ClientID) error {
	if len(clients) == 0 {
		return nil
	}
	s.mu.Lock()
	svc, ok := s.services[name]
	if !ok {
		s.mu.Unlock()
		return transport.UnknownService(name)
	}
	targets := s.subscribersLocked(svc, clients)
	s.mu.Unlock()

	s.fanout(targets, Frame{Op: OpUpdate, Name: name, Payload: slices.Clone(payload)})
	return nil
}

func (s *Server) subscribersLocked(svc *service, only []transport.ClientID) []*conn {
	var out []*conn
	if only == nil {
		for id := range svc.subs {
			if c, ok := s.conns[id]; ok {
				out = append(out, c)
			}
		}
		return out
	}
	for _, id := range only {
		if _, sub := svc.subs[id]; !sub {
			continue
		}
		if c, ok := s.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) fanout(targets []*conn, f Frame) {
	if len(targets) == 0 {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		s.logger.Error().Err(err).Str("service", f.Name).Msg("failed to marshal frame")
		return
	}
	for _, c := range targets {
		c.enqueue(data)
	}
}

func (s *Server) OnClientDisconnect(fn func(transport.ClientID)) {
	s.mu.Lock()
	s.disconnect = append(s.disconnect, fn)
	s.mu.Unlock()
}

// Announce makes names under prefix reachable by clients.
func (s *Server) Announce(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.announced[prefix] = true
	s.mu.Unlock()
	s.logger.Debug().Str("prefix", prefix).Msg("announced")
	return nil
}

// Retract unbinds every name under prefix and drops their subscriptions.
func (s *Server) Retract(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.commands {
		if strings.HasPrefix(name, prefix) {
			delete(s.commands, name)
		}
	}
	for name := range s.requests {
		if strings.HasPrefix(name, prefix) {
			delete(s.requests, name)
		}
	}
	for name := range s.services {
		if strings.HasPrefix(name, prefix) {
			delete(s.services, name)
		}
	}
	for p := range s.announced {
		if strings.HasPrefix(p, prefix) {
			delete(s.announced, p)
		}
	}
}

// Clients returns the number of open connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close drops every connection.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := s.register(ws)
	s.logger.Info().
		Int32("client_id", int32(c.id)).
		Str("remote", r.RemoteAddr).
		Msg("bus client connected")

	go c.writePump()
	c.readPump()
}

// register allocates the lowest free client id, starting at 1.
func (s *Server) register(ws *websocket.Conn) *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := transport.ClientID(1)
	for {
		if _, used := s.conns[id]; !used {
			break
		}
		id++
	}
	c := &conn{
		id:     id,
		ws:     ws,
		server: s,
		send:   make(chan []byte, s.sendBuffer),
		done:   make(chan struct{}),
	}
	s.conns[id] = c
	return c
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	if cur, ok := s.conns[c.id]; !ok || cur != c {
		s.mu.Unlock()
		return
	}
	delete(s.conns, c.id)
	for _, svc := range s.services {
		delete(svc.subs, c.id)
	}
	callbacks := slices.Clone(s.disconnect)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(c.id)
	}
	s.logger.Info().Int32("client_id", int32(c.id)).Msg("bus client disconnected")
}

func (s *Server) dispatch(c *conn, f Frame) {
	switch f.Op {
	case OpCommand:
		s.mu.Lock()
		h, ok := s.commands[f.Name]
		ok = ok && s.reachableLocked(f.Name)
		s.mu.Unlock()
		if !ok {
			c.fail(f, "unknown command")
			return
		}
		h(c.id, f.Payload)

	case OpRequest:
		s.mu.Lock()
		h, ok := s.requests[f.Name]
		ok = ok && s.reachableLocked(f.Name)
		s.mu.Unlock()
		if !ok {
			c.fail(f, "unknown request")
			return
		}
		c.reply(Frame{Op: OpReply, Name: f.Name, ID: f.ID, Payload: h(c.id, f.Payload)})

	case OpSubscribe:
		s.mu.Lock()
		svc, ok := s.services[f.Name]
		ok = ok && s.reachableLocked(f.Name)
		var value []byte
		if ok {
			svc.subs[c.id] = struct{}{}
			value = svc.value
		}
		s.mu.Unlock()
		if !ok {
			c.fail(f, "unknown service")
			return
		}
		c.reply(Frame{Op: OpUpdate, Name: f.Name, ID: f.ID, Payload: value})

	case OpUnsubscribe:
		s.mu.Lock()
		if svc, ok := s.services[f.Name]; ok {
			delete(svc.subs, c.id)
		}
		s.mu.Unlock()

	default:
		c.fail(f, "unknown op")
	}
}

// conn is one connected websocket client.
type conn struct {
	id     transport.ClientID
	ws     *websocket.Conn
	server *Server
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *conn) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.server.logger.Warn().
			Int32("client_id", int32(c.id)).
			Msg("send buffer full, frame dropped")
	}
}

func (c *conn) reply(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.server.logger.Error().Err(err).Msg("failed to marshal reply")
		return
	}
	c.enqueue(data)
}

func (c *conn) fail(f Frame, msg string) {
	c.server.logger.Debug().
		Int32("client_id", int32(c.id)).
		Str("op", f.Op).
		Str("name", f.Name).
		Msg(msg)
	c.reply(Frame{Op: OpError, Name: f.Name, ID: f.ID, Error: msg})
}

func (c *conn) readPump() {
	defer func() {
		c.close()
		c.server.unregister(c)
	}()

	c.ws.SetReadLimit(c.server.maxMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.server.logger.Error().Err(err).Int32("client_id", int32(c.id)).Msg("bus read error")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.fail(Frame{}, "malformed frame")
			continue
		}
		c.server.dispatch(c, f)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
