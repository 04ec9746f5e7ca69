package dataserver

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Producer is the sending side of a producer connection.
type Producer struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial opens a producer connection to endpoint (ws:// or wss://) under name.
// An empty name lets the server pick one.
func Dial(ctx context.Context, endpoint, name string) (*Producer, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if name != "" {
		q := u.Query()
		q.Set(NameParam, name)
		u.RawQuery = q.Encode()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	p := &Producer{ws: ws}
	// Drain control frames so pings get answered.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return p, nil
}

// Send writes one encoded event.
func (p *Producer) Send(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return p.ws.WriteMessage(websocket.BinaryMessage, payload)
}

// Close ends the connection with a normal closure.
func (p *Producer) Close() error {
	p.mu.Lock()
	_ = p.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	p.mu.Unlock()
	return p.ws.Close()
}
