package wsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by calls on a closed Client.
var ErrClosed = errors.New("bus connection closed")

// RemoteError is an error frame returned by the server.
type RemoteError struct {
	Op   string
	Name string
	Msg  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Name, e.Msg)
}

// UpdateHandler receives service updates. It runs on the client's read
// goroutine and must not block.
type UpdateHandler func(payload []byte)

// Client is a bus connection from the subscriber or producer side.
type Client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan Frame
	subs    map[string]UpdateHandler
	err     error

	done chan struct{}
}

// Dial connects to a bus server at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		ws:      ws,
		pending: make(map[uint64]chan Frame),
		subs:    make(map[string]UpdateHandler),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Command sends a fire-and-forget command.
func (c *Client) Command(name string, payload []byte) error {
	return c.write(Frame{Op: OpCommand, Name: name, Payload: payload})
}

// Request sends a request and waits for its reply.
func (c *Client) Request(ctx context.Context, name string, payload []byte) ([]byte, error) {
	f, err := c.roundTrip(ctx, Frame{Op: OpRequest, Name: name, Payload: payload})
	if err != nil {
		return nil, err
	}
	return f.Payload, nil
}

// Subscribe registers fn for updates of the named service. The current value
// is delivered to fn before Subscribe returns.
func (c *Client) Subscribe(ctx context.Context, name string, fn UpdateHandler) error {
	c.mu.Lock()
	c.subs[name] = fn
	c.mu.Unlock()
	if _, err := c.roundTrip(ctx, Frame{Op: OpSubscribe, Name: name}); err != nil {
		c.mu.Lock()
		delete(c.subs, name)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe stops updates of the named service.
func (c *Client) Unsubscribe(name string) error {
	c.mu.Lock()
	delete(c.subs, name)
	c.mu.Unlock()
	return c.write(Frame{Op: OpUnsubscribe, Name: name})
}

// Close ends the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}

func (c *Client) roundTrip(ctx context.Context, f Frame) (Frame, error) {
	ch := make(chan Frame, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return Frame{}, ErrClosed
	}
	c.nextID++
	f.ID = c.nextID
	c.pending[f.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
	}()

	if err := c.write(f); err != nil {
		return Frame{}, err
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.done:
		return Frame{}, ErrClosed
	case resp := <-ch:
		if resp.Op == OpError {
			return Frame{}, &RemoteError{Op: f.Op, Name: f.Name, Msg: resp.Error}
		}
		return resp, nil
	}
}

func (c *Client) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		if f.Op == OpUpdate {
			c.mu.Lock()
			fn := c.subs[f.Name]
			c.mu.Unlock()
			if fn != nil {
				fn(f.Payload)
			}
		}
		if f.ID == 0 {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}
