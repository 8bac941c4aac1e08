package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/transport"
)

type ClientOpt func(*Client)

func WithClientLogger(logger *zap.Logger) ClientOpt {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHeartbeat sets how often the client tells the server it is alive.
func WithHeartbeat(d time.Duration) ClientOpt {
	return func(c *Client) {
		c.heartbeat = d
	}
}

// Client is one registered endpoint on a signal server.
type Client struct {
	logger    *zap.Logger
	heartbeat time.Duration
	id        string
	conn      *websocket.Conn

	writeMu sync.Mutex
	msgs    chan Message
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// Dial registers id on the server at rawURL. It returns an error wrapping
// transport.ErrUnavailableID if the server reports the id as taken.
func Dial(ctx context.Context, rawURL, id string, opts ...ClientOpt) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse signal url: %w", err)
	}
	q := u.Query()
	q.Set("id", id)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial signal server: %w", err)
	}
	c := &Client{
		logger:    zap.NewNop(),
		heartbeat: 5 * time.Second,
		id:        id,
		conn:      conn,
		msgs:      make(chan Message, sendBacklog),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.awaitOpen(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.heartbeatLoop()
	c.logger.Debug("registered on signal server", log.ZPeer(id), zap.String("url", rawURL))
	return c, nil
}

func (c *Client) awaitOpen(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("await open: %w", err)
	}
	switch msg.Type {
	case TypeOpen:
		return nil
	case TypeError:
		p, err := ErrorOf(msg)
		if err != nil {
			return err
		}
		if p.Type == ErrorUnavailableID {
			return fmt.Errorf("%w: %s", transport.ErrUnavailableID, c.id)
		}
		return fmt.Errorf("signal server: %s: %s", p.Type, p.Msg)
	}
	return fmt.Errorf("unexpected first frame %s", msg.Type)
}

// ID returns the registered id.
func (c *Client) ID() string {
	return c.id
}

// Messages delivers frames addressed to this endpoint. The channel is closed
// when the connection ends.
func (c *Client) Messages() <-chan Message {
	return c.msgs
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send writes one frame.
func (c *Client) Send(msg Message) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.msgs)
	defer c.shutdown()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("signal connection lost", log.ZPeer(c.id), zap.Error(err))
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("malformed signal frame", zap.Error(err))
			continue
		}
		select {
		case c.msgs <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Send(Message{Type: TypeHeartbeat}); err != nil && !errors.Is(err, transport.ErrClosed) {
				c.logger.Debug("heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	})
}

// Close unregisters from the server.
func (c *Client) Close() error {
	c.shutdown()
	c.wg.Wait()
	return nil
}
