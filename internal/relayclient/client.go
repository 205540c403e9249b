// Package relayclient keeps one websocket connection to the relay alive and
// exposes request/ack and fire-and-forget sends over it.
package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sharetube/tandem/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrNotConnected   = errors.New("not connected")
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClosed         = errors.New("client closed")
	ErrTimeout        = errors.New("request timed out")
)

type Status int

const (
	StatusConnected Status = iota + 1
	StatusDropped
	StatusResumed
	StatusGaveUp
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDropped:
		return "dropped"
	case StatusResumed:
		return "resumed"
	case StatusGaveUp:
		return "gave-up"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type Config struct {
	URL                   string
	RequestTimeout        time.Duration
	ReconnectAttempts     int
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	SendBuffer            int
}

// link is one physical connection. A reconnect replaces it.
type link struct {
	conn *websocket.Conn
	send chan *protocol.Message
	done chan struct{}
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() { close(l.done) })
}

type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	link    *link
	pending map[string]chan protocol.Ack

	incoming chan *protocol.Message
	status   chan Status

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(cfg Config, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger:   logger,
		pending:  make(map[string]chan protocol.Ack),
		incoming: make(chan *protocol.Message, 64),
		status:   make(chan Status, 8),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Incoming delivers every non-ack message in arrival order. It is closed once
// the client stops for good.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Status reports transport transitions. It is closed together with Incoming.
func (c *Client) Status() <-chan Status {
	return c.status
}

// Connect dials the relay once. Later drops are repaired in the background.
func (c *Client) Connect(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	l, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.setLink(l)
	c.publish(StatusConnected)

	c.wg.Add(1)
	go c.run(l)

	return nil
}

// Close stops the client. Outstanding requests return ErrClosed.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		l := c.link
		c.link = nil
		c.failPending()
		c.mu.Unlock()

		if l != nil {
			l.close()
		}
	})

	c.wg.Wait()
}

// Emit queues a message without waiting for the network.
func (c *Client) Emit(messageType string, payload any) error {
	msg, err := protocol.NewMessage(messageType, payload)
	if err != nil {
		return err
	}

	return c.send(msg)
}

// Request sends a message and waits for its ack, the request timeout, ctx or Close.
func (c *Client) Request(ctx context.Context, messageType string, payload any) (protocol.Ack, error) {
	msg, err := protocol.NewMessage(messageType, payload)
	if err != nil {
		return protocol.Ack{}, err
	}
	msg.AckId = uuid.NewString()

	ch := make(chan protocol.Ack, 1)
	c.mu.Lock()
	c.pending[msg.AckId] = ch
	c.mu.Unlock()
	defer c.removePending(msg.AckId)

	if err := c.send(msg); err != nil {
		return protocol.Ack{}, err
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case ack, ok := <-ch:
		if !ok {
			if c.ctx.Err() != nil {
				return protocol.Ack{}, ErrClosed
			}
			return protocol.Ack{}, ErrNotConnected
		}
		return ack, nil
	case <-timer.C:
		return protocol.Ack{}, ErrTimeout
	case <-ctx.Done():
		return protocol.Ack{}, ctx.Err()
	case <-c.ctx.Done():
		return protocol.Ack{}, ErrClosed
	}
}

func (c *Client) send(msg *protocol.Message) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	c.mu.Lock()
	l := c.link
	c.mu.Unlock()

	if l == nil {
		return ErrNotConnected
	}

	select {
	case <-l.done:
		return ErrNotConnected
	default:
	}

	select {
	case l.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) setLink(l *link) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.link = l
}

func (c *Client) removePending(ackId string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, ackId)
}

// failPending must be called with mu held.
func (c *Client) failPending() {
	for ackId, ch := range c.pending {
		close(ch)
		delete(c.pending, ackId)
	}
}

func (c *Client) resolve(msg *protocol.Message) {
	var ack protocol.Ack
	if err := msg.Decode(&ack); err != nil {
		c.logger.Warn("malformed ack", "error", err)
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[msg.AckId]
	delete(c.pending, msg.AckId)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("ack for unknown request", "ack_id", msg.AckId)
		return
	}

	ch <- ack
}

func (c *Client) publish(status Status) {
	select {
	case c.status <- status:
	case <-c.ctx.Done():
	}
}

func (c *Client) dial(ctx context.Context) (*link, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, err
	}

	l := &link{
		conn: conn,
		send: make(chan *protocol.Message, c.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	go c.writePump(l)

	return l, nil
}

func (c *Client) run(l *link) {
	defer c.wg.Done()
	defer close(c.status)
	defer close(c.incoming)

	for {
		c.readPump(l)
		l.close()

		c.mu.Lock()
		if c.link == l {
			c.link = nil
		}
		c.failPending()
		c.mu.Unlock()

		if c.ctx.Err() != nil {
			return
		}

		c.publish(StatusDropped)

		next, err := c.reconnect()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("giving up reconnecting", "error", err)
				c.publish(StatusGaveUp)
			}
			return
		}

		c.setLink(next)
		if c.ctx.Err() != nil {
			next.close()
			return
		}

		c.publish(StatusResumed)
		l = next
	}
}

func (c *Client) reconnect() (*link, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.ReconnectInitialDelay
	b.MaxInterval = c.cfg.ReconnectMaxDelay
	b.MaxElapsedTime = 0

	retries := c.cfg.ReconnectAttempts - 1
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), c.ctx)

	var l *link
	err := backoff.RetryNotify(func() error {
		var err error
		l, err = c.dial(c.ctx)
		return err
	}, policy, func(err error, next time.Duration) {
		c.logger.Info("reconnect attempt failed", "error", err, "retry_in", next)
	})
	if err != nil {
		return nil, err
	}

	return l, nil
}

func (c *Client) readPump(l *link) {
	l.conn.SetReadLimit(maxMessageSize)
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("connection lost", "error", err)
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("malformed message", "error", err)
			continue
		}

		if msg.Type == protocol.TypeAck {
			c.resolve(&msg)
			continue
		}

		select {
		case c.incoming <- &msg:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump(l *link) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case msg := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteJSON(msg); err != nil {
				c.logger.Info("write failed", "error", err)
				return
			}
		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-l.done:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
