// Package wspeer owns the write side of a websocket connection.
package wspeer

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrBufferFull = errors.New("send buffer full")
	ErrClosed     = errors.New("peer closed")
)

// Peer serializes every write to one connection through a single goroutine so
// messages leave in the order they were queued.
type Peer struct {
	conn      *websocket.Conn
	send      chan any
	done      chan struct{}
	closeOnce sync.Once
}

func New(conn *websocket.Conn, bufferSize int) *Peer {
	return &Peer{
		conn: conn,
		send: make(chan any, bufferSize),
		done: make(chan struct{}),
	}
}

// Send queues msg for JSON encoding. It never blocks.
func (p *Peer) Send(msg any) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case p.send <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops the write pump, which sends a close frame and closes the connection.
func (p *Peer) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// WritePump drains the send buffer and pings the remote end until Close is
// called or a write fails.
func (p *Peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.Close()
		p.conn.Close()
	}()

	for {
		select {
		case msg := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			p.flush()
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (p *Peer) flush() {
	for {
		select {
		case msg := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// PrepareRead arms the read deadline that detects a silent remote end. Every
// pong extends it and then calls onPong, which may be nil.
func PrepareRead(conn *websocket.Conn, onPong func()) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if onPong != nil {
			onPong()
		}
		return nil
	})
}
