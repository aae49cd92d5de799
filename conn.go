package main

import (
	"errors"

	"github.com/gorilla/websocket"
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errConnClosed     = errors.New("connection closed")
)

const sendBufferSize = 256

type connection struct {
	// id, send and closed are owned by the hub goroutine once the
	// connection has been handed to it.
	id     string
	send   chan []byte
	closed bool

	ws     frameConn
	h      *hub
	ticker *mTicker
}

func newConnection(ws frameConn, h *hub, ticker *mTicker) *connection {
	return &connection{
		send:   make(chan []byte, sendBufferSize),
		ws:     ws,
		h:      h,
		ticker: ticker,
	}
}

func (c *connection) run() {
	c.h.queue <- command{cmd: CONNECT, conn: c}
	incr("websockets", 1)
	defer func() {
		decr("websockets", 1)
		c.h.queue <- command{cmd: DISCONNECT, conn: c}
	}()
	go c.writer()
	c.reader()
}

// deliver queues msg for the writer without blocking. Only the hub calls it.
func (c *connection) deliver(msg []byte) error {
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		mark("drops", 1)
		return errSendBufferFull
	}
}

// close ends the writer. Only the hub calls it.
func (c *connection) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *connection) reader() {
	defer c.ws.close()
	c.ws.prepareRead()
	for {
		if err := c.readMessage(); err != nil {
			break
		}
	}
}

// readMessage reads one frame and hands it to the hub. A payload that does
// not parse is reported but keeps the connection open.
func (c *connection) readMessage() error {
	message, err := c.ws.readFrame()
	if err != nil {
		return err
	}
	incr("conn.recv", 1)
	env, err := parseEnvelope(message)
	if err != nil {
		c.h.queue <- command{cmd: FAULT, conn: c, err: err}
		return nil
	}
	c.h.queue <- command{cmd: MESSAGE, conn: c, env: env}
	return nil
}

func (c *connection) writer() {
	sub := c.ticker.subscribe()
	defer func() {
		c.ticker.unsubscribe(sub)
		c.ws.close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.ws.writeFrame(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.writeFrame(websocket.TextMessage, message); err != nil {
				return
			}
			incr("conn.send", 1)
		case _, ok := <-sub.tick:
			if !ok {
				return
			}
			if err := c.ws.writeFrame(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
