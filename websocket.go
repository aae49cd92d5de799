package main

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed between pongs before the peer is considered gone.
	pongWait = 60 * time.Second

	// Pings go out this often. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Default cap on an inbound frame.
	defaultReadLimit = 64 * 1024
)

// frameConn is the part of a websocket a relay connection needs. Tests
// substitute it to drive a connection without a network.
type frameConn interface {
	prepareRead()
	readFrame() ([]byte, error)
	writeFrame(messageType int, payload []byte) error
	close()
}

// wsFrameConn applies the relay's limits and deadlines to a gorilla
// websocket.
type wsFrameConn struct {
	ws        *websocket.Conn
	readLimit int64
	pongWait  time.Duration
	writeWait time.Duration
}

func newWsFrameConn(ws *websocket.Conn, readLimit int64) *wsFrameConn {
	return &wsFrameConn{
		ws:        ws,
		readLimit: readLimit,
		pongWait:  pongWait,
		writeWait: writeWait,
	}
}

// prepareRead sets the frame size cap and keeps the read deadline moving
// as long as the peer answers pings.
func (f *wsFrameConn) prepareRead() {
	f.ws.SetReadLimit(f.readLimit)
	f.ws.SetReadDeadline(time.Now().Add(f.pongWait))
	f.ws.SetPongHandler(func(string) error {
		return f.ws.SetReadDeadline(time.Now().Add(f.pongWait))
	})
}

// readFrame returns the next data frame. Text and binary frames are both
// treated as JSON envelopes.
func (f *wsFrameConn) readFrame() ([]byte, error) {
	_, payload, err := f.ws.ReadMessage()
	return payload, err
}

func (f *wsFrameConn) writeFrame(messageType int, payload []byte) error {
	if err := f.ws.SetWriteDeadline(time.Now().Add(f.writeWait)); err != nil {
		return err
	}
	if messageType == websocket.CloseMessage || messageType == websocket.PingMessage {
		return f.ws.WriteControl(messageType, payload, time.Now().Add(f.writeWait))
	}
	return f.ws.WriteMessage(messageType, payload)
}

func (f *wsFrameConn) close() {
	f.ws.Close()
}
