package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	kinematics "github.com/julimercado10/robot-arm-kinematics"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Client is one WebSocket connection. Every inbound message is a solve
// request; a newer request cancels the one still running.
type Client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	key    string

	ctx    context.Context
	cancel context.CancelFunc
	solves sync.WaitGroup
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		server: s,
		conn:   conn,
		send:   make(chan []byte, 16),
		key:    fmt.Sprintf("ws-%d", atomic.AddUint64(&s.conns, 1)),
		ctx:    ctx,
		cancel: cancel,
	}

	go client.writePump()
	client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.server.registry.Cancel(c.key)
		c.solves.Wait()
		close(c.send)
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req kinematics.Request
		if err := json.Unmarshal(msg, &req); err != nil {
			c.emit(EventError, map[string]any{"error": "invalid json"})
			continue
		}

		ctx, release := c.server.registry.Begin(c.ctx, c.key)
		c.solves.Add(1)
		go func() {
			defer c.solves.Done()
			defer release()
			c.solve(ctx, req)
		}()
	}
}

func (c *Client) solve(ctx context.Context, req kinematics.Request) {
	resp, err := c.server.engine.Solve(ctx, req)
	if ctx.Err() != nil {
		// superseded or disconnected
		return
	}
	if err != nil {
		c.emit(EventError, kinematics.NewFailureResponse(err))
		return
	}
	c.emit(EventResult, resp)
}

func (c *Client) emit(eventType string, payload any) {
	b, err := json.Marshal(Event{Type: eventType, Ts: nowISO(), Payload: payload})
	if err != nil {
		c.server.logger.Warnf("ws marshal %s event: %v", eventType, err)
		return
	}
	select {
	case c.send <- b:
	case <-c.ctx.Done():
	}
}

func (c *Client) writePump() {
	defer func() {
		c.cancel()
		_ = c.conn.Close()
	}()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
