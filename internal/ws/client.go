package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/semanticallynull/ridemarket-backend/session"
)

// client is one websocket connection. readPump and writePump each own one side of conn.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	session session.Session
	send    chan []byte
	cancel  context.CancelFunc
	logger  *slog.Logger
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		c.cancel()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WarnContext(ctx, "connection closed unexpectedly", "error", err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			inboundMessages.WithLabelValues("malformed").Inc()
			c.hub.Send(c.session.ID, ErrorEvent{Code: "VALIDATION_ERROR", Error: "frame must be {\"type\", \"data\"}"})
			continue
		}

		label := env.Type
		if !knownType(label) {
			label = "unknown"
		}
		inboundMessages.WithLabelValues(label).Inc()

		if c.hub.handler != nil {
			c.hub.handler.OnMessage(ctx, c.session, env.Type, env.Data)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
