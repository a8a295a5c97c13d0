// Package ws carries sessions and their events over websocket connections.
//
// Every connection is one session in the session registry. Outbound events are framed as
// {"type": ..., "data": ...} and queued on a bounded per-session buffer; a session whose buffer
// is full misses the event. Inbound frames are decoded and handed to a Handler.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/semanticallynull/ridemarket-backend/dispatch"
	"github.com/semanticallynull/ridemarket-backend/session"
	"github.com/semanticallynull/ridemarket-backend/user"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 8192

	defaultSendBuffer = 64
)

// Handler reacts to session lifecycle and inbound frames. Calls for one session are serialised.
type Handler interface {
	OnConnect(ctx context.Context, s session.Session)
	OnMessage(ctx context.Context, s session.Session, msgType string, data []byte)
}

type HubConfig struct {
	// Verifier, when set, makes a valid handshake token mandatory.
	Verifier *TokenVerifier
	// AllowedOrigins empty or containing "*" accepts every origin.
	AllowedOrigins []string
	SendBuffer     int
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	sessions   *session.Registry
	handler    Handler
	verifier   *TokenVerifier
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *slog.Logger
}

func NewHub(sessions *session.Registry, logger *slog.Logger, cfg HubConfig) *Hub {
	h := &Hub{
		clients:    make(map[string]*client),
		sessions:   sessions,
		verifier:   cfg.Verifier,
		sendBuffer: cfg.SendBuffer,
		logger:     logger,
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// SetHandler must be called before the hub serves connections.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// Send queues ev for one session. Unknown sessions and full buffers drop the event.
func (h *Hub) Send(sessionID string, ev dispatch.Event) {
	msg, err := json.Marshal(struct {
		Type string         `json:"type"`
		Data dispatch.Event `json:"data"`
	}{ev.EventName(), ev})
	if err != nil {
		h.logger.Error("failed to encode event", "event", ev.EventName(), "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[sessionID]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		droppedMessages.Inc()
		c.logger.Warn("send buffer full, dropping event", "event", ev.EventName())
	}
}

// ServeHTTP authenticates the handshake, upgrades the connection and registers the session.
//
// The actor is named by the actorType and actorId query parameters. A token is read from the
// token query parameter or a bearer Authorization header.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actorType, err := user.ParseType(q.Get("actorType"))
	if err != nil {
		http.Error(w, "actorType must be company or vendor", http.StatusBadRequest)
		return
	}
	actorID, err := uuid.Parse(q.Get("actorId"))
	if err != nil {
		http.Error(w, "actorId must be a uuid", http.StatusBadRequest)
		return
	}

	if h.verifier != nil {
		token := q.Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if err := h.verifier.Verify(token, actorType, actorID); err != nil {
			h.logger.WarnContext(r.Context(), "rejected websocket handshake", "actor_id", actorID, "error", err)
			http.Error(w, "invalid session token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the response
		h.logger.WarnContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		cancel: cancel,
		logger: h.logger.With("session_id", id, "actor_type", actorType.String(), "actor_id", actorID),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		conn.Close()
		return
	}
	h.clients[id] = c
	h.mu.Unlock()

	c.session = h.sessions.Register(id, actorType, actorID)
	connectedSessions.Inc()
	c.logger.InfoContext(ctx, "session registered")

	go c.writePump()

	h.Send(id, SessionRegistered{
		SessionID:   id,
		ActorType:   actorType,
		ActorID:     actorID,
		ConnectedAt: c.session.ConnectedAt,
	})
	if h.handler != nil {
		h.handler.OnConnect(ctx, c.session)
	}

	go c.readPump(ctx)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	cur, ok := h.clients[c.session.ID]
	if ok && cur == c {
		delete(h.clients, c.session.ID)
		close(c.send)
	}
	h.mu.Unlock()

	if ok && cur == c {
		h.sessions.Unregister(c.session.ID)
		connectedSessions.Dec()
		c.logger.Info("session unregistered")
	}
}

// Close disconnects every session and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	for _, c := range clients {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Debug("failed to send close frame", "error", err)
		}
		c.conn.Close()
	}
}

// Len returns the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
