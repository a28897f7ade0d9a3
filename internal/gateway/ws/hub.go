package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dohr-michael/taskpilot/internal/agent"
	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/runner"
)

// Runner executes run requests.
type Runner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Report, error)
}

// Client represents a connected WebSocket client.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu       sync.Mutex
	sessions map[string]bool // empty: every session
}

// wants reports whether the client follows sessionID.
func (c *Client) wants(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions) == 0 || c.sessions[sessionID]
}

func (c *Client) follow(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = true
}

// Hub manages WebSocket clients and bridges them to the event bus.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	bus         *events.Bus
	runner      Runner
	unsubscribe func()
}

// NewHub creates a new WebSocket hub connected to an event bus. A nil runner
// makes the hub stream events only.
func NewHub(bus *events.Bus, r Runner) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		bus:     bus,
		runner:  r,
	}

	// Subscribe to all events and bridge to WS clients
	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		data, err := EncodeEvent(string(e.Type), e.SessionID, e)
		if err != nil {
			slog.Error("ws encode event", "event", e.Type, "error", err)
			return
		}
		h.broadcast(e.SessionID, data)
	})

	return h
}

// broadcast sends data to the clients following sessionID.
func (h *Hub) broadcast(sessionID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(sessionID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

// register adds a client to the hub.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

// unregister removes a client from the hub.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles a WebSocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for dev
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		hub:      h,
		sessions: make(map[string]bool),
	}

	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump reads frames from the WS connection and dispatches them.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := DecodeRequest(data)
		if err != nil {
			slog.Debug("ws frame dropped", "error", err)
			continue
		}
		c.handleRequest(ctx, frame)
	}
}

// handleRequest processes a request frame (method dispatch).
func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	switch Method(frame.Method) {
	case MethodSubscribe:
		var params struct {
			SessionID string `json:"session_id"`
		}
		if err := frame.Bind(&params); err != nil || params.SessionID == "" {
			c.sendError(frame.ID, "invalid params")
			return
		}
		c.follow(params.SessionID)
		c.sendOK(frame.ID, map[string]string{"status": "subscribed"})

	case MethodRun:
		if c.hub.runner == nil {
			c.sendError(frame.ID, "runs are not available")
			return
		}
		var params runner.Params
		if err := frame.Bind(&params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
		req := params.Request()
		req.SessionID = agent.NewSessionID()
		c.follow(req.SessionID)
		c.sendEvent(EventRunAccepted, req.SessionID, map[string]string{"session_id": req.SessionID})
		go c.run(ctx, frame.ID, req)

	default:
		c.sendError(frame.ID, "unknown method: "+frame.Method)
	}
}

func (c *Client) run(ctx context.Context, id string, req runner.Request) {
	report, err := c.hub.runner.Run(ctx, req)
	if err != nil {
		var payload any
		if report != nil {
			payload = report
		}
		c.respond(id, payload, err)
		return
	}
	c.sendOK(id, report)
}

// writePump writes queued messages to the WS connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) sendOK(id string, payload any) {
	c.respond(id, payload, nil)
}

func (c *Client) sendError(id string, errMsg string) {
	c.respond(id, nil, errors.New(errMsg))
}

func (c *Client) respond(id string, payload any, failure error) {
	data, err := EncodeResponse(id, payload, failure)
	if err != nil {
		slog.Error("ws encode response", "id", id, "error", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) sendEvent(event, sessionID string, payload any) {
	data, err := EncodeEvent(event, sessionID, payload)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue drops the frame if the client is gone or too slow.
func (c *Client) enqueue(data []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
