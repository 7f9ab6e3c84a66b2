package gateway

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendDepth      = 32
)

// WSHub is the WebSocket implementation of Transport: one room per scope,
// one connection per actor. Clients connect with ?actor=...&scope=... and
// exchange Event frames as JSON.
type WSHub struct {
	gateway  *Gateway
	upgrader websocket.Upgrader

	mu     sync.Mutex
	rooms  map[string]map[*wsClient]struct{}
	actors map[string]*wsClient
}

type wsClient struct {
	hub   *WSHub
	conn  *websocket.Conn
	send  chan Event
	actor string
	scope string

	// sessionID is the last session referenced by an inbound frame; only
	// readPump touches it. It rides on the disconnect event so the gateway
	// can refresh the session's last activity.
	sessionID string
}

// NewWSHub creates the hub. Attach the gateway with SetGateway before
// serving; the two are constructed in either order.
func NewWSHub() *WSHub {
	return &WSHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		rooms:  make(map[string]map[*wsClient]struct{}),
		actors: make(map[string]*wsClient),
	}
}

// SetGateway wires the dispatch target for inbound frames.
func (h *WSHub) SetGateway(g *Gateway) { h.gateway = g }

// ServeHTTP upgrades the connection and starts the client's pumps.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		http.Error(w, "actor query parameter required", http.StatusBadRequest)
		return
	}
	scope := r.URL.Query().Get("scope")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WSHub] upgrade: %v", err)
		return
	}

	c := &wsClient{
		hub:   h,
		conn:  conn,
		send:  make(chan Event, sendDepth),
		actor: actor,
		scope: scope,
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

func (h *WSHub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.scope] == nil {
		h.rooms[c.scope] = make(map[*wsClient]struct{})
	}
	h.rooms[c.scope][c] = struct{}{}
	h.actors[c.actor] = c
}

// unregister removes the client and closes its send channel under h.mu.
// Broadcast and SendTo write send channels under the same lock, so the
// close cannot race an in-flight send.
func (h *WSHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[c.scope]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.scope)
		}
	}
	if h.actors[c.actor] == c {
		delete(h.actors, c.actor)
	}
	close(c.send)
}

// Broadcast delivers ev to every connection in the scope's room. Slow
// clients get dropped frames, never a blocked hub.
func (h *WSHub) Broadcast(scope string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[scope] {
		select {
		case c.send <- ev:
		default:
			log.Printf("[WSHub] dropping %s frame for slow client %s", ev.Type, c.actor)
		}
	}
}

// SendTo delivers ev to a single actor's connection, if any. The send
// happens under h.mu: unregister removes the client and closes its channel
// under the same lock ordering, so a direct send can never hit a closed
// channel.
func (h *WSHub) SendTo(actor string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.actors[actor]
	if !ok {
		return
	}
	select {
	case c.send <- ev:
	default:
		log.Printf("[WSHub] dropping %s frame for slow client %s", ev.Type, actor)
	}
}

// readPump forwards inbound frames to the gateway until the connection
// dies, then reports the disconnect.
func (c *wsClient) readPump() {
	defer func() {
		if c.hub.gateway != nil {
			c.hub.gateway.Dispatch(Event{
				Type: EvDisconnect, Scope: c.scope,
				Actor: c.actor, SessionID: c.sessionID,
			})
		}
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WSHub] read %s: %v", c.actor, err)
			}
			return
		}
		// The connection's identity wins over whatever the frame claims.
		ev.Actor = c.actor
		ev.Scope = c.scope
		if ev.SessionID != "" {
			c.sessionID = ev.SessionID
		}
		if c.hub.gateway != nil {
			c.hub.gateway.Dispatch(ev)
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
