package gateway

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Direct sends racing a disconnecting client must never hit the closed send
// channel; both paths serialize on the hub lock.
func TestDirectSendDuringDisconnect(t *testing.T) {
	h := NewWSHub()

	for i := 0; i < 200; i++ {
		c := &wsClient{hub: h, send: make(chan Event, 1), actor: "mike", scope: "league-1"}
		h.register(c)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				h.SendTo("mike", Event{Type: EvError, Text: "rate limit exceeded"})
			}
		}()
		go func() {
			defer wg.Done()
			h.unregister(c)
		}()
		wg.Wait()

		// After unregister the actor is gone and sends are dropped.
		h.SendTo("mike", Event{Type: EvError})
	}
}

func TestBroadcastDuringDisconnect(t *testing.T) {
	h := NewWSHub()

	for i := 0; i < 200; i++ {
		c := &wsClient{hub: h, send: make(chan Event, 1), actor: "joe", scope: "league-1"}
		h.register(c)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				h.Broadcast("league-1", Event{Type: EvTyping})
			}
		}()
		go func() {
			defer wg.Done()
			h.unregister(c)
		}()
		wg.Wait()
	}
}

// lockedClock is a time source safe to read from the connection goroutines.
type lockedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *lockedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *lockedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// A WebSocket disconnect must refresh the session's last activity, so a
// session whose client dropped recently survives the idle sweep.
func TestDisconnectOverWebSocketTouchesSession(t *testing.T) {
	clock := &lockedClock{now: time.Date(2025, 11, 2, 9, 0, 0, 0, time.UTC)}

	h := NewWSHub()
	g := New(testPool("ok"), h,
		WithIdleThresholds(10*time.Minute, time.Hour),
		WithClock(clock.Now))
	h.SetGateway(g)
	defer g.Close()

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?actor=mike&scope=league-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := conn.WriteJSON(Event{Type: EvSessionCreate, SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, ok := g.SessionState("s1")
		return ok
	})

	// Drop the connection 40 minutes in. The disconnect event must carry
	// the session id the connection touched.
	clock.Advance(40 * time.Minute)
	_ = conn.Close()
	waitFor(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		_, connected := h.actors["mike"]
		return !connected
	})

	// At 65 minutes the session has been idle only 25, so the sweep must
	// keep it.
	clock.Advance(25 * time.Minute)
	if n := g.SweepIdle(); n != 0 {
		t.Fatalf("sweep reaped %d session(s) after a recent disconnect", n)
	}
	if _, ok := g.SessionState("s1"); !ok {
		t.Fatal("session gone after sweep")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
