package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/leaguemind-ai/leaguemind/internal/persona"
)

// State is a session's explicit lifecycle position.
type State string

const (
	StateCreated State = "created"
	StateActive  State = "active"
	StateIdle    State = "idle"
	StateEnded   State = "ended"
	StateReaped  State = "reaped"
)

const mailboxDepth = 16

// SessionRecord is the lightweight persisted view of a session.
type SessionRecord struct {
	ID        string    `json:"id"`
	Scope     string    `json:"scope"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// SummonRecord is the persisted audit entry for a summon event.
type SummonRecord struct {
	ID        string       `json:"id"`
	Scope     string       `json:"scope"`
	Kind      persona.Kind `json:"kind"`
	Actor     string       `json:"actor"`
	CreatedAt time.Time    `json:"created_at"`
}

// RecordStore persists session and summon records. All writes are
// best-effort side channels.
type RecordStore interface {
	SaveSessionRecord(ctx context.Context, r *SessionRecord) error
	EndSessionRecord(ctx context.Context, sessionID string, endedAt time.Time) error
	CreateSummonRecord(ctx context.Context, r *SummonRecord) error
}

// session is one live conversation, processed by its own goroutine. All
// event handling for a session runs serially through its mailbox; the
// gateway only touches the mutex-guarded fields from outside.
type session struct {
	id    string
	scope string
	actor string

	mailbox chan Event
	done    chan struct{}
	once    sync.Once

	mu           sync.Mutex
	state        State
	createdAt    time.Time
	lastActivity time.Time
}

func newSession(id, scope, actor string, now time.Time) *session {
	return &session{
		id:           id,
		scope:        scope,
		actor:        actor,
		mailbox:      make(chan Event, mailboxDepth),
		done:         make(chan struct{}),
		state:        StateCreated,
		createdAt:    now,
		lastActivity: now,
	}
}

// run is the session actor loop.
func (s *session) run(g *Gateway) {
	for {
		select {
		case ev := <-s.mailbox:
			g.handle(s, ev)
		case <-s.done:
			return
		}
	}
}

func (s *session) stop(terminal State) {
	s.mu.Lock()
	s.state = terminal
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *session) activate(now time.Time) {
	s.mu.Lock()
	s.state = StateActive
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

func (s *session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) markIdle() {
	s.mu.Lock()
	if s.state == StateActive || s.state == StateCreated {
		s.state = StateIdle
	}
	s.mu.Unlock()
}
