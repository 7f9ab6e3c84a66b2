// Package gateway is the real-time front door: it admits inbound events
// through rate limiting, owns the live session map, routes messages and
// commands to pooled agents, and publishes the results back over the
// transport. Each session's events are processed serially by a dedicated
// goroutine fed through a mailbox.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leaguemind-ai/leaguemind/internal/agent"
	"github.com/leaguemind-ai/leaguemind/internal/command"
	"github.com/leaguemind-ai/leaguemind/internal/orchestrator"
	"github.com/leaguemind-ai/leaguemind/internal/persona"
	"github.com/leaguemind-ai/leaguemind/internal/pool"
	"github.com/leaguemind-ai/leaguemind/internal/ratelimit"
	"github.com/leaguemind-ai/leaguemind/pkg/observability"
)

const (
	defaultIdleAfter = 10 * time.Minute
	defaultReapAfter = time.Hour
)

var defaultMessageLimit = ratelimit.Config{MaxRequests: 30, Window: time.Minute}
var defaultSummonLimit = ratelimit.Config{MaxRequests: 5, Window: time.Hour}

// Gateway dispatches transport events to sessions and agents.
type Gateway struct {
	pool      *pool.Pool
	transport Transport
	registry  *command.Registry
	records   RecordStore
	orch      *orchestrator.Orchestrator

	messageLimit  ratelimit.Config
	summonLimit   ratelimit.Config
	limiter       *ratelimit.Limiter
	summonLimiter *ratelimit.Limiter

	idleAfter time.Duration
	reapAfter time.Duration
	streaming bool
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRecords enables session and summon persistence.
func WithRecords(rs RecordStore) Option {
	return func(g *Gateway) { g.records = rs }
}

// WithOrchestrator enables the /panel command.
func WithOrchestrator(o *orchestrator.Orchestrator) Option {
	return func(g *Gateway) { g.orch = o }
}

// WithLimits replaces the default message and summon admission windows.
func WithLimits(message, summon ratelimit.Config) Option {
	return func(g *Gateway) {
		g.messageLimit = message
		g.summonLimit = summon
	}
}

// WithIdleThresholds sets when a session is marked idle and when it is
// reaped.
func WithIdleThresholds(idle, reap time.Duration) Option {
	return func(g *Gateway) {
		g.idleAfter = idle
		g.reapAfter = reap
	}
}

// WithStreaming makes message replies arrive as stream:chunk events
// terminated by stream:end instead of a single message event.
func WithStreaming() Option {
	return func(g *Gateway) { g.streaming = true }
}

// WithClock substitutes the time source, for tests. The admission windows
// share the same clock.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New builds a gateway over the given pool and transport.
func New(p *pool.Pool, t Transport, opts ...Option) *Gateway {
	g := &Gateway{
		pool:         p,
		transport:    t,
		registry:     command.DefaultRegistry(),
		messageLimit: defaultMessageLimit,
		summonLimit:  defaultSummonLimit,
		idleAfter:    defaultIdleAfter,
		reapAfter:    defaultReapAfter,
		now:          time.Now,
		sessions:     make(map[string]*session),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.limiter = ratelimit.New(g.messageLimit, ratelimit.WithClock(g.now))
	g.summonLimiter = ratelimit.New(g.summonLimit, ratelimit.WithClock(g.now))
	return g
}

// Dispatch admits one inbound event. Admission control and session
// resolution happen here; agent work happens in the session's goroutine.
func (g *Gateway) Dispatch(ev Event) {
	switch ev.Type {
	case EvSessionCreate:
		g.ensureSession(ev)

	case EvSessionEnd:
		g.endSession(ev.SessionID)

	case EvDisconnect:
		// Disconnection never deletes the session; the idle sweep decides.
		if s := g.lookup(ev.SessionID); s != nil {
			s.touch(g.now())
		}

	case EvMessage, EvCommand, EvSummon, EvDismiss:
		if !g.admit(ev) {
			return
		}
		s := g.ensureSession(ev)
		if s == nil {
			return
		}
		select {
		case s.mailbox <- ev:
		default:
			log.Printf("[Gateway] session %s mailbox full, dropping %s", s.id, ev.Type)
			g.transport.SendTo(ev.Actor, Event{
				Type: EvError, SessionID: s.id,
				Text: "slow down, the session is backed up",
			})
		}

	default:
		log.Printf("[Gateway] unknown inbound event type %q", ev.Type)
	}
}

// admit applies the per-actor admission window. Summon and dismiss share a
// separate, stricter window.
func (g *Gateway) admit(ev Event) bool {
	limiter, window := g.limiter, "message"
	if ev.Type == EvSummon || ev.Type == EvDismiss {
		limiter, window = g.summonLimiter, "summon"
	}

	if _, err := limiter.Allow(ev.Actor); err != nil {
		observability.RecordRateLimitRejection(window)
		var le *ratelimit.LimitError
		if errors.As(err, &le) {
			g.transport.SendTo(ev.Actor, Event{
				Type:       EvError,
				SessionID:  ev.SessionID,
				Text:       fmt.Sprintf("rate limit exceeded, try again in %ds", le.RetryAfterSeconds()),
				RetryAfter: le.RetryAfterSeconds(),
			})
		}
		return false
	}
	return true
}

// ensureSession resolves the event's session, creating one when the id is
// unknown or absent.
func (g *Gateway) ensureSession(ev Event) *session {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	if s, ok := g.sessions[ev.SessionID]; ok {
		g.mu.Unlock()
		return s
	}

	id := ev.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	now := g.now()
	s := newSession(id, ev.Scope, ev.Actor, now)
	g.sessions[id] = s
	g.mu.Unlock()

	go s.run(g)

	if g.records != nil {
		err := g.records.SaveSessionRecord(context.Background(), &SessionRecord{
			ID: id, Scope: ev.Scope, Actor: ev.Actor, CreatedAt: now.UTC(),
		})
		if err != nil {
			log.Printf("[Gateway] save session record %s: %v", id, err)
		}
	}
	return s
}

func (g *Gateway) lookup(id string) *session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessions[id]
}

// endSession flushes final state and removes the session from the live map.
func (g *Gateway) endSession(id string) {
	g.mu.Lock()
	s, ok := g.sessions[id]
	delete(g.sessions, id)
	g.mu.Unlock()
	if !ok {
		return
	}

	s.stop(StateEnded)
	if g.records != nil {
		if err := g.records.EndSessionRecord(context.Background(), id, g.now().UTC()); err != nil {
			log.Printf("[Gateway] end session record %s: %v", id, err)
		}
	}
}

// handle processes one event inside the session's goroutine.
func (g *Gateway) handle(s *session, ev Event) {
	s.activate(g.now())
	ctx := context.Background()

	switch ev.Type {
	case EvMessage, EvCommand:
		g.handleMessage(ctx, s, ev)
	case EvSummon:
		g.handleSummon(ctx, s, ev)
	case EvDismiss:
		g.handleDismiss(s, ev)
	}
}

// handleMessage runs the full message path: agent resolution, typing
// indicator, processing, broadcast, typing cleared. Slash-prefixed text is
// routed through the command parser first.
func (g *Gateway) handleMessage(ctx context.Context, s *session, ev Event) {
	kind := persona.KindCommissioner
	if ev.Agent != "" {
		k, err := persona.ParseKind(ev.Agent)
		if err != nil {
			g.transport.SendTo(ev.Actor, Event{
				Type: EvError, SessionID: s.id,
				Text: fmt.Sprintf("no such personality %q", ev.Agent),
			})
			return
		}
		kind = k
	}

	input := ev.Text
	if ev.Type == EvCommand || strings.HasPrefix(strings.TrimSpace(ev.Text), "/") {
		parsed := g.registry.Parse(ev.Text)
		if !parsed.Valid {
			g.transport.SendTo(ev.Actor, Event{
				Type: EvError, SessionID: s.id,
				Text:       parsed.Err.Error(),
				Suggestion: parsed.Err.Suggestion,
			})
			return
		}
		if parsed.Command == "/panel" {
			g.handlePanel(ctx, s, ev, parsed.RawTail)
			return
		}
		kind = persona.Kind(parsed.Kind)
		input = parsed.RawTail
		if input == "" {
			input = strings.TrimPrefix(parsed.Command, "/")
		}
	}

	a, err := g.pool.Obtain(ctx, kind, s.scope, false)
	if err != nil {
		log.Printf("[Gateway] obtain %s: %v", persona.Key(kind, s.scope), err)
		g.transport.SendTo(ev.Actor, Event{
			Type: EvError, SessionID: s.id,
			Text: fmt.Sprintf("%s is unavailable right now", kind),
		})
		return
	}

	typing := Event{
		Type: EvTyping, Scope: s.scope, SessionID: s.id,
		Agent: string(kind), AgentName: a.DisplayName(),
	}
	g.transport.Broadcast(s.scope, typing)
	defer func() {
		typing.Type = EvTypingStop
		g.transport.Broadcast(s.scope, typing)
	}()

	req := agent.ProcessRequest{Message: input, SessionID: s.id, Actor: ev.Actor}

	if g.streaming {
		res := a.ProcessStream(ctx, req, func(chunk string) error {
			g.transport.Broadcast(s.scope, Event{
				Type: EvStreamChunk, Scope: s.scope, SessionID: s.id,
				Agent: string(kind), AgentName: a.DisplayName(), Text: chunk,
			})
			return nil
		})
		g.transport.Broadcast(s.scope, Event{
			Type: EvStreamEnd, Scope: s.scope, SessionID: s.id,
			Agent: string(kind), AgentName: a.DisplayName(), Text: res.Response,
		})
		return
	}

	res := a.Process(ctx, req)
	observability.RecordMessage(string(ev.Type), "ok")
	observability.RecordAgentProcess(string(kind), res.Elapsed)
	g.transport.Broadcast(s.scope, Event{
		Type: EvMessage, Scope: s.scope, SessionID: s.id,
		Agent: string(kind), AgentName: a.DisplayName(), Text: res.Response,
	})
}

// handlePanel convenes an expert panel on the tail of a /panel command and
// broadcasts the synthesized verdict.
func (g *Gateway) handlePanel(ctx context.Context, s *session, ev Event, decision string) {
	if g.orch == nil {
		g.transport.SendTo(ev.Actor, Event{
			Type: EvError, SessionID: s.id,
			Text: "the panel is not sitting today",
		})
		return
	}

	typing := Event{Type: EvTyping, Scope: s.scope, SessionID: s.id, AgentName: "The Panel"}
	g.transport.Broadcast(s.scope, typing)
	defer func() {
		typing.Type = EvTypingStop
		g.transport.Broadcast(s.scope, typing)
	}()

	a := g.orch.ExpertPanel(ctx, s.scope, decision, "")
	g.transport.Broadcast(s.scope, Event{
		Type: EvMessage, Scope: s.scope, SessionID: s.id,
		AgentName: "The Panel",
		Text:      fmt.Sprintf("%s\n\nConfidence: %s", a.Synthesis, a.Confidence),
	})
}

// handleSummon brings an agent into the scope's conversation and has it
// introduce itself to the whole room.
func (g *Gateway) handleSummon(ctx context.Context, s *session, ev Event) {
	kind, err := persona.ParseKind(ev.Agent)
	if err != nil {
		g.transport.SendTo(ev.Actor, Event{
			Type: EvError, SessionID: s.id,
			Text: fmt.Sprintf("no such personality %q", ev.Agent),
		})
		return
	}

	a, err := g.pool.Obtain(ctx, kind, s.scope, false)
	if err != nil {
		log.Printf("[Gateway] summon %s: %v", persona.Key(kind, s.scope), err)
		g.transport.SendTo(ev.Actor, Event{
			Type: EvError, SessionID: s.id,
			Text: fmt.Sprintf("%s could not be summoned", kind),
		})
		return
	}

	if g.records != nil {
		err := g.records.CreateSummonRecord(context.Background(), &SummonRecord{
			ID: uuid.NewString(), Scope: s.scope, Kind: kind,
			Actor: ev.Actor, CreatedAt: g.now().UTC(),
		})
		if err != nil {
			log.Printf("[Gateway] summon record: %v", err)
		}
	}

	g.transport.Broadcast(s.scope, Event{
		Type: EvSummonArrived, Scope: s.scope, SessionID: s.id,
		Agent: string(kind), AgentName: a.DisplayName(),
		Text: introduction(a.Personality()),
	})
}

func (g *Gateway) handleDismiss(s *session, ev Event) {
	kind, err := persona.ParseKind(ev.Agent)
	if err != nil {
		g.transport.SendTo(ev.Actor, Event{
			Type: EvError, SessionID: s.id,
			Text: fmt.Sprintf("no such personality %q", ev.Agent),
		})
		return
	}

	g.pool.Evict(kind, s.scope)
	g.transport.Broadcast(s.scope, Event{
		Type: EvSummonDismissed, Scope: s.scope, SessionID: s.id,
		Agent: string(kind),
	})
}

func introduction(p persona.Personality) string {
	if len(p.Catchphrases) > 0 {
		return fmt.Sprintf("%s has entered the chat. %s", p.DisplayName, p.Catchphrases[0])
	}
	return fmt.Sprintf("%s has entered the chat.", p.DisplayName)
}

// SweepIdle marks stale sessions idle and reaps those idle past the reap
// threshold. Returns the number reaped. Idle detection only happens here,
// never eagerly on the message path.
func (g *Gateway) SweepIdle() int {
	now := g.now()

	g.mu.Lock()
	var reaped []*session
	for id, s := range g.sessions {
		idle := s.idleFor(now)
		switch {
		case idle > g.reapAfter:
			delete(g.sessions, id)
			reaped = append(reaped, s)
		case idle > g.idleAfter:
			s.markIdle()
		}
	}
	g.mu.Unlock()

	for _, s := range reaped {
		s.stop(StateReaped)
		if g.records != nil {
			if err := g.records.EndSessionRecord(context.Background(), s.id, now.UTC()); err != nil {
				log.Printf("[Gateway] end reaped session record %s: %v", s.id, err)
			}
		}
	}
	if len(reaped) > 0 {
		log.Printf("[Gateway] idle sweep reaped %d session(s)", len(reaped))
	}
	return len(reaped)
}

// SessionState reports the live state of a session.
func (g *Gateway) SessionState(id string) (State, bool) {
	s := g.lookup(id)
	if s == nil {
		return "", false
	}
	return s.currentState(), true
}

// SessionCount returns the size of the live session map.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// PruneLimiters drops expired admission buckets.
func (g *Gateway) PruneLimiters() int {
	return g.limiter.Prune() + g.summonLimiter.Prune()
}

// Close ends every live session and refuses further dispatch.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	sessions := make([]*session, 0, len(g.sessions))
	for id, s := range g.sessions {
		delete(g.sessions, id)
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.stop(StateEnded)
	}
}
