// Package agent implements the per-agent message pipeline: memory retrieval,
// history load, context assembly, model invocation, memory write-back, and a
// personality-flavored fallback. An agent always answers, even degraded.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leaguemind-ai/leaguemind/internal/llm"
	"github.com/leaguemind-ai/leaguemind/internal/memstore"
	"github.com/leaguemind-ai/leaguemind/internal/observability"
	"github.com/leaguemind-ai/leaguemind/internal/persona"
)

const (
	// memoryTopK and memoryThreshold bound advisory memory retrieval.
	memoryTopK      = 5
	memoryThreshold = 0.70

	// historyWindow is how many prior turns go into the prompt.
	historyWindow = 10

	// defaultImportance is assigned to the condensed exchange summary
	// written back after each answer.
	defaultImportance = 0.6
)

// Role labels one side of a conversation turn.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Turn is one entry of the bounded per-(session, agent) history.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationStore is the persistence collaborator the agent core consumes.
// Appends are best-effort side channels; only the history load is awaited
// for correctness.
type ConversationStore interface {
	// LoadConversation returns up to limit most recent turns, oldest first.
	LoadConversation(ctx context.Context, sessionID, agentKey string, limit int) ([]Turn, error)

	// AppendConversation appends turns and trims the history to its cap.
	AppendConversation(ctx context.Context, sessionID, agentKey string, turns ...Turn) error

	// LoadAgentConfig returns the stored personality override for agentKey,
	// or (nil, nil) when none exists.
	LoadAgentConfig(ctx context.Context, agentKey string) (*persona.Override, error)

	// SaveAgentConfig persists a personality override.
	SaveAgentConfig(ctx context.Context, agentKey string, o *persona.Override) error
}

// Situation is structured league context supplied by the caller: what week
// it is, who is playing whom, and what just moved on the wire.
type Situation struct {
	Period             string
	Matchup            string
	RecentTransactions []string
}

// ProcessRequest carries one inbound message through the pipeline.
type ProcessRequest struct {
	Message   string
	SessionID string
	Actor     string // display name of the human speaking, optional
	Situation *Situation
}

// Result is the pipeline output. Response is never empty.
type Result struct {
	Response  string
	ToolsUsed []string
	Elapsed   time.Duration
}

// Deps are the collaborators an agent needs. Memory and Conversations may be
// nil; the pipeline degrades gracefully without them.
type Deps struct {
	Invoker       llm.Invoker
	Memory        memstore.Store
	Conversations ConversationStore
}

// Agent is one live conversational worker, owned by the pool and mutated
// only through its own methods.
type Agent struct {
	kind  persona.Kind
	scope string
	deps  Deps

	mu          sync.Mutex
	personality persona.Personality
	tools       []llm.Tool
	initialized bool
}

// New constructs an agent for a known kind. Unknown kinds fail with
// persona.ErrUnknownKind and leave no trace.
func New(kind persona.Kind, scope string, deps Deps) (*Agent, error) {
	p, err := persona.ForKind(kind)
	if err != nil {
		return nil, err
	}
	return &Agent{
		kind:        kind,
		scope:       scope,
		deps:        deps,
		personality: p,
	}, nil
}

func (a *Agent) Kind() persona.Kind { return a.kind }
func (a *Agent) Scope() string      { return a.scope }
func (a *Agent) Key() string        { return persona.Key(a.kind, a.scope) }

// DisplayName returns the personality's public name.
func (a *Agent) DisplayName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.personality.DisplayName
}

// Personality returns a copy of the effective profile.
func (a *Agent) Personality() persona.Personality {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.personality
}

// Init registers the kind's tools and applies any stored personality
// override (stored fields win). Idempotent; a failed config load is logged
// and the base profile kept.
func (a *Agent) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}

	a.tools = toolsFor(a.kind)

	if a.deps.Conversations != nil {
		override, err := a.deps.Conversations.LoadAgentConfig(ctx, persona.Key(a.kind, a.scope))
		if err != nil {
			log.Printf("[Agent] %s: load config override: %v", persona.Key(a.kind, a.scope), err)
		} else {
			a.personality = a.personality.Apply(override)
		}
	}

	a.initialized = true
	return nil
}

// Initialized reports whether Init has completed.
func (a *Agent) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// Healthy reports whether the agent can take traffic.
func (a *Agent) Healthy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deps.Invoker != nil
}

// Process runs the full pipeline. It never fails: any error inside the
// pipeline yields a personality-flavored fallback with the elapsed time
// measured up to the failure and an empty tool trace.
func (a *Agent) Process(ctx context.Context, req ProcessRequest) *Result {
	return a.process(ctx, req, nil)
}

// ProcessStream behaves like Process but forwards answer fragments through
// onChunk when the model backend supports streaming. Tool use is disabled
// on the streaming path.
func (a *Agent) ProcessStream(ctx context.Context, req ProcessRequest, onChunk func(string) error) *Result {
	return a.process(ctx, req, onChunk)
}

func (a *Agent) process(ctx context.Context, req ProcessRequest, onChunk func(string) error) *Result {
	start := time.Now()

	ctx, span := observability.StartSpan(ctx, "agent.process",
		trace.WithAttributes(
			attribute.String("agent.kind", string(a.kind)),
			attribute.String("agent.scope", a.scope),
			attribute.String("session.id", req.SessionID),
		),
	)
	defer span.End()

	if err := a.Init(ctx); err != nil {
		span.RecordError(err)
		return a.fallback(start)
	}

	text, toolsUsed, err := a.answer(ctx, req, onChunk)
	if err != nil {
		log.Printf("[Agent] %s: pipeline error, serving fallback: %v", a.Key(), err)
		span.RecordError(err)
		return a.fallback(start)
	}

	a.remember(ctx, req, text)

	return &Result{
		Response:  text,
		ToolsUsed: toolsUsed,
		Elapsed:   time.Since(start),
	}
}

// answer performs the awaited part of the pipeline: memory retrieval,
// history load, prompt assembly, model invocation.
func (a *Agent) answer(ctx context.Context, req ProcessRequest, onChunk func(string) error) (string, []string, error) {
	agentKey := a.Key()

	// Memory is advisory: a retrieval failure costs context, not the answer.
	var memories []memstore.Item
	if a.deps.Memory != nil {
		items, err := a.deps.Memory.RetrieveRelevant(ctx, agentKey, req.Message, memoryTopK, memoryThreshold)
		if err != nil {
			log.Printf("[Agent] %s: memory retrieval: %v", agentKey, err)
		} else {
			memories = items
		}
	}

	var history []Turn
	if a.deps.Conversations != nil {
		turns, err := a.deps.Conversations.LoadConversation(ctx, req.SessionID, agentKey, historyWindow)
		if err != nil {
			return "", nil, fmt.Errorf("load conversation: %w", err)
		}
		history = turns
	}

	a.mu.Lock()
	p := a.personality
	tools := a.tools
	a.mu.Unlock()

	invokeReq := llm.Request{
		System:      p.SystemPrompt(),
		History:     historyMessages(history),
		Input:       enrichInput(req, memories),
		Tools:       tools,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}

	if onChunk != nil {
		if s, ok := a.deps.Invoker.(llm.Streamer); ok {
			streamReq := invokeReq
			streamReq.Tools = nil
			res, err := s.InvokeStream(ctx, streamReq, onChunk)
			if err != nil {
				return "", nil, err
			}
			return res.Text, res.ToolsUsed, nil
		}
	}

	res, err := a.deps.Invoker.Invoke(ctx, invokeReq)
	if err != nil {
		return "", nil, err
	}
	if onChunk != nil {
		_ = onChunk(res.Text)
	}
	return res.Text, res.ToolsUsed, nil
}

// remember writes the best-effort side channels: the condensed memory record
// and the appended turn pair. Failures are logged, never surfaced; the
// answer must not depend on storage availability.
func (a *Agent) remember(ctx context.Context, req ProcessRequest, response string) {
	agentKey := a.Key()

	if a.deps.Memory != nil {
		summary := fmt.Sprintf("%s asked: %s | %s answered: %s",
			orDefault(req.Actor, "user"), condense(req.Message), a.DisplayName(), condense(response))
		meta := map[string]any{"session_id": req.SessionID}
		if _, err := a.deps.Memory.Store(ctx, agentKey, summary, meta, defaultImportance); err != nil {
			log.Printf("[Agent] %s: memory write-back: %v", agentKey, err)
		}
	}

	if a.deps.Conversations != nil {
		now := time.Now().UTC()
		err := a.deps.Conversations.AppendConversation(ctx, req.SessionID, agentKey,
			Turn{Role: RoleUser, Text: req.Message, Timestamp: now},
			Turn{Role: RoleAgent, Text: response, Timestamp: now},
		)
		if err != nil {
			log.Printf("[Agent] %s: append conversation: %v", agentKey, err)
		}
	}
}

func (a *Agent) fallback(start time.Time) *Result {
	a.mu.Lock()
	p := a.personality
	a.mu.Unlock()
	return &Result{
		Response:  p.Fallback(),
		ToolsUsed: []string{},
		Elapsed:   time.Since(start),
	}
}

// enrichInput assembles the model input: the message, formatted memory
// excerpts with relevance percentages, and any situational league context.
func enrichInput(req ProcessRequest, memories []memstore.Item) string {
	var b strings.Builder
	b.WriteString(req.Message)

	if len(memories) > 0 {
		b.WriteString("\n\nRelevant things you remember:")
		for _, m := range memories {
			fmt.Fprintf(&b, "\n- (%.0f%% match) %s", m.Similarity*100, m.Content)
		}
	}

	if s := req.Situation; s != nil {
		b.WriteString("\n\nLeague situation:")
		if s.Period != "" {
			fmt.Fprintf(&b, "\n- Current period: %s", s.Period)
		}
		if s.Matchup != "" {
			fmt.Fprintf(&b, "\n- Current matchup: %s", s.Matchup)
		}
		for _, tx := range s.RecentTransactions {
			fmt.Fprintf(&b, "\n- Recent move: %s", tx)
		}
	}

	return b.String()
}

func historyMessages(history []Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, t := range history {
		role := "user"
		switch t.Role {
		case RoleAgent:
			role = "assistant"
		case RoleSystem:
			role = "system"
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	return msgs
}

// condense trims text for the memory summary, cutting on a rune boundary.
func condense(s string) string {
	const maxLen = 160
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
