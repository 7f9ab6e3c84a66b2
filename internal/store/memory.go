package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leaguemind-ai/leaguemind/internal/agent"
	"github.com/leaguemind-ai/leaguemind/internal/gateway"
	"github.com/leaguemind-ai/leaguemind/internal/orchestrator"
	"github.com/leaguemind-ai/leaguemind/internal/persona"
)

// Memory is the in-process store, behavior-equivalent to Redis for the
// consumers' purposes. Suitable for development and tests only; nothing
// survives a restart.
type Memory struct {
	mu            sync.Mutex
	conversations map[string][]agent.Turn
	configs       map[string]*persona.Override
	analyses      map[string]*orchestrator.Analysis
	sessions      map[string]*gateway.SessionRecord
	summons       map[string]*gateway.SummonRecord
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string][]agent.Turn),
		configs:       make(map[string]*persona.Override),
		analyses:      make(map[string]*orchestrator.Analysis),
		sessions:      make(map[string]*gateway.SessionRecord),
		summons:       make(map[string]*gateway.SummonRecord),
	}
}

func convKey(sessionID, agentKey string) string {
	return sessionID + ":" + agentKey
}

func (m *Memory) LoadConversation(_ context.Context, sessionID, agentKey string, limit int) ([]agent.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.conversations[convKey(sessionID, agentKey)]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]agent.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *Memory) AppendConversation(_ context.Context, sessionID, agentKey string, turns ...agent.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := convKey(sessionID, agentKey)
	all := append(m.conversations[key], turns...)
	if len(all) > conversationCap {
		all = all[len(all)-conversationCap:]
	}
	m.conversations[key] = all
	return nil
}

func (m *Memory) LoadAgentConfig(_ context.Context, agentKey string) (*persona.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configs[agentKey], nil
}

func (m *Memory) SaveAgentConfig(_ context.Context, agentKey string, o *persona.Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[agentKey] = o
	return nil
}

func (m *Memory) SaveAnalysis(_ context.Context, a *orchestrator.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[a.ID] = a
	return nil
}

func (m *Memory) LoadAnalysis(_ context.Context, id string) (*orchestrator.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.analyses[id]
	if !ok {
		return nil, fmt.Errorf("analysis %s not found", id)
	}
	return a, nil
}

func (m *Memory) SaveSessionRecord(_ context.Context, rec *gateway.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = rec
	return nil
}

func (m *Memory) EndSessionRecord(_ context.Context, sessionID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[sessionID]; ok {
		rec.EndedAt = endedAt
	}
	return nil
}

func (m *Memory) CreateSummonRecord(_ context.Context, rec *gateway.SummonRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summons[rec.ID] = rec
	return nil
}
