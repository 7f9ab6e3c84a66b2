package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/leaguemind-ai/leaguemind/internal/llm"
	"github.com/leaguemind-ai/leaguemind/internal/memstore"
	"github.com/leaguemind-ai/leaguemind/internal/persona"
)

// fakeConversations is an in-memory ConversationStore with failure switches.
type fakeConversations struct {
	mu          sync.Mutex
	turns       map[string][]Turn
	overrides   map[string]*persona.Override
	failLoad    bool
	failAppend  bool
	failConfig  bool
	appendCalls int
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{
		turns:     make(map[string][]Turn),
		overrides: make(map[string]*persona.Override),
	}
}

func (f *fakeConversations) LoadConversation(_ context.Context, sessionID, agentKey string, limit int) ([]Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoad {
		return nil, errors.New("history store down")
	}
	turns := f.turns[sessionID+"|"+agentKey]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (f *fakeConversations) AppendConversation(_ context.Context, sessionID, agentKey string, turns ...Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	if f.failAppend {
		return errors.New("append failed")
	}
	key := sessionID + "|" + agentKey
	f.turns[key] = append(f.turns[key], turns...)
	return nil
}

func (f *fakeConversations) LoadAgentConfig(_ context.Context, agentKey string) (*persona.Override, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConfig {
		return nil, errors.New("config store down")
	}
	return f.overrides[agentKey], nil
}

func (f *fakeConversations) SaveAgentConfig(_ context.Context, agentKey string, o *persona.Override) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[agentKey] = o
	return nil
}

// fakeMemory records stores and serves canned retrievals.
type fakeMemory struct {
	mu      sync.Mutex
	items   []memstore.Item
	stored  []string
	failGet bool
	failPut bool
}

func (f *fakeMemory) RetrieveRelevant(_ context.Context, _, _ string, _ int, _ float64) ([]memstore.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, errors.New("memory down")
	}
	return f.items, nil
}

func (f *fakeMemory) Store(_ context.Context, _, content string, _ map[string]any, _ float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return "", errors.New("memory down")
	}
	f.stored = append(f.stored, content)
	return "mem-1", nil
}

func TestProcessHappyPath(t *testing.T) {
	mock := llm.NewMock("Bench him. The matchup is a trap.")
	conv := newFakeConversations()
	mem := &fakeMemory{items: []memstore.Item{
		{Content: "owner benched his stud last week and lost", Similarity: 0.82},
	}}

	a, err := New(persona.KindAdvisor, "league-1", Deps{Invoker: mock, Memory: mem, Conversations: conv})
	if err != nil {
		t.Fatal(err)
	}

	res := a.Process(context.Background(), ProcessRequest{
		Message:   "Should I start my backup RB?",
		SessionID: "sess-1",
		Actor:     "mike",
		Situation: &Situation{Period: "week 9", Matchup: "mike vs joe"},
	})

	if res.Response != "Bench him. The matchup is a trap." {
		t.Errorf("Response = %q", res.Response)
	}
	if res.Elapsed < 0 {
		t.Errorf("Elapsed = %v", res.Elapsed)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("invoker calls = %d, want 1", len(calls))
	}
	input := calls[0].Input
	if !strings.Contains(input, "Should I start my backup RB?") {
		t.Errorf("input missing original message: %q", input)
	}
	if !strings.Contains(input, "82% match") {
		t.Errorf("input missing memory relevance: %q", input)
	}
	if !strings.Contains(input, "week 9") || !strings.Contains(input, "mike vs joe") {
		t.Errorf("input missing situational context: %q", input)
	}
	if calls[0].System == "" {
		t.Error("system prompt empty")
	}

	// Write-back: condensed memory plus the turn pair.
	if len(mem.stored) != 1 {
		t.Fatalf("memory writes = %d, want 1", len(mem.stored))
	}
	if !strings.Contains(mem.stored[0], "mike asked") {
		t.Errorf("memory summary = %q", mem.stored[0])
	}
	turns := conv.turns["sess-1|advisor:league-1"]
	if len(turns) != 2 || turns[0].Role != RoleUser || turns[1].Role != RoleAgent {
		t.Errorf("appended turns = %+v", turns)
	}
}

func TestProcessPassesHistory(t *testing.T) {
	mock := llm.NewMock("noted")
	conv := newFakeConversations()
	conv.turns["sess-1|analyst:global"] = []Turn{
		{Role: RoleUser, Text: "earlier question", Timestamp: time.Now()},
		{Role: RoleAgent, Text: "earlier answer", Timestamp: time.Now()},
	}

	a, err := New(persona.KindAnalyst, "", Deps{Invoker: mock, Conversations: conv})
	if err != nil {
		t.Fatal(err)
	}
	a.Process(context.Background(), ProcessRequest{Message: "follow-up", SessionID: "sess-1"})

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatal("expected one invocation")
	}
	if len(calls[0].History) != 2 {
		t.Fatalf("history length = %d, want 2", len(calls[0].History))
	}
	if calls[0].History[1].Role != "assistant" {
		t.Errorf("agent turn mapped to role %q, want assistant", calls[0].History[1].Role)
	}
}

func TestFallbackOnInvokerError(t *testing.T) {
	mock := llm.NewMock().FailWith(errors.New("api down"))
	a, err := New(persona.KindHype, "league-1", Deps{Invoker: mock, Conversations: newFakeConversations()})
	if err != nil {
		t.Fatal(err)
	}

	res := a.Process(context.Background(), ProcessRequest{Message: "roast joe", SessionID: "s"})

	if res.Response == "" {
		t.Fatal("fallback response is empty")
	}
	if len(res.ToolsUsed) != 0 {
		t.Errorf("ToolsUsed = %v, want empty", res.ToolsUsed)
	}
	// The fallback speaks in the hype personality's voice.
	if !strings.Contains(res.Response, "roast machine") {
		t.Errorf("fallback not personality-flavored: %q", res.Response)
	}
}

func TestFallbackOnHistoryLoadError(t *testing.T) {
	conv := newFakeConversations()
	conv.failLoad = true
	a, err := New(persona.KindAnalyst, "", Deps{Invoker: llm.NewMock("never sent"), Conversations: conv})
	if err != nil {
		t.Fatal(err)
	}

	res := a.Process(context.Background(), ProcessRequest{Message: "q", SessionID: "s"})
	if res.Response == "" {
		t.Fatal("expected fallback, got empty response")
	}
	if res.Response == "never sent" {
		t.Error("model should not be invoked when the awaited history load fails")
	}
}

func TestMemoryFailuresAreAdvisory(t *testing.T) {
	mock := llm.NewMock("real answer")
	mem := &fakeMemory{failGet: true, failPut: true}
	a, err := New(persona.KindHistorian, "", Deps{Invoker: mock, Memory: mem, Conversations: newFakeConversations()})
	if err != nil {
		t.Fatal(err)
	}

	res := a.Process(context.Background(), ProcessRequest{Message: "q", SessionID: "s"})
	if res.Response != "real answer" {
		t.Errorf("memory failure degraded the answer: %q", res.Response)
	}
}

func TestAppendFailureDoesNotDegradeAnswer(t *testing.T) {
	conv := newFakeConversations()
	conv.failAppend = true
	a, err := New(persona.KindAdvisor, "", Deps{Invoker: llm.NewMock("the answer"), Conversations: conv})
	if err != nil {
		t.Fatal(err)
	}

	res := a.Process(context.Background(), ProcessRequest{Message: "q", SessionID: "s"})
	if res.Response != "the answer" {
		t.Errorf("append failure degraded the answer: %q", res.Response)
	}
	if conv.appendCalls != 1 {
		t.Errorf("appendCalls = %d, want 1", conv.appendCalls)
	}
}

func TestInitAppliesStoredOverride(t *testing.T) {
	conv := newFakeConversations()
	tone := "whisper-quiet"
	conv.overrides["hype:league-1"] = &persona.Override{Tone: &tone}

	a, err := New(persona.KindHype, "league-1", Deps{Invoker: llm.NewMock(), Conversations: conv})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := a.Personality().Tone; got != tone {
		t.Errorf("Tone = %q, want stored override %q", got, tone)
	}
	// Base fields not covered by the override survive.
	if a.DisplayName() != "Hype Train Hank" {
		t.Errorf("DisplayName = %q", a.DisplayName())
	}
}

func TestInitConfigLoadFailureKeepsBaseProfile(t *testing.T) {
	conv := newFakeConversations()
	conv.failConfig = true

	a, err := New(persona.KindAnalyst, "", Deps{Invoker: llm.NewMock(), Conversations: conv})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init should tolerate config load failure, got %v", err)
	}
	if !a.Initialized() {
		t.Error("agent not initialized")
	}
}

func TestProcessLazilyInitializes(t *testing.T) {
	a, err := New(persona.KindOddsmaker, "", Deps{Invoker: llm.NewMock("even money")})
	if err != nil {
		t.Fatal(err)
	}
	if a.Initialized() {
		t.Fatal("agent initialized before first use")
	}
	a.Process(context.Background(), ProcessRequest{Message: "odds?", SessionID: "s"})
	if !a.Initialized() {
		t.Error("Process did not lazily initialize")
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(persona.Kind("mascot"), "", Deps{}); !errors.Is(err, persona.ErrUnknownKind) {
		t.Errorf("New(mascot) error = %v, want ErrUnknownKind", err)
	}
}

func TestProcessStreamFallsBackToSingleChunk(t *testing.T) {
	// The mock does not implement Streamer; the full text arrives as one chunk.
	a, err := New(persona.KindAnalyst, "", Deps{Invoker: llm.NewMock("chunked answer")})
	if err != nil {
		t.Fatal(err)
	}

	var chunks []string
	res := a.ProcessStream(context.Background(), ProcessRequest{Message: "q", SessionID: "s"}, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if res.Response != "chunked answer" {
		t.Errorf("Response = %q", res.Response)
	}
	if len(chunks) != 1 || chunks[0] != "chunked answer" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestCondenseCutsOnRuneBoundary(t *testing.T) {
	short := "keep me whole"
	if got := condense(short); got != short {
		t.Errorf("condense(short) = %q", got)
	}

	// 159 ASCII bytes followed by a multi-byte rune straddling the cut point.
	long := strings.Repeat("a", 159) + "é" + strings.Repeat("b", 40)
	got := condense(long)
	if !utf8.ValidString(got) {
		t.Errorf("condense produced invalid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("condense(long) = %q, want ellipsis suffix", got)
	}
}
