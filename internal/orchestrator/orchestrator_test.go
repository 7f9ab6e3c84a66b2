package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leaguemind-ai/leaguemind/internal/agent"
	"github.com/leaguemind-ai/leaguemind/internal/llm"
	"github.com/leaguemind-ai/leaguemind/internal/persona"
	"github.com/leaguemind-ai/leaguemind/internal/pool"
)

// factoryWith builds a pool whose agents use per-kind invokers. Kinds absent
// from the map fail construction.
func factoryWith(invokers map[persona.Kind]llm.Invoker) pool.Factory {
	return func(kind persona.Kind, scope string) (*agent.Agent, error) {
		inv, ok := invokers[kind]
		if !ok {
			return nil, errors.New("backend unavailable for kind")
		}
		return agent.New(kind, scope, agent.Deps{Invoker: inv})
	}
}

type fakeAnalysisStore struct {
	mu    sync.Mutex
	saved []*Analysis
	fail  bool
}

func (f *fakeAnalysisStore) SaveAnalysis(_ context.Context, a *Analysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("analysis store down")
	}
	f.saved = append(f.saved, a)
	return nil
}

func TestPerspectiveCountInvariant(t *testing.T) {
	// Analyst answers, hype times out, historian's construction fails.
	// All three slots must still come back, in request order.
	p := pool.New(factoryWith(map[persona.Kind]llm.Invoker{
		persona.KindAnalyst: llm.NewMock("the numbers say yes"),
		persona.KindHype:    llm.NewMock("WOOO").Delay(400 * time.Millisecond),
	}))
	o := New(p, llm.NewMock("unified take"), WithTimeout(50*time.Millisecond))

	kinds := []persona.Kind{persona.KindAnalyst, persona.KindHype, persona.KindHistorian}
	a := o.Collaborate(context.Background(), "league-1", "Start the rookie?", kinds, "lineup")

	if len(a.Perspectives) != len(kinds) {
		t.Fatalf("perspectives = %d, want %d", len(a.Perspectives), len(kinds))
	}
	for i, kind := range kinds {
		if a.Perspectives[i].Kind != kind {
			t.Errorf("slot %d kind = %s, want %s", i, a.Perspectives[i].Kind, kind)
		}
	}

	if a.Perspectives[0].Failed {
		t.Error("analyst slot marked failed")
	}
	if !a.Perspectives[1].Failed {
		t.Error("timed-out hype slot not marked failed")
	}
	if a.Perspectives[1].Response == "" {
		t.Error("timeout placeholder has no explanatory response")
	}
	if !a.Perspectives[2].Failed {
		t.Error("unconstructible historian slot not marked failed")
	}

	// 1 of 3 valid.
	if a.Confidence != ConfidenceLow {
		t.Errorf("Confidence = %q, want %q", a.Confidence, ConfidenceLow)
	}
}

type invokerFunc func(ctx context.Context, req llm.Request) (*llm.Result, error)

func (f invokerFunc) Invoke(ctx context.Context, req llm.Request) (*llm.Result, error) {
	return f(ctx, req)
}

func TestSlotAcquisitionRunsConcurrently(t *testing.T) {
	// The analyst's construction blocks until the advisor has answered.
	// Each slot obtains its own instance, so the advisor proceeds and
	// unblocks the analyst; acquiring instances one at a time before
	// dispatch would wedge here.
	advisorAnswered := make(chan struct{})
	var once sync.Once

	factory := func(kind persona.Kind, scope string) (*agent.Agent, error) {
		switch kind {
		case persona.KindAnalyst:
			select {
			case <-advisorAnswered:
			case <-time.After(2 * time.Second):
				return nil, errors.New("advisor never ran")
			}
			return agent.New(kind, scope, agent.Deps{Invoker: llm.NewMock("the numbers agree")})
		case persona.KindAdvisor:
			inv := invokerFunc(func(context.Context, llm.Request) (*llm.Result, error) {
				once.Do(func() { close(advisorAnswered) })
				return &llm.Result{Text: "start him"}, nil
			})
			return agent.New(kind, scope, agent.Deps{Invoker: inv})
		}
		return nil, errors.New("unexpected kind")
	}

	o := New(pool.New(factory), llm.NewMock("unified"), WithTimeout(time.Second))
	a := o.Collaborate(context.Background(), "",
		"q", []persona.Kind{persona.KindAnalyst, persona.KindAdvisor}, "")

	for i, p := range a.Perspectives {
		if p.Failed {
			t.Errorf("slot %d (%s) failed: %q", i, p.Kind, p.Response)
		}
	}
	if a.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %q, want %q", a.Confidence, ConfidenceHigh)
	}
}

func TestConfidenceTiers(t *testing.T) {
	cases := []struct {
		valid, total int
		want         string
	}{
		{3, 3, ConfidenceHigh},
		{3, 4, ConfidenceMediumHigh},
		{2, 3, ConfidenceMedium},
		{2, 4, ConfidenceMedium},
		{1, 3, ConfidenceLow},
		{0, 3, ConfidenceLow},
		{0, 0, ConfidenceLow},
	}
	for _, tc := range cases {
		if got := confidenceTier(tc.valid, tc.total); got != tc.want {
			t.Errorf("confidenceTier(%d, %d) = %q, want %q", tc.valid, tc.total, got, tc.want)
		}
	}
}

func TestConfidenceMonotonicity(t *testing.T) {
	invokers := map[persona.Kind]llm.Invoker{
		persona.KindAnalyst:   llm.NewMock(),
		persona.KindAdvisor:   llm.NewMock(),
		persona.KindOddsmaker: llm.NewMock(),
	}
	kinds := []persona.Kind{persona.KindAnalyst, persona.KindAdvisor, persona.KindOddsmaker}

	cases := []struct {
		name string
		drop []persona.Kind // kinds whose construction fails
		want string
	}{
		{"all valid", nil, ConfidenceHigh},
		{"two of three", []persona.Kind{persona.KindOddsmaker}, ConfidenceMedium},
		{"one of three", []persona.Kind{persona.KindAdvisor, persona.KindOddsmaker}, ConfidenceLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			avail := make(map[persona.Kind]llm.Invoker)
			for k, v := range invokers {
				avail[k] = v
			}
			for _, k := range tc.drop {
				delete(avail, k)
			}
			o := New(pool.New(factoryWith(avail)), llm.NewMock())
			a := o.Collaborate(context.Background(), "", "q", kinds, "")
			if a.Confidence != tc.want {
				t.Errorf("Confidence = %q, want %q", a.Confidence, tc.want)
			}
		})
	}
}

func TestConsensusAndDisagreementCardinality(t *testing.T) {
	kinds := []persona.Kind{persona.KindAnalyst, persona.KindAdvisor, persona.KindOddsmaker}
	all := map[persona.Kind]llm.Invoker{
		persona.KindAnalyst:   llm.NewMock(),
		persona.KindAdvisor:   llm.NewMock(),
		persona.KindOddsmaker: llm.NewMock(),
	}

	run := func(avail map[persona.Kind]llm.Invoker) *Analysis {
		o := New(pool.New(factoryWith(avail)), llm.NewMock())
		return o.Collaborate(context.Background(), "", "q", kinds, "")
	}

	// One valid: neither consensus nor disagreements.
	a := run(map[persona.Kind]llm.Invoker{persona.KindAnalyst: llm.NewMock()})
	if a.Consensus != "" {
		t.Errorf("1 valid: Consensus = %q, want empty", a.Consensus)
	}
	if len(a.Disagreements) != 0 {
		t.Errorf("1 valid: Disagreements = %v, want none", a.Disagreements)
	}

	// Two valid: consensus only.
	a = run(map[persona.Kind]llm.Invoker{
		persona.KindAnalyst: llm.NewMock(),
		persona.KindAdvisor: llm.NewMock(),
	})
	if a.Consensus == "" {
		t.Error("2 valid: expected a consensus statement")
	}
	if len(a.Disagreements) != 0 {
		t.Errorf("2 valid: Disagreements = %v, want none", a.Disagreements)
	}

	// Three valid: both present.
	a = run(all)
	if a.Consensus == "" || len(a.Disagreements) == 0 {
		t.Errorf("3 valid: Consensus = %q, Disagreements = %v", a.Consensus, a.Disagreements)
	}
}

func TestSynthesisFallsBackWhenModelFails(t *testing.T) {
	p := pool.New(factoryWith(map[persona.Kind]llm.Invoker{
		persona.KindAnalyst: llm.NewMock("sharp take"),
	}))
	o := New(p, llm.NewMock().FailWith(errors.New("api down")))

	a := o.Collaborate(context.Background(), "", "q", []persona.Kind{persona.KindAnalyst}, "")
	if a.Synthesis == "" {
		t.Fatal("synthesis empty after model failure")
	}
	if !strings.Contains(a.Synthesis, "sharp take") {
		t.Errorf("stitched synthesis should lead with the first valid take: %q", a.Synthesis)
	}
}

func TestAnalysisPersistedBestEffort(t *testing.T) {
	p := pool.New(factoryWith(map[persona.Kind]llm.Invoker{
		persona.KindAnalyst: llm.NewMock(),
	}))

	store := &fakeAnalysisStore{}
	o := New(p, llm.NewMock(), WithStore(store))
	a := o.Collaborate(context.Background(), "", "q", []persona.Kind{persona.KindAnalyst}, "t")
	if len(store.saved) != 1 || store.saved[0].ID != a.ID {
		t.Errorf("saved = %v", store.saved)
	}
	if a.ID == "" {
		t.Error("analysis has no id")
	}

	// Store failure never reaches the caller.
	store.fail = true
	a = o.Collaborate(context.Background(), "", "q2", []persona.Kind{persona.KindAnalyst}, "t")
	if a == nil || a.Synthesis == "" {
		t.Error("store failure degraded the analysis")
	}
}

func TestRecommendationsPerAdvisoryKind(t *testing.T) {
	p := pool.New(factoryWith(map[persona.Kind]llm.Invoker{
		persona.KindAnalyst:   llm.NewMock(),
		persona.KindHistorian: llm.NewMock(),
	}))
	o := New(p, llm.NewMock())

	a := o.Collaborate(context.Background(), "", "q",
		[]persona.Kind{persona.KindAnalyst, persona.KindHistorian}, "")

	// Two generic lines plus one for the analyst; the historian is not
	// advisory and earns none.
	if len(a.Recommendations) != 3 {
		t.Fatalf("Recommendations = %v, want 3 entries", a.Recommendations)
	}
	if !strings.Contains(a.Recommendations[2], "Stat Sheet") {
		t.Errorf("advisory line = %q, want the analyst's name", a.Recommendations[2])
	}
}

func TestExpertPanelSelection(t *testing.T) {
	cases := []struct {
		decision string
		want     []persona.Kind
	}{
		{"Should I accept this trade offer?", tradePanel},
		{"How do I win the championship?", playoffPanel},
		{"Are we playoff bound?", playoffPanel},
		{"Best waiver target this week?", waiverPanel},
		{"Worth a pickup?", waiverPanel},
		{"Is my team any good?", defaultPanel},
	}
	for _, tc := range cases {
		got := panelFor(tc.decision)
		if len(got) != len(tc.want) {
			t.Errorf("panelFor(%q) = %v, want %v", tc.decision, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("panelFor(%q)[%d] = %s, want %s", tc.decision, i, got[i], tc.want[i])
			}
		}
	}
}

func TestExpertPanelRunsSelectedPanel(t *testing.T) {
	p := pool.New(factoryWith(map[persona.Kind]llm.Invoker{
		persona.KindAnalyst:   llm.NewMock(),
		persona.KindAdvisor:   llm.NewMock(),
		persona.KindOddsmaker: llm.NewMock(),
	}))
	o := New(p, llm.NewMock())

	a := o.ExpertPanel(context.Background(), "league-1", "Should I trade my WR1?", "He is on a bye next week")
	if len(a.Perspectives) != len(tradePanel) {
		t.Fatalf("perspectives = %d, want %d", len(a.Perspectives), len(tradePanel))
	}
	for i, kind := range tradePanel {
		if a.Perspectives[i].Kind != kind {
			t.Errorf("slot %d = %s, want %s", i, a.Perspectives[i].Kind, kind)
		}
	}
	if !strings.Contains(a.Question, "bye next week") {
		t.Errorf("background context not folded into the question: %q", a.Question)
	}
}

func TestRoundtableRounds(t *testing.T) {
	p := pool.New(factoryWith(map[persona.Kind]llm.Invoker{
		persona.KindCommissioner: llm.NewMock(),
		persona.KindAnalyst:      llm.NewMock(),
		persona.KindAdvisor:      llm.NewMock(),
	}))
	moderator := llm.NewMock("round one summary", "what about the schedule?", "round two summary")
	o := New(p, moderator)

	analyses := o.Roundtable(context.Background(), "", "keeper rules", 2)
	if len(analyses) != 2 {
		t.Fatalf("rounds = %d, want 2", len(analyses))
	}
	if analyses[0].Synthesis != "round one summary" {
		t.Errorf("round 1 synthesis = %q", analyses[0].Synthesis)
	}
	if !strings.Contains(analyses[1].Question, "schedule") {
		t.Errorf("round 2 question not derived from follow-up: %q", analyses[1].Question)
	}
	// Two syntheses plus one follow-up question.
	if got := len(moderator.Calls()); got != 3 {
		t.Errorf("moderator calls = %d, want 3", got)
	}
}
