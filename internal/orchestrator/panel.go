package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/leaguemind-ai/leaguemind/internal/llm"
	"github.com/leaguemind-ai/leaguemind/internal/persona"
)

// roundtablePanel is the fixed cast for iterative discussions.
var roundtablePanel = []persona.Kind{
	persona.KindCommissioner,
	persona.KindAnalyst,
	persona.KindAdvisor,
}

// Panels for known decision categories, matched by keyword against the
// decision text. Unmatched decisions get the default panel.
var (
	tradePanel   = []persona.Kind{persona.KindAnalyst, persona.KindAdvisor, persona.KindOddsmaker}
	playoffPanel = []persona.Kind{persona.KindAnalyst, persona.KindHistorian, persona.KindHype}
	waiverPanel  = []persona.Kind{persona.KindAdvisor, persona.KindAnalyst}
	defaultPanel = []persona.Kind{persona.KindCommissioner, persona.KindAnalyst, persona.KindAdvisor}
)

// Roundtable runs a multi-round discussion on a topic with the fixed panel.
// Each round's question grows out of the previous round's synthesis. Returns
// one analysis per round.
func (o *Orchestrator) Roundtable(ctx context.Context, scope, topic string, rounds int) []*Analysis {
	if rounds < 1 {
		rounds = 1
	}

	analyses := make([]*Analysis, 0, rounds)
	question := fmt.Sprintf("Open discussion: %s. What is your take?", topic)

	for round := 1; round <= rounds; round++ {
		a := o.Collaborate(ctx, scope, question, roundtablePanel, topic)
		analyses = append(analyses, a)

		if round == rounds {
			break
		}
		question = o.followUp(ctx, topic, a.Synthesis)
	}

	return analyses
}

// followUp derives the next round's question from the previous synthesis.
// The model call is short and failure-tolerant.
func (o *Orchestrator) followUp(ctx context.Context, topic, synthesis string) string {
	res, err := o.invoker.Invoke(ctx, llm.Request{
		System:      "You moderate a fantasy league roundtable. Produce exactly one pointed follow-up question, nothing else.",
		Input:       fmt.Sprintf("Topic: %s\n\nLast round's summary: %s\n\nWhat should the panel dig into next?", topic, synthesis),
		Temperature: 0.8,
		MaxTokens:   100,
	})
	if err != nil {
		log.Printf("[Orchestrator] follow-up question: %v", err)
		return fmt.Sprintf("Given what was just said, what should the league watch next about %s?", topic)
	}
	return strings.TrimSpace(res.Text)
}

// ExpertPanel picks a panel by the decision's category and runs one
// collaborative round over it.
func (o *Orchestrator) ExpertPanel(ctx context.Context, scope, decision, background string) *Analysis {
	panel := panelFor(decision)

	question := decision
	if background != "" {
		question = fmt.Sprintf("%s\n\nBackground: %s", decision, background)
	}

	return o.Collaborate(ctx, scope, question, panel, "expert panel: "+categoryFor(decision))
}

func panelFor(decision string) []persona.Kind {
	switch categoryFor(decision) {
	case "trade":
		return tradePanel
	case "playoff":
		return playoffPanel
	case "waiver":
		return waiverPanel
	default:
		return defaultPanel
	}
}

func categoryFor(decision string) string {
	d := strings.ToLower(decision)
	switch {
	case strings.Contains(d, "trade"):
		return "trade"
	case strings.Contains(d, "playoff"), strings.Contains(d, "championship"):
		return "playoff"
	case strings.Contains(d, "waiver"), strings.Contains(d, "pickup"):
		return "waiver"
	default:
		return "general"
	}
}
