// Package orchestrator fans a question out to several pooled agents at once
// and folds their answers into a single collaborative analysis. Every
// requested kind gets a perspective slot in request order; failures and
// timeouts fill their slot with a placeholder instead of shrinking the list.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leaguemind-ai/leaguemind/internal/agent"
	"github.com/leaguemind-ai/leaguemind/internal/llm"
	"github.com/leaguemind-ai/leaguemind/internal/observability"
	"github.com/leaguemind-ai/leaguemind/internal/persona"
	"github.com/leaguemind-ai/leaguemind/internal/pool"
	metrics "github.com/leaguemind-ai/leaguemind/pkg/observability"
)

const defaultPerAgentTimeout = 30 * time.Second

// Confidence tiers derived from the valid/total perspective ratio.
const (
	ConfidenceHigh       = "High"
	ConfidenceMediumHigh = "Medium-High"
	ConfidenceMedium     = "Medium"
	ConfidenceLow        = "Low"
)

// Perspective is one agent's contribution. Failed marks placeholder slots
// (construction failure, timeout, or pipeline error surfaced as a fallback).
type Perspective struct {
	Kind        persona.Kind  `json:"kind"`
	DisplayName string        `json:"display_name"`
	Response    string        `json:"response"`
	ToolsUsed   []string      `json:"tools_used"`
	Elapsed     time.Duration `json:"elapsed"`
	Failed      bool          `json:"failed,omitempty"`
}

// Analysis is the full product of one collaborative round.
type Analysis struct {
	ID              string        `json:"id"`
	Topic           string        `json:"topic,omitempty"`
	Question        string        `json:"question"`
	Perspectives    []Perspective `json:"perspectives"`
	Synthesis       string        `json:"synthesis"`
	Consensus       string        `json:"consensus,omitempty"`
	Disagreements   []string      `json:"disagreements,omitempty"`
	Recommendations []string      `json:"recommendations"`
	Confidence      string        `json:"confidence"`
	Elapsed         time.Duration `json:"elapsed"`
	CreatedAt       time.Time     `json:"created_at"`
}

// AnalysisStore persists finished analyses for audit and replay. Writes are
// best-effort; a failure never reaches the caller.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, a *Analysis) error
}

// Orchestrator coordinates multi-agent collaboration over one pool.
type Orchestrator struct {
	pool    *pool.Pool
	invoker llm.Invoker
	store   AnalysisStore
	timeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout sets the per-agent processing deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithStore enables analysis persistence.
func WithStore(s AnalysisStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// New builds an orchestrator. invoker runs the synthesis and follow-up
// question calls, separate from the agents' own model traffic.
func New(p *pool.Pool, invoker llm.Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pool:    p,
		invoker: invoker,
		timeout: defaultPerAgentTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Collaborate asks every requested kind the same question concurrently and
// synthesizes the results. The returned analysis always carries exactly
// len(kinds) perspectives in request order.
func (o *Orchestrator) Collaborate(ctx context.Context, scope, question string, kinds []persona.Kind, topic string) *Analysis {
	start := time.Now()
	id := uuid.NewString()

	ctx, span := observability.StartSpan(ctx, "orchestrator.collaborate",
		trace.WithAttributes(
			attribute.String("analysis.id", id),
			attribute.Int("panel.size", len(kinds)),
		),
	)
	defer span.End()

	perspectives := o.gather(ctx, scope, question, id, kinds)

	valid := 0
	for _, p := range perspectives {
		if !p.Failed {
			valid++
		}
	}

	analysis := &Analysis{
		ID:              id,
		Topic:           topic,
		Question:        question,
		Perspectives:    perspectives,
		Synthesis:       o.synthesize(ctx, question, perspectives),
		Consensus:       consensus(perspectives, valid),
		Disagreements:   disagreements(perspectives, valid),
		Recommendations: recommendations(perspectives),
		Confidence:      confidenceTier(valid, len(perspectives)),
		Elapsed:         time.Since(start),
		CreatedAt:       start.UTC(),
	}

	metrics.RecordCollaboration(analysis.Confidence)

	if o.store != nil {
		if err := o.store.SaveAnalysis(ctx, analysis); err != nil {
			log.Printf("[Orchestrator] save analysis %s: %v", id, err)
		}
	}

	return analysis
}

// gather fans the question out, one goroutine per requested kind. Each
// branch obtains its own instance, so one slow construction never delays
// the others, then races a per-branch timeout. A branch that outlives its
// timeout is abandoned, not cancelled, so siblings never wait on it.
func (o *Orchestrator) gather(ctx context.Context, scope, question, analysisID string, kinds []persona.Kind) []Perspective {
	perspectives := make([]Perspective, len(kinds))

	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func(slot int, kind persona.Kind) {
			defer wg.Done()

			a, err := o.pool.Obtain(ctx, kind, scope, false)
			if err != nil {
				log.Printf("[Orchestrator] obtain %s: %v", persona.Key(kind, scope), err)
				perspectives[slot] = placeholder(kind, "could not join the discussion")
				return
			}

			done := make(chan *agent.Result, 1)
			go func() {
				done <- a.Process(ctx, agent.ProcessRequest{
					Message:   question,
					SessionID: "collab-" + analysisID,
				})
			}()

			select {
			case res := <-done:
				perspectives[slot] = Perspective{
					Kind:        a.Kind(),
					DisplayName: a.DisplayName(),
					Response:    res.Response,
					ToolsUsed:   res.ToolsUsed,
					Elapsed:     res.Elapsed,
				}
			case <-time.After(o.timeout):
				log.Printf("[Orchestrator] %s timed out after %s", a.Key(), o.timeout)
				perspectives[slot] = placeholder(a.Kind(), "ran out the clock before answering")
				perspectives[slot].DisplayName = a.DisplayName()
				perspectives[slot].Elapsed = o.timeout
			}
		}(i, kind)
	}
	wg.Wait()

	return perspectives
}

func placeholder(kind persona.Kind, reason string) Perspective {
	name := string(kind)
	if p, err := persona.ForKind(kind); err == nil {
		name = p.DisplayName
	}
	return Perspective{
		Kind:        kind,
		DisplayName: name,
		Response:    fmt.Sprintf("%s %s.", name, reason),
		ToolsUsed:   []string{},
		Failed:      true,
	}
}

// synthesize makes the secondary model call over the full perspective set,
// placeholders included. A synthesis failure degrades to a stitched summary
// rather than failing the analysis.
func (o *Orchestrator) synthesize(ctx context.Context, question string, perspectives []Perspective) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The league was asked: %s\n\nThe personalities responded:\n", question)
	for _, p := range perspectives {
		fmt.Fprintf(&b, "\n%s (%s): %s\n", p.DisplayName, p.Kind, p.Response)
	}
	b.WriteString("\nWrite a short unified take covering where they agree and where they clash.")

	res, err := o.invoker.Invoke(ctx, llm.Request{
		System:      "You summarize a panel of fantasy league personalities into one tight narrative. Two to four sentences, no bullet points.",
		Input:       b.String(),
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if err != nil {
		log.Printf("[Orchestrator] synthesis: %v", err)
		return stitchedSummary(perspectives)
	}
	return res.Text
}

// stitchedSummary is the no-model fallback: lead with the first valid take.
func stitchedSummary(perspectives []Perspective) string {
	for _, p := range perspectives {
		if !p.Failed {
			return fmt.Sprintf("The panel could not be fully summarized. %s led with: %s", p.DisplayName, p.Response)
		}
	}
	return "The panel had nothing usable to say this round."
}

// consensus is present only when more than one perspective landed.
func consensus(perspectives []Perspective, valid int) string {
	if valid <= 1 {
		return ""
	}
	names := make([]string, 0, valid)
	for _, p := range perspectives {
		if !p.Failed {
			names = append(names, p.DisplayName)
		}
	}
	return fmt.Sprintf("%s all weighed in with a read on the question.", joinNames(names))
}

// disagreements are present only when more than two perspectives landed;
// the wording is a coarse contrast between the first and last responders.
func disagreements(perspectives []Perspective, valid int) []string {
	if valid <= 2 {
		return nil
	}
	var first, last *Perspective
	for i := range perspectives {
		if perspectives[i].Failed {
			continue
		}
		if first == nil {
			first = &perspectives[i]
		}
		last = &perspectives[i]
	}
	return []string{
		fmt.Sprintf("%s and %s read the situation from different angles.", first.DisplayName, last.DisplayName),
	}
}

// recommendations carry a generic set plus one line per advisory kind that
// actually produced an answer.
func recommendations(perspectives []Perspective) []string {
	recs := []string{
		"Weigh the panel's takes against your own roster before acting.",
		"Revisit the question after the next slate of games.",
	}
	for _, p := range perspectives {
		if p.Failed || !p.Kind.Advisory() {
			continue
		}
		recs = append(recs, fmt.Sprintf("Follow up with %s for the numbers behind their take.", p.DisplayName))
	}
	return recs
}

func confidenceTier(valid, total int) string {
	if total == 0 {
		return ConfidenceLow
	}
	ratio := float64(valid) / float64(total)
	switch {
	case ratio == 1:
		return ConfidenceHigh
	case ratio >= 0.75:
		return ConfidenceMediumHigh
	case ratio >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return "Nobody"
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}
