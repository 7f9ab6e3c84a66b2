// Package command turns raw chat text into structured slash commands.
// Parsing is a single quote-aware, mention-aware lexer pass rather than
// layered regex substitutions, so quoted spans may safely contain '@' or
// '--' without being misread.
package command

import (
	"fmt"
	"sync"

	"github.com/leaguemind-ai/leaguemind/internal/persona"
)

// Spec declares a registered command and its validation rules.
type Spec struct {
	Name           string // with leading slash, e.g. "/roast"
	Description    string
	Kind           persona.Kind // agent kind the command routes to
	MinArgs        int
	MaxArgs        int // -1 = unbounded
	RequireMention bool
}

// ValidationError is surfaced verbatim to the caller; the request is not
// executed.
type ValidationError struct {
	Command    string
	Reason     string
	Suggestion string // closest registered command, when one is near enough
}

func (e *ValidationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (did you mean %s?)", e.Command, e.Reason, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Reason)
}

// Registry holds the known commands.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

func (r *Registry) Register(s Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[s.Name] = s
}

func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for n := range r.specs {
		names = append(names, n)
	}
	return names
}

// DefaultRegistry returns the league's built-in command set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Spec{Name: "/ask", Description: "ask the commissioner anything", Kind: persona.KindCommissioner, MinArgs: 1, MaxArgs: -1})
	r.Register(Spec{Name: "/analyze", Description: "matchup or player breakdown", Kind: persona.KindAnalyst, MinArgs: 1, MaxArgs: -1})
	r.Register(Spec{Name: "/odds", Description: "get a line on anything", Kind: persona.KindOddsmaker, MinArgs: 1, MaxArgs: -1})
	r.Register(Spec{Name: "/history", Description: "league lore lookup", Kind: persona.KindHistorian, MinArgs: 0, MaxArgs: -1})
	r.Register(Spec{Name: "/roast", Description: "roast a league member", Kind: persona.KindHype, MinArgs: 0, MaxArgs: 2, RequireMention: true})
	r.Register(Spec{Name: "/advice", Description: "lineup and roster advice", Kind: persona.KindAdvisor, MinArgs: 1, MaxArgs: -1})
	// /panel convenes several personalities at once; it has no single bound
	// kind and is routed specially by the gateway.
	r.Register(Spec{Name: "/panel", Description: "convene an expert panel on a decision", MinArgs: 1, MaxArgs: -1})
	return r
}

// maxSuggestDistance bounds how far a typo may be from a registered command
// before we stop suggesting.
const maxSuggestDistance = 2

// suggest returns the closest registered command within the edit-distance
// bound, or "".
func (r *Registry) suggest(name string) string {
	best, bestDist := "", maxSuggestDistance+1
	for _, candidate := range r.Names() {
		if d := levenshtein(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
