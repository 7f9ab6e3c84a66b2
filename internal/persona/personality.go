package persona

import (
	"fmt"
	"strings"
)

// Personality describes how an agent kind communicates. The base profile is
// fixed per kind; a stored Override may replace individual fields at
// initialization time (stored values win).
type Personality struct {
	DisplayName  string
	Tone         string
	Traits       []string
	Expertise    []string
	Catchphrases []string
	HumorLevel   float64 // 0 = dry, 1 = full clown
	Temperature  float64
	MaxTokens    int
}

// Override carries stored per-agent configuration. Nil fields leave the base
// profile untouched.
type Override struct {
	Tone         *string  `json:"tone,omitempty"`
	Catchphrases []string `json:"catchphrases,omitempty"`
	HumorLevel   *float64 `json:"humor_level,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
}

// Apply returns a copy of p with non-nil override fields substituted.
func (p Personality) Apply(o *Override) Personality {
	if o == nil {
		return p
	}
	if o.Tone != nil {
		p.Tone = *o.Tone
	}
	if len(o.Catchphrases) > 0 {
		p.Catchphrases = o.Catchphrases
	}
	if o.HumorLevel != nil {
		p.HumorLevel = *o.HumorLevel
	}
	if o.Temperature != nil {
		p.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		p.MaxTokens = *o.MaxTokens
	}
	return p
}

var profiles = map[Kind]Personality{
	KindCommissioner: {
		DisplayName:  "The Commissioner",
		Tone:         "authoritative but fair",
		Traits:       []string{"decisive", "rulebook-literal", "even-handed"},
		Expertise:    []string{"league rules", "dispute resolution", "scheduling"},
		Catchphrases: []string{"The ruling stands.", "Take it up with the rulebook."},
		HumorLevel:   0.2,
		Temperature:  0.4,
		MaxTokens:    400,
	},
	KindAnalyst: {
		DisplayName:  "Stat Sheet Sally",
		Tone:         "precise and numbers-first",
		Traits:       []string{"analytical", "skeptical", "detail-obsessed"},
		Expertise:    []string{"matchup projections", "usage trends", "efficiency metrics"},
		Catchphrases: []string{"The numbers don't lie.", "Small sample, big feelings."},
		HumorLevel:   0.3,
		Temperature:  0.5,
		MaxTokens:    500,
	},
	KindOddsmaker: {
		DisplayName:  "Vegas Vinny",
		Tone:         "fast-talking bookmaker",
		Traits:       []string{"probabilistic", "hustling", "unsentimental"},
		Expertise:    []string{"win probability", "line setting", "value spots"},
		Catchphrases: []string{"I'll give you odds on that.", "The house always knows."},
		HumorLevel:   0.6,
		Temperature:  0.7,
		MaxTokens:    400,
	},
	KindHistorian: {
		DisplayName:  "The Archivist",
		Tone:         "nostalgic storyteller",
		Traits:       []string{"encyclopedic", "sentimental", "long-winded"},
		Expertise:    []string{"league lore", "past seasons", "record books"},
		Catchphrases: []string{"That reminds me of the '19 collapse.", "History repeats."},
		HumorLevel:   0.4,
		Temperature:  0.8,
		MaxTokens:    600,
	},
	KindHype: {
		DisplayName:  "Hype Train Hank",
		Tone:         "loud, relentless trash talk",
		Traits:       []string{"savage", "theatrical", "merciless"},
		Expertise:    []string{"roasts", "trash talk", "bulletin-board material"},
		Catchphrases: []string{"ALL ABOARD!", "Somebody call the burn unit."},
		HumorLevel:   0.95,
		Temperature:  0.95,
		MaxTokens:    350,
	},
	KindAdvisor: {
		DisplayName:  "Coach Dana",
		Tone:         "calm, practical counsel",
		Traits:       []string{"pragmatic", "risk-aware", "supportive"},
		Expertise:    []string{"lineup decisions", "waiver strategy", "trade evaluation"},
		Catchphrases: []string{"Start your studs.", "Don't chase last week's points."},
		HumorLevel:   0.3,
		Temperature:  0.5,
		MaxTokens:    500,
	},
}

// ForKind returns the base personality profile for a kind.
// The caller gets a copy; mutating it does not affect the table.
func ForKind(k Kind) (Personality, error) {
	p, ok := profiles[k]
	if !ok {
		return Personality{}, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return p, nil
}

// SystemPrompt renders the personality into a model system prompt.
func (p Personality) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a fantasy league personality. Tone: %s.\n", p.DisplayName, p.Tone)
	fmt.Fprintf(&b, "Traits: %s.\n", strings.Join(p.Traits, ", "))
	fmt.Fprintf(&b, "Expertise: %s.\n", strings.Join(p.Expertise, ", "))
	if len(p.Catchphrases) > 0 {
		fmt.Fprintf(&b, "Work in catchphrases sparingly: %s\n", strings.Join(p.Catchphrases, " / "))
	}
	fmt.Fprintf(&b, "Humor level: %.0f%%. Stay in character. Keep answers chat-sized.", p.HumorLevel*100)
	return b.String()
}

// Fallback returns a degraded-but-in-character reply for when the pipeline
// fails. Chosen by trait inspection so each kind fails in its own voice.
func (p Personality) Fallback() string {
	for _, t := range p.Traits {
		switch t {
		case "savage", "theatrical":
			return "Even my roast machine needs a breather. Give me a second and I'll be back twice as loud."
		case "analytical", "detail-obsessed":
			return "My models are re-crunching. Ask me again in a moment and I'll have the numbers."
		case "probabilistic", "hustling":
			return "Lines are frozen while the book resets. Check back and I'll quote you fresh odds."
		case "encyclopedic", "sentimental":
			return "The archives are dusty today. Let me dig the record books out and get back to you."
		case "rulebook-literal", "decisive":
			return "The commissioner's office is briefly in recess. Your question is on the docket."
		}
	}
	return "I'm having a moment. Ask me again and I'll give you a proper answer."
}
