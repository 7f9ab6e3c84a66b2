package agent

import (
	"context"
	"fmt"
	"math"

	"github.com/leaguemind-ai/leaguemind/internal/llm"
	"github.com/leaguemind-ai/leaguemind/internal/persona"
)

// toolsFor returns the tool set registered at init for each kind. The hype
// personality works unarmed.
func toolsFor(kind persona.Kind) []llm.Tool {
	switch kind {
	case persona.KindCommissioner:
		return []llm.Tool{ruleCheckTool()}
	case persona.KindAnalyst:
		return []llm.Tool{compareProjectionsTool()}
	case persona.KindOddsmaker:
		return []llm.Tool{impliedProbabilityTool()}
	case persona.KindHistorian:
		return []llm.Tool{recordBookTool()}
	case persona.KindAdvisor:
		return []llm.Tool{riskGaugeTool()}
	default:
		return nil
	}
}

func ruleCheckTool() llm.Tool {
	rules := map[string]string{
		"trade_deadline": "Trades lock at the start of week 11. No exceptions, no sob stories.",
		"waivers":        "Waivers clear Wednesday 3am. FAAB ties break by reverse standings.",
		"collusion":      "Lopsided trades get a 48h league review window before processing.",
		"roster":         "Rosters carry 15 active and 3 IR slots. IR abuse is a bench penalty.",
	}
	return llm.Tool{
		Def: llm.ToolDef{
			Name:        "rule_check",
			Description: "Look up a league rule by topic (trade_deadline, waivers, collusion, roster)",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"topic": map[string]any{"type": "string"},
				},
				"required": []string{"topic"},
			},
		},
		Run: func(_ context.Context, args map[string]any) (string, error) {
			topic, _ := args["topic"].(string)
			if rule, ok := rules[topic]; ok {
				return rule, nil
			}
			return fmt.Sprintf("no written rule for %q; commissioner's discretion applies", topic), nil
		},
	}
}

func compareProjectionsTool() llm.Tool {
	return llm.Tool{
		Def: llm.ToolDef{
			Name:        "compare_projections",
			Description: "Compare two projected point totals and characterize the gap",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"a": map[string]any{"type": "number"},
					"b": map[string]any{"type": "number"},
				},
				"required": []string{"a", "b"},
			},
		},
		Run: func(_ context.Context, args map[string]any) (string, error) {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			diff := a - b
			verdict := "a coin flip"
			switch {
			case math.Abs(diff) >= 20:
				verdict = "a blowout on paper"
			case math.Abs(diff) >= 8:
				verdict = "a clear edge"
			}
			return fmt.Sprintf("projected gap %.1f points: %s", diff, verdict), nil
		},
	}
}

func impliedProbabilityTool() llm.Tool {
	return llm.Tool{
		Def: llm.ToolDef{
			Name:        "implied_probability",
			Description: "Convert an American moneyline to an implied win probability",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"moneyline": map[string]any{"type": "number"},
				},
				"required": []string{"moneyline"},
			},
		},
		Run: func(_ context.Context, args map[string]any) (string, error) {
			ml, _ := args["moneyline"].(float64)
			if ml == 0 {
				return "", fmt.Errorf("moneyline must be nonzero")
			}
			var prob float64
			if ml > 0 {
				prob = 100 / (ml + 100)
			} else {
				prob = -ml / (-ml + 100)
			}
			return fmt.Sprintf("%.1f%% implied", prob*100), nil
		},
	}
}

func recordBookTool() llm.Tool {
	return llm.Tool{
		Def: llm.ToolDef{
			Name:        "record_book",
			Description: "Look up a league record category (highest_score, longest_streak, biggest_upset)",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category": map[string]any{"type": "string"},
				},
				"required": []string{"category"},
			},
		},
		Run: func(_ context.Context, args map[string]any) (string, error) {
			records := map[string]string{
				"highest_score":  "187.4, set in a week-14 shootout",
				"longest_streak": "nine straight wins, ended by a backup kicker",
				"biggest_upset":  "a last-place team knocking out the one seed on Monday night",
			}
			category, _ := args["category"].(string)
			if rec, ok := records[category]; ok {
				return rec, nil
			}
			return "the archives are silent on that one", nil
		},
	}
}

func riskGaugeTool() llm.Tool {
	return llm.Tool{
		Def: llm.ToolDef{
			Name:        "risk_gauge",
			Description: "Gauge a player's volatility from floor and ceiling projections",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"floor":   map[string]any{"type": "number"},
					"ceiling": map[string]any{"type": "number"},
				},
				"required": []string{"floor", "ceiling"},
			},
		},
		Run: func(_ context.Context, args map[string]any) (string, error) {
			floor, _ := args["floor"].(float64)
			ceiling, _ := args["ceiling"].(float64)
			if ceiling <= floor {
				return "projections inverted; treat with suspicion", nil
			}
			spread := ceiling - floor
			switch {
			case spread >= 15:
				return fmt.Sprintf("boom-bust (%.0f point spread): start only if you need the ceiling", spread), nil
			case spread >= 7:
				return fmt.Sprintf("moderate volatility (%.0f point spread)", spread), nil
			default:
				return fmt.Sprintf("steady floor play (%.0f point spread)", spread), nil
			}
		},
	}
}
