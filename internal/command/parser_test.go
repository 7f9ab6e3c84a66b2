package command

import (
	"reflect"
	"testing"
)

func TestParseRoast(t *testing.T) {
	r := DefaultRegistry()

	p := r.Parse(`/roast @joe "Team Rocket" --savage`)
	if !p.Valid {
		t.Fatalf("parse invalid: %v", p.Err)
	}
	if p.Command != "/roast" {
		t.Errorf("Command = %q", p.Command)
	}
	if p.Kind != "hype" {
		t.Errorf("Kind = %q, want hype", p.Kind)
	}
	if !reflect.DeepEqual(p.Mentions, []string{"joe"}) {
		t.Errorf("Mentions = %v", p.Mentions)
	}
	if !reflect.DeepEqual(p.Args, []string{"Team Rocket"}) {
		t.Errorf("Args = %v", p.Args)
	}
	if p.Options["savage"] != "true" {
		t.Errorf("Options = %v", p.Options)
	}
	if p.RawTail != `@joe "Team Rocket" --savage` {
		t.Errorf("RawTail = %q", p.RawTail)
	}

	// Determinism: parsing the same input twice is structurally identical.
	q := r.Parse(`/roast @joe "Team Rocket" --savage`)
	if !reflect.DeepEqual(p, q) {
		t.Errorf("parse not deterministic:\n%+v\n%+v", p, q)
	}
}

func TestQuotedSpansAreOpaque(t *testing.T) {
	r := DefaultRegistry()

	// '@' and '--' inside quotes must not be read as mention or option.
	p := r.Parse(`/analyze "trade @mike --now" --deep`)
	if !p.Valid {
		t.Fatalf("parse invalid: %v", p.Err)
	}
	if len(p.Mentions) != 0 {
		t.Errorf("Mentions = %v, want none", p.Mentions)
	}
	if !reflect.DeepEqual(p.Args, []string{"trade @mike --now"}) {
		t.Errorf("Args = %v", p.Args)
	}
	if p.Options["deep"] != "true" {
		t.Errorf("Options = %v", p.Options)
	}
}

func TestOptionValues(t *testing.T) {
	r := DefaultRegistry()

	p := r.Parse(`/odds "title race" --format=spread --week=14`)
	if !p.Valid {
		t.Fatalf("parse invalid: %v", p.Err)
	}
	if p.Options["format"] != "spread" || p.Options["week"] != "14" {
		t.Errorf("Options = %v", p.Options)
	}
}

func TestValidationFailures(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name       string
		input      string
		suggestion string
	}{
		{name: "not a command", input: "hello there"},
		{name: "unknown with suggestion", input: "/raost @joe", suggestion: "/roast"},
		{name: "missing mention", input: "/roast somebody"},
		{name: "too few args", input: "/advice"},
		{name: "too many args", input: `/roast @joe "a" "b" "c"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := r.Parse(tt.input)
			if p.Valid {
				t.Fatalf("Parse(%q) unexpectedly valid", tt.input)
			}
			if p.Err == nil {
				t.Fatal("Err is nil on invalid parse")
			}
			if p.Err.Error() == "" {
				t.Error("empty error message")
			}
			if tt.suggestion != "" && p.Err.Suggestion != tt.suggestion {
				t.Errorf("Suggestion = %q, want %q", p.Err.Suggestion, tt.suggestion)
			}
		})
	}
}

func TestSuggestionBound(t *testing.T) {
	r := DefaultRegistry()

	// Nothing registered is within edit distance 2 of this.
	p := r.Parse("/zzzzzzzzz")
	if p.Valid {
		t.Fatal("unexpectedly valid")
	}
	if p.Err.Suggestion != "" {
		t.Errorf("Suggestion = %q, want none", p.Err.Suggestion)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"roast", "roast", 0},
		{"raost", "roast", 2},
		{"odds", "ods", 1},
		{"", "abc", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
