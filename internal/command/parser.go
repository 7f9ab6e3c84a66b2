package command

import (
	"fmt"
	"strings"
	"unicode"
)

// Parsed is the structured result of parsing one line of chat input.
type Parsed struct {
	Command  string
	Kind     string // bound agent kind, empty when invalid
	Args     []string
	RawTail  string
	Mentions []string
	Options  map[string]string // bare flags get the value "true"
	Valid    bool
	Err      *ValidationError
}

// token is one lexed unit with provenance: quoted spans are opaque
// positional arguments no matter what they contain.
type token struct {
	text   string
	quoted bool
}

// Parse tokenizes and validates text against the registry. It never returns
// an error; failures are reported through Parsed.Valid and Parsed.Err.
func (r *Registry) Parse(text string) Parsed {
	p := Parsed{Options: map[string]string{}}

	tokens := lex(text)
	if len(tokens) == 0 || tokens[0].quoted || !strings.HasPrefix(tokens[0].text, "/") {
		p.Err = &ValidationError{Command: strings.TrimSpace(text), Reason: "not a command"}
		return p
	}

	p.Command = strings.ToLower(tokens[0].text)
	if idx := strings.Index(text, tokens[0].text); idx >= 0 {
		p.RawTail = strings.TrimSpace(text[idx+len(tokens[0].text):])
	}

	for _, tok := range tokens[1:] {
		switch {
		case !tok.quoted && strings.HasPrefix(tok.text, "--"):
			name, value, found := strings.Cut(tok.text[2:], "=")
			if name == "" {
				continue
			}
			if !found {
				value = "true"
			}
			p.Options[strings.ToLower(name)] = value
		case !tok.quoted && strings.HasPrefix(tok.text, "@") && len(tok.text) > 1:
			p.Mentions = append(p.Mentions, strings.TrimPrefix(tok.text, "@"))
		default:
			p.Args = append(p.Args, tok.text)
		}
	}

	spec, ok := r.Get(p.Command)
	if !ok {
		p.Err = &ValidationError{
			Command:    p.Command,
			Reason:     "unknown command",
			Suggestion: r.suggest(p.Command),
		}
		return p
	}

	if spec.RequireMention && len(p.Mentions) == 0 {
		p.Err = &ValidationError{Command: p.Command, Reason: "requires an @mention"}
		return p
	}
	if len(p.Args) < spec.MinArgs {
		p.Err = &ValidationError{
			Command: p.Command,
			Reason:  fmt.Sprintf("needs at least %d argument(s), got %d", spec.MinArgs, len(p.Args)),
		}
		return p
	}
	if spec.MaxArgs >= 0 && len(p.Args) > spec.MaxArgs {
		p.Err = &ValidationError{
			Command: p.Command,
			Reason:  fmt.Sprintf("takes at most %d argument(s), got %d", spec.MaxArgs, len(p.Args)),
		}
		return p
	}

	p.Kind = string(spec.Kind)
	p.Valid = true
	return p
}

// lex splits text into tokens. Double-quoted spans become single tokens with
// the quotes stripped; an unterminated quote runs to end of input.
func lex(text string) []token {
	var tokens []token
	var b strings.Builder
	inQuote := false
	flush := func(quoted bool) {
		if b.Len() == 0 && !quoted {
			return
		}
		tokens = append(tokens, token{text: b.String(), quoted: quoted})
		b.Reset()
	}

	for _, r := range text {
		switch {
		case r == '"':
			if inQuote {
				flush(true)
				inQuote = false
			} else {
				flush(false)
				inQuote = true
			}
		case unicode.IsSpace(r) && !inQuote:
			flush(false)
		default:
			b.WriteRune(r)
		}
	}
	flush(inQuote)
	return tokens
}
