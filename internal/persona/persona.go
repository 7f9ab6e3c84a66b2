// Package persona defines the closed set of league agent kinds and the
// personality profiles they speak with. Kinds are a compile-time enumeration:
// an unknown kind is a configuration error, never a silent substitution.
package persona

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one of the league's conversational agents.
type Kind string

const (
	KindCommissioner Kind = "commissioner"
	KindAnalyst      Kind = "analyst"
	KindOddsmaker    Kind = "oddsmaker"
	KindHistorian    Kind = "historian"
	KindHype         Kind = "hype"
	KindAdvisor      Kind = "advisor"
)

// ScopeGlobal is the sentinel scope for instances not bound to a league.
const ScopeGlobal = "global"

// ErrUnknownKind is returned when a kind is not part of the enumeration.
var ErrUnknownKind = errors.New("unknown agent kind")

var allKinds = []Kind{
	KindCommissioner,
	KindAnalyst,
	KindOddsmaker,
	KindHistorian,
	KindHype,
	KindAdvisor,
}

// AllKinds returns every registered kind in stable order.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind validates a raw string against the enumeration.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is part of the enumeration.
func (k Kind) Valid() bool {
	switch k {
	case KindCommissioner, KindAnalyst, KindOddsmaker, KindHistorian, KindHype, KindAdvisor:
		return true
	}
	return false
}

// Advisory reports whether k gives roster/decision advice. Advisory kinds
// earn an extra recommendation line in collaborative analyses.
func (k Kind) Advisory() bool {
	switch k {
	case KindAnalyst, KindOddsmaker, KindAdvisor:
		return true
	}
	return false
}

// Key derives the pool/storage key for a (kind, scope) pair.
// Empty scope collapses to the global sentinel.
func Key(kind Kind, scope string) string {
	if scope == "" {
		scope = ScopeGlobal
	}
	return string(kind) + ":" + scope
}
