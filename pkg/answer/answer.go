// Package answer turns catalog answer conditions into predicates.
package answer

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/quest-engine/pkg/content"
)

// Predicate reports whether a normalized message answers a waypoint.
type Predicate func(normalized string) bool

// Normalize lower-cases s with Unicode rules so Cyrillic and other
// scripts compare the same way ASCII does.
func Normalize(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

// ContainsAny matches when any of the literals is a substring.
func ContainsAny(literals ...string) Predicate {
	lits := normalizeAll(literals)
	return func(m string) bool {
		for _, l := range lits {
			if strings.Contains(m, l) {
				return true
			}
		}
		return false
	}
}

// ContainsAll matches when every literal is a substring.
func ContainsAll(literals ...string) Predicate {
	lits := normalizeAll(literals)
	return func(m string) bool {
		for _, l := range lits {
			if !strings.Contains(m, l) {
				return false
			}
		}
		return true
	}
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Compile builds a predicate from a declarative condition.
func Compile(c content.Condition) (Predicate, error) {
	if len(normalizeAll(c.Values)) == 0 {
		return nil, fmt.Errorf("condition %q has no values", c.Type)
	}
	switch c.Type {
	case content.ConditionContainsAny, "":
		return ContainsAny(c.Values...), nil
	case content.ConditionContainsAll:
		return ContainsAll(c.Values...), nil
	default:
		return nil, fmt.Errorf("unknown condition type %q", c.Type)
	}
}

// Evaluator holds one predicate per waypoint, resolved at startup.
type Evaluator struct {
	predicates map[string]Predicate
}

// New resolves a predicate for every waypoint in the catalog. Overrides
// registered in code take precedence over catalog conditions. A waypoint
// left without a predicate is a configuration error.
func New(catalog *content.Catalog, overrides map[string]Predicate) (*Evaluator, error) {
	e := &Evaluator{predicates: make(map[string]Predicate, len(catalog.Waypoints))}
	for _, w := range catalog.Waypoints {
		if p, ok := overrides[w.ID]; ok && p != nil {
			e.predicates[w.ID] = p
			continue
		}
		if w.Answer == nil {
			return nil, &content.ConfigurationError{Source: w.ID, Reason: "no answer predicate for waypoint"}
		}
		p, err := Compile(*w.Answer)
		if err != nil {
			return nil, &content.ConfigurationError{Source: w.ID, Reason: "invalid answer condition", Err: err}
		}
		e.predicates[w.ID] = p
	}
	for id := range overrides {
		if _, ok := catalog.Waypoint(id); !ok {
			return nil, &content.ConfigurationError{Source: id, Reason: "answer override for unknown waypoint"}
		}
	}
	return e, nil
}

// PredicateFor returns the predicate for a waypoint. The boolean is false
// for ids the catalog does not define.
func (e *Evaluator) PredicateFor(waypointID string) (Predicate, bool) {
	p, ok := e.predicates[waypointID]
	return p, ok
}

// Check normalizes text and evaluates it against the waypoint predicate.
// Empty text never matches.
func (e *Evaluator) Check(waypointID, text string) bool {
	n := Normalize(text)
	if n == "" {
		return false
	}
	p, ok := e.predicates[waypointID]
	return ok && p(n)
}
