package quest

import (
	"fmt"
	"strings"
)

// Kind is the variant of a conversation state.
type Kind uint8

const (
	kindNone Kind = iota
	KindIntro
	KindAtWaypoint
	KindAsked
	KindFinished
)

func (k Kind) String() string {
	switch k {
	case KindIntro:
		return "intro"
	case KindAtWaypoint:
		return "at"
	case KindAsked:
		return "asked"
	case KindFinished:
		return "finished"
	default:
		return "none"
	}
}

// State is a closed tagged variant: Intro(stage), AtWaypoint(w), Asked(w) or Finished.
// It is comparable and used directly as the transition table key.
type State struct {
	Kind Kind
	ID   string // stage or waypoint id; empty for Finished
}

func Intro(stage string) State        { return State{Kind: KindIntro, ID: stage} }
func AtWaypoint(waypoint string) State { return State{Kind: KindAtWaypoint, ID: waypoint} }
func Asked(waypoint string) State      { return State{Kind: KindAsked, ID: waypoint} }
func Finished() State                  { return State{Kind: KindFinished} }

// IsZero reports whether s is the unset state.
func (s State) IsZero() bool {
	return s.Kind == kindNone
}

// String returns the stable tag form, e.g. "asked:bridge".
func (s State) String() string {
	switch s.Kind {
	case KindFinished:
		return "finished"
	case kindNone:
		return ""
	default:
		return s.Kind.String() + ":" + s.ID
	}
}

// ParseState is the inverse of String.
func ParseState(tag string) (State, error) {
	tag = strings.TrimSpace(tag)
	if tag == "finished" {
		return Finished(), nil
	}
	kind, id, ok := strings.Cut(tag, ":")
	if !ok || id == "" {
		return State{}, fmt.Errorf("invalid state tag %q", tag)
	}
	switch kind {
	case "intro":
		return Intro(id), nil
	case "at":
		return AtWaypoint(id), nil
	case "asked":
		return Asked(id), nil
	default:
		return State{}, fmt.Errorf("invalid state kind %q", kind)
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = State{}
		return nil
	}
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
