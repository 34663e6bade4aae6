package content

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Condition types understood by the answer evaluator
const (
	ConditionContainsAny = "containsAny"
	ConditionContainsAll = "containsAll"
)

// Condition is the declarative form of an answer predicate
type Condition struct {
	Type   string   `yaml:"type"`
	Values []string `yaml:"values"`
}

// Stage is a narrative step with no question: intro steps and the finish screen.
type Stage struct {
	ID       string   `yaml:"name"`
	Messages []Item   `yaml:"messages"`
	Markup   []string `yaml:"markup,omitempty"` // keyboard for the whole stage
}

// Waypoint is one question of the quest.
type Waypoint struct {
	ID       string     `yaml:"name"`
	Prompt   []Item     `yaml:"question"`
	Trivia   []Item     `yaml:"trivia,omitempty"`
	Answer   *Condition `yaml:"answer,omitempty"`
	Expected string     `yaml:"expected,omitempty"` // human readable answer, logged next to attempts
}

// Texts holds the fixed phrases used by the conversation.
type Texts struct {
	SkipKeyword    string   `yaml:"skip_keyword"`
	SkipButton     string   `yaml:"skip_button"`
	ContinueButton string   `yaml:"continue_button"`
	ContinuePrompt string   `yaml:"continue_prompt"`
	TryAgain       string   `yaml:"try_again"` // "{skips}" is replaced with the remaining budget
	WrongAnswer    string   `yaml:"wrong_answer"`
	FinishedNotice string   `yaml:"finished_notice"`
	Affirmations   []string `yaml:"affirmations"`
}

// Catalog is the immutable quest content loaded at startup.
type Catalog struct {
	Title     string     `yaml:"title"`
	Texts     Texts      `yaml:"texts"`
	Intro     []Stage    `yaml:"intro"`
	Waypoints []Waypoint `yaml:"waypoints"`
	Finish    Stage      `yaml:"finish"`

	index map[string]int
}

var defaultTexts = Texts{
	SkipKeyword:    "skip",
	SkipButton:     "Skip question",
	ContinueButton: "Onward",
	ContinuePrompt: "Press 'Onward' when you are ready for the next task",
	TryAgain:       "Not quite. You can try again or skip. Skips left: {skips}",
	WrongAnswer:    "That is not the right answer, try again. There are no skips left",
	FinishedNotice: "You have already finished the quest. Anything you write here is saved as feedback. Send /start to play again",
	Affirmations:   []string{"That's right!", "Correct!", "Exactly!", "Spot on!"},
}

// Load reads and validates a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Source: path, Reason: "cannot read catalog", Err: err}
	}
	c, err := Parse(data)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) && cfgErr.Source == "" {
			cfgErr.Source = path
		}
		return nil, err
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, &ConfigurationError{Reason: "cannot parse catalog", Err: err}
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) applyDefaults() {
	t := &c.Texts
	if t.SkipKeyword == "" {
		t.SkipKeyword = defaultTexts.SkipKeyword
	}
	t.SkipKeyword = strings.ToLower(t.SkipKeyword)
	if t.SkipButton == "" {
		t.SkipButton = defaultTexts.SkipButton
	}
	if t.ContinueButton == "" {
		t.ContinueButton = defaultTexts.ContinueButton
	}
	if t.ContinuePrompt == "" {
		t.ContinuePrompt = defaultTexts.ContinuePrompt
	}
	if t.TryAgain == "" {
		t.TryAgain = defaultTexts.TryAgain
	}
	if t.WrongAnswer == "" {
		t.WrongAnswer = defaultTexts.WrongAnswer
	}
	if t.FinishedNotice == "" {
		t.FinishedNotice = defaultTexts.FinishedNotice
	}
	if len(t.Affirmations) == 0 {
		t.Affirmations = defaultTexts.Affirmations
	}
	if c.Finish.ID == "" {
		c.Finish.ID = "finish"
	}
	if len(c.Finish.Messages) == 0 {
		c.Finish.Messages = []Item{Text("Congratulations, you have completed the quest!")}
	}
}

// Validate checks structural invariants and builds the waypoint index.
// Answer predicates are checked separately by the answer package.
func (c *Catalog) Validate() error {
	if len(c.Intro) == 0 {
		return &ConfigurationError{Reason: "catalog has no intro stages"}
	}
	if len(c.Waypoints) == 0 {
		return &ConfigurationError{Reason: "catalog has no waypoints"}
	}
	if !strings.Contains(strings.ToLower(c.Texts.SkipButton), c.Texts.SkipKeyword) {
		return &ConfigurationError{Reason: fmt.Sprintf("skip button %q does not contain skip keyword %q", c.Texts.SkipButton, c.Texts.SkipKeyword)}
	}

	stages := make(map[string]bool, len(c.Intro))
	for i, s := range c.Intro {
		if s.ID == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("no name specified for intro stage %d", i)}
		}
		if len(s.Messages) == 0 {
			return &ConfigurationError{Source: s.ID, Reason: "no messages specified for stage"}
		}
		if stages[s.ID] {
			return &ConfigurationError{Source: s.ID, Reason: "duplicate intro stage name"}
		}
		stages[s.ID] = true
	}

	c.index = make(map[string]int, len(c.Waypoints))
	for i, w := range c.Waypoints {
		if w.ID == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("no name specified for waypoint %d", i)}
		}
		if len(w.Prompt) == 0 {
			return &ConfigurationError{Source: w.ID, Reason: "waypoint has no question"}
		}
		if _, dup := c.index[w.ID]; dup {
			return &ConfigurationError{Source: w.ID, Reason: "duplicate waypoint name"}
		}
		c.index[w.ID] = i
	}
	return nil
}

// Waypoint looks up a waypoint by id.
func (c *Catalog) Waypoint(id string) (*Waypoint, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return &c.Waypoints[i], true
}

// IsLast reports whether id names the final waypoint.
func (c *Catalog) IsLast(id string) bool {
	return len(c.Waypoints) > 0 && c.Waypoints[len(c.Waypoints)-1].ID == id
}

// TryAgainText renders the retry notice for the remaining skip budget.
func (t Texts) TryAgainText(skips int) string {
	return strings.ReplaceAll(t.TryAgain, "{skips}", fmt.Sprint(skips))
}
