package runner

import (
	"time"

	"github.com/jwebster45206/quest-engine/internal/services/events"
)

// TestSuite defines a complete conversation to play against the API.
// It either has Steps, or references other case files through Cases.
type TestSuite struct {
	Name  string     `yaml:"name"`
	Steps []TestStep `yaml:"steps,omitempty"`
	Cases []string   `yaml:"cases,omitempty"`
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep is one user message and what the quest should answer.
type TestStep struct {
	Name   string       `yaml:"name,omitempty"`
	Send   string       `yaml:"send"`
	Expect Expectations `yaml:"expect"`
}

// Expectations are checked against every chat message received for a step.
type Expectations struct {
	ResponseContains    []string `yaml:"response_contains,omitempty"`
	ResponseNotContains []string `yaml:"response_not_contains,omitempty"`
	ResponseRegex       string   `yaml:"response_regex,omitempty"`
	MinMessages         *int     `yaml:"min_messages,omitempty"`
	Kinds               []string `yaml:"kinds,omitempty"`    // item types, in order
	Keyboard            []string `yaml:"keyboard,omitempty"` // buttons on the last message
	KeyboardRemoved     *bool    `yaml:"keyboard_removed,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName     string
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
	Messages     []events.Event
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job       TestJob
	Results   []TestResult
	Error     error
	Duration  time.Duration
	SessionID string
}
