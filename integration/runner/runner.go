package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/quest-engine/internal/services/events"
	"github.com/jwebster45206/quest-engine/pkg/content"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner plays test suites against a running quest API over its websocket.
type Runner struct {
	BaseURL           string
	Dialer            *websocket.Dialer
	Timeout           time.Duration // max wait for the first reply of a step
	Quiet             time.Duration // a step is complete after this long without messages
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Dialer:            websocket.DefaultDialer,
		Timeout:           30 * time.Second,
		Quiet:             1500 * time.Millisecond,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a YAML file
func LoadTestSuite(filename string) (TestSuite, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
	}
	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		subJobs, err := LoadTestSuiteWithExpansion(filepath.Join(casesDir, caseFile), casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}
		jobs = append(jobs, subJobs...)
	}
	return jobs, nil
}

func (r *Runner) wsURL(sessionID string) string {
	u := r.BaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/v1/ws?session_id=" + sessionID
}

// RunSuite plays a suite on a fresh web session.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	sessionID := uuid.New().String()
	result := TestRunResult{
		Job:       TestJob{Name: suite.Name, Suite: suite},
		Results:   make([]TestResult, 0, len(suite.Steps)),
		SessionID: sessionID,
	}
	fail := func(err error) (TestRunResult, error) {
		result.Error = err
		result.Duration = time.Since(start)
		return result, err
	}

	conn, _, err := r.Dialer.DialContext(ctx, r.wsURL(sessionID), nil)
	if err != nil {
		return fail(fmt.Errorf("failed to connect websocket: %w", err))
	}
	defer conn.Close()

	incoming := make(chan events.Event, 64)
	go readEvents(conn, incoming)

	select {
	case ev, ok := <-incoming:
		if !ok || ev.Type != "connected" {
			return fail(fmt.Errorf("expected connected message, got %q", ev.Type))
		}
	case <-time.After(r.Timeout):
		return fail(fmt.Errorf("no connected message within %s", r.Timeout))
	}

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, conn, incoming, suite.Name, step)
		result.Results = append(result.Results, stepResult)

		if stepResult.Success {
			r.Logger("      ✓ %s (%s)", step.Name, stepResult.Duration.Round(time.Millisecond))
			continue
		}
		r.Logger("      ✗ %s: %v", step.Name, stepResult.Error)
		if r.ErrorHandlingMode == ErrorHandlingExit {
			return fail(fmt.Errorf("step %q failed: %w", step.Name, stepResult.Error))
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// readEvents decodes every websocket frame into incoming until the
// connection closes. Status frames decode with only Type set.
func readEvents(conn *websocket.Conn, incoming chan<- events.Event) {
	defer close(incoming)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev events.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		incoming <- ev
	}
}

func (r *Runner) runStep(ctx context.Context, conn *websocket.Conn, incoming <-chan events.Event, suiteName string, step TestStep) TestResult {
	start := time.Now()
	res := TestResult{TestName: suiteName, StepName: step.Name}

	if err := conn.WriteJSON(map[string]string{"text": step.Send}); err != nil {
		res.Error = fmt.Errorf("failed to send message: %w", err)
		res.Duration = time.Since(start)
		return res
	}

	msgs, err := r.collect(ctx, incoming)
	res.Messages = msgs
	res.ResponseText = responseText(msgs)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	if err := checkExpectations(step.Expect, msgs); err != nil {
		res.Error = err
		return res
	}
	res.Success = true
	return res
}

// collect waits for the first chat message of a turn and then keeps reading
// until the connection has been quiet for r.Quiet.
func (r *Runner) collect(ctx context.Context, incoming <-chan events.Event) ([]events.Event, error) {
	var msgs []events.Event
	deadline := time.NewTimer(r.Timeout)
	defer deadline.Stop()

	for {
		var wait <-chan time.Time = deadline.C
		if len(msgs) > 0 {
			wait = time.After(r.Quiet)
		}
		select {
		case <-ctx.Done():
			return msgs, ctx.Err()
		case <-wait:
			if len(msgs) == 0 {
				return nil, fmt.Errorf("no reply within %s", r.Timeout)
			}
			return msgs, nil
		case ev, ok := <-incoming:
			if !ok {
				return msgs, fmt.Errorf("websocket closed")
			}
			switch ev.Type {
			case events.EventTypeMessage:
				msgs = append(msgs, ev)
			case events.EventTypeRequestFailed:
				return msgs, fmt.Errorf("request failed: %s", ev.Error)
			}
		}
	}
}

func responseText(msgs []events.Event) string {
	var parts []string
	var add func(it content.Item)
	add = func(it content.Item) {
		for _, s := range []string{it.Text, it.Caption} {
			if s != "" {
				parts = append(parts, s)
			}
		}
		for _, m := range it.Media {
			add(m)
		}
	}
	for _, m := range msgs {
		if m.Item != nil {
			add(*m.Item)
		}
	}
	return strings.Join(parts, "\n")
}

func checkExpectations(exp Expectations, msgs []events.Event) error {
	text := responseText(msgs)
	lower := strings.ToLower(text)

	for _, want := range exp.ResponseContains {
		if !strings.Contains(lower, strings.ToLower(want)) {
			return fmt.Errorf("response does not contain %q:\n%s", want, text)
		}
	}
	for _, unwanted := range exp.ResponseNotContains {
		if strings.Contains(lower, strings.ToLower(unwanted)) {
			return fmt.Errorf("response contains %q:\n%s", unwanted, text)
		}
	}
	if exp.ResponseRegex != "" {
		re, err := regexp.Compile(exp.ResponseRegex)
		if err != nil {
			return fmt.Errorf("invalid response_regex: %w", err)
		}
		if !re.MatchString(text) {
			return fmt.Errorf("response does not match %q:\n%s", exp.ResponseRegex, text)
		}
	}
	if exp.MinMessages != nil && len(msgs) < *exp.MinMessages {
		return fmt.Errorf("expected at least %d messages, got %d", *exp.MinMessages, len(msgs))
	}
	if len(exp.Kinds) > 0 {
		var kinds []string
		for _, m := range msgs {
			if m.Item != nil {
				kinds = append(kinds, string(m.Item.Kind))
			}
		}
		if !slices.Equal(kinds, exp.Kinds) {
			return fmt.Errorf("expected item kinds %v, got %v", exp.Kinds, kinds)
		}
	}

	if len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1].Options
	if len(exp.Keyboard) > 0 {
		if last == nil || !slices.Equal(last.Keyboard, exp.Keyboard) {
			return fmt.Errorf("expected keyboard %v on last message, got %+v", exp.Keyboard, last)
		}
	}
	if exp.KeyboardRemoved != nil {
		removed := last != nil && last.RemoveKeyboard
		if removed != *exp.KeyboardRemoved {
			return fmt.Errorf("expected keyboard_removed=%t", *exp.KeyboardRemoved)
		}
	}
	return nil
}
