package quest_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

const testCatalogYAML = `
texts:
  affirmations: ["Correct!"]
intro:
  - name: welcome
    messages: ["Welcome"]
  - name: gates
    messages: ["Go to the gates"]
    markup: ["Ready"]
waypoints:
  - name: w1
    question: ["Q1"]
    trivia: ["T1"]
    answer: {type: containsAny, values: ["lion"]}
  - name: w2
    question: ["Q2"]
    trivia: ["T2"]
    answer: {type: containsAll, values: ["memento", "mori"]}
finish:
  name: done
  messages: ["Congratulations"]
`

type recordingSender struct {
	mu   sync.Mutex
	sent []quest.Outbound
}

func (r *recordingSender) Send(_ context.Context, _ quest.Chat, item content.Item, opts quest.SendOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, quest.Outbound{Item: item, Options: opts})
	return nil
}

func (r *recordingSender) take() []quest.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	records []quest.ArchiveRecord
}

func (r *recordingSink) Submit(rec quest.ArchiveRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordingSink) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Key == key {
			n++
		}
	}
	return n
}

// flakySessions fails the next SaveSession, simulating a crash after the
// progress record was committed.
type flakySessions struct {
	*storage.MemoryStore
	failNext bool
}

func (f *flakySessions) SaveSession(ctx context.Context, s *quest.Session) error {
	if f.failNext {
		f.failNext = false
		return errors.New("connection reset")
	}
	return f.MemoryStore.SaveSession(ctx, s)
}

type harness struct {
	machine  *quest.Machine
	store    *storage.MemoryStore
	sessions *flakySessions
	sender   *recordingSender
	sink     *recordingSink
	seq      int
}

const userID = "u1"

func newHarness(t *testing.T) *harness {
	t.Helper()
	catalog, err := content.Parse([]byte(testCatalogYAML))
	require.NoError(t, err)

	h := &harness{
		store:  storage.NewMemoryStore(quest.DefaultSkipBudget),
		sender: &recordingSender{},
		sink:   &recordingSink{},
	}
	h.sessions = &flakySessions{MemoryStore: h.store}
	h.machine, err = quest.New(quest.Config{
		Catalog:  catalog,
		Sessions: h.sessions,
		Progress: h.store,
		Archive:  h.sink,
		Sender:   h.sender,
		Logger:   slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
		AdminIDs: []string{"admin"},
		Now:      func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return h
}

func (h *harness) inbound(user, id, text string) quest.Inbound {
	return quest.Inbound{
		Channel:   quest.ChannelConsole,
		UserID:    user,
		ChatID:    user,
		MessageID: id,
		Text:      text,
		User:      quest.Identity{ID: user, FirstName: "Test"},
	}
}

// say sends text as userID with a fresh message id and returns what was sent back.
func (h *harness) say(t *testing.T, text string) []quest.Outbound {
	t.Helper()
	h.seq++
	require.NoError(t, h.machine.Handle(context.Background(), h.inbound(userID, fmt.Sprintf("m%d", h.seq), text)))
	return h.sender.take()
}

func (h *harness) state(t *testing.T) quest.State {
	t.Helper()
	s, err := h.store.LoadSession(context.Background(), userID, userID)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s.State
}

func (h *harness) progress(t *testing.T) *quest.UserProgress {
	t.Helper()
	p, err := h.store.GetOrCreate(context.Background(), quest.Identity{ID: userID})
	require.NoError(t, err)
	return p
}

func (h *harness) setBudget(t *testing.T, n int) {
	t.Helper()
	p := h.progress(t)
	p.SkipBudget = n
	require.NoError(t, h.store.Save(context.Background(), p))
}

// toFirstQuestion walks /start and the intro chain to Asked(w1).
func (h *harness) toFirstQuestion(t *testing.T) {
	t.Helper()
	h.say(t, "/start")
	h.say(t, "hi")
	out := h.say(t, "Ready")
	require.Len(t, out, 1)
	require.Equal(t, "Q1", out[0].Item.Text)
	require.Equal(t, quest.Asked("w1"), h.state(t))
}

func texts(out []quest.Outbound) []string {
	s := make([]string, 0, len(out))
	for _, o := range out {
		s = append(s, o.Item.Text)
	}
	return s
}

func TestStart_NewUser(t *testing.T) {
	h := newHarness(t)

	out := h.say(t, "/start")
	assert.Equal(t, []string{"Welcome"}, texts(out))
	assert.Equal(t, []string{"Onward"}, out[0].Options.Keyboard)
	assert.Equal(t, quest.Intro("welcome"), h.state(t))

	p := h.progress(t)
	require.NotNil(t, p.StartedAt)
	assert.Equal(t, 5, p.SkipBudget)
	assert.Equal(t, "Test", p.FirstName)
	assert.Equal(t, 1, h.sink.count(quest.StartedKey(userID)))
}

func TestStart_RepeatedKeepsStartedAt(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/start")
	first := *h.progress(t).StartedAt

	h.say(t, "hi")
	h.say(t, "/start@quest_bot")
	assert.Equal(t, quest.Intro("welcome"), h.state(t))
	assert.Equal(t, first, *h.progress(t).StartedAt)
}

func TestFirstContactWithoutStart(t *testing.T) {
	h := newHarness(t)

	out := h.say(t, "hello?")
	assert.Equal(t, []string{"Welcome"}, texts(out))
	assert.Equal(t, quest.Intro("welcome"), h.state(t))
	assert.NotNil(t, h.progress(t).StartedAt)
}

func TestIntroChainUsesStageMarkup(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/start")

	out := h.say(t, "next")
	require.Len(t, out, 1)
	assert.Equal(t, "Go to the gates", out[0].Item.Text)
	assert.Equal(t, []string{"Ready"}, out[0].Options.Keyboard)
	assert.Equal(t, quest.Intro("gates"), h.state(t))

	out = h.say(t, "Ready")
	assert.True(t, out[0].Options.RemoveKeyboard)
}

func TestCorrectAnswer(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)

	out := h.say(t, "I see a LION")
	assert.Equal(t, []string{"Correct!", "T1", "Press 'Onward' when you are ready for the next task"}, texts(out))
	assert.Equal(t, []string{"Onward"}, out[2].Options.Keyboard)
	assert.Equal(t, quest.AtWaypoint("w1"), h.state(t))
	assert.Equal(t, 5, h.progress(t).SkipBudget)

	out = h.say(t, "Onward")
	assert.Equal(t, []string{"Q2"}, texts(out))
	assert.Equal(t, quest.Asked("w2"), h.state(t))
}

func TestWrongAnswersKeepBudget(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)

	for range 3 {
		out := h.say(t, "a tiger")
		require.Len(t, out, 1)
		assert.Equal(t, "Not quite. You can try again or skip. Skips left: 5", out[0].Item.Text)
		assert.Equal(t, []string{"Skip question"}, out[0].Options.Keyboard)
	}
	assert.Equal(t, quest.Asked("w1"), h.state(t))
	assert.Equal(t, 5, h.progress(t).SkipBudget)
}

func TestSkipWithLastBudget(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)
	h.setBudget(t, 1)

	out := h.say(t, "Skip question")
	assert.Equal(t, []string{"T1", "Press 'Onward' when you are ready for the next task"}, texts(out))
	assert.Equal(t, quest.AtWaypoint("w1"), h.state(t))
	assert.Equal(t, 0, h.progress(t).SkipBudget)
}

func TestWrongAnswerWithoutSkips(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)
	h.setBudget(t, 0)

	for _, msg := range []string{"a tiger", "skip"} {
		out := h.say(t, msg)
		require.Len(t, out, 1)
		assert.Equal(t, "That is not the right answer, try again. There are no skips left", out[0].Item.Text)
		assert.Equal(t, quest.Asked("w1"), h.state(t))
		assert.Equal(t, 0, h.progress(t).SkipBudget)
	}
}

func TestCorrectAnswerWinsOverSkip(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)

	out := h.say(t, "skip, it's a lion")
	assert.Equal(t, "Correct!", out[0].Item.Text)
	assert.Equal(t, quest.AtWaypoint("w1"), h.state(t))
	assert.Equal(t, 5, h.progress(t).SkipBudget)
}

func TestEmptyTextIsNeverCorrect(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)

	out := h.say(t, "")
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Item.Text, "Skips left: 5")
	assert.Equal(t, quest.Asked("w1"), h.state(t))
}

func TestFinishOnce(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)
	h.say(t, "lion")
	h.say(t, "Onward")

	ctx := context.Background()
	final := h.inbound(userID, "final", "Memento mori")
	require.NoError(t, h.machine.Handle(ctx, final))
	out := h.sender.take()
	assert.Equal(t, []string{"Correct!", "T2", "Congratulations"}, texts(out))
	assert.True(t, out[2].Options.RemoveKeyboard)
	assert.Equal(t, quest.Finished(), h.state(t))

	p := h.progress(t)
	require.NotNil(t, p.FinishedAt)
	finishedAt := *p.FinishedAt
	assert.False(t, p.FinishedAt.Before(*p.StartedAt))
	assert.Equal(t, 1, h.sink.count(quest.FinishedKey(userID)))

	// redelivery of the same message is a no-op
	require.NoError(t, h.machine.Handle(ctx, final))
	assert.Empty(t, h.sender.take())
	assert.Equal(t, 1, h.sink.count(quest.FinishedKey(userID)))
	assert.Equal(t, finishedAt, *h.progress(t).FinishedAt)
}

func TestFeedbackAfterFinish(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)
	h.say(t, "lion")
	h.say(t, "Onward")
	h.say(t, "memento mori")
	finishedAt := *h.progress(t).FinishedAt

	out := h.say(t, "Loved the chapel")
	assert.Len(t, out, 1)
	assert.Equal(t, quest.Finished(), h.state(t))
	assert.Equal(t, 1, h.sink.count(quest.FeedbackKey(userID, fmt.Sprintf("m%d", h.seq))))

	h.say(t, "Onward")
	assert.Equal(t, 0, h.sink.count(quest.FeedbackKey(userID, fmt.Sprintf("m%d", h.seq))))
	assert.Equal(t, finishedAt, *h.progress(t).FinishedAt)
}

func TestDuplicateSkipIsChargedOnce(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)
	h.setBudget(t, 1)
	ctx := context.Background()

	msg := h.inbound(userID, "skip-1", "skip")
	h.sessions.failNext = true
	err := h.machine.Handle(ctx, msg)

	var perr *quest.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, h.sender.take(), "nothing is sent when the turn aborts")
	assert.Equal(t, quest.Asked("w1"), h.state(t))
	assert.Equal(t, 0, h.progress(t).SkipBudget)

	require.NoError(t, h.machine.Handle(ctx, msg))
	assert.Equal(t, []string{"T1", "Press 'Onward' when you are ready for the next task"}, texts(h.sender.take()))
	assert.Equal(t, quest.AtWaypoint("w1"), h.state(t))
	assert.Equal(t, 0, h.progress(t).SkipBudget)
}

func TestSkipMarkIsPerChat(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)
	ctx := context.Background()

	inGroup := func(id, text string) quest.Inbound {
		msg := h.inbound(userID, id, text)
		msg.ChatID = "group"
		return msg
	}
	for i, text := range []string{"/start", "hi", "Ready"} {
		require.NoError(t, h.machine.Handle(ctx, inGroup(fmt.Sprintf("g%d", i), text)))
	}
	h.sender.take()
	h.setBudget(t, 1)

	require.NoError(t, h.machine.Handle(ctx, h.inbound(userID, "s1", "skip")))
	assert.Equal(t, quest.AtWaypoint("w1"), h.state(t))
	assert.Equal(t, 0, h.progress(t).SkipBudget)
	h.sender.take()

	require.NoError(t, h.machine.Handle(ctx, inGroup("s1", "skip")))
	assert.Equal(t, []string{"That is not the right answer, try again. There are no skips left"}, texts(h.sender.take()))
	s, err := h.store.LoadSession(ctx, userID, "group")
	require.NoError(t, err)
	assert.Equal(t, quest.Asked("w1"), s.State)
}

func TestPersistenceFailureSendsNothing(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)
	h.store.SetSaveError(errors.New("read-only"))

	err := h.machine.Handle(context.Background(), h.inbound(userID, "x", "lion"))
	var perr *quest.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "save session", perr.Op)
	assert.Empty(t, h.sender.take())
	assert.Equal(t, quest.Asked("w1"), h.state(t))
}

func TestConcurrentTurnsForOneUser(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.machine.Handle(ctx, h.inbound(userID, fmt.Sprintf("c%d", i), "skip")))
		}()
	}
	wg.Wait()

	assert.Equal(t, quest.Finished(), h.state(t))
	assert.Equal(t, 3, h.progress(t).SkipBudget)
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)
	ctx := context.Background()

	require.NoError(t, h.machine.Handle(ctx, h.inbound("admin", "a1", "/stats")))
	out := h.sender.take()
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Item.Text, "Total users: 2")
	assert.Contains(t, out[0].Item.Text, "Started: 1")

	require.NoError(t, h.machine.Handle(ctx, h.inbound("admin", "a2", "/setstate asked:w2")))
	assert.Equal(t, "State set to asked:w2", h.sender.take()[0].Item.Text)
	s, err := h.store.LoadSession(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.Equal(t, quest.Asked("w2"), s.State)

	require.NoError(t, h.machine.Handle(ctx, h.inbound("admin", "a3", "/setstate asked:nowhere")))
	assert.Contains(t, h.sender.take()[0].Item.Text, "Unknown state")
	s, err = h.store.LoadSession(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.Equal(t, quest.Asked("w2"), s.State)
}

func TestStatsIgnoredForNonAdmin(t *testing.T) {
	h := newHarness(t)
	h.toFirstQuestion(t)

	out := h.say(t, "/stats")
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Item.Text, "Skips left")
	assert.Equal(t, quest.Asked("w1"), h.state(t))
}

func TestNew_MissingPredicate(t *testing.T) {
	catalog, err := content.Parse([]byte(`
intro: [{name: a, messages: ["hi"]}]
waypoints: [{name: w, question: ["q"]}]
`))
	require.NoError(t, err)

	_, err = quest.New(quest.Config{
		Catalog:  catalog,
		Sessions: storage.NewMemoryStore(5),
		Progress: storage.NewMemoryStore(5),
		Sender:   &recordingSender{},
	})
	var cfgErr *content.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "w", cfgErr.Source)
}

func TestStates(t *testing.T) {
	h := newHarness(t)
	var tags []string
	for _, s := range h.machine.States() {
		tags = append(tags, s.String())
	}
	assert.Equal(t, []string{"asked:w1", "asked:w2", "at:w1", "finished", "intro:gates", "intro:welcome"}, tags)
}
