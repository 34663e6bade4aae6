// Package quest implements the per-user conversation state machine.
package quest

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/answer"
	"github.com/jwebster45206/quest-engine/pkg/content"
)

// Config wires a Machine to its collaborators.
type Config struct {
	Catalog  *content.Catalog
	Answers  *answer.Evaluator // built from Catalog when nil
	Sessions SessionStore
	Progress ProgressStore
	Archive  ArchiveSink // records are dropped when nil
	Sender   Sender
	Logger   *slog.Logger
	AdminIDs []string

	Now  func() time.Time
	Pick func(n int) int // random index for affirmations
}

// Machine routes inbound messages through the transition table.
type Machine struct {
	catalog  *content.Catalog
	answers  *answer.Evaluator
	sessions SessionStore
	progress ProgressStore
	archive  ArchiveSink
	sender   Sender
	logger   *slog.Logger
	admins   map[string]bool
	now      func() time.Time
	pick     func(n int) int

	table map[State]transition
	locks *keyedMutex
}

// New builds the transition table from the catalog order. It fails with a
// *content.ConfigurationError when a waypoint has no answer predicate.
func New(cfg Config) (*Machine, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("quest: catalog is required")
	}
	if cfg.Sessions == nil || cfg.Progress == nil {
		return nil, errors.New("quest: session and progress stores are required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("quest: sender is required")
	}
	answers := cfg.Answers
	if answers == nil {
		var err error
		if answers, err = answer.New(cfg.Catalog, nil); err != nil {
			return nil, err
		}
	}
	for _, w := range cfg.Catalog.Waypoints {
		if _, ok := answers.PredicateFor(w.ID); !ok {
			return nil, &content.ConfigurationError{Source: w.ID, Reason: "no answer predicate for waypoint"}
		}
	}

	m := &Machine{
		catalog:  cfg.Catalog,
		answers:  answers,
		sessions: cfg.Sessions,
		progress: cfg.Progress,
		archive:  cfg.Archive,
		sender:   cfg.Sender,
		logger:   cfg.Logger,
		admins:   make(map[string]bool, len(cfg.AdminIDs)),
		now:      cfg.Now,
		pick:     cfg.Pick,
		locks:    newKeyedMutex(),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.archive == nil {
		m.archive = discardSink{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.pick == nil {
		m.pick = rand.IntN
	}
	for _, id := range cfg.AdminIDs {
		m.admins[id] = true
	}
	m.table = m.buildTable()
	return m, nil
}

// States lists every state that has a registered transition, in tag order.
func (m *Machine) States() []State {
	states := make([]State, 0, len(m.table))
	for s := range m.table {
		states = append(states, s)
	}
	slices.SortFunc(states, func(a, b State) int { return strings.Compare(a.String(), b.String()) })
	return states
}

// Handle runs one turn for msg. Turns of the same user are serialized.
// A *PersistenceError means nothing was sent and the input may be redelivered.
func (m *Machine) Handle(ctx context.Context, msg Inbound) error {
	if msg.UserID == "" {
		return errors.New("quest: inbound message has no user id")
	}
	if msg.ChatID == "" {
		msg.ChatID = msg.UserID
	}
	unlock := m.locks.Lock(msg.UserID)
	defer unlock()

	log := m.logger.With("user_id", msg.UserID, "chat_id", msg.ChatID, "message_id", msg.MessageID)

	prev, err := m.sessions.LoadSession(ctx, msg.UserID, msg.ChatID)
	if err != nil {
		return &PersistenceError{Op: "load session", Err: err}
	}
	if prev != nil && msg.MessageID != "" && prev.LastMessageID == msg.MessageID {
		log.Debug("Duplicate message ignored", "state", prev.State.String())
		return nil
	}

	identity := msg.User
	identity.ID = msg.UserID
	progress, err := m.progress.GetOrCreate(ctx, identity)
	if err != nil {
		return &PersistenceError{Op: "load progress", Err: err}
	}

	t := &turn{msg: msg, prev: prev, progress: progress, now: m.now()}
	m.route(ctx, t, log)
	return m.commit(ctx, t, log)
}

func (m *Machine) route(ctx context.Context, t *turn, log *slog.Logger) {
	cmd, arg := parseCommand(t.msg.Text)
	admin := m.admins[t.msg.UserID]

	switch {
	case cmd == "start":
		m.reset(t)
	case cmd == "stats" && admin:
		m.stats(ctx, t, log)
	case cmd == "setstate" && admin:
		m.setState(t, arg)
	case t.prev == nil:
		m.reset(t)
	default:
		tr, ok := m.table[t.prev.State]
		if !ok {
			log.Warn("Session state has no transition, resetting", "state", t.prev.State.String())
			m.reset(t)
			return
		}
		tr(t)
	}
}

// commit persists progress, then the session, then delivers and archives.
func (m *Machine) commit(ctx context.Context, t *turn, log *slog.Logger) error {
	if t.progressDirty {
		if err := m.progress.Save(ctx, t.progress); err != nil {
			return &PersistenceError{Op: "save progress", Err: err}
		}
	}

	next := t.next
	if next.IsZero() && t.prev != nil {
		next = t.prev.State
	}
	if !next.IsZero() {
		s := &Session{
			UserID:        t.msg.UserID,
			ChatID:        t.msg.ChatID,
			State:         next,
			LastMessageID: t.msg.MessageID,
			UpdatedAt:     t.now.UTC(),
		}
		if err := m.sessions.SaveSession(ctx, s); err != nil {
			return &PersistenceError{Op: "save session", Err: err}
		}
	}

	chat := Chat{Channel: t.msg.Channel, ID: t.msg.ChatID}
	for _, out := range t.out {
		if err := m.sender.Send(ctx, chat, out.Item, out.Options); err != nil {
			log.Warn("Failed to send message", "kind", out.Item.Kind, "error", err)
		}
	}
	for _, rec := range t.records {
		m.archive.Submit(rec)
	}

	var from string
	if t.prev != nil {
		from = t.prev.State.String()
	}
	log.Debug("Turn committed",
		"from", from,
		"to", next.String(),
		"sends", len(t.out),
		"records", len(t.records),
		"skip_budget", t.progress.SkipBudget)
	return nil
}

func (m *Machine) affirmation() string {
	a := m.catalog.Texts.Affirmations
	if len(a) == 0 {
		return ""
	}
	return a[m.pick(len(a))]
}

func parseCommand(text string) (name, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text, " ")
	head, _, _ = strings.Cut(strings.TrimPrefix(head, "/"), "@")
	return strings.ToLower(head), strings.TrimSpace(rest)
}

type discardSink struct{}

func (discardSink) Submit(ArchiveRecord) {}
