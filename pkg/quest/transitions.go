package quest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/answer"
	"github.com/jwebster45206/quest-engine/pkg/content"
)

// turn accumulates the effects of one transition until commit.
type turn struct {
	msg      Inbound
	prev     *Session
	progress *UserProgress
	now      time.Time

	next          State
	out           []Outbound
	records       []ArchiveRecord
	progressDirty bool
}

type transition func(t *turn)

// skipMark identifies the message for skip accounting. Message ids are only
// unique within a chat, so the chat is part of the mark.
func (t *turn) skipMark() string {
	if t.msg.MessageID == "" {
		return ""
	}
	return t.msg.ChatID + ":" + t.msg.MessageID
}

func (t *turn) sendText(s string, opts SendOptions) {
	if s == "" {
		return
	}
	t.out = append(t.out, Outbound{Item: content.Text(s), Options: opts})
}

// sendAll queues items; last applies to the final item unless it carries its own markup.
func (t *turn) sendAll(items []content.Item, last SendOptions) {
	for i, it := range items {
		var opts SendOptions
		switch {
		case len(it.Markup) > 0:
			opts.Keyboard = it.Markup
		case i == len(items)-1:
			opts = last
		}
		t.out = append(t.out, Outbound{Item: it, Options: opts})
	}
}

func (t *turn) archive(key string, v any, overwrite bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	t.records = append(t.records, ArchiveRecord{Key: key, Payload: payload, Overwrite: overwrite})
}

func (m *Machine) buildTable() map[State]transition {
	c := m.catalog
	table := make(map[State]transition, len(c.Intro)+2*len(c.Waypoints)+1)

	for i := 0; i < len(c.Intro)-1; i++ {
		next := c.Intro[i+1]
		table[Intro(c.Intro[i].ID)] = m.enterStage(next)
	}

	pred := Intro(c.Intro[len(c.Intro)-1].ID)
	for i := range c.Waypoints {
		w := &c.Waypoints[i]
		table[pred] = m.ask(w)
		table[Asked(w.ID)] = m.evaluate(w)
		pred = AtWaypoint(w.ID)
	}

	table[Finished()] = m.feedback
	return table
}

func (m *Machine) stageOptions(s content.Stage) SendOptions {
	if len(s.Markup) > 0 {
		return SendOptions{Keyboard: s.Markup}
	}
	return SendOptions{Keyboard: []string{m.catalog.Texts.ContinueButton}}
}

func (m *Machine) enterStage(s content.Stage) transition {
	return func(t *turn) {
		t.next = Intro(s.ID)
		t.sendAll(s.Messages, m.stageOptions(s))
	}
}

func (m *Machine) ask(w *content.Waypoint) transition {
	return func(t *turn) {
		t.next = Asked(w.ID)
		t.sendAll(w.Prompt, SendOptions{RemoveKeyboard: true})
	}
}

// evaluate is the answer transition for Asked(w). A correct answer wins over
// a skip request in the same message and spends no skip.
func (m *Machine) evaluate(w *content.Waypoint) transition {
	last := m.catalog.IsLast(w.ID)
	texts := m.catalog.Texts

	return func(t *turn) {
		correct := m.answers.Check(w.ID, t.msg.Text)
		gaveUp := !correct &&
			strings.Contains(answer.Normalize(t.msg.Text), texts.SkipKeyword) &&
			t.progress.CanSkip(t.skipMark())

		if !correct && !gaveUp {
			t.next = Asked(w.ID)
			if t.progress.SkipBudget > 0 {
				t.sendText(texts.TryAgainText(t.progress.SkipBudget), SendOptions{Keyboard: []string{texts.SkipButton}})
			} else {
				t.sendText(texts.WrongAnswer, SendOptions{RemoveKeyboard: true})
			}
			m.logger.Debug("Wrong answer",
				"user_id", t.msg.UserID,
				"waypoint", w.ID,
				"expected", w.Expected,
				"skip_budget", t.progress.SkipBudget)
			return
		}

		if correct {
			t.sendText(m.affirmation(), SendOptions{})
		} else if t.progress.SpendSkip(t.skipMark()) {
			t.progressDirty = true
		}

		if !last {
			t.next = AtWaypoint(w.ID)
			t.sendAll(w.Trivia, SendOptions{})
			t.sendText(texts.ContinuePrompt, SendOptions{Keyboard: []string{texts.ContinueButton}})
			return
		}
		t.sendAll(w.Trivia, SendOptions{})
		m.finish(t)
	}
}

func (m *Machine) finish(t *turn) {
	t.next = Finished()
	if t.progress.Finish(t.now) {
		t.progressDirty = true
		m.logger.Info("Quest finished", "user_id", t.msg.UserID)
	}
	opts := SendOptions{RemoveKeyboard: true}
	if len(m.catalog.Finish.Markup) > 0 {
		opts = SendOptions{Keyboard: m.catalog.Finish.Markup}
	}
	t.sendAll(m.catalog.Finish.Messages, opts)
	t.archive(FinishedKey(t.msg.UserID), t.progress, false)
}

// feedback handles any message after the quest is finished.
func (m *Machine) feedback(t *turn) {
	texts := m.catalog.Texts
	t.next = Finished()

	text := strings.TrimSpace(t.msg.Text)
	continued := strings.Contains(answer.Normalize(text), answer.Normalize(texts.ContinueButton))
	if text != "" && !continued {
		id := t.msg.MessageID
		if id == "" {
			id = strconv.FormatInt(t.now.UnixNano(), 10)
		}
		t.archive(FeedbackKey(t.msg.UserID, id), Feedback{
			UserID:     t.msg.UserID,
			MessageID:  id,
			Text:       text,
			ReceivedAt: t.now.UTC(),
		}, false)
	}
	t.sendText(texts.FinishedNotice, SendOptions{RemoveKeyboard: true})
}

// reset re-enters the first intro stage. StartedAt is set on first occurrence only.
func (m *Machine) reset(t *turn) {
	first := m.catalog.Intro[0]
	t.next = Intro(first.ID)
	if t.progress.Start(t.now) {
		t.progressDirty = true
		m.logger.Info("Quest started", "user_id", t.msg.UserID)
	}
	t.archive(StartedKey(t.msg.UserID), t.progress, false)
	t.sendAll(first.Messages, m.stageOptions(first))
}

func (m *Machine) stats(ctx context.Context, t *turn, log *slog.Logger) {
	sp, ok := m.progress.(StatsProvider)
	if !ok {
		t.sendText("Statistics are not available for this store", SendOptions{})
		return
	}
	day := t.now.UTC().Truncate(24 * time.Hour)
	st, err := sp.Stats(ctx, day.AddDate(0, 0, -6))
	if err != nil {
		log.Error("Failed to load stats", "error", err)
		t.sendText("Statistics are temporarily unavailable", SendOptions{})
		return
	}
	t.sendText(FormatStats(st), SendOptions{})
}

// FormatStats renders stats as a chat message.
func FormatStats(st *Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total users: %d\n", st.Total)
	fmt.Fprintf(&b, "Started: %d\n", st.Started)
	fmt.Fprintf(&b, "Finished: %d\n", st.Finished)
	if len(st.FinishedByDay) > 0 {
		b.WriteString("Finished per day:\n")
		for _, d := range st.FinishedByDay {
			fmt.Fprintf(&b, "%s: %d\n", d.Day.Format("2006-01-02"), d.Count)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Machine) setState(t *turn, tag string) {
	s, err := ParseState(tag)
	if err == nil {
		if _, ok := m.table[s]; !ok {
			err = fmt.Errorf("no transition from %q", tag)
		}
	}
	if err != nil {
		t.sendText(fmt.Sprintf("Unknown state %q", tag), SendOptions{})
		return
	}
	t.next = s
	t.sendText("State set to "+s.String(), SendOptions{})
}
