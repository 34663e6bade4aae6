// Package report exports archived milestones and feedback as listings.
package report

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jwebster45206/quest-engine/internal/archive"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// Kind names a listing.
type Kind string

const (
	KindStarted  Kind = "started"
	KindFinished Kind = "finished"
	KindFeedback Kind = "feedback"
)

// Kinds lists every report kind in display order.
var Kinds = []Kind{KindStarted, KindFinished, KindFeedback}

// ParseKind validates a report name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Kinds, k) {
		return k, nil
	}
	return "", fmt.Errorf("unknown report %q", s)
}

func (k Kind) prefix() string {
	switch k {
	case KindFinished:
		return quest.FinishedPrefix
	case KindFeedback:
		return quest.FeedbackPrefix
	default:
		return quest.StartedPrefix
	}
}

// Entry is one archived object with its decoded payload.
type Entry struct {
	Key        string
	ModifiedAt time.Time
	Progress   *quest.UserProgress
	Feedback   *quest.Feedback
}

// Report is a listing ordered by modification time, newest first.
type Report struct {
	Kind        Kind
	GeneratedAt time.Time
	Entries     []Entry
}

// Build lists and decodes every object of the given kind.
// Objects that cannot be read or decoded are skipped and counted.
func Build(ctx context.Context, store archive.Store, kind Kind, now time.Time) (*Report, int, error) {
	objects, err := store.List(ctx, kind.prefix())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	r := &Report{Kind: kind, GeneratedAt: now.UTC()}
	skipped := 0
	for _, obj := range objects {
		body, err := store.Get(ctx, obj.Key)
		if err != nil {
			skipped++
			continue
		}
		e := Entry{Key: obj.Key, ModifiedAt: obj.ModifiedAt}
		if kind == KindFeedback {
			e.Feedback = &quest.Feedback{}
			err = json.Unmarshal(body, e.Feedback)
		} else {
			e.Progress = &quest.UserProgress{}
			err = json.Unmarshal(body, e.Progress)
		}
		if err != nil {
			skipped++
			continue
		}
		r.Entries = append(r.Entries, e)
	}

	slices.SortStableFunc(r.Entries, func(a, b Entry) int {
		if c := b.ModifiedAt.Compare(a.ModifiedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return r, skipped, nil
}

// Header returns the column names of the report.
func (r *Report) Header() []string {
	if r.Kind == KindFeedback {
		return []string{"user_id", "message_id", "text", "received_at", "modified_at"}
	}
	return []string{"user_id", "first_name", "last_name", "username", "skips_left", "started_at", "finished_at", "modified_at"}
}

// Rows returns the entries as string cells matching Header.
func (r *Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Feedback != nil {
			f := e.Feedback
			rows = append(rows, []string{f.UserID, f.MessageID, f.Text, formatTime(&f.ReceivedAt), formatTime(&e.ModifiedAt)})
			continue
		}
		p := e.Progress
		rows = append(rows, []string{
			p.ID, p.FirstName, p.LastName, p.Username,
			strconv.Itoa(p.SkipBudget),
			formatTime(p.StartedAt), formatTime(p.FinishedAt), formatTime(&e.ModifiedAt),
		})
	}
	return rows
}

// Title is the human readable report name.
func (r *Report) Title() string {
	switch r.Kind {
	case KindFinished:
		return "Finished participants"
	case KindFeedback:
		return "Feedback"
	default:
		return "Started participants"
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateTime)
}
