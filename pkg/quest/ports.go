package quest

import (
	"context"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/content"
)

// Sender delivers outbound content to a chat.
type Sender interface {
	Send(ctx context.Context, chat Chat, item content.Item, opts SendOptions) error
}

// SessionStore keeps the conversation position per (user, chat).
// LoadSession returns nil, nil when no session exists.
type SessionStore interface {
	LoadSession(ctx context.Context, userID, chatID string) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
}

// ProgressStore keeps UserProgress records. GetOrCreate returns the existing
// record unmodified, or creates one from the identity with default values.
type ProgressStore interface {
	GetOrCreate(ctx context.Context, id Identity) (*UserProgress, error)
	Save(ctx context.Context, p *UserProgress) error
}

// DayCount is the number of events on one UTC day.
type DayCount struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

// Stats summarises participation.
type Stats struct {
	Total         int        `json:"total"`
	Started       int        `json:"started"`
	Finished      int        `json:"finished"`
	FinishedByDay []DayCount `json:"finished_by_day"`
}

// StatsProvider is implemented by progress stores that can aggregate.
type StatsProvider interface {
	Stats(ctx context.Context, since time.Time) (*Stats, error)
}

// ArchiveRecord is a milestone snapshot. Without Overwrite the record is
// written only if the key does not exist yet.
type ArchiveRecord struct {
	Key       string
	Payload   []byte
	Overwrite bool
}

// ArchiveSink accepts records for best-effort background persistence.
// Submit must not block the caller.
type ArchiveSink interface {
	Submit(rec ArchiveRecord)
}

// Archive key prefixes.
const (
	StartedPrefix  = "users/started/"
	FinishedPrefix = "users/finished/"
	FeedbackPrefix = "users/feedback/"
)

func StartedKey(userID string) string  { return StartedPrefix + userID }
func FinishedKey(userID string) string { return FinishedPrefix + userID }
func FeedbackKey(userID, messageID string) string {
	return FeedbackPrefix + userID + "/" + messageID
}

// Feedback is the archived form of a free-text message sent after finishing.
type Feedback struct {
	UserID     string    `json:"user_id"`
	MessageID  string    `json:"message_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}
