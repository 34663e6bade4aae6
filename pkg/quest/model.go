package quest

import (
	"time"

	"github.com/jwebster45206/quest-engine/pkg/content"
)

// DefaultSkipBudget is the number of questions a new participant may skip.
const DefaultSkipBudget = 5

// Session is the conversation position of one user in one chat.
type Session struct {
	UserID        string    `json:"user_id"`
	ChatID        string    `json:"chat_id"`
	State         State     `json:"state"`
	LastMessageID string    `json:"last_message_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Identity is what the transport knows about a user.
type Identity struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// UserProgress is the durable per-user record.
type UserProgress struct {
	ID         string     `json:"id"`
	FirstName  string     `json:"first_name,omitempty"`
	LastName   string     `json:"last_name,omitempty"`
	Username   string     `json:"username,omitempty"`
	SkipBudget int        `json:"skip_budget"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// LastSkipMessageID marks the message ("chat:message") that spent the
	// most recent skip. A redelivered skip is recognised by it and not charged twice.
	LastSkipMessageID string `json:"last_skip_message_id,omitempty"`
}

// NewProgress returns a fresh record for id with the given skip budget.
func NewProgress(id Identity, skipBudget int) *UserProgress {
	if skipBudget < 0 {
		skipBudget = 0
	}
	return &UserProgress{
		ID:         id.ID,
		FirstName:  id.FirstName,
		LastName:   id.LastName,
		Username:   id.Username,
		SkipBudget: skipBudget,
	}
}

// Start sets StartedAt if it is unset and reports whether it changed.
func (p *UserProgress) Start(now time.Time) bool {
	if p.StartedAt != nil {
		return false
	}
	t := now.UTC().Truncate(time.Second)
	p.StartedAt = &t
	return true
}

// Finish sets FinishedAt once, and only after StartedAt.
func (p *UserProgress) Finish(now time.Time) bool {
	if p.FinishedAt != nil || p.StartedAt == nil {
		return false
	}
	t := now.UTC().Truncate(time.Second)
	if t.Before(*p.StartedAt) {
		t = *p.StartedAt
	}
	p.FinishedAt = &t
	return true
}

// CanSkip reports whether messageID may be used to skip a question.
func (p *UserProgress) CanSkip(messageID string) bool {
	return p.SkipBudget > 0 || (messageID != "" && p.LastSkipMessageID == messageID)
}

// SpendSkip charges one skip for messageID. It reports whether the budget changed.
func (p *UserProgress) SpendSkip(messageID string) bool {
	if messageID != "" && p.LastSkipMessageID == messageID {
		return false
	}
	if p.SkipBudget <= 0 {
		return false
	}
	p.SkipBudget--
	p.LastSkipMessageID = messageID
	return true
}

// Channel names the transport a message arrived on.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWeb      Channel = "web"
	ChannelConsole  Channel = "console"
)

// Inbound is one message delivered by a transport.
type Inbound struct {
	Channel   Channel  `json:"channel"`
	UserID    string   `json:"user_id"`
	ChatID    string   `json:"chat_id"`
	MessageID string   `json:"message_id"`
	Text      string   `json:"text"`
	User      Identity `json:"user"`
}

// Chat addresses outbound content.
type Chat struct {
	Channel Channel `json:"channel"`
	ID      string  `json:"id"`
}

// SendOptions carries the reply keyboard for one outbound item.
type SendOptions struct {
	Keyboard       []string `json:"keyboard,omitempty"`
	RemoveKeyboard bool     `json:"remove_keyboard,omitempty"`
}

// Outbound is one item queued for delivery during a turn.
type Outbound struct {
	Item    content.Item `json:"item"`
	Options SendOptions  `json:"options"`
}
