package telegram

import (
	"context"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// Poller long-polls the Bot API and hands every message to dispatch.
type Poller struct {
	bot     *tgbotapi.BotAPI
	logger  *slog.Logger
	timeout int
}

func NewPoller(bot *tgbotapi.BotAPI, logger *slog.Logger) *Poller {
	return &Poller{bot: bot, logger: logger, timeout: 60}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, dispatch func(context.Context, quest.Inbound) error) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.timeout
	updates := p.bot.GetUpdatesChan(u)

	p.logger.Info("Telegram polling started", "bot", p.bot.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			p.bot.StopReceivingUpdates()
			p.logger.Info("Telegram polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := ToInbound(update)
			if !ok {
				continue
			}
			if err := dispatch(ctx, msg); err != nil {
				p.logger.Error("Failed to dispatch update", "update_id", update.UpdateID, "error", err)
			}
		}
	}
}

// ToInbound converts an update to an inbound message. Updates without a
// message from a user are ignored. Captions count as text.
func ToInbound(update tgbotapi.Update) (quest.Inbound, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return quest.Inbound{}, false
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	userID := strconv.FormatInt(m.From.ID, 10)
	return quest.Inbound{
		Channel:   quest.ChannelTelegram,
		UserID:    userID,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		MessageID: strconv.Itoa(m.MessageID),
		Text:      text,
		User: quest.Identity{
			ID:        userID,
			FirstName: m.From.FirstName,
			LastName:  m.From.LastName,
			Username:  m.From.UserName,
		},
	}, true
}
