// Package telegram is the Telegram Bot API transport.
package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// botAPI is the part of *tgbotapi.BotAPI the sender uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// Sender delivers content items through the Bot API. File references that
// look like URLs are sent by URL, those found under mediaDir are uploaded,
// everything else is treated as a Telegram file id.
type Sender struct {
	bot      botAPI
	mediaDir string
}

var _ quest.Sender = (*Sender)(nil)

func NewSender(bot botAPI, mediaDir string) *Sender {
	return &Sender{bot: bot, mediaDir: mediaDir}
}

func (s *Sender) Send(ctx context.Context, chat quest.Chat, item content.Item, opts quest.SendOptions) error {
	chatID, err := strconv.ParseInt(chat.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", chat.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if item.Kind == content.KindMediaGroup {
		group, err := s.mediaGroup(chatID, item)
		if err != nil {
			return err
		}
		if _, err := s.bot.SendMediaGroup(group); err != nil {
			return fmt.Errorf("send media group: %w", err)
		}
		return nil
	}

	msg, err := s.chattable(chatID, item, opts)
	if err != nil {
		return err
	}
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send %s: %w", item.Kind, err)
	}
	return nil
}

func (s *Sender) file(ref string) tgbotapi.RequestFileData {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tgbotapi.FileURL(ref)
	}
	if s.mediaDir != "" {
		p := filepath.Join(s.mediaDir, filepath.Clean("/"+ref))
		if _, err := os.Stat(p); err == nil {
			return tgbotapi.FilePath(p)
		}
	}
	return tgbotapi.FileID(ref)
}

func markup(opts quest.SendOptions) any {
	switch {
	case len(opts.Keyboard) > 0:
		var rows [][]tgbotapi.KeyboardButton
		for _, label := range opts.Keyboard {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(label)))
		}
		kb := tgbotapi.NewReplyKeyboard(rows...)
		kb.ResizeKeyboard = true
		return kb
	case opts.RemoveKeyboard:
		return tgbotapi.NewRemoveKeyboard(false)
	default:
		return nil
	}
}

func (s *Sender) chattable(chatID int64, item content.Item, opts quest.SendOptions) (tgbotapi.Chattable, error) {
	rm := markup(opts)
	switch item.Kind {
	case content.KindText:
		m := tgbotapi.NewMessage(chatID, item.Text)
		m.ReplyMarkup = rm
		return m, nil
	case content.KindPhoto:
		m := tgbotapi.NewPhoto(chatID, s.file(item.FileID))
		m.Caption = item.Caption
		m.ReplyMarkup = rm
		return m, nil
	case content.KindLocation:
		m := tgbotapi.NewLocation(chatID, item.Lat, item.Lng)
		m.ReplyMarkup = rm
		return m, nil
	case content.KindAudio:
		m := tgbotapi.NewAudio(chatID, s.file(item.FileID))
		m.Caption = item.Caption
		m.ReplyMarkup = rm
		return m, nil
	case content.KindDocument:
		m := tgbotapi.NewDocument(chatID, s.file(item.FileID))
		m.Caption = item.Caption
		m.ReplyMarkup = rm
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported item type %q", item.Kind)
	}
}

func (s *Sender) mediaGroup(chatID int64, item content.Item) (tgbotapi.MediaGroupConfig, error) {
	media := make([]any, 0, len(item.Media))
	for _, m := range item.Media {
		switch m.Kind {
		case content.KindPhoto:
			p := tgbotapi.NewInputMediaPhoto(s.file(m.FileID))
			p.Caption = m.Caption
			media = append(media, p)
		case content.KindAudio:
			a := tgbotapi.NewInputMediaAudio(s.file(m.FileID))
			a.Caption = m.Caption
			media = append(media, a)
		case content.KindDocument:
			d := tgbotapi.NewInputMediaDocument(s.file(m.FileID))
			d.Caption = m.Caption
			media = append(media, d)
		default:
			return tgbotapi.MediaGroupConfig{}, fmt.Errorf("unsupported media group entry %q", m.Kind)
		}
	}
	return tgbotapi.NewMediaGroup(chatID, media), nil
}
