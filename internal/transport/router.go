// Package transport routes outbound content to the channel a chat lives on.
package transport

import (
	"context"
	"fmt"

	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// Router is a quest.Sender that dispatches by chat channel.
type Router map[quest.Channel]quest.Sender

var _ quest.Sender = Router(nil)

func (r Router) Send(ctx context.Context, chat quest.Chat, item content.Item, opts quest.SendOptions) error {
	s, ok := r[chat.Channel]
	if !ok {
		return fmt.Errorf("no sender for channel %q", chat.Channel)
	}
	return s.Send(ctx, chat, item, opts)
}
