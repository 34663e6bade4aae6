package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// outboundMsg carries one item from the machine to the UI.
type outboundMsg quest.Outbound

// channelSender is the console's quest.Sender. Items are handed to the
// bubbletea program through a buffered channel.
type channelSender struct {
	out chan outboundMsg
}

func newChannelSender(buffer int) *channelSender {
	return &channelSender{out: make(chan outboundMsg, buffer)}
}

func (s *channelSender) Send(ctx context.Context, chat quest.Chat, item content.Item, opts quest.SendOptions) error {
	select {
	case s.out <- outboundMsg{Item: item, Options: opts}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// renderItem turns an item into plain transcript text. Media is shown as a
// bracketed placeholder since a terminal cannot display it.
func renderItem(item content.Item) string {
	switch item.Kind {
	case content.KindText:
		return item.Text
	case content.KindPhoto:
		return withCaption("[photo: "+item.FileID+"]", item.Caption)
	case content.KindDocument:
		return withCaption("[document: "+item.FileID+"]", item.Caption)
	case content.KindAudio:
		return "[audio: " + item.FileID + "]"
	case content.KindLocation:
		return fmt.Sprintf("[location: %.5f, %.5f]", item.Lat, item.Lng)
	case content.KindMediaGroup:
		parts := make([]string, 0, len(item.Media))
		for _, m := range item.Media {
			parts = append(parts, renderItem(m))
		}
		return strings.Join(parts, "\n")
	default:
		return "[" + string(item.Kind) + "]"
	}
}

func withCaption(s, caption string) string {
	if caption == "" {
		return s
	}
	return s + "\n" + caption
}
