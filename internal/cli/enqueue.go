package cli

import (
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

func init() {
	cmd := &cobra.Command{
		Use:   "enqueue <text>",
		Short: "Queue a message for the worker as if a user sent it",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEnqueue,
	}
	cmd.Flags().StringP("user", "u", "", "User id (required)")
	cmd.Flags().String("chat", "", "Chat id (default: user id)")
	cmd.Flags().String("channel", string(quest.ChannelWeb), "Channel: web or telegram")
	_ = cmd.MarkFlagRequired("user")
	RootCmd.AddCommand(cmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	user, _ := cmd.Flags().GetString("user")
	chat, _ := cmd.Flags().GetString("chat")
	channel, _ := cmd.Flags().GetString("channel")
	if chat == "" {
		chat = user
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := connectRedis(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	req, err := queue.NewInboundQueue(c).Enqueue(cmd.Context(), quest.Inbound{
		Channel:   quest.Channel(channel),
		UserID:    user,
		ChatID:    chat,
		MessageID: ulid.Make().String(),
		Text:      strings.Join(args, " "),
		User:      quest.Identity{ID: user},
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), req.RequestID)
	return nil
}
