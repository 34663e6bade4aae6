package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

func init() {
	cmd := &cobra.Command{
		Use:   "validate [catalog.yaml]",
		Short: "Check a quest catalog",
		Long:  "Load the catalog, compile every answer condition and build the state table. Exits non-zero on the first problem.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}
	cmd.Flags().Bool("states", false, "List every reachable state tag")
	RootCmd.AddCommand(cmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := catalogPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.CatalogPath
	}
	listStates, _ := cmd.Flags().GetBool("states")

	catalog, err := content.Load(path)
	if err != nil {
		return err
	}
	store := storage.NewMemoryStore(quest.DefaultSkipBudget)
	m, err := quest.New(quest.Config{
		Catalog:  catalog,
		Sessions: store,
		Progress: store,
		Sender:   nopSender{},
		Logger:   quietLogger(),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %q is valid\n", path, catalog.Title)
	fmt.Fprintf(out, "  intro stages: %d\n", len(catalog.Intro))
	fmt.Fprintf(out, "  waypoints:    %d\n", len(catalog.Waypoints))
	states := m.States()
	fmt.Fprintf(out, "  states:       %d\n", len(states))
	if listStates {
		for _, s := range states {
			fmt.Fprintf(out, "    %s\n", s)
		}
	}
	return nil
}

type nopSender struct{}

func (nopSender) Send(context.Context, quest.Chat, content.Item, quest.SendOptions) error {
	return nil
}
