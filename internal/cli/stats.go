package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show participation statistics from the progress database",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
	cmd.Flags().Int("days", 7, "Days of finished-per-day history")
	cmd.Flags().Bool("json", false, "Print JSON")
	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	asJSON, _ := cmd.Flags().GetBool("json")
	if days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := storage.NewSQLite(cfg.DBPath, cfg.SkipBudget)
	if err != nil {
		return err
	}
	defer db.Close()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	st, err := db.Stats(cmd.Context(), today.AddDate(0, 0, -(days - 1)))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		b, _ := json.MarshalIndent(st, "", "  ")
		fmt.Fprintln(out, string(b))
		return nil
	}
	fmt.Fprintln(out, quest.FormatStats(st))
	return nil
}
