package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/quest-engine/internal/archive"
	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/report"
)

func init() {
	cmd := &cobra.Command{
		Use:   "report <started|finished|feedback>",
		Short: "Export archived participants or feedback",
		Long:  "List archive entries newest first and render them as a table, CSV or HTML. --publish also stores the HTML under reports/ in the archive.",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}
	cmd.Flags().StringP("format", "f", "table", "Output format: table, csv or html")
	cmd.Flags().StringP("out", "o", "", "Write to file instead of stdout")
	cmd.Flags().Bool("publish", false, "Store the HTML report in the archive")
	RootCmd.AddCommand(cmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	kind, err := report.ParseKind(args[0])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("out")
	publish, _ := cmd.Flags().GetBool("publish")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var store archive.Store
	if cfg.Archive.Backend == config.ArchiveRedis {
		c, err := connectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		store, err = archive.Open(ctx, cfg.Archive, c.GetRedisClient())
		if err != nil {
			return err
		}
	} else if store, err = archive.Open(ctx, cfg.Archive, nil); err != nil {
		return err
	}

	r, skipped, err := report.Build(ctx, store, kind, time.Now())
	if err != nil {
		return err
	}
	if skipped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d unreadable entries skipped\n", skipped)
	}

	var w io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "csv":
		err = report.WriteCSV(w, r)
	case "html":
		err = report.WriteHTML(w, r)
	case "table":
		_, err = fmt.Fprintln(w, report.Table(r))
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}

	if publish {
		key, err := report.Publish(ctx, store, r)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "published %s\n", key)
	}
	return nil
}
