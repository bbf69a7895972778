package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-autopilot/config"
	"github.com/becomeliminal/nim-autopilot/publisher"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print recently published activities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		j, err := publisher.OpenJournal(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()

		entries, err := j.Recent(context.Background(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No activities yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tCYCLE\tTXS\tSUMMARY")
		for _, e := range entries {
			cycleID := e.Activity.CycleID
			if len(cycleID) > 8 {
				cycleID = cycleID[:8]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				e.PublishedAt.Local().Format("2006-01-02 15:04:05"),
				e.PostType,
				cycleID,
				len(e.Activity.TxHashes),
				strings.ReplaceAll(e.Activity.Summary, "\n", " "),
			)
		}
		return w.Flush()
	},
}

func init() {
	journalCmd.Flags().Int("limit", 20, "number of activities to show")
}
