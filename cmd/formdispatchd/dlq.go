package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/id"
)

func dlqCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dlq", Short: "Inspect and replay failed dispatches"}
	cmd.AddCommand(dlqListCmd())
	cmd.AddCommand(dlqReplayCmd())
	cmd.AddCommand(dlqPurgeCmd())
	return cmd
}

func dlqListCmd() *cobra.Command {
	var (
		opts   dlq.ListOpts
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-letter entries, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg)
			ctx := commandContext(cmd)

			s, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.ListDLQ(ctx, opts)
			if err != nil {
				return err
			}
			if asJSON {
				if entries == nil {
					entries = []*dlq.Entry{}
				}
				return printJSON(cmd.OutOrStdout(), entries)
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum entries to list")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "entries to skip")
	cmd.Flags().StringVar(&opts.FormID, "form", "", "only entries of this form")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func dlqPurgeCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete dead-letter entries older than a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				olderThan = cfg.DLQ.Retention
			}
			logger := newLogger(os.Stderr, cfg)
			ctx := commandContext(cmd)

			s, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.PurgeDLQ(ctx, time.Now().UTC().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "minimum entry age (defaults to dlq.retention)")
	return cmd
}

// printEntries renders entries as a table.
func printEntries(w io.Writer, entries []*dlq.Entry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Response", "Form", "Jobs", "Attempts", "Failed At", "Replayed At", "Error"})
	for _, e := range entries {
		replayed := ""
		if e.ReplayedAt != nil {
			replayed = e.ReplayedAt.Format(time.RFC3339)
		}
		tw.AppendRow(table.Row{
			e.ID.String(), e.ResponseID.String(), e.FormID, strings.Join(e.Jobs, ","),
			e.Attempts, e.FailedAt.Format(time.RFC3339), replayed, e.Error,
		})
	}
	tw.Render()
}

func dlqReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <entry-id>",
		Short: "Dispatch the response of a dead-letter entry again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := id.ParseDLQID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg)
			ctx := commandContext(cmd)

			eng, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stopEngine(eng, cfg, logger)

			entry, err := eng.DLQService().Replay(ctx, entryID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
