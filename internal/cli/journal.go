package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/prevail/internal/journal"
)

// JournalEntry is the output form of one journal command.
type JournalEntry struct {
	Seq        int64  `json:"seq"`
	ID         string `json:"id"`
	Session    string `json:"session"`
	Kind       string `json:"kind"`
	EntityType string `json:"entity_type"`
	ExecutedAt string `json:"executed_at"`
	Status     string `json:"status"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// NewJournalCommand creates the journal command group.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect, verify and compact the command journal",
	}
	cmd.AddCommand(newJournalListCommand(rootOpts))
	cmd.AddCommand(newJournalVerifyCommand(rootOpts))
	cmd.AddCommand(newJournalCompactCommand(rootOpts))
	return cmd
}

func newJournalListCommand(rootOpts *RootOptions) *cobra.Command {
	var after, limit int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal commands with their outcomes",
		Example: `  prevail journal list --data-dir ./data
  prevail journal list --after 100 --limit 20 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return usageError("--limit must not be negative")
			}
			j, err := openJournal(rootOpts.Config)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.ReadAfter(cmd.Context(), after)
			if err != nil {
				return failure(CodeJournal, "failed to read journal", err)
			}
			rootOpts.formatter(cmd).VerboseLog("read %d command(s) after seq %d", len(entries), after)
			if limit > 0 && int64(len(entries)) > limit {
				entries = entries[:limit]
			}

			out := make([]JournalEntry, 0, len(entries))
			for _, e := range entries {
				out = append(out, journalEntry(e))
			}
			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(out)
			}
			writeJournalTable(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().Int64Var(&after, "after", 0, "list commands with seq greater than this")
	cmd.Flags().Int64Var(&limit, "limit", 0, "maximum number of commands (0 for all)")
	return cmd
}

func journalEntry(e journal.Entry) JournalEntry {
	out := JournalEntry{
		Seq:        e.Seq,
		ID:         e.ID,
		Session:    e.Session,
		Kind:       e.Kind,
		EntityType: e.EntityType,
		ExecutedAt: e.ExecutedAt.UTC().Format(time.RFC3339),
		Status:     "pending",
	}
	if e.Outcome != nil {
		out.Status = e.Outcome.Status
		out.Message = e.Outcome.Message
		if out.Status == journal.StatusError {
			out.Code = string(outcomeCode(out.Message))
		}
	}
	return out
}

const journalRow = "%-6s %-7s %-12s %-8s %-21s %s\n"

func writeJournalTable(w io.Writer, entries []JournalEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "journal is empty")
		return
	}
	fmt.Fprintf(w, journalRow, "SEQ", "KIND", "TYPE", "STATUS", "EXECUTED AT", "ID")
	for _, e := range entries {
		id := e.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Fprintf(w, journalRow, fmt.Sprint(e.Seq), e.Kind, e.EntityType, e.Status, e.ExecutedAt, id)
		if e.Message != "" {
			fmt.Fprintf(w, "       %s\n", e.Message)
		}
	}
}

func newJournalVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check journal integrity and command ids",
		Long: `Verify runs the SQLite integrity check, recomputes every command id
from its content, and reports seq gaps and commands without an outcome.

Exit codes:
  0 - journal is consistent
  1 - problems were found
  2 - command error (missing journal, etc.)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(rootOpts.Config)
			if err != nil {
				return err
			}
			defer j.Close()

			problems, err := j.Verify(cmd.Context())
			if err != nil {
				return failure(CodeJournal, "failed to verify journal", err)
			}
			formatter := rootOpts.formatter(cmd)
			if len(problems) == 0 {
				return formatter.Success("journal OK")
			}

			lines := make([]string, len(problems))
			for i, p := range problems {
				lines[i] = p.String()
			}
			if rootOpts.Format != "json" {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%d problem(s) found:\n", len(problems))
				for _, line := range lines {
					fmt.Fprintf(w, "  %s\n", line)
				}
			}
			return &ExitError{
				Exit:    ExitFailure,
				Code:    CodeJournalProblems,
				Message: fmt.Sprintf("%d problem(s) found", len(problems)),
				Details: lines,
			}
		},
	}
}

func newJournalCompactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Drop commands covered by the latest snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(rootOpts.Config)
			if err != nil {
				return err
			}
			defer j.Close()

			removed, err := j.Compact(cmd.Context())
			if err != nil {
				return failure(CodeJournal, "failed to compact journal", err)
			}
			rootOpts.Logger.Info("journal compacted", "data_dir", rootOpts.Config.DataDir, "removed", removed)
			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(map[string]int64{"removed": removed})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d command(s)\n", removed)
			return nil
		},
	}
}
