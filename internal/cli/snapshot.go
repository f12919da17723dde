package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// SnapshotInfo is the output form of one snapshot record.
type SnapshotInfo struct {
	Seq        int64  `json:"seq"`
	File       string `json:"file"`
	Serializer string `json:"serializer"`
	TakenAt    string `json:"taken_at"`
	Size       int64  `json:"size"`
	Missing    bool   `json:"missing,omitempty"`
}

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect snapshots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded snapshots and their files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(rootOpts.Config)
			if err != nil {
				return err
			}
			defer j.Close()
			store, err := openSnapshots(rootOpts.Config)
			if err != nil {
				return err
			}

			records, err := j.ListSnapshots(cmd.Context())
			if err != nil {
				return failure(CodeJournal, "failed to list snapshots", err)
			}
			files, err := store.List()
			if err != nil {
				return failure(CodeSnapshot, "failed to list snapshot files", err)
			}
			sizes := make(map[int64]int64, len(files))
			for _, f := range files {
				sizes[f.Seq] = f.Size
			}

			out := make([]SnapshotInfo, 0, len(records))
			for _, r := range records {
				size, ok := sizes[r.Seq]
				out = append(out, SnapshotInfo{
					Seq:        r.Seq,
					File:       filepath.Base(r.Path),
					Serializer: r.Serializer,
					TakenAt:    r.TakenAt.UTC().Format(time.RFC3339),
					Size:       size,
					Missing:    !ok,
				})
			}

			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(out)
			}
			w := cmd.OutOrStdout()
			if len(out) == 0 {
				fmt.Fprintln(w, "no snapshots")
				return nil
			}
			const row = "%-6s %-10s %-21s %-10s %s\n"
			fmt.Fprintf(w, row, "SEQ", "SERIALIZER", "TAKEN AT", "SIZE", "FILE")
			for _, s := range out {
				size := fmt.Sprint(s.Size)
				if s.Missing {
					size = "missing"
				}
				fmt.Fprintf(w, row, fmt.Sprint(s.Seq), s.Serializer, s.TakenAt, size, s.File)
			}
			return nil
		},
	})
	return cmd
}
