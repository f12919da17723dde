package cli

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/prevail/internal/journal"
	"github.com/roach88/prevail/internal/prevalence"
	"github.com/roach88/prevail/internal/search"
)

// StatsReport is the output of the stats command.
type StatsReport struct {
	DataDir         string           `json:"data_dir"`
	Commands        int64            `json:"commands"`
	Succeeded       int64            `json:"succeeded"`
	Failed          int64            `json:"failed"`
	Pending         int64            `json:"pending"`
	FirstSeq        int64            `json:"first_seq"`
	LastSeq         int64            `json:"last_seq"`
	Snapshots       int64            `json:"snapshots"`
	SnapshotSeq     int64            `json:"snapshot_seq"`
	Failures        map[string]int64 `json:"failures,omitempty"`
	Entities        map[string]int   `json:"entities,omitempty"`
	SearchDocuments int              `json:"search_documents"`
}

// NewStatsCommand creates the stats command. Entity counts come from the
// latest snapshot file; commands journaled after it are not counted.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show journal, snapshot and search statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			j, err := openJournal(cfg)
			if err != nil {
				return err
			}
			defer j.Close()

			st, err := j.Stats(cmd.Context())
			if err != nil {
				return failure(CodeJournal, "failed to read journal stats", err)
			}
			report := StatsReport{
				DataDir:   cfg.DataDir,
				Commands:  st.Commands,
				Succeeded: st.Succeeded,
				Failed:    st.Failed,
				Pending:   st.Pending,
				FirstSeq:  st.FirstSeq,
				LastSeq:   st.LastSeq,
				Snapshots: st.Snapshots,
			}
			if st.Failed > 0 {
				entries, err := j.ReadAfter(cmd.Context(), 0)
				if err != nil {
					return failure(CodeJournal, "failed to read journal", err)
				}
				report.Failures = failuresByCode(entries)
			}

			store, err := openSnapshots(cfg)
			if err != nil {
				return err
			}
			latest, ok, err := store.Latest()
			if err != nil {
				return failure(CodeSnapshot, "failed to list snapshot files", err)
			}
			if ok {
				seq, state, _, err := store.Read(latest.Path)
				if err != nil {
					return failure(CodeSnapshot, "failed to read snapshot", err)
				}
				report.SnapshotSeq = seq
				report.Entities = make(map[string]int, len(state.Types))
				for _, ts := range state.Types {
					report.Entities[ts.Name] = len(ts.Records)
				}
			}

			if cfg.Search.Enabled {
				svc, err := search.OpenService(filepath.Join(cfg.DataDir, prevalence.SearchFile), cfg.Search.BatchSize, search.WithLogger(rootOpts.Logger))
				if err != nil {
					return failure(CodeSearch, "failed to open search index", err)
				}
				report.SearchDocuments = svc.Count()
			}

			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(report)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "data dir:         %s\n", report.DataDir)
			fmt.Fprintf(w, "commands:         %d (ok %d, error %d, pending %d)\n", report.Commands, report.Succeeded, report.Failed, report.Pending)
			for _, code := range slices.Sorted(maps.Keys(report.Failures)) {
				fmt.Fprintf(w, "  %-24s %d\n", code, report.Failures[code])
			}
			fmt.Fprintf(w, "seq range:        %d..%d\n", report.FirstSeq, report.LastSeq)
			fmt.Fprintf(w, "snapshots:        %d\n", report.Snapshots)
			if ok {
				fmt.Fprintf(w, "entities at seq %d:\n", report.SnapshotSeq)
				types := make([]string, 0, len(report.Entities))
				for typ := range report.Entities {
					types = append(types, typ)
				}
				slices.Sort(types)
				for _, typ := range types {
					fmt.Fprintf(w, "  %-15s %d\n", typ, report.Entities[typ])
				}
			}
			fmt.Fprintf(w, "search documents: %d\n", report.SearchDocuments)
			return nil
		},
	}
}

// failuresByCode counts failed commands by the engine error code of their
// outcome.
func failuresByCode(entries []journal.Entry) map[string]int64 {
	out := make(map[string]int64)
	for _, e := range entries {
		if e.Outcome != nil && e.Outcome.Status == journal.StatusError {
			out[string(outcomeCode(e.Outcome.Message))]++
		}
	}
	return out
}
