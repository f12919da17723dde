package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/prevail/internal/codec"
	"github.com/roach88/prevail/internal/config"
	"github.com/roach88/prevail/internal/journal"
	"github.com/roach88/prevail/internal/prevalence"
	"github.com/roach88/prevail/internal/snapshot"
)

// openJournal opens the journal of the configured data directory. A missing
// journal is a command error: the tooling never creates a data directory.
func openJournal(cfg config.Config) (*journal.Journal, error) {
	path := filepath.Join(cfg.DataDir, prevalence.JournalFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ExitError{Exit: ExitCommandError, Code: CodeNoJournal, Message: fmt.Sprintf("no journal at %s", path), Details: cfg.DataDir}
		}
		return nil, &ExitError{Exit: ExitCommandError, Code: CodeNoJournal, Message: "failed to stat journal", Details: cfg.DataDir, Err: err}
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, failure(CodeJournal, "failed to open journal", err)
	}
	return j, nil
}

func openSnapshots(cfg config.Config) (*snapshot.Store, error) {
	c, err := codec.Lookup(cfg.Serializer)
	if err != nil {
		return nil, &ExitError{Exit: ExitCommandError, Code: CodeInvalidConfig, Message: "invalid serializer", Err: err}
	}
	return snapshot.New(filepath.Join(cfg.DataDir, prevalence.SnapshotDir), c), nil
}
