package journal

import (
	"context"
	"fmt"

	"github.com/roach88/prevail/internal/wire"
)

// Problem is an inconsistency found by Verify.
type Problem struct {
	Seq     int64
	Message string
}

func (p Problem) String() string {
	if p.Seq == 0 {
		return p.Message
	}
	return fmt.Sprintf("seq %d: %s", p.Seq, p.Message)
}

// Verify checks database integrity, recomputes every command id, and looks
// for gaps in the seq order and for commands left without an outcome. Only
// the last command may legitimately lack one, after a crash.
func (j *Journal) Verify(ctx context.Context) ([]Problem, error) {
	var problems []Problem

	var integrity string
	if err := j.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&integrity); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if integrity != "ok" {
		problems = append(problems, Problem{Message: "integrity check: " + integrity})
	}

	entries, err := j.ReadAfter(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	for i, e := range entries {
		id, err := wire.CommandID(e.Seq, e.Kind, e.EntityType, e.ExecutedAt.UnixNano(), e.Payload)
		if err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
		if id != e.ID {
			problems = append(problems, Problem{Seq: e.Seq, Message: "content does not match command id"})
		}
		if i > 0 && e.Seq != entries[i-1].Seq+1 {
			problems = append(problems, Problem{Seq: e.Seq, Message: fmt.Sprintf("gap after seq %d", entries[i-1].Seq)})
		}
		if e.Outcome == nil && i < len(entries)-1 {
			problems = append(problems, Problem{Seq: e.Seq, Message: "no outcome"})
		}
	}
	return problems, nil
}
