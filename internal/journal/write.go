package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/prevail/internal/wire"
)

// Command is one journaled state change.
type Command struct {
	Seq        int64
	ID         string
	Session    string
	Kind       string
	EntityType string
	ExecutedAt time.Time
	Payload    []byte
}

// NewCommand builds a command and computes its content address.
func NewCommand(seq int64, session, kind, entityType string, executedAt time.Time, payload []byte) (Command, error) {
	id, err := wire.CommandID(seq, kind, entityType, executedAt.UnixNano(), payload)
	if err != nil {
		return Command{}, err
	}
	return Command{
		Seq:        seq,
		ID:         id,
		Session:    session,
		Kind:       kind,
		EntityType: entityType,
		ExecutedAt: executedAt,
		Payload:    payload,
	}, nil
}

// Outcome records whether a command was applied.
type Outcome struct {
	Seq     int64
	Status  string
	Message string
}

// Snapshot is the record of a snapshot file covering every command up to
// and including Seq.
type Snapshot struct {
	Seq        int64
	Path       string
	Serializer string
	TakenAt    time.Time
}

// WriteCommand appends a command. Reusing a seq is an error.
func (j *Journal) WriteCommand(ctx context.Context, cmd Command) error {
	if cmd.ID == "" {
		return errors.New("write command: missing id")
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO commands
		(seq, id, session, kind, entity_type, executed_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		cmd.Seq,
		cmd.ID,
		cmd.Session,
		cmd.Kind,
		cmd.EntityType,
		cmd.ExecutedAt.UnixNano(),
		cmd.Payload,
	)
	if err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// WriteOutcome records the outcome of a command. The first outcome written
// for a seq wins; later writes are ignored.
func (j *Journal) WriteOutcome(ctx context.Context, out Outcome) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO outcomes (seq, status, message)
		VALUES (?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`, out.Seq, out.Status, out.Message)
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return nil
}

// RecordSnapshot stores a snapshot record, replacing any record at the same seq.
func (j *Journal) RecordSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO snapshots (seq, path, serializer, taken_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(seq) DO UPDATE SET
			path = excluded.path,
			serializer = excluded.serializer,
			taken_at = excluded.taken_at
	`, snap.Seq, snap.Path, snap.Serializer, snap.TakenAt.UnixNano())
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot removes the snapshot record at seq.
func (j *Journal) DeleteSnapshot(ctx context.Context, seq int64) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM snapshots WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Compact deletes the commands covered by the latest snapshot, with their
// outcomes, and returns how many were removed.
func (j *Journal) Compact(ctx context.Context) (int64, error) {
	snap, ok, err := j.LatestSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}
	if !ok {
		return 0, nil
	}
	res, err := j.db.ExecContext(ctx, `DELETE FROM commands WHERE seq <= ?`, snap.Seq)
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}
	return n, nil
}
