package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entry is a command with its outcome, if one was written.
type Entry struct {
	Command
	Outcome *Outcome
}

// Failed reports whether the command is recorded as failed.
func (e Entry) Failed() bool {
	return e.Outcome != nil && e.Outcome.Status == StatusError
}

// Stats summarizes the journal.
type Stats struct {
	Commands  int64
	Succeeded int64
	Failed    int64
	Pending   int64
	Snapshots int64
	FirstSeq  int64
	LastSeq   int64
}

// ReadAfter returns the commands with seq greater than after, in seq order.
func (j *Journal) ReadAfter(ctx context.Context, after int64) ([]Entry, error) {
	return j.readEntries(ctx, `WHERE c.seq > ?`, after)
}

// ReadSession returns the commands written by one session, in seq order.
func (j *Journal) ReadSession(ctx context.Context, session string) ([]Entry, error) {
	return j.readEntries(ctx, `WHERE c.session = ?`, session)
}

func (j *Journal) readEntries(ctx context.Context, where string, arg any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT c.seq, c.id, c.session, c.kind, c.entity_type, c.executed_at, c.payload,
		       o.status, o.message
		FROM commands c
		LEFT JOIN outcomes o ON o.seq = c.seq
		`+where+`
		ORDER BY c.seq ASC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			executedAt int64
			status     sql.NullString
			message    sql.NullString
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Session, &e.Kind, &e.EntityType, &executedAt, &e.Payload, &status, &message); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		e.ExecutedAt = time.Unix(0, executedAt).UTC()
		if status.Valid {
			e.Outcome = &Outcome{Seq: e.Seq, Status: status.String, Message: message.String}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest seq used by a command or snapshot, so the
// sequence survives compaction.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM commands
			UNION ALL
			SELECT seq FROM snapshots
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// Stats returns counts over the journal.
func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := j.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN o.status = 'ok' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN o.status = 'error' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN o.seq IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(MIN(c.seq), 0)
		FROM commands c
		LEFT JOIN outcomes o ON o.seq = c.seq
	`).Scan(&st.Commands, &st.Succeeded, &st.Failed, &st.Pending, &st.FirstSeq)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&st.Snapshots); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	if st.LastSeq, err = j.LastSeq(ctx); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// LatestSnapshot returns the snapshot record with the highest seq.
func (j *Journal) LatestSnapshot(ctx context.Context) (Snapshot, bool, error) {
	var (
		snap    Snapshot
		takenAt int64
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT seq, path, serializer, taken_at FROM snapshots
		ORDER BY seq DESC LIMIT 1
	`).Scan(&snap.Seq, &snap.Path, &snap.Serializer, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("latest snapshot: %w", err)
	}
	snap.TakenAt = time.Unix(0, takenAt).UTC()
	return snap, true, nil
}

// ListSnapshots returns every snapshot record in seq order.
func (j *Journal) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT seq, path, serializer, taken_at FROM snapshots ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var (
			snap    Snapshot
			takenAt int64
		)
		if err := rows.Scan(&snap.Seq, &snap.Path, &snap.Serializer, &takenAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.TakenAt = time.Unix(0, takenAt).UTC()
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}
