// Package prevalence is the durability substrate of the store: it journals
// every mutating command before applying it to the in-memory engine,
// snapshots the engine state, and rebuilds it on start from the latest
// snapshot plus the journal commands that follow.
//
// A System has a single writer. Save and Delete take the write lock for
// the whole journal-apply-outcome sequence; queries take the read lock.
package prevalence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roach88/prevail/internal/codec"
	"github.com/roach88/prevail/internal/config"
	"github.com/roach88/prevail/internal/engine"
	"github.com/roach88/prevail/internal/journal"
	"github.com/roach88/prevail/internal/schema"
	"github.com/roach88/prevail/internal/search"
	"github.com/roach88/prevail/internal/snapshot"
	"github.com/roach88/prevail/internal/wire"
)

// ErrClosed is returned by every operation on a closed System.
var ErrClosed = errors.New("prevalent system is closed")

// Layout of the data directory.
const (
	JournalFile = "journal.db"
	SnapshotDir = "snapshots"
	SearchFile  = "search/index.msgpack"
)

// System is an opened prevalent system.
type System struct {
	mu     sync.RWMutex
	closed bool

	cfg       config.Config
	reg       *schema.Registry
	engine    *engine.Engine
	journal   *journal.Journal
	snapshots *snapshot.Store
	search    *search.Service
	codec     codec.Codec
	seq       *Sequence
	clock     Clock
	session   string
	logger    *slog.Logger
}

type options struct {
	clock    Clock
	sessions SessionGenerator
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithClock sets the execution time source.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithSessionGenerator sets the session id source.
func WithSessionGenerator(g SessionGenerator) Option {
	return func(o *options) { o.sessions = g }
}

// WithLogger sets the logger of the System and its engine.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open opens the system stored under cfg.DataDir and recovers its state.
func Open(ctx context.Context, cfg config.Config, reg *schema.Registry, opts ...Option) (*System, error) {
	o := options{clock: systemClock{}, sessions: UUIDv7Generator{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := codec.Lookup(cfg.Serializer)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	j, err := journal.Open(filepath.Join(cfg.DataDir, JournalFile))
	if err != nil {
		return nil, err
	}
	s := &System{
		cfg:       cfg,
		reg:       reg,
		journal:   j,
		snapshots: snapshot.New(filepath.Join(cfg.DataDir, SnapshotDir), c),
		codec:     c,
		clock:     o.clock,
		session:   o.sessions.Generate(),
		logger:    o.logger,
	}

	engineOpts := []engine.Option{engine.WithLogger(o.logger)}
	if cfg.Search.Enabled {
		svc, err := search.OpenService(filepath.Join(cfg.DataDir, SearchFile), cfg.Search.BatchSize, search.WithLogger(o.logger))
		if err != nil {
			j.Close()
			return nil, err
		}
		s.search = svc
		engineOpts = append(engineOpts, engine.WithSearch(svc))
	}
	if s.engine, err = engine.New(reg, engineOpts...); err != nil {
		j.Close()
		return nil, err
	}

	if err := s.recover(ctx); err != nil {
		j.Close()
		return nil, err
	}
	return s, nil
}

func (s *System) recover(ctx context.Context) error {
	var from int64
	latest, ok, err := s.snapshots.Latest()
	if err != nil {
		return err
	}
	if ok {
		seq, st, used, err := s.snapshots.Read(latest.Path)
		if err != nil {
			return err
		}
		if err := s.engine.Restore(st, used); err != nil {
			return fmt.Errorf("restore snapshot %s: %w", filepath.Base(latest.Path), err)
		}
		from = seq
	}

	entries, err := s.journal.ReadAfter(ctx, from)
	if err != nil {
		return err
	}
	replayed := 0
	for _, e := range entries {
		if e.Failed() {
			continue
		}
		applyErr := s.apply(e.Command)
		if applyErr != nil {
			s.logger.Warn("replayed command failed", "seq", e.Seq, "kind", e.Kind, "type", e.EntityType, "error", applyErr)
		} else {
			replayed++
		}
		if e.Outcome == nil {
			if err := s.journal.WriteOutcome(ctx, outcome(e.Seq, applyErr)); err != nil {
				return err
			}
		}
	}

	last, err := s.journal.LastSeq(ctx)
	if err != nil {
		return err
	}
	s.seq = NewSequence(max(last, from))

	if s.search != nil && (replayed > 0 || s.search.Count() == 0) {
		s.search.Clear()
		n := s.engine.Reindex()
		if err := s.search.Commit(); err != nil {
			s.logger.Warn("search commit failed", "error", err)
		}
		s.logger.Debug("search index rebuilt", "documents", n)
	}

	s.logger.Info("prevalent system recovered",
		"data_dir", s.cfg.DataDir,
		"snapshot_seq", from,
		"replayed", replayed,
		"seq", s.seq.Current(),
		"session", s.session,
	)
	return nil
}

// apply executes a journaled command against the engine.
func (s *System) apply(cmd journal.Command) error {
	switch cmd.Kind {
	case journal.KindSave:
		doc, c, err := wire.Unmarshal(cmd.Payload)
		if err != nil {
			return fmt.Errorf("decode save payload: %w", err)
		}
		root, err := wire.DecodeGraph(s.reg, c, doc)
		if err != nil {
			return fmt.Errorf("decode save payload: %w", err)
		}
		_, err = s.engine.Save(root, cmd.ExecutedAt)
		return err
	case journal.KindDelete:
		t, err := wire.UnmarshalTarget(cmd.Payload)
		if err != nil {
			return fmt.Errorf("decode delete payload: %w", err)
		}
		return s.engine.DeleteByID(t.Type, schema.ID(t.ID), cmd.ExecutedAt)
	default:
		return fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

func outcome(seq int64, err error) journal.Outcome {
	if err != nil {
		return journal.Outcome{Seq: seq, Status: journal.StatusError, Message: err.Error()}
	}
	return journal.Outcome{Seq: seq, Status: journal.StatusOK}
}

// Save journals and applies a save of the graph reachable from ent. On
// success ent and every newly attached entity are persistent.
func (s *System) Save(ctx context.Context, ent schema.Entity) (schema.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	sc, err := s.reg.SchemaOf(ent)
	if err != nil {
		return 0, err
	}
	doc, err := wire.EncodeGraph(s.reg, s.codec, ent)
	if err != nil {
		return 0, fmt.Errorf("encode save: %w", err)
	}
	payload, err := wire.Marshal(s.codec, doc)
	if err != nil {
		return 0, fmt.Errorf("encode save: %w", err)
	}

	var id schema.ID
	err = s.execute(ctx, journal.KindSave, sc.Name(), payload, func(at time.Time) error {
		var err error
		id, err = s.engine.Save(ent, at)
		return err
	})
	return id, err
}

// Delete journals and applies the deletion of a persistent entity. On
// success ent is transient again.
func (s *System) Delete(ctx context.Context, ent schema.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	sc, err := s.reg.SchemaOf(ent)
	if err != nil {
		return err
	}
	l := schema.LifecycleOf(ent)
	if !l.Persistent {
		// rejected by the engine without touching state; nothing to journal
		return s.engine.Delete(ent, s.clock.Now())
	}
	return s.deleteByID(ctx, sc.Name(), l.ID, func(at time.Time) error {
		return s.engine.Delete(ent, at)
	})
}

// DeleteByID journals and applies the deletion of a stored entity.
func (s *System) DeleteByID(ctx context.Context, typ string, id schema.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.deleteByID(ctx, typ, id, func(at time.Time) error {
		return s.engine.DeleteByID(typ, id, at)
	})
}

func (s *System) deleteByID(ctx context.Context, typ string, id schema.ID, fn func(time.Time) error) error {
	payload, err := wire.MarshalTarget(s.codec, wire.Target{Type: typ, ID: int64(id)})
	if err != nil {
		return fmt.Errorf("encode delete: %w", err)
	}
	return s.execute(ctx, journal.KindDelete, typ, payload, fn)
}

// execute writes the command, applies it and records the outcome. The
// caller holds the write lock.
func (s *System) execute(ctx context.Context, kind, typ string, payload []byte, fn func(time.Time) error) error {
	seq := s.seq.Next()
	at := s.clock.Now()
	cmd, err := journal.NewCommand(seq, s.session, kind, typ, at, payload)
	if err != nil {
		s.seq.Rewind(seq)
		return err
	}
	if err := s.journal.WriteCommand(ctx, cmd); err != nil {
		s.seq.Rewind(seq)
		return err
	}

	applyErr := fn(at)
	if err := s.journal.WriteOutcome(ctx, outcome(seq, applyErr)); err != nil {
		// replay treats a missing outcome as "apply", which matches the
		// engine whenever applyErr is nil
		s.logger.Error("failed to record outcome", "seq", seq, "error", err)
	}
	if applyErr != nil {
		s.logger.Debug("command rejected", "seq", seq, "kind", kind, "type", typ, "error", applyErr)
	}
	return applyErr
}

// Snapshot writes the current state to a snapshot file, records it in the
// journal and prunes old snapshots.
func (s *System) Snapshot(ctx context.Context) (journal.Snapshot, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return journal.Snapshot{}, ErrClosed
	}
	st, err := s.engine.Export(s.codec)
	seq := s.seq.Current()
	s.mu.RUnlock()
	if err != nil {
		return journal.Snapshot{}, err
	}

	path, err := s.snapshots.Write(seq, st)
	if err != nil {
		return journal.Snapshot{}, err
	}
	rec := journal.Snapshot{Seq: seq, Path: path, Serializer: s.codec.Name(), TakenAt: s.clock.Now()}
	if err := s.journal.RecordSnapshot(ctx, rec); err != nil {
		return journal.Snapshot{}, err
	}

	pruned, err := s.snapshots.Prune(s.cfg.Snapshot.Retain)
	if err != nil {
		s.logger.Warn("snapshot pruning failed", "error", err)
	}
	for _, f := range pruned {
		if err := s.journal.DeleteSnapshot(ctx, f.Seq); err != nil {
			s.logger.Warn("snapshot record removal failed", "seq", f.Seq, "error", err)
		}
	}
	if s.search != nil {
		if err := s.search.Commit(); err != nil {
			s.logger.Warn("search commit failed", "error", err)
		}
	}
	s.logger.Info("snapshot taken", "seq", seq, "path", path, "pruned", len(pruned))
	return rec, nil
}

// Run takes a snapshot every snapshot.interval until ctx is cancelled.
func (s *System) Run(ctx context.Context) error {
	s.logger.Info("snapshot scheduler starting", "interval", s.cfg.Snapshot.Interval)
	ticker := time.NewTicker(s.cfg.Snapshot.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("snapshot scheduler stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Snapshot(ctx); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				s.logger.Error("scheduled snapshot failed", "error", err)
			}
		}
	}
}

// Close commits the search index and closes the journal.
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.search != nil {
		errs = append(errs, s.search.Close())
	}
	errs = append(errs, s.journal.Close())
	return errors.Join(errs...)
}

// Session returns the session id stamped on commands of this System.
func (s *System) Session() string { return s.session }

// Registry returns the schema registry.
func (s *System) Registry() *schema.Registry { return s.reg }

// Seq returns the last journal seq handed out.
func (s *System) Seq() int64 { return s.seq.Current() }
