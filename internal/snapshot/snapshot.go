// Package snapshot writes and reads engine state images. A snapshot file
// is named after the last journal seq it covers, so lexical order is seq
// order.
package snapshot

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/prevail/internal/codec"
	"github.com/roach88/prevail/internal/engine"
)

const suffix = ".snapshot"

// File describes a snapshot on disk.
type File struct {
	Seq  int64
	Path string
	Size int64
}

type image struct {
	Seq   int64
	State *engine.State
}

// Store manages the snapshot files of one directory.
type Store struct {
	dir   string
	codec codec.Codec
}

// New returns a store writing with c into dir.
func New(dir string, c codec.Codec) *Store {
	return &Store{dir: dir, codec: c}
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string { return s.dir }

// FileName returns the file name of the snapshot at seq.
func FileName(seq int64) string {
	return fmt.Sprintf("%019d%s", seq, suffix)
}

// Write stores st as the snapshot at seq. The file appears atomically.
func (s *Store) Write(seq int64, st *engine.State) (string, error) {
	data, err := codec.Encode(s.codec, image{Seq: seq, State: st})
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(s.dir, FileName(seq))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// Read loads a snapshot file. It returns the covered seq, the state, and
// the codec the entity bodies were written with.
func (s *Store) Read(path string) (int64, *engine.State, codec.Codec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read snapshot: %w", err)
	}
	var img image
	c, err := codec.Decode(data, &img)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read snapshot %s: %w", filepath.Base(path), err)
	}
	if img.State == nil {
		return 0, nil, nil, fmt.Errorf("read snapshot %s: no state", filepath.Base(path))
	}
	return img.Seq, img.State, c, nil
}

// List returns the snapshot files in seq order. A missing directory has none.
func (s *Store) List() ([]File, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var files []File
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		seq, err := strconv.ParseInt(strings.TrimSuffix(name, suffix), 10, 64)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		files = append(files, File{Seq: seq, Path: filepath.Join(s.dir, name), Size: info.Size()})
	}
	slices.SortFunc(files, func(a, b File) int { return cmp.Compare(a.Seq, b.Seq) })
	return files, nil
}

// Latest returns the snapshot with the highest seq.
func (s *Store) Latest() (File, bool, error) {
	files, err := s.List()
	if err != nil || len(files) == 0 {
		return File{}, false, err
	}
	return files[len(files)-1], true, nil
}

// Prune deletes all but the newest retain snapshots and returns the
// removed files. A retain below one keeps one.
func (s *Store) Prune(retain int) ([]File, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	retain = max(retain, 1)
	if len(files) <= retain {
		return nil, nil
	}
	removed := files[:len(files)-retain]
	for _, f := range removed {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("prune snapshot: %w", err)
		}
	}
	return removed, nil
}
