// Package engine implements the prevalent object store: the constraint
// engine, the object-graph codec and the facade the substrate calls.
//
// The engine keeps every entity as a flat copy in the per-type tables of
// package storage. Saving decomposes a caller's graph into flat copies plus
// reference links, persisting unsaved targets by reachability. Fetching
// composes a fresh graph from those records, so callers never share memory
// with the stores.
//
// Mutations must be serialized by the caller. Each one runs as an
// operation: an operation-scoped working set of the entities being saved or
// deleted, an undo log that restores the tables if any step fails, and the
// search notifications to flush once it succeeds.
//
// Deletes honor the foreign-key policy of every referencing type. All reject
// rules are checked across the whole cascade before anything is mutated, so
// a rejected delete never leaves cascaded or nulled-out side effects.
//
// Updating a reference list diffs old and new member identities: removed
// members are de-indexed, added members are persisted if needed, indexed and
// checked against unique foreign keys, and the stored order follows the
// caller's list.
package engine
