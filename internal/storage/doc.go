// Package storage holds the per-type primary, reference and relation
// stores of the prevalent engine, together with the per-type identity
// sequences. Index stores live in package index and are reached through
// Tables as well.
//
// None of the stores lock: the durability substrate runs at most one
// mutating command at a time.
package storage
