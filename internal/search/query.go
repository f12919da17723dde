// Package search provides the full-text side of the store: a BM25 index of
// searchable entity fields, keyed by "Type#ID", persisted with msgpack.
package search

// Sort orders search hits.
type Sort int

const (
	// ByScore orders by descending relevance, ties broken by key.
	ByScore Sort = iota
	// ByKey orders by ascending document key.
	ByKey
)

// Query is a free-text query. A word of the form "field:text" only matches
// the named field; other words match any field.
type Query struct {
	Text string
	// Types restricts hits to documents of these entity types.
	Types []string
	// Limit caps the number of hits; zero means no limit.
	Limit int
	Sort  Sort
}

// Hit is one matching document.
type Hit struct {
	Key   string
	Score float64
}
