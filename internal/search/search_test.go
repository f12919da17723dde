package search

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Key
	}
	return out
}

func seeded() *FulltextIndex {
	f := NewFulltextIndex()
	f.Index("Book#1", map[string]string{"Title": "Dune", "all": "Dune desert planet spice"})
	f.Index("Book#2", map[string]string{"Title": "Foundation", "all": "Foundation galactic empire"})
	f.Index("Author#1", map[string]string{"Name": "Frank Herbert wrote Dune"})
	return f
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"quick", "brown", "fox"}, tokenize("The quick, brown fox!"))
	assert.Empty(t, tokenize("a I"))
	// decomposed e + combining acute normalizes to the composed form
	assert.Equal(t, tokenize("café"), tokenize("café"))
}

func TestSearch_PlainTerms(t *testing.T) {
	f := seeded()

	hits := f.Search(Query{Text: "dune"})
	assert.ElementsMatch(t, []string{"Book#1", "Author#1"}, keys(hits))

	assert.Empty(t, f.Search(Query{Text: "nothing"}))
	assert.Empty(t, f.Search(Query{Text: "the"}), "stop words never match")
}

func TestSearch_FieldQualified(t *testing.T) {
	f := seeded()

	hits := f.Search(Query{Text: "title:dune"})
	assert.Equal(t, []string{"Book#1"}, keys(hits))

	hits = f.Search(Query{Text: "all:empire"})
	assert.Equal(t, []string{"Book#2"}, keys(hits))

	assert.Empty(t, f.Search(Query{Text: "title:empire"}))
}

func TestSearch_PlainTermDoesNotMatchFieldNames(t *testing.T) {
	f := seeded()
	assert.Empty(t, f.Search(Query{Text: "title"}))
}

func TestSearch_PrefixMatch(t *testing.T) {
	f := seeded()
	hits := f.Search(Query{Text: "found"})
	assert.Equal(t, []string{"Book#2"}, keys(hits))
}

func TestSearch_TypeFilterSortAndLimit(t *testing.T) {
	f := seeded()

	hits := f.Search(Query{Text: "dune", Types: []string{"Book"}})
	assert.Equal(t, []string{"Book#1"}, keys(hits))

	hits = f.Search(Query{Text: "dune", Sort: ByKey})
	assert.Equal(t, []string{"Author#1", "Book#1"}, keys(hits))

	hits = f.Search(Query{Text: "dune", Sort: ByKey, Limit: 1})
	assert.Equal(t, []string{"Author#1"}, keys(hits))
}

func TestIndex_ReplaceAndRemove(t *testing.T) {
	f := seeded()

	f.Index("Book#1", map[string]string{"Title": "Children of Dune"})
	doc, ok := f.Document("Book#1")
	require.True(t, ok)
	assert.Equal(t, "Children of Dune", doc["Title"])
	assert.Empty(t, f.Search(Query{Text: "spice"}))
	assert.Equal(t, 3, f.Count())

	f.Remove("Book#1")
	assert.Equal(t, 2, f.Count())
	assert.Equal(t, []string{"Author#1"}, keys(f.Search(Query{Text: "dune"})))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search", "index.msgpack")
	f := seeded()
	require.True(t, f.IsDirty())

	require.NoError(t, f.Save(path))
	assert.False(t, f.IsDirty())

	loaded := NewFulltextIndex()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 3, loaded.Count())
	assert.Equal(t, keys(f.Search(Query{Text: "dune"})), keys(loaded.Search(Query{Text: "dune"})))
}

func TestLoad_MissingOrCorruptFile(t *testing.T) {
	dir := t.TempDir()

	f := NewFulltextIndex()
	require.NoError(t, f.Load(filepath.Join(dir, "missing.msgpack")))
	assert.Equal(t, 0, f.Count())

	corrupt := filepath.Join(dir, "corrupt.msgpack")
	require.NoError(t, os.WriteFile(corrupt, []byte("not msgpack"), 0o644))
	f = seeded()
	require.NoError(t, f.Load(corrupt))
	assert.Equal(t, 0, f.Count(), "corrupt files leave an empty index to rebuild")
}

func TestService_BatchedCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.msgpack")
	s, err := OpenService(path, 2)
	require.NoError(t, err)

	require.NoError(t, s.Index("Book#1", map[string]string{"Title": "Dune"}))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no commit before the batch fills")

	require.NoError(t, s.Index("Book#2", map[string]string{"Title": "Emma"}))
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, s.Remove("Book#2"))
	require.NoError(t, s.Close())

	reopened, err := OpenService(path, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
}

func TestService_CommitLogsToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	path := filepath.Join(t.TempDir(), "index.msgpack")

	s, err := OpenService(path, 10, WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, s.Index("Book#1", map[string]string{"Title": "Dune"}))
	require.NoError(t, s.Commit())

	assert.Contains(t, buf.String(), "search index committed")
	assert.Contains(t, buf.String(), "documents=1")

	buf.Reset()
	require.NoError(t, s.Commit())
	assert.Empty(t, buf.String(), "a clean index is not written again")
}
