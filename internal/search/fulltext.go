package search

import (
	"errors"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/prevail/internal/schema"
)

// BM25 parameters (standard values)
const (
	bm25K1 = 1.2  // Term frequency saturation
	bm25B  = 0.75 // Length normalization

	prefixWeight = 0.8
)

// FulltextIndex provides BM25-based full-text search over documents made of
// named text fields. Every token is indexed twice: plain, and qualified by
// its field name.
type FulltextIndex struct {
	mu sync.RWMutex

	// Document storage: key -> field -> text
	documents map[string]map[string]string

	// Inverted index: term -> key -> term frequency
	invertedIndex map[string]map[string]int

	// Document lengths in plain tokens
	docLengths map[string]int

	avgDocLength   float64
	docCount       int
	totalDocLength int64

	// version != persistedVersion => needs save
	version          uint64
	persistedVersion uint64
}

// NewFulltextIndex creates an empty index.
func NewFulltextIndex() *FulltextIndex {
	return &FulltextIndex{
		documents:     make(map[string]map[string]string),
		invertedIndex: make(map[string]map[string]int),
		docLengths:    make(map[string]int),
	}
}

// fulltextIndexFormatVersion is written into saved index files. A file with
// another version is ignored on load.
const fulltextIndexFormatVersion = "1.0.0"

type fulltextIndexSnapshot struct {
	Version       string
	Documents     map[string]map[string]string
	InvertedIndex map[string]map[string]int
	DocLengths    map[string]int
}

// Save writes the index to path (msgpack format). The directory is created
// if needed and the file is replaced atomically.
func (f *FulltextIndex) Save(path string) error {
	f.mu.RLock()
	snap := fulltextIndexSnapshot{
		Version:       fulltextIndexFormatVersion,
		Documents:     make(map[string]map[string]string, len(f.documents)),
		InvertedIndex: make(map[string]map[string]int, len(f.invertedIndex)),
		DocLengths:    maps.Clone(f.docLengths),
	}
	for k, fields := range f.documents {
		snap.Documents[k] = maps.Clone(fields)
	}
	for term, docs := range f.invertedIndex {
		snap.InvertedIndex[term] = maps.Clone(docs)
	}
	version := f.version
	f.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(file).Encode(&snap); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	f.markPersisted(version)
	return nil
}

// Load replaces the index with the one stored at path. A missing, corrupt or
// incompatible file leaves the index empty and returns nil, so the caller
// can rebuild. Only unexpected I/O errors are returned.
func (f *FulltextIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()

	var snap fulltextIndexSnapshot
	if err := msgpack.NewDecoder(file).Decode(&snap); err != nil || snap.Version != fulltextIndexFormatVersion {
		f.Clear()
		return nil
	}
	if snap.Documents == nil {
		snap.Documents = make(map[string]map[string]string)
	}
	if snap.InvertedIndex == nil {
		snap.InvertedIndex = make(map[string]map[string]int)
	}
	if snap.DocLengths == nil {
		snap.DocLengths = make(map[string]int)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = snap.Documents
	f.invertedIndex = snap.InvertedIndex
	f.docLengths = snap.DocLengths
	f.docCount = len(f.documents)
	f.totalDocLength = 0
	for _, l := range f.docLengths {
		f.totalDocLength += int64(l)
	}
	f.updateAvgDocLength()
	f.version = 1
	f.persistedVersion = 1
	return nil
}

// IsDirty reports whether the index has changes not yet persisted to disk.
func (f *FulltextIndex) IsDirty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version != f.persistedVersion
}

func (f *FulltextIndex) markPersisted(version uint64) {
	f.mu.Lock()
	if f.version == version {
		f.persistedVersion = version
	}
	f.mu.Unlock()
}

// Clear removes all documents.
func (f *FulltextIndex) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docCount == 0 && len(f.documents) == 0 {
		return
	}
	f.documents = make(map[string]map[string]string)
	f.invertedIndex = make(map[string]map[string]int)
	f.docLengths = make(map[string]int)
	f.avgDocLength = 0
	f.docCount = 0
	f.totalDocLength = 0
	f.version++
}

// Index adds or replaces a document.
func (f *FulltextIndex) Index(key string, fields map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := f.removeInternal(key)

	termFreq, length := analyze(fields)
	if length == 0 {
		if removed {
			f.version++
		}
		return
	}

	f.documents[key] = maps.Clone(fields)
	f.docLengths[key] = length
	f.docCount++
	f.totalDocLength += int64(length)
	for term, freq := range termFreq {
		if f.invertedIndex[term] == nil {
			f.invertedIndex[term] = make(map[string]int)
		}
		f.invertedIndex[term][key] = freq
	}
	f.updateAvgDocLength()
	f.version++
}

// Remove removes a document.
func (f *FulltextIndex) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeInternal(key) {
		f.version++
	}
}

func (f *FulltextIndex) removeInternal(key string) bool {
	fields, exists := f.documents[key]
	if !exists {
		return false
	}
	termFreq, _ := analyze(fields)
	for term := range termFreq {
		if docs, ok := f.invertedIndex[term]; ok {
			delete(docs, key)
			if len(docs) == 0 {
				delete(f.invertedIndex, term)
			}
		}
	}
	f.totalDocLength -= int64(f.docLengths[key])
	delete(f.documents, key)
	delete(f.docLengths, key)
	f.docCount--
	f.updateAvgDocLength()
	return true
}

// analyze returns the term frequencies of a document and its plain token count.
func analyze(fields map[string]string) (map[string]int, int) {
	termFreq := make(map[string]int)
	length := 0
	for field, text := range fields {
		for _, token := range tokenize(text) {
			termFreq[token]++
			termFreq[qualify(field, token)]++
			length++
		}
	}
	return termFreq, length
}

// Search performs a BM25 query.
func (f *FulltextIndex) Search(q Query) []Hit {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.docCount == 0 {
		return []Hit{}
	}
	terms := parseQuery(q.Text)
	if len(terms) == 0 {
		return []Hit{}
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		if docs, ok := f.invertedIndex[term]; ok {
			f.accumulate(scores, docs, f.calculateIDF(term))
		}
		// prefix matches ("dun" matches "dune") at reduced weight; a plain
		// term never matches field-qualified terms
		plain := !strings.Contains(term, ":")
		for indexed, docs := range f.invertedIndex {
			if indexed == term || !strings.HasPrefix(indexed, term) {
				continue
			}
			if !plain || !strings.Contains(indexed, ":") {
				f.accumulate(scores, docs, f.calculateIDF(indexed)*prefixWeight)
			}
		}
	}

	hits := make([]Hit, 0, len(scores))
	for key, score := range scores {
		if !typeAllowed(key, q.Types) {
			continue
		}
		hits = append(hits, Hit{Key: key, Score: score})
	}

	switch q.Sort {
	case ByKey:
		sort.Slice(hits, func(i, j int) bool { return hits[i].Key < hits[j].Key })
	default:
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}
			return hits[i].Key < hits[j].Key
		})
	}

	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits
}

func (f *FulltextIndex) accumulate(scores map[string]float64, docs map[string]int, idf float64) {
	for key, termFreq := range docs {
		docLen := float64(f.docLengths[key])
		tf := float64(termFreq)
		numerator := tf * (bm25K1 + 1)
		denominator := tf + bm25K1*(1-bm25B+bm25B*(docLen/f.avgDocLength))
		scores[key] += idf * (numerator / denominator)
	}
}

// parseQuery turns query text into index terms.
func parseQuery(text string) []string {
	var terms []string
	for _, word := range strings.Fields(text) {
		field, rest, qualified := strings.Cut(word, ":")
		if !qualified || field == "" {
			terms = append(terms, tokenize(word)...)
			continue
		}
		for _, token := range tokenize(rest) {
			terms = append(terms, qualify(field, token))
		}
	}
	return terms
}

func typeAllowed(key string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	typ, _, ok := schema.SplitKey(key)
	return ok && slices.Contains(types, typ)
}

// calculateIDF uses log(1 + (N - df + 0.5) / (df + 0.5)), which is never negative.
func (f *FulltextIndex) calculateIDF(term string) float64 {
	df := float64(len(f.invertedIndex[term]))
	n := float64(f.docCount)
	idf := math.Log(1 + (n-df+0.5)/(df+0.5))
	if idf < 0 {
		idf = 0
	}
	return idf
}

func (f *FulltextIndex) updateAvgDocLength() {
	if f.docCount == 0 {
		f.avgDocLength = 0
		f.totalDocLength = 0
		return
	}
	f.avgDocLength = float64(f.totalDocLength) / float64(f.docCount)
}

// Count returns the number of indexed documents.
func (f *FulltextIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.docCount
}

// Document returns a copy of the fields of a document.
func (f *FulltextIndex) Document(key string) (map[string]string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fields, ok := f.documents[key]
	return maps.Clone(fields), ok
}
