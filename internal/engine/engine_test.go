package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/prevail/internal/schema"
	"github.com/roach88/prevail/internal/search"
	"github.com/roach88/prevail/internal/testutil"
)

func newEngine(t *testing.T, opts ...Option) (*Engine, *testutil.DeterministicClock) {
	t.Helper()
	e, err := New(testutil.Registry(), opts...)
	require.NoError(t, err)
	return e, testutil.NewDeterministicClock()
}

func save(t *testing.T, e *Engine, clock *testutil.DeterministicClock, ent schema.Entity) schema.ID {
	t.Helper()
	id, err := e.Save(ent, clock.Now())
	require.NoError(t, err)
	return id
}

func fetchBook(t *testing.T, e *Engine, id schema.ID) *testutil.Book {
	t.Helper()
	b, err := FetchAs[*testutil.Book](e, id)
	require.NoError(t, err)
	return b
}

func fetchAuthor(t *testing.T, e *Engine, id schema.ID) *testutil.Author {
	t.Helper()
	a, err := FetchAs[*testutil.Author](e, id)
	require.NoError(t, err)
	return a
}

func titles(ents []schema.Entity) []string {
	out := make([]string, len(ents))
	for i, ent := range ents {
		out[i] = ent.(*testutil.Book).Title
	}
	return out
}

func names(ents []schema.Entity) []string {
	out := make([]string, len(ents))
	for i, ent := range ents {
		out[i] = ent.(*testutil.Author).Name
	}
	return out
}

func TestNew_VerifiesRegistry(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(testutil.BookSchema()))

	_, err := New(reg)
	assert.ErrorContains(t, err, "not registered")

	_, err = New(nil)
	assert.Error(t, err)
}

func TestSave_AddsReachableEntities(t *testing.T) {
	e, clock := newEngine(t)

	author := &testutil.Author{Name: "Frank Herbert", Country: "US"}
	book := &testutil.Book{Title: "Dune", Year: 1965, Author: author}

	id := save(t, e, clock, book)
	assert.Equal(t, schema.ID(1), id)
	assert.Equal(t, schema.ID(1), book.ObjectID())
	assert.Equal(t, schema.ID(1), author.ObjectID())
	assert.True(t, book.IsPersistent())
	assert.True(t, author.IsPersistent())
	assert.True(t, book.CreatedAt().Equal(testutil.Epoch))
	assert.True(t, author.ModifiedAt().Equal(testutil.Epoch))

	assert.Equal(t, 1, e.Count("Book"))
	assert.Equal(t, 1, e.Count("Author"))
	assert.Equal(t, 0, e.Count("Unknown"))

	got := fetchBook(t, e, 1)
	assert.Equal(t, "Dune", got.Title)
	require.NotNil(t, got.Author)
	assert.Equal(t, "Frank Herbert", got.Author.Name)
	assert.Equal(t, schema.ID(1), got.Author.ObjectID())
	assert.Nil(t, got.Publisher)
}

func TestFetch_ReturnsIsolatedCopies(t *testing.T) {
	e, clock := newEngine(t)
	author := &testutil.Author{Name: "Ann", Tags: []string{"sf"}}
	save(t, e, clock, author)

	author.Name = "changed after save"
	author.Tags[0] = "changed"

	got := fetchAuthor(t, e, 1)
	assert.Equal(t, "Ann", got.Name)
	assert.Equal(t, []string{"sf"}, got.Tags)
	assert.NotSame(t, author, got)

	got.Tags[0] = "mutated"
	again := fetchAuthor(t, e, 1)
	assert.Equal(t, []string{"sf"}, again.Tags)
}

func TestFetch_Missing(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.Fetch("Book", 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.Fetch("Unknown", 1)
	assert.True(t, IsStoreError(err))
}

func TestIdentity_StableAcrossSavesAndClearedByDelete(t *testing.T) {
	e, clock := newEngine(t)
	author := &testutil.Author{Name: "Ann", Country: "US"}

	id := save(t, e, clock, author)
	created := author.CreatedAt()

	author.Country = "UK"
	assert.Equal(t, id, save(t, e, clock, author))
	assert.Equal(t, id, author.ObjectID())
	assert.True(t, author.CreatedAt().Equal(created))
	assert.True(t, author.ModifiedAt().After(created))

	require.NoError(t, e.Delete(author, clock.Now()))
	assert.Equal(t, schema.ID(0), author.ObjectID())
	assert.False(t, author.IsPersistent())
	assert.True(t, author.CreatedAt().IsZero())

	// a detached entity saves as a new record
	assert.Equal(t, schema.ID(2), save(t, e, clock, author))
}

func TestSave_CallerSuppliedIdentity(t *testing.T) {
	e, clock := newEngine(t)

	a := &testutil.Author{Name: "A"}
	a.SetObjectID(7)
	assert.Equal(t, schema.ID(7), save(t, e, clock, a))

	b := &testutil.Author{Name: "B"}
	b.SetObjectID(7)
	_, err := e.Save(b, clock.Now())
	assert.True(t, IsDuplicateIdentity(err))
	assert.False(t, b.IsPersistent())

	c := &testutil.Author{Name: "C"}
	assert.Equal(t, schema.ID(8), save(t, e, clock, c), "generated identities skip supplied ones")
}

func TestSave_SuppliedIdentityTwiceInOneGraph(t *testing.T) {
	e, clock := newEngine(t)

	b1 := &testutil.Book{Title: "Dune", Year: 1965}
	b1.SetObjectID(50)
	b2 := &testutil.Book{Title: "Dune Messiah", Year: 1969}
	b2.SetObjectID(50)
	shelf := &testutil.Shelf{Name: "s", Books: []*testutil.Book{b1, b2}}

	_, err := e.Save(shelf, clock.Now())
	assert.True(t, IsDuplicateIdentity(err))
	assert.False(t, shelf.IsPersistent())
	assert.Zero(t, e.Count("Shelf"))
	assert.Zero(t, e.Count("Book"))

	// the same instance reached twice is saved once
	b := &testutil.Book{Title: "Dune", Year: 1965}
	b.SetObjectID(50)
	save(t, e, clock, &testutil.Shelf{Name: "s", Books: []*testutil.Book{b, b}})
	assert.Equal(t, 1, e.Count("Book"))
}

func TestSave_UniqueViolationLeavesStoreUnchanged(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Author{Name: "Ann"})

	dup := &testutil.Author{Name: "Ann"}
	_, err := e.Save(dup, clock.Now())
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, dup.IsPersistent())
	assert.Equal(t, 1, e.Count("Author"))
}

func TestSave_CompositeUniqueness(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Book{Title: "Dune", Year: 1965})

	_, err := e.Save(&testutil.Book{Title: "Dune", Year: 1965}, clock.Now())
	assert.True(t, IsUniqueViolation(err))

	save(t, e, clock, &testutil.Book{Title: "Dune", Year: 2021})
	assert.Equal(t, 2, e.Count("Book"))
}

func TestSave_NullsNeverViolateUniqueness(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Author{Name: "A"})
	save(t, e, clock, &testutil.Author{Name: "B"})

	_, err := e.Save(&testutil.Author{Name: "C", Email: testutil.Str("c@example.com")}, clock.Now())
	require.NoError(t, err)
	_, err = e.Save(&testutil.Author{Name: "D", Email: testutil.Str("c@example.com")}, clock.Now())
	assert.True(t, IsUniqueViolation(err))
}

func TestSave_NotNull(t *testing.T) {
	e, clock := newEngine(t)

	_, err := e.Save(&testutil.Author{}, clock.Now())
	assert.True(t, IsNotNullViolation(err))

	_, err = e.Save(&testutil.Book{Year: 1965}, clock.Now())
	assert.True(t, IsNotNullViolation(err))
	assert.Equal(t, 0, e.Count("Book"))
}

func TestSave_FailureMidGraphRollsBack(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Book{Title: "Dune", Year: 1965})

	book := &testutil.Book{Title: "Dune", Year: 1965}
	author := &testutil.Author{Name: "Late", Country: "US", Books: []*testutil.Book{book}}
	_, err := e.Save(author, clock.Now())
	require.True(t, IsUniqueViolation(err))

	assert.False(t, author.IsPersistent())
	assert.Equal(t, schema.ID(0), author.ObjectID())
	assert.Equal(t, 0, e.Count("Author"))

	found, err := e.FetchByIndex("Author", "Country", "US")
	require.NoError(t, err)
	assert.Empty(t, found)

	next := &testutil.Author{Name: "Next"}
	assert.Equal(t, schema.ID(1), save(t, e, clock, next), "sequence restored")
}

func TestSave_UniqueForeignKey(t *testing.T) {
	e, clock := newEngine(t)
	holder := &testutil.Author{Name: "Ann"}
	save(t, e, clock, &testutil.Badge{Label: "first", Holder: holder})

	_, err := e.Save(&testutil.Badge{Label: "second", Holder: holder}, clock.Now())
	assert.True(t, IsUniqueViolation(err))

	other := &testutil.Author{Name: "Bob"}
	save(t, e, clock, &testutil.Badge{Label: "second", Holder: other})
	assert.Equal(t, 2, e.Count("Badge"))
}

func TestCompose_CycleClosesOnSameInstance(t *testing.T) {
	e, clock := newEngine(t)

	author := &testutil.Author{Name: "Ann"}
	one := &testutil.Book{Title: "One", Year: 2000, Author: author}
	two := &testutil.Book{Title: "Two", Year: 2001, Author: author}
	author.Books = []*testutil.Book{one, two}

	id := save(t, e, clock, author)
	assert.Equal(t, 2, e.Count("Book"))

	got := fetchAuthor(t, e, id)
	require.Len(t, got.Books, 2)
	assert.Equal(t, "One", got.Books[0].Title)
	assert.Equal(t, "Two", got.Books[1].Title)
	assert.Same(t, got, got.Books[0].Author)
	assert.Same(t, got, got.Books[1].Author)

	book := fetchBook(t, e, one.ObjectID())
	require.NotNil(t, book.Author)
	assert.Same(t, book, book.Author.Books[0], "the cycle returns to the fetched instance")
}

func TestCompose_SharedTargetComposedOnce(t *testing.T) {
	e, clock := newEngine(t)
	pub := &testutil.Publisher{Name: "Chilton"}
	shelf := &testutil.Shelf{Name: "favorites", Books: []*testutil.Book{
		{Title: "Dune", Year: 1965, Publisher: pub},
		{Title: "Dune Messiah", Year: 1969, Publisher: pub},
	}}
	save(t, e, clock, shelf)
	assert.Equal(t, 1, e.Count("Publisher"))

	ents, err := e.FetchRange("Shelf", 0, 1)
	require.NoError(t, err)
	got := ents[0].(*testutil.Shelf)
	require.Len(t, got.Books, 2)
	assert.Same(t, got.Books[0].Publisher, got.Books[1].Publisher)
}

func TestScenario_OwnerWithUnsavedChild(t *testing.T) {
	e, clock := newEngine(t)

	child := &testutil.Book{Title: "Dune", Year: 1965, Publisher: &testutil.Publisher{Name: "Chilton"}}
	owner := &testutil.Author{Name: "A", Books: []*testutil.Book{child}}
	child.Author = owner

	ownerID := save(t, e, clock, owner)
	assert.True(t, owner.IsPersistent())
	assert.True(t, child.IsPersistent())
	assert.True(t, child.Publisher.IsPersistent())

	got := fetchBook(t, e, child.ObjectID())
	require.NotNil(t, got.Author)
	assert.Equal(t, ownerID, got.Author.ObjectID())
	require.Len(t, got.Author.Books, 1)
	assert.Same(t, got, got.Author.Books[0])
	assert.Equal(t, "Chilton", got.Publisher.Name)
}

func TestUpdate_ReindexesChangedValues(t *testing.T) {
	e, clock := newEngine(t)
	author := &testutil.Author{Name: "Ann", Country: "US", Tags: []string{"sf"}}
	save(t, e, clock, author)

	author.Country = "UK"
	author.Tags = []string{"fantasy"}
	save(t, e, clock, author)

	found, err := e.FetchByIndex("Author", "Country", "US")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = e.FetchByIndex("Author", "Country", "UK")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann"}, names(found))

	found, err = e.FetchByIndex("Author", "Tags", "sf")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = e.FetchByIndex("Author", schema.CompositeKey("Country", "Name"), []any{"UK", "Ann"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestUpdate_UniqueViolationKeepsStoredCopy(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Author{Name: "A"})
	b := &testutil.Author{Name: "B"}
	save(t, e, clock, b)

	b.Name = "A"
	_, err := e.Save(b, clock.Now())
	assert.True(t, IsUniqueViolation(err))
	assert.Equal(t, "B", fetchAuthor(t, e, b.ObjectID()).Name)

	b.Name = "B"
	_, err = e.Save(b, clock.Now())
	assert.NoError(t, err, "keeping its own unique value is not a violation")
}

func TestUpdate_RepointsReference(t *testing.T) {
	e, clock := newEngine(t)
	first := &testutil.Publisher{Name: "first"}
	second := &testutil.Publisher{Name: "second"}
	book := &testutil.Book{Title: "Dune", Year: 1965, Publisher: first}
	save(t, e, clock, book)
	save(t, e, clock, second)

	book.Publisher = second
	save(t, e, clock, book)

	found, err := e.FetchByIndex("Book", "Publisher", first)
	require.NoError(t, err)
	assert.Empty(t, found)
	found, err = e.FetchByIndex("Book", "Publisher", second.ObjectID())
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, titles(found))

	book.Publisher = nil
	save(t, e, clock, book)
	found, err = e.FetchByIndex("Book", "Publisher", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, titles(found))
	assert.Nil(t, fetchBook(t, e, book.ObjectID()).Publisher)
}

func TestUpdate_AddsTransientTargetByReachability(t *testing.T) {
	e, clock := newEngine(t)
	book := &testutil.Book{Title: "Dune", Year: 1965}
	save(t, e, clock, book)

	book.Author = &testutil.Author{Name: "Frank Herbert"}
	save(t, e, clock, book)

	assert.True(t, book.Author.IsPersistent())
	got := fetchBook(t, e, book.ObjectID())
	require.NotNil(t, got.Author)
	assert.Equal(t, "Frank Herbert", got.Author.Name)
}

func TestUpdate_SavesEditsToStoredTargets(t *testing.T) {
	e, clock := newEngine(t)
	author := &testutil.Author{Name: "Frank Herbert", Country: "US"}
	book := &testutil.Book{Title: "Dune", Year: 1965, Author: author}
	save(t, e, clock, book)
	created := author.CreatedAt()

	author.Country = "NZ"
	at := clock.Now()
	_, err := e.Save(book, at)
	require.NoError(t, err)

	got := fetchAuthor(t, e, author.ObjectID())
	assert.Equal(t, "NZ", got.Country)
	assert.True(t, got.CreatedAt().Equal(created))
	assert.True(t, got.ModifiedAt().Equal(at))

	found, err := e.FetchByIndex("Author", "Country", "NZ")
	require.NoError(t, err)
	assert.Equal(t, []string{"Frank Herbert"}, names(found))
	found, err = e.FetchByIndex("Author", "Country", "US")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestUpdate_SavesEditsThroughReferenceLists(t *testing.T) {
	e, clock := newEngine(t)
	author := &testutil.Author{Name: "Ann"}
	one := &testutil.Book{Title: "One", Year: 1, Author: author}
	author.Books = []*testutil.Book{one}
	save(t, e, clock, author)

	one.Title = "One, revised"
	save(t, e, clock, author)

	got := fetchBook(t, e, one.ObjectID())
	assert.Equal(t, "One, revised", got.Title)
	require.NotNil(t, got.Author)
	assert.Same(t, got, got.Author.Books[0])
}

func TestUpdate_FailingTargetEditRollsBack(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Author{Name: "Taken"})
	author := &testutil.Author{Name: "Ann"}
	book := &testutil.Book{Title: "Dune", Year: 1965, Author: author}
	save(t, e, clock, book)

	book.Title = "Dune, revised"
	author.Name = "Taken"
	_, err := e.Save(book, clock.Now())
	require.True(t, IsUniqueViolation(err))

	assert.Equal(t, "Dune", fetchBook(t, e, book.ObjectID()).Title)
	assert.Equal(t, "Ann", fetchAuthor(t, e, author.ObjectID()).Name)
}

func TestUpdate_ReferenceListDiff(t *testing.T) {
	e, clock := newEngine(t)
	b1 := &testutil.Book{Title: "One", Year: 1}
	b2 := &testutil.Book{Title: "Two", Year: 2}
	shelf := &testutil.Shelf{Name: "s", Books: []*testutil.Book{b1, b2}}
	save(t, e, clock, shelf)

	b3 := &testutil.Book{Title: "Three", Year: 3}
	shelf.Books = []*testutil.Book{b2, b3, b2}
	save(t, e, clock, shelf)

	assert.True(t, b3.IsPersistent())
	got, err := FetchAs[*testutil.Shelf](e, shelf.ObjectID())
	require.NoError(t, err)
	require.Len(t, got.Books, 2, "repeated members are stored once")
	assert.Equal(t, "Two", got.Books[0].Title)
	assert.Equal(t, "Three", got.Books[1].Title)

	found, err := e.FetchByIndex("Shelf", "Books", b1)
	require.NoError(t, err)
	assert.Empty(t, found)
	found, err = e.FetchByIndex("Shelf", "Books", b3)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	// b1 is no longer held, so deleting it leaves the shelf alone
	require.NoError(t, e.Delete(b1, clock.Now()))
	got, err = FetchAs[*testutil.Shelf](e, shelf.ObjectID())
	require.NoError(t, err)
	assert.Len(t, got.Books, 2)

	shelf.Books = nil
	save(t, e, clock, shelf)
	got, err = FetchAs[*testutil.Shelf](e, shelf.ObjectID())
	require.NoError(t, err)
	assert.Empty(t, got.Books)
	found, err = e.FetchByIndex("Shelf", "Books", b2)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFetchByIndex_NullValues(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Author{Name: "NoMail"})
	save(t, e, clock, &testutil.Author{Name: "Mail", Email: testutil.Str("m@example.com")})

	found, err := e.FetchByIndex("Author", "Email", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"NoMail"}, names(found))

	found, err = e.FetchByIndex("Author", "Email", "m@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"Mail"}, names(found))

	found, err = e.FetchByIndex("Author", "Email", testutil.Str("m@example.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Mail"}, names(found))

	var none *string
	found, err = e.FetchByIndex("Author", "Email", none)
	require.NoError(t, err)
	assert.Equal(t, []string{"NoMail"}, names(found))
}

func TestFetchByIndex_InvalidQueries(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.FetchByIndex("Book", "Synopsis", "x")
	assert.True(t, IsStoreError(err), "field without an index")

	_, err = e.FetchByIndex("Author", "Books", nil)
	assert.True(t, IsStoreError(err), "reference without a foreign key")

	_, err = e.FetchByIndex("Book", schema.CompositeKey("Title", "Year"), []any{"Dune"})
	assert.True(t, IsStoreError(err), "wrong composite arity")

	_, err = e.FetchByIndex("Author", "Country", []string{"US"})
	assert.True(t, IsStoreError(err), "non-comparable value")
}

func TestFetchRange_InsertionOrder(t *testing.T) {
	e, clock := newEngine(t)
	for _, name := range []string{"A", "B", "C", "D"} {
		save(t, e, clock, &testutil.Author{Name: name})
	}

	got, err := e.FetchRange("Author", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, names(got))

	got, err = e.FetchRange("Author", 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"D"}, names(got))
}

func TestFetchUnionAndIntersection(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Author{Name: "A", Country: "US", Tags: []string{"sf"}})
	save(t, e, clock, &testutil.Author{Name: "B", Country: "UK", Tags: []string{"sf", "classic"}})
	save(t, e, clock, &testutil.Author{Name: "C", Country: "US"})

	union, err := e.FetchUnion("Author", map[string]any{"Country": "US", "Tags": "classic"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B"}, names(union))

	union, err = e.FetchUnion("Author", map[string]any{"Country": "US", "Tags": "sf"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B"}, names(union), "members are not repeated")

	inter, err := e.FetchIntersection("Author", map[string]any{"Country": "US", "Tags": "sf"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(inter))

	inter, err = e.FetchIntersection("Author", map[string]any{"Country": "UK", "Tags": "classic", "Name": "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, names(inter))

	inter, err = e.FetchIntersection("Author", map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, inter)
}

func TestDelete_Cascade(t *testing.T) {
	e, clock := newEngine(t)
	author := &testutil.Author{Name: "Ann"}
	save(t, e, clock, &testutil.Book{Title: "One", Year: 1, Author: author})
	save(t, e, clock, &testutil.Book{Title: "Two", Year: 2, Author: author})
	save(t, e, clock, &testutil.Book{Title: "Other", Year: 3, Author: &testutil.Author{Name: "Bob"}})

	require.NoError(t, e.Delete(author, clock.Now()))
	assert.Equal(t, 1, e.Count("Author"))
	assert.Equal(t, 1, e.Count("Book"))

	rest, err := e.FetchRange("Book", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Other"}, titles(rest))

	found, err := e.FetchByIndex("Book", "Year", 1)
	require.NoError(t, err)
	assert.Empty(t, found, "cascaded entities leave the indexes")
}

func TestDelete_CascadeIsTransitive(t *testing.T) {
	e, clock := newEngine(t)
	author := &testutil.Author{Name: "Ann"}
	book := &testutil.Book{Title: "One", Year: 1, Author: author}
	shelf := &testutil.Shelf{Name: "s", Books: []*testutil.Book{book}}
	save(t, e, clock, shelf)

	require.NoError(t, e.Delete(author, clock.Now()))
	assert.Equal(t, 0, e.Count("Book"))

	got, err := FetchAs[*testutil.Shelf](e, shelf.ObjectID())
	require.NoError(t, err)
	assert.Empty(t, got.Books, "null-out applies to the cascaded book")
}

func TestDelete_NullOut(t *testing.T) {
	e, clock := newEngine(t)
	pub := &testutil.Publisher{Name: "Chilton"}
	book := &testutil.Book{Title: "Dune", Year: 1965, Publisher: pub}
	save(t, e, clock, book)

	at := clock.Now()
	require.NoError(t, e.Delete(pub, at))

	got := fetchBook(t, e, book.ObjectID())
	assert.True(t, got.IsPersistent())
	assert.Nil(t, got.Publisher)
	assert.True(t, got.ModifiedAt().Equal(at))

	found, err := e.FetchByIndex("Book", "Publisher", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, titles(found))
}

func TestDelete_NullOutCollection(t *testing.T) {
	e, clock := newEngine(t)
	b1 := &testutil.Book{Title: "One", Year: 1}
	b2 := &testutil.Book{Title: "Two", Year: 2}
	shelf := &testutil.Shelf{Name: "s", Books: []*testutil.Book{b1, b2}}
	save(t, e, clock, shelf)

	require.NoError(t, e.Delete(b1, clock.Now()))

	got, err := FetchAs[*testutil.Shelf](e, shelf.ObjectID())
	require.NoError(t, err)
	require.Len(t, got.Books, 1)
	assert.Equal(t, "Two", got.Books[0].Title)

	require.NoError(t, e.Delete(b2, clock.Now()))
	got, err = FetchAs[*testutil.Shelf](e, shelf.ObjectID())
	require.NoError(t, err)
	assert.Empty(t, got.Books)
}

func TestDelete_Reject(t *testing.T) {
	e, clock := newEngine(t)
	book := &testutil.Book{Title: "Dune", Year: 1965}
	review := &testutil.Review{Stars: 5, Book: book}
	save(t, e, clock, review)

	err := e.Delete(book, clock.Now())
	require.Error(t, err)
	assert.True(t, IsDeleteConflict(err))
	assert.True(t, book.IsPersistent())
	assert.Equal(t, 1, e.Count("Book"))
	assert.Equal(t, 1, e.Count("Review"))
	assert.Equal(t, "Dune", fetchBook(t, e, book.ObjectID()).Title)

	require.NoError(t, e.Delete(review, clock.Now()))
	err = e.Delete(book, clock.Now())
	assert.True(t, IsDeleteConflict(err), "the rule stays registered after the last review is gone")
	assert.Equal(t, 1, e.Count("Book"))
}

func TestDelete_RejectRuleBlocksEveryOwner(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Review{Stars: 5, Book: &testutil.Book{Title: "Dune", Year: 1965}})
	author := &testutil.Author{Name: "Ann"}
	unreviewed := &testutil.Book{Title: "Whipping Star", Year: 1970, Author: author}
	save(t, e, clock, unreviewed)

	err := e.Delete(unreviewed, clock.Now())
	require.Error(t, err)
	assert.True(t, IsDeleteConflict(err))
	assert.Contains(t, err.Error(), "delete rejected by Review.Book")
	assert.True(t, unreviewed.IsPersistent())

	err = e.Delete(author, clock.Now())
	assert.True(t, IsDeleteConflict(err), "the cascade reaches a book")
	assert.Equal(t, 1, e.Count("Author"))
	assert.Equal(t, 2, e.Count("Book"))
}

func TestDelete_RejectRuleOfOtherOwnerTypeDoesNotApply(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Review{Stars: 5, Book: &testutil.Book{Title: "Dune", Year: 1965}})
	pub := &testutil.Publisher{Name: "Ace"}
	save(t, e, clock, pub)

	require.NoError(t, e.Delete(pub, clock.Now()))
	assert.Equal(t, 0, e.Count("Publisher"))
}

func TestDelete_RejectIsCheckedBeforeAnyRuleApplies(t *testing.T) {
	e, clock := newEngine(t)
	author := &testutil.Author{Name: "Ann"}
	// Badge.Holder (null-out) registers before Book.Author (cascade)
	badge := &testutil.Badge{Label: "gold", Holder: author}
	save(t, e, clock, badge)
	book := &testutil.Book{Title: "Dune", Year: 1965, Author: author}
	save(t, e, clock, &testutil.Review{Stars: 4, Book: book})

	err := e.Delete(author, clock.Now())
	require.True(t, IsDeleteConflict(err))

	assert.Equal(t, 1, e.Count("Author"))
	assert.Equal(t, 1, e.Count("Book"))
	got, err := FetchAs[*testutil.Badge](e, badge.ObjectID())
	require.NoError(t, err)
	require.NotNil(t, got.Holder, "null-out was not applied")
	assert.Equal(t, "Ann", got.Holder.Name)
	assert.True(t, author.IsPersistent())
}

func TestDelete_Errors(t *testing.T) {
	e, clock := newEngine(t)

	err := e.Delete(&testutil.Author{Name: "never saved"}, clock.Now())
	assert.True(t, IsStoreError(err))

	err = e.DeleteByID("Author", 9, clock.Now())
	assert.True(t, IsStoreError(err))
	assert.ErrorIs(t, err, ErrNotFound)

	err = e.DeleteByID("Unknown", 1, clock.Now())
	assert.True(t, IsStoreError(err))
}

func TestDeleteByID(t *testing.T) {
	e, clock := newEngine(t)
	author := &testutil.Author{Name: "Ann"}
	save(t, e, clock, author)

	require.NoError(t, e.DeleteByID("Author", author.ObjectID(), clock.Now()))
	assert.Equal(t, 0, e.Count("Author"))
	assert.True(t, author.IsPersistent(), "the caller's handle is not known to the engine")

	// a persistent entity that is no longer stored is added again
	id := save(t, e, clock, author)
	assert.Equal(t, schema.ID(1), id)
	assert.Equal(t, 1, e.Count("Author"))
}

func TestSearch_Notifications(t *testing.T) {
	svc := search.NewService()
	e, clock := newEngine(t, WithSearch(svc))

	book := &testutil.Book{Title: "Dune", Synopsis: "desert planet", Year: 1965}
	save(t, e, clock, book)
	save(t, e, clock, &testutil.Author{Name: "not searchable"})
	assert.Equal(t, 1, svc.Count())

	found, err := e.Search(search.Query{Text: "desert"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, titles(found))

	found, err = e.Search(search.Query{Text: "title:desert"})
	require.NoError(t, err)
	assert.Empty(t, found)

	book.Title = "Arrakis"
	save(t, e, clock, book)
	found, err = e.Search(search.Query{Text: "title:arrakis"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Arrakis"}, titles(found))

	_, err = e.Save(&testutil.Book{Title: "Arrakis", Year: 1965, Synopsis: "duplicate"}, clock.Now())
	require.True(t, IsUniqueViolation(err))
	found, err = e.Search(search.Query{Text: "duplicate"})
	require.NoError(t, err)
	assert.Empty(t, found, "failed saves are not indexed")

	require.NoError(t, e.Delete(book, clock.Now()))
	assert.Equal(t, 0, svc.Count())
}

func TestSearch_DropsDeletedEntities(t *testing.T) {
	svc := search.NewService()
	e, clock := newEngine(t, WithSearch(svc))
	save(t, e, clock, &testutil.Book{Title: "Dune", Year: 1965})

	// a stale document whose entity is gone
	require.NoError(t, svc.Index("Book#99", map[string]string{"Title": "Dune"}))

	found, err := e.Search(search.Query{Text: "dune"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, titles(found))
}

func TestSearch_NotConfigured(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.Search(search.Query{Text: "x"})
	assert.True(t, IsStoreError(err))
	assert.Equal(t, 0, e.Reindex())
}

func TestReindex(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Book{Title: "Dune", Year: 1965})
	save(t, e, clock, &testutil.Book{Title: "Emma", Year: 1815})

	svc := search.NewService()
	WithSearch(svc)(e)
	assert.Equal(t, 2, e.Reindex())
	assert.Equal(t, 2, svc.Count())
}

func TestStats(t *testing.T) {
	e, clock := newEngine(t)
	save(t, e, clock, &testutil.Book{Title: "Dune", Year: 1965, Author: &testutil.Author{Name: "Frank"}})

	stats := e.Stats()
	assert.Equal(t, 1, stats["Book"])
	assert.Equal(t, 1, stats["Author"])
	assert.Equal(t, 0, stats["Review"])
	assert.Len(t, stats, 6)
}

func TestError_Format(t *testing.T) {
	err := &Error{Code: ErrCodeUniqueViolation, Message: "value x already indexed", Type: "Author", Field: "Name"}
	assert.Equal(t, "UNIQUE_VIOLATION: value x already indexed (Author.Name)", err.Error())

	wrapped := storeError("Book", 3, ErrNotFound)
	assert.Equal(t, "STORE_ERROR: store failure (Book#3): entity not found", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.False(t, IsUniqueViolation(wrapped))
	assert.False(t, IsStoreError(nil))
}

func TestSave_Timestamps(t *testing.T) {
	e, _ := newEngine(t)
	at := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	author := &testutil.Author{Name: "Ann"}
	_, err := e.Save(author, at)
	require.NoError(t, err)
	assert.True(t, fetchAuthor(t, e, 1).CreatedAt().Equal(at))
}
