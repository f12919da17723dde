package testutil

import (
	"slices"

	"github.com/roach88/prevail/internal/schema"
)

// The catalog model exercises every field kind and delete action:
//
//	Author  1 ── * Book      Book.Author     cascade
//	Publisher 1 ── * Book    Book.Publisher  null-out
//	Book    1 ── * Review    Review.Book     reject
//	Shelf   * ── * Book      Shelf.Books     null-out (collection)
//	Author  1 ── 1 Badge     Badge.Holder    unique, null-out
//
// Author.Books is a plain reference list without a delete policy, which
// together with Book.Author forms a reference cycle.

// Author writes books.
type Author struct {
	schema.Object
	Name    string
	Email   *string
	Country string
	Tags    []string
	Books   []*Book
}

// Book belongs to an author.
type Book struct {
	schema.Object
	Title     string
	Synopsis  string
	Year      int
	Author    *Author
	Publisher *Publisher
}

// Publisher publishes books.
type Publisher struct {
	schema.Object
	Name string
}

// Review blocks the deletion of its book.
type Review struct {
	schema.Object
	Stars int
	Book  *Book
}

// Shelf groups books.
type Shelf struct {
	schema.Object
	Name  string
	Books []*Book
}

// Badge is held by at most one author.
type Badge struct {
	schema.Object
	Label  string
	Holder *Author
}

// AuthorSchema declares Author.
func AuthorSchema() *schema.Schema {
	return schema.Define("Author",
		func() *Author { return &Author{} },
		func(a *Author) *Author { c := *a; c.Tags = slices.Clone(a.Tags); return &c },
	).
		Field(
			schema.Scalar("Name", func(a *Author) *string { return &a.Name }),
			schema.Optional("Email", func(a *Author) **string { return &a.Email }),
			schema.Scalar("Country", func(a *Author) *string { return &a.Country }),
			schema.ScalarList("Tags", func(a *Author) *[]string { return &a.Tags }),
			schema.ReferenceList("Books", func(a *Author) *[]*Book { return &a.Books }),
		).
		NotNull("Name").
		Unique("Name").
		Unique("Email").
		Index("Country").
		Index("Tags").
		Index("Country", "Name").
		MustBuild()
}

// BookSchema declares Book.
func BookSchema() *schema.Schema {
	return schema.Define("Book",
		func() *Book { return &Book{} },
		func(b *Book) *Book { c := *b; return &c },
	).
		Field(
			schema.Scalar("Title", func(b *Book) *string { return &b.Title }),
			schema.Scalar("Synopsis", func(b *Book) *string { return &b.Synopsis }),
			schema.Scalar("Year", func(b *Book) *int { return &b.Year }),
			schema.Reference("Author", func(b *Book) **Author { return &b.Author }),
			schema.Reference("Publisher", func(b *Book) **Publisher { return &b.Publisher }),
		).
		NotNull("Title").
		Index("Year").
		Unique("Title", "Year").
		ForeignKey("Author", schema.Cascade).
		ForeignKey("Publisher", schema.NullOut).
		Searchable("Title").
		SearchGroup("all", "Title", "Synopsis").
		MustBuild()
}

// PublisherSchema declares Publisher.
func PublisherSchema() *schema.Schema {
	return schema.Define("Publisher",
		func() *Publisher { return &Publisher{} },
		func(p *Publisher) *Publisher { c := *p; return &c },
	).
		Field(schema.Scalar("Name", func(p *Publisher) *string { return &p.Name })).
		Unique("Name").
		MustBuild()
}

// ReviewSchema declares Review.
func ReviewSchema() *schema.Schema {
	return schema.Define("Review",
		func() *Review { return &Review{} },
		func(r *Review) *Review { c := *r; return &c },
	).
		Field(
			schema.Scalar("Stars", func(r *Review) *int { return &r.Stars }),
			schema.Reference("Book", func(r *Review) **Book { return &r.Book }),
		).
		Index("Stars").
		ForeignKey("Book", schema.Reject).
		MustBuild()
}

// ShelfSchema declares Shelf.
func ShelfSchema() *schema.Schema {
	return schema.Define("Shelf",
		func() *Shelf { return &Shelf{} },
		func(s *Shelf) *Shelf { c := *s; return &c },
	).
		Field(
			schema.Scalar("Name", func(s *Shelf) *string { return &s.Name }),
			schema.ReferenceList("Books", func(s *Shelf) *[]*Book { return &s.Books }),
		).
		ForeignKey("Books", schema.NullOut).
		MustBuild()
}

// BadgeSchema declares Badge.
func BadgeSchema() *schema.Schema {
	return schema.Define("Badge",
		func() *Badge { return &Badge{} },
		func(b *Badge) *Badge { c := *b; return &c },
	).
		Field(
			schema.Scalar("Label", func(b *Badge) *string { return &b.Label }),
			schema.Reference("Holder", func(b *Badge) **Author { return &b.Holder }),
		).
		UniqueForeignKey("Holder", schema.NullOut).
		MustBuild()
}

// Registry returns a fresh registry holding the catalog model.
func Registry() *schema.Registry {
	reg := schema.NewRegistry()
	err := reg.Register(
		AuthorSchema(),
		BookSchema(),
		PublisherSchema(),
		ReviewSchema(),
		ShelfSchema(),
		BadgeSchema(),
	)
	if err == nil {
		err = reg.Verify()
	}
	if err != nil {
		panic(err)
	}
	return reg
}

// Str returns a pointer to s.
func Str(s string) *string { return &s }
