package schema_test

import (
	"fmt"

	"github.com/roach88/prevail/internal/schema"
)

type One struct {
	schema.Object
	Name  string
	Two   *Two
	Three []*Three
}

type Two struct{ schema.Object }

type Three struct{ schema.Object }

func ExampleDefine() {
	s := schema.Define("One", func() *One { return &One{} }, func(o *One) *One { c := *o; return &c }).
		Field(
			schema.Scalar("Name", func(o *One) *string { return &o.Name }),
			schema.Reference("Two", func(o *One) **Two { return &o.Two }),
			schema.ReferenceList("Three", func(o *One) *[]*Three { return &o.Three }),
		).
		NotNull("Name").
		Unique("Name").
		ForeignKey("Two", schema.NullOut).
		MustBuild()

	for _, f := range s.Fields() {
		fmt.Println(f.Name())
	}
	// Output:
	// Name
	// Two
	// Three
}
