// Package schema declares the static, per-type metadata of prevalent entities.
//
// Every entity type is described once at startup with a builder:
//
//	s := schema.Define("One", func() *One { return &One{} }, func(o *One) *One { c := *o; return &c }).
//		Field(
//			schema.Scalar("Name", func(o *One) *string { return &o.Name }),
//			schema.Reference("Two", func(o *One) **Two { return &o.Two }),
//			schema.ReferenceList("Three", func(o *One) *[]*Three { return &o.Three }),
//		).
//		NotNull("Name").
//		Unique("Name").
//		ForeignKey("Two", schema.NullOut).
//		MustBuild()
//
// Field accessors are plain functions returning a pointer to the field, so
// the engine never inspects entities reflectively. The copy function is the
// explicit per-type clone used at every store boundary.
//
// Entities embed Object, which carries the identity and lifecycle metadata
// owned by the engine.
package schema
