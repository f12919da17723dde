package schema

import (
	"errors"
	"fmt"
	"reflect"
)

// Builder accumulates the declaration of entity type T. Errors are
// collected and reported by Build.
type Builder[T Entity] struct {
	s    *Schema
	errs []error
}

// Define starts the declaration of entity type T. newFn returns a fresh
// transient entity; copyFn returns an independent copy.
func Define[T Entity](name string, newFn func() T, copyFn func(T) T) *Builder[T] {
	b := &Builder[T]{s: &Schema{
		name:    name,
		goType:  reflect.TypeFor[T](),
		byName:  make(map[string]*Field),
		parseID: ParseID,
	}}
	if name == "" {
		b.errs = append(b.errs, errors.New("type name is empty"))
	}
	if newFn == nil {
		b.errs = append(b.errs, fmt.Errorf("%s: new function is required", name))
	} else {
		b.s.newFn = func() Entity { return newFn() }
	}
	if copyFn == nil {
		b.errs = append(b.errs, fmt.Errorf("%s: copy function is required", name))
	} else {
		b.s.copyFn = func(e Entity) Entity { return copyFn(e.(T)) }
	}
	return b
}

// Field adds fields in declaration order.
func (b *Builder[T]) Field(specs ...FieldSpec[T]) *Builder[T] {
	for _, spec := range specs {
		f := spec.field
		if f == nil || f.name == "" {
			b.errs = append(b.errs, fmt.Errorf("%s: field without a name", b.s.name))
			continue
		}
		if _, dup := b.s.byName[f.name]; dup {
			b.errs = append(b.errs, fmt.Errorf("%s: duplicate field %q", b.s.name, f.name))
			continue
		}
		b.s.fields = append(b.s.fields, f)
		b.s.byName[f.name] = f
	}
	return b
}

// NotNull rejects saves where any of the fields is null.
func (b *Builder[T]) NotNull(fields ...string) *Builder[T] {
	for _, name := range fields {
		f, ok := b.lookup(name)
		if !ok {
			continue
		}
		if f.kind.IsCollection() {
			b.errs = append(b.errs, fmt.Errorf("%s.%s: not-null on a collection", b.s.name, name))
			continue
		}
		f.notNull = true
	}
	return b
}

// Index declares a plain index. Several fields form a composite index.
func (b *Builder[T]) Index(fields ...string) *Builder[T] {
	return b.index(false, fields)
}

// Unique declares a unique index. Several fields form a composite index.
func (b *Builder[T]) Unique(fields ...string) *Builder[T] {
	return b.index(true, fields)
}

func (b *Builder[T]) index(unique bool, fields []string) *Builder[T] {
	if len(fields) == 0 {
		b.errs = append(b.errs, fmt.Errorf("%s: index without fields", b.s.name))
		return b
	}
	for _, name := range fields {
		f, ok := b.lookup(name)
		if !ok {
			return b
		}
		if len(fields) > 1 && f.kind != KindScalar {
			b.errs = append(b.errs, fmt.Errorf("%s.%s: composite indexes take scalar fields only", b.s.name, name))
			return b
		}
	}
	key := fields[0]
	if len(fields) > 1 {
		key = CompositeKey(fields...)
	} else {
		f := b.s.byName[key]
		if f.kind.IsReference() {
			b.errs = append(b.errs, fmt.Errorf("%s.%s: reference fields are indexed through ForeignKey", b.s.name, key))
			return b
		}
		f.indexed = true
		f.unique = f.unique || unique
	}
	for i, spec := range b.s.indexes {
		if spec.Key == key {
			b.s.indexes[i].Unique = spec.Unique || unique
			return b
		}
	}
	b.s.indexes = append(b.s.indexes, IndexSpec{Key: key, Fields: append([]string(nil), fields...), Unique: unique})
	return b
}

// ForeignKey declares a reference field as a relationship with a delete action.
func (b *Builder[T]) ForeignKey(field string, action DeleteAction) *Builder[T] {
	return b.foreignKey(field, action, false)
}

// UniqueForeignKey declares a foreign key whose target may be referenced by
// at most one entity of this type through this field.
func (b *Builder[T]) UniqueForeignKey(field string, action DeleteAction) *Builder[T] {
	return b.foreignKey(field, action, true)
}

func (b *Builder[T]) foreignKey(field string, action DeleteAction, unique bool) *Builder[T] {
	f, ok := b.lookup(field)
	if !ok {
		return b
	}
	if !f.kind.IsReference() {
		b.errs = append(b.errs, fmt.Errorf("%s.%s: foreign key on a %s field", b.s.name, field, f.kind))
		return b
	}
	if action < Reject || action > NullOut {
		b.errs = append(b.errs, fmt.Errorf("%s.%s: invalid delete action %d", b.s.name, field, int(action)))
		return b
	}
	f.foreignKey = &ForeignKey{Action: action, Unique: unique}
	f.indexed = true
	f.unique = unique
	return b
}

// Searchable pushes each field to the search engine under its own name.
func (b *Builder[T]) Searchable(fields ...string) *Builder[T] {
	for _, name := range fields {
		f, ok := b.lookup(name)
		if !ok {
			continue
		}
		if f.kind.IsReference() {
			b.errs = append(b.errs, fmt.Errorf("%s.%s: reference fields are not searchable", b.s.name, name))
			continue
		}
		f.searchable = true
		b.s.groups = append(b.s.groups, SearchGroup{Name: name, Fields: []string{name}})
	}
	return b
}

// SearchGroup pushes the concatenated text of several fields under one name.
func (b *Builder[T]) SearchGroup(name string, fields ...string) *Builder[T] {
	if name == "" || len(fields) == 0 {
		b.errs = append(b.errs, fmt.Errorf("%s: search group needs a name and fields", b.s.name))
		return b
	}
	for _, g := range b.s.groups {
		if g.Name == name {
			b.errs = append(b.errs, fmt.Errorf("%s: duplicate search field %q", b.s.name, name))
			return b
		}
	}
	for _, field := range fields {
		f, ok := b.lookup(field)
		if !ok {
			return b
		}
		if f.kind.IsReference() {
			b.errs = append(b.errs, fmt.Errorf("%s.%s: reference fields are not searchable", b.s.name, field))
			return b
		}
	}
	b.s.groups = append(b.s.groups, SearchGroup{Name: name, Fields: append([]string(nil), fields...)})
	return b
}

// ParseID overrides the identity string conversion for this type.
func (b *Builder[T]) ParseID(fn func(string) (ID, error)) *Builder[T] {
	if fn != nil {
		b.s.parseID = fn
	}
	return b
}

// Build returns the schema or every declaration error joined.
func (b *Builder[T]) Build() (*Schema, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	return b.s, nil
}

// MustBuild is Build for package-level declarations; it panics on error.
func (b *Builder[T]) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func (b *Builder[T]) lookup(name string) (*Field, bool) {
	f, ok := b.s.byName[name]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%s: unknown field %q", b.s.name, name))
	}
	return f, ok
}
