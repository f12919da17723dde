package schema

import (
	"reflect"
	"slices"
)

// Kind is the structural kind of a field.
type Kind int

const (
	// KindScalar is a single value, optionally nullable.
	KindScalar Kind = iota
	// KindRef is a single reference to another entity.
	KindRef
	// KindRefList is a collection of references to entities of one type.
	KindRefList
	// KindScalarList is a collection of values.
	KindScalarList
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindRef:
		return "ref"
	case KindRefList:
		return "ref-list"
	case KindScalarList:
		return "scalar-list"
	default:
		return "unknown"
	}
}

// IsReference reports whether the kind points at other entities.
func (k Kind) IsReference() bool {
	return k == KindRef || k == KindRefList
}

// IsCollection reports whether the kind holds several values.
func (k Kind) IsCollection() bool {
	return k == KindRefList || k == KindScalarList
}

// Field describes one field of an entity type. Accessors are bound at
// construction; constraint flags are set by the Builder.
type Field struct {
	name     string
	kind     Kind
	target   reflect.Type
	nullable bool

	notNull    bool
	indexed    bool
	unique     bool
	foreignKey *ForeignKey
	searchable bool

	value   func(Entity) any
	values  func(Entity) []any
	ref     func(Entity) Entity
	refs    func(Entity) []Entity
	setRef  func(Entity, Entity)
	setRefs func(Entity, []Entity)
	assign  func(dst, src Entity)
	equal   func(a, b Entity) bool
	isNull  func(Entity) bool
}

// FieldSpec is a field bound to the entity type T.
type FieldSpec[T Entity] struct {
	field *Field
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Kind returns the structural kind.
func (f *Field) Kind() Kind { return f.kind }

// Target returns the Go type of referenced entities, or nil for value fields.
func (f *Field) Target() reflect.Type { return f.target }

// Nullable reports whether the field can hold a null.
func (f *Field) Nullable() bool { return f.nullable }

// NotNull reports whether null (or the zero value of a plain scalar) is rejected.
func (f *Field) NotNull() bool { return f.notNull }

// Indexed reports whether the field has a single-field index.
func (f *Field) Indexed() bool { return f.indexed }

// Unique reports whether the single-field index is unique.
func (f *Field) Unique() bool { return f.unique }

// ForeignKey returns the foreign-key declaration, if any.
func (f *Field) ForeignKey() (ForeignKey, bool) {
	if f.foreignKey == nil {
		return ForeignKey{}, false
	}
	return *f.foreignKey, true
}

// Searchable reports whether the field is pushed to the search engine.
func (f *Field) Searchable() bool { return f.searchable }

// Value returns the value of a scalar field, or nil when it is null.
func (f *Field) Value(e Entity) any {
	if f.value == nil {
		return nil
	}
	return f.value(e)
}

// Values returns the elements of a scalar-list field.
func (f *Field) Values(e Entity) []any {
	if f.values == nil {
		return nil
	}
	return f.values(e)
}

// Ref returns the entity held by a reference field, or nil.
func (f *Field) Ref(e Entity) Entity {
	if f.ref == nil {
		return nil
	}
	return f.ref(e)
}

// Refs returns the non-nil entities held by a reference-list field.
func (f *Field) Refs(e Entity) []Entity {
	if f.refs == nil {
		return nil
	}
	return f.refs(e)
}

// SetRef assigns a reference field. A nil target clears it.
func (f *Field) SetRef(e, target Entity) {
	if f.setRef != nil {
		f.setRef(e, target)
	}
}

// SetRefs replaces the contents of a reference-list field with a fresh slice.
func (f *Field) SetRefs(e Entity, targets []Entity) {
	if f.setRefs != nil {
		f.setRefs(e, targets)
	}
}

// Clear removes every reference held by a reference field.
func (f *Field) Clear(e Entity) {
	switch f.kind {
	case KindRef:
		f.SetRef(e, nil)
	case KindRefList:
		f.SetRefs(e, nil)
	}
}

// Assign copies the value of a scalar or scalar-list field from src to dst.
// Optional values and lists are cloned so dst shares no memory with src.
func (f *Field) Assign(dst, src Entity) {
	if f.assign != nil {
		f.assign(dst, src)
	}
}

// Equal compares the values of a scalar or scalar-list field.
func (f *Field) Equal(a, b Entity) bool {
	if f.equal == nil {
		return true
	}
	return f.equal(a, b)
}

// IsNull reports whether the field of e is null for not-null checks. For a
// plain scalar the zero value counts as null; collections are never null.
func (f *Field) IsNull(e Entity) bool {
	switch f.kind {
	case KindRef:
		return f.Ref(e) == nil
	case KindScalar:
		return f.isNull(e)
	default:
		return false
	}
}

// Scalar declares a plain value field. Its zero value fails NotNull.
func Scalar[T Entity, V comparable](name string, acc func(T) *V) FieldSpec[T] {
	return FieldSpec[T]{field: &Field{
		name:  name,
		kind:  KindScalar,
		value: func(e Entity) any { return *acc(e.(T)) },
		assign: func(dst, src Entity) {
			*acc(dst.(T)) = *acc(src.(T))
		},
		equal: func(a, b Entity) bool { return *acc(a.(T)) == *acc(b.(T)) },
		isNull: func(e Entity) bool {
			var zero V
			return *acc(e.(T)) == zero
		},
	}}
}

// Optional declares a nullable value field held through a pointer. Indexes
// and equality use the pointed-to value; nil is null.
func Optional[T Entity, V comparable](name string, acc func(T) **V) FieldSpec[T] {
	return FieldSpec[T]{field: &Field{
		name:     name,
		kind:     KindScalar,
		nullable: true,
		value: func(e Entity) any {
			p := *acc(e.(T))
			if p == nil {
				return nil
			}
			return *p
		},
		assign: func(dst, src Entity) {
			p := *acc(src.(T))
			if p == nil {
				*acc(dst.(T)) = nil
				return
			}
			v := *p
			*acc(dst.(T)) = &v
		},
		equal: func(a, b Entity) bool {
			pa, pb := *acc(a.(T)), *acc(b.(T))
			if pa == nil || pb == nil {
				return pa == nil && pb == nil
			}
			return *pa == *pb
		},
		isNull: func(e Entity) bool { return *acc(e.(T)) == nil },
	}}
}

// ScalarList declares a collection of values. It is indexed by membership.
func ScalarList[T Entity, V comparable](name string, acc func(T) *[]V) FieldSpec[T] {
	return FieldSpec[T]{field: &Field{
		name: name,
		kind: KindScalarList,
		values: func(e Entity) []any {
			list := *acc(e.(T))
			out := make([]any, len(list))
			for i, v := range list {
				out[i] = v
			}
			return out
		},
		assign: func(dst, src Entity) {
			*acc(dst.(T)) = slices.Clone(*acc(src.(T)))
		},
		equal: func(a, b Entity) bool { return slices.Equal(*acc(a.(T)), *acc(b.(T))) },
	}}
}

// Reference declares a single reference to an entity of type R.
func Reference[T Entity, R Entity](name string, acc func(T) *R) FieldSpec[T] {
	return FieldSpec[T]{field: &Field{
		name:     name,
		kind:     KindRef,
		target:   reflect.TypeFor[R](),
		nullable: true,
		ref: func(e Entity) Entity {
			return present(*acc(e.(T)))
		},
		setRef: func(e, target Entity) {
			if target == nil {
				var zero R
				*acc(e.(T)) = zero
				return
			}
			*acc(e.(T)) = target.(R)
		},
	}}
}

// ReferenceList declares a collection of references to entities of type R. The
// element type is part of the declaration because the engine resolves
// stored identities against it.
func ReferenceList[T Entity, R Entity](name string, acc func(T) *[]R) FieldSpec[T] {
	return FieldSpec[T]{field: &Field{
		name:   name,
		kind:   KindRefList,
		target: reflect.TypeFor[R](),
		refs: func(e Entity) []Entity {
			list := *acc(e.(T))
			out := make([]Entity, 0, len(list))
			for _, r := range list {
				if ent := present(r); ent != nil {
					out = append(out, ent)
				}
			}
			return out
		},
		setRefs: func(e Entity, targets []Entity) {
			if targets == nil {
				*acc(e.(T)) = nil
				return
			}
			list := make([]R, len(targets))
			for i, t := range targets {
				list[i] = t.(R)
			}
			*acc(e.(T)) = list
		},
	}}
}

// present converts a typed nil pointer to an untyped nil Entity.
func present[R Entity](r R) Entity {
	var zero R
	if any(r) == any(zero) {
		return nil
	}
	return r
}
