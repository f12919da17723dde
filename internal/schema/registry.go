package schema

import (
	"errors"
	"fmt"
	"reflect"
)

// Registry holds every entity type known to an engine. It is populated
// once at startup and read-only afterwards.
type Registry struct {
	byName map[string]*Schema
	byType map[reflect.Type]*Schema
	order  []*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Schema),
		byType: make(map[reflect.Type]*Schema),
	}
}

// Register adds schemas. Type names and Go types must be unique.
func (r *Registry) Register(schemas ...*Schema) error {
	for _, s := range schemas {
		if s == nil {
			return errors.New("register: nil schema")
		}
		if _, dup := r.byName[s.name]; dup {
			return fmt.Errorf("register: duplicate type name %q", s.name)
		}
		if prev, dup := r.byType[s.goType]; dup {
			return fmt.Errorf("register: %s is already registered as %q", s.goType, prev.name)
		}
		r.byName[s.name] = s
		r.byType[s.goType] = s
		r.order = append(r.order, s)
	}
	return nil
}

// Verify checks that every reference field targets a registered type.
func (r *Registry) Verify() error {
	var errs []error
	for _, s := range r.order {
		for _, f := range s.fields {
			if !f.kind.IsReference() {
				continue
			}
			if _, ok := r.byType[f.target]; !ok {
				errs = append(errs, fmt.Errorf("%s.%s: target %s is not registered", s.name, f.name, f.target))
			}
		}
	}
	return errors.Join(errs...)
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// SchemaOf returns the schema of the dynamic type of e.
func (r *Registry) SchemaOf(e Entity) (*Schema, error) {
	if e == nil {
		return nil, errors.New("nil entity")
	}
	s, ok := r.byType[reflect.TypeOf(e)]
	if !ok {
		return nil, fmt.Errorf("type %T is not registered", e)
	}
	return s, nil
}

// Target returns the schema referenced by a reference field.
func (r *Registry) Target(f *Field) (*Schema, error) {
	s, ok := r.byType[f.target]
	if !ok {
		return nil, fmt.Errorf("field %s: target %s is not registered", f.name, f.target)
	}
	return s, nil
}

// Schemas returns the registered schemas in registration order.
func (r *Registry) Schemas() []*Schema {
	return append([]*Schema(nil), r.order...)
}
