// Package wire defines the payloads written to the command journal: entity
// graph documents for saves, delete targets, canonical JSON and the content
// address of a command.
package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/prevail/internal/codec"
	"github.com/roach88/prevail/internal/schema"
)

// Document is an entity graph as handed to Save. Nodes are listed in
// discovery order from Root; every distinct instance appears once, so
// shared targets and cycles survive a round trip.
type Document struct {
	Root  int
	Nodes []Node
}

// Node is one instance of the graph. Body is the flat entity encoded with
// the document's codec.
type Node struct {
	Type       string
	ID         int64
	Persistent bool
	Created    int64
	Modified   int64
	Body       []byte
	Edges      []Edge
}

// Edge holds the targets of one non-empty reference field as node indices.
type Edge struct {
	Field   string
	Targets []int
}

// Target names the entity of a delete command.
type Target struct {
	Type string
	ID   int64
}

type encoder struct {
	reg   *schema.Registry
	c     codec.Codec
	doc   *Document
	nodes map[schema.Entity]int
}

// EncodeGraph captures the graph reachable from root.
func EncodeGraph(reg *schema.Registry, c codec.Codec, root schema.Entity) (*Document, error) {
	enc := &encoder{reg: reg, c: c, doc: &Document{}, nodes: make(map[schema.Entity]int)}
	i, err := enc.node(root)
	if err != nil {
		return nil, err
	}
	enc.doc.Root = i
	return enc.doc, nil
}

func (enc *encoder) node(ent schema.Entity) (int, error) {
	if i, ok := enc.nodes[ent]; ok {
		return i, nil
	}
	s, err := enc.reg.SchemaOf(ent)
	if err != nil {
		return 0, err
	}
	body, err := enc.c.Marshal(s.Flat(ent))
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", s.Name(), err)
	}
	l := schema.LifecycleOf(ent)
	i := len(enc.doc.Nodes)
	enc.doc.Nodes = append(enc.doc.Nodes, Node{
		Type:       s.Name(),
		ID:         int64(l.ID),
		Persistent: l.Persistent,
		Created:    unixNano(l.Created),
		Modified:   unixNano(l.Modified),
		Body:       body,
	})
	enc.nodes[ent] = i

	var edges []Edge
	for _, f := range s.Fields() {
		var targets []schema.Entity
		switch f.Kind() {
		case schema.KindRef:
			if t := f.Ref(ent); t != nil {
				targets = []schema.Entity{t}
			}
		case schema.KindRefList:
			targets = f.Refs(ent)
		}
		if len(targets) == 0 {
			continue
		}
		edge := Edge{Field: f.Name(), Targets: make([]int, len(targets))}
		for k, t := range targets {
			if edge.Targets[k], err = enc.node(t); err != nil {
				return 0, err
			}
		}
		edges = append(edges, edge)
	}
	enc.doc.Nodes[i].Edges = edges
	return i, nil
}

// DecodeGraph rebuilds the instances of doc, with their lifecycle state,
// and returns the root.
func DecodeGraph(reg *schema.Registry, c codec.Codec, doc *Document) (schema.Entity, error) {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil, errors.New("empty graph document")
	}
	if doc.Root < 0 || doc.Root >= len(doc.Nodes) {
		return nil, fmt.Errorf("root %d out of range", doc.Root)
	}
	ents := make([]schema.Entity, len(doc.Nodes))
	for i, n := range doc.Nodes {
		s, ok := reg.Lookup(n.Type)
		if !ok {
			return nil, fmt.Errorf("node %d: type %q is not registered", i, n.Type)
		}
		ent := s.New()
		if err := c.Unmarshal(n.Body, ent); err != nil {
			return nil, fmt.Errorf("node %d: decode %s: %w", i, n.Type, err)
		}
		schema.SetLifecycle(ent, schema.Lifecycle{
			ID:         schema.ID(n.ID),
			Persistent: n.Persistent,
			Created:    fromUnixNano(n.Created),
			Modified:   fromUnixNano(n.Modified),
		})
		ents[i] = ent
	}
	for i, n := range doc.Nodes {
		s, _ := reg.Lookup(n.Type)
		for _, edge := range n.Edges {
			if err := link(reg, s, doc, ents, i, edge); err != nil {
				return nil, fmt.Errorf("node %d: %w", i, err)
			}
		}
	}
	return ents[doc.Root], nil
}

func link(reg *schema.Registry, s *schema.Schema, doc *Document, ents []schema.Entity, i int, edge Edge) error {
	f, ok := s.Field(edge.Field)
	if !ok || !f.Kind().IsReference() {
		return fmt.Errorf("%s has no reference field %q", s.Name(), edge.Field)
	}
	target, err := reg.Target(f)
	if err != nil {
		return err
	}
	targets := make([]schema.Entity, len(edge.Targets))
	for k, t := range edge.Targets {
		if t < 0 || t >= len(ents) {
			return fmt.Errorf("%s.%s: target %d out of range", s.Name(), f.Name(), t)
		}
		if doc.Nodes[t].Type != target.Name() {
			return fmt.Errorf("%s.%s: target is a %s, want %s", s.Name(), f.Name(), doc.Nodes[t].Type, target.Name())
		}
		targets[k] = ents[t]
	}
	if f.Kind() == schema.KindRef {
		if len(targets) != 1 {
			return fmt.Errorf("%s.%s: single reference with %d targets", s.Name(), f.Name(), len(targets))
		}
		f.SetRef(ents[i], targets[0])
		return nil
	}
	f.SetRefs(ents[i], targets)
	return nil
}

// Marshal encodes doc with c behind a codec header.
func Marshal(c codec.Codec, doc *Document) ([]byte, error) {
	return codec.Encode(c, doc)
}

// Unmarshal decodes a document and reports the codec its bodies use.
func Unmarshal(data []byte) (*Document, codec.Codec, error) {
	var doc Document
	c, err := codec.Decode(data, &doc)
	if err != nil {
		return nil, nil, err
	}
	return &doc, c, nil
}

// MarshalTarget encodes a delete target.
func MarshalTarget(c codec.Codec, t Target) ([]byte, error) {
	return codec.Encode(c, t)
}

// UnmarshalTarget decodes a delete target.
func UnmarshalTarget(data []byte) (Target, error) {
	var t Target
	_, err := codec.Decode(data, &t)
	return t, err
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
