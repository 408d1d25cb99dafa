package expr

import (
	"github.com/google/cel-go/cel"

	"github.com/siltdb/silt/pkg/model"
)

// TransformKind distinguishes the two transform shapes.
type TransformKind int

const (
	// TransformMerge patches the named fields and leaves the rest alone.
	TransformMerge TransformKind = iota
	// TransformReplace swaps the whole document body for a literal.
	TransformReplace
)

func (k TransformKind) String() string {
	switch k {
	case TransformMerge:
		return "merge"
	case TransformReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Assignment is one "field = expression" pair of a merge transform.
type Assignment struct {
	Field string
	src   string
	prg   cel.Program
}

// literalField is one key of a replacement literal: either a nested literal
// or a leaf expression.
type literalField struct {
	key string
	doc *literalDoc
	src string
	prg cel.Program
}

type literalDoc struct {
	fields []literalField
}

func (l *literalDoc) build(act map[string]any) (model.Document, error) {
	out := model.Document{}
	for _, f := range l.fields {
		if f.doc != nil {
			v, err := f.doc.build(act)
			if err != nil {
				return nil, err
			}
			out.Set(f.key, v)
			continue
		}
		v, err := evalValue(f.prg, act, f.src)
		if err != nil {
			return nil, err
		}
		out.Set(f.key, v)
	}
	return out, nil
}

// Transform is a compiled document transform.
type Transform struct {
	kind        TransformKind
	assignments []Assignment
	replacement *literalDoc
}

// Kind returns the transform shape.
func (t *Transform) Kind() TransformKind { return t.kind }

// Fields returns the assignment targets of a merge transform, in statement
// order. Nil for a replacement.
func (t *Transform) Fields() []string {
	if t.kind != TransformMerge {
		return nil
	}
	fields := make([]string, len(t.assignments))
	for i, a := range t.assignments {
		fields[i] = a.Field
	}
	return fields
}

// Apply evaluates the transform against doc and returns the resulting
// document. The input document is not modified and the identity field always
// carries through unchanged. Every expression observes the pre-transform
// document, so assignments do not see each other's results.
//
// Merging is a top-level patch: an assigned field replaces its old value
// wholesale and keeps its position, new fields append in statement order.
// A replacement keeps only the identity field and the literal's keys.
func (t *Transform) Apply(doc model.Document) (model.Document, error) {
	act := activationFor(doc)
	switch t.kind {
	case TransformReplace:
		out := model.Document{}
		if id, ok := doc.Get(model.IDField); ok {
			out.Set(model.IDField, id)
		}
		body, err := t.replacement.build(act)
		if err != nil {
			return nil, err
		}
		return append(out, body...), nil
	default:
		out := doc.Clone()
		for _, a := range t.assignments {
			v, err := evalValue(a.prg, act, a.src)
			if err != nil {
				return nil, err
			}
			out.Set(a.Field, v)
		}
		return out, nil
	}
}
