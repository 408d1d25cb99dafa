package expr

import (
	"github.com/google/cel-go/cel"

	"github.com/siltdb/silt/pkg/model"
)

// Predicate is a compiled boolean filter over a document.
type Predicate struct {
	prg cel.Program
	src string
}

// Source returns the filter expression text.
func (p *Predicate) Source() string { return p.src }

// Matches evaluates the predicate against doc. A document the filter cannot
// be evaluated against, because a field is absent or a type does not fit the
// operator, does not match. Only a true boolean result matches.
func (p *Predicate) Matches(doc model.Document) bool {
	out, _, err := p.prg.Eval(activationFor(doc))
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
