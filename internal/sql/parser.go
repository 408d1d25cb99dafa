// Package sql parses update statements of the form
//
//	UPDATE <collection> SET <transform> [WHERE <filter>] [;]
//
// The parser owns statement structure only; expression spans are handed to an
// ExpressionCompiler without interpretation. Keywords are case-insensitive.
package sql

import (
	"github.com/siltdb/silt/internal/expr"
	"github.com/siltdb/silt/internal/sql/scan"
)

// ExpressionCompiler compiles the expression clauses of a statement. A
// structurally broken statement is rejected before any clause is compiled.
type ExpressionCompiler interface {
	// CompileTransform reads the transform clause following SET, leaving the
	// scanner on the first token after the clause.
	CompileTransform(sc *scan.Scanner) (*expr.Transform, error)
	// CompileFilter reads the filter expression following WHERE, leaving the
	// scanner on the statement separator or end of input.
	CompileFilter(sc *scan.Scanner) (*expr.Predicate, error)
}

// Statement is a parsed update statement ready for execution.
type Statement struct {
	// Source is the original statement text.
	Source string
	// Collection names the target collection.
	Collection string
	// Transform is the compiled document transform.
	Transform *expr.Transform
	// Filter is the compiled match filter, nil when the statement has no
	// WHERE clause and every document matches.
	Filter *expr.Predicate
}

// Parse reads a single statement from src. Parsing is all-or-nothing: on any
// error no partial statement is returned and nothing has been executed.
func Parse(src string, comp ExpressionCompiler) (*Statement, error) {
	sc := scan.New(src)

	verb := sc.Next()
	if verb.Kind == scan.KindEOF {
		return nil, newParseError(ErrMissingClause, verb, "empty statement")
	}
	if !verb.IsWord("update") {
		return nil, newParseError(ErrUnexpectedToken, verb, "unsupported statement %s, expected UPDATE", describe(verb))
	}
	return parseUpdate(src, sc, comp)
}

func parseUpdate(src string, sc *scan.Scanner, comp ExpressionCompiler) (*Statement, error) {
	name := sc.Next()
	if name.Kind == scan.KindEOF {
		return nil, newParseError(ErrUnterminatedStatement, name, "statement ended where a collection name was expected")
	}
	if name.Kind != scan.KindWord {
		return nil, newParseError(ErrUnexpectedToken, name, "expected collection name, got %s", describe(name))
	}
	stmt := &Statement{Source: src, Collection: name.Text}

	kw := sc.Next()
	if kw.Kind == scan.KindEOF {
		return nil, newParseError(ErrUnterminatedStatement, kw, "statement ended where SET was expected")
	}
	if !kw.IsWord("set") {
		return nil, newParseError(ErrMissingClause, kw, "expected SET, got %s", describe(kw))
	}

	tf, err := comp.CompileTransform(sc)
	if err != nil {
		return nil, err
	}
	stmt.Transform = tf

	if sc.Peek().IsWord("where") {
		sc.Next()
		flt, err := comp.CompileFilter(sc)
		if err != nil {
			return nil, err
		}
		stmt.Filter = flt
	}

	return stmt, expectEnd(sc)
}

// expectEnd accepts end of input or a statement separator followed by end of
// input. Anything else leaves the statement unterminated.
func expectEnd(sc *scan.Scanner) error {
	tok := sc.Next()
	switch tok.Kind {
	case scan.KindEOF:
		return nil
	case scan.KindSeparator:
		if tail := sc.Next(); tail.Kind != scan.KindEOF {
			return newParseError(ErrUnterminatedStatement, tail, "unexpected content after statement separator: %s", describe(tail))
		}
		return nil
	default:
		return newParseError(ErrUnterminatedStatement, tok, "expected end of statement, got %s", describe(tok))
	}
}

func describe(t scan.Token) string {
	switch t.Kind {
	case scan.KindEOF:
		return "end of input"
	case scan.KindSeparator:
		return `";"`
	default:
		return `"` + t.Text + `"`
	}
}
