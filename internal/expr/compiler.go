// Package expr compiles the expression spans of update statements into
// reusable transform and predicate programs. Expressions use CEL syntax and
// resolve document fields dynamically at evaluation time, so no schema is
// declared up front.
package expr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/siltdb/silt/internal/sql/scan"
	"github.com/siltdb/silt/pkg/model"
)

// maxCacheSize bounds the compiled program cache.
const maxCacheSize = 1000

// Compiler turns expression spans into evaluable programs. Compiled programs
// are cached by source text. Safe for concurrent use.
type Compiler struct {
	env *cel.Env

	mu         sync.RWMutex
	programs   map[string]cel.Program
	cacheOrder []string
}

// NewCompiler creates a compiler with an empty program cache.
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("create expression environment: %w", err)
	}
	return &Compiler{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// program returns a cached program for src, compiling on first use.
// Compilation is parse-only so field references resolve at evaluation time.
func (c *Compiler) program(src string, pos int) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.programs[src]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := c.env.Parse(src)
	if iss != nil && iss.Err() != nil {
		return nil, compileErrorf(pos, "invalid expression %q: %v", src, iss.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, compileErrorf(pos, "build program for %q: %v", src, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.programs[src]; ok {
		return existing, nil
	}
	if len(c.cacheOrder) >= maxCacheSize {
		oldest := c.cacheOrder[0]
		c.cacheOrder = c.cacheOrder[1:]
		delete(c.programs, oldest)
	}
	c.programs[src] = prg
	c.cacheOrder = append(c.cacheOrder, src)
	return prg, nil
}

// CompileTransform reads the transform clause. A leading "{" selects the full
// replacement form, anything else is parsed as a comma-separated assignment
// list. The identity field cannot appear as an assignment target or a
// top-level literal key.
func (c *Compiler) CompileTransform(sc *scan.Scanner) (*Transform, error) {
	if sc.Peek().IsPunct("{") {
		lit, err := c.parseLiteral(sc, true)
		if err != nil {
			return nil, err
		}
		return &Transform{kind: TransformReplace, replacement: lit}, nil
	}

	var assignments []Assignment
	for {
		field := sc.Next()
		if field.Kind != scan.KindWord {
			return nil, compileErrorf(field.Off, "expected field name, got %s", describe(field))
		}
		if field.Text == model.IDField {
			return nil, compileErrorf(field.Off, "the %s field cannot be assigned", model.IDField)
		}
		if eq := sc.Next(); !eq.IsPunct("=") {
			return nil, compileErrorf(eq.Off, "expected = after field %q, got %s", field.Text, describe(eq))
		}

		src, off, err := c.scanSpan(sc, func(t scan.Token) bool {
			return t.IsPunct(",") || t.Kind == scan.KindSeparator || t.IsWord("where")
		})
		if err != nil {
			return nil, err
		}
		prg, err := c.program(src, off)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, Assignment{Field: field.Text, src: src, prg: prg})

		if sc.Peek().IsPunct(",") {
			sc.Next()
			continue
		}
		return &Transform{kind: TransformMerge, assignments: assignments}, nil
	}
}

// CompileFilter reads a boolean filter expression running to the statement
// separator or the end of input.
func (c *Compiler) CompileFilter(sc *scan.Scanner) (*Predicate, error) {
	src, off, err := c.scanSpan(sc, func(t scan.Token) bool {
		return t.Kind == scan.KindSeparator
	})
	if err != nil {
		return nil, err
	}
	prg, err := c.program(src, off)
	if err != nil {
		return nil, err
	}
	return &Predicate{prg: prg, src: src}, nil
}

// parseLiteral consumes a brace-delimited document literal. Keys are bare
// words or quoted strings; values are nested literals or expression spans.
func (c *Compiler) parseLiteral(sc *scan.Scanner, top bool) (*literalDoc, error) {
	sc.Next() // opening brace
	doc := &literalDoc{}

	if sc.Peek().IsPunct("}") {
		sc.Next()
		return doc, nil
	}
	for {
		keyTok := sc.Next()
		var key string
		switch keyTok.Kind {
		case scan.KindWord:
			key = keyTok.Text
		case scan.KindString:
			key = unquote(keyTok.Text)
		default:
			return nil, compileErrorf(keyTok.Off, "expected field name in document literal, got %s", describe(keyTok))
		}
		if top && key == model.IDField {
			return nil, compileErrorf(keyTok.Off, "the %s field cannot be replaced", model.IDField)
		}
		if colon := sc.Next(); !colon.IsPunct(":") {
			return nil, compileErrorf(colon.Off, "expected : after field %q, got %s", key, describe(colon))
		}

		if sc.Peek().IsPunct("{") {
			nested, err := c.parseLiteral(sc, false)
			if err != nil {
				return nil, err
			}
			doc.fields = append(doc.fields, literalField{key: key, doc: nested})
		} else {
			src, off, err := c.scanSpan(sc, func(t scan.Token) bool {
				return t.IsPunct(",") || t.IsPunct("}")
			})
			if err != nil {
				return nil, err
			}
			prg, err := c.program(src, off)
			if err != nil {
				return nil, err
			}
			doc.fields = append(doc.fields, literalField{key: key, src: src, prg: prg})
		}

		sep := sc.Next()
		if sep.IsPunct(",") {
			continue
		}
		if sep.IsPunct("}") {
			return doc, nil
		}
		return nil, compileErrorf(sep.Off, "expected , or } in document literal, got %s", describe(sep))
	}
}

// scanSpan consumes tokens up to a depth-zero stop token and returns the raw
// source span with its starting offset. The stop token is left unconsumed;
// end of input always stops at depth zero.
func (c *Compiler) scanSpan(sc *scan.Scanner, stop func(scan.Token) bool) (string, int, error) {
	src := sc.Source()
	start, end := -1, -1
	depth := 0
	for {
		tok := sc.Peek()
		if tok.Kind == scan.KindIllegal {
			return "", tok.Off, compileErrorf(tok.Off, "unterminated string literal")
		}
		if depth == 0 && (tok.Kind == scan.KindEOF || stop(tok)) {
			end = tok.Off
			break
		}
		if tok.Kind == scan.KindEOF {
			return "", tok.Off, compileErrorf(tok.Off, "unbalanced brackets in expression")
		}
		switch {
		case tok.IsPunct("(") || tok.IsPunct("[") || tok.IsPunct("{"):
			depth++
		case tok.IsPunct(")") || tok.IsPunct("]") || tok.IsPunct("}"):
			depth--
			if depth < 0 {
				return "", tok.Off, compileErrorf(tok.Off, "unbalanced %q in expression", tok.Text)
			}
		}
		if start < 0 {
			start = tok.Off
		}
		sc.Next()
	}
	if start < 0 || strings.TrimSpace(src[start:end]) == "" {
		return "", end, compileErrorf(end, "missing expression")
	}
	return strings.TrimSpace(src[start:end]), start, nil
}

func describe(t scan.Token) string {
	if t.Kind == scan.KindEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.Text)
}

// unquote strips the surrounding quotes of a string token and resolves
// backslash escapes.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	body := s[1 : len(s)-1]
	if !strings.Contains(body, `\`) {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if ch != '\\' || i+1 >= len(body) {
			b.WriteByte(ch)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(body[i])
		}
	}
	return b.String()
}
