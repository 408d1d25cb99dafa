package expr

import (
	"errors"
	"fmt"
)

// ErrCompile is the sentinel wrapped by every CompileError.
var ErrCompile = errors.New("expression compile failed")

// CompileError reports a rejected expression together with the byte offset of
// the offending span in the statement source.
type CompileError struct {
	Pos int
	Msg string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error at position %d: %s", e.Pos, e.Msg)
}

func (e *CompileError) Unwrap() error { return ErrCompile }

func compileErrorf(pos int, format string, args ...any) *CompileError {
	return &CompileError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
