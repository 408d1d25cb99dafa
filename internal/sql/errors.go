package sql

import (
	"errors"
	"fmt"

	"github.com/siltdb/silt/internal/sql/scan"
)

var (
	// ErrUnexpectedToken is returned when a token of the wrong kind appears.
	ErrUnexpectedToken = errors.New("unexpected token")
	// ErrMissingClause is returned when a required keyword is absent.
	ErrMissingClause = errors.New("missing clause")
	// ErrUnterminatedStatement is returned when the input ends early or
	// continues where the statement should end.
	ErrUnterminatedStatement = errors.New("statement not terminated")
)

// ParseError reports statement text rejected by the grammar, with the byte
// offset of the offending token. It wraps one of the sentinel errors above.
type ParseError struct {
	Pos int
	Msg string
	err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.err }

func newParseError(sentinel error, tok scan.Token, format string, args ...any) *ParseError {
	return &ParseError{
		Pos: tok.Off,
		Msg: fmt.Sprintf(format, args...),
		err: sentinel,
	}
}
