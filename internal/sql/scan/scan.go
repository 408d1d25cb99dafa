// Package scan tokenizes statement text into words, numbers, strings and
// punctuation, tracking byte offsets so callers can slice exact source spans.
package scan

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind classifies a token.
type Kind int

const (
	// KindWord is an identifier or keyword.
	KindWord Kind = iota
	// KindNumber is an integer or decimal literal.
	KindNumber
	// KindString is a quoted literal, quotes included in Text.
	KindString
	// KindPunct is a single punctuation character.
	KindPunct
	// KindSeparator is the statement separator ";".
	KindSeparator
	// KindEOF marks the end of input. Its offset is len(source).
	KindEOF
	// KindIllegal marks an unterminated string literal.
	KindIllegal
)

func (k Kind) String() string {
	switch k {
	case KindWord:
		return "word"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindPunct:
		return "punctuation"
	case KindSeparator:
		return "separator"
	case KindEOF:
		return "end of input"
	case KindIllegal:
		return "illegal"
	default:
		return "unknown"
	}
}

// Token is one lexical unit of the source text.
type Token struct {
	Kind Kind
	// Text is the raw source span of the token.
	Text string
	// Off is the byte offset of the first character of the token.
	Off int
}

// IsWord reports whether the token is a word matching s case-insensitively.
func (t Token) IsWord(s string) bool {
	return t.Kind == KindWord && strings.EqualFold(t.Text, s)
}

// IsPunct reports whether the token is the given punctuation character.
func (t Token) IsPunct(s string) bool {
	return t.Kind == KindPunct && t.Text == s
}

// Scanner walks statement text one token at a time with single-token
// lookahead. The zero value is not usable, construct with New.
type Scanner struct {
	src    string
	pos    int
	peeked bool
	tok    Token
}

// New returns a scanner over src.
func New(src string) *Scanner {
	return &Scanner{src: src}
}

// Source returns the full text being scanned.
func (s *Scanner) Source() string { return s.src }

// Peek returns the next token without consuming it.
func (s *Scanner) Peek() Token {
	if !s.peeked {
		s.tok = s.scan()
		s.peeked = true
	}
	return s.tok
}

// Next consumes and returns the next token. At the end of input it returns
// KindEOF forever.
func (s *Scanner) Next() Token {
	t := s.Peek()
	if t.Kind != KindEOF {
		s.peeked = false
	}
	return t
}

func (s *Scanner) scan() Token {
	s.skipSpace()
	if s.pos >= len(s.src) {
		return Token{Kind: KindEOF, Off: len(s.src)}
	}

	start := s.pos
	r, size := utf8.DecodeRuneInString(s.src[s.pos:])
	switch {
	case r == ';':
		s.pos += size
		return Token{Kind: KindSeparator, Text: ";", Off: start}
	case r == '\'' || r == '"':
		return s.scanString(r)
	case isWordStart(r):
		s.pos += size
		for s.pos < len(s.src) {
			r, size := utf8.DecodeRuneInString(s.src[s.pos:])
			if !isWordPart(r) {
				break
			}
			s.pos += size
		}
		return Token{Kind: KindWord, Text: s.src[start:s.pos], Off: start}
	case r >= '0' && r <= '9':
		return s.scanNumber()
	default:
		s.pos += size
		return Token{Kind: KindPunct, Text: s.src[start:s.pos], Off: start}
	}
}

func (s *Scanner) scanString(quote rune) Token {
	start := s.pos
	s.pos++ // opening quote, always one byte
	for s.pos < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.pos:])
		s.pos += size
		switch r {
		case '\\':
			if s.pos < len(s.src) {
				_, esc := utf8.DecodeRuneInString(s.src[s.pos:])
				s.pos += esc
			}
		case quote:
			return Token{Kind: KindString, Text: s.src[start:s.pos], Off: start}
		}
	}
	return Token{Kind: KindIllegal, Text: s.src[start:], Off: start}
}

func (s *Scanner) scanNumber() Token {
	start := s.pos
	sawDot := false
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c >= '0' && c <= '9' {
			s.pos++
			continue
		}
		if c == '.' && !sawDot {
			sawDot = true
			s.pos++
			continue
		}
		break
	}
	return Token{Kind: KindNumber, Text: s.src[start:s.pos], Off: start}
}

func (s *Scanner) skipSpace() {
	for s.pos < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		s.pos += size
	}
}

func isWordStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isWordPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
