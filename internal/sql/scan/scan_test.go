package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(src string) []Token {
	s := New(src)
	var out []Token
	for {
		t := s.Next()
		out = append(out, t)
		if t.Kind == KindEOF || t.Kind == KindIllegal {
			return out
		}
	}
}

func TestScanStatement(t *testing.T) {
	src := `UPDATE users SET Age = Age + 1 WHERE Age > 60;`
	toks := collect(src)

	want := []struct {
		kind Kind
		text string
	}{
		{KindWord, "UPDATE"},
		{KindWord, "users"},
		{KindWord, "SET"},
		{KindWord, "Age"},
		{KindPunct, "="},
		{KindWord, "Age"},
		{KindPunct, "+"},
		{KindNumber, "1"},
		{KindWord, "WHERE"},
		{KindWord, "Age"},
		{KindPunct, ">"},
		{KindNumber, "60"},
		{KindSeparator, ";"},
		{KindEOF, ""},
	}
	require.Len(t, toks, len(want))
	for i, w := range want {
		assert.Equal(t, w.kind, toks[i].Kind, "token %d", i)
		assert.Equal(t, w.text, toks[i].Text, "token %d", i)
	}
}

func TestScanOffsets(t *testing.T) {
	src := `a = 'x'`
	toks := collect(src)

	require.Len(t, toks, 4)
	assert.Equal(t, 0, toks[0].Off)
	assert.Equal(t, 2, toks[1].Off)
	assert.Equal(t, 4, toks[2].Off)
	assert.Equal(t, len(src), toks[3].Off)
}

func TestScanStringLiterals(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"single quoted", `'hello'`, `'hello'`},
		{"double quoted", `"hello"`, `"hello"`},
		{"embedded separator", `'a;b'`, `'a;b'`},
		{"embedded brace", `'a}b'`, `'a}b'`},
		{"escaped quote", `'a\'b'`, `'a\'b'`},
		{"escaped backslash", `'a\\'`, `'a\\'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := collect(tt.src)
			require.GreaterOrEqual(t, len(toks), 2)
			assert.Equal(t, KindString, toks[0].Kind)
			assert.Equal(t, tt.want, toks[0].Text)
			assert.Equal(t, KindEOF, toks[1].Kind)
		})
	}
}

func TestScanUnterminatedString(t *testing.T) {
	toks := collect(`name = 'oops`)
	last := toks[len(toks)-1]
	assert.Equal(t, KindIllegal, last.Kind)
	assert.Equal(t, `'oops`, last.Text)
}

func TestScanNumbers(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"integer", "42", "42"},
		{"decimal", "3.14", "3.14"},
		{"leading zero", "0.5", "0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := collect(tt.src)
			assert.Equal(t, KindNumber, toks[0].Kind)
			assert.Equal(t, tt.want, toks[0].Text)
		})
	}
}

func TestScanUnicodeWord(t *testing.T) {
	src := "café = 1"
	toks := collect(src)

	assert.Equal(t, KindWord, toks[0].Kind)
	assert.Equal(t, "café", toks[0].Text)
	// Offsets are byte offsets, é is two bytes.
	assert.Equal(t, 6, toks[1].Off)
}

func TestScanPeekDoesNotConsume(t *testing.T) {
	s := New("a b")

	assert.Equal(t, "a", s.Peek().Text)
	assert.Equal(t, "a", s.Peek().Text)
	assert.Equal(t, "a", s.Next().Text)
	assert.Equal(t, "b", s.Next().Text)
	assert.Equal(t, KindEOF, s.Next().Kind)
	assert.Equal(t, KindEOF, s.Next().Kind)
}

func TestTokenIsWord(t *testing.T) {
	tok := Token{Kind: KindWord, Text: "Update"}
	assert.True(t, tok.IsWord("UPDATE"))
	assert.True(t, tok.IsWord("update"))
	assert.False(t, tok.IsWord("set"))
	assert.False(t, Token{Kind: KindString, Text: `"update"`}.IsWord("update"))
}
