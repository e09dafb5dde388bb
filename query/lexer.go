package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of lexical token.
type TokenType int

const (
	TokenWord TokenType = iota
	TokenQuoted
	TokenEOF
)

// Token represents a lexical token.
type Token struct {
	Type     TokenType
	Value    string
	Position int
	Length   int
}

// lexer splits a search string into words and at most one quoted segment.
type lexer struct {
	input string
	pos   int

	// Byte offsets of the opening and closing quote of the exact-match
	// segment, or -1 when the input has none.
	quoteStart int
	quoteEnd   int

	// quoted holds the exact-match token when it was read from inside a word.
	quoted *Token
}

// newLexer creates a new lexer for the given input.
func newLexer(input string) *lexer {
	start, end := findQuoted(input)
	return &lexer{
		input:      input,
		pos:        0,
		quoteStart: start,
		quoteEnd:   end,
	}
}

// findQuoted locates the first `"` + one or more non-quote characters + `"`.
// A pair of adjacent quotes is skipped and the second quote may open the
// segment instead.
func findQuoted(input string) (int, int) {
	i := strings.IndexByte(input, '"')
	for i != -1 {
		j := strings.IndexByte(input[i+1:], '"')
		if j == -1 {
			return -1, -1
		}
		j += i + 1
		if j > i+1 {
			return i, j
		}
		i = j
	}
	return -1, -1
}

// tokenize converts the input string into a slice of tokens.
func (l *lexer) tokenize() []Token {
	var tokens []Token

	for l.pos < len(l.input) {
		if l.pos == l.quoteStart {
			tokens = append(tokens, l.readQuoted())
			continue
		}

		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if unicode.IsSpace(r) {
			l.pos += size
			continue
		}

		tokens = append(tokens, l.readWord())
		if l.quoted != nil {
			tokens = append(tokens, *l.quoted)
			l.quoted = nil
		}
	}

	tokens = append(tokens, Token{Type: TokenEOF, Value: "", Position: l.pos, Length: 0})
	return tokens
}

// readQuoted reads the exact-match segment. The content is kept verbatim.
func (l *lexer) readQuoted() Token {
	token := Token{
		Type:     TokenQuoted,
		Value:    l.input[l.quoteStart+1 : l.quoteEnd],
		Position: l.quoteStart,
		Length:   l.quoteEnd - l.quoteStart + 1,
	}
	l.pos = l.quoteEnd + 1
	return token
}

// readWord reads a maximal run of non-whitespace characters. The quoted
// segment is cut out of the input first, so the text on both sides of it
// forms one word: `set:base"x"1` yields "set:base1".
func (l *lexer) readWord() Token {
	startPos := l.pos
	var value strings.Builder

	for l.pos < len(l.input) {
		if l.pos == l.quoteStart {
			quoted := l.readQuoted()
			l.quoted = &quoted
			continue
		}
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if unicode.IsSpace(r) {
			break
		}
		value.WriteString(l.input[l.pos : l.pos+size])
		l.pos += size
	}

	return Token{
		Type:     TokenWord,
		Value:    value.String(),
		Position: startPos,
		Length:   l.pos - startPos,
	}
}
