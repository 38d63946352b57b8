package lang

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenKind discriminates tokens produced from a tag body.
type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenPunct
)

// token is a single lexical element of a tag body. For strings, text holds
// the decoded value; for punctuation, the operator spelling; for numbers,
// num holds the parsed value.
type token struct {
	kind tokenKind
	pos  Position
	text string
	num  float64
}

// lexer tokenizes one tag body. Positions are absolute within the full
// template source, seeded from the body's starting position.
type lexer struct {
	input []byte
	pos   int
	line  int
	col   int
	base  int // byte offset of the body within the template source
}

// twoRunePunct lists multi-rune operators, matched before single runes.
var twoRunePunct = []string{"||", "&&", "==", "!=", "<=", ">=", "->", "=>"}

const oneRunePunct = "|<>+-*/%!()[]{},:."

// lexBody tokenizes body, reporting positions relative to base. The token
// stream always ends with a tokenEOF entry.
func lexBody(body string, base Position) ([]token, error) {
	lx := &lexer{
		input: []byte(body),
		line:  base.Line,
		col:   base.Column,
		base:  base.Offset,
	}

	toks := make([]token, 0, 8)

	for {
		lx.skipWhitespace()

		if lx.eof() {
			toks = append(toks, token{kind: tokenEOF, pos: lx.position()})

			return toks, nil
		}

		tok, err := lx.next()
		if err != nil {
			return nil, err
		}

		toks = append(toks, tok)
	}
}

func (lx *lexer) next() (token, error) {
	pos := lx.position()
	r := lx.peek()

	switch {
	case isIdentifierStart(r):
		return token{kind: tokenIdent, pos: pos, text: lx.scanIdentifier()}, nil

	case unicode.IsDigit(r):
		return lx.scanNumber(pos)

	case r == '"':
		return lx.scanString(pos)
	}

	if two := lx.peekN(2); len(two) == 2 {
		for _, p := range twoRunePunct {
			if two == p {
				lx.advance()
				lx.advance()

				return token{kind: tokenPunct, pos: pos, text: p}, nil
			}
		}
	}

	if strings.ContainsRune(oneRunePunct, r) {
		lx.advance()

		return token{kind: tokenPunct, pos: pos, text: string(r)}, nil
	}

	return token{}, newParseError(pos, "Unexpected character in bloc")
}

func (lx *lexer) scanIdentifier() string {
	start := lx.pos

	for !lx.eof() && isIdentifierContinue(lx.peek()) {
		lx.advance()
	}

	return string(lx.input[start:lx.pos])
}

// scanNumber consumes an integer, decimal, or exponential literal. The
// fraction and exponent are only consumed when well-formed, so trailing
// text like the "e" of "12e" is left for the next token.
func (lx *lexer) scanNumber(pos Position) (token, error) {
	start := lx.pos

	for !lx.eof() && unicode.IsDigit(lx.peek()) {
		lx.advance()
	}

	if lx.peek() == '.' && len(lx.peekN(2)) == 2 &&
		unicode.IsDigit(rune(lx.peekN(2)[1])) {
		lx.advance()

		for !lx.eof() && unicode.IsDigit(lx.peek()) {
			lx.advance()
		}
	}

	if r := lx.peek(); r == 'e' || r == 'E' {
		if rest := lx.peekN(3); isExponent(rest) {
			lx.advance()

			if r := lx.peek(); r == '+' || r == '-' {
				lx.advance()
			}

			for !lx.eof() && unicode.IsDigit(lx.peek()) {
				lx.advance()
			}
		}
	}

	raw := string(lx.input[start:lx.pos])

	num, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		// Out-of-range magnitudes saturate to an IEEE-754 infinity.
		numErr := &strconv.NumError{}
		if !errors.As(err, &numErr) || !errors.Is(numErr.Err, strconv.ErrRange) {
			return token{}, newParseError(pos, "Unexpected character in bloc")
		}
	}

	return token{kind: tokenNumber, pos: pos, num: num}, nil
}

// isExponent reports whether s begins an exponent suffix: "e" or "E"
// followed by an optional sign and at least one digit.
func isExponent(s string) bool {
	if len(s) < 2 {
		return false
	}

	rest := s[1:]
	if rest[0] == '+' || rest[0] == '-' {
		if len(rest) < 2 {
			return false
		}

		rest = rest[1:]
	}

	return rest[0] >= '0' && rest[0] <= '9'
}

// scanString consumes a double-quoted literal and decodes its escapes.
func (lx *lexer) scanString(pos Position) (token, error) {
	start := lx.pos

	lx.advance()

	for !lx.eof() {
		switch lx.peek() {
		case '\\':
			lx.advance()

			if !lx.eof() {
				lx.advance()
			}

		case '"':
			lx.advance()

			raw := string(lx.input[start:lx.pos])

			text, err := strconv.Unquote(raw)
			if err != nil {
				return token{}, newParseError(pos, "Unexpected character in bloc")
			}

			return token{kind: tokenString, pos: pos, text: text}, nil

		default:
			lx.advance()
		}
	}

	return token{}, newParseError(pos, "Unterminated string")
}

func (lx *lexer) skipWhitespace() {
	for !lx.eof() && unicode.IsSpace(lx.peek()) {
		lx.advance()
	}
}

func (lx *lexer) eof() bool { return lx.pos >= len(lx.input) }

func (lx *lexer) peek() rune {
	if lx.eof() {
		return 0
	}

	r, _ := utf8.DecodeRune(lx.input[lx.pos:])

	return r
}

func (lx *lexer) peekN(n int) string {
	end := min(lx.pos+n, len(lx.input))

	return string(lx.input[lx.pos:end])
}

func (lx *lexer) advance() rune {
	if lx.eof() {
		return 0
	}

	r, size := utf8.DecodeRune(lx.input[lx.pos:])
	lx.pos += size

	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}

	return r
}

func (lx *lexer) position() Position {
	return Position{Offset: lx.base + lx.pos, Line: lx.line, Column: lx.col}
}

// isIdentifierStart reports whether r may begin an identifier.
func isIdentifierStart(r rune) bool {
	return r == '_' || unicode.In(r, unicode.L, unicode.Nl, unicode.Other_ID_Start)
}

// isIdentifierContinue reports whether r may appear after the first rune
// of an identifier.
func isIdentifierContinue(r rune) bool {
	return isIdentifierStart(r) ||
		unicode.In(r, unicode.Mn, unicode.Mc, unicode.Nd, unicode.Pc, unicode.Other_ID_Continue)
}
