package lang

import "unicode/utf8"

// segmentKind discriminates raw source segments produced by the scanner.
type segmentKind int

const (
	segmentText segmentKind = iota
	segmentTag
	segmentComment
)

// segment is a contiguous run of source: literal text, the body of a tag
// (the characters between "[[" and "]]"), or the body of a comment.
type segment struct {
	kind    segmentKind
	pos     Position // first character of the segment ("[[" for tags)
	bodyPos Position // first character of a tag or comment body
	body    string
}

// scanner splits template source into text and tag segments. Tag
// delimiters inside double-quoted strings within a tag body are inert, as
// are "]]" sequences in literal text. Comment bodies are opaque: only
// "#]]" ends them.
type scanner struct {
	input []byte
	pos   int
	line  int
	col   int
}

func newScanner(input string) *scanner {
	return &scanner{input: []byte(input), line: 1, col: 1}
}

func (s *scanner) scan() ([]segment, error) {
	segs := make([]segment, 0, 16)
	textPos := s.position()
	textStart := s.pos

	flush := func() {
		if s.pos > textStart {
			segs = append(segs, segment{
				kind: segmentText,
				pos:  textPos,
				body: string(s.input[textStart:s.pos]),
			})
		}
	}

	for !s.eof() {
		if s.peekN(2) != "[[" {
			s.advance()

			continue
		}

		flush()

		tagPos := s.position()

		s.advance()
		s.advance()

		var (
			seg segment
			err error
		)

		if s.peek() == '#' {
			s.advance()

			seg, err = s.scanComment(tagPos)
		} else {
			seg, err = s.scanTag(tagPos)
		}

		if err != nil {
			return nil, err
		}

		segs = append(segs, seg)

		textPos = s.position()
		textStart = s.pos
	}

	flush()

	return segs, nil
}

// scanComment consumes a comment body up to "#]]". The error position for
// an unterminated comment is the first character after the "[[#" opener.
func (s *scanner) scanComment(tagPos Position) (segment, error) {
	bodyPos := s.position()
	bodyStart := s.pos

	for !s.eof() {
		if s.peekN(3) == "#]]" {
			body := string(s.input[bodyStart:s.pos])

			s.advance()
			s.advance()
			s.advance()

			return segment{
				kind:    segmentComment,
				pos:     tagPos,
				bodyPos: bodyPos,
				body:    body,
			}, nil
		}

		s.advance()
	}

	return segment{}, newParseError(bodyPos, "Unterminated comment")
}

// scanTag consumes a tag body up to "]]", skipping over string literals so
// that a "]]" inside quotes does not close the tag.
func (s *scanner) scanTag(tagPos Position) (segment, error) {
	bodyPos := s.position()
	bodyStart := s.pos

	for !s.eof() {
		switch {
		case s.peekN(2) == "]]":
			body := string(s.input[bodyStart:s.pos])

			s.advance()
			s.advance()

			return segment{
				kind:    segmentTag,
				pos:     tagPos,
				bodyPos: bodyPos,
				body:    body,
			}, nil

		case s.peek() == '"':
			if err := s.skipString(); err != nil {
				return segment{}, err
			}

		default:
			s.advance()
		}
	}

	return segment{}, newParseError(tagPos, "Unterminated bloc")
}

// skipString advances past a double-quoted string literal, honoring
// backslash escapes. The error position for an unterminated string is the
// opening quote.
func (s *scanner) skipString() error {
	quotePos := s.position()

	s.advance()

	for !s.eof() {
		switch s.peek() {
		case '\\':
			s.advance()

			if !s.eof() {
				s.advance()
			}

		case '"':
			s.advance()

			return nil

		default:
			s.advance()
		}
	}

	return newParseError(quotePos, "Unterminated string")
}

// eof returns true when all input has been consumed.
func (s *scanner) eof() bool { return s.pos >= len(s.input) }

// peek returns the rune at the current position without consuming it.
func (s *scanner) peek() rune {
	if s.eof() {
		return 0
	}

	r, _ := utf8.DecodeRune(s.input[s.pos:])

	return r
}

// peekN returns the next n bytes without consuming them.
func (s *scanner) peekN(n int) string {
	end := min(s.pos+n, len(s.input))

	return string(s.input[s.pos:end])
}

// advance consumes and returns the rune at the current position, updating
// line and column bookkeeping.
func (s *scanner) advance() rune {
	if s.eof() {
		return 0
	}

	r, size := utf8.DecodeRune(s.input[s.pos:])
	s.pos += size

	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}

	return r
}

// position returns the current position in the input.
func (s *scanner) position() Position {
	return Position{Offset: s.pos, Line: s.line, Column: s.col}
}
