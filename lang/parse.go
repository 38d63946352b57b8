package lang

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ardnew/bloc/log"
)

// parseConfig collects parsing options.
type parseConfig struct {
	fileName string
	logger   log.Logger
}

// ParseOption configures parsing behavior.
type ParseOption func(*parseConfig)

// WithFileName names the source in positional diagnostics.
func WithFileName(name string) ParseOption {
	return func(cfg *parseConfig) { cfg.fileName = name }
}

// WithLogger sets the structured logger for trace-level parse events.
// If not provided, the logger is zero-valued and all logging is a no-op.
func WithLogger(logger log.Logger) ParseOption {
	return func(cfg *parseConfig) { cfg.logger = logger }
}

// ParseString parses a template document. Results for identical content
// are cached when no options are given.
func ParseString(
	ctx context.Context,
	source string,
	opts ...ParseOption,
) (*Template, error) {
	if len(opts) == 0 {
		return parseStringCached(ctx, source)
	}

	var cfg parseConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return parseDocument(ctx, source, cfg)
}

// parseDocument is the internal parsing implementation: scan, classify,
// swallow structural lines, then assemble the tree.
func parseDocument(
	ctx context.Context,
	source string,
	cfg parseConfig,
) (*Template, error) {
	cfg.logger.TraceContext(
		ctx,
		"parse start",
		slog.Int("source_length", len(source)),
		slog.String("file", cfg.fileName),
	)

	segs, err := newScanner(source).scan()
	if err != nil {
		return nil, decorateParseError(err, cfg.fileName, source)
	}

	pieces := swallowLines(explodeLines(classify(segs)))

	t, err := assemble(pieces, endPosition(source))
	if err != nil {
		return nil, decorateParseError(err, cfg.fileName, source)
	}

	t.Name = cfg.fileName
	t.source = source

	cfg.logger.TraceContext(
		ctx,
		"parse complete",
		slog.Int("node_count", len(t.Nodes)),
	)

	return t, nil
}

// decorateParseError attaches the file name and source text to positional
// errors so messages and Detail snippets are complete.
func decorateParseError(err error, fileName, source string) error {
	pe := &ParseError{}
	if errors.As(err, &pe) {
		pe.FileName = fileName
		pe.Source = source
	}

	return err
}

// endPosition returns the position one past the final rune of source.
func endPosition(source string) Position {
	line := 1 + strings.Count(source, "\n")
	last := strings.LastIndexByte(source, '\n')
	col := utf8.RuneCountInString(source[last+1:]) + 1

	return Position{Offset: len(source), Line: line, Column: col}
}

// tagKind classifies a piece of the document by its leading sigil.
type tagKind int

const (
	tagText tagKind = iota
	tagComment
	tagInline
	tagOpen
	tagOpenImplicit
	tagClose
	tagPropOpen
	tagPropOpenImplicit
)

// piece is a classified segment ready for line swallowing and assembly.
// For tags, body excludes the sigil and bodyPos points past it.
type piece struct {
	kind       tagKind
	pos        Position
	body       string
	bodyPos    Position
	structural bool
}

func classify(segs []segment) []piece {
	pieces := make([]piece, 0, len(segs))

	for _, seg := range segs {
		switch seg.kind {
		case segmentText:
			pieces = append(pieces, piece{kind: tagText, pos: seg.pos, body: seg.body})

		case segmentComment:
			pieces = append(pieces, piece{kind: tagComment, pos: seg.pos, body: seg.body})

		case segmentTag:
			kind, body, bodyPos := classifyTag(seg)
			pieces = append(pieces, piece{
				kind:       kind,
				pos:        seg.pos,
				body:       body,
				bodyPos:    bodyPos,
				structural: kind != tagInline || inlineStructural(body),
			})
		}
	}

	return pieces
}

// classifyTag inspects the leading sigil of a tag body. A "-" followed by
// ">" is not a closer: it introduces a bare parameter list.
func classifyTag(seg segment) (tagKind, string, Position) {
	body := seg.body

	past := func(n int) (string, Position) {
		p := seg.bodyPos
		p.Offset += n
		p.Column += n

		return body[n:], p
	}

	switch {
	case strings.HasPrefix(body, "+:"):
		rest, pos := past(2)

		return tagPropOpen, rest, pos

	case strings.HasPrefix(body, "+"):
		rest, pos := past(1)

		return tagOpen, rest, pos

	case strings.HasPrefix(body, "*:"):
		rest, pos := past(2)

		return tagPropOpenImplicit, rest, pos

	case strings.HasPrefix(body, "*"):
		rest, pos := past(1)

		return tagOpenImplicit, rest, pos

	case strings.HasPrefix(body, "-") && !strings.HasPrefix(body, "->"):
		rest, pos := past(1)

		return tagClose, rest, pos
	}

	return tagInline, body, seg.bodyPos
}

// inlineStructural reports whether a sigil-less tag counts as structural
// for line swallowing: a value-property definition ("key: expr") or a
// bare parameter list ("-> names" / "=> names"). Plain value blocs render
// output, so their lines are preserved.
func inlineStructural(body string) bool {
	s := strings.TrimLeftFunc(body, unicode.IsSpace)

	if strings.HasPrefix(s, "->") || strings.HasPrefix(s, "=>") {
		return true
	}

	r, size := utf8.DecodeRuneInString(s)
	if !isIdentifierStart(r) {
		return false
	}

	i := size
	for i < len(s) {
		r, size = utf8.DecodeRuneInString(s[i:])
		if !isIdentifierContinue(r) {
			break
		}

		i += size
	}

	rest := strings.TrimLeftFunc(s[i:], unicode.IsSpace)

	return strings.HasPrefix(rest, ":")
}

// explodeLines splits text pieces at newline boundaries so that each text
// piece spans at most one source line, with any newline at its end. Line
// swallowing then operates on whole pieces.
func explodeLines(pieces []piece) []piece {
	out := make([]piece, 0, len(pieces))

	for _, pc := range pieces {
		if pc.kind != tagText {
			out = append(out, pc)

			continue
		}

		body, pos := pc.body, pc.pos

		for {
			i := strings.IndexByte(body, '\n')
			if i < 0 {
				if body != "" {
					out = append(out, piece{kind: tagText, pos: pos, body: body})
				}

				break
			}

			chunk := body[:i+1]
			out = append(out, piece{kind: tagText, pos: pos, body: chunk})

			pos.Offset += len(chunk)
			pos.Line++
			pos.Column = 1
			body = body[i+1:]
		}
	}

	return out
}

// swallowLines elides the whitespace and trailing newline of every line
// that consists solely of structural tags, so openers, closers, and
// property tags do not leave blank lines in rendered output. Lines mixing
// tags with real text, and lines holding inline value blocs or comments,
// pass through verbatim.
func swallowLines(pieces []piece) []piece {
	out := make([]piece, 0, len(pieces))
	line := make([]piece, 0, 8)

	flush := func() {
		if len(line) == 0 {
			return
		}

		structural, rendered, wsOnly := 0, false, true

		for _, pc := range line {
			switch {
			case pc.kind == tagText:
				if strings.TrimSpace(pc.body) != "" {
					wsOnly = false
				}

			case pc.structural:
				structural++

			default:
				rendered = true
			}
		}

		if structural > 0 && !rendered && wsOnly {
			for _, pc := range line {
				if pc.kind != tagText {
					out = append(out, pc)
				}
			}
		} else {
			out = append(out, line...)
		}

		line = line[:0]
	}

	for _, pc := range pieces {
		line = append(line, pc)

		if pc.kind == tagText && strings.HasSuffix(pc.body, "\n") {
			flush()
		}
	}

	flush()

	return out
}

// assemble builds the template tree from classified pieces, maintaining
// the bloc stack and enforcing structural rules in document order.
func assemble(pieces []piece, eof Position) (*Template, error) {
	st := newStack()
	root := &Template{}

	for _, pc := range pieces {
		switch pc.kind {
		case tagText:
			st.append(&Text{Pos: pc.pos, Value: pc.body})

		case tagComment:
			st.append(&Comment{Pos: pc.pos, Text: pc.body})

		case tagInline:
			if err := assembleInline(st, root, pc); err != nil {
				return nil, err
			}

		case tagOpen, tagOpenImplicit:
			if err := assembleOpen(st, pc); err != nil {
				return nil, err
			}

		case tagClose:
			expr, params, err := parseExprBody(pc.body, pc.bodyPos)
			if err != nil {
				return nil, err
			}

			if params != nil {
				return nil, newParseError(params.Pos, "Only opening blocs can have parameters")
			}

			if err := st.pop(expr, pc.pos); err != nil {
				return nil, err
			}

		case tagPropOpen, tagPropOpenImplicit:
			if err := assemblePropertyOpen(st, pc); err != nil {
				return nil, err
			}
		}
	}

	if err := st.unwind(eof); err != nil {
		return nil, err
	}

	root.Nodes = st.frames[0].nodes

	return root, nil
}

// assembleInline handles a sigil-less tag: a value bloc, a value-property
// definition, or a bare parameter list (legal only at the document root).
func assembleInline(st *stack, root *Template, pc piece) error {
	expr, def, params, err := parseInlineBody(pc.body, pc.bodyPos)
	if err != nil {
		return err
	}

	switch {
	case def != nil:
		st.autoClose()

		return attachProperty(st, pc.pos, def)

	case expr == nil:
		if st.depth() > 1 {
			return newParseError(pc.pos, "Only opening blocs can have parameters")
		}

		mergeRootParams(root, params)

		return nil

	case params != nil:
		return newParseError(params.Pos, "Only opening blocs can have parameters")
	}

	st.append(&Bloc{Pos: pc.pos, Identity: expr})

	return nil
}

func assembleOpen(st *stack, pc piece) error {
	expr, params, err := parseExprBody(pc.body, pc.bodyPos)
	if err != nil {
		return err
	}

	if expr == nil {
		// An opener sigil followed directly by a parameter list has no
		// identifying expression.
		return newParseError(params.Pos, "Unexpected character in bloc")
	}

	st.autoClose()

	explicit := pc.kind == tagOpen

	f := frame{bloc: &Bloc{
		Pos:      pc.pos,
		Identity: expr,
		Params:   params,
		Implicit: !explicit,
	}}

	if explicit {
		f.closeID = expr
	}

	st.push(f)

	return nil
}

func assemblePropertyOpen(st *stack, pc piece) error {
	def, err := parsePropertyBody(pc.body, pc.bodyPos)
	if err != nil {
		return err
	}

	def.Explicit = pc.kind == tagPropOpen

	st.autoClose()

	if err := attachProperty(st, pc.pos, def); err != nil {
		return err
	}

	f := frame{prop: def}
	if def.Explicit {
		f.closeID = &Ident{Pos: def.Pos, Name: def.Key}
	}

	st.push(f)

	return nil
}

// attachProperty adds a definition to the innermost open bloc. Properties
// may not nest and may not appear at the document root.
func attachProperty(st *stack, pos Position, def *Property) error {
	top := st.top()

	switch {
	case top.prop != nil:
		return newParseError(pos, "Properties cannot be defined on a property")

	case top.bloc == nil:
		return newParseError(pos, "Properties cannot be defined at the root of a document")
	}

	top.bloc.Properties = append(top.bloc.Properties, def)

	return nil
}

// mergeRootParams accumulates repeated root-level parameter declarations
// into a single list. The first declaration decides local versus global.
func mergeRootParams(root *Template, params *ParamList) {
	if root.Params == nil {
		root.Params = params

		return
	}

	root.Params.Names = append(root.Params.Names, params.Names...)
}
