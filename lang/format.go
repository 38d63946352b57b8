package lang

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Printing precedence for expression contexts. Binary operators use their
// parsing precedence (1-7); tighter contexts force parentheses around
// looser children.
const (
	unaryPrintPrec   = 8
	postfixPrintPrec = 9
)

// ExprString returns the canonical source form of an expression. Parsing
// the result yields a structurally equal expression.
func ExprString(e Expr) string {
	var sb strings.Builder

	writeExpr(&sb, e, 0)

	return sb.String()
}

func writeExpr(sb *strings.Builder, e Expr, prec int) {
	switch x := e.(type) {
	case *Literal:
		sb.WriteString(literalString(x.Val))

	case *Ident:
		sb.WriteString(x.Name)

	case *Unary:
		paren := unaryPrintPrec < prec
		if paren {
			sb.WriteByte('(')
		}

		sb.WriteString(x.Op)
		writeExpr(sb, x.X, unaryPrintPrec)

		if paren {
			sb.WriteByte(')')
		}

	case *Binary:
		p := binaryPrec(x.Op)

		paren := p < prec
		if paren {
			sb.WriteByte('(')
		}

		writeExpr(sb, x.Left, p)
		sb.WriteString(" " + x.Op + " ")
		writeExpr(sb, x.Right, p+1)

		if paren {
			sb.WriteByte(')')
		}

	case *Member:
		writeExpr(sb, x.X, postfixPrintPrec)
		sb.WriteByte('.')
		sb.WriteString(x.Name)

	case *Index:
		writeExpr(sb, x.X, postfixPrintPrec)
		sb.WriteByte('[')
		writeExpr(sb, x.Key, 0)
		sb.WriteByte(']')

	case *Call:
		writeExpr(sb, x.Fn, postfixPrintPrec)
		sb.WriteByte('(')

		for i, a := range x.Args {
			if i > 0 {
				sb.WriteString(", ")
			}

			writeExpr(sb, a, 0)
		}

		sb.WriteByte(')')

	case *ArrayLit:
		sb.WriteByte('[')

		for i, el := range x.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}

			writeExpr(sb, el, 0)
		}

		sb.WriteByte(']')

	case *ObjectLit:
		sb.WriteByte('{')

		for i, f := range x.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}

			sb.WriteString(objectKeyString(f.Key))
			sb.WriteString(": ")
			writeExpr(sb, f.Value, 0)
		}

		sb.WriteByte('}')

	case *ParamList:
		sb.WriteString(paramListString(x))
	}
}

func paramListString(p *ParamList) string {
	arrow := "->"
	if p.Global {
		arrow = "=>"
	}

	return arrow + " " + strings.Join(p.Names, " ")
}

// objectKeyString prints a key bare when it is a valid identifier, quoted
// otherwise.
func objectKeyString(key string) string {
	if key == "" {
		return strconv.Quote(key)
	}

	for i, r := range key {
		if i == 0 && !isIdentifierStart(r) {
			return strconv.Quote(key)
		}

		if i > 0 && !isIdentifierContinue(r) {
			return strconv.Quote(key)
		}
	}

	return key
}

// literalString returns the canonical source form of a literal value.
func literalString(v any) string {
	switch t := v.(type) {
	case float64:
		return formatNumber(t)

	case string:
		return strconv.Quote(t)

	case bool:
		if t {
			return "true"
		}

		return "false"

	case nil:
		return "null"

	case Undefined:
		return "undefined"
	}

	return ""
}

// formatNumber renders a double in its canonical form: integral values
// below 1e21 in magnitude print without fraction or exponent, everything
// else prints in the shortest round-trippable form.
func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}

	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FormatSource rewrites every tag body of a template document into its
// canonical spelling, leaving literal text, comments, and tag placement
// untouched. Rendering the result is byte-identical to rendering the
// input.
func FormatSource(source string) (string, error) {
	segs, err := newScanner(source).scan()
	if err != nil {
		return "", attachSource(err, source)
	}

	var sb strings.Builder

	for _, seg := range segs {
		switch seg.kind {
		case segmentText:
			sb.WriteString(seg.body)

		case segmentComment:
			sb.WriteString("[[#")
			sb.WriteString(seg.body)
			sb.WriteString("#]]")

		case segmentTag:
			body, err := formatTagBody(seg)
			if err != nil {
				return "", attachSource(err, source)
			}

			sb.WriteString("[[")
			sb.WriteString(protectBody(body))
			sb.WriteString("]]")
		}
	}

	return sb.String(), nil
}

// protectBody pads a canonical tag body wherever its spelling would not
// survive a rescan: a "]]" pair outside a string literal would end the tag
// early, a trailing "]" would merge with the closing delimiter, and a
// leading "+" or "-" on a sigil-less body would be read as a sigil.
func protectBody(body string) string {
	var sb strings.Builder

	inString := false

	for i := 0; i < len(body); i++ {
		c := body[i]

		switch {
		case inString && c == '\\' && i+1 < len(body):
			sb.WriteByte(c)
			sb.WriteByte(body[i+1])
			i++

			continue

		case c == '"':
			inString = !inString

		case !inString && c == ']' && i+1 < len(body) && body[i+1] == ']':
			sb.WriteString("] ")

			continue
		}

		sb.WriteByte(c)
	}

	out := sb.String()

	if strings.HasSuffix(out, "]") && !inString {
		out += " "
	}

	return out
}

// guardSigil pads a sigil-less body whose canonical spelling begins with a
// rune the tag classifier would read as a sigil, so a formatted unary
// expression is not mistaken for an opener or closer.
func guardSigil(body string) string {
	switch {
	case strings.HasPrefix(body, "->"), strings.HasPrefix(body, "=>"):
		return body

	case strings.HasPrefix(body, "+"), strings.HasPrefix(body, "-"),
		strings.HasPrefix(body, "*"):
		return " " + body
	}

	return body
}

// formatTagBody produces the canonical body of one tag, sigil included.
func formatTagBody(seg segment) (string, error) {
	kind, body, bodyPos := classifyTag(seg)

	switch kind {
	case tagOpen, tagOpenImplicit:
		expr, params, err := parseExprBody(body, bodyPos)
		if err != nil {
			return "", err
		}

		sigil := "+"
		if kind == tagOpenImplicit {
			sigil = "*"
		}

		if expr == nil {
			// A bare parameter list after an opener sigil never parses.
			return "", newParseError(params.Pos, "Unexpected character in bloc")
		}

		out := sigil + ExprString(expr)
		if params != nil {
			out += " " + paramListString(params)
		}

		return out, nil

	case tagClose:
		expr, params, err := parseExprBody(body, bodyPos)
		if err != nil {
			return "", err
		}

		if expr == nil {
			return "", newParseError(params.Pos, "Unexpected character in bloc")
		}

		return "-" + ExprString(expr), nil

	case tagPropOpen, tagPropOpenImplicit:
		def, err := parsePropertyBody(body, bodyPos)
		if err != nil {
			return "", err
		}

		sigil := "+:"
		if kind == tagPropOpenImplicit {
			sigil = "*:"
		}

		return sigil + propertyHeadString(def), nil

	default:
		expr, def, params, err := parseInlineBody(body, bodyPos)
		if err != nil {
			return "", err
		}

		switch {
		case def != nil:
			return def.Key + ": " + ExprString(def.Value), nil

		case expr == nil:
			return paramListString(params), nil

		case params != nil:
			return guardSigil(ExprString(expr) + " " + paramListString(params)), nil
		}

		return guardSigil(ExprString(expr)), nil
	}
}

// propertyHeadString prints a property tag body: key, optional guard
// arguments, optional parameter list.
func propertyHeadString(def *Property) string {
	out := def.Key

	if def.Guard != nil {
		args := make([]string, len(def.Guard))
		for i, g := range def.Guard {
			args[i] = ExprString(g)
		}

		out += "(" + strings.Join(args, ", ") + ")"
	}

	if def.Params != nil {
		out += " " + paramListString(def.Params)
	}

	return out
}

// attachSource fills in the source text of a positional parse error so
// its Detail output can quote the offending line.
func attachSource(err error, source string) error {
	pe := &ParseError{}
	if errors.As(err, &pe) {
		pe.Source = source
	}

	return err
}
