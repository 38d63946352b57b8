package lang

// exprParser consumes the token stream of a single tag body. The stream
// always terminates with a tokenEOF entry, so lookahead never runs off the
// end.
type exprParser struct {
	toks []token
	i    int
}

func newExprParser(toks []token) *exprParser {
	return &exprParser{toks: toks}
}

func (p *exprParser) cur() token { return p.toks[p.i] }

func (p *exprParser) next() token {
	t := p.toks[p.i]
	if t.kind != tokenEOF {
		p.i++
	}

	return t
}

func (p *exprParser) atEOF() bool { return p.toks[p.i].kind == tokenEOF }

func (p *exprParser) isPunct(s string) bool {
	t := p.cur()

	return t.kind == tokenPunct && t.text == s
}

func (p *exprParser) acceptPunct(s string) bool {
	if p.isPunct(s) {
		p.i++

		return true
	}

	return false
}

// unexpected reports the current token as unparseable: an exhausted body
// where an expression is required, or a token that cannot continue one.
func (p *exprParser) unexpected() *ParseError {
	t := p.cur()
	if t.kind == tokenEOF {
		return newParseError(t.pos, "Unexpected end of bloc")
	}

	return newParseError(t.pos, "Unexpected character in bloc")
}

// binaryPrec returns the binding strength of an infix operator, or 0 when
// the token is not an infix operator. The pipe binds loosest of all.
func binaryPrec(op string) int {
	switch op {
	case "|":
		return 1
	case "||":
		return 2
	case "&&":
		return 3
	case "==", "!=":
		return 4
	case "<", "<=", ">", ">=":
		return 5
	case "+", "-":
		return 6
	case "*", "/", "%":
		return 7
	}

	return 0
}

const lowestPrec = 1

// parseExpr parses an expression whose operators all bind at least as
// tightly as minPrec. All binary operators associate left.
func (p *exprParser) parseExpr(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		t := p.cur()
		if t.kind != tokenPunct {
			break
		}

		prec := binaryPrec(t.text)
		if prec == 0 || prec < minPrec {
			break
		}

		p.i++

		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}

		left = &Binary{Pos: left.Position(), Op: t.text, Left: left, Right: right}
	}

	return left, nil
}

func (p *exprParser) parseUnary() (Expr, error) {
	t := p.cur()
	if t.kind == tokenPunct && (t.text == "!" || t.text == "-" || t.text == "+") {
		p.i++

		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &Unary{Pos: t.pos, Op: t.text, X: x}, nil
	}

	return p.parsePostfix()
}

func (p *exprParser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.acceptPunct("."):
			t := p.cur()
			if t.kind != tokenIdent {
				return nil, p.unexpected()
			}

			p.i++

			x = &Member{Pos: x.Position(), X: x, Name: t.text}

		case p.acceptPunct("["):
			key, err := p.parseExpr(lowestPrec)
			if err != nil {
				return nil, err
			}

			if !p.acceptPunct("]") {
				return nil, p.unexpected()
			}

			x = &Index{Pos: x.Position(), X: x, Key: key}

		case p.isPunct("("):
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}

			x = &Call{Pos: x.Position(), Fn: x, Args: args}

		default:
			return x, nil
		}
	}
}

func (p *exprParser) parseArgs() ([]Expr, error) {
	p.i++ // consume "("

	if p.acceptPunct(")") {
		return nil, nil
	}

	var args []Expr

	for {
		a, err := p.parseExpr(lowestPrec)
		if err != nil {
			return nil, err
		}

		args = append(args, a)

		if p.acceptPunct(",") {
			continue
		}

		if p.acceptPunct(")") {
			return args, nil
		}

		return nil, p.unexpected()
	}
}

func (p *exprParser) parsePrimary() (Expr, error) {
	t := p.cur()

	switch t.kind {
	case tokenNumber:
		p.i++

		return &Literal{Pos: t.pos, Val: t.num}, nil

	case tokenString:
		p.i++

		return &Literal{Pos: t.pos, Val: t.text}, nil

	case tokenIdent:
		p.i++

		switch t.text {
		case "true":
			return &Literal{Pos: t.pos, Val: true}, nil
		case "false":
			return &Literal{Pos: t.pos, Val: false}, nil
		case "null":
			return &Literal{Pos: t.pos, Val: nil}, nil
		case "undefined":
			return &Literal{Pos: t.pos, Val: Undefined{}}, nil
		}

		return &Ident{Pos: t.pos, Name: t.text}, nil

	case tokenPunct:
		switch t.text {
		case "(":
			p.i++

			x, err := p.parseExpr(lowestPrec)
			if err != nil {
				return nil, err
			}

			if !p.acceptPunct(")") {
				return nil, p.unexpected()
			}

			return x, nil

		case "[":
			return p.parseArrayLit()

		case "{":
			return p.parseObjectLit()
		}
	}

	return nil, p.unexpected()
}

func (p *exprParser) parseArrayLit() (Expr, error) {
	pos := p.next().pos // consume "["

	if p.acceptPunct("]") {
		return &ArrayLit{Pos: pos}, nil
	}

	var elems []Expr

	for {
		e, err := p.parseExpr(lowestPrec)
		if err != nil {
			return nil, err
		}

		elems = append(elems, e)

		if p.acceptPunct(",") {
			continue
		}

		if p.acceptPunct("]") {
			return &ArrayLit{Pos: pos, Elems: elems}, nil
		}

		return nil, p.unexpected()
	}
}

func (p *exprParser) parseObjectLit() (Expr, error) {
	pos := p.next().pos // consume "{"

	if p.acceptPunct("}") {
		return &ObjectLit{Pos: pos}, nil
	}

	var fields []ObjectField

	for {
		t := p.cur()
		if t.kind != tokenIdent && t.kind != tokenString {
			return nil, p.unexpected()
		}

		p.i++

		if !p.acceptPunct(":") {
			return nil, p.unexpected()
		}

		v, err := p.parseExpr(lowestPrec)
		if err != nil {
			return nil, err
		}

		fields = append(fields, ObjectField{Key: t.text, Value: v})

		if p.acceptPunct(",") {
			continue
		}

		if p.acceptPunct("}") {
			return &ObjectLit{Pos: pos, Fields: fields}, nil
		}

		return nil, p.unexpected()
	}
}

// parseParamList parses "-> names" or "=> names" with the cursor on the
// arrow token. At least one name is required.
func (p *exprParser) parseParamList() (*ParamList, error) {
	t := p.next()
	global := t.text == "=>"

	var names []string

	for p.cur().kind == tokenIdent {
		names = append(names, p.next().text)
	}

	if len(names) == 0 {
		return nil, p.unexpected()
	}

	return &ParamList{Pos: t.pos, Global: global, Names: names}, nil
}

func (p *exprParser) atParamList() bool {
	return p.isPunct("->") || p.isPunct("=>")
}

// parseExprBody parses an opener or closer body: an identifying expression
// with an optional trailing parameter list, or a bare parameter list with
// no expression at all. Whether either is legal in context is the document
// parser's concern.
func parseExprBody(body string, base Position) (Expr, *ParamList, error) {
	toks, err := lexBody(body, base)
	if err != nil {
		return nil, nil, err
	}

	p := newExprParser(toks)

	if p.atParamList() {
		params, err := p.parseParamList()
		if err != nil {
			return nil, nil, err
		}

		if !p.atEOF() {
			return nil, nil, p.unexpected()
		}

		return nil, params, nil
	}

	expr, err := p.parseExpr(lowestPrec)
	if err != nil {
		return nil, nil, err
	}

	var params *ParamList

	if p.atParamList() {
		params, err = p.parseParamList()
		if err != nil {
			return nil, nil, err
		}
	}

	if !p.atEOF() {
		return nil, nil, p.unexpected()
	}

	return expr, params, nil
}

// parseInlineBody parses a sigil-less body. In addition to the opener
// forms, it recognizes the value-property definition "identifier: expr".
func parseInlineBody(body string, base Position) (Expr, *Property, *ParamList, error) {
	toks, err := lexBody(body, base)
	if err != nil {
		return nil, nil, nil, err
	}

	if len(toks) >= 2 && toks[0].kind == tokenIdent &&
		toks[1].kind == tokenPunct && toks[1].text == ":" {
		p := newExprParser(toks)
		key := p.next().text
		p.i++ // consume ":"

		value, err := p.parseExpr(lowestPrec)
		if err != nil {
			return nil, nil, nil, err
		}

		if !p.atEOF() {
			return nil, nil, nil, p.unexpected()
		}

		def := &Property{Pos: toks[0].pos, Key: key, Value: value}

		return nil, def, nil, nil
	}

	p := newExprParser(toks)

	if p.atParamList() {
		params, err := p.parseParamList()
		if err != nil {
			return nil, nil, nil, err
		}

		if !p.atEOF() {
			return nil, nil, nil, p.unexpected()
		}

		return nil, nil, params, nil
	}

	expr, err := p.parseExpr(lowestPrec)
	if err != nil {
		return nil, nil, nil, err
	}

	var params *ParamList

	if p.atParamList() {
		params, err = p.parseParamList()
		if err != nil {
			return nil, nil, nil, err
		}
	}

	if !p.atEOF() {
		return nil, nil, nil, p.unexpected()
	}

	return expr, nil, params, nil
}

// parsePropertyBody parses the body of a "+:" or "*:" tag: a property key,
// optionally compound ("else if"), optionally guarded by an argument list,
// optionally declaring parameters for its template body.
func parsePropertyBody(body string, base Position) (*Property, error) {
	toks, err := lexBody(body, base)
	if err != nil {
		return nil, err
	}

	p := newExprParser(toks)

	t := p.cur()
	if t.kind != tokenIdent {
		return nil, p.unexpected()
	}

	p.i++

	def := &Property{Pos: t.pos, Key: t.text}

	if p.cur().kind == tokenIdent {
		def.Key += " " + p.next().text
	}

	if p.isPunct("(") {
		def.Guard, err = p.parseArgs()
		if err != nil {
			return nil, err
		}

		if def.Guard == nil {
			def.Guard = []Expr{}
		}
	}

	if p.atParamList() {
		def.Params, err = p.parseParamList()
		if err != nil {
			return nil, err
		}
	}

	if !p.atEOF() {
		return nil, p.unexpected()
	}

	return def, nil
}
