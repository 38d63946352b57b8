package lang

// Position locates a rune within template source.
//
// Offset is the byte offset of the rune. Line and Column are 1-based;
// Column counts runes from the start of the line.
type Position struct {
	Offset int
	Line   int
	Column int
}

// Node is a parsed element of a template body: literal text or a bloc.
type Node interface {
	Position() Position
	node()
}

// Text is a literal segment of template output, reproduced verbatim.
type Text struct {
	Pos   Position
	Value string
}

func (t *Text) Position() Position { return t.Pos }
func (*Text) node()                {}

// Comment is an annotation elided from output. It is retained in the tree
// so that reformatting a document preserves it.
type Comment struct {
	Pos  Position
	Text string
}

func (c *Comment) Position() Position { return c.Pos }
func (*Comment) node()                {}

// Bloc is a node introduced by a tag. An inline value bloc has nil
// Contents; opened blocs carry their body as a nested template.
type Bloc struct {
	Pos        Position
	Identity   Expr
	Params     *ParamList // declared on the opening tag, nil otherwise
	Properties []*Property
	Contents   *Template // nil for inline value blocs
	Implicit   bool      // opened with the '*' sigil
}

func (b *Bloc) Position() Position { return b.Pos }
func (*Bloc) node()                {}

// Property is a named entry attached to its owning bloc. Exactly one of
// Value and Body is set: value properties hold an expression, template
// properties hold a nested body.
type Property struct {
	Pos      Position
	Key      string     // "title", or a compound key such as "else if"
	Guard    []Expr     // arguments applied to a compound key
	Value    Expr       // key: expr form
	Body     *Template  // +:key / *:key form
	Params   *ParamList // declared on the property tag, nil otherwise
	Explicit bool       // opened with '+:', holds nested properties instead of chaining
}

// Template is a parsed document or the contents of a bloc.
type Template struct {
	Name   string
	Params *ParamList // declared at the root of the document, nil otherwise
	Nodes  []Node

	source string // original text, retained for positional diagnostics
}

// Source returns the original text the template was parsed from.
func (t *Template) Source() string { return t.source }

// Expr is a parsed tag-body expression.
type Expr interface {
	Position() Position
	exprNode()
}

// Undefined is the distinguished non-value produced by unknown identifiers
// and by member or index access on absent data. It is falsy, renders as the
// empty string, and compares equal to null.
type Undefined struct{}

// Literal is a constant: a number, string, boolean, null, or undefined.
type Literal struct {
	Pos Position
	Val any // float64, string, bool, nil, or Undefined{}
}

// Ident is a name resolved against the scope chain at render time.
type Ident struct {
	Pos  Position
	Name string
}

// Unary applies a prefix operator to a single operand.
type Unary struct {
	Pos Position
	Op  string // "!", "-", or "+"
	X   Expr
}

// Binary applies an infix operator to two operands. All binary operators
// associate left.
type Binary struct {
	Pos   Position
	Op    string
	Left  Expr
	Right Expr
}

// Member accesses a named property of a value, as in x.name.
type Member struct {
	Pos  Position
	X    Expr
	Name string
}

// Index accesses an element of a value by computed key, as in x[k].
type Index struct {
	Pos Position
	X   Expr
	Key Expr
}

// Call applies a value to an argument list, as in f(a, b).
type Call struct {
	Pos  Position
	Fn   Expr
	Args []Expr
}

// ArrayLit constructs a list value from its elements.
type ArrayLit struct {
	Pos   Position
	Elems []Expr
}

// ObjectLit constructs a map value from key-expression pairs.
type ObjectLit struct {
	Pos    Position
	Fields []ObjectField
}

// ObjectField is a single key-value pair of an ObjectLit.
type ObjectField struct {
	Key   string
	Value Expr
}

// ParamList declares template parameter names. Local parameters ("->")
// bind in a child scope of the contents; global parameters ("=>") rebind
// the root scope for the duration of the owning bloc's evaluation.
type ParamList struct {
	Pos    Position
	Global bool
	Names  []string
}

func (e *Literal) Position() Position   { return e.Pos }
func (e *Ident) Position() Position     { return e.Pos }
func (e *Unary) Position() Position     { return e.Pos }
func (e *Binary) Position() Position    { return e.Pos }
func (e *Member) Position() Position    { return e.Pos }
func (e *Index) Position() Position     { return e.Pos }
func (e *Call) Position() Position      { return e.Pos }
func (e *ArrayLit) Position() Position  { return e.Pos }
func (e *ObjectLit) Position() Position { return e.Pos }
func (e *ParamList) Position() Position { return e.Pos }

func (*Literal) exprNode()   {}
func (*Ident) exprNode()     {}
func (*Unary) exprNode()     {}
func (*Binary) exprNode()    {}
func (*Member) exprNode()    {}
func (*Index) exprNode()     {}
func (*Call) exprNode()      {}
func (*ArrayLit) exprNode()  {}
func (*ObjectLit) exprNode() {}
func (*ParamList) exprNode() {}

// equalExpr reports structural equality of two expressions. Positions are
// ignored; only shape, names, operators, and literal values participate.
func equalExpr(a, b Expr) bool {
	switch x := a.(type) {
	case *Literal:
		y, ok := b.(*Literal)
		if !ok {
			return false
		}

		return equalLiteral(x.Val, y.Val)

	case *Ident:
		y, ok := b.(*Ident)

		return ok && x.Name == y.Name

	case *Unary:
		y, ok := b.(*Unary)

		return ok && x.Op == y.Op && equalExpr(x.X, y.X)

	case *Binary:
		y, ok := b.(*Binary)

		return ok && x.Op == y.Op &&
			equalExpr(x.Left, y.Left) && equalExpr(x.Right, y.Right)

	case *Member:
		y, ok := b.(*Member)

		return ok && x.Name == y.Name && equalExpr(x.X, y.X)

	case *Index:
		y, ok := b.(*Index)

		return ok && equalExpr(x.X, y.X) && equalExpr(x.Key, y.Key)

	case *Call:
		y, ok := b.(*Call)
		if !ok || !equalExpr(x.Fn, y.Fn) || len(x.Args) != len(y.Args) {
			return false
		}

		for i := range x.Args {
			if !equalExpr(x.Args[i], y.Args[i]) {
				return false
			}
		}

		return true

	case *ArrayLit:
		y, ok := b.(*ArrayLit)
		if !ok || len(x.Elems) != len(y.Elems) {
			return false
		}

		for i := range x.Elems {
			if !equalExpr(x.Elems[i], y.Elems[i]) {
				return false
			}
		}

		return true

	case *ObjectLit:
		y, ok := b.(*ObjectLit)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}

		for i := range x.Fields {
			if x.Fields[i].Key != y.Fields[i].Key ||
				!equalExpr(x.Fields[i].Value, y.Fields[i].Value) {
				return false
			}
		}

		return true

	case *ParamList:
		y, ok := b.(*ParamList)
		if !ok || x.Global != y.Global || len(x.Names) != len(y.Names) {
			return false
		}

		for i := range x.Names {
			if x.Names[i] != y.Names[i] {
				return false
			}
		}

		return true
	}

	return false
}

func equalLiteral(a, b any) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)

		return ok && x == y

	case string:
		y, ok := b.(string)

		return ok && x == y

	case bool:
		y, ok := b.(bool)

		return ok && x == y

	case nil:
		return b == nil

	case Undefined:
		_, ok := b.(Undefined)

		return ok
	}

	return false
}
