package lang

// frame is one entry of the document parser's bloc stack. The bottom frame
// is the document root (nil bloc, nil prop). A frame holds either an open
// bloc or an open property body, plus the nodes accumulated so far.
//
// closeID is the identity an explicit closer must match. It is nil for
// implicitly-opened entries, which close on their own and are never
// matched against closers.
type frame struct {
	bloc    *Bloc
	prop    *Property
	closeID Expr
	nodes   []Node
}

// stack tracks open blocs and property bodies during document assembly.
type stack struct {
	frames []frame
}

func newStack() *stack {
	return &stack{frames: make([]frame, 1, 8)}
}

func (s *stack) top() *frame { return &s.frames[len(s.frames)-1] }

func (s *stack) depth() int { return len(s.frames) }

// append adds a completed node to the innermost open template.
func (s *stack) append(n Node) {
	top := s.top()
	top.nodes = append(top.nodes, n)
}

// push opens a new frame for a bloc or property body.
func (s *stack) push(f frame) { s.frames = append(s.frames, f) }

// autoClose finishes every implicitly-opened entry at the top of the
// stack. The document parser calls this when a new opener or property tag
// arrives, so implicit entries end at the next structural tag.
func (s *stack) autoClose() {
	for len(s.frames) > 1 && s.top().closeID == nil {
		s.finishTop()
	}
}

// finishTop seals the innermost frame: its accumulated nodes become the
// contents of its bloc or the body of its property, and a completed bloc
// is appended to the parent's node list. Properties were attached to their
// owning bloc when opened, so only their body is filled in here.
func (s *stack) finishTop() {
	i := len(s.frames) - 1
	f := s.frames[i]
	s.frames = s.frames[:i]

	switch {
	case f.prop != nil:
		f.prop.Body = &Template{Nodes: f.nodes, Params: f.prop.Params}

	case f.bloc != nil:
		f.bloc.Contents = &Template{Nodes: f.nodes, Params: f.bloc.Params}
		s.append(f.bloc)
	}
}

// pop closes the innermost explicitly-opened entry against id. Scanning
// from the top, implicit entries are skipped; the first explicit entry
// must satisfy canClose or the closer is a mismatch. When no explicit
// entry remains the closer has nothing to close.
func (s *stack) pop(id Expr, pos Position) error {
	for i := len(s.frames) - 1; i >= 1; i-- {
		if s.frames[i].closeID == nil {
			continue
		}

		if !canClose(s.frames[i].closeID, id) {
			return newParseError(pos, "Expected [[-"+ExprString(s.frames[i].closeID)+"]]")
		}

		for len(s.frames) > i {
			s.finishTop()
		}

		return nil
	}

	return newParseError(pos, "Unexpected closing tag: "+ExprString(id))
}

// unwind runs at end of input: implicit entries close silently; an
// explicit entry still open is a missing-closer error naming the
// innermost one.
func (s *stack) unwind(pos Position) error {
	for len(s.frames) > 1 {
		if id := s.top().closeID; id != nil {
			return newParseError(pos, "Expected [[-"+ExprString(id)+"]]")
		}

		s.finishTop()
	}

	return nil
}

// canClose reports whether a closer naming id may close a bloc opened as
// open. Exact structural equality always matches. An applied identity
// (foo(1,2)) may be closed by its callee (foo), and a piped identity
// (x | lc) by its left-hand subject (x), both recursively.
func canClose(open, id Expr) bool {
	if equalExpr(open, id) {
		return true
	}

	switch o := open.(type) {
	case *Call:
		return canClose(o.Fn, id)

	case *Binary:
		if o.Op == "|" {
			return canClose(o.Left, id)
		}
	}

	return false
}
