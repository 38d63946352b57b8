package lang

import (
	"context"
	"log/slog"
	"maps"
	"reflect"
	"strings"

	"github.com/ardnew/bloc/log"
)

// DefaultMaxDepth bounds template recursion during rendering. A bloc
// whose evaluation would nest deeper renders the depth error in place.
const DefaultMaxDepth = 100

// renderConfig collects rendering options.
type renderConfig struct {
	maxDepth int
	loader   *Loader
	helpers  map[string]any
	logger   log.Logger
}

// RenderOption configures rendering behavior.
type RenderOption func(*renderConfig)

// WithMaxDepth overrides the default bound on template nesting.
func WithMaxDepth(n int) RenderOption {
	return func(cfg *renderConfig) { cfg.maxDepth = n }
}

// WithLoader sets the loader require uses to resolve template paths.
func WithLoader(l *Loader) RenderOption {
	return func(cfg *renderConfig) { cfg.loader = l }
}

// WithHelpers layers host-provided callables and values between the
// built-in helpers and the render variables. Callables must implement
// Callable; the Func adapter suffices for plain functions.
func WithHelpers(helpers map[string]any) RenderOption {
	return func(cfg *renderConfig) { cfg.helpers = helpers }
}

// WithRenderLogger sets the structured logger for render events.
// If not provided, the logger is zero-valued and all logging is a no-op.
func WithRenderLogger(logger log.Logger) RenderOption {
	return func(cfg *renderConfig) { cfg.logger = logger }
}

// Render evaluates the template against vars and returns the output.
//
// Failures in template data never fail the render: each bloc that cannot
// evaluate renders its error text in place, and the surrounding document
// is unaffected. Render itself returns an error only for a nil template
// or a canceled context.
func (t *Template) Render(
	ctx context.Context,
	vars map[string]any,
	opts ...RenderOption,
) (string, error) {
	if t == nil {
		return "", ErrNilTemplate
	}

	cfg := renderConfig{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &renderer{cfg: cfg}
	ctx = withRender(ctx, r)

	cfg.logger.TraceContext(
		ctx,
		"render start",
		slog.String("template", t.Name),
		slog.Int("node_count", len(t.Nodes)),
	)

	out, err := r.renderTemplate(ctx, t, rootScope(vars, cfg.helpers), nil, 0)
	if err != nil {
		return "", err
	}

	cfg.logger.TraceContext(
		ctx,
		"render complete",
		slog.Int("output_length", len(out)),
	)

	return out, nil
}

// RenderString parses source and renders it against vars in one call.
func RenderString(
	ctx context.Context,
	source string,
	vars map[string]any,
	opts ...RenderOption,
) (string, error) {
	t, err := ParseString(ctx, source)
	if err != nil {
		return "", err
	}

	return t.Render(ctx, vars, opts...)
}

// rootScope builds the chain for one render: built-ins at the bottom,
// host helpers above them, then the render's global frame.
func rootScope(vars, helpers map[string]any) *Scope {
	if len(helpers) == 0 {
		return newRootScope(vars)
	}

	h := &Scope{vars: make(map[string]any, len(helpers)), parent: builtinScope()}
	maps.Copy(h.vars, helpers)

	root := &Scope{vars: make(map[string]any, len(vars)), parent: h, global: true}
	maps.Copy(root.vars, vars)

	return root
}

// renderer carries one render call's configuration through the tree walk.
type renderer struct {
	cfg renderConfig
}

func (r *renderer) renderTemplate(
	ctx context.Context,
	t *Template,
	scope *Scope,
	owner *Dict,
	depth int,
) (string, error) {
	if t == nil {
		return "", ErrNilTemplate
	}

	if depth > r.cfg.maxDepth {
		return "", ErrMaxDepth
	}

	if err := context.Cause(ctx); err != nil {
		return "", err
	}

	// Inside a bloc's contents, "bloc" names the owning dictionary.
	frame := scope
	if owner != nil {
		frame = scope.Child()
		frame.Bind("bloc", owner)
	}

	var sb strings.Builder

	for _, n := range t.Nodes {
		switch n := n.(type) {
		case *Text:
			sb.WriteString(n.Value)

		case *Comment:
			// comments never render

		case *Bloc:
			out, err := r.renderBloc(ctx, n, frame, depth)
			if err != nil {
				return "", err
			}

			sb.WriteString(out)
		}
	}

	return sb.String(), nil
}

// renderBloc evaluates one bloc and isolates its failures: an error
// raised while evaluating this bloc renders as the error text in its
// place, leaving the rest of the document intact. Cancellation is never
// swallowed.
func (r *renderer) renderBloc(
	ctx context.Context,
	b *Bloc,
	scope *Scope,
	depth int,
) (string, error) {
	restores := newRestoreSet()
	defer restores.run()

	dict := newDict(r, b, scope, restores, depth)

	out, err := r.blocOutput(ctx, b, scope, dict, depth)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return "", cause
		}

		r.cfg.logger.DebugContext(
			ctx,
			"bloc error",
			slog.Int("line", b.Pos.Line),
			slog.Int("column", b.Pos.Column),
			slog.Any("error", err),
		)

		return err.Error(), nil
	}

	return out, nil
}

func (r *renderer) blocOutput(
	ctx context.Context,
	b *Bloc,
	scope *Scope,
	dict *Dict,
	depth int,
) (string, error) {
	// The identifying expression alone sees "this" as the bloc's own
	// dictionary; "bloc" still names the enclosing one.
	idScope := scope.Child()
	idScope.Bind("this", dict)

	v, err := r.evalResolved(ctx, b.Identity, idScope, dict, depth)
	if err != nil {
		return "", err
	}

	if c, ok := v.(Callable); ok {
		res, err := c.Call(withScope(ctx, scope), scope, dict)
		if err != nil {
			return "", err
		}

		res, err = await(ctx, res)
		if err != nil {
			return "", err
		}

		return r.outputValue(ctx, res, scope, dict, depth)
	}

	return r.outputValue(ctx, v, scope, dict, depth)
}

// outputValue converts an identity's settled value to bloc output.
// Template and fragment values render against the ambient scope with this
// bloc's dictionary bound as "bloc"; everything else stringifies.
func (r *renderer) outputValue(
	ctx context.Context,
	v any,
	scope *Scope,
	dict *Dict,
	depth int,
) (string, error) {
	switch v := v.(type) {
	case *Contents:
		return v.Render(ctx)

	case *Template:
		return r.wrapTemplate(v, scope, dict, depth).Render(ctx)

	case *Fragment:
		t, err := v.Template(ctx)
		if err != nil {
			return "", err
		}

		return r.wrapTemplate(t, scope, dict, depth).Render(ctx)
	}

	return stringify(v), nil
}

// wrapTemplate adapts a separately held template to the contents contract
// so its declared root parameters bind positionally when called.
func (r *renderer) wrapTemplate(
	t *Template,
	scope *Scope,
	dict *Dict,
	depth int,
) *Contents {
	c := &Contents{
		template: t,
		scope:    scope,
		owner:    dict,
		rend:     r,
		params:   t.Params,
		depth:    depth,
	}

	if dict != nil {
		c.restores = dict.restores
	}

	return c
}

// evalResolved evaluates an expression and settles any pending value, so
// every operand position is transparent to deferred and concurrent work.
func (r *renderer) evalResolved(
	ctx context.Context,
	e Expr,
	scope *Scope,
	owner *Dict,
	depth int,
) (any, error) {
	v, err := r.evalExpr(ctx, e, scope, owner, depth)
	if err != nil {
		return nil, err
	}

	return await(ctx, v)
}

func (r *renderer) evalExpr(
	ctx context.Context,
	e Expr,
	scope *Scope,
	owner *Dict,
	depth int,
) (any, error) {
	switch e := e.(type) {
	case *Literal:
		return e.Val, nil

	case *Ident:
		v, ok := scope.Lookup(e.Name)
		if !ok {
			return Undefined{}, nil
		}

		return v, nil

	case *Unary:
		return r.evalUnary(ctx, e, scope, owner, depth)

	case *Binary:
		return r.evalBinary(ctx, e, scope, owner, depth)

	case *Member:
		base, err := r.evalResolved(ctx, e.X, scope, owner, depth)
		if err != nil {
			return nil, err
		}

		return r.memberOf(ctx, base, e.Name)

	case *Index:
		base, err := r.evalResolved(ctx, e.X, scope, owner, depth)
		if err != nil {
			return nil, err
		}

		key, err := r.evalResolved(ctx, e.Key, scope, owner, depth)
		if err != nil {
			return nil, err
		}

		return r.indexOf(ctx, base, key)

	case *Call:
		callee, err := r.evalResolved(ctx, e.Fn, scope, owner, depth)
		if err != nil {
			return nil, err
		}

		args := make([]any, len(e.Args))

		for i, a := range e.Args {
			args[i], err = r.evalResolved(ctx, a, scope, owner, depth)
			if err != nil {
				return nil, err
			}
		}

		return r.apply(ctx, callee, e.Fn, args, scope, owner, depth)

	case *ArrayLit:
		elems := make([]any, len(e.Elems))

		for i, el := range e.Elems {
			v, err := r.evalResolved(ctx, el, scope, owner, depth)
			if err != nil {
				return nil, err
			}

			elems[i] = v
		}

		return elems, nil

	case *ObjectLit:
		m := make(map[string]any, len(e.Fields))

		for _, f := range e.Fields {
			v, err := r.evalResolved(ctx, f.Value, scope, owner, depth)
			if err != nil {
				return nil, err
			}

			m[f.Key] = v
		}

		return m, nil
	}

	return Undefined{}, nil
}

func (r *renderer) evalUnary(
	ctx context.Context,
	e *Unary,
	scope *Scope,
	owner *Dict,
	depth int,
) (any, error) {
	v, err := r.evalResolved(ctx, e.X, scope, owner, depth)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case "!":
		return !truthy(v), nil

	case "-":
		if f, ok := v.(float64); ok {
			return -f, nil
		}

	case "+":
		if f, ok := v.(float64); ok {
			return f, nil
		}
	}

	return nil, NewError("invalid operand for " + e.Op + ": " + typeName(v))
}

func (r *renderer) evalBinary(
	ctx context.Context,
	e *Binary,
	scope *Scope,
	owner *Dict,
	depth int,
) (any, error) {
	// Logical operators short-circuit and yield the deciding operand.
	switch e.Op {
	case "&&":
		l, err := r.evalResolved(ctx, e.Left, scope, owner, depth)
		if err != nil {
			return nil, err
		}

		if !truthy(l) {
			return l, nil
		}

		return r.evalResolved(ctx, e.Right, scope, owner, depth)

	case "||":
		l, err := r.evalResolved(ctx, e.Left, scope, owner, depth)
		if err != nil {
			return nil, err
		}

		if truthy(l) {
			return l, nil
		}

		return r.evalResolved(ctx, e.Right, scope, owner, depth)

	case "|":
		l, err := r.evalResolved(ctx, e.Left, scope, owner, depth)
		if err != nil {
			return nil, err
		}

		fn, err := r.evalResolved(ctx, e.Right, scope, owner, depth)
		if err != nil {
			return nil, err
		}

		return r.apply(ctx, fn, e.Right, []any{l}, scope, owner, depth)
	}

	l, err := r.evalResolved(ctx, e.Left, scope, owner, depth)
	if err != nil {
		return nil, err
	}

	rv, err := r.evalResolved(ctx, e.Right, scope, owner, depth)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case "==":
		return equalValues(l, rv), nil

	case "!=":
		return !equalValues(l, rv), nil

	case "<", "<=", ">", ">=":
		b, err := compareValues(e.Op, l, rv)
		if err != nil {
			return nil, err
		}

		return b, nil
	}

	return arith(e.Op, l, rv)
}

// apply invokes a callee with already-settled arguments. Templates and
// fragments apply through the contents contract so declared root
// parameters bind positionally.
func (r *renderer) apply(
	ctx context.Context,
	callee any,
	fnExpr Expr,
	args []any,
	scope *Scope,
	owner *Dict,
	depth int,
) (any, error) {
	switch c := callee.(type) {
	case Callable:
		return c.Call(withScope(ctx, scope), args...)

	case *Template:
		return r.wrapTemplate(c, scope, owner, depth).Call(ctx, args...)

	case *Fragment:
		t, err := c.Template(ctx)
		if err != nil {
			return nil, err
		}

		return r.wrapTemplate(t, scope, owner, depth).Call(ctx, args...)
	}

	if callee != nil && reflect.ValueOf(callee).Kind() == reflect.Func {
		v, err := reflectCall(withScope(ctx, scope), callee, args)
		if err != nil {
			return nil, WrapError(err).With(
				slog.String("callee", ExprString(fnExpr)),
			)
		}

		return normalize(v), nil
	}

	return nil, NewError(ExprString(fnExpr) + " is not a function")
}

// memberOf resolves a named member. Nullish bases and absent members
// yield Undefined rather than an error.
func (r *renderer) memberOf(
	ctx context.Context,
	base any,
	name string,
) (any, error) {
	if isNullish(base) {
		return Undefined{}, nil
	}

	switch b := base.(type) {
	case *Dict:
		return b.member(ctx, name)

	case map[string]any:
		v, ok := b[name]
		if !ok {
			return Undefined{}, nil
		}

		return v, nil
	}

	return Undefined{}, nil
}

// indexOf resolves computed-key access. Lists take integral number keys;
// maps and dictionaries take string keys. Everything else is Undefined.
func (r *renderer) indexOf(
	ctx context.Context,
	base, key any,
) (any, error) {
	if isNullish(base) {
		return Undefined{}, nil
	}

	switch b := base.(type) {
	case []any:
		f, ok := key.(float64)
		if !ok {
			return Undefined{}, nil
		}

		i := int(f)
		if float64(i) != f || i < 0 || i >= len(b) {
			return Undefined{}, nil
		}

		return b[i], nil

	case map[string]any:
		s, ok := key.(string)
		if !ok {
			return Undefined{}, nil
		}

		v, ok := b[s]
		if !ok {
			return Undefined{}, nil
		}

		return v, nil

	case *Dict:
		s, ok := key.(string)
		if !ok {
			return Undefined{}, nil
		}

		return b.member(ctx, s)
	}

	return Undefined{}, nil
}

// renderContextKey carries the active renderer so built-in helpers can
// reach render configuration, notably the loader.
type renderContextKey struct{}

func withRender(ctx context.Context, r *renderer) context.Context {
	return context.WithValue(ctx, renderContextKey{}, r)
}

func renderFrom(ctx context.Context) (*renderer, bool) {
	r, ok := ctx.Value(renderContextKey{}).(*renderer)

	return r, ok
}
