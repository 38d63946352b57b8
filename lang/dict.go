package lang

import (
	"context"
	"strings"
	"sync"
)

// Dict is the bloc dictionary handed to a callable identifying value: the
// bloc's properties, each lazily evaluated and memoized, plus a synthetic
// "contents" entry that renders the bloc's nested template.
type Dict struct {
	bloc     *Bloc
	scope    *Scope
	rend     *renderer
	restores *restoreSet
	depth    int

	mu       sync.Mutex
	props    map[string]any
	contents *Contents
}

func newDict(r *renderer, b *Bloc, scope *Scope, restores *restoreSet, depth int) *Dict {
	return &Dict{
		bloc:     b,
		scope:    scope,
		rend:     r,
		restores: restores,
		depth:    depth,
	}
}

// emptyTemplate backs the contents of inline value blocs.
var emptyTemplate = &Template{}

// Contents returns the renderer for the bloc's nested template, creating
// it on first use. Inline value blocs render empty contents.
func (d *Dict) Contents() *Contents {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.contents == nil {
		t := d.bloc.Contents
		if t == nil {
			t = emptyTemplate
		}

		d.contents = &Contents{
			template: t,
			scope:    d.scope,
			owner:    d,
			rend:     d.rend,
			params:   t.Params,
			restores: d.restores,
			depth:    d.depth,
		}
	}

	return d.contents
}

// Entries returns the bloc's property definitions in declaration order.
// Helpers that honor chains (if / else if / else) walk these directly.
func (d *Dict) Entries() []*Property {
	return d.bloc.Properties
}

// Prop resolves a property by exact key. Value properties evaluate their
// expression in the bloc's ambient scope, once; template properties yield
// a renderable Contents over their body. When a key repeats, the first
// declaration wins.
func (d *Dict) Prop(ctx context.Context, key string) (any, bool, error) {
	d.mu.Lock()

	if v, ok := d.props[key]; ok {
		d.mu.Unlock()

		return v, true, nil
	}

	d.mu.Unlock()

	for _, p := range d.bloc.Properties {
		if p.Key != key {
			continue
		}

		v, err := d.resolve(ctx, p)
		if err != nil {
			return nil, true, err
		}

		d.mu.Lock()

		if d.props == nil {
			d.props = make(map[string]any)
		}

		d.props[key] = v
		d.mu.Unlock()

		return v, true, nil
	}

	return nil, false, nil
}

func (d *Dict) resolve(ctx context.Context, p *Property) (any, error) {
	if p.Value != nil {
		return d.Eval(ctx, p.Value)
	}

	return d.Body(p), nil
}

// Eval evaluates an expression in the bloc's ambient scope, resolving any
// pending value. Helpers use it for property guards.
func (d *Dict) Eval(ctx context.Context, e Expr) (any, error) {
	return d.rend.evalResolved(ctx, e, d.scope, d, d.depth)
}

// Body wraps a template property's body as renderable Contents. Value
// properties have no body; Body returns nil for them.
func (d *Dict) Body(p *Property) *Contents {
	if p.Body == nil {
		return nil
	}

	return &Contents{
		template: p.Body,
		scope:    d.scope,
		owner:    d,
		rend:     d.rend,
		params:   p.Body.Params,
		restores: d.restores,
		depth:    d.depth,
	}
}

// member resolves expression-level access such as bloc.title or
// this.contents. Unknown keys are Undefined, consistent with missing
// data elsewhere.
func (d *Dict) member(ctx context.Context, name string) (any, error) {
	if name == "contents" {
		return d.Contents(), nil
	}

	v, ok, err := d.Prop(ctx, name)
	if err != nil {
		return nil, err
	}

	if !ok {
		return Undefined{}, nil
	}

	return v, nil
}

// String lists the declared property keys without evaluating anything.
func (d *Dict) String() string {
	keys := make([]string, len(d.bloc.Properties))
	for i, p := range d.bloc.Properties {
		keys[i] = p.Key
	}

	return "bloc{" + strings.Join(keys, ", ") + "}"
}

// restoreSet collects the undo functions of global-parameter rebindings
// made during one bloc's evaluation window. The renderer runs the set,
// newest first, on every exit path of that window.
type restoreSet struct {
	mu     sync.Mutex
	active bool
	fns    []func()
}

func newRestoreSet() *restoreSet {
	return &restoreSet{active: true}
}

// add registers an undo function; it reports false once the window has
// closed, in which case the caller must bound the rebinding itself.
func (r *restoreSet) add(fn func()) bool {
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return false
	}

	r.fns = append(r.fns, fn)

	return true
}

// run closes the window and undoes every rebinding, newest first.
func (r *restoreSet) run() {
	r.mu.Lock()
	fns := r.fns
	r.fns = nil
	r.active = false
	r.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Contents is the renderable body of a bloc: its template closed over the
// scope where the bloc appeared, the owning bloc's dictionary (bound as
// "bloc" inside the template), and any declared parameters.
//
// Contents is callable. A first positional call binds declared parameters
// and returns new bound Contents; a call with a single object argument
// merges ad hoc bindings and likewise returns new Contents; any other
// call, including the (scope, dictionary) invocation a callable bloc
// identity receives, renders immediately.
type Contents struct {
	template *Template
	scope    *Scope
	owner    *Dict
	rend     *renderer
	params   *ParamList
	bound    bool
	restores *restoreSet
	pending  []func()
	depth    int
}

// Call implements Callable.
func (c *Contents) Call(ctx context.Context, args ...any) (any, error) {
	if c.params != nil && !c.bound && len(args) > 0 {
		if _, isScope := args[0].(*Scope); !isScope {
			return c.Bind(args...), nil
		}
	}

	if len(args) == 1 {
		if m, ok := normalize(args[0]).(map[string]any); ok {
			return c.With(m), nil
		}
	}

	return c.Render(ctx)
}

// Bind binds declared parameters positionally and returns new Contents.
// Local parameters bind in a child scope visible only to this body's
// render. Global parameters rebind the root scope immediately; the undo
// joins the owning bloc's evaluation window, or wraps this body's own
// render when that window has already closed.
func (c *Contents) Bind(args ...any) *Contents {
	cc := *c
	cc.bound = true

	if c.params == nil {
		return &cc
	}

	if c.params.Global {
		for i, name := range c.params.Names {
			var v any = Undefined{}
			if i < len(args) {
				v = normalize(args[i])
			}

			restore := c.scope.SetGlobal(name, v)
			if !c.restores.add(restore) {
				cc.pending = append(cc.pending, restore)
			}
		}

		return &cc
	}

	child := c.scope.Child()

	for i, name := range c.params.Names {
		var v any = Undefined{}
		if i < len(args) {
			v = normalize(args[i])
		}

		child.Bind(name, v)
	}

	cc.scope = child

	return &cc
}

// With merges ad hoc bindings into a child scope and returns new
// Contents.
func (c *Contents) With(vars map[string]any) *Contents {
	child := c.scope.Child()

	for k, v := range vars {
		child.Bind(k, normalize(v))
	}

	cc := *c
	cc.scope = child

	return &cc
}

// Render evaluates the template body now.
func (c *Contents) Render(ctx context.Context) (string, error) {
	if c.pending != nil {
		defer func() {
			for i := len(c.pending) - 1; i >= 0; i-- {
				c.pending[i]()
			}
		}()
	}

	return c.rend.renderTemplate(ctx, c.template, c.scope, c.owner, c.depth+1)
}
