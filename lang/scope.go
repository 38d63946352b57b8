package lang

import (
	"context"
	"maps"
	"sync"
)

// Scope is one frame of the lexical scope chain. Lookups walk toward the
// root; bindings never alias a parent frame's map, so sibling renders
// cannot observe each other's locals.
//
// The chain bottoms out in a shared read-only frame of built-in helpers,
// above which sits the render's private global frame: a copy of the
// host-provided variables, and the target of global-parameter rebinding.
type Scope struct {
	vars   map[string]any
	parent *Scope
	global bool
}

// builtinScope is the shared bottom frame. It is built once and never
// written afterward, so concurrent renders may read it freely.
var builtinScope = sync.OnceValue(func() *Scope {
	return &Scope{vars: builtins()}
})

// newRootScope builds the scope chain for one render call.
func newRootScope(vars map[string]any) *Scope {
	root := &Scope{
		vars:   make(map[string]any, len(vars)),
		parent: builtinScope(),
		global: true,
	}

	maps.Copy(root.vars, vars)

	return root
}

// Child returns an empty frame whose lookups fall through to s.
func (s *Scope) Child() *Scope {
	return &Scope{vars: make(map[string]any), parent: s}
}

// Bind sets name in this frame, shadowing any outer binding.
func (s *Scope) Bind(name string, value any) {
	s.vars[name] = value
}

// Lookup resolves name against this frame and its ancestors.
func (s *Scope) Lookup(name string) (any, bool) {
	for f := s; f != nil; f = f.parent {
		if v, ok := f.vars[name]; ok {
			return v, true
		}
	}

	return nil, false
}

// SetGlobal rebinds name in the render's global frame and returns a
// restore function reinstating the previous binding, or its absence. The
// caller must invoke restore on every exit path so the rebinding stays
// bounded to its dynamic extent.
func (s *Scope) SetGlobal(name string, value any) func() {
	g := s.globalFrame()
	if g == nil {
		return func() {}
	}

	prev, had := g.vars[name]
	g.vars[name] = value

	return func() {
		if had {
			g.vars[name] = prev
		} else {
			delete(g.vars, name)
		}
	}
}

func (s *Scope) globalFrame() *Scope {
	for f := s; f != nil; f = f.parent {
		if f.global {
			return f
		}
	}

	return nil
}

// Flatten collects every visible binding into a single map, nearest frame
// winning. Used to hand ambient bindings to host expression engines.
func (s *Scope) Flatten() map[string]any {
	var frames []*Scope
	for f := s; f != nil; f = f.parent {
		frames = append(frames, f)
	}

	out := make(map[string]any)
	for i := len(frames) - 1; i >= 0; i-- {
		maps.Copy(out, frames[i].vars)
	}

	return out
}

type scopeContextKey struct{}

// withScope records the scope active at a call site in ctx, so host
// callables can inspect ambient bindings.
func withScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, s)
}

// ScopeFrom returns the scope recorded by the renderer when it invoked
// the current callable, if any.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeContextKey{}).(*Scope)

	return s, ok
}
