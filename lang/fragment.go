package lang

import (
	"context"
	"sync"
)

// Fragment is a template value whose parsing is deferred until first
// use. Hosts hand unparsed source to renders through variables; the
// fragment parses once, on demand, and a parse failure surfaces as the
// error text wherever the fragment is used.
type Fragment struct {
	source string

	once sync.Once
	t    *Template
	err  error
}

// NewFragment returns a fragment over source.
func NewFragment(source string) *Fragment {
	return &Fragment{source: source}
}

// Source returns the fragment's unparsed text.
func (f *Fragment) Source() string { return f.source }

// Template returns the parsed form, parsing on first use.
func (f *Fragment) Template(ctx context.Context) (*Template, error) {
	f.once.Do(func() {
		f.t, f.err = ParseString(ctx, f.source)
	})

	return f.t, f.err
}
