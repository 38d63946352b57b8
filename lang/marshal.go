package lang

import (
	"encoding/json"
)

// MarshalJSON implements json.Marshaler for Template.
func (t *Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ToMap())
}

// ToMap converts the parsed tree to a native Go structure for structural
// dumps. Parenthesized keys carry metadata that cannot collide with
// template-defined names.
func (t *Template) ToMap() map[string]any {
	m := make(map[string]any)

	if t.Name != "" {
		m["(name)"] = t.Name
	}

	if t.Params != nil {
		m["(parameters)"] = paramsToNative(t.Params)
	}

	m["(nodes)"] = nodesToNative(t.Nodes)

	return m
}

func nodesToNative(nodes []Node) []any {
	out := make([]any, 0, len(nodes))

	for _, n := range nodes {
		switch n := n.(type) {
		case *Text:
			out = append(out, map[string]any{"text": n.Value})

		case *Comment:
			out = append(out, map[string]any{"comment": n.Text})

		case *Bloc:
			out = append(out, blocToNative(n))
		}
	}

	return out
}

func blocToNative(b *Bloc) map[string]any {
	m := map[string]any{
		"bloc": ExprString(b.Identity),
	}

	if b.Implicit {
		m["implicit"] = true
	}

	if b.Params != nil {
		m["(parameters)"] = paramsToNative(b.Params)
	}

	if len(b.Properties) > 0 {
		props := make([]any, len(b.Properties))
		for i, p := range b.Properties {
			props[i] = propertyToNative(p)
		}

		m["properties"] = props
	}

	if b.Contents != nil {
		m["contents"] = nodesToNative(b.Contents.Nodes)
	}

	return m
}

func propertyToNative(p *Property) map[string]any {
	m := map[string]any{"key": p.Key}

	if p.Explicit {
		m["explicit"] = true
	}

	if p.Guard != nil {
		guards := make([]any, len(p.Guard))
		for i, g := range p.Guard {
			guards[i] = ExprString(g)
		}

		m["guard"] = guards
	}

	if p.Params != nil {
		m["(parameters)"] = paramsToNative(p.Params)
	}

	switch {
	case p.Value != nil:
		m["value"] = ExprString(p.Value)

	case p.Body != nil:
		m["body"] = nodesToNative(p.Body.Nodes)
	}

	return m
}

func paramsToNative(p *ParamList) map[string]any {
	kind := "local"
	if p.Global {
		kind = "global"
	}

	names := make([]any, len(p.Names))
	for i, n := range p.Names {
		names[i] = n
	}

	return map[string]any{"kind": kind, "names": names}
}
