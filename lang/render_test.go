package lang

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func render(t *testing.T, source string, vars map[string]any, opts ...RenderOption) string {
	t.Helper()

	out, err := RenderString(context.Background(), source, vars, opts...)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	return out
}

func TestRender_TextPassthrough(t *testing.T) {
	if got := render(t, "hello, world", nil); got != "hello, world" {
		t.Errorf("expected text unchanged, got %q", got)
	}
}

func TestRender_Literals(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "number", input: "[[42]]", want: "42"},
		{name: "fraction", input: "[[2.5]]", want: "2.5"},
		{name: "string", input: `[["hi"]]`, want: "hi"},
		{name: "escaped_string", input: `[["a\nb"]]`, want: "a\nb"},
		{name: "true", input: "[[true]]", want: "true"},
		{name: "false", input: "[[false]]", want: "false"},
		{name: "null", input: "[[null]]", want: ""},
		{name: "undefined", input: "[[undefined]]", want: ""},
		{name: "negative_zero", input: "[[ -0.0]]", want: "-0"},
		{name: "huge_number", input: "[[123e123]]", want: "1.23e+125"},
		{name: "tiny_number", input: "[[321e-321]]", want: "3.21e-319"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRender_Variables(t *testing.T) {
	vars := map[string]any{
		"name":  "World",
		"n":     3,
		"ok":    true,
		"items": []any{"a", "b"},
		"user":  map[string]any{"name": "Ada", "uid": 1000},
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "string_var", input: "Hello, [[name]]!", want: "Hello, World!"},
		{name: "int_normalized", input: "[[n]]", want: "3"},
		{name: "bool_var", input: "[[ok]]", want: "true"},
		{name: "unknown_is_empty", input: "[[missing]]", want: ""},
		{name: "list_joins", input: "[[items]]", want: "a,b"},
		{name: "map_sorted", input: "[[user]]", want: "{name: Ada, uid: 1000}"},
		{name: "member", input: "[[user.name]]", want: "Ada"},
		{name: "member_missing", input: "[[user.nope]]", want: ""},
		{name: "member_chain_missing", input: "[[ghost.deep.path]]", want: ""},
		{name: "index_list", input: "[[items[1] ]]", want: "b"},
		{name: "index_out_of_range", input: "[[items[9] ]]", want: ""},
		{name: "index_negative", input: "[[items[0 - 1] ]]", want: ""},
		{name: "index_fractional", input: "[[items[0.5] ]]", want: ""},
		{name: "index_map", input: `[[user["uid"] ]]`, want: "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, vars); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRender_Operators(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "arithmetic", input: "[[1 + 2 * 3]]", want: "7"},
		{name: "division", input: "[[10 / 4]]", want: "2.5"},
		{name: "modulo", input: "[[7 % 3]]", want: "1"},
		{name: "divide_by_zero", input: "[[1 / 0]]", want: "+Inf"},
		{name: "mod_zero", input: "[[1 % 0]]", want: "NaN"},
		{name: "concat_left", input: `[["n=" + 5]]`, want: "n=5"},
		{name: "concat_right", input: `[[5 + "!"]]`, want: "5!"},
		{name: "compare_numbers", input: "[[2 < 10]]", want: "true"},
		{name: "compare_strings", input: `[["a" < "b"]]`, want: "true"},
		{name: "equality", input: "[[1 == 1]]", want: "true"},
		{name: "strict_types", input: `[["1" == 1]]`, want: "false"},
		{name: "null_equals_undefined", input: "[[null == undefined]]", want: "true"},
		{name: "structural_equality", input: "[[ [1, 2] == [1, 2] ]]", want: "true"},
		{name: "inequality", input: "[[1 != 2]]", want: "true"},
		{name: "not", input: "[[!0]]", want: "true"},
		{name: "not_empty_string", input: `[[!""]]`, want: "true"},
		{name: "empty_array_truthy", input: "[[!!([])]]", want: "true"},
		{name: "negate_group", input: "[[ -(2 + 3)]]", want: "-5"},
		{name: "unary_plus", input: "[[ +5]]", want: "5"},
		{name: "precedence_chain", input: "[[3 - 4 - 5 > 0 == 7*6 > 6*7]]", want: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRender_ShortCircuit(t *testing.T) {
	// The untaken branch is never evaluated, so calling a non-function
	// there cannot fail. Logical operators yield the deciding operand.
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "and_yields_right", input: "[[true && 5]]", want: "5"},
		{name: "and_yields_left", input: "[[0 && boom()]]", want: "0"},
		{name: "or_yields_left", input: "[[1 || boom()]]", want: "1"},
		{name: "or_yields_right", input: `[[0 || "x"]]`, want: "x"},
		{name: "or_of_nullish", input: `[[missing || "fallback"]]`, want: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRender_ErrorIsolation(t *testing.T) {
	// A failing bloc renders its error text in place; the surrounding
	// document is unaffected and Render itself succeeds.
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "not_a_function",
			input: "a[[fee()]]b",
			want:  "afee is not a functionb",
		},
		{
			name:  "literal_not_a_function",
			input: "[[5()]]",
			want:  "5 is not a function",
		},
		{
			name:  "bad_operands",
			input: "x[[true + 1]]y",
			want:  "xinvalid operands for +: boolean and numbery",
		},
		{
			name:  "bad_comparison",
			input: `[["a" < 5]]`,
			want:  "cannot compare string with number",
		},
		{
			name:  "bad_negation",
			input: `[[ -("a")]]`,
			want:  "invalid operand for -: string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRender_Helpers(t *testing.T) {
	helpers := map[string]any{
		"upper": strings.ToUpper,
		"add":   func(a, b float64) float64 { return a + b },
		"sum": func(xs ...float64) float64 {
			var n float64
			for _, x := range xs {
				n += x
			}

			return n
		},
		"tagged": func(ctx context.Context, s string) string {
			// Context injection: the first parameter is supplied by the
			// evaluator, not the template.
			if ctx == nil {
				return "no context"
			}

			return "<" + s + ">"
		},
		"fail": func() (string, error) {
			return "", errors.New("helper exploded")
		},
		"one": func(a float64) float64 { return a },
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "pipe", input: `[["abc" | upper]]`, want: "ABC"},
		{name: "pipe_chain", input: `[["a" | upper | upper]]`, want: "A"},
		{name: "call", input: "[[add(1, 2)]]", want: "3"},
		{name: "variadic", input: "[[sum(1, 2, 3)]]", want: "6"},
		{name: "variadic_empty", input: "[[sum()]]", want: "0"},
		{name: "context_injected", input: `[[tagged("x")]]`, want: "<x>"},
		{name: "number_to_string_arg", input: "[[tagged(7)]]", want: "<7>"},
		{name: "error_isolated", input: "[[fail()]]", want: "helper exploded"},
		{name: "too_many_args", input: "[[one(1, 2)]]", want: "too many arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := render(t, tt.input, nil, WithHelpers(helpers))
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRender_VarsShadowHelpers(t *testing.T) {
	helpers := map[string]any{"greet": "from helpers"}
	vars := map[string]any{"greet": "from vars"}

	got := render(t, "[[greet]]", vars, WithHelpers(helpers))
	if got != "from vars" {
		t.Errorf("expected render variables to win, got %q", got)
	}
}

func TestRender_HelpersShadowBuiltins(t *testing.T) {
	helpers := map[string]any{"hostname": "example.test"}

	got := render(t, "[[hostname]]", nil, WithHelpers(helpers))
	if got != "example.test" {
		t.Errorf("expected helper to shadow built-in, got %q", got)
	}
}

func TestRender_CallableIdentity(t *testing.T) {
	// A callable identifying value receives the ambient scope and the
	// bloc's dictionary.
	helpers := map[string]any{
		"shout": Func(func(ctx context.Context, args ...any) (any, error) {
			d, ok := blocDict(args)
			if !ok {
				return nil, NewError("shout must identify a bloc")
			}

			out, err := d.Contents().Render(ctx)
			if err != nil {
				return nil, err
			}

			return strings.ToUpper(out), nil
		}),
	}

	got := render(t, "[[+shout]]quiet[[-shout]]", nil, WithHelpers(helpers))
	if got != "QUIET" {
		t.Errorf("expected QUIET, got %q", got)
	}
}

func TestRender_BlocPropertyAccess(t *testing.T) {
	// Inside contents, "bloc" names the owning dictionary.
	got := render(t, `[[+let]][[k: 6 * 7]]value=[[bloc.k]][[-let]]`, nil)
	if got != "value=42" {
		t.Errorf("expected value=42, got %q", got)
	}
}

func TestRender_PropertyMemoized(t *testing.T) {
	calls := 0
	helpers := map[string]any{
		"count": func() float64 {
			calls++

			return float64(calls)
		},
	}

	got := render(
		t,
		"[[+let]][[k: count()]][[bloc.k]][[bloc.k]][[-let]]",
		nil,
		WithHelpers(helpers),
	)
	if got != "11" {
		t.Errorf("expected property to evaluate once, got %q", got)
	}

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRender_ThisInIdentity(t *testing.T) {
	// The identifying expression alone sees "this" as the bloc's own
	// dictionary, so a bloc can inspect its own properties.
	source := `[[+if(this.mode == "on")]]yes[[mode: "on"]][[-if]]`

	if got := render(t, source, nil); got != "yes" {
		t.Errorf("expected yes, got %q", got)
	}
}

func TestRender_DictOutput(t *testing.T) {
	got := render(t, "[[this]]", nil)
	if got != "bloc{}" {
		t.Errorf("expected bloc{}, got %q", got)
	}

	// Inside contents, "bloc" names the owning dictionary; a nested
	// [[this]] would name the nested bloc's own empty dictionary.
	got = render(t, "[[+let]][[a: 1]][[b: 2]][[bloc]][[-let]]", nil)
	if got != "bloc{a, b}" {
		t.Errorf("expected bloc{a, b}, got %q", got)
	}
}

func TestRender_ContentsNesting(t *testing.T) {
	// A bloc identified by this.contents renders its own body, nested
	// three levels deep.
	source := "[[+this.contents]]a" +
		"[[+this.contents]]b" +
		"[[+this.contents]]c[[-this.contents]]" +
		"d[[-this.contents]]" +
		"e[[-this.contents]]"

	if got := render(t, source, nil); got != "abcde" {
		t.Errorf("expected abcde, got %q", got)
	}
}

func TestRender_NestedParamShadowing(t *testing.T) {
	// Each nested bloc rebinds the same name for its own extent only, so
	// the outer binding returns as soon as the closing tag is passed.
	source := "[[+this.contents(3) -> x]][[x]]" +
		" [[+this.contents(4) -> x]][[x]]" +
		" [[+this.contents(5) -> x]][[x]][[-this.contents]]" +
		" [[x]][[-this.contents]]" +
		" [[x]][[-this.contents]]"

	if got := render(t, source, nil); got != "3 4 5 4 3" {
		t.Errorf("expected 3 4 5 4 3, got %q", got)
	}
}

func TestRender_LocalParams(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "single",
			input: "[[+let(5) -> n]][[n * 2]][[-let]]",
			want:  "10",
		},
		{
			name:  "multiple",
			input: "[[+let(1, 2) -> a b]][[a + b]][[-let]]",
			want:  "3",
		},
		{
			name:  "missing_binds_undefined",
			input: "[[+let(1) -> a b]][[a]]:[[b]][[-let]]",
			want:  "1:",
		},
		{
			name:  "locals_do_not_escape",
			input: "[[+let(5) -> n]][[n]][[-let]][[n]]",
			want:  "5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRender_GlobalParamWindow(t *testing.T) {
	// A global parameter rebinds the render's global frame for the
	// duration of the owning bloc, then the previous binding returns.
	vars := map[string]any{"name": "outer"}

	source := `[[name]]/[[+let("inner") => name]][[name]][[-let]]/[[name]]`

	if got := render(t, source, vars); got != "outer/inner/outer" {
		t.Errorf("expected outer/inner/outer, got %q", got)
	}
}

func TestRender_GlobalParamRestoresAbsence(t *testing.T) {
	// Rebinding a name that was never set removes it again afterward.
	source := `[[+let("x") => ghost]][[ghost]][[-let]]/[[ghost]]`

	if got := render(t, source, nil); got != "x/" {
		t.Errorf("expected x/, got %q", got)
	}
}

func TestRender_GlobalParamCrossesTemplates(t *testing.T) {
	// A global rebinding reaches separately held template values invoked
	// inside its window, not just the bloc's own contents.
	greet, err := ParseString(context.Background(), "Hello, [[name]]!")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	vars := map[string]any{"name": "outer", "greet": greet}

	source := `[[greet]] [[+let("inner") => name]][[greet]][[-let]] [[greet]]`

	want := "Hello, outer! Hello, inner! Hello, outer!"
	if got := render(t, source, vars); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRender_TemplateValueAsFunction(t *testing.T) {
	wrap, err := ParseString(context.Background(), "[[-> v]]([[v]])")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	vars := map[string]any{"wrap": wrap}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "called", input: `[[wrap("x")]]`, want: "(x)"},
		{name: "piped", input: `[["y" | wrap]]`, want: "(y)"},
		{name: "uncalled_renders", input: "[[wrap]]", want: "()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, vars); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRender_TemplateValueWithObjectCall(t *testing.T) {
	tmpl, err := ParseString(context.Background(), "x is [[x]]")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	vars := map[string]any{"tmpl": tmpl}

	got := render(t, "[[tmpl({x: 5})]]", vars)
	if got != "x is 5" {
		t.Errorf("expected x is 5, got %q", got)
	}
}

func TestRender_FragmentValue(t *testing.T) {
	vars := map[string]any{
		"frag":     NewFragment("Hello, [[name]]!"),
		"name":     "World",
		"badfrag":  NewFragment("[[x"),
		"selfless": nil,
	}

	got := render(t, "[[frag]]", vars)
	if got != "Hello, World!" {
		t.Errorf("expected fragment to render against ambient scope, got %q", got)
	}

	// A fragment that fails to parse renders its diagnostic in place.
	got = render(t, "a[[badfrag]]b", vars)
	if got != "a1:1: Unterminated blocb" {
		t.Errorf("expected parse diagnostic inline, got %q", got)
	}
}

func TestRender_AsyncTransparency(t *testing.T) {
	started := make(chan struct{})

	vars := map[string]any{
		"eager": Go(func() (any, error) {
			close(started)

			return "eager-value", nil
		}),
		"lazy": Defer(func(ctx context.Context) (any, error) {
			return "lazy-value", nil
		}),
		"n": Defer(func(ctx context.Context) (any, error) {
			return 41, nil
		}),
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("expected Go to start its work immediately")
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "task_value", input: "[[eager]]", want: "eager-value"},
		{name: "deferred_value", input: "[[lazy]]", want: "lazy-value"},
		{name: "operand_position", input: "[[n + 1]]", want: "42"},
		{name: "comparison_position", input: "[[n < 100]]", want: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, vars); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRender_DeferredEvaluatesOnce(t *testing.T) {
	calls := 0

	vars := map[string]any{
		"lazy": Defer(func(ctx context.Context) (any, error) {
			calls++

			return calls, nil
		}),
	}

	got := render(t, "[[lazy]][[lazy]]", vars)
	if got != "11" {
		t.Errorf("expected memoized deferred value, got %q", got)
	}

	if calls != 1 {
		t.Errorf("expected 1 evaluation, got %d", calls)
	}
}

func TestRender_AwaitableError(t *testing.T) {
	vars := map[string]any{
		"broken": Defer(func(ctx context.Context) (any, error) {
			return nil, errors.New("fetch failed")
		}),
	}

	got := render(t, "a[[broken]]b", vars)
	if got != "afetch failedb" {
		t.Errorf("expected awaitable error isolated inline, got %q", got)
	}
}

func TestRender_NilTemplate(t *testing.T) {
	var tmpl *Template

	_, err := tmpl.Render(context.Background(), nil)
	if !errors.Is(err, ErrNilTemplate) {
		t.Errorf("expected ErrNilTemplate, got %v", err)
	}
}

func TestRender_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RenderString(ctx, "text [[1]]", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRender_CancellationNotIsolated(t *testing.T) {
	// Cancellation must propagate even when it surfaces inside a bloc,
	// where data errors would be swallowed.
	ctx, cancel := context.WithCancel(context.Background())

	helpers := map[string]any{
		"kill": func() (string, error) {
			cancel()

			return "", errors.New("stopping")
		},
	}

	_, err := RenderString(ctx, "[[kill()]] after [[1]]", nil, WithHelpers(helpers))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRender_MaxDepth(t *testing.T) {
	// A self-referential fragment recurses until the depth bound, and the
	// depth error is isolated like any other bloc failure.
	frag := NewFragment("[[again]]")
	vars := map[string]any{"again": frag}

	got, err := RenderString(context.Background(), "[[again]]", vars)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if !strings.Contains(got, "maximum render depth exceeded") {
		t.Errorf("expected depth diagnostic in output, got %q", got)
	}
}

func TestRender_MaxDepthOption(t *testing.T) {
	// Three nested bodies exceed a depth bound of 2.
	source := "[[+this.contents]][[+this.contents]][[+this.contents]]x" +
		"[[-this.contents]][[-this.contents]][[-this.contents]]"

	got, err := RenderString(
		context.Background(), source, nil, WithMaxDepth(2),
	)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if !strings.Contains(got, "maximum render depth exceeded") {
		t.Errorf("expected depth diagnostic, got %q", got)
	}

	if _, err := RenderString(context.Background(), source, nil); err != nil {
		t.Errorf("default depth must accommodate shallow nesting: %v", err)
	}
}

func TestRender_SwallowedLines(t *testing.T) {
	// Structural tags on their own lines leave no blank lines behind.
	source := "before\n" +
		"[[+let(2) -> n]]\n" +
		"n=[[n]]\n" +
		"[[-let]]\n" +
		"after"

	want := "before\nn=2\nafter"

	if got := render(t, source, nil); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRender_CommentsProduceNothing(t *testing.T) {
	got := render(t, "a[[# hidden #]]b", nil)
	if got != "ab" {
		t.Errorf("expected ab, got %q", got)
	}
}
