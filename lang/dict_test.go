package lang

import (
	"context"
	"testing"
)

// captureDict renders source with a "grab" helper that captures the
// dictionary of the bloc it identifies, for direct inspection.
func captureDict(t *testing.T, source string, vars map[string]any) *Dict {
	t.Helper()

	var captured *Dict

	helpers := map[string]any{
		"grab": Func(func(ctx context.Context, args ...any) (any, error) {
			d, ok := blocDict(args)
			if !ok {
				return nil, NewError("grab must identify a bloc")
			}

			captured = d

			return d.Contents().Render(ctx)
		}),
	}

	render(t, source, vars, WithHelpers(helpers))

	if captured == nil {
		t.Fatal("expected a grab bloc in the source")
	}

	return captured
}

func TestRestoreSet(t *testing.T) {
	rs := newRestoreSet()

	var order []int

	if !rs.add(func() { order = append(order, 1) }) {
		t.Fatal("expected add to succeed while the window is open")
	}

	if !rs.add(func() { order = append(order, 2) }) {
		t.Fatal("expected add to succeed while the window is open")
	}

	rs.run()

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("expected newest-first undo order, got %v", order)
	}

	if rs.add(func() {}) {
		t.Error("expected add to fail after the window closed")
	}

	var unset *restoreSet
	if unset.add(func() {}) {
		t.Error("expected nil set to reject additions")
	}
}

func TestContents_CallBindsUnbound(t *testing.T) {
	d := captureDict(t, "[[+grab -> v]]([[v]])[[-grab]]", nil)

	got, err := d.Contents().Call(context.Background(), "x")
	if err != nil {
		t.Fatalf("call error: %v", err)
	}

	// A positional call on unbound contents binds without rendering.
	bound, ok := got.(*Contents)
	if !ok {
		t.Fatalf("expected bound contents, got %#v", got)
	}

	out, err := bound.Render(context.Background())
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if out != "(x)" {
		t.Errorf("expected (x), got %q", out)
	}
}

func TestContents_CallMergesObject(t *testing.T) {
	d := captureDict(t, "[[+grab]]<[[w]]>[[-grab]]", nil)

	got, err := d.Contents().Call(
		context.Background(), map[string]any{"w": 5},
	)
	if err != nil {
		t.Fatalf("call error: %v", err)
	}

	merged, ok := got.(*Contents)
	if !ok {
		t.Fatalf("expected merged contents, got %#v", got)
	}

	out, err := merged.Render(context.Background())
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if out != "<5>" {
		t.Errorf("expected <5>, got %q", out)
	}
}

func TestContents_IdentityInvocationRenders(t *testing.T) {
	d := captureDict(t, "[[+grab -> v]]([[v]])[[-grab]]", nil)

	// The (scope, dictionary) pair must render immediately even though
	// parameters are declared and unbound.
	got, err := d.Contents().Call(context.Background(), &Scope{}, &Dict{})
	if err != nil {
		t.Fatalf("call error: %v", err)
	}

	if got != "()" {
		t.Errorf("expected (), got %#v", got)
	}
}

func TestContents_BindPositional(t *testing.T) {
	d := captureDict(t, "[[+grab -> a b]][[a]][[b]][[-grab]]", nil)

	out, err := d.Contents().Bind("1", "2").Render(context.Background())
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if out != "12" {
		t.Errorf("expected 12, got %q", out)
	}

	// Unfilled parameters stay undefined.
	out, err = d.Contents().Bind("1").Render(context.Background())
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if out != "1" {
		t.Errorf("expected 1, got %q", out)
	}
}

func TestContents_BindAfterWindowClosed(t *testing.T) {
	// The owning bloc's evaluation window has closed by the time we bind,
	// so the global rebinding must undo when this render finishes instead.
	d := captureDict(t, "[[+grab => g]][[g]][[-grab]]", nil)

	bound := d.Contents().Bind("late")

	out, err := bound.Render(context.Background())
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if out != "late" {
		t.Errorf("expected late, got %q", out)
	}

	if _, ok := d.scope.Lookup("g"); ok {
		t.Error("expected global rebinding undone after render")
	}
}

func TestDict_FirstKeyWins(t *testing.T) {
	got := render(t, "[[+let]][[k: 1]][[k: 2]][[bloc.k]][[-let]]", nil)
	if got != "1" {
		t.Errorf("expected first declaration to win, got %q", got)
	}
}

func TestDict_TemplateProperty(t *testing.T) {
	got := render(t, "[[+let]][[+:part]]P[[-part]][[bloc.part]][[bloc.part]][[-let]]", nil)
	if got != "PP" {
		t.Errorf("expected PP, got %q", got)
	}
}

func TestDict_MissingPropertyUndefined(t *testing.T) {
	got := render(t, "[[+let]]<[[bloc.nope]]>[[-let]]", nil)
	if got != "<>" {
		t.Errorf("expected <>, got %q", got)
	}
}
