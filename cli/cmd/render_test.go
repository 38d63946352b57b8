package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardnew/bloc/lang"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything fn wrote to it.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	runErr := fn()

	w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}

	return string(data), runErr
}

// TestOutputName tests the file name a source renders to inside an output
// directory.
func TestOutputName(t *testing.T) {
	tests := []struct {
		src  Source
		want string
	}{
		{Source{Name: stdinName}, "stdin"},
		{Source{Name: "site.html.bloc", path: "/tmp/site.html.bloc"}, "site.html"},
		{Source{Name: "dir/page.bloc", path: "/tmp/dir/page.bloc"}, "page"},
		{Source{Name: "plain.txt", path: "/tmp/plain.txt"}, "plain.txt"},
		{Source{Name: ".bloc", path: "/tmp/.bloc"}, ".bloc"},
	}

	for _, tt := range tests {
		if got := outputName(tt.src); got != tt.want {
			t.Errorf("outputName(%q) = %q, want %q", tt.src.Name, got, tt.want)
		}
	}
}

// TestRenderToStdout tests rendering a single file against a context file.
func TestRenderToStdout(t *testing.T) {
	tmpdir, err := os.MkdirTemp("", "bloc-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)

	tmpl := filepath.Join(tmpdir, "greet.bloc")
	if err := os.WriteFile(tmpl, []byte("Hello, [[who]]!\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctxFile := filepath.Join(tmpdir, "ctx.yaml")
	if err := os.WriteFile(ctxFile, []byte("who: World\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &Render{Context: []string{ctxFile}}
	ctx := WithSources(context.Background(), []string{tmpl})

	out, err := captureStdout(t, func() error { return r.Run(ctx) })
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if out != "Hello, World!\n" {
		t.Errorf("got %q, want %q", out, "Hello, World!\n")
	}
}

// TestRenderSetOverride tests that --set wins over context files.
func TestRenderSetOverride(t *testing.T) {
	tmpdir, err := os.MkdirTemp("", "bloc-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)

	tmpl := filepath.Join(tmpdir, "greet.bloc")
	if err := os.WriteFile(tmpl, []byte("[[who]]"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctxFile := filepath.Join(tmpdir, "ctx.yaml")
	if err := os.WriteFile(ctxFile, []byte("who: file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &Render{
		Context: []string{ctxFile},
		Set:     map[string]string{"who": "flag"},
	}
	ctx := WithSources(context.Background(), []string{tmpl})

	out, err := captureStdout(t, func() error { return r.Run(ctx) })
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if out != "flag" {
		t.Errorf("got %q, want %q", out, "flag")
	}
}

// TestRenderStdinSource tests the default stdin source.
func TestRenderStdinSource(t *testing.T) {
	oldStdin := os.Stdin
	defer func() { os.Stdin = oldStdin }()

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdin = pr

	go func() {
		defer pw.Close()
		io.WriteString(pw, "Hi [[who]]!")
	}()

	r := &Render{Set: map[string]string{"who": "there"}}

	out, err := captureStdout(t, func() error {
		return r.Run(context.Background())
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if out != "Hi there!" {
		t.Errorf("got %q, want %q", out, "Hi there!")
	}
}

// TestRenderToDirectory tests per-source output files under a directory.
func TestRenderToDirectory(t *testing.T) {
	tmpdir, err := os.MkdirTemp("", "bloc-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)

	fileA := filepath.Join(tmpdir, "a.bloc")
	if err := os.WriteFile(fileA, []byte("alpha [[n]]"), 0o644); err != nil {
		t.Fatal(err)
	}

	fileB := filepath.Join(tmpdir, "b.bloc")
	if err := os.WriteFile(fileB, []byte("beta [[n]]"), 0o644); err != nil {
		t.Fatal(err)
	}

	outdir := filepath.Join(tmpdir, "out")
	if err := os.Mkdir(outdir, 0o755); err != nil {
		t.Fatal(err)
	}

	r := &Render{
		Output: outdir,
		Set:    map[string]string{"n": "one"},
	}
	ctx := WithSources(context.Background(), []string{fileA, fileB})

	if err := r.Run(ctx); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	for file, want := range map[string]string{
		"a": "alpha one",
		"b": "beta one",
	} {
		data, err := os.ReadFile(filepath.Join(outdir, file))
		if err != nil {
			t.Fatalf("reading output %s: %v", file, err)
		}

		if string(data) != want {
			t.Errorf("output %s = %q, want %q", file, string(data), want)
		}
	}
}

// TestRenderToFile tests that results concatenate into a single named file
// in source order.
func TestRenderToFile(t *testing.T) {
	tmpdir, err := os.MkdirTemp("", "bloc-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)

	fileA := filepath.Join(tmpdir, "a.bloc")
	if err := os.WriteFile(fileA, []byte("alpha\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fileB := filepath.Join(tmpdir, "b.bloc")
	if err := os.WriteFile(fileB, []byte("beta\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	outfile := filepath.Join(tmpdir, "combined.txt")

	r := &Render{Output: outfile}
	ctx := WithSources(context.Background(), []string{fileA, fileB})

	if err := r.Run(ctx); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	data, err := os.ReadFile(outfile)
	if err != nil {
		t.Fatal(err)
	}

	if string(data) != "alpha\nbeta\n" {
		t.Errorf("got %q, want %q", string(data), "alpha\nbeta\n")
	}
}

// TestRenderParseError tests that malformed template source reports a
// positional parse error naming the file.
func TestRenderParseError(t *testing.T) {
	tmpdir, err := os.MkdirTemp("", "bloc-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpdir)

	tmpl := filepath.Join(tmpdir, "bad.bloc")
	if err := os.WriteFile(tmpl, []byte("unterminated [[ tag"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &Render{}
	ctx := WithSources(context.Background(), []string{tmpl})

	_, err = captureStdout(t, func() error { return r.Run(ctx) })
	if err == nil {
		t.Fatal("render should fail for malformed source")
	}

	pe := &lang.ParseError{}
	if !errors.As(err, &pe) {
		t.Fatalf("got %T (%v), want *lang.ParseError", err, err)
	}

	if pe.FileName != tmpl {
		t.Errorf("got file %q, want %q", pe.FileName, tmpl)
	}
}

// TestRenderMissingSource tests the error for an unreadable source file.
func TestRenderMissingSource(t *testing.T) {
	r := &Render{}
	ctx := WithSources(context.Background(), []string{"/nonexistent/x.bloc"})

	_, err := captureStdout(t, func() error { return r.Run(ctx) })
	if err == nil {
		t.Fatal("render should fail for a missing source")
	}

	if !errors.Is(err, ErrReadSource) {
		t.Errorf("got %v, want ErrReadSource", err)
	}
}
