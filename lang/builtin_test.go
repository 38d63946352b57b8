package lang

import (
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestIf_Conditions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "true_renders_contents",
			input: "[[+if(1 < 2)]]yes[[-if]]",
			want:  "yes",
		},
		{
			name:  "false_without_chain",
			input: "[[+if(1 > 2)]]yes[[-if]]",
			want:  "",
		},
		{
			name:  "true_skips_else",
			input: "[[+if(1)]]a[[*:else]]b[[-if]]",
			want:  "a",
		},
		{
			name:  "false_takes_else",
			input: "[[+if(0)]]a[[*:else]]b[[-if]]",
			want:  "b",
		},
		{
			name:  "else_if_first_match_wins",
			input: "[[+if(0)]]a[[*:else if(1 < 2)]]b[[*:else]]c[[-if]]",
			want:  "b",
		},
		{
			name:  "else_if_falls_through",
			input: "[[+if(0)]]a[[*:else if(1 > 2)]]b[[*:else]]c[[-if]]",
			want:  "c",
		},
		{
			name:  "multiple_guards_all_hold",
			input: "[[+if(0)]]a[[*:else if(1, 2)]]b[[-if]]",
			want:  "b",
		},
		{
			name:  "multiple_guards_one_fails",
			input: "[[+if(0)]]a[[*:else if(1, 0)]]b[[-if]]",
			want:  "",
		},
		{
			name:  "guardless_else_if_never_holds",
			input: "[[+if(0)]]a[[*:else if]]b[[*:else]]c[[-if]]",
			want:  "c",
		},
		{
			name:  "empty_guard_list_never_holds",
			input: "[[+if(0)]]a[[*:else if()]]b[[*:else]]c[[-if]]",
			want:  "c",
		},
		{
			name:  "value_form_else",
			input: `[[+if(0)]]a[[else: "b"]][[-if]]`,
			want:  "b",
		},
		{
			name:  "unrelated_properties_ignored",
			input: `[[+if(0)]]a[[note: "x"]][[*:else]]b[[-if]]`,
			want:  "b",
		},
		{
			name:  "guard_error_isolated",
			input: `[[+if(0)]]a[[*:else if(1 < "x")]]b[[-if]]`,
			want:  "cannot compare number with string",
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

func TestIf_GuardsSeeAmbientScope(t *testing.T) {
	vars := map[string]any{"mode": "fast"}

	source := `[[+if(mode == "slow")]]s[[*:else if(mode == "fast")]]f[[-if]]`

	if got := render(t, source, vars); got != "f" {
		t.Errorf("expected f, got %q", got)
	}
}

func TestEachof(t *testing.T) {
	vars := map[string]any{
		"items": []any{"x", "y"},
		"pairs": map[string]any{"b": 2, "a": 1},
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "list_binds_element_and_index",
			input: "[[+eachof([1, 2, 3]) -> el i]][[i]]:[[el]] [[-eachof]]",
			want:  "0:1 1:2 2:3 ",
		},
		{
			name:  "list_from_variable",
			input: "[[+eachof(items) -> el]]<[[el]]>[[-eachof]]",
			want:  "<x><y>",
		},
		{
			name:  "map_iterates_sorted_keys",
			input: "[[+eachof(pairs) -> v k]][[k]]=[[v]];[[-eachof]]",
			want:  "a=1;b=2;",
		},
		{
			name:  "plain_value_renders_once",
			input: `[[+eachof("solo") -> v i]][[v]]@[[i]][[-eachof]]`,
			want:  "solo@0",
		},
		{
			name:  "null_renders_nothing",
			input: "[[+eachof(null) -> v]]x[[-eachof]]",
			want:  "",
		},
		{
			name:  "undefined_renders_nothing",
			input: "[[+eachof(ghost) -> v]]x[[-eachof]]",
			want:  "",
		},
		{
			name:  "empty_list_renders_nothing",
			input: "[[+eachof([]) -> v]]x[[-eachof]]",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, vars); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFlowHelpersRequireBlocs(t *testing.T) {
	// The curried form of a flow helper must land on a bloc identity;
	// applying it to anything else reports which helper was misused.
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "let", input: `[[let(1)("x")]]`, want: "let must identify a bloc"},
		{name: "if", input: `[[if(true)("x")]]`, want: "if must identify a bloc"},
		{name: "eachof", input: `[[eachof([1])("x")]]`, want: "eachof must identify a bloc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) {
		t.Helper()

		if err := os.WriteFile(
			filepath.Join(dir, name), []byte(content), 0o644,
		); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	write("greet.bloc", "hello [[who]]")
	write("wrap.bloc", "[[-> v]]([[v]])")
	write("broken.bloc", "[[oops")

	ld := NewLoader(dir)
	vars := map[string]any{"who": "World"}

	t.Run("inclusion", func(t *testing.T) {
		got := render(t, `[[require("greet.bloc")]]`, vars, WithLoader(ld))
		if got != "hello World" {
			t.Errorf("expected hello World, got %q", got)
		}
	})

	t.Run("called_with_arguments", func(t *testing.T) {
		got := render(t, `[[require("wrap.bloc")("boxed")]]`, nil, WithLoader(ld))
		if got != "(boxed)" {
			t.Errorf("expected (boxed), got %q", got)
		}
	})

	t.Run("piped_into", func(t *testing.T) {
		got := render(t, `[["piped" | require("wrap.bloc")]]`, nil, WithLoader(ld))
		if got != "(piped)" {
			t.Errorf("expected (piped), got %q", got)
		}
	})

	t.Run("parse_failure_surfaces_inline", func(t *testing.T) {
		got := render(t, `[[require("broken.bloc")]]`, nil, WithLoader(ld))
		if !strings.HasSuffix(got, "1:1: Unterminated bloc") {
			t.Errorf("expected positional diagnostic, got %q", got)
		}

		if !strings.Contains(got, "broken.bloc") {
			t.Errorf("expected file name in diagnostic, got %q", got)
		}
	})

	t.Run("missing_file_is_load_error", func(t *testing.T) {
		got := render(t, `[[require("nope.bloc")]]`, nil, WithLoader(ld))
		if !strings.HasPrefix(got, "failed to load template") {
			t.Errorf("expected load error, got %q", got)
		}
	})

	t.Run("missing_path_argument", func(t *testing.T) {
		got := render(t, "[[require()]]", nil, WithLoader(ld))
		if got != "require needs a path" {
			t.Errorf("expected usage error, got %q", got)
		}
	})
}

func TestExprHelper(t *testing.T) {
	helpers := map[string]any{"upper": strings.ToUpper}
	vars := map[string]any{"n": 21}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "arithmetic", input: `[[expr("1 + 2")]]`, want: "3"},
		{name: "reads_ambient_scope", input: `[[expr("n * 2")]]`, want: "42"},
		{name: "calls_helpers", input: `[[expr("upper('go')")]]`, want: "GO"},
		{name: "string_result", input: `[[expr("'a' + 'b'")]]`, want: "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := render(t, tt.input, vars, WithHelpers(helpers))
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	t.Run("compile_failure_isolated", func(t *testing.T) {
		got := render(t, `[[expr("1 +")]]`, nil)
		if !strings.HasPrefix(got, "expression compilation failed") {
			t.Errorf("expected compile diagnostic, got %q", got)
		}
	})

	t.Run("source_must_be_string", func(t *testing.T) {
		got := render(t, "[[expr(42)]]", nil)
		if got != "expr source must be a string, not number" {
			t.Errorf("expected type diagnostic, got %q", got)
		}
	})
}

func TestEnvLookup(t *testing.T) {
	if got := envLookup("PATH"); got != os.Getenv("PATH") {
		t.Errorf("expected PATH from process environment, got %q", got)
	}

	if got := envLookup("BLOC_TEST_NO_SUCH_VAR"); got != "" {
		t.Errorf("expected empty value for unset variable, got %q", got)
	}
}

func TestPlatformOverrides(t *testing.T) {
	t.Setenv("GOHOSTOS", "linux")
	t.Setenv("GOHOSTARCH", "amd64")

	p := getPlatform()
	if p["os"] != "linux" || p["arch"] != "amd64" {
		t.Errorf("expected linux/amd64, got %v", p)
	}
}

func TestTargetArchNaming(t *testing.T) {
	tests := []struct {
		name   string
		goos   string
		goarch string
		want   string
	}{
		{name: "386", goos: "linux", goarch: "386", want: "i386"},
		{name: "amd64", goos: "linux", goarch: "amd64", want: "x86_64"},
		{name: "arm64_linux", goos: "linux", goarch: "arm64", want: "aarch64"},
		{name: "arm64_darwin", goos: "darwin", goarch: "arm64", want: "arm64"},
		{name: "mipsle", goos: "linux", goarch: "mipsle", want: "mipsel"},
		{name: "riscv64_unchanged", goos: "linux", goarch: "riscv64", want: "riscv64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOHOSTOS", tt.goos)
			t.Setenv("GOHOSTARCH", tt.goarch)

			tg := getTarget()
			if tg["arch"] != tt.want {
				t.Errorf("expected arch %q, got %q", tt.want, tg["arch"])
			}

			if tg["os"] != tt.goos {
				t.Errorf("expected os %q, got %q", tt.goos, tg["os"])
			}
		})
	}
}

func TestTargetArmVersion(t *testing.T) {
	t.Setenv("GOHOSTOS", "linux")
	t.Setenv("GOHOSTARCH", "arm")
	t.Setenv("GOARM", "7,hardfloat")

	if tg := getTarget(); tg["arch"] != "armv7" {
		t.Errorf("expected armv7, got %q", tg["arch"])
	}

	t.Setenv("GOARM", "")

	if tg := getTarget(); tg["arch"] != "arm" {
		t.Errorf("expected arm without a GOARM version, got %q", tg["arch"])
	}
}

func TestUserInfo(t *testing.T) {
	u, err := user.Current()
	if err != nil {
		t.Skipf("user.Current: %v", err)
	}

	info := getUser()
	if info["username"] != u.Username {
		t.Errorf("expected username %q, got %q", u.Username, info["username"])
	}

	if info["home"] != u.HomeDir {
		t.Errorf("expected home %q, got %q", u.HomeDir, info["home"])
	}
}

func TestShellFromEnv(t *testing.T) {
	t.Setenv("SHELL", "/bin/blsh")

	if got := getShell(); got != "/bin/blsh" {
		t.Errorf("expected /bin/blsh, got %q", got)
	}
}

func TestCwd(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Skipf("os.Getwd: %v", err)
	}

	if got := getCwd(); got != wd {
		t.Errorf("expected %q, got %q", wd, got)
	}

	if got := render(t, "[[cwd()]]", nil); got != wd {
		t.Errorf("expected working directory from template, got %q", got)
	}
}

func TestFilePredicates(t *testing.T) {
	dir := t.TempDir()

	f := filepath.Join(dir, "present.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	vars := map[string]any{
		"f": f,
		"d": dir,
		"m": filepath.Join(dir, "absent.txt"),
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "exists", input: "[[file.exists(f)]]", want: "true"},
		{name: "exists_missing", input: "[[file.exists(m)]]", want: "false"},
		{name: "isDir", input: "[[file.isDir(d)]]", want: "true"},
		{name: "isDir_on_file", input: "[[file.isDir(f)]]", want: "false"},
		{name: "isRegular", input: "[[file.isRegular(f)]]", want: "true"},
		{name: "isRegular_on_dir", input: "[[file.isRegular(d)]]", want: "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.input, vars); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFileSymlink(t *testing.T) {
	dir := t.TempDir()

	f := filepath.Join(dir, "target.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	link := filepath.Join(dir, "alias")
	if err := os.Symlink(f, link); err != nil {
		t.Skipf("symlink: %v", err)
	}

	if !fileIsSymlink(link) {
		t.Error("expected symlink to be detected")
	}

	if fileIsSymlink(f) {
		t.Error("expected regular file not to be a symlink")
	}
}

func TestPathHelpers(t *testing.T) {
	vars := map[string]any{"a": "x", "b": "y"}

	if got, want := render(t, "[[path.cat(a, b)]]", vars), filepath.Join("x", "y"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if got, want := render(t, `[[path.abs(".")]]`, nil), pathAbs("."); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if got := pathRel("/a/b", "/a/b/c/d"); got != filepath.Join("c", "d") {
		t.Errorf("expected relative path c/d, got %q", got)
	}
}

func TestBuiltinKeys(t *testing.T) {
	keys := BuiltinKeys()

	if !slices.IsSorted(keys) {
		t.Errorf("expected sorted keys, got %v", keys)
	}

	for _, want := range []string{
		"cwd", "eachof", "env", "expr", "file", "hostname", "if",
		"let", "mung", "path", "platform", "require", "shell",
		"target", "user",
	} {
		if !slices.Contains(keys, want) {
			t.Errorf("expected %q among built-in keys %v", want, keys)
		}
	}
}

func TestBuiltinLookup(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{
			name: "file",
			path: "file",
			want: []string{"exists", "isDir", "isRegular", "isSymlink"},
		},
		{name: "path", path: "path", want: []string{"abs", "cat", "rel"}},
		{name: "mung", path: "mung", want: []string{"prefix", "prefixif"}},
		{name: "platform", path: "platform", want: []string{"arch", "os"}},
		{name: "target", path: "target", want: []string{"arch", "os"}},
		{name: "scalar_has_no_members", path: "hostname", want: nil},
		{name: "function_has_no_members", path: "file.exists", want: nil},
		{name: "unknown", path: "nope", want: nil},
		{name: "unknown_nested", path: "file.nope", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuiltinLookup(tt.path)
			if !slices.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("empty_path_lists_keys", func(t *testing.T) {
		if !slices.Equal(BuiltinLookup(""), BuiltinKeys()) {
			t.Error("expected empty path to list the top-level keys")
		}
	})

	t.Run("env_lists_variable_names", func(t *testing.T) {
		if os.Getenv("PATH") == "" {
			t.Skip("PATH not set")
		}

		names := BuiltinLookup("env")
		if !slices.Contains(names, "PATH") {
			t.Errorf("expected PATH among environment names")
		}
	})
}

func TestHostname(t *testing.T) {
	host, err := os.Hostname()
	if err != nil {
		t.Skipf("os.Hostname: %v", err)
	}

	if got := render(t, "[[hostname]]", nil); got != host {
		t.Errorf("expected %q, got %q", host, got)
	}
}

func TestBlocDict(t *testing.T) {
	d := &Dict{}
	s := &Scope{}

	if got, ok := blocDict([]any{s, d}); !ok || got != d {
		t.Error("expected scope and dictionary pair to be recognized")
	}

	for name, args := range map[string][]any{
		"too_few":     {d},
		"too_many":    {s, d, 1},
		"wrong_order": {d, s},
		"no_scope":    {"x", d},
		"no_dict":     {s, "x"},
	} {
		if _, ok := blocDict(args); ok {
			t.Errorf("%s: expected rejection", name)
		}
	}
}

func TestRequire_RespectsRenderContext(t *testing.T) {
	// A template pulled in by require sees the same variables as the
	// document that required it, including global-parameter rebinding in
	// an enclosing bloc.
	dir := t.TempDir()

	if err := os.WriteFile(
		filepath.Join(dir, "inner.bloc"), []byte("[[who]]"), 0o644,
	); err != nil {
		t.Fatalf("write: %v", err)
	}

	ld := NewLoader(dir)
	vars := map[string]any{"who": "outer"}

	source := `[[require("inner.bloc")]]-` +
		`[[+let("shadow") => who]][[require("inner.bloc")]][[-let]]`

	got := render(t, source, vars, WithLoader(ld))
	if got != "outer-shadow" {
		t.Errorf("expected outer-shadow, got %q", got)
	}
}
