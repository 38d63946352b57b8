package lang

// This file defines the built-in helpers available to every template.
// They occupy the shared bottom frame of the scope chain, so any name
// here can be shadowed by host helpers or render variables.

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/ardnew/mung"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// builtins constructs the helper environment. Flow helpers follow the
// bloc calling convention; everything else is a plain value or function
// reachable from tag expressions and from expr programs alike.
func builtins() map[string]any {
	return map[string]any{
		// Flow and composition helpers.
		"let":     Func(letHelper),
		"if":      Func(ifHelper),
		"eachof":  Func(eachofHelper),
		"require": Func(requireHelper),
		"expr":    Func(exprHelper),

		// Process environment.
		"env": envLookup,

		// System information.
		"target":   getTarget(),
		"platform": getPlatform(),
		"hostname": getHostname(),
		"user":     getUser(),
		"shell":    getShell(),

		// Working directory.
		"cwd": getCwd,

		// Filesystem predicates.
		"file": map[string]any{
			"exists":    fileExists,
			"isDir":     fileIsDir,
			"isRegular": fileIsRegular,
			"isSymlink": fileIsSymlink,
		},

		// Path manipulation.
		"path": map[string]any{
			"abs": pathAbs,
			"cat": pathCat,
			"rel": pathRel,
		},

		// PATH-like string manipulation via mung.
		"mung": map[string]any{
			"prefix":   mungPrefix,
			"prefixif": mungPrefixIf,
		},
	}
}

// BuiltinKeys returns the top-level names of the built-in helpers, for
// completion and introspection.
func BuiltinKeys() []string {
	return sortedKeys(builtinScope().vars)
}

// BuiltinValue returns the built-in helper value at a dot-separated
// path, for introspection. The second result is false when the path
// does not resolve.
func BuiltinValue(path string) (any, bool) {
	var current any = builtinScope().vars

	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// BuiltinLookup returns the member names reachable at a dot-separated
// path inside the built-in helpers, or nil when the path does not name a
// map. The "env" path expands to the process environment variable names.
func BuiltinLookup(path string) []string {
	if path == "" {
		return BuiltinKeys()
	}

	if path == "env" {
		return sortedKeys(flattenEnv(processEnv()))
	}

	var current any = builtinScope().vars

	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}

		current, ok = m[seg]
		if !ok {
			return nil
		}
	}

	if m, ok := current.(map[string]any); ok {
		return sortedKeys(m)
	}

	return nil
}

// blocDict recognizes the (scope, dictionary) argument pair of a bloc
// identity invocation.
func blocDict(args []any) (*Dict, bool) {
	if len(args) != 2 {
		return nil, false
	}

	if _, ok := args[0].(*Scope); !ok {
		return nil, false
	}

	d, ok := args[1].(*Dict)

	return d, ok
}

// letHelper binds its arguments to the contents' declared parameters and
// renders the contents. A bare let names its bloc directly and renders the
// contents with nothing bound, grouping properties around plain output.
func letHelper(ctx context.Context, args ...any) (any, error) {
	if d, ok := blocDict(args); ok {
		return d.Contents().Render(ctx)
	}

	values := args

	return Func(func(ctx context.Context, args ...any) (any, error) {
		d, ok := blocDict(args)
		if !ok {
			return nil, NewError("let must identify a bloc")
		}

		return d.Contents().Bind(values...).Render(ctx)
	}), nil
}

// ifHelper renders the contents when its condition holds. Otherwise it
// walks the bloc's "else if" and "else" properties in declaration order
// and renders the first whose guards all hold.
func ifHelper(_ context.Context, args ...any) (any, error) {
	var cond any = Undefined{}
	if len(args) > 0 {
		cond = args[0]
	}

	return Func(func(ctx context.Context, args ...any) (any, error) {
		d, ok := blocDict(args)
		if !ok {
			return nil, NewError("if must identify a bloc")
		}

		if truthy(cond) {
			return d.Contents().Render(ctx)
		}

		for _, p := range d.Entries() {
			switch p.Key {
			case "else if", "else":
			default:
				continue
			}

			// An "else if" without a guard can never hold.
			if p.Key == "else if" && p.Guard == nil {
				continue
			}

			hold, err := guardsHold(ctx, d, p.Guard)
			if err != nil {
				return nil, err
			}

			if !hold {
				continue
			}

			return renderChainEntry(ctx, d, p)
		}

		return "", nil
	}), nil
}

// guardsHold evaluates guard expressions in the bloc's ambient scope. A
// nil list always holds; an empty declared list never does; otherwise
// every guard must be truthy.
func guardsHold(ctx context.Context, d *Dict, guards []Expr) (bool, error) {
	if guards == nil {
		return true, nil
	}

	if len(guards) == 0 {
		return false, nil
	}

	for _, g := range guards {
		v, err := d.Eval(ctx, g)
		if err != nil {
			return false, err
		}

		if !truthy(v) {
			return false, nil
		}
	}

	return true, nil
}

// renderChainEntry produces a chain entry's output: value entries
// stringify, template entries render their body.
func renderChainEntry(ctx context.Context, d *Dict, p *Property) (any, error) {
	if p.Value != nil {
		v, err := d.Eval(ctx, p.Value)
		if err != nil {
			return nil, err
		}

		return stringify(v), nil
	}

	body := d.Body(p)
	if body == nil {
		return "", nil
	}

	return body.Render(ctx)
}

// eachofHelper renders the contents once per element of its argument,
// binding the element and its position to the declared parameters. Lists
// iterate in order with numeric indexes; maps iterate by sorted key with
// the key bound second; a plain value renders once; nothing renders for
// null or undefined.
func eachofHelper(_ context.Context, args ...any) (any, error) {
	var list any = Undefined{}
	if len(args) > 0 {
		list = args[0]
	}

	return Func(func(ctx context.Context, args ...any) (any, error) {
		d, ok := blocDict(args)
		if !ok {
			return nil, NewError("eachof must identify a bloc")
		}

		var sb strings.Builder

		each := func(el, key any) error {
			out, err := d.Contents().Bind(el, key).Render(ctx)
			if err != nil {
				return err
			}

			sb.WriteString(out)

			return nil
		}

		switch t := normalize(list).(type) {
		case nil, Undefined:

		case []any:
			for i, el := range t {
				if err := each(el, float64(i)); err != nil {
					return nil, err
				}
			}

		case map[string]any:
			for _, k := range sortedKeys(t) {
				if err := each(t[k], k); err != nil {
					return nil, err
				}
			}

		default:
			if err := each(t, float64(0)); err != nil {
				return nil, err
			}
		}

		return sb.String(), nil
	}), nil
}

// requireHelper loads and parses another template by path, resolved
// against the render's loader. Parse diagnostics come back as the
// helper's value so they surface in the output at the point of use; read
// failures are errors.
func requireHelper(ctx context.Context, args ...any) (any, error) {
	if len(args) < 1 {
		return nil, NewError("require needs a path")
	}

	path := stringify(args[0])

	ld := defaultLoader()
	if r, ok := renderFrom(ctx); ok && r.cfg.loader != nil {
		ld = r.cfg.loader
	}

	t, err := ld.Load(ctx, path)
	if err != nil {
		pe := &ParseError{}
		if errors.As(err, &pe) {
			return pe.Error(), nil
		}

		return nil, ErrLoadTemplate.Wrap(err).
			With(slog.String("path", path))
	}

	return t, nil
}

// exprHelper compiles and runs an expr-lang program against the flattened
// ambient scope, for computation beyond what tag expressions cover.
func exprHelper(ctx context.Context, args ...any) (any, error) {
	if len(args) < 1 {
		return nil, NewError("expr needs a source string")
	}

	source, ok := normalize(args[0]).(string)
	if !ok {
		return nil, NewError("expr source must be a string, not " +
			typeName(args[0]))
	}

	env := map[string]any{}
	if s, ok := ScopeFrom(ctx); ok {
		env = s.Flatten()
	}

	program, err := expr.Compile(source, expr.Env(env))
	if err != nil {
		return nil, ErrExprCompile.Wrap(err).
			With(slog.String("source", source))
	}

	out, err := vm.Run(program, env)
	if err != nil {
		return nil, ErrExprEvaluate.Wrap(err).
			With(slog.String("source", source))
	}

	return normalize(out), nil
}

// ---------------------------------------------------------------------------
// Process environment
// ---------------------------------------------------------------------------

// processEnv snapshots the environment once per process.
var processEnv = sync.OnceValue(func() []string {
	return os.Environ()
})

// flattenEnv converts "KEY=VALUE" entries to a map.
func flattenEnv(entries []string) map[string]any {
	result := make(map[string]any, len(entries))

	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if ok {
			result[key] = value
		}
	}

	return result
}

func envLookup(key string) string {
	v, _ := flattenEnv(processEnv())[key].(string)

	return v
}

// ---------------------------------------------------------------------------
// System information helpers
// ---------------------------------------------------------------------------

// getTarget returns the host target using GNU GCC/LLVM naming
// conventions.
func getTarget() map[string]any {
	t := getPlatform()
	osName, _ := t["os"].(string)
	arch, _ := t["arch"].(string)

	switch arch {
	case "386":
		arch = "i386"
	case "amd64":
		arch = "x86_64"
	case "arm":
		if v, ok := os.LookupEnv("GOARM"); ok {
			v, _, _ = strings.Cut(v, ",")
			switch v = strings.TrimSpace(v); v {
			case "5", "6", "7":
				arch = "armv" + v
			}
		}
	case "arm64":
		if osName != "darwin" {
			arch = "aarch64"
		}
	case "mipsle":
		arch = "mipsel"
	}

	return map[string]any{"os": osName, "arch": arch}
}

// getPlatform returns the host target using Go conventions.
//
// [Go conventions]:
// https://cs.opensource.google/go/go/+/master:src/cmd/dist/build.go
func getPlatform() map[string]any {
	var (
		o, a string
		ok   bool
	)

	if o, ok = os.LookupEnv("GOHOSTOS"); !ok {
		if o, ok = os.LookupEnv("GOOS"); !ok {
			o = runtime.GOOS
		}
	}

	if a, ok = os.LookupEnv("GOHOSTARCH"); !ok {
		if a, ok = os.LookupEnv("GOARCH"); !ok {
			a = runtime.GOARCH
		}
	}

	return map[string]any{"os": o, "arch": a}
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return ""
	}

	return hostname
}

func getUser() map[string]any {
	u, err := user.Current()
	if err != nil {
		return nil
	}

	return map[string]any{
		"username": u.Username,
		"uid":      u.Uid,
		"gid":      u.Gid,
		"name":     u.Name,
		"home":     u.HomeDir,
	}
}

func getShell() string {
	shell, ok := os.LookupEnv("SHELL")
	if ok {
		return shell
	}

	name, _ := getUser()["username"].(string)
	if name == "" {
		return ""
	}

	f, err := os.Open("/etc/passwd")
	if err != nil {
		return ""
	}

	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		e := strings.Split(s.Text(), ":")
		if len(e) > 6 && e[0] == name {
			return e[6]
		}
	}

	return ""
}

// ---------------------------------------------------------------------------
// Working directory
// ---------------------------------------------------------------------------

func getCwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return pathAbs(".")
	}

	return cwd
}

// ---------------------------------------------------------------------------
// Filesystem predicates
// ---------------------------------------------------------------------------

func fileExists(path string) bool {
	_, err := os.Stat(path)

	return !os.IsNotExist(err)
}

func fileIsDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.IsDir()
}

func fileIsRegular(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}

func fileIsSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}

	return info.Mode()&os.ModeSymlink != 0
}

// ---------------------------------------------------------------------------
// Path manipulation
// ---------------------------------------------------------------------------

func pathAbs(path string) string {
	p, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return p
}

func pathCat(elem ...string) string {
	return filepath.Join(elem...)
}

func pathRel(from, to string) string {
	p, err := filepath.Rel(pathAbs(from), pathAbs(to))
	if err != nil {
		return pathCat(from, to)
	}

	return p
}

// ---------------------------------------------------------------------------
// PATH-like string manipulation (mung)
// ---------------------------------------------------------------------------

func mungPrefix(key string, prefix ...string) string {
	return mung.Make(
		mung.WithSubjectItems(key),
		mung.WithDelim(string(os.PathListSeparator)),
		mung.WithPrefixItems(prefix...),
	).String()
}

func mungPrefixIf(
	key string,
	predicate func(string) bool,
	prefix ...string,
) string {
	return mung.Make(
		mung.WithSubjectItems(key),
		mung.WithDelim(string(os.PathListSeparator)),
		mung.WithPrefixItems(prefix...),
		mung.WithFilter(predicate),
	).String()
}
