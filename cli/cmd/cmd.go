package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
)

// contextKey is used to store a [kong.Context] value in [context.Context].
type contextKey struct{}

// WithContext returns a new context.Context containing the given kong.Context.
func WithContext(ctx context.Context, ktx *kong.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ktx)
}

func kongContextFrom(ctx context.Context) *kong.Context {
	ktx, ok := ctx.Value(contextKey{}).(*kong.Context)
	if !ok || ktx == nil {
		return nil
	}

	return ktx
}

type sourcesKey struct{}

// Source identifies a single template source named on the command line.
//
// Name is the path exactly as the user spelled it. It labels the source in
// diagnostics and parse errors. An empty path means the source is stdin.
type Source struct {
	Name string
	path string
}

// Sources is the ordered list of template sources for the invoked command.
type Sources []Source

// stdinName is the special source name for reading from stdin.
const stdinName = "-"

// Stdin reports whether the source reads from standard input.
func (s Source) Stdin() bool { return s.path == "" }

// Read returns the full content of the source.
func (s Source) Read() ([]byte, error) {
	if s.Stdin() {
		return io.ReadAll(os.Stdin)
	}

	return os.ReadFile(s.path)
}

// Dir returns the directory containing the source file, or the working
// directory for stdin.
func (s Source) Dir() string {
	if s.Stdin() {
		dir, err := os.Getwd()
		if err != nil {
			return "."
		}

		return dir
	}

	return filepath.Dir(s.path)
}

// WithSources returns a new context.Context carrying the template sources
// named on the command line.
//
// Duplicate files are dropped by comparing device/inode pairs after
// resolving symlinks, so the same file named twice (or reached through a
// symlink) is rendered once. Every occurrence of "-" collapses to a single
// stdin source placed last so it reads after all regular files.
func WithSources(ctx context.Context, names []string) context.Context {
	return context.WithValue(ctx, sourcesKey{}, resolveSources(names))
}

// sourcesFrom retrieves the Sources stored in ctx by WithSources.
// Returns nil if no sources were stored.
func sourcesFrom(ctx context.Context) Sources {
	s, _ := ctx.Value(sourcesKey{}).(Sources)

	return s
}

// sourcesOrStdin returns the sources stored in ctx, or a single stdin source
// if none were named.
func sourcesOrStdin(ctx context.Context) Sources {
	if s := sourcesFrom(ctx); len(s) > 0 {
		return s
	}

	return Sources{{Name: stdinName}}
}

// fileKey uniquely identifies a file by its device and inode numbers.
// This handles deduplication across symlinks, absolute/relative paths, and
// special device files.
type fileKey struct {
	dev uint64
	ino uint64
}

func resolveSources(names []string) Sources {
	if len(names) == 0 {
		return nil
	}

	srcs := make(Sources, 0, len(names))
	seen := make(map[fileKey]struct{})

	// Stdin may be included via "-" or as a named file (e.g. /dev/stdin).
	// Both spellings collapse to the same source.
	var (
		stdin    bool
		stdinKey fileKey
		stdinOK  bool
	)

	if info, err := os.Stdin.Stat(); err == nil {
		stdinKey, stdinOK = makeFileKey(info)
	}

	for _, name := range names {
		if name == stdinName {
			stdin = true

			continue
		}

		path, key, ok := resolvePath(name)
		if ok {
			if stdinOK && key == stdinKey {
				stdin = true

				continue
			}

			if _, dup := seen[key]; dup {
				continue
			}

			seen[key] = struct{}{}
		}

		// Unresolvable paths are kept so that reading them reports
		// the error to the user.
		srcs = append(srcs, Source{Name: name, path: path})
	}

	if stdin {
		srcs = append(srcs, Source{Name: stdinName})
	}

	return srcs
}

// resolvePath resolves name to an absolute path with symlinks evaluated and
// derives the file's identity key. If any step fails, it returns the most
// resolved form of the path together with ok false.
func resolvePath(name string) (path string, key fileKey, ok bool) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return name, key, false
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs, key, false
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return resolved, key, false
	}

	key, ok = makeFileKey(info)

	return resolved, key, ok
}

// makeFileKey creates a fileKey from os.FileInfo.
// Returns false if the underlying Sys() data is not of type *syscall.Stat_t.
func makeFileKey(info os.FileInfo) (key fileKey, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return key, false
	}

	return fileKey{dev: stat.Dev, ino: stat.Ino}, true
}
