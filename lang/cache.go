package lang

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/klauspost/readahead"
	"github.com/zeebo/xxh3"
)

// globalRegistry tracks parsed templates by source content hash, so
// repeated parses of identical content cost one parse. Parsed templates
// are immutable, making the shared results safe across goroutines.
var globalRegistry sync.Map

// state guards a single cached parse.
type state struct {
	once sync.Once
	t    *Template
	err  error
}

// parseStringCached parses source once per distinct content and returns
// the shared template thereafter.
func parseStringCached(ctx context.Context, source string) (*Template, error) {
	sourceKey := strconv.FormatUint(xxh3.HashString(source), 36)

	entry := new(state)

	value, _ := globalRegistry.LoadOrStore(sourceKey, entry)

	metadata, ok := value.(*state)
	if !ok {
		metadata = entry
	}

	metadata.once.Do(func() {
		metadata.t, metadata.err = parseDocument(ctx, source, parseConfig{})
	})

	return metadata.t, metadata.err
}

// ClearCache removes all cached parses. This is primarily useful for
// testing or when memory needs to be reclaimed.
func ClearCache() {
	globalRegistry = sync.Map{}
}

// ParseReader reads and parses a template document. Input drains through
// an asynchronous read-ahead buffer so data is pre-fetched while earlier
// chunks are consumed. Results for identical content are cached when no
// options are given.
func ParseReader(
	ctx context.Context,
	r io.Reader,
	opts ...ParseOption,
) (*Template, error) {
	ra := readahead.NewReader(r)
	defer ra.Close()

	data, err := io.ReadAll(ra)
	if err != nil {
		return nil, ErrReadInput.Wrap(err).
			With(slog.String("source", "reader"))
	}

	return ParseString(ctx, string(data), opts...)
}

// ParseFile reads and parses the template at path. The file name joins
// positional diagnostics.
func ParseFile(
	ctx context.Context,
	path string,
	opts ...ParseOption,
) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrReadInput.Wrap(err).
			With(slog.String("path", path))
	}

	defer f.Close()

	named := make([]ParseOption, 0, len(opts)+1)
	named = append(named, WithFileName(path))
	named = append(named, opts...)

	return ParseReader(ctx, f, named...)
}

// Loader resolves and caches the templates that require() names.
// Relative paths resolve against the loader root.
type Loader struct {
	root  string
	cache sync.Map // resolved path -> *state
}

// NewLoader returns a loader rooted at dir. An empty dir resolves
// against the process working directory.
func NewLoader(dir string) *Loader {
	return &Loader{root: dir}
}

// defaultLoader serves renders configured without one.
var defaultLoader = sync.OnceValue(func() *Loader {
	return NewLoader("")
})

// Load parses the template at path, caching by resolved location.
func (l *Loader) Load(ctx context.Context, path string) (*Template, error) {
	resolved := l.resolve(path)

	entry := new(state)

	value, _ := l.cache.LoadOrStore(resolved, entry)

	metadata, ok := value.(*state)
	if !ok {
		metadata = entry
	}

	metadata.once.Do(func() {
		metadata.t, metadata.err = ParseFile(ctx, resolved)
	})

	return metadata.t, metadata.err
}

func (l *Loader) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	root := l.root
	if root == "" {
		root = "."
	}

	return filepath.Join(root, path)
}
