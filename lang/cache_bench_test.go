package lang

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// benchSource generates a document of n lines, each mixing literal text
// with one inline expression bloc.
func benchSource(n int) string {
	var sb strings.Builder
	for i := range n {
		fmt.Fprintf(&sb, "item %d: [[%d * 2]]\n", i, i)
	}

	return sb.String()
}

// BenchmarkParseString_Cached measures repeated parses of identical
// content, which cost one parse plus a cache lookup.
func BenchmarkParseString_Cached(b *testing.B) {
	source := benchSource(50)

	ClearCache()

	b.ResetTimer()
	for range b.N {
		if _, err := ParseString(context.Background(), source); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParseString_Uncached measures the full parse path. A named
// parse skips the shared cache.
func BenchmarkParseString_Uncached(b *testing.B) {
	source := benchSource(50)

	b.ResetTimer()
	for range b.N {
		_, err := ParseString(
			context.Background(), source, WithFileName("bench.bloc"),
		)
		if err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParseReader measures ParseReader across input sizes.
func BenchmarkParseReader(b *testing.B) {
	sizes := []struct {
		name  string
		count int
	}{
		{"small", 10},
		{"medium", 200},
		{"large", 2000},
	}

	for _, size := range sizes {
		source := benchSource(size.count)

		b.Run(size.name, func(b *testing.B) {
			b.ResetTimer()
			for range b.N {
				_, err := ParseReader(
					context.Background(), strings.NewReader(source),
				)
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkLoader_Load measures cached template loading by path.
func BenchmarkLoader_Load(b *testing.B) {
	dir := b.TempDir()

	path := filepath.Join(dir, "inc.bloc")
	if err := os.WriteFile(path, []byte(benchSource(20)), 0o644); err != nil {
		b.Fatal(err)
	}

	loader := NewLoader(dir)
	ctx := context.Background()

	if _, err := loader.Load(ctx, "inc.bloc"); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for range b.N {
		if _, err := loader.Load(ctx, "inc.bloc"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFormatSource measures canonical formatting across input sizes.
func BenchmarkFormatSource(b *testing.B) {
	sizes := []struct {
		name  string
		count int
	}{
		{"small", 10},
		{"medium", 100},
		{"large", 1000},
	}

	for _, size := range sizes {
		source := benchSource(size.count)

		b.Run(size.name, func(b *testing.B) {
			b.ResetTimer()
			for range b.N {
				if _, err := FormatSource(source); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkToMap measures tree-to-map conversion across input sizes.
func BenchmarkToMap(b *testing.B) {
	sizes := []struct {
		name  string
		count int
	}{
		{"small", 10},
		{"medium", 100},
		{"large", 1000},
	}

	for _, size := range sizes {
		source := benchSource(size.count)

		b.Run(size.name, func(b *testing.B) {
			tmpl, err := ParseString(
				context.Background(), source, WithFileName("bench.bloc"),
			)
			if err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			for range b.N {
				_ = tmpl.ToMap()
			}
		})
	}
}

// BenchmarkMarshalJSON measures the JSON structural dump.
func BenchmarkMarshalJSON(b *testing.B) {
	tmpl, err := ParseString(
		context.Background(), benchSource(100), WithFileName("bench.bloc"),
	)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for range b.N {
		if _, err := json.Marshal(tmpl); err != nil {
			b.Fatal(err)
		}
	}
}
