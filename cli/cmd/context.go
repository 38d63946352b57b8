package cmd

import (
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"
)

// loadContext assembles the variable map used to render templates.
//
// Each file is parsed as a YAML mapping (JSON works too, being a YAML
// subset) and merged over the result of the files before it. Mappings merge
// recursively; any other kind of value replaces the previous one. The --set
// overrides apply last, with values parsed as YAML scalars so that numbers
// and booleans arrive typed.
func loadContext(files []string, sets map[string]string) (map[string]any, error) {
	vars := make(map[string]any)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, ErrLoadContext.
				With(slog.String("file", file)).
				Wrap(err)
		}

		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, ErrLoadContext.
				With(slog.String("file", file)).
				Wrap(err)
		}

		mergeValues(vars, doc)
	}

	for key, value := range sets {
		vars[key] = scalarValue(value)
	}

	return vars, nil
}

// mergeValues merges src into dst. Nested mappings merge key by key;
// every other value in src replaces the value in dst.
func mergeValues(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcOK := value.(map[string]any)
		dstMap, dstOK := dst[key].(map[string]any)

		if srcOK && dstOK {
			mergeValues(dstMap, srcMap)

			continue
		}

		dst[key] = value
	}
}

// scalarValue parses a --set value as a YAML scalar so that numbers,
// booleans, and null arrive typed. Values that do not parse are kept as
// literal strings.
func scalarValue(value string) any {
	var v any
	if err := yaml.Unmarshal([]byte(value), &v); err != nil {
		return value
	}

	return v
}
