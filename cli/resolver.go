package cli

import (
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
)

// resolveYAML is a [kong.ConfigurationLoader] that reads flag defaults from
// a YAML mapping.
//
// It can be used with [kong.Configuration] like this:
//
//	kong.Configuration(resolveYAML, "/path/to/config.yaml")
//
// The YAML document is a flat mapping from flag name to value:
//   - Flag names may be spelled with hyphens (log-level) or underscores
//     (log_level)
//   - Strings, booleans, and numbers use their plain YAML forms
//   - Sequences populate repeatable flags
//
// Example config file:
//
//	log-level: debug
//	log-format: text
//	log-pretty: true
//
// This configuration will be applied to Kong flags:
//
//	--log-level=debug
//	--log-format=text
//	--log-pretty=true
//
// Command-line flags override config file values.
func resolveYAML(r io.Reader) (kong.Resolver, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}

	err = yaml.Unmarshal(data, &values)
	if err != nil {
		// Malformed config: resolve nothing.
		return config{}, nil
	}

	cfg := make(config, len(values))
	for key, value := range values {
		cfg[key] = flagValue(value)
	}

	return cfg, nil
}

// config implements [kong.Resolver] for YAML configs.
type config map[string]any

// Validate implements [kong.Resolver].
func (r config) Validate(*kong.Application) error {
	// The config was already decoded successfully.
	return nil
}

// Resolve implements [kong.Resolver].
func (r config) Resolve(
	_ *kong.Context,
	_ *kong.Path,
	flag *kong.Flag,
) (any, error) {
	// Kong flags use hyphens (e.g., "log-level") but config keys may use
	// underscores. Try both forms.
	if value, ok := r[flag.Name]; ok {
		return value, nil
	}

	if value, ok := r[strings.ReplaceAll(flag.Name, "-", "_")]; ok {
		return value, nil
	}

	// Not found: let Kong use defaults.
	return nil, nil
}

// flagValue converts a decoded YAML value into a form Kong can apply to a
// flag. Kong parses numbers from strings.
func flagValue(v any) any {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)

	case uint64:
		return strconv.FormatUint(n, 10)

	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)

	default:
		return v
	}
}
