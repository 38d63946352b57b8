package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/ardnew/bloc/lang"
)

// Check parses template sources and reports diagnostics without rendering.
//
// Parse errors print to stderr with the offending source line and a caret
// marking the position. When every source parses, --dump prints each parsed
// structure to stdout.
type Check struct {
	Dump string `help:"Print the parsed structure on success" name:"dump" enum:",json,yaml" default:""`
}

// Run executes the check command.
func (c *Check) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) {
		cancel(*err)
	}(&err)

	sources := sourcesOrStdin(ctx)
	failed := 0

	for _, src := range sources {
		tmpl, err := c.parseSource(ctx, src)
		if err != nil {
			failed++

			pe := &lang.ParseError{}
			if errors.As(err, &pe) {
				fmt.Fprintln(os.Stderr, pe.Detail())
			} else {
				fmt.Fprintln(os.Stderr, err)
			}

			continue
		}

		if c.Dump == "" {
			continue
		}

		if err := c.dump(tmpl, len(sources) > 1); err != nil {
			return err
		}
	}

	if failed > 0 {
		return ErrCheckFailed.With(
			slog.Int("failed", failed),
			slog.Int("total", len(sources)),
		)
	}

	return nil
}

func (c *Check) parseSource(
	ctx context.Context,
	src Source,
) (*lang.Template, error) {
	data, err := src.Read()
	if err != nil {
		return nil, ErrReadSource.
			With(slog.String("source", src.Name)).
			Wrap(err)
	}

	return lang.ParseString(ctx, string(data), lang.WithFileName(src.Name))
}

// dump prints the parsed structure of one template to stdout.
func (c *Check) dump(tmpl *lang.Template, multi bool) error {
	switch c.Dump {
	case "json":
		data, err := json.MarshalIndent(tmpl, "", "  ")
		if err != nil {
			return ErrJSONMarshal.Wrap(err)
		}

		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(tmpl.ToMap())
		if err != nil {
			return ErrYAMLMarshal.Wrap(err)
		}

		// Separate documents when dumping multiple sources.
		if multi {
			fmt.Println("---")
		}

		fmt.Print(string(data))
	}

	return nil
}
