package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ardnew/bloc/lang"
)

// Fmt reprints template sources in canonical form.
//
// Formatting normalizes tag spelling and expression spacing while leaving
// literal text byte-for-byte intact. With -w each file is rewritten in
// place; otherwise formatted output prints to stdout. Stdin always prints
// to stdout.
type Fmt struct {
	Write bool `help:"Rewrite source files in place instead of printing" name:"write" short:"w"`
}

// Run executes the fmt command.
func (f *Fmt) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) {
		cancel(*err)
	}(&err)

	sources := sourcesOrStdin(ctx)

	for _, src := range sources {
		data, err := src.Read()
		if err != nil {
			return ErrReadSource.
				With(slog.String("source", src.Name)).
				Wrap(err)
		}

		formatted, err := lang.FormatSource(string(data))
		if err != nil {
			return lang.WrapError(err).
				With(
					slog.String("command", "fmt"),
					slog.String("source", src.Name),
				)
		}

		if f.Write && !src.Stdin() {
			if err := os.WriteFile(src.path, []byte(formatted), 0o644); err != nil {
				return ErrWriteOutput.
					With(slog.String("path", src.path)).
					Wrap(err)
			}

			continue
		}

		if _, err := os.Stdout.WriteString(formatted); err != nil {
			return ErrWriteOutput.Wrap(err)
		}
	}

	return nil
}
