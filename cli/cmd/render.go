package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/bloc/lang"
	"github.com/ardnew/bloc/log"
)

// Render renders template sources against a data context.
//
// The context is assembled by merging each --context file in order and then
// applying --set overrides. Sources render concurrently, but results are
// delivered in the order the sources were named.
type Render struct {
	Context  []string          `help:"Context file(s) merged in order (YAML or JSON)" name:"context"   short:"c" type:"existingfile"`
	Set      map[string]string `help:"Set a context variable (key=value)"             name:"set"       short:"D"`
	Output   string            `help:"Write output to a file or directory"            name:"output"    short:"o" type:"path"`
	Root     string            `help:"Root directory for required templates"          name:"root"                type:"existingdir"`
	MaxDepth int               `help:"Maximum render depth (0 = engine default)"      name:"max-depth"`
}

// Run executes the render command.
func (r *Render) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) {
		cancel(*err)
	}(&err)

	vars, err := loadContext(r.Context, r.Set)
	if err != nil {
		return err
	}

	sources := sourcesOrStdin(ctx)
	results := make([]string, len(sources))

	grp, grpCtx := errgroup.WithContext(ctx)

	for i, src := range sources {
		grp.Go(func() error {
			out, err := r.renderSource(grpCtx, src, vars)
			if err != nil {
				return err
			}

			results[i] = out

			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return err
	}

	return r.deliver(sources, results)
}

// renderSource parses and renders a single source against vars.
func (r *Render) renderSource(
	ctx context.Context,
	src Source,
	vars map[string]any,
) (string, error) {
	data, err := src.Read()
	if err != nil {
		return "", ErrReadSource.
			With(slog.String("source", src.Name)).
			Wrap(err)
	}

	tmpl, err := lang.ParseString(ctx, string(data), lang.WithFileName(src.Name))
	if err != nil {
		return "", lang.WrapError(err).
			With(slog.String("command", "render"))
	}

	root := r.Root
	if root == "" {
		root = src.Dir()
	}

	opts := []lang.RenderOption{
		lang.WithLoader(lang.NewLoader(root)),
		lang.WithRenderLogger(log.Default()),
	}
	if r.MaxDepth > 0 {
		opts = append(opts, lang.WithMaxDepth(r.MaxDepth))
	}

	out, err := tmpl.Render(ctx, vars, opts...)
	if err != nil {
		return "", lang.WrapError(err).
			With(
				slog.String("command", "render"),
				slog.String("source", src.Name),
			)
	}

	return out, nil
}

// deliver writes the rendered results. With no --output they are printed to
// stdout in source order. When --output names a directory, each result is
// written to a file under it named after its source; otherwise all results
// are concatenated into the named file.
func (r *Render) deliver(sources Sources, results []string) error {
	if r.Output == "" {
		for _, out := range results {
			if _, err := os.Stdout.WriteString(out); err != nil {
				return ErrWriteOutput.Wrap(err)
			}
		}

		return nil
	}

	if info, err := os.Stat(r.Output); err == nil && info.IsDir() {
		for i, src := range sources {
			path := filepath.Join(r.Output, outputName(src))
			if err := os.WriteFile(path, []byte(results[i]), 0o644); err != nil {
				return ErrWriteOutput.
					With(slog.String("path", path)).
					Wrap(err)
			}
		}

		return nil
	}

	if err := os.WriteFile(r.Output, []byte(strings.Join(results, "")), 0o644); err != nil {
		return ErrWriteOutput.
			With(slog.String("path", r.Output)).
			Wrap(err)
	}

	return nil
}

// outputName derives the file name a source renders to inside an output
// directory. The template extension drops so "site.html.bloc" becomes
// "site.html". Stdin renders to "stdin".
func outputName(src Source) string {
	if src.Stdin() {
		return "stdin"
	}

	name := filepath.Base(src.Name)
	if trimmed := strings.TrimSuffix(name, ".bloc"); trimmed != "" {
		name = trimmed
	}

	return name
}
