package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ardnew/bloc/cli/cmd/repl"
	"github.com/ardnew/bloc/lang"
	"github.com/ardnew/bloc/log"
)

// Repl starts the interactive template playground.
//
// Entered lines render immediately against the session context; a draft
// template for multi-line work is kept per session and edited via $EDITOR.
type Repl struct {
	Context []string          `help:"Context file(s) merged in order (YAML or JSON)" name:"context" short:"c" type:"existingfile"`
	Set     map[string]string `help:"Set a context variable (key=value)"             name:"set"     short:"D"`
	Root    string            `help:"Root directory for required templates"          name:"root"              type:"existingdir"`
}

// Run executes the repl command.
func (r *Repl) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	vars, err := loadContext(r.Context, r.Set)
	if err != nil {
		return err
	}

	root := r.Root
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		} else {
			root = "."
		}
	}

	ktx := kongContextFrom(ctx)

	cacheDir, ok := ktx.Model.Vars()[CacheIdentifier]
	if !ok {
		panic("internal error: cache namespace undefined")
	}

	// Seed the draft template from the first named source. Stdin stays
	// attached to the terminal for the playground itself.
	var draft string

	if sources := sourcesFrom(ctx); len(sources) > 0 && !sources[0].Stdin() {
		data, err := sources[0].Read()
		if err != nil {
			return ErrReadSource.
				With(slog.String("source", sources[0].Name)).
				Wrap(err)
		}

		draft = string(data)
	}

	return repl.Run(ctx, repl.Options{
		Vars:     vars,
		Loader:   lang.NewLoader(root),
		Draft:    draft,
		CacheDir: cacheDir,
		Logger:   log.Default(),
	})
}
