package repl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/ardnew/bloc/lang"
	"github.com/ardnew/bloc/log"
)

const (
	defaultEditor = "vi"

	// editFileName labels the draft in parse diagnostics.
	editFileName = "draft"
)

// editDraftCommand implements [tea.ExecCommand] for the full draft
// edit-parse-retry loop. It writes the current draft template to a temp
// file, opens the user's editor, and re-parses the result. On parse error
// the user is prompted to re-edit; declining abandons the session.
type editDraftCommand struct {
	draft   string
	ctxFunc func() context.Context
	logger  log.Logger

	// Populated on a successful edit. A nil template after Run means the
	// user cleared the file to cancel.
	newDraft string
	newTmpl  *lang.Template

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// SetStdin sets the stdin reader for the command.
func (c *editDraftCommand) SetStdin(r io.Reader) { c.stdin = r }

// SetStdout sets the stdout writer for the command.
func (c *editDraftCommand) SetStdout(w io.Writer) { c.stdout = w }

// SetStderr sets the stderr writer for the command.
func (c *editDraftCommand) SetStderr(w io.Writer) { c.stderr = w }

// Run executes the edit-parse-retry loop. It writes the draft, opens the
// editor, parses the result, and prompts on error. If the user declines to
// re-edit, it returns [ErrEditDeclined].
func (c *editDraftCommand) Run() error {
	ctx := c.ctxFunc()

	content := c.draft

	// Create a single temp file for the entire loop.
	f, err := os.CreateTemp(os.TempDir(), "bloc-repl-*.bloc")
	if err != nil {
		return err
	}

	tmpPath := f.Name()

	defer os.Remove(tmpPath)

	if err := f.Chmod(0o600); err != nil {
		f.Close()

		return err
	}

	f.Close()

	for {
		// Write current content to temp file.
		if err := os.WriteFile(tmpPath, []byte(content), 0o600); err != nil {
			return err
		}

		// Launch editor and read back the result.
		data, err := runEditor(ctx, c.stdin, c.stdout, c.stderr, tmpPath)
		if err != nil {
			return err
		}

		// Clearing the file cancels the edit.
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}

		source := string(data)

		tmpl, parseErr := lang.ParseString(
			ctx,
			source,
			lang.WithFileName(editFileName),
			lang.WithLogger(c.logger),
		)
		c.logger.TraceContext(
			ctx,
			"editor parse attempt",
			slog.Int("content_length", len(data)),
			slog.Bool("success", parseErr == nil),
		)

		if parseErr == nil {
			c.newDraft = source
			c.newTmpl = tmpl

			return nil
		}

		// Show error and prompt.
		pe := &lang.ParseError{}
		if errors.As(parseErr, &pe) {
			fmt.Fprintf(c.stderr, "\n%s\n", pe.Detail())
		} else {
			fmt.Fprintf(c.stderr, "\nParse error: %s\n", parseErr)
		}

		fmt.Fprintf(c.stdout, "Re-edit? [Y/n] ")

		scanner := bufio.NewScanner(c.stdin)
		if !scanner.Scan() {
			return ErrEditDeclined
		}

		response := strings.TrimSpace(strings.ToLower(scanner.Text()))
		if response == "n" || response == "no" {
			return ErrEditDeclined
		}

		// Keep the failed content for the next editor iteration.
		content = source
	}
}

// runEditor launches the user's editor on the given file path and returns
// the edited file content.
func runEditor(
	ctx context.Context,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	path string,
) ([]byte, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = defaultEditor
	}

	cmd := exec.CommandContext(ctx, editor, path)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return nil, err
	}

	return os.ReadFile(path)
}
