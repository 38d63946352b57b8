package lang

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
)

// Predefined errors (sentinel values).
var (
	ErrNilTemplate  = NewError("nil template")
	ErrReadInput    = NewError("failed to read input")
	ErrLoadTemplate = NewError("failed to load template")
	ErrMaxDepth     = NewError("maximum render depth exceeded")
	ErrExprCompile  = NewError("expression compilation failed")
	ErrExprEvaluate = NewError("expression evaluation failed")
)

// Error represents an error with optional structured logging attributes.
// It implements both error and slog.LogValuer interfaces.
type Error struct {
	msg   string
	err   error       // Wrapped error (for errors.Unwrap)
	attrs []slog.Attr // Attributes for structured logging
}

// NewError creates a new Error with a message.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

// WrapError wraps a standard error into an Error.
func WrapError(err error) *Error {
	ee := &Error{}
	if errors.As(err, &ee) {
		return ee
	}

	return &Error{err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	// Build error message using the first available format,
	// depending on which fields are set:
	//
	//   1. "<msg>: <err>" // base and wrapped error both set
	//   2. "<msg>"        // wrapped error is nil
	//   3. "<err>"        // base error message is empty
	//   4. ""             // no fields are set
	part := make([]string, 0, 2)

	if e.msg != "" {
		part = append(part, e.msg)
	}

	if e.err != nil {
		part = append(part, e.err.Error())
	}

	return strings.Join(part, ": ")
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is a sentinel with the same base message.
func (e *Error) Is(target error) bool {
	t := &Error{}
	if !errors.As(target, &t) {
		return false
	}

	return e.msg == t.msg
}

// LogValue implements slog.LogValuer for rich structured logging.
func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.attrs)+2)

	if e.msg != "" {
		attrs = append(attrs, slog.String("error", e.msg))
	}

	if e.err != nil {
		attrs = append(attrs, slog.String("cause", e.err.Error()))
	}

	return slog.GroupValue(append(attrs, e.attrs...)...)
}

// Wrap creates a new Error wrapping another error.
func (e *Error) Wrap(err error) *Error {
	return &Error{
		msg:   e.msg,
		err:   err,
		attrs: e.attrs, // Share attrs
	}
}

// With adds attributes to the error for structured logging.
// This creates a new Error instance to maintain immutability.
func (e *Error) With(attrs ...slog.Attr) *Error {
	newAttrs := make([]slog.Attr, len(e.attrs)+len(attrs))
	copy(newAttrs, e.attrs)
	copy(newAttrs[len(e.attrs):], attrs)

	return &Error{
		msg:   e.msg,
		err:   e.err,
		attrs: newAttrs,
	}
}

// ParseError is a fatal, positional template parse error.
//
// Line and Column are 1-based. Offset is the byte offset into the source.
type ParseError struct {
	FileName string
	Line     int
	Column   int
	Offset   int
	Message  string
	Source   string // complete template source, for Detail
}

// newParseError creates a ParseError at the given position. The file name
// and source text are attached by the parser before the error is returned.
func newParseError(pos Position, msg string) *ParseError {
	return &ParseError{
		Line:    pos.Line,
		Column:  pos.Column,
		Offset:  pos.Offset,
		Message: msg,
	}
}

// Error implements the error interface. The format is
// "file:line:col: message", omitting the file when unnamed.
func (e *ParseError) Error() string {
	var sb strings.Builder

	if e.FileName != "" {
		sb.WriteString(e.FileName)
		sb.WriteByte(':')
	}

	sb.WriteString(strconv.Itoa(e.Line))
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(e.Column))
	sb.WriteString(": ")
	sb.WriteString(e.Message)

	return sb.String()
}

// LogValue implements slog.LogValuer for structured logging.
func (e *ParseError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("error", e.Message),
		slog.Int("line", e.Line),
		slog.Int("column", e.Column),
	}

	if e.FileName != "" {
		attrs = append(attrs, slog.String("file", e.FileName))
	}

	return slog.GroupValue(attrs...)
}

// Detail formats the error with source context: the offending line and a
// caret marking the column.
func (e *ParseError) Detail() string {
	var buf strings.Builder

	buf.WriteString(e.Error())

	lines := strings.Split(e.Source, "\n")
	if e.Line < 1 || e.Line > len(lines) {
		return buf.String()
	}

	line := lines[e.Line-1]

	buf.WriteByte('\n')
	buf.WriteString("  ")
	buf.WriteString(strconv.Itoa(e.Line))
	buf.WriteString(" | ")
	buf.WriteString(line)
	buf.WriteByte('\n')

	// +5 accounts for: 2 leading spaces + " | " (3 chars)
	lineNumWidth := len(strconv.Itoa(e.Line))
	padding := strings.Repeat(" ", lineNumWidth+5)

	if e.Column > 0 {
		padding += strings.Repeat(" ", e.Column-1)
	}

	buf.WriteString(padding + "^")

	return buf.String()
}
