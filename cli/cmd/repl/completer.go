package repl

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/expr-lang/expr/builtin"
	"github.com/sahilm/fuzzy"

	"github.com/ardnew/bloc/lang"
)

// ctrlCommands are the available control-mode commands.
var ctrlCommands = []string{"help", "load", "set", "vars", "clear", "edit", "quit"}

// isWordBoundary returns true if the rune is a word delimiter for completion
// purposes. This includes whitespace, the member-access dot, and expression
// operator/punctuation characters. Hyphens are intentionally excluded because
// context keys may contain them (e.g., log-level).
func isWordBoundary(r rune) bool {
	switch r {
	case '.', ' ', '\t',
		'(', ')', '[', ']',
		'+', '*', '/', '%',
		'<', '>', '=', '!',
		'&', '|', ',', '?', ':', ';':
		return true
	}

	return false
}

// wordBounds returns the current word at the cursor position and its byte
// boundaries within input. Words are delimited by whitespace, dots, and
// expression operator/punctuation characters.
// Returns an empty word when the cursor sits on a boundary (after a space,
// between dots, start of line, etc.).
func wordBounds(input string, cursor int) (word string, start, end int) {
	if cursor > len(input) {
		cursor = len(input)
	}

	// Walk backward from cursor to find word start.
	start = cursor

	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(input[:start])
		if isWordBoundary(r) {
			break
		}

		start -= size
	}

	// Walk forward from cursor to find word end.
	end = cursor

	for end < len(input) {
		r, size := utf8.DecodeRuneInString(input[end:])
		if isWordBoundary(r) {
			break
		}

		end += size
	}

	word = input[start:end]

	return word, start, end
}

// parentPath returns the dot-separated prefix path leading up to the current
// word, considering only the contiguous member-access chain. For input
// "x + server.http.ho" with the word "ho", the parent path is "server.http".
// Returns "" for top-level words.
func parentPath(input string, wordStart int) string {
	prefix := input[:wordStart]
	prefix = strings.TrimRight(prefix, ".")

	if prefix == "" {
		return ""
	}

	// Walk backward from the end of the trimmed prefix. Collect characters
	// that are dots or valid identifier characters. Stop at the first
	// non-dot word boundary.
	end := len(prefix)
	pos := end

	for pos > 0 {
		r, size := utf8.DecodeLastRuneInString(prefix[:pos])
		if r == '.' {
			pos -= size

			continue
		}

		if isWordBoundary(r) {
			break
		}

		pos -= size
	}

	result := strings.TrimSpace(prefix[pos:end])
	if result == "" {
		return ""
	}

	return result
}

// inTag reports whether the cursor sits inside an unterminated bloc tag.
// Literal text outside tags never completes.
func inTag(input string, cursor int) bool {
	if cursor > len(input) {
		cursor = len(input)
	}

	open := strings.LastIndex(input[:cursor], "[[")
	if open == -1 {
		return false
	}

	return strings.LastIndex(input[:cursor], "]]") < open
}

// childCandidates returns the names that are valid completions for the given
// parent path. For an empty parent, returns all context keys, built-in helper
// roots, and expression builtins. For a member-access chain, returns the keys
// of the nested context mapping, or the members of the built-in helper
// namespace.
func childCandidates(sess *session, parent string) []string {
	if parent == "" {
		names := make([]string, 0, len(sess.vars))
		for name := range sess.vars {
			names = append(names, name)
		}

		slices.Sort(names)

		names = append(names, lang.BuiltinKeys()...)
		names = append(names, ExprBuiltinNames()...)

		return names
	}

	// Resolve the parent path segment by segment through the context.
	segments := strings.Split(parent, ".")

	if v, ok := sess.vars[segments[0]]; ok {
		for _, seg := range segments[1:] {
			m, ok := v.(map[string]any)
			if !ok {
				v = nil

				break
			}

			v = m[seg]
		}

		if keys := childKeys(v); keys != nil {
			return keys
		}
	}

	// Not found in the context: try the built-in helpers.
	return lang.BuiltinLookup(parent)
}

// childKeys extracts the sorted member names of a context mapping.
func childKeys(v any) []string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}

	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}

// computeMatches calculates the fuzzy match results for the word at the
// cursor. It returns the matches (ranked best-first), the candidate list, and
// the word boundaries. In template mode, completion only applies inside an
// open tag. When the current word is empty at the top level, it returns nil
// matches. When the word is empty after a dot (member access), it returns all
// children as matches.
func (m model) computeMatches() (
	matches fuzzy.Matches,
	candidates []string,
	wordStart, wordEnd int,
) {
	input := m.input.Value()
	cursor := m.input.Position()

	word, ws, we := wordBounds(input, cursor)
	wordStart, wordEnd = ws, we

	if m.mode == modeCtrl {
		if word == "" {
			return nil, nil, wordStart, wordEnd
		}

		candidates = ctrlCommands
	} else {
		if !inTag(input, cursor) {
			return nil, nil, wordStart, wordEnd
		}

		parent := parentPath(input, wordStart)
		candidates = childCandidates(m.sess, parent)

		// When the word is empty at the top level, don't show completions
		// (allows the hint text to be visible). After a dot, show all children
		// immediately so the user can browse the available members.
		if word == "" {
			if parent == "" || len(candidates) == 0 {
				return nil, nil, wordStart, wordEnd
			}

			// Return all candidates as unfiltered matches.
			matches = make(fuzzy.Matches, len(candidates))
			for i, c := range candidates {
				matches[i] = fuzzy.Match{Str: c, Index: i}
			}

			return matches, candidates, wordStart, wordEnd
		}
	}

	if len(candidates) == 0 {
		return nil, nil, wordStart, wordEnd
	}

	matches = fuzzy.Find(word, candidates)

	return matches, candidates, wordStart, wordEnd
}

// renderCandidateBar builds the single-line completion bar, ellipsized to fit
// within the given terminal width. Each candidate is rendered with its matched
// characters highlighted. The selected candidate (when tabbing) uses the
// selected style.
func renderCandidateBar(
	matches fuzzy.Matches,
	suggIdx int,
	tabActive bool,
	width int,
) string {
	if len(matches) == 0 || width <= 0 {
		return ""
	}

	const sep = "  "

	sepWidth := lipgloss.Width(sep)
	ellipsis := hintStyle.Render("...")
	ellipsisWidth := lipgloss.Width(ellipsis)

	var b strings.Builder

	used := 0

	for i, match := range matches {
		selected := tabActive && i == suggIdx
		rendered := renderCandidate(match, selected)
		candidateWidth := lipgloss.Width(rendered)

		entryWidth := candidateWidth
		if i > 0 {
			entryWidth += sepWidth
		}

		// Check if adding this candidate would exceed width.
		if used+entryWidth+ellipsisWidth > width && i > 0 {
			b.WriteString(sep)
			b.WriteString(ellipsis)

			break
		}

		if i > 0 {
			b.WriteString(sep)
		}

		b.WriteString(rendered)

		used += entryWidth

		// If this is the last candidate, no need to reserve ellipsis space.
		if i == len(matches)-1 {
			break
		}
	}

	return b.String()
}

// renderCandidate renders a single candidate with matched characters
// highlighted. Functions are displayed with a "()" suffix.
func renderCandidate(match fuzzy.Match, selected bool) string {
	baseStyle := suggestionStyle
	highlightStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("4")).
		Bold(true)

	if selected {
		baseStyle = selectedStyle
		highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("4")).
			Bold(true)
	}

	matchSet := make(map[int]bool, len(match.MatchedIndexes))
	for _, idx := range match.MatchedIndexes {
		matchSet[idx] = true
	}

	var b strings.Builder

	for i, r := range match.Str {
		ch := string(r)
		if matchSet[i] {
			b.WriteString(highlightStyle.Render(ch))
		} else {
			b.WriteString(baseStyle.Render(ch))
		}
	}

	// Add "()" suffix for functions (not applied to actual completion)
	if isFunction(match.Str) {
		b.WriteString(baseStyle.Render("()"))
	}

	return b.String()
}

// previewValue renders a short single-line preview of a context value for
// the vars listing.
func previewValue(v any) string {
	const limit = 40

	switch t := v.(type) {
	case nil:
		return "null"

	case string:
		s := strconv.Quote(t)
		if len(s) > limit {
			return s[:limit-3] + "..."
		}

		return s

	case map[string]any:
		return fmt.Sprintf("{ %d keys }", len(t))

	case []any:
		return fmt.Sprintf("[ %d items ]", len(t))

	default:
		s := fmt.Sprint(t)
		if len(s) > limit {
			return s[:limit-3] + "..."
		}

		return s
	}
}

// isFunction checks if a name refers to a function that should display with
// "()". This includes expression builtins and callable built-in helpers (not
// simple values or namespaces).
func isFunction(name string) bool {
	if _, ok := builtin.Index[name]; ok {
		return true
	}

	v, ok := lang.BuiltinValue(name)
	if !ok || v == nil {
		return false
	}

	return reflect.TypeOf(v).Kind() == reflect.Func
}
