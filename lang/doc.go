// Package lang parses and renders bloc templates: text documents whose
// [[ ... ]] tags hold expressions, open nested blocs, and attach named
// properties to them.
//
// # Tags
//
// The first character of a tag body selects its role:
//
//	[[ expr ]]        inline value, rendered in place
//	[[+name]]         open an explicit bloc, closed by [[-name]]
//	[[*name]]         open an implicit bloc, closed by the next tag
//	[[+:key]]         open an explicit template property on the bloc
//	[[*:key]]         open an implicit template property on the bloc
//	[[-name]]         close the matching open bloc
//	[[key: expr]]     define a value property on the enclosing bloc
//	[[-> a b]]        declare document or contents parameters
//	[[# comment #]]   annotation, never rendered
//
// Lines holding only structural tags and whitespace are swallowed: the
// tags take effect and the line leaves no trace in the output.
//
// # Expressions
//
// Tag expressions form a small dynamically-typed language: IEEE-754
// numbers, quoted strings, booleans, null, undefined, arrays, objects,
// member and index access, calls, arithmetic and comparison operators,
// short-circuiting && and ||, and a loosest-binding application pipe
// (x | f applies f to x). Binding from loosest to tightest:
//
//	|   ||   &&   == !=   < <= > >=   + -   * / %   ! - + (unary)   . [ (
//
// # Rendering
//
// Render walks the tree against a scope chain: built-in helpers at the
// bottom, host helpers above them, then the render variables, then one
// child frame per bloc contents. A bloc whose identifying expression
// evaluates to a callable invokes it with the ambient scope and the
// bloc's dictionary; template and fragment values render in place;
// anything else stringifies. Failures in template data never fail the
// render: each failing bloc renders its error text in place and the
// surrounding document is unaffected.
//
// # Helpers
//
//	let(v...)     bind contents parameters and render
//	if(cond)      render contents, or walk the else if / else chain
//	eachof(xs)    render contents once per element
//	require(p)    load and parse another template
//	expr(src)     run an expr-lang program against the ambient scope
//	env(name)     read a process environment variable
//
// plus system information (target, platform, hostname, user, shell,
// cwd) and the file, path, and mung namespaces.
//
// # Concurrency
//
// Values produced through Go or Defer are awaited at every evaluation
// position, so templates are transparent to asynchronous data. Parsed
// templates are immutable and safe for concurrent renders.
package lang
