// Package cli contains the command line interface for bloc.
//
// # Usage
//
// The render command is the default, so the simplest invocation reads a
// template from stdin and writes the rendered document to stdout:
//
//	echo 'Hello, [[who]]!' | bloc -D who=world
//
// Named source files render in order, each against the same data context:
//
//	bloc -s page.bloc -s footer.bloc --context vars.yaml
//
// The remaining commands operate on the same sources:
//
//	bloc check -s page.bloc --dump yaml
//	bloc fmt -s page.bloc -w
//	bloc repl --context vars.yaml
//	bloc init
//
// # Configuration
//
// Flag defaults are resolved from a YAML mapping at
// ~/.config/bloc/config.yaml (and, when present, a JSON variant at
// config.json). Keys are flag names, hyphenated or underscored:
//
//	log-level: debug
//	log-format: text
//
// Command-line flags override config file values. The init command writes
// a config.yaml populated from the current flag values.
//
// # Logging Options
//
//   - --log-level: Set minimum log level (trace, debug, info, warn, error)
//   - --log-format: Set log output format (text, json)
//   - --log-time-layout: Set timestamp format (kitchen, RFC3339, ...)
//   - --log-caller: Include caller information in log output
//   - --log-pretty: Colorize terminal output
//
// Logs are written to stderr so rendered output on stdout stays clean.
//
// # Profiling Options
//
// Profiling is only available when built with the pprof build tag:
//
//	go build -tags pprof .
//
//   - --pprof-mode: Enable profiling (allocs, block, clock, cpu, goroutine,
//     heap, mem, mutex, thread, trace)
//   - --pprof-dir: Set profile output directory (default:
//     ~/.cache/bloc/pprof)
//
// # Examples
//
//	# Debug logging with CPU profiling
//	bloc --log-level=debug --pprof-mode=cpu -s page.bloc
//
//	# Validate a template and dump its structure
//	bloc check -s page.bloc --dump json
package cli
