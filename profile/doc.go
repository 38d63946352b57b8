// Package profile provides optional runtime profiling for the bloc
// command.
//
// # Overview
//
// This package integrates [github.com/pkg/profile] to provide runtime
// profiling with conditional compilation support. Profiling is optional and
// must be enabled at build time using the "pprof" build tag.
//
// When built with profiling disabled (default), all operations are no-ops
// with zero runtime overhead.
//
// # Available Profiling Modes
//
// The following profiling modes are supported when built with the pprof tag:
//
//   - allocs:    Memory allocation profiling (all allocations)
//   - block:     Block (synchronization) profiling
//   - clock:     Wall-clock profiling
//   - cpu:       CPU profiling
//   - goroutine: Goroutine profiling
//   - heap:      Heap memory profiling (live allocations)
//   - mem:       General memory profiling
//   - mutex:     Mutex contention profiling
//   - thread:    Thread creation profiling
//   - trace:     Execution trace profiling
//
// Use [Modes] to retrieve the list of supported modes programmatically.
//
// # Usage
//
// The profiler is configured with a [Config] and started with
// [Config.Start]:
//
//	var cfg profile.Config = func() (string, string, bool) {
//	    return "cpu", "/tmp/profiles", true
//	}
//	ctrl := cfg.Start()
//	defer ctrl.Stop()
//
// Profile files are written to the configured directory with names matching
// the profiling mode (for example, cpu.pprof or mem.pprof).
//
// # Command-Line Usage
//
// The bloc command exposes profiling through flags when built with the
// pprof tag:
//
//	# Profile template rendering (writes to the default cache directory)
//	bloc --pprof-mode cpu render site/index.bloc
//
//	# Heap profile with custom output directory
//	bloc --pprof-mode heap --pprof-dir ./profiles render big.bloc
//
// The default output directory is:
//
//	$XDG_CACHE_HOME/bloc/pprof   (Linux/Unix)
//	~/Library/Caches/bloc/pprof  (macOS)
//	%LocalAppData%\bloc\pprof    (Windows)
//
// # Analyzing Profile Data
//
// Use the go tool pprof command to analyze profile data:
//
//	# Analyze a CPU profile with the original binary for symbols
//	go tool pprof ./bloc /tmp/profiles/cpu.pprof
//
//	# Open the web UI with flame graphs
//	go tool pprof -http=: /tmp/profiles/cpu.pprof
//
//	# Compare two profiles
//	go tool pprof -base=old.pprof new.pprof
//
// # Performance Overhead
//
//   - CPU profiling: ~5% overhead
//   - Heap profiling: minimal overhead (sampled)
//   - Block/mutex profiling: can add significant overhead at high rates
//   - Trace profiling: high overhead, use for short durations only
//
// Adjust sampling rates using [runtime.SetBlockProfileRate],
// [runtime.SetMutexProfileFraction], and [runtime.MemProfileRate].
package profile

// Tag is the build tag required to enable pprof profiling.
const Tag = `pprof`
