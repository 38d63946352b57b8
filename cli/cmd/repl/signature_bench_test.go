package repl

import "testing"

// BenchmarkGetSignature_FlowHelper benchmarks canned flow-helper lookups.
func BenchmarkGetSignature_FlowHelper(b *testing.B) {
	functions := []string{"let", "if", "eachof", "require", "expr"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		funcName := functions[i%len(functions)]
		_, _ = getSignature(funcName)
	}
}

// BenchmarkGetSignature_ExprBuiltin benchmarks canned expr-lang builtin
// lookups.
func BenchmarkGetSignature_ExprBuiltin(b *testing.B) {
	functions := []string{"len", "join", "filter", "map", "upper", "lower"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		funcName := functions[i%len(functions)]
		_, _ = getSignature(funcName)
	}
}

// BenchmarkGetSignature_Builtin benchmarks the reflection path used for
// built-in helper signatures.
func BenchmarkGetSignature_Builtin(b *testing.B) {
	functions := []string{"file.exists", "path.cat", "path.rel", "mung.prefix"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		funcName := functions[i%len(functions)]
		_, _ = getSignature(funcName)
	}
}

// BenchmarkGetBuiltinSignature_SingleFunction benchmarks repeated reflection
// over the same helper.
func BenchmarkGetBuiltinSignature_SingleFunction(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = getBuiltinSignature("file.exists")
	}
}

// BenchmarkDetectFunctionCall benchmarks call detection on a representative
// input line.
func BenchmarkDetectFunctionCall(b *testing.B) {
	const input = "path.cat('/usr/local', env('HOME'), "

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = detectFunctionCall(input, len(input))
	}
}

// BenchmarkRenderSignatureHint benchmarks hint rendering with a highlighted
// parameter.
func BenchmarkRenderSignatureHint(b *testing.B) {
	sig, params := getSignature("mung.prefixif")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = renderSignatureHint(sig, params, 1)
	}
}
