package lang

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
)

// Awaitable is an asynchronous value. The evaluator awaits at every
// evaluation position (identifiers, member and index bases, call targets
// and results, operator operands), so template data may freely mix plain
// and pending values without changing rendered output.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

// Callable is a value invocable from a template, either by an explicit
// call expression or as a bloc's identifying value, in which case it
// receives the ambient scope and the bloc dictionary as its arguments.
type Callable interface {
	Call(ctx context.Context, args ...any) (any, error)
}

// Func adapts a plain function to the Callable interface.
type Func func(ctx context.Context, args ...any) (any, error)

// Call implements Callable.
func (f Func) Call(ctx context.Context, args ...any) (any, error) {
	return f(ctx, args...)
}

// deferred is a lazily-evaluated awaitable. The function runs at most
// once, on first await, and its result is memoized.
type deferred struct {
	once sync.Once
	fn   func(ctx context.Context) (any, error)
	val  any
	err  error
}

// Defer wraps fn as an Awaitable evaluated on first use.
func Defer(fn func(ctx context.Context) (any, error)) Awaitable {
	return &deferred{fn: fn}
}

func (d *deferred) Await(ctx context.Context) (any, error) {
	d.once.Do(func() { d.val, d.err = d.fn(ctx) })

	return d.val, d.err
}

// task is an eagerly-started awaitable backed by a goroutine.
type task struct {
	done chan struct{}
	val  any
	err  error
}

// Go starts fn immediately in its own goroutine and returns an Awaitable
// that joins it.
func Go(fn func() (any, error)) Awaitable {
	t := &task{done: make(chan struct{})}

	go func() {
		defer close(t.done)

		t.val, t.err = fn()
	}()

	return t
}

func (t *task) Await(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.val, t.err

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// await resolves v to a concrete, canonical value, unwrapping nested
// awaitables.
func await(ctx context.Context, v any) (any, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a, ok := v.(Awaitable)
		if !ok {
			return normalize(v), nil
		}

		next, err := a.Await(ctx)
		if err != nil {
			return nil, err
		}

		v = next
	}
}

// normalize converts host-provided values to the evaluator's canonical
// forms: every numeric type becomes float64, arbitrary slices become
// []any, and string-keyed maps become map[string]any. Conversion is
// shallow; nested values are normalized when accessed.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, Undefined, bool, float64, string,
		[]any, map[string]any,
		*Dict, *Contents, *Template, *Fragment:
		return v

	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	}

	switch v.(type) {
	case Callable, Awaitable:
		return v
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}

		return out

	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			for _, k := range rv.MapKeys() {
				out[k.String()] = rv.MapIndex(k).Interface()
			}

			return out
		}
	}

	return v
}

// isNullish reports whether v is null or undefined.
func isNullish(v any) bool {
	if v == nil {
		return true
	}

	_, ok := v.(Undefined)

	return ok
}

// truthy implements boolean coercion: false, null, undefined, zero, NaN,
// and the empty string are falsy. Everything else, including empty
// collections, is truthy.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case Undefined:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	}

	return true
}

// stringify renders a concrete value as template output. Missing values
// and callables produce nothing; arrays join their elements with commas;
// maps print sorted key-value pairs.
func stringify(v any) string {
	switch t := normalize(v).(type) {
	case nil, Undefined:
		return ""

	case string:
		return t

	case bool:
		if t {
			return "true"
		}

		return "false"

	case float64:
		return formatNumber(t)

	case []any:
		parts := make([]string, len(t))
		for i, el := range t {
			parts[i] = stringify(el)
		}

		return strings.Join(parts, ",")

	case map[string]any:
		keys := sortedKeys(t)

		parts := make([]string, 0, len(t))
		for _, k := range keys {
			parts = append(parts, k+": "+stringify(t[k]))
		}

		return "{" + strings.Join(parts, ", ") + "}"

	case *Dict:
		return t.String()

	case *Template, *Fragment, *Contents:
		return ""

	default:
		if _, ok := t.(Callable); ok {
			return ""
		}

		if reflect.ValueOf(t).Kind() == reflect.Func {
			return ""
		}

		return fmt.Sprint(t)
	}
}

// typeName names a value's language-level type for diagnostics.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case Undefined:
		return "undefined"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case *Dict:
		return "bloc"
	case *Template, *Fragment:
		return "template"
	case *Contents:
		return "contents"
	}

	if _, ok := v.(Callable); ok {
		return "function"
	}

	if reflect.ValueOf(v).Kind() == reflect.Func {
		return "function"
	}

	return fmt.Sprintf("%T", v)
}

// equalValues implements the == operator. Null and undefined equal each
// other and nothing else; numbers, strings, and booleans compare by value
// within their own type; arrays and maps compare structurally; remaining
// reference values compare by identity. Values of differing types are
// never equal.
func equalValues(a, b any) bool {
	if isNullish(a) || isNullish(b) {
		return isNullish(a) && isNullish(b)
	}

	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)

		return ok && x == y

	case string:
		y, ok := b.(string)

		return ok && x == y

	case bool:
		y, ok := b.(bool)

		return ok && x == y

	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}

		for i := range x {
			if !equalValues(normalize(x[i]), normalize(y[i])) {
				return false
			}
		}

		return true

	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}

		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !equalValues(normalize(xv), normalize(yv)) {
				return false
			}
		}

		return true

	case *Dict:
		y, ok := b.(*Dict)

		return ok && x == y

	case *Template:
		y, ok := b.(*Template)

		return ok && x == y

	case *Fragment:
		y, ok := b.(*Fragment)

		return ok && x == y

	case *Contents:
		y, ok := b.(*Contents)

		return ok && x == y
	}

	return false
}

// compareValues implements the relational operators. Both operands must
// be numbers, or both strings.
func compareValues(op string, a, b any) (bool, error) {
	if x, ok := a.(float64); ok {
		if y, ok := b.(float64); ok {
			switch op {
			case "<":
				return x < y, nil
			case "<=":
				return x <= y, nil
			case ">":
				return x > y, nil
			case ">=":
				return x >= y, nil
			}
		}
	}

	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			switch op {
			case "<":
				return x < y, nil
			case "<=":
				return x <= y, nil
			case ">":
				return x > y, nil
			case ">=":
				return x >= y, nil
			}
		}
	}

	return false, fmt.Errorf("cannot compare %s with %s", typeName(a), typeName(b))
}

// arith implements the arithmetic operators. "+" concatenates when either
// operand is a string; otherwise both operands must be numbers.
func arith(op string, a, b any) (any, error) {
	if op == "+" {
		if s, ok := a.(string); ok {
			return s + stringify(b), nil
		}

		if s, ok := b.(string); ok {
			return stringify(a) + s, nil
		}
	}

	x, xok := a.(float64)
	y, yok := b.(float64)

	if !xok || !yok {
		return nil, fmt.Errorf(
			"invalid operands for %s: %s and %s", op, typeName(a), typeName(b),
		)
	}

	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		return x / y, nil
	case "%":
		return math.Mod(x, y), nil
	}

	return nil, fmt.Errorf("unknown operator %s", op)
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// reflectCall bridges a plain Go function into the template calling
// convention, so built-in helpers and host-provided functions need no
// adapter. A leading context.Context parameter is supplied by the
// evaluator; remaining parameters bind positionally, with numbers and
// strings converted where the target type allows.
func reflectCall(ctx context.Context, fn any, args []any) (any, error) {
	rv := reflect.ValueOf(fn)
	rt := rv.Type()

	in := make([]reflect.Value, 0, rt.NumIn())
	param := 0

	if rt.NumIn() > 0 && rt.In(0) == ctxType {
		in = append(in, reflect.ValueOf(ctx))
		param = 1
	}

	fixed := rt.NumIn()
	if rt.IsVariadic() {
		fixed--
	}

	ai := 0

	for ; param < fixed; param++ {
		v, err := convertArg(args, ai, rt.In(param))
		if err != nil {
			return nil, err
		}

		in = append(in, v)
		ai++
	}

	if rt.IsVariadic() {
		et := rt.In(rt.NumIn() - 1).Elem()

		for ; ai < len(args); ai++ {
			v, err := convertArg(args, ai, et)
			if err != nil {
				return nil, err
			}

			in = append(in, v)
		}
	} else if ai < len(args) {
		return nil, NewError("too many arguments")
	}

	return resultOf(rv.Call(in))
}

// convertArg adapts one settled argument to a parameter type. Missing and
// undefined arguments become the zero value.
func convertArg(args []any, i int, t reflect.Type) (reflect.Value, error) {
	if i >= len(args) {
		return reflect.Zero(t), nil
	}

	v := normalize(args[i])
	if isNullish(v) {
		return reflect.Zero(t), nil
	}

	if t.Kind() == reflect.String {
		return reflect.ValueOf(stringify(v)).Convert(t), nil
	}

	av := reflect.ValueOf(v)

	switch {
	case av.Type().AssignableTo(t):
		return av, nil

	case av.Type().ConvertibleTo(t) && t.Kind() != reflect.Interface:
		return av.Convert(t), nil
	}

	return reflect.Value{}, NewError(
		"cannot use " + typeName(v) + " as argument " + fmt.Sprint(i+1),
	)
}

// resultOf maps a reflected call's results to the (value, error) pair of
// the calling convention.
func resultOf(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil

	case 1:
		if out[0].Type().Implements(errType) {
			if err, ok := out[0].Interface().(error); ok {
				return nil, err
			}

			return nil, nil
		}

		return out[0].Interface(), nil
	}

	v := out[0].Interface()

	if err, ok := out[1].Interface().(error); ok && err != nil {
		return v, err
	}

	return v, nil
}
