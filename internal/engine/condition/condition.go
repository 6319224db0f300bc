// Package condition implements a small, hand-written interpreter for a
// JsonLogic-compatible predicate language. Conditions are parsed once at
// node construction time (see Compile) and evaluated repeatedly against
// an event's data map, which keeps SwitchNode and MapperProcessor's
// filter support independent of any full rules engine.
package condition

import (
	"fmt"
)

// Condition is a compiled predicate tree ready for repeated evaluation.
type Condition struct {
	raw any
}

// Compile parses a JsonLogic-style condition tree (as decoded from JSON
// or YAML into Go's any hierarchy: map[string]any, []any, and scalars)
// into a Condition. Compile does not evaluate anything; it only
// validates shape lazily at Eval time, matching the "parse once,
// evaluate many" intent — there is no operator grammar to reject ahead
// of time beyond what Eval already checks.
func Compile(tree any) *Condition {
	return &Condition{raw: tree}
}

// Eval evaluates the compiled condition against data, the variable
// scope conditions are resolved in. Eval returns an error for malformed
// condition trees (unknown operator, wrong arity) and for arithmetic that
// cannot be computed (non-numeric operands, division by zero); a clean
// but false result is not an error.
func (c *Condition) Eval(data map[string]any) (any, error) {
	if c == nil {
		return true, nil
	}
	return eval(c.raw, data)
}

// Truthy evaluates c and converts the result to a boolean using the same
// truthiness rules as the operators themselves.
func (c *Condition) Truthy(data map[string]any) (bool, error) {
	v, err := c.Eval(data)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func eval(node any, data map[string]any) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		if len(n) != 1 {
			return nil, fmt.Errorf("condition: operator object must have exactly one key, got %d", len(n))
		}
		for op, args := range n {
			return evalOp(op, args, data)
		}
	case []any:
		// A bare array is not itself an operator invocation; evaluate
		// each element (used for the implicit argument lists of
		// operators like "and"/"or" when passed directly).
		return evalArgs(n, data)
	default:
		// Scalars (string, number, bool, nil) evaluate to themselves.
		return n, nil
	}
	return nil, nil
}

func evalOp(op string, args any, data map[string]any) (any, error) {
	list, err := argList(args)
	if err != nil {
		return nil, err
	}

	switch op {
	case "var":
		return evalVar(list, data)
	case "==":
		return cmpPair(list, data, func(a, b any) bool { return looseEqual(a, b) })
	case "!=":
		return cmpPair(list, data, func(a, b any) bool { return !looseEqual(a, b) })
	case ">":
		return numericCompare(list, data, func(a, b float64) bool { return a > b })
	case ">=":
		return numericCompare(list, data, func(a, b float64) bool { return a >= b })
	case "<":
		return numericCompare(list, data, func(a, b float64) bool { return a < b })
	case "<=":
		return numericCompare(list, data, func(a, b float64) bool { return a <= b })
	case "and":
		return evalAnd(list, data)
	case "or":
		return evalOr(list, data)
	case "!":
		return evalNot(list, data)
	case "in":
		return evalIn(list, data)
	case "+":
		return arith(list, data, 0, func(acc, v float64) float64 { return acc + v })
	case "-":
		return evalSubtract(list, data)
	case "*":
		return arith(list, data, 1, func(acc, v float64) float64 { return acc * v })
	case "/":
		return evalDivide(list, data)
	default:
		return nil, fmt.Errorf("condition: unknown operator %q", op)
	}
}

// argList normalizes an operator's argument position: JsonLogic allows a
// single non-array argument as shorthand for a one-element list.
func argList(args any) ([]any, error) {
	switch a := args.(type) {
	case []any:
		return a, nil
	case nil:
		return nil, nil
	default:
		return []any{a}, nil
	}
}

func evalVar(args []any, data map[string]any) (any, error) {
	if len(args) == 0 {
		return data, nil
	}
	path, _ := args[0].(string)
	if path == "" {
		return data, nil
	}

	var def any
	if len(args) > 1 {
		def = args[1]
	}

	v, ok := lookupPath(data, path)
	if !ok {
		return def, nil
	}
	return v, nil
}

func lookupPath(data map[string]any, path string) (any, bool) {
	cur := any(data)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			seg := path[start:i]
			start = i + 1
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		}
	}
	return cur, true
}

func evalArgs(list []any, data map[string]any) ([]any, error) {
	out := make([]any, len(list))
	for i, item := range list {
		v, err := eval(item, data)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func cmpPair(list []any, data map[string]any, cmp func(a, b any) bool) (any, error) {
	vals, err := evalArgs(list, data)
	if err != nil {
		return nil, err
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("condition: comparison requires exactly 2 arguments, got %d", len(vals))
	}
	return cmp(vals[0], vals[1]), nil
}

func numericCompare(list []any, data map[string]any, cmp func(a, b float64) bool) (any, error) {
	vals, err := evalArgs(list, data)
	if err != nil {
		return nil, err
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("condition: numeric comparison requires exactly 2 arguments, got %d", len(vals))
	}
	a, aok := toFloat(vals[0])
	b, bok := toFloat(vals[1])
	if !aok || !bok {
		return false, nil
	}
	return cmp(a, b), nil
}

func evalAnd(list []any, data map[string]any) (any, error) {
	var last any = true
	for _, item := range list {
		v, err := eval(item, data)
		if err != nil {
			return nil, err
		}
		last = v
		if !truthy(v) {
			return v, nil
		}
	}
	return last, nil
}

func evalOr(list []any, data map[string]any) (any, error) {
	var last any = false
	for _, item := range list {
		v, err := eval(item, data)
		if err != nil {
			return nil, err
		}
		last = v
		if truthy(v) {
			return v, nil
		}
	}
	return last, nil
}

func evalNot(list []any, data map[string]any) (any, error) {
	if len(list) != 1 {
		return nil, fmt.Errorf("condition: ! requires exactly 1 argument, got %d", len(list))
	}
	v, err := eval(list[0], data)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

func evalIn(list []any, data map[string]any) (any, error) {
	vals, err := evalArgs(list, data)
	if err != nil {
		return nil, err
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("condition: in requires exactly 2 arguments, got %d", len(vals))
	}
	needle := vals[0]

	switch haystack := vals[1].(type) {
	case []any:
		for _, item := range haystack {
			if looseEqual(needle, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, nil
		}
		return containsString(haystack, s), nil
	default:
		return false, nil
	}
}

func containsString(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func arith(list []any, data map[string]any, identity float64, fn func(acc, v float64) float64) (any, error) {
	vals, err := evalArgs(list, data)
	if err != nil {
		return nil, err
	}
	acc := identity
	for _, v := range vals {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("condition: arithmetic operand %v is not numeric", v)
		}
		acc = fn(acc, f)
	}
	return normalizeNumber(acc), nil
}

func evalSubtract(list []any, data map[string]any) (any, error) {
	vals, err := evalArgs(list, data)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return 0, nil
	}
	first, ok := toFloat(vals[0])
	if !ok {
		return nil, fmt.Errorf("condition: arithmetic operand %v is not numeric", vals[0])
	}
	if len(vals) == 1 {
		return normalizeNumber(-first), nil
	}
	acc := first
	for _, v := range vals[1:] {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("condition: arithmetic operand %v is not numeric", v)
		}
		acc -= f
	}
	return normalizeNumber(acc), nil
}

func evalDivide(list []any, data map[string]any) (any, error) {
	vals, err := evalArgs(list, data)
	if err != nil {
		return nil, err
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("condition: / requires exactly 2 arguments, got %d", len(vals))
	}
	a, aok := toFloat(vals[0])
	b, bok := toFloat(vals[1])
	if !aok || !bok {
		return nil, fmt.Errorf("condition: division operands must be numeric")
	}
	if b == 0 {
		return nil, fmt.Errorf("condition: division by zero")
	}
	return normalizeNumber(a / b), nil
}

// normalizeNumber returns an int64 when f has no fractional part, else a
// float64 — mirrors MapperProcessor's "int if integral, else float" rule
// for the arithmetic operators.
func normalizeNumber(f float64) any {
	if f == float64(int64(f)) {
		return int64(f)
	}
	return f
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// truthy mirrors JsonLogic/Python-ish truthiness: false, nil, zero,
// empty string, and empty collections are falsy.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		f, ok := toFloat(v)
		if ok {
			return f != 0
		}
		return true
	}
}

// looseEqual compares two values the way JsonLogic's == does: numerics
// compare by value across types, everything else by Go equality.
func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}
