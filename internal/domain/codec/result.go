package codec

import "strconv"

// Kind tells the browser how to convert a returned value.
type Kind string

const (
	KindNone   Kind = ""
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
)

// Result is the value delivered to the JavaScript promise of a call.
type Result struct {
	Kind  Kind
	Value string
}

// IsSet reports whether a value was written.
func (r Result) IsSet() bool {
	return r.Kind != KindNone
}

// Int encodes an integer result.
func Int(n int64) Result {
	return Result{Kind: KindInt, Value: strconv.FormatInt(n, 10)}
}

// Float encodes a floating point result.
func Float(f float64) Result {
	return Result{Kind: KindFloat, Value: strconv.FormatFloat(f, 'f', -1, 64)}
}

// String encodes a string result.
func String(s string) Result {
	return Result{Kind: KindString, Value: s}
}

// Bool encodes a boolean result.
func Bool(b bool) Result {
	return Result{Kind: KindBool, Value: strconv.FormatBool(b)}
}
