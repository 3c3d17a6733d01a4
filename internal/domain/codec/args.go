package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrArgumentIndexOutOfRange is returned by the checked accessors when the
// requested position does not exist in the argument list.
var ErrArgumentIndexOutOfRange = errors.New("argument index out of range")

// Args is the position-indexed argument list of a single call.
type Args struct {
	slots [][]byte
}

// NewArgs wraps raw argument slots. The slice is owned by the Args value.
func NewArgs(slots [][]byte) Args {
	return Args{slots: slots}
}

// Count returns the number of arguments.
func (a Args) Count() int {
	return len(a.slots)
}

func (a Args) slot(index int) ([]byte, error) {
	if index < 0 || index >= len(a.slots) {
		return nil, fmt.Errorf("%w: %d (count %d)", ErrArgumentIndexOutOfRange, index, len(a.slots))
	}
	return a.slots[index], nil
}

// StringAt returns the argument verbatim as a string.
func (a Args) StringAt(index int) (string, error) {
	raw, err := a.slot(index)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// BytesAt returns a copy of the argument bytes.
func (a Args) BytesAt(index int) ([]byte, error) {
	raw, err := a.slot(index)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// SizeAt returns the length in bytes of the argument.
func (a Args) SizeAt(index int) (int, error) {
	raw, err := a.slot(index)
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}

// IntAt parses the argument as a base-10 signed integer. A decimal value is
// truncated toward zero; anything else decodes to 0.
func (a Args) IntAt(index int) (int64, error) {
	raw, err := a.slot(index)
	if err != nil {
		return 0, err
	}
	return parseInt(string(raw)), nil
}

// FloatAt parses the argument as a decimal number, 0 when malformed.
func (a Args) FloatAt(index int) (float64, error) {
	raw, err := a.slot(index)
	if err != nil {
		return 0, err
	}
	return parseFloat(string(raw)), nil
}

// BoolAt parses the argument as a boolean, false when unrecognised.
func (a Args) BoolAt(index int) (bool, error) {
	raw, err := a.slot(index)
	if err != nil {
		return false, err
	}
	return parseBool(string(raw)), nil
}

// String returns the argument at index or "" when out of range.
func (a Args) String(index int) string {
	s, _ := a.StringAt(index)
	return s
}

// Bytes returns a copy of the argument at index or nil when out of range.
func (a Args) Bytes(index int) []byte {
	b, _ := a.BytesAt(index)
	return b
}

// Size returns the byte length of the argument at index or 0.
func (a Args) Size(index int) int {
	n, _ := a.SizeAt(index)
	return n
}

// Int returns the argument at index as an integer or 0.
func (a Args) Int(index int) int64 {
	n, _ := a.IntAt(index)
	return n
}

// Float returns the argument at index as a float or 0.
func (a Args) Float(index int) float64 {
	f, _ := a.FloatAt(index)
	return f
}

// Bool returns the argument at index as a boolean or false.
func (a Args) Bool(index int) bool {
	b, _ := a.BoolAt(index)
	return b
}

func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0
	}
	return int64(f)
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1":
		return true
	}
	return false
}
