package heading

import (
	"fmt"
	"strconv"
)

// Literal is a sealed interface representing a bound SQL value.
// Only Null, String, Int, Float, Bool, and Bytes implement it.
//
// Literals appear in two places: attribute default values and the
// parameter list of a compiled statement. The renderer never interpolates
// literal values into SQL text; they are always passed as parameters.
type Literal interface {
	literal() // Sealed - only types in this package implement it
}

// Null represents SQL NULL.
type Null struct{}

func (Null) literal() {}

// String represents a text value.
type String string

func (String) literal() {}

// Int represents an integer value. Always int64.
type Int int64

func (Int) literal() {}

// Float represents a floating-point value.
type Float float64

func (Float) literal() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) literal() {}

// Bytes represents a binary value.
type Bytes []byte

func (Bytes) literal() {}

// Param converts a literal to the native Go value expected by
// database/sql drivers. Null converts to nil.
func Param(v Literal) any {
	switch val := v.(type) {
	case Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Bytes:
		return []byte(val)
	default:
		return nil
	}
}

// FromValue converts a native Go value to a Literal.
// Returns an error for unsupported types.
func FromValue(v any) (Literal, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case float64:
		return Float(val), nil
	case bool:
		return Bool(val), nil
	case []byte:
		return Bytes(val), nil
	case Literal:
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported literal type: %T", v)
	}
}

// LiteralString renders a literal for diagnostics (NOT for SQL emission).
func LiteralString(v Literal) string {
	switch val := v.(type) {
	case Null:
		return "NULL"
	case String:
		return strconv.Quote(string(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		if val {
			return "true"
		}
		return "false"
	case Bytes:
		return fmt.Sprintf("<%d bytes>", len(val))
	default:
		return fmt.Sprintf("<%T>", v)
	}
}
