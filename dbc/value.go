package dbc

import (
	"fmt"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// Value is the typed value of a signal. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Uint  uint64
	Int   int64
	Bool  bool
	Float float64
}

func UintValue(v uint64) Value {
	return Value{Kind: KindUint, Uint: v}
}

func IntValue(v int64) Value {
	return Value{Kind: KindInt, Int: v}
}

func BoolValue(v bool) Value {
	return Value{Kind: KindBool, Bool: v}
}

func FloatValue(v float64) Value {
	return Value{Kind: KindFloat, Float: v}
}

// zeroValue returns the zero value of the given kind.
func zeroValue(kind Kind) Value {
	return Value{Kind: kind}
}

// AsFloat converts the value into a float64, whatever its kind.
func (v Value) AsFloat() float64 {
	switch v.Kind {
	case KindUint:
		return float64(v.Uint)
	case KindInt:
		return float64(v.Int)
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	default:
		return v.Float
	}
}

// Equal reports whether v and other hold the same kind and value.
// Float values compare bit for bit so a NaN never reports a change on every frame.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}

	switch v.Kind {
	case KindUint:
		return v.Uint == other.Uint
	case KindInt:
		return v.Int == other.Int
	case KindBool:
		return v.Bool == other.Bool
	default:
		return math.Float64bits(v.Float) == math.Float64bits(other.Float)
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindUint:
		return strconv.FormatUint(v.Uint, 10)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return fmt.Sprintf("Value(%d)", v.Kind)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindUint:
		return jsoniter.Marshal(v.Uint)
	case KindInt:
		return jsoniter.Marshal(v.Int)
	case KindBool:
		return jsoniter.Marshal(v.Bool)
	default:
		return jsoniter.Marshal(v.Float)
	}
}
