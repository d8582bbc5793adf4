package bridge

import (
	"fmt"
	"math"
)

// arg is one validated argument. Exactly one field is meaningful, chosen by
// the parameter kind.
type arg struct {
	s string
	n uint32
}

func validate(op Op, args []any) ([]arg, error) {
	spec := catalog[op]
	if len(args) != len(spec.params) {
		return nil, arityError(op, len(args))
	}

	out := make([]arg, len(args))
	for i, p := range spec.params {
		switch p.kind {
		case KindString:
			s, ok := args[i].(string)
			if !ok {
				return nil, &ArgumentError{Op: op, Index: i, Param: p.name, Want: p.kind}
			}
			out[i].s = s
		case KindNumber:
			n, ok := toUint32(args[i])
			if !ok {
				return nil, &ArgumentError{Op: op, Index: i, Param: p.name, Want: p.kind}
			}
			out[i].n = n
		default:
			panic(fmt.Sprintf("bridge: unhandled parameter kind %d", p.kind))
		}
	}
	return out, nil
}

// toUint32 converts a host number the way the host's own unsigned 32-bit
// conversion does: fractions truncate toward zero, values wrap modulo 2^32,
// NaN and infinities become zero.
func toUint32(v any) (uint32, bool) {
	switch x := v.(type) {
	case float64:
		return floatToUint32(x), true
	case float32:
		return floatToUint32(float64(x)), true
	case int:
		return uint32(x), true
	case int8:
		return uint32(x), true
	case int16:
		return uint32(x), true
	case int32:
		return uint32(x), true
	case int64:
		return uint32(x), true
	case uint:
		return uint32(x), true
	case uint8:
		return uint32(x), true
	case uint16:
		return uint32(x), true
	case uint32:
		return x, true
	case uint64:
		return uint32(x), true
	default:
		return 0, false
	}
}

func floatToUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Mod(math.Trunc(f), 1<<32)
	if f < 0 {
		f += 1 << 32
	}
	return uint32(f)
}
