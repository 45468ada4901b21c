package runtime

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// FromNative converts a value returned by the driven system into a Value.
// Strings with a 0x prefix are addresses.
func FromNative(v any) Value {
	switch val := v.(type) {
	case nil:
		return Nothing
	case Value:
		return val
	case decimal.Decimal:
		return Number(val)
	case *big.Int:
		return Number(decimal.NewFromBigInt(val, 0))
	case int:
		return Int(int64(val))
	case int64:
		return Int(val)
	case uint64:
		return Number(decimal.NewFromBigInt(new(big.Int).SetUint64(val), 0))
	case bool:
		return Bool(val)
	case string:
		if IsHexAddress(val) {
			return AddressValue{Val: strings.ToLower(val)}
		}
		return String(val)
	case []any:
		out := make([]Value, len(val))
		for i, el := range val {
			out[i] = FromNative(el)
		}
		return List(out...)
	default:
		return String(fmt.Sprint(val))
	}
}

// IsHexAddress reports whether s is a 0x-prefixed hex string of 40 digits.
func IsHexAddress(s string) bool {
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
