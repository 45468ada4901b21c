package runtime

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ExpScale is the fixed-point scale of mantissa-encoded amounts.
const ExpScale = 18

// MaxExponent bounds the decimal exponent of parsed and scaled numbers.
const MaxExponent = 4096

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrExponentRange  = errors.New("number exponent out of range")
)

// ParseNumber parses a numeric literal exactly. Accepted forms are decimal
// integers and fractions with an optional sign, e-notation ("5.0e18"), a
// trailing percent sign ("50%" == 0.5), and 0x-prefixed hex integers.
func ParseNumber(text string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("invalid number %q", text)
	}
	body := strings.ReplaceAll(raw, "_", "")
	negative := false
	switch body[0] {
	case '+':
		body = body[1:]
	case '-':
		negative = true
		body = body[1:]
	}
	if body == "" || body[0] == '+' || body[0] == '-' {
		return decimal.Zero, fmt.Errorf("invalid number %q", text)
	}

	var d decimal.Decimal
	switch {
	case strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X"):
		n, ok := new(big.Int).SetString(body[2:], 16)
		if !ok {
			return decimal.Zero, fmt.Errorf("invalid hex number %q", text)
		}
		d = decimal.NewFromBigInt(n, 0)
	case strings.HasSuffix(body, "%"):
		parsed, err := parseDecimal(strings.TrimSuffix(body, "%"))
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid percentage %q", text)
		}
		d = parsed.Shift(-2)
	default:
		parsed, err := parseDecimal(body)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid number %q", text)
		}
		d = parsed
	}
	if negative {
		d = d.Neg()
	}
	if err := checkExponent(int64(d.Exponent())); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", err, text)
	}
	return d, nil
}

func checkExponent(exp int64) error {
	if exp > MaxExponent || exp < -MaxExponent {
		return ErrExponentRange
	}
	return nil
}

func parseDecimal(body string) (decimal.Decimal, error) {
	if body == "" {
		return decimal.Zero, errors.New("empty")
	}
	first := body[0]
	if (first < '0' || first > '9') && first != '.' {
		return decimal.Zero, errors.New("not numeric")
	}
	return decimal.NewFromString(body)
}

// Scale multiplies d by 10^places without rounding.
func Scale(d decimal.Decimal, places int32) (decimal.Decimal, error) {
	if err := checkExponent(int64(d.Exponent()) + int64(places)); err != nil {
		return decimal.Zero, err
	}
	return d.Shift(places), nil
}

func (n NumberValue) Add(other NumberValue) NumberValue {
	return NumberValue{Val: n.Val.Add(other.Val)}
}

func (n NumberValue) Sub(other NumberValue) NumberValue {
	return NumberValue{Val: n.Val.Sub(other.Val)}
}

func (n NumberValue) Mul(other NumberValue) NumberValue {
	return NumberValue{Val: n.Val.Mul(other.Val)}
}

// Div divides with 36 fractional digits of precision.
func (n NumberValue) Div(other NumberValue) (NumberValue, error) {
	if other.Val.IsZero() {
		return NumberValue{}, ErrDivisionByZero
	}
	return NumberValue{Val: n.Val.DivRound(other.Val, 36)}, nil
}

func (n NumberValue) Neg() NumberValue {
	return NumberValue{Val: n.Val.Neg()}
}

// showNumber renders large round integers in compact e-notation ("5e18").
func showNumber(d decimal.Decimal) string {
	if !d.Equal(d.Truncate(0)) || d.Abs().LessThan(decimal.New(1, 9)) {
		return d.String()
	}
	digits := d.Abs().String()
	trimmed := strings.TrimRight(digits, "0")
	exponent := len(digits) - 1
	mantissa := trimmed[:1]
	if len(trimmed) > 1 {
		mantissa += "." + trimmed[1:]
	}
	if d.Sign() < 0 {
		mantissa = "-" + mantissa
	}
	return fmt.Sprintf("%se%d", mantissa, exponent)
}
