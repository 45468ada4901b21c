package runtime

import (
	"errors"
	"fmt"

	"scenario/interpreter-go/pkg/ast"
)

// Order is the result of CompareOrder.
type Order int

const (
	Less    Order = -1
	Equal   Order = 0
	Greater Order = 1
)

func (o Order) String() string {
	switch o {
	case Less:
		return "LESS"
	case Greater:
		return "GREATER"
	default:
		return "EQUAL"
	}
}

// ErrUnordered is returned when CompareOrder is asked to order non-Numbers.
var ErrUnordered = errors.New("values are not ordered")

// ValuesEqual compares two values by variant and payload. Cross-variant pairs are
// never equal. Numbers compare numerically, so 1.0 equals 1.
func ValuesEqual(left, right Value) bool {
	switch lv := left.(type) {
	case NumberValue:
		rv, ok := right.(NumberValue)
		return ok && lv.Val.Equal(rv.Val)
	case StringValue:
		rv, ok := right.(StringValue)
		return ok && lv.Val == rv.Val
	case BoolValue:
		rv, ok := right.(BoolValue)
		return ok && lv.Val == rv.Val
	case AddressValue:
		rv, ok := right.(AddressValue)
		return ok && lv.Val == rv.Val
	case NothingValue:
		_, ok := right.(NothingValue)
		return ok
	case ListValue:
		rv, ok := right.(ListValue)
		if !ok || len(lv.Elements) != len(rv.Elements) {
			return false
		}
		for i := range lv.Elements {
			if !ValuesEqual(lv.Elements[i], rv.Elements[i]) {
				return false
			}
		}
		return true
	case MapValue:
		rv, ok := right.(MapValue)
		if !ok || len(lv.Entries) != len(rv.Entries) {
			return false
		}
		for _, entry := range lv.Entries {
			other, found := rv.Get(entry.Key)
			if !found || !ValuesEqual(entry.Value, other) {
				return false
			}
		}
		return true
	case EventValue:
		rv, ok := right.(EventValue)
		return ok && ast.Equal(lv.Expr, rv.Expr)
	default:
		return false
	}
}

// CompareOrder orders two Numbers.
func CompareOrder(left, right Value) (Order, error) {
	lv, lok := left.(NumberValue)
	rv, rok := right.(NumberValue)
	if !lok || !rok {
		return Equal, fmt.Errorf("%w: cannot order %s and %s", ErrUnordered, kindOf(left), kindOf(right))
	}
	return Order(lv.Val.Cmp(rv.Val)), nil
}

func kindOf(v Value) string {
	if v == nil {
		return "<nil>"
	}
	return v.Kind().String()
}
