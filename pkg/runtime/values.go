package runtime

import (
	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/ast"
)

// Kind identifies the runtime value category.
type Kind int

const (
	KindNothing Kind = iota
	KindNumber
	KindString
	KindBool
	KindAddress
	KindList
	KindMap
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindNothing:
		return "Nothing"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindBool:
		return "Bool"
	case KindAddress:
		return "Address"
	case KindList:
		return "List"
	case KindMap:
		return "Map"
	case KindEvent:
		return "Event"
	default:
		return "unknown"
	}
}

// Value is an immutable scenario value. The set of implementations is closed.
type Value interface {
	Kind() Kind
	value()
}

type NumberValue struct {
	Val decimal.Decimal
}

func (NumberValue) Kind() Kind { return KindNumber }
func (NumberValue) value()     {}

type StringValue struct {
	Val string
}

func (StringValue) Kind() Kind { return KindString }
func (StringValue) value()     {}

type BoolValue struct {
	Val bool
}

func (BoolValue) Kind() Kind { return KindBool }
func (BoolValue) value()     {}

// AddressValue is an opaque account or contract identifier.
type AddressValue struct {
	Val string
}

func (AddressValue) Kind() Kind { return KindAddress }
func (AddressValue) value()     {}

// NothingValue is explicit absence, distinct from a missing argument.
type NothingValue struct{}

func (NothingValue) Kind() Kind { return KindNothing }
func (NothingValue) value()     {}

type ListValue struct {
	Elements []Value
}

func (ListValue) Kind() Kind { return KindList }
func (ListValue) value()     {}

type MapEntry struct {
	Key   string
	Value Value
}

// MapValue keeps insertion order for rendering; equality ignores it.
type MapValue struct {
	Entries []MapEntry
}

func (MapValue) Kind() Kind { return KindMap }
func (MapValue) value()     {}

// Get returns the value stored under key.
func (m MapValue) Get(key string) (Value, bool) {
	for _, entry := range m.Entries {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return nil, false
}

// EventValue wraps an unevaluated expression.
type EventValue struct {
	Expr ast.Expression
}

func (EventValue) Kind() Kind { return KindEvent }
func (EventValue) value()     {}

var (
	Nothing = NothingValue{}
	True    = BoolValue{Val: true}
	False   = BoolValue{Val: false}
)

func Number(d decimal.Decimal) NumberValue { return NumberValue{Val: d} }

func Int(n int64) NumberValue { return NumberValue{Val: decimal.NewFromInt(n)} }

func String(s string) StringValue { return StringValue{Val: s} }

func Bool(b bool) BoolValue { return BoolValue{Val: b} }

func List(elements ...Value) ListValue {
	if elements == nil {
		elements = []Value{}
	}
	return ListValue{Elements: elements}
}

// NewMap builds a map from ordered entries. A repeated key keeps its first position
// and takes the later value.
func NewMap(entries ...MapEntry) MapValue {
	out := make([]MapEntry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, entry := range entries {
		if i, ok := index[entry.Key]; ok {
			out[i].Value = entry.Value
			continue
		}
		index[entry.Key] = len(out)
		out = append(out, entry)
	}
	return MapValue{Entries: out}
}

func Event(expr ast.Expression) EventValue { return EventValue{Expr: expr} }

// Truthy reports whether a value gates Given/Gate style commands open.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, NothingValue:
		return false
	case BoolValue:
		return val.Val
	case NumberValue:
		return !val.Val.IsZero()
	case StringValue:
		return val.Val != ""
	case AddressValue:
		return val.Val != ""
	case ListValue:
		return len(val.Elements) > 0
	case MapValue:
		return len(val.Entries) > 0
	case EventValue:
		return val.Expr != nil
	default:
		return false
	}
}
