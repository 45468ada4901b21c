package runtime

import (
	"strconv"
	"strings"
)

// Format renders the canonical script form of a value. Scalars round-trip through
// the resolver; Numbers render exactly, without exponent.
func Format(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case NumberValue:
		return val.Val.String()
	case StringValue:
		return strconv.Quote(val.Val)
	case BoolValue:
		if val.Val {
			return "True"
		}
		return "False"
	case AddressValue:
		return val.Val
	case NothingValue:
		return "Nothing"
	case ListValue:
		parts := make([]string, 0, len(val.Elements)+1)
		parts = append(parts, "List")
		for _, el := range val.Elements {
			parts = append(parts, Format(el))
		}
		return "(" + strings.Join(parts, " ") + ")"
	case MapValue:
		parts := make([]string, 0, len(val.Entries)+1)
		parts = append(parts, "Map")
		for _, entry := range val.Entries {
			parts = append(parts, "("+strconv.Quote(entry.Key)+" "+Format(entry.Value)+")")
		}
		return "(" + strings.Join(parts, " ") + ")"
	case EventValue:
		if val.Expr == nil {
			return "()"
		}
		return val.Expr.String()
	default:
		return "<unknown>"
	}
}

// Show renders a value for people: compact numbers, raw strings.
func Show(v Value) string {
	switch val := v.(type) {
	case NumberValue:
		return showNumber(val.Val)
	case StringValue:
		return val.Val
	case ListValue:
		parts := make([]string, len(val.Elements))
		for i, el := range val.Elements {
			parts[i] = Show(el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case MapValue:
		parts := make([]string, len(val.Entries))
		for i, entry := range val.Entries {
			parts[i] = entry.Key + ": " + Show(entry.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case EventValue:
		if val.Expr == nil {
			return "``"
		}
		return "`" + val.Expr.String() + "`"
	default:
		return Format(v)
	}
}

// Describe renders a value with its kind, for diagnostics.
func Describe(v Value) string {
	if v == nil {
		return "<nil>"
	}
	return v.Kind().String() + "<" + Show(v) + ">"
}
