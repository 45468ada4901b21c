package interpreter

import (
	"context"

	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

// Getter interprets an expression as a Value of a particular shape.
type Getter func(ctx context.Context, i *Interpreter, w *world.World, expr ast.Expression) (runtime.Value, error)

// ArgSpec declares one argument of a command or fetcher.
type ArgSpec struct {
	Name     string
	Get      Getter
	Default  runtime.Value
	Nullable bool
	Variadic bool
	Mapped   bool
	NonEmpty bool
	Implicit bool
	Slot     string
	Rescue   runtime.Value
}

// ArgOption modifies an ArgSpec.
type ArgOption func(*ArgSpec)

// Arg declares an argument read with get.
func Arg(name string, get Getter, opts ...ArgOption) ArgSpec {
	spec := ArgSpec{Name: name, Get: get}
	for _, opt := range opts {
		opt(&spec)
	}
	return spec
}

// Default substitutes v when no expression is supplied.
func Default(v runtime.Value) ArgOption {
	return func(s *ArgSpec) { s.Default = v }
}

// Nullable substitutes Nothing when no expression is supplied.
func Nullable() ArgOption {
	return func(s *ArgSpec) { s.Nullable = true }
}

// Variadic captures every remaining expression as one Sequence handed to the
// getter.
func Variadic() ArgOption {
	return func(s *ArgSpec) { s.Variadic = true }
}

// NonEmpty makes a variadic or mapped argument require at least one expression.
func NonEmpty() ArgOption {
	return func(s *ArgSpec) { s.NonEmpty = true }
}

// Mapped applies the getter to every remaining expression and yields a List.
func Mapped() ArgOption {
	return func(s *ArgSpec) { s.Mapped = true }
}

// Implicit reads the value from a named world slot; no expression is consumed.
// An empty slot name uses the argument name.
func Implicit(slot string) ArgOption {
	return func(s *ArgSpec) {
		s.Implicit = true
		s.Slot = slot
	}
}

// Rescue substitutes v when the getter fails.
func Rescue(v runtime.Value) ArgOption {
	return func(s *ArgSpec) { s.Rescue = v }
}

func (s ArgSpec) optional() bool {
	return s.Default != nil || s.Nullable
}

func (s ArgSpec) consumesRest() bool {
	return s.Variadic || s.Mapped
}

func (s ArgSpec) slotName() string {
	if s.Slot != "" {
		return s.Slot
	}
	return s.Name
}

// Args is the resolved argument record handed to a handler.
type Args map[string]runtime.Value

// Value returns the named argument, or Nothing.
func (a Args) Value(name string) runtime.Value {
	if v, ok := a[name]; ok && v != nil {
		return v
	}
	return runtime.Nothing
}

// Has reports whether the argument resolved to something other than Nothing.
func (a Args) Has(name string) bool {
	v, ok := a[name]
	if !ok || v == nil {
		return false
	}
	_, nothing := v.(runtime.NothingValue)
	return !nothing
}

func (a Args) Number(name string) decimal.Decimal {
	if n, ok := a[name].(runtime.NumberValue); ok {
		return n.Val
	}
	return decimal.Zero
}

func (a Args) String(name string) string {
	switch v := a[name].(type) {
	case runtime.StringValue:
		return v.Val
	case runtime.AddressValue:
		return v.Val
	default:
		return ""
	}
}

func (a Args) Address(name string) string {
	if v, ok := a[name].(runtime.AddressValue); ok {
		return v.Val
	}
	return ""
}

func (a Args) Bool(name string) bool {
	if v, ok := a[name].(runtime.BoolValue); ok {
		return v.Val
	}
	return false
}

func (a Args) Event(name string) ast.Expression {
	if v, ok := a[name].(runtime.EventValue); ok {
		return v.Expr
	}
	return nil
}

func (a Args) List(name string) []runtime.Value {
	if v, ok := a[name].(runtime.ListValue); ok {
		return v.Elements
	}
	return nil
}

func (a Args) Map(name string) runtime.MapValue {
	if v, ok := a[name].(runtime.MapValue); ok {
		return v
	}
	return runtime.MapValue{}
}
