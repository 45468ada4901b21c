package interpreter

import (
	"context"
	"errors"
	"strings"

	"fortio.org/log"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

// Resolve evaluates expr to a Value.
//
// A quoted atom is a String. A bare atom is tried, in order, as a keyword
// fetcher that takes no arguments (True, Zero, Me), a hex address, a numeric
// literal and an alias. Anything else is a String. A sequence is dispatched on its name literal to the
// registered fetchers. A one-element sequence that names no fetcher resolves as
// its only child.
func (i *Interpreter) Resolve(ctx context.Context, w *world.World, expr ast.Expression) (runtime.Value, error) {
	switch e := expr.(type) {
	case *ast.Atom:
		return i.resolveAtom(ctx, w, e)
	case *ast.Sequence:
		return i.resolveSequence(ctx, w, e)
	default:
		return nil, resolutionErrorf(expr, "unsupported expression")
	}
}

func (i *Interpreter) resolveAtom(ctx context.Context, w *world.World, atom *ast.Atom) (runtime.Value, error) {
	if atom.Quoted {
		return runtime.String(atom.Text), nil
	}
	seq := asSequence(atom)
	if fetcher, _, _ := selectCandidate(i.fetchers, seq); fetcher != nil {
		value, _, err := i.fetch(ctx, i.fetchers, w, seq)
		return value, err
	}
	text := atom.Text
	if runtime.IsHexAddress(text) {
		return runtime.AddressValue{Val: strings.ToLower(text)}, nil
	}
	if n, err := runtime.ParseNumber(text); err == nil {
		return runtime.Number(n), nil
	} else if errors.Is(err, runtime.ErrExponentRange) {
		return nil, resolutionErrorf(atom, "%v", err)
	}
	if addr, ok := w.Alias(text); ok {
		return runtime.AddressValue{Val: addr}, nil
	}
	return runtime.String(text), nil
}

func (i *Interpreter) resolveSequence(ctx context.Context, w *world.World, seq *ast.Sequence) (runtime.Value, error) {
	if seq.Len() == 0 {
		return nil, resolutionErrorf(seq, "empty expression")
	}
	value, found, err := i.fetch(ctx, i.fetchers, w, seq)
	if found {
		return value, err
	}
	if seq.Len() == 1 {
		return i.Resolve(ctx, w, seq.Elements[0])
	}
	name, _ := seq.Head()
	if name == "" {
		name = seq.Elements[0].String()
	}
	log.LogVf("no fetcher named %q for `%s`", name, seq)
	return nil, &ResolutionError{
		Expr:        seq,
		Reason:      "no value fetcher named " + quote(name),
		Suggestions: suggest(name, i.fetchers.Names()),
	}
}

func quote(s string) string {
	return "\"" + s + "\""
}

func expectKind(expr ast.Expression, value runtime.Value, kind runtime.Kind) (runtime.Value, error) {
	if value.Kind() != kind {
		return nil, resolutionErrorf(expr, "expected %s, got %s", kind, runtime.Describe(value))
	}
	return value, nil
}

// GetValue resolves any value.
func GetValue(ctx context.Context, i *Interpreter, w *world.World, expr ast.Expression) (runtime.Value, error) {
	return i.Resolve(ctx, w, expr)
}

// GetNumber resolves a Number. Bare numerals parse directly and exactly.
func GetNumber(ctx context.Context, i *Interpreter, w *world.World, expr ast.Expression) (runtime.Value, error) {
	if atom, ok := expr.(*ast.Atom); ok {
		if n, err := runtime.ParseNumber(atom.Text); err == nil {
			return runtime.Number(n), nil
		} else if errors.Is(err, runtime.ErrExponentRange) {
			return nil, resolutionErrorf(expr, "%v", err)
		}
		if atom.Quoted {
			return nil, resolutionErrorf(expr, "expected Number, got String %q", atom.Text)
		}
	}
	value, err := i.Resolve(ctx, w, expr)
	if err != nil {
		return nil, err
	}
	return expectKind(expr, value, runtime.KindNumber)
}

// GetExpNumber resolves a Number and scales it by 10^18.
func GetExpNumber(ctx context.Context, i *Interpreter, w *world.World, expr ast.Expression) (runtime.Value, error) {
	value, err := GetNumber(ctx, i, w, expr)
	if err != nil {
		return nil, err
	}
	scaled, err := runtime.Scale(value.(runtime.NumberValue).Val, runtime.ExpScale)
	if err != nil {
		return nil, resolutionErrorf(expr, "%v", err)
	}
	return runtime.Number(scaled), nil
}

// GetString reads an atom's text verbatim; sequences must resolve to a String.
func GetString(ctx context.Context, i *Interpreter, w *world.World, expr ast.Expression) (runtime.Value, error) {
	if atom, ok := expr.(*ast.Atom); ok {
		return runtime.String(atom.Text), nil
	}
	value, err := i.Resolve(ctx, w, expr)
	if err != nil {
		return nil, err
	}
	return expectKind(expr, value, runtime.KindString)
}

// GetBool resolves a Bool. Atoms accept True/False in any case.
func GetBool(ctx context.Context, i *Interpreter, w *world.World, expr ast.Expression) (runtime.Value, error) {
	if atom, ok := expr.(*ast.Atom); ok && !atom.Quoted {
		switch strings.ToLower(atom.Text) {
		case "true", "yes":
			return runtime.True, nil
		case "false", "no":
			return runtime.False, nil
		}
	}
	value, err := i.Resolve(ctx, w, expr)
	if err != nil {
		return nil, err
	}
	return expectKind(expr, value, runtime.KindBool)
}

// GetAddress resolves an Address from a hex literal, an alias or a fetcher.
func GetAddress(ctx context.Context, i *Interpreter, w *world.World, expr ast.Expression) (runtime.Value, error) {
	if atom, ok := expr.(*ast.Atom); ok {
		if runtime.IsHexAddress(atom.Text) {
			return runtime.AddressValue{Val: strings.ToLower(atom.Text)}, nil
		}
		if addr, found := w.Alias(atom.Text); found {
			return runtime.AddressValue{Val: addr}, nil
		}
		if atom.Quoted {
			return nil, resolutionErrorf(expr, "unknown alias %q", atom.Text)
		}
	}
	value, err := i.Resolve(ctx, w, expr)
	if err != nil {
		return nil, err
	}
	if s, ok := value.(runtime.StringValue); ok {
		return nil, &ResolutionError{
			Expr:        expr,
			Reason:      "unknown alias " + quote(s.Val),
			Suggestions: suggest(s.Val, w.AliasNames()),
		}
	}
	return expectKind(expr, value, runtime.KindAddress)
}

// GetEvent wraps the expression unevaluated.
func GetEvent(_ context.Context, _ *Interpreter, _ *world.World, expr ast.Expression) (runtime.Value, error) {
	return runtime.Event(expr), nil
}

// GetList resolves every element of a sequence independently. A failing element
// aborts the whole list.
func GetList(ctx context.Context, i *Interpreter, w *world.World, expr ast.Expression) (runtime.Value, error) {
	seq, ok := expr.(*ast.Sequence)
	if !ok {
		value, err := i.Resolve(ctx, w, expr)
		if err != nil {
			return nil, err
		}
		if list, isList := value.(runtime.ListValue); isList {
			return list, nil
		}
		return runtime.List(value), nil
	}
	items := make([]runtime.Value, 0, seq.Len())
	for _, el := range seq.Elements {
		value, err := i.Resolve(ctx, w, el)
		if err != nil {
			return nil, err
		}
		items = append(items, value)
	}
	return runtime.List(items...), nil
}

// GetMap resolves a sequence of (key value) pairs.
func GetMap(ctx context.Context, i *Interpreter, w *world.World, expr ast.Expression) (runtime.Value, error) {
	seq, ok := expr.(*ast.Sequence)
	if !ok {
		return nil, resolutionErrorf(expr, "expected a list of (key value) pairs")
	}
	entries := make([]runtime.MapEntry, 0, seq.Len())
	for _, el := range seq.Elements {
		pair, ok := el.(*ast.Sequence)
		if !ok || pair.Len() != 2 {
			return nil, resolutionErrorf(el, "expected a (key value) pair")
		}
		key, ok := pair.Elements[0].(*ast.Atom)
		if !ok {
			return nil, resolutionErrorf(pair.Elements[0], "map key must be an atom")
		}
		value, err := i.Resolve(ctx, w, pair.Elements[1])
		if err != nil {
			return nil, err
		}
		entries = append(entries, runtime.MapEntry{Key: key.Text, Value: value})
	}
	return runtime.NewMap(entries...), nil
}
