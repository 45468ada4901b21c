package interpreter

import (
	"context"
	"fmt"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/outcome"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

// remainsCheck requires expr to keep resolving to value.
type remainsCheck struct {
	i     *Interpreter
	kind  string
	expr  ast.Expression
	value runtime.Value
}

func (c *remainsCheck) Kind() string { return c.kind }

func (c *remainsCheck) String() string {
	return fmt.Sprintf("%s `%s` = %s", c.kind, ast.FormatLine(c.expr), runtime.Show(c.value))
}

func (c *remainsCheck) Check(ctx context.Context, w *world.World) error {
	current, err := c.i.Resolve(ctx, w, c.expr)
	if err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}
	if !runtime.ValuesEqual(current, c.value) {
		return assertFail(w, c.kind, fmt.Sprintf("`%s` changed", ast.FormatLine(c.expr)), runtime.Show(current), runtime.Show(c.value))
	}
	return nil
}

type successCheck struct{}

func (successCheck) Kind() string   { return "Success" }
func (successCheck) String() string { return "Success" }

func (successCheck) Check(_ context.Context, w *world.World) error {
	last := w.LastOutcome()
	if last == nil || last.Kind() == outcome.KindSuccess {
		return nil
	}
	return assertFail(w, "Success", "invariant broken", last.String(), "Success")
}

// changesCheck requires expr to move by exactly delta.
type changesCheck struct {
	i        *Interpreter
	expr     ast.Expression
	original runtime.NumberValue
	delta    runtime.NumberValue
}

func (c *changesCheck) Kind() string { return "Changes" }

func (c *changesCheck) String() string {
	return fmt.Sprintf("Changes `%s` by %s", ast.FormatLine(c.expr), runtime.Show(c.delta))
}

func (c *changesCheck) Check(ctx context.Context, w *world.World) error {
	value, err := GetNumber(ctx, c.i, w, c.expr)
	if err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}
	current := value.(runtime.NumberValue)
	want := c.original.Add(c.delta)
	if !runtime.ValuesEqual(current, want) {
		actual := current.Sub(c.original)
		return assertFail(w, "Changes",
			fmt.Sprintf("`%s` changed by %s", ast.FormatLine(c.expr), runtime.Show(actual)),
			runtime.Show(current), runtime.Show(want))
	}
	return nil
}

func invariantCommands(i *Interpreter) []*Command {
	return []*Command{
		NewView("Checks that value never changes", "Static",
			[]ArgSpec{Arg("value", GetEvent, Variadic())},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				expr := args.Event("value")
				current, err := i.Resolve(ctx, w, expr)
				if err != nil {
					return w, err
				}
				return w.WithInvariant(&remainsCheck{i: i, kind: "Static", expr: expr, value: current}), nil
			}),
		NewView("Checks that value always equals amount", "Remains",
			[]ArgSpec{Arg("value", GetEvent), Arg("amount", GetValue)},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				check := &remainsCheck{i: i, kind: "Remains", expr: args.Event("value"), value: args.Value("amount")}
				if err := check.Check(ctx, w); err != nil {
					return w, err
				}
				return w.WithInvariant(check), nil
			}),
		NewView("Checks that every invocation succeeds", "Success", nil,
			func(_ context.Context, w *world.World, _ string, _ Args) (*world.World, error) {
				return w.WithInvariant(successCheck{}), nil
			}),
	}
}

func expectationCommands(i *Interpreter) []*Command {
	return []*Command{
		NewView("Checks that value changes by exactly delta during the next invocation", "Changes",
			[]ArgSpec{Arg("value", GetEvent), Arg("delta", GetNumber)},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				expr := args.Event("value")
				original, err := GetNumber(ctx, i, w, expr)
				if err != nil {
					return w, err
				}
				return w.WithExpectation(&changesCheck{
					i:        i,
					expr:     expr,
					original: original.(runtime.NumberValue),
					delta:    args.Value("delta").(runtime.NumberValue),
				}), nil
			}),
		NewView("Checks that value equals amount after the next invocation", "Remains",
			[]ArgSpec{Arg("value", GetEvent), Arg("amount", GetValue)},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				return w.WithExpectation(&remainsCheck{i: i, kind: "Remains", expr: args.Event("value"), value: args.Value("amount")}), nil
			}),
	}
}
