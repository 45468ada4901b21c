package interpreter

import (
	"context"
	"fmt"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/outcome"
	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

func constant(v runtime.Value) FetchFunc {
	return func(context.Context, *world.World, Args) (runtime.Value, error) { return v, nil }
}

func numberOp(op func(a, b runtime.NumberValue) (runtime.NumberValue, error)) FetchFunc {
	return func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
		a := args.Value("a").(runtime.NumberValue)
		b := args.Value("b").(runtime.NumberValue)
		return op(a, b)
	}
}

func pair() []ArgSpec {
	return []ArgSpec{Arg("a", GetNumber), Arg("b", GetNumber)}
}

func coreFetchers(i *Interpreter) []*Fetcher {
	return []*Fetcher{
		NewFetcher("Boolean true", "True", runtime.KindBool, nil, constant(runtime.True)),
		NewFetcher("Boolean false", "False", runtime.KindBool, nil, constant(runtime.False)),
		NewFetcher("The number zero", "Zero", runtime.KindNumber, nil, constant(runtime.Int(0))),
		NewFetcher("Explicit absence of a value", "Nothing", runtime.KindNothing, nil, constant(runtime.Nothing)),
		NewFetcher("Address of the default acting identity", "Me", runtime.KindAddress,
			[]ArgSpec{Arg("me", nil, Implicit("Me"))},
			func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
				return args.Value("me"), nil
			}),
		NewFetcher("Address of the default acting identity", "MyAddress", runtime.KindAddress,
			[]ArgSpec{Arg("me", nil, Implicit("Me"))},
			func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
				return args.Value("me"), nil
			}),

		NewFetcher("The number n, unscaled", "Exactly", runtime.KindNumber,
			[]ArgSpec{Arg("n", GetNumber)},
			func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
				return args.Value("n"), nil
			}),
		NewFetcher("The number n scaled by 1e18", "Exp", runtime.KindNumber,
			[]ArgSpec{Arg("n", GetExpNumber)},
			func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
				return args.Value("n"), nil
			}),
		NewFetcher("value, or fallback when value cannot be resolved", "Default", KindAny,
			[]ArgSpec{Arg("value", GetEvent), Arg("fallback", GetValue)},
			func(ctx context.Context, w *world.World, args Args) (runtime.Value, error) {
				value, err := i.Resolve(ctx, w, args.Event("value"))
				if err != nil {
					return args.Value("fallback"), nil
				}
				return value, nil
			}),
		NewFetcher("a + b", "Add", runtime.KindNumber, pair(), numberOp(func(a, b runtime.NumberValue) (runtime.NumberValue, error) {
			return a.Add(b), nil
		})),
		NewFetcher("a - b", "Sub", runtime.KindNumber, pair(), numberOp(func(a, b runtime.NumberValue) (runtime.NumberValue, error) {
			return a.Sub(b), nil
		})),
		NewFetcher("a * b", "Mul", runtime.KindNumber, pair(), numberOp(func(a, b runtime.NumberValue) (runtime.NumberValue, error) {
			return a.Mul(b), nil
		})),
		NewFetcher("a / b", "Div", runtime.KindNumber, pair(), numberOp(func(a, b runtime.NumberValue) (runtime.NumberValue, error) {
			return a.Div(b)
		})),
		NewFetcher("The smaller of a and b", "Min", runtime.KindNumber, pair(), numberOp(func(a, b runtime.NumberValue) (runtime.NumberValue, error) {
			if b.Val.LessThan(a.Val) {
				return b, nil
			}
			return a, nil
		})),
		NewFetcher("The larger of a and b", "Max", runtime.KindNumber, pair(), numberOp(func(a, b runtime.NumberValue) (runtime.NumberValue, error) {
			if b.Val.GreaterThan(a.Val) {
				return b, nil
			}
			return a, nil
		})),

		NewFetcher("An address literal or alias", "Address", runtime.KindAddress,
			[]ArgSpec{Arg("addr", GetAddress)},
			func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
				return args.Value("addr"), nil
			}),
		NewFetcher("The text s", "String", runtime.KindString,
			[]ArgSpec{Arg("s", GetString)},
			func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
				return args.Value("s"), nil
			}),
		NewFetcher("A boolean literal", "Bool", runtime.KindBool,
			[]ArgSpec{Arg("b", GetBool)},
			func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
				return args.Value("b"), nil
			}),
		NewFetcher("A list of resolved values", "List", runtime.KindList,
			[]ArgSpec{Arg("items", GetList, Variadic())},
			func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
				return args.Value("items"), nil
			}),
		NewFetcher("A map from (key value) pairs", "Map", runtime.KindMap,
			[]ArgSpec{Arg("entries", GetMap, Variadic())},
			func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
				return args.Value("entries"), nil
			}),
		NewFetcher("True when a and b are equal", "Equal", runtime.KindBool,
			[]ArgSpec{Arg("a", GetValue), Arg("b", GetValue)},
			func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
				return runtime.Bool(runtime.ValuesEqual(args.Value("a"), args.Value("b"))), nil
			}),

		NewFetcher("The value returned by the last successful invocation", "LastResult", KindAny, nil,
			func(_ context.Context, w *world.World, _ Args) (runtime.Value, error) {
				success, ok := w.LastOutcome().(outcome.Success)
				if !ok {
					return nil, resolutionErrorf(ast.NewAtom("LastResult"), "last outcome is %v", w.LastOutcome())
				}
				if success.Value == nil {
					return runtime.Nothing, nil
				}
				return success.Value, nil
			}),
		NewFetcher("The last outcome rendered as a map", "LastOutcome", KindAny, nil,
			func(_ context.Context, w *world.World, _ Args) (runtime.Value, error) {
				return outcome.AsValue(w.LastOutcome()), nil
			}),
		NewFetcher("A property of a named user", "User", runtime.KindAddress,
			[]ArgSpec{Arg("user", GetAddress), Arg("property", GetString)},
			func(_ context.Context, _ *world.World, args Args) (runtime.Value, error) {
				if prop := args.String("property"); prop != "Address" {
					return nil, fmt.Errorf("unknown user property %q", prop)
				}
				return args.Value("user"), nil
			}),
		NewFetcher("Current block number", "BlockNumber", runtime.KindNumber, nil,
			func(ctx context.Context, w *world.World, _ Args) (runtime.Value, error) {
				sys, err := remoteOf(w)
				if err != nil {
					return nil, err
				}
				n, err := sys.BlockNumber(ctx)
				if err != nil {
					return nil, err
				}
				return runtime.Int(n), nil
			}),
		NewFetcher("Current block timestamp", "Timestamp", runtime.KindNumber, nil,
			func(ctx context.Context, w *world.World, _ Args) (runtime.Value, error) {
				sys, err := remoteOf(w)
				if err != nil {
					return nil, err
				}
				ts, err := sys.Timestamp(ctx)
				if err != nil {
					return nil, err
				}
				return runtime.Int(ts), nil
			}),
		NewFetcher("Native balance of who", "Balance", runtime.KindNumber,
			[]ArgSpec{Arg("who", GetAddress)},
			func(ctx context.Context, w *world.World, args Args) (runtime.Value, error) {
				sys, err := remoteOf(w)
				if err != nil {
					return nil, err
				}
				bal, err := sys.Balance(ctx, args.Address("who"))
				if err != nil {
					return nil, err
				}
				return runtime.Number(bal), nil
			}),
	}
}

func remoteOf(w *world.World) (remote.System, error) {
	sys := w.Remote()
	if sys == nil {
		return nil, fmt.Errorf("no remote system configured")
	}
	return sys, nil
}
