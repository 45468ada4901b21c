package interpreter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fortio.org/log"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

func printLine(w *world.World, line string) (*world.World, error) {
	w.Printer().PrintLine(line)
	return w, nil
}

func trxCommands(i *Interpreter) []*Command {
	return []*Command{
		NewCommand("Attaches native value to the invocation made by event", "Value",
			[]ArgSpec{Arg("amount", GetNumber), Arg("event", GetEvent, Variadic())},
			func(ctx context.Context, w *world.World, from string, args Args) (*world.World, error) {
				return i.Dispatch(ctx, i.core, w.WithTrxValue(args.Number("amount")), args.Event("event"), from)
			}),
	}
}

func coreCommands(i *Interpreter) []*Command {
	trx := NewCommandSet("trx", trxCommands(i)...)
	return []*Command{
		NewView("Prints the last n actions, newest first", "History",
			[]ArgSpec{Arg("n", GetNumber, Default(runtime.Int(5)))},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				actions := w.Actions()
				n := int(args.Number("n").IntPart())
				for idx := len(actions) - 1; idx >= 0 && n > 0; idx-- {
					w.Printer().PrintLine(actions[idx].String())
					n--
				}
				return w, nil
			}),
		NewView("Waits the given number of milliseconds", "Sleep",
			[]ArgSpec{Arg("ms", GetNumber)},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				timer := time.NewTimer(time.Duration(args.Number("ms").IntPart()) * time.Millisecond)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return w, ctx.Err()
				case <-timer.C:
					return w, nil
				}
			}),
		NewView("Stops the scenario with message", "Throw",
			[]ArgSpec{Arg("message", GetString)},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				return w, errors.New(args.String("message"))
			}),
		NewView("Prints the resolved value", "Read",
			[]ArgSpec{Arg("value", GetValue, Variadic(), NonEmpty())},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				w.Printer().PrintValue(args.Value("value"))
				return w, nil
			}),
		NewView("Prints message", "Print",
			[]ArgSpec{Arg("message", GetString)},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				return printLine(w, args.String("message"))
			}),
		NewView("Prints the logs of every following invocation", "PrintTransactionLogs", nil,
			func(_ context.Context, w *world.World, _ string, _ Args) (*world.World, error) {
				return w.WithPrintTransactionLogs(true), nil
			}),
		NewView("Prints the address of the default acting identity", "MyAddress",
			[]ArgSpec{Arg("me", nil, Implicit("Me"))},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				return printLine(w, args.Address("me"))
			}),
		NewView("Binds name to address", "Alias",
			[]ArgSpec{Arg("name", GetString), Arg("address", GetAddress)},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				next := w.WithAlias(args.String("name"), args.Address("address"))
				if err := next.SaveSettings(); err != nil {
					return w, err
				}
				return next, nil
			}),
		NewView("Prints every alias", "Aliases", nil,
			func(_ context.Context, w *world.World, _ string, _ Args) (*world.World, error) {
				for _, name := range w.AliasNames() {
					addr, _ := w.Alias(name)
					w.Printer().PrintLine(fmt.Sprintf("%s: %s", name, addr))
				}
				return w, nil
			}),
		NewView("Moves the chain clock forward", "IncreaseTime",
			[]ArgSpec{Arg("seconds", GetNumber)},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				sys, err := remoteOf(w)
				if err != nil {
					return w, err
				}
				seconds := args.Number("seconds").IntPart()
				ts, err := sys.IncreaseTime(ctx, seconds)
				if err != nil {
					return w, err
				}
				return w.WithAction(fmt.Sprintf("Increased time by %d seconds to %d", seconds, ts), nil), nil
			}),
		NewView("Sets the chain clock", "SetTime",
			[]ArgSpec{Arg("timestamp", GetNumber)},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				sys, err := remoteOf(w)
				if err != nil {
					return w, err
				}
				ts := args.Number("timestamp").IntPart()
				if err := sys.SetTime(ctx, ts); err != nil {
					return w, err
				}
				return w.WithAction(fmt.Sprintf("Set time to %d", ts), nil), nil
			}),
		NewView("Mines one block", "MineBlock", nil,
			func(ctx context.Context, w *world.World, _ string, _ Args) (*world.World, error) {
				sys, err := remoteOf(w)
				if err != nil {
					return w, err
				}
				block, err := sys.MineBlock(ctx)
				if err != nil {
					return w, err
				}
				return w.WithAction(fmt.Sprintf("Mined block %d", block), nil), nil
			}),
		NewView("Prints a summary of the world", "Inspect", nil,
			func(_ context.Context, w *world.World, _ string, _ Args) (*world.World, error) {
				for _, line := range inspect(w) {
					w.Printer().PrintLine(line)
				}
				return w, nil
			}),
		NewCommand("Runs event with verbose engine logging", "Debug",
			[]ArgSpec{Arg("event", GetEvent, Variadic())},
			func(ctx context.Context, w *world.World, from string, args Args) (*world.World, error) {
				prev := log.SetLogLevel(log.Verbose)
				defer log.SetLogLevel(prev)
				return i.Dispatch(ctx, i.core, w, args.Event("event"), from)
			}),
		NewCommand("Runs event acting as user", "From",
			[]ArgSpec{Arg("user", GetAddress), Arg("event", GetEvent, Variadic())},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				return i.Dispatch(ctx, i.core, w, args.Event("event"), args.Address("user"))
			}),
		NewCommand("Runs an event with transaction options", "Trx",
			[]ArgSpec{Arg("event", GetEvent, Variadic())},
			func(ctx context.Context, w *world.World, from string, args Args) (*world.World, error) {
				return i.Dispatch(ctx, trx, w, args.Event("event"), from)
			}).WithSubcommands(func() *CommandSet { return trx }),
		NewView("Adds a check that runs after every invocation", "Invariant",
			[]ArgSpec{Arg("event", GetEvent, Variadic())},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				return i.Dispatch(ctx, i.invariants, w, args.Event("event"), "")
			}).WithSubcommands(func() *CommandSet { return i.invariants }),
		NewView("Adds a check that runs after the next invocation", "Expect",
			[]ArgSpec{Arg("event", GetEvent, Variadic())},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				return i.Dispatch(ctx, i.expectations, w, args.Event("event"), "")
			}).WithSubcommands(func() *CommandSet { return i.expectations }),
		NewView("Skips invariants of type after the next invocation", "HoldInvariants",
			[]ArgSpec{Arg("type", GetString, Default(runtime.String("All")))},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				return w.HoldInvariants(args.String("type")), nil
			}),
		NewView("Removes invariants of type", "ClearInvariants",
			[]ArgSpec{Arg("type", GetString, Default(runtime.String("All")))},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				return w.ClearInvariants(args.String("type")), nil
			}),
		NewView("Checks a condition, stopping the scenario when it does not hold", "Assert",
			[]ArgSpec{Arg("event", GetEvent, Variadic())},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				return i.Dispatch(ctx, i.assertions, w, args.Event("event"), "")
			}).WithSubcommands(func() *CommandSet { return i.assertions }),
		NewCommand("Runs event unless condition resolves to a truthy value", "Gate",
			[]ArgSpec{Arg("condition", GetEvent), Arg("event", GetEvent)},
			func(ctx context.Context, w *world.World, from string, args Args) (*world.World, error) {
				value, err := i.Resolve(ctx, w, args.Event("condition"))
				if err == nil && runtime.Truthy(value) {
					log.LogVf("gate `%s` is open, skipping", args.Event("condition"))
					return w, nil
				}
				return i.Dispatch(ctx, i.core, w, args.Event("event"), from)
			}),
		NewCommand("Runs event only when condition is truthy", "Given",
			[]ArgSpec{Arg("condition", GetValue), Arg("event", GetEvent)},
			func(ctx context.Context, w *world.World, from string, args Args) (*world.World, error) {
				if !runtime.Truthy(args.Value("condition")) {
					return w, nil
				}
				return i.Dispatch(ctx, i.core, w, args.Event("event"), from)
			}),
		NewCommand("Sends native value", "Send",
			[]ArgSpec{Arg("to", GetAddress), Arg("amount", GetNumber)},
			func(ctx context.Context, w *world.World, from string, args Args) (*world.World, error) {
				sys, err := remoteOf(w)
				if err != nil {
					return w, err
				}
				call := remote.Call{From: from, To: args.Address("to"), Value: args.Number("amount")}
				next, _, err := Invoke(ctx, w, Invocation{
					Description: fmt.Sprintf("Send %s to %s", args.Number("amount"), describeAddress(w, call.To)),
					Call: func(ctx context.Context) (remote.Receipt, error) {
						return sys.Send(ctx, call)
					},
				})
				return next, err
			}),
		NewView("Prints help for a command", "Help",
			[]ArgSpec{Arg("path", GetEvent, Variadic())},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				return printLine(w, i.Help(pathOf(args.Event("path"))...))
			}),
	}
}

// describeAddress names addr by its alias or contract when one is known.
func describeAddress(w *world.World, addr string) string {
	if name, ok := w.AliasFor(addr); ok {
		return name
	}
	if ref, ok := w.ContractAt(addr); ok {
		return ref.Name
	}
	return addr
}

// DescribeAddress is describeAddress for command families.
func DescribeAddress(w *world.World, addr string) string {
	return describeAddress(w, addr)
}

func pathOf(expr ast.Expression) []string {
	seq := asSequence(expr)
	var out []string
	for _, el := range seq.Elements {
		out = append(out, ast.FormatLine(el))
	}
	return out
}

func inspect(w *world.World) []string {
	lines := []string{fmt.Sprintf("default from: %s", describeAddress(w, w.DefaultFrom()))}
	for _, name := range w.AliasNames() {
		addr, _ := w.Alias(name)
		lines = append(lines, fmt.Sprintf("alias %s: %s", name, addr))
	}
	for _, inv := range w.Invariants() {
		lines = append(lines, "invariant: "+inv.String())
	}
	for _, exp := range w.Expectations() {
		lines = append(lines, "expectation: "+exp.String())
	}
	if o := w.LastOutcome(); o != nil {
		lines = append(lines, fmt.Sprintf("last outcome: %s (consumed=%t)", o, w.OutcomeConsumed()))
	}
	return lines
}
