package interpreter

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/outcome"
	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

const revertPrefix = "VM Exception while processing transaction: "

// DefaultTolerance is the relative tolerance used by Approx.
var DefaultTolerance = decimal.RequireFromString("0.001")

func assertionCommands(i *Interpreter) []*Command {
	return []*Command{
		NewView("Fails when |expected - given| exceeds tolerance * |expected|", "Approx",
			[]ArgSpec{Arg("given", GetNumber), Arg("expected", GetNumber), Arg("tolerance", GetNumber, Default(runtime.Number(DefaultTolerance)))},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				given, expected := args.Number("given"), args.Number("expected")
				if !approx(given, expected, args.Number("tolerance")) {
					return w, assertFail(w, "Approx",
						fmt.Sprintf("not within %s", args.Number("tolerance")),
						runtime.Show(args.Value("given")), runtime.Show(args.Value("expected")))
				}
				return w, nil
			}),
		NewView("Fails unless given equals expected", "Equal",
			[]ArgSpec{Arg("given", GetValue), Arg("expected", GetValue)},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				given, expected := args.Value("given"), args.Value("expected")
				if !runtime.ValuesEqual(given, expected) {
					return w, assertFail(w, "Equal", "values differ", runtime.Describe(given), runtime.Describe(expected))
				}
				return w, nil
			}),
		NewView("Fails unless given is less than expected", "LessThan",
			[]ArgSpec{Arg("given", GetValue), Arg("expected", GetValue)},
			orderAssertion("LessThan", runtime.Less)).At(1),
		NewView("Fails unless given is greater than expected", "GreaterThan",
			[]ArgSpec{Arg("given", GetValue), Arg("expected", GetValue)},
			orderAssertion("GreaterThan", runtime.Greater)).At(1),
		NewView("Fails unless given is true", "True",
			[]ArgSpec{Arg("given", GetBool)},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				if !args.Bool("given") {
					return w, assertFail(w, "True", "value is false", "False", "True")
				}
				return w, nil
			}),
		NewView("Fails unless given is false", "False",
			[]ArgSpec{Arg("given", GetBool)},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				if args.Bool("given") {
					return w, assertFail(w, "False", "value is true", "True", "False")
				}
				return w, nil
			}),
		NewView("Fails unless reading value reverts with exactly message", "ReadRevert",
			[]ArgSpec{Arg("value", GetEvent), Arg("message", GetString)},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				want := revertPrefix + args.String("message")
				value, err := i.Resolve(ctx, w, args.Event("value"))
				switch {
				case err == nil:
					return w, assertFail(w, "ReadRevert", "read did not revert", runtime.Describe(value), want)
				case rootMessage(err) != want:
					return w, assertFail(w, "ReadRevert", "wrong revert", rootMessage(err), want)
				}
				return w, nil
			}),
		NewView("Fails unless reading value raises message", "ReadError",
			[]ArgSpec{Arg("value", GetEvent), Arg("message", GetString)},
			func(ctx context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				want := args.String("message")
				value, err := i.Resolve(ctx, w, args.Event("value"))
				switch {
				case err == nil:
					return w, assertFail(w, "ReadError", "read succeeded", runtime.Describe(value), want)
				case rootMessage(err) != want:
					return w, assertFail(w, "ReadError", "wrong error", rootMessage(err), want)
				}
				return w, nil
			}),
		NewView("Fails unless the last invocation failed gracefully with the given codes", "Failure",
			[]ArgSpec{Arg("error", GetString), Arg("info", GetString), Arg("detail", GetString, Default(runtime.String("0")))},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				expected := outcome.Failure{ErrorCode: args.String("error"), SubCode: args.String("info"), Detail: args.String("detail")}
				last, err := lastOutcome(w, "Failure")
				if err != nil {
					return w, err
				}
				failure, ok := last.(outcome.Failure)
				if !ok || !failure.Matches(expected.ErrorCode, expected.SubCode, expected.Detail) {
					return w, assertFail(w, "Failure", mismatch(last, outcome.KindFailure), last.String(), expected.String())
				}
				return w.ConsumeOutcome(), nil
			}),
		NewView("Fails unless the last invocation reverted with error code and exactly message, ignoring the code suffix", "RevertFailure",
			[]ArgSpec{Arg("error", GetString), Arg("message", GetString, Default(runtime.String("revert")))},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				code := args.String("error")
				expected := outcome.ThrownError{Message: revertPrefix + args.String("message"), Code: code}
				thrown, err := lastThrown(w, "RevertFailure", expected)
				if err != nil {
					return w, err
				}
				if thrown.Code != code || outcome.RevertText(thrown.Message) != expected.Message {
					return w, assertFail(w, "RevertFailure", "wrong revert", thrown.String(), expected.String())
				}
				return w.ConsumeOutcome(), nil
			}),
		NewView("Fails unless the last invocation reverted with the structured code", "RevertCode",
			[]ArgSpec{Arg("error", GetString)},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				expected := outcome.ThrownError{Message: remote.RevertMarker + ": " + args.String("error"), Code: args.String("error")}
				thrown, err := lastThrown(w, "RevertCode", expected)
				if err != nil {
					return w, err
				}
				if thrown.Code != expected.Code {
					return w, assertFail(w, "RevertCode", "wrong error code", thrown.String(), expected.String())
				}
				return w.ConsumeOutcome(), nil
			}),
		NewView("Fails unless the last invocation reverted with message", "Revert",
			[]ArgSpec{Arg("message", GetString, Default(runtime.String("revert")))},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				want := revertPrefix + args.String("message")
				thrown, err := lastThrown(w, "Revert", outcome.ThrownError{Message: want})
				if err != nil {
					return w, err
				}
				if !strings.HasPrefix(thrown.Message, want) {
					return w, assertFail(w, "Revert", "wrong revert message", thrown.Message, want)
				}
				return w.ConsumeOutcome(), nil
			}),
		NewView("Fails unless the last invocation raised an error starting with message", "Error",
			[]ArgSpec{Arg("message", GetString)},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				want := args.String("message")
				thrown, err := lastThrown(w, "Error", outcome.ThrownError{Message: want})
				if err != nil {
					return w, err
				}
				if !strings.HasPrefix(thrown.Message, want) {
					return w, assertFail(w, "Error", "wrong error message", thrown.Message, want)
				}
				return w.ConsumeOutcome(), nil
			}),
		NewView("Fails unless the last invocation, if any, succeeded", "Success", nil,
			func(_ context.Context, w *world.World, _ string, _ Args) (*world.World, error) {
				last := w.LastOutcome()
				if last == nil {
					return w, nil
				}
				if last.Kind() != outcome.KindSuccess {
					return w, assertFail(w, "Success", mismatch(last, outcome.KindSuccess), last.String(), "Success")
				}
				return w.ConsumeOutcome(), nil
			}),
		NewView("Fails unless the last invocation emitted log name with the given fields", "Log",
			[]ArgSpec{Arg("name", GetString), Arg("params", GetMap, Variadic())},
			func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
				last, err := lastOutcome(w, "Log")
				if err != nil {
					return w, err
				}
				name, params := args.String("name"), args.Map("params")
				for _, entry := range outcome.Logs(last) {
					if entry.Name == name && logMatches(entry, params) {
						return w.ConsumeOutcome(), nil
					}
				}
				return w, assertFail(w, "Log", "no matching log", describeLogs(outcome.Logs(last)), name+" "+runtime.Show(params))
			}),
	}
}

func approx(given, expected, tolerance decimal.Decimal) bool {
	if expected.IsZero() {
		return given.IsZero()
	}
	return expected.Sub(given).Abs().LessThanOrEqual(tolerance.Mul(expected.Abs()))
}

func orderAssertion(name string, want runtime.Order) Handler {
	return func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
		given, expected := args.Value("given"), args.Value("expected")
		order, err := runtime.CompareOrder(given, expected)
		if err != nil {
			return w, fmt.Errorf("%s: %w", name, err)
		}
		if order != want {
			return w, assertFail(w, name, fmt.Sprintf("compared %s", order), runtime.Show(given), runtime.Show(expected))
		}
		return w, nil
	}
}

func lastOutcome(w *world.World, command string) (outcome.Outcome, error) {
	last := w.LastOutcome()
	if last == nil {
		return nil, assertFail(w, command, "no invocation has been made", "nothing", command)
	}
	return last, nil
}

func lastThrown(w *world.World, command string, expected outcome.ThrownError) (outcome.ThrownError, error) {
	last, err := lastOutcome(w, command)
	if err != nil {
		return outcome.ThrownError{}, err
	}
	thrown, ok := last.(outcome.ThrownError)
	if !ok {
		return outcome.ThrownError{}, assertFail(w, command, mismatch(last, outcome.KindThrown), last.String(), expected.String())
	}
	return thrown, nil
}

// mismatch names the outcome kinds when they differ.
func mismatch(got outcome.Outcome, want outcome.Kind) string {
	if got.Kind() == want {
		return "outcome differs"
	}
	return fmt.Sprintf("expected %s, got %s", want, got.Kind())
}

func rootMessage(err error) string {
	var msg string
	for err != nil {
		msg = err.Error()
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return msg
}

func logMatches(entry remote.Log, params runtime.MapValue) bool {
	for _, param := range params.Entries {
		raw, ok := entry.Get(param.Key)
		if !ok {
			return false
		}
		got := runtime.FromNative(raw)
		if runtime.ValuesEqual(got, param.Value) {
			continue
		}
		if s, isString := param.Value.(runtime.StringValue); isString && runtime.Show(got) == s.Val {
			continue
		}
		return false
	}
	return true
}

func describeLogs(logs []remote.Log) string {
	if len(logs) == 0 {
		return "no logs"
	}
	names := make([]string, len(logs))
	for idx, entry := range logs {
		names[idx] = entry.Name
	}
	return strings.Join(names, ", ")
}
