package interpreter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/outcome"
	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

// tokenFamily is a minimal command family whose Transfer invokes the fake
// system with the erc20 taxonomy.
func tokenFamily(sys *fakeSystem) Family {
	transfer := NewCommand("Sends tokens", "Transfer",
		[]ArgSpec{Arg("to", GetAddress), Arg("amount", GetNumber)},
		func(ctx context.Context, w *world.World, from string, args Args) (*world.World, error) {
			call := remote.Call{From: from, To: args.Address("to"), Method: "transfer", Value: args.Number("amount")}
			next, _, err := Invoke(ctx, w, Invocation{
				Description: fmt.Sprintf("Transfer %s to %s", args.Number("amount"), DescribeAddress(w, call.To)),
				Taxonomy:    "erc20",
				Call: func(ctx context.Context) (remote.Receipt, error) {
					return sys.Send(ctx, call)
				},
			})
			return next, err
		})
	mock := NewCommand("Sets a storage variable", "Mock",
		[]ArgSpec{Arg("variable", GetString), Arg("value", GetNumber)},
		func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
			switch strings.ToLower(args.String("variable")) {
			case "totalborrows":
				return w.WithAction("Mocked totalBorrows to "+runtime.Show(args.Value("value")), nil), nil
			default:
				return w, fmt.Errorf("Mock %q not defined", args.String("variable"))
			}
		})
	return Family{
		Name:     "Token",
		Commands: NewCommandSet("Token", transfer, mock),
		Fetchers: NewFetcherSet("Token",
			NewFetcher("Balance of who", "Balance", runtime.KindNumber,
				[]ArgSpec{Arg("who", GetAddress)},
				func(ctx context.Context, _ *world.World, args Args) (runtime.Value, error) {
					bal, err := sys.Balance(ctx, args.Address("who"))
					return runtime.Number(bal), err
				})),
	}
}

func newTokenInterpreter(t *testing.T) (*Interpreter, *fakeSystem, *world.World, *recordingPrinter) {
	t.Helper()
	sys := newFakeSystem()
	i := New()
	i.RegisterFamily(tokenFamily(sys))
	w, printer := newTestWorld(t, sys)
	return i, sys, w, printer
}

func TestEqualExactlyZero(t *testing.T) {
	i := New()
	w, _ := newTestWorld(t, newFakeSystem())
	expr := mustParse(t, "(Equal (Exactly 0) Zero)")

	cmd, err := Select(i.Assertions(), expr)
	if err != nil || cmd.Name != "Equal" {
		t.Fatalf("Select = %v, %v; want Equal", cmd, err)
	}
	if _, err := i.Dispatch(context.Background(), i.Assertions(), w, expr, ""); err != nil {
		t.Fatalf("Equal (Exactly 0) Zero failed: %v", err)
	}
	for _, line := range []string{"(Exactly 0)", "Zero"} {
		got, err := i.Resolve(context.Background(), w, mustParse(t, line))
		if err != nil || !runtime.ValuesEqual(got, runtime.Int(0)) {
			t.Fatalf("Resolve(%s) = %v, %v; want Number(0)", line, got, err)
		}
	}
	if _, err := run(t, i, w, "Assert Equal (Exactly 0) Zero"); err != nil {
		t.Fatalf("Assert Equal failed: %v", err)
	}
}

func TestApproxDefaultTolerance(t *testing.T) {
	i := New()
	w, _ := newTestWorld(t, newFakeSystem())
	if _, err := run(t, i, w, "Assert Approx 55.0000001 55"); err != nil {
		t.Fatalf("Approx within default tolerance failed: %v", err)
	}
	if _, err := run(t, i, w, "Assert Approx 56 55 0.1"); err != nil {
		t.Fatalf("Approx within explicit tolerance failed: %v", err)
	}
	_, err := run(t, i, w, "Assert Approx 56 55")
	var failed *AssertionFailed
	if !errors.As(err, &failed) {
		t.Fatalf("error = %v, want *AssertionFailed", err)
	}
	if failed.Given != "56" || failed.Expected != "55" {
		t.Fatalf("AssertionFailed = %+v", failed)
	}
	if _, err := run(t, i, w, "Assert Approx Zero 0"); err != nil {
		t.Fatalf("Approx zero against zero failed: %v", err)
	}
	if _, err := run(t, i, w, "Assert Approx 0.0001 0"); err == nil {
		t.Fatalf("Approx against zero expected must require zero")
	}
}

func TestApproxExactTolerance(t *testing.T) {
	i := New()
	w, _ := newTestWorld(t, newFakeSystem())
	for _, line := range []string{
		"Assert Approx 1.0000000000000000001 1 0",
		"Assert Approx 1.00000000000000001 1 1e-18",
		"Assert Approx 0.99999999999999999 1 1e-18",
	} {
		_, err := run(t, i, w, line)
		var failed *AssertionFailed
		if !errors.As(err, &failed) {
			t.Fatalf("%s: error = %v, want *AssertionFailed", line, err)
		}
	}
	for _, line := range []string{
		"Assert Approx 1 1 0",
		"Assert Approx 1.000000000000000001 1 1e-18",
		"Assert Approx -2.0000000000000000002 -2 1e-18",
	} {
		if _, err := run(t, i, w, line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
}

// vaultFamily exposes a view that always reverts with reason.
func vaultFamily(reason string) Family {
	return Family{
		Name: "Vault",
		Fetchers: NewFetcherSet("Vault",
			NewFetcher("Reverts on read", "Locked", runtime.KindNumber, nil,
				func(context.Context, *world.World, Args) (runtime.Value, error) {
					return nil, remote.Revert(reason)
				})),
	}
}

func TestOutcomeAssertionMatching(t *testing.T) {
	plainRevert := func(sys *fakeSystem) {
		sys.respond(func(remote.Call) (remote.Receipt, error) {
			return remote.Receipt{}, remote.Revert("oops: detail")
		})
	}
	codedRevert := func(sys *fakeSystem) {
		sys.respond(func(remote.Call) (remote.Receipt, error) {
			return remote.Receipt{}, remote.RevertCode("INSUFFICIENT_BALANCE", 7)
		})
	}
	tests := []struct {
		name   string
		setup  func(*fakeSystem)
		line   string
		passes bool
	}{
		{name: "success before any invocation", line: "Assert Success", passes: true},
		{name: "error matches a prefix", setup: plainRevert, line: `Assert Error "VM Exception while processing transaction: revert oops"`, passes: true},
		{name: "error matches the whole message", setup: plainRevert, line: `Assert Error "VM Exception while processing transaction: revert oops: detail"`, passes: true},
		{name: "error is not a substring match", setup: plainRevert, line: `Assert Error "revert oops"`},
		{name: "revert matches a prefix", setup: plainRevert, line: `Assert Revert "revert oops"`, passes: true},
		{name: "revert failure exact message", setup: codedRevert, line: `Assert RevertFailure INSUFFICIENT_BALANCE "revert"`, passes: true},
		{name: "revert failure partial message", setup: codedRevert, line: `Assert RevertFailure INSUFFICIENT_BALANCE "rev"`},
		{name: "revert failure wrong code", setup: codedRevert, line: `Assert RevertFailure INSUFFICIENT_ALLOWANCE "revert"`},
		{name: "read revert exact message", line: `Assert ReadRevert (Vault Locked) "revert oops: detail"`, passes: true},
		{name: "read revert prefix only", line: `Assert ReadRevert (Vault Locked) "revert oops"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			i, sys, w, _ := newTokenInterpreter(t)
			i.RegisterFamily(vaultFamily("oops: detail"))
			lines := []string{tc.line}
			if tc.setup != nil {
				tc.setup(sys)
				lines = []string{"Token Transfer Torrey 1", tc.line}
			}
			_, err := run(t, i, w, lines...)
			if tc.passes {
				if err != nil {
					t.Fatalf("%s: %v", tc.line, err)
				}
				return
			}
			var failed *AssertionFailed
			if !errors.As(err, &failed) {
				t.Fatalf("%s: error = %v, want *AssertionFailed", tc.line, err)
			}
		})
	}
}

func TestStructuredRevert(t *testing.T) {
	i, sys, w, _ := newTokenInterpreter(t)
	sys.respond(func(remote.Call) (remote.Receipt, error) {
		return remote.Receipt{}, remote.RevertCode("INSUFFICIENT_BALANCE", 7)
	})
	w, err := run(t, i, w, "Token Transfer Torrey 500")
	if err != nil {
		t.Fatalf("Transfer error: %v", err)
	}
	thrown, ok := w.LastOutcome().(outcome.ThrownError)
	if !ok || thrown.Code != "INSUFFICIENT_BALANCE" {
		t.Fatalf("LastOutcome = %v, want ThrownError with INSUFFICIENT_BALANCE", w.LastOutcome())
	}

	for _, line := range []string{
		"Assert Revert \"revert: INSUFFICIENT_BALANCE (7)\"",
		"Assert Revert",
		"Assert RevertCode INSUFFICIENT_BALANCE",
		"Assert RevertFailure INSUFFICIENT_BALANCE",
		"Assert RevertFailure INSUFFICIENT_BALANCE \"revert\"",
		fmt.Sprintf("Assert Error %q", remote.RevertMarker+": INSUFFICIENT_BALANCE (7)"),
	} {
		if _, err := run(t, i, w, line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}

	_, err = run(t, i, w, "Assert Failure INSUFFICIENT_BALANCE NO_ERROR")
	var failed *AssertionFailed
	if !errors.As(err, &failed) {
		t.Fatalf("error = %v, want *AssertionFailed", err)
	}
	if failed.Reason != "expected Failure, got ThrownError" {
		t.Fatalf("Reason = %q", failed.Reason)
	}
	if !strings.Contains(failed.Given, "INSUFFICIENT_BALANCE") {
		t.Fatalf("Given = %q", failed.Given)
	}
	if len(failed.Actions) != 1 || failed.Actions[0].Description != "Transfer 500 to Torrey" {
		t.Fatalf("Actions = %v", failed.Actions)
	}
}

func TestGracefulFailureAssertion(t *testing.T) {
	i, sys, w, _ := newTokenInterpreter(t)
	sys.respond(func(remote.Call) (remote.Receipt, error) {
		return remote.Receipt{Logs: []remote.Log{{Name: remote.FailureLog, Fields: []remote.Field{
			{Name: "error", Value: decimal.NewFromInt(7)},
			{Name: "info", Value: decimal.NewFromInt(0)},
			{Name: "detail", Value: decimal.NewFromInt(0)},
		}}}}, nil
	})
	w, err := run(t, i, w, "Token Transfer Torrey 1")
	if err != nil {
		t.Fatalf("Transfer error: %v", err)
	}
	_, err = run(t, i, w, "Assert Revert")
	var failed *AssertionFailed
	if !errors.As(err, &failed) || failed.Reason != "expected ThrownError, got Failure" {
		t.Fatalf("Assert Revert on a Failure: %v", err)
	}
	if _, err := run(t, i, w, "Assert Failure INSUFFICIENT_BALANCE 0"); err != nil {
		t.Fatalf("Assert Failure: %v", err)
	}
}

func TestMockUnknownVariableIsHandlerError(t *testing.T) {
	i, _, w, _ := newTokenInterpreter(t)
	set := i.Families()[0].Commands

	cmd, err := Select(set, mustParse(t, "Mock totalBorrows 5.0e18"))
	if err != nil || cmd.Name != "Mock" {
		t.Fatalf("Select = %v, %v", cmd, err)
	}
	var got Args
	spy := *cmd
	spy.Handler = func(_ context.Context, w *world.World, _ string, args Args) (*world.World, error) {
		got = args
		return w, nil
	}
	if _, err := i.Dispatch(context.Background(), NewCommandSet("spy", &spy), w, mustParse(t, "Mock totalBorrows 5.0e18"), geoff); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if got.String("variable") != "totalBorrows" || !got.Number("value").Equal(decimal.New(5, 18)) {
		t.Fatalf("args = %v", got)
	}

	next, err := run(t, i, w, "Token Mock totalBorrows 5.0e18")
	if err != nil {
		t.Fatalf("Mock totalBorrows: %v", err)
	}
	if actions := next.Actions(); len(actions) != 1 || actions[0].Description != "Mocked totalBorrows to 5e18" {
		t.Fatalf("Actions = %v", actions)
	}

	_, err = run(t, i, w, "Token Mock bogus 5.0e18")
	if err == nil || IsScriptError(err) {
		t.Fatalf("Mock bogus error = %v, want a handler error", err)
	}
	var noMatch *NoMatchingCommand
	var argErr *ArgumentResolutionError
	if errors.As(err, &noMatch) || errors.As(err, &argErr) {
		t.Fatalf("Mock bogus failed at dispatch time: %v", err)
	}
	if !strings.Contains(err.Error(), `Mock "bogus" not defined`) {
		t.Fatalf("error = %v", err)
	}
}

func TestInvokeRecordsExactlyOneOutcome(t *testing.T) {
	sys := newFakeSystem()
	w, _ := newTestWorld(t, sys)
	w = w.WithStrictOutcomes(false)
	results := []func(remote.Call) (remote.Receipt, error){
		func(remote.Call) (remote.Receipt, error) {
			return remote.Receipt{Return: "0x00000000000000000000000000000000000000AA"}, nil
		},
		func(remote.Call) (remote.Receipt, error) { return remote.Receipt{}, errors.New("socket closed") },
		func(remote.Call) (remote.Receipt, error) {
			return remote.Receipt{Logs: []remote.Log{{Name: remote.FailureLog, Fields: []remote.Field{{Name: "error", Value: 1}}}}}, nil
		},
	}
	wantKinds := []outcome.Kind{outcome.KindSuccess, outcome.KindThrown, outcome.KindFailure}
	for idx, fn := range results {
		sys.respond(fn)
		calls := len(sys.sends)
		next, got, err := Invoke(context.Background(), w, Invocation{
			Description: fmt.Sprintf("call %d", idx),
			Call: func(ctx context.Context) (remote.Receipt, error) {
				return sys.Send(ctx, remote.Call{From: geoff})
			},
		})
		if err != nil {
			t.Fatalf("Invoke error: %v", err)
		}
		if len(sys.sends) != calls+1 {
			t.Fatalf("remote called %d times, want once", len(sys.sends)-calls)
		}
		if got == nil || got.Kind() != wantKinds[idx] || next.LastOutcome().String() != got.String() {
			t.Fatalf("outcome = %v, want %s recorded as last outcome", got, wantKinds[idx])
		}
		if len(next.Actions()) != len(w.Actions())+1 {
			t.Fatalf("actions grew by %d", len(next.Actions())-len(w.Actions()))
		}
		w = next
	}
	var descriptions []string
	for _, action := range w.Actions() {
		descriptions = append(descriptions, action.String())
	}
	want := []string{
		"call 0: Success(0x00000000000000000000000000000000000000aa)",
		"call 1: ThrownError(socket closed)",
		"call 2: Failure(error=1, info=, detail=)",
	}
	if diff := cmp.Diff(want, descriptions); diff != "" {
		t.Fatalf("action log mismatch (-want +got):\n%s", diff)
	}
}

func TestStrictOutcomes(t *testing.T) {
	i, sys, w, _ := newTokenInterpreter(t)
	sys.respond(func(remote.Call) (remote.Receipt, error) { return remote.Receipt{}, remote.Revert("") })

	w, err := run(t, i, w, "Token Transfer Torrey 1")
	if err != nil {
		t.Fatalf("Transfer error: %v", err)
	}
	if err := i.Finish(w); err == nil {
		t.Fatalf("Finish accepted an unasserted revert")
	}
	_, err = run(t, i, w, "Token Transfer Torrey 1")
	var unhandled *UnhandledOutcome
	if !errors.As(err, &unhandled) || unhandled.Action != "Transfer 1 to Torrey" {
		t.Fatalf("error = %v, want *UnhandledOutcome", err)
	}

	w, err = run(t, i, w, "Assert Revert", "Token Transfer Torrey 1")
	if err != nil {
		t.Fatalf("asserted revert then transfer: %v", err)
	}
	if err := i.Finish(w); err != nil {
		t.Fatalf("Finish after success: %v", err)
	}
	if _, err := run(t, i, w.WithStrictOutcomes(false), "Token Transfer Torrey 1000", "Token Transfer Torrey 1"); err != nil {
		t.Fatalf("lenient run: %v", err)
	}
}
