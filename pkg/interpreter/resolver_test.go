package interpreter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/outcome"
	"scenario/interpreter-go/pkg/runtime"
)

func TestResolveAtoms(t *testing.T) {
	i := New()
	w, _ := newTestWorld(t, newFakeSystem())
	cases := []struct {
		atom *ast.Atom
		want runtime.Value
	}{
		{ast.NewAtom("True"), runtime.True},
		{ast.NewAtom("Nothing"), runtime.Nothing},
		{ast.NewAtom("Me"), runtime.AddressValue{Val: geoff}},
		{ast.NewAtom("Geoff"), runtime.AddressValue{Val: geoff}},
		{ast.NewAtom("0x00000000000000000000000000000000000000Ab"), runtime.AddressValue{Val: "0x00000000000000000000000000000000000000ab"}},
		{ast.NewAtom("5.0e18"), runtime.Number(decimal.New(5, 18))},
		{ast.NewAtom("-1.5"), runtime.Number(decimal.RequireFromString("-1.5"))},
		{ast.NewAtom("1_000"), runtime.Int(1000)},
		{ast.NewAtom("ZRX"), runtime.String("ZRX")},
		{ast.NewQuoted("True"), runtime.String("True")},
		{ast.NewQuoted("10"), runtime.String("10")},
	}
	for _, tc := range cases {
		got, err := i.Resolve(context.Background(), w, tc.atom)
		if err != nil {
			t.Fatalf("Resolve(%s) error: %v", tc.atom, err)
		}
		if !runtime.ValuesEqual(got, tc.want) || got.Kind() != tc.want.Kind() {
			t.Fatalf("Resolve(%s) = %s, want %s", tc.atom, runtime.Describe(got), runtime.Describe(tc.want))
		}
	}
}

func TestResolveSequences(t *testing.T) {
	i := New()
	w, _ := newTestWorld(t, newFakeSystem())
	cases := []struct {
		line string
		want runtime.Value
	}{
		{"(Exp 1.5)", runtime.Number(decimal.RequireFromString("1500000000000000000"))},
		{"(Add 1 (Mul 2 3))", runtime.Int(7)},
		{"(Sub 1 2)", runtime.Int(-1)},
		{"(Div 1 4)", runtime.Number(decimal.RequireFromString("0.25"))},
		{"(Min 3 (Max 1 2))", runtime.Int(2)},
		{"(List 1 \"a\" True)", runtime.List(runtime.Int(1), runtime.String("a"), runtime.True)},
		{"(Map (a 1) (b Geoff))", runtime.NewMap(
			runtime.MapEntry{Key: "b", Value: runtime.AddressValue{Val: geoff}},
			runtime.MapEntry{Key: "a", Value: runtime.Int(1)},
		)},
		{"(Equal (Exactly 2) 2.0)", runtime.True},
		{"(User Torrey Address)", runtime.AddressValue{Val: torrey}},
		{"(Default (Bogus 1) 9)", runtime.Int(9)},
		{"(Default 4 9)", runtime.Int(4)},
		{"((Exactly 3))", runtime.Int(3)},
		{"(Balance Geoff)", runtime.Int(100)},
		{"MyAddress", runtime.AddressValue{Val: geoff}},
	}
	for _, tc := range cases {
		got, err := i.Resolve(context.Background(), w, mustParse(t, tc.line))
		if err != nil {
			t.Fatalf("Resolve(%s) error: %v", tc.line, err)
		}
		if !runtime.ValuesEqual(got, tc.want) {
			t.Fatalf("Resolve(%s) = %s, want %s", tc.line, runtime.Describe(got), runtime.Describe(tc.want))
		}
	}
}

func TestResolveErrors(t *testing.T) {
	i := New()
	w, _ := newTestWorld(t, newFakeSystem())
	cases := []struct {
		line string
		want string
	}{
		{"(Exactly abc)", "expected Number"},
		{"(Exactly)", "Exactly"},
		{"(Div 1 0)", "division by zero"},
		{"(Lsit 1 2)", `did you mean "List"`},
		{"(List 1 (Bogus 2))", "Bogus"},
		{"LastResult", "last outcome"},
		{"(Exp 1e4090)", "exponent out of range"},
		{"(Exp 1e2147483640)", "exponent out of range"},
		{"1e20000000", "exponent out of range"},
	}
	for _, tc := range cases {
		_, err := i.Resolve(context.Background(), w, mustParse(t, tc.line))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("Resolve(%s) error = %v, want it to mention %q", tc.line, err, tc.want)
		}
	}
	_, err := i.Resolve(context.Background(), w, mustParse(t, "(Div 1 0)"))
	if !errors.Is(err, runtime.ErrDivisionByZero) {
		t.Fatalf("Div by zero error = %v", err)
	}
}

func TestResolveLastOutcome(t *testing.T) {
	i := New()
	w, _ := newTestWorld(t, newFakeSystem())
	w = w.WithOutcome(outcome.Success{Value: runtime.Int(42)})
	got, err := i.Resolve(context.Background(), w, mustParse(t, "LastResult"))
	if err != nil || !runtime.ValuesEqual(got, runtime.Int(42)) {
		t.Fatalf("LastResult = %v, %v", got, err)
	}
	got, err = i.Resolve(context.Background(), w, mustParse(t, "LastOutcome"))
	if err != nil {
		t.Fatalf("LastOutcome error: %v", err)
	}
	kind, _ := got.(runtime.MapValue).Get("kind")
	if !runtime.ValuesEqual(kind, runtime.String("Success")) {
		t.Fatalf("LastOutcome = %s", runtime.Show(got))
	}
}

func TestTypedGetters(t *testing.T) {
	i := New()
	w, _ := newTestWorld(t, newFakeSystem())
	ctx := context.Background()

	if _, err := GetAddress(ctx, i, w, ast.NewAtom("Nobody")); err == nil || !strings.Contains(err.Error(), `unknown alias "Nobody"`) {
		t.Fatalf("GetAddress(Nobody) error = %v", err)
	}
	if _, err := GetAddress(ctx, i, w, ast.NewAtom("Torrie")); err == nil || !strings.Contains(err.Error(), `"Torrey"`) {
		t.Fatalf("GetAddress(Torrie) should suggest Torrey: %v", err)
	}
	if got, err := GetString(ctx, i, w, ast.NewAtom("Geoff")); err != nil || !runtime.ValuesEqual(got, runtime.String("Geoff")) {
		t.Fatalf("GetString(Geoff) = %v, %v", got, err)
	}
	if got, err := GetBool(ctx, i, w, ast.NewAtom("false")); err != nil || !runtime.ValuesEqual(got, runtime.False) {
		t.Fatalf("GetBool(false) = %v, %v", got, err)
	}
	if _, err := GetBool(ctx, i, w, ast.NewAtom("3")); err == nil {
		t.Fatalf("GetBool(3) accepted a Number")
	}
	if _, err := GetNumber(ctx, i, w, ast.NewQuoted("x")); err == nil {
		t.Fatalf("GetNumber(\"x\") accepted a String")
	}
	got, err := GetNumber(ctx, i, w, ast.NewQuoted("12"))
	if err != nil || !runtime.ValuesEqual(got, runtime.Int(12)) {
		t.Fatalf("GetNumber(\"12\") = %v, %v", got, err)
	}
	expr := mustParse(t, "(Print 1)")
	got, err = GetEvent(ctx, i, w, expr)
	if err != nil || got.(runtime.EventValue).Expr != expr {
		t.Fatalf("GetEvent = %v, %v", got, err)
	}
}

func TestRoundTripThroughResolver(t *testing.T) {
	i := New()
	w, _ := newTestWorld(t, newFakeSystem())
	for _, text := range []string{"0", "-0.5", "123456789012345678901234567890.000000000000000001", "5e18", "1e-18"} {
		n := runtime.Number(decimal.RequireFromString(text))
		got, err := i.Resolve(context.Background(), w, ast.NewAtom(runtime.Format(n)))
		if err != nil || !runtime.ValuesEqual(got, n) {
			t.Fatalf("resolve(render(%s)) = %v, %v", text, got, err)
		}
	}
}
