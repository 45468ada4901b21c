package world

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/outcome"
	"scenario/interpreter-go/pkg/runtime"
)

type staticChecker struct {
	kind string
}

func (c staticChecker) Kind() string                        { return c.kind }
func (c staticChecker) String() string                      { return c.kind + "Invariant" }
func (c staticChecker) Check(context.Context, *World) error { return nil }

func TestWithMethodsLeaveParentUntouched(t *testing.T) {
	base := New(Config{Aliases: map[string]string{"Geoff": "0x01"}})
	next := base.WithAlias("Torrey", "0x02").
		WithAction("Print hi", nil).
		WithOutcome(outcome.ThrownError{Message: "boom"}).
		WithTrxValue(decimal.NewFromInt(5))

	if _, ok := base.Alias("Torrey"); ok {
		t.Fatalf("parent world saw child alias")
	}
	if len(base.Actions()) != 0 || base.LastOutcome() != nil || base.Trx().HasValue {
		t.Fatalf("parent world changed: %v %v %v", base.Actions(), base.LastOutcome(), base.Trx())
	}
	if addr, ok := next.Alias("Torrey"); !ok || addr != "0x02" {
		t.Fatalf("Alias(Torrey) = %q, %v", addr, ok)
	}
	if next.OutcomeConsumed() {
		t.Fatalf("thrown outcome should start unconsumed")
	}
	if !next.ConsumeOutcome().OutcomeConsumed() {
		t.Fatalf("ConsumeOutcome did not mark consumption")
	}
	if !next.WithOutcome(outcome.Success{}).OutcomeConsumed() {
		t.Fatalf("success outcomes need no assertion")
	}
}

func TestActionsAppendInOrder(t *testing.T) {
	w := New(Config{})
	w = w.WithAction("first", nil)
	branch := w.WithAction("second", outcome.Success{Value: runtime.Int(1)})
	other := w.WithAction("other", nil)

	got := []string{}
	for _, a := range branch.Actions() {
		got = append(got, a.String())
	}
	want := []string{"first", "second: Success(1)"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("actions mismatch (-want +got):\n%s", diff)
	}
	if len(other.Actions()) != 2 || other.Actions()[1].Description != "other" {
		t.Fatalf("sibling branch shares action storage: %v", other.Actions())
	}
}

func TestInvariantHoldAndClear(t *testing.T) {
	w := New(Config{}).WithInvariant(staticChecker{"Static"}).WithInvariant(staticChecker{"Success"})
	held := w.HoldInvariants("Static")
	if !held.Held("static") || held.Held("Success") {
		t.Fatalf("Held mismatch")
	}
	if held.ReleaseHolds().Held("Static") {
		t.Fatalf("ReleaseHolds kept hold")
	}
	if got := len(w.ClearInvariants("Success").Invariants()); got != 1 {
		t.Fatalf("ClearInvariants(Success) left %d", got)
	}
	if got := len(w.ClearInvariants("All").Invariants()); got != 0 {
		t.Fatalf("ClearInvariants(All) left %d", got)
	}
}

func TestSlotLookups(t *testing.T) {
	w := New(Config{Aliases: map[string]string{"Geoff": "0xg"}, DefaultFrom: "Geoff"})
	w = w.WithContract(ContractRef{Family: "CToken", Name: "cZRX", Address: "0xc"})

	cases := map[string]string{"Me": "0xg", "Geoff": "0xg", "CToken.cZRX": "0xc"}
	for slot, want := range cases {
		got, ok := w.Slot(slot)
		if !ok || !runtime.ValuesEqual(got, runtime.AddressValue{Val: want}) {
			t.Fatalf("Slot(%s) = %v, %v; want %s", slot, got, ok, want)
		}
	}
	if _, ok := w.Slot("Nobody"); ok {
		t.Fatalf("Slot(Nobody) should be missing")
	}
	if ref, ok := w.ContractAt("0xC"); !ok || ref.Name != "cZRX" {
		t.Fatalf("ContractAt = %v, %v", ref, ok)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := SettingsPath(dir, "development")
	settings, err := LoadSettings(path, "development")
	if err != nil {
		t.Fatalf("LoadSettings missing file: %v", err)
	}
	w := New(Config{Settings: settings}).WithAlias("Bank", "0xb")
	if err := w.SaveSettings(); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	if !strings.Contains(string(data), "Bank:") {
		t.Fatalf("settings file = %q", data)
	}
	reloaded, err := LoadSettings(path, "development")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Aliases["Bank"] != "0xb" {
		t.Fatalf("reloaded aliases = %v", reloaded.Aliases)
	}
}

func TestLoadSettingsRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("aliasez: {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSettings(path, "x"); err == nil || !strings.Contains(err.Error(), "settings: parse") {
		t.Fatalf("LoadSettings err = %v", err)
	}
}

func TestConsolePrinter(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewConsolePrinter(&out, &errOut)
	p.PrintValue(runtime.Int(5000000000000000000))
	p.PrintError(errors.New("bad"))
	if out.String() != "5e18\n" || errOut.String() != "bad\n" {
		t.Fatalf("printer wrote %q / %q", out.String(), errOut.String())
	}
}
