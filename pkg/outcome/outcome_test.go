package outcome

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
)

func failureLog(errCode, info, detail int64) remote.Log {
	return remote.Log{Name: remote.FailureLog, Fields: []remote.Field{
		{Name: "error", Value: decimal.NewFromInt(errCode)},
		{Name: "info", Value: decimal.NewFromInt(info)},
		{Name: "detail", Value: decimal.NewFromInt(detail)},
	}}
}

func TestClassifyStructuredRevert(t *testing.T) {
	reg := DefaultRegistry()
	err := remote.RevertCode("INSUFFICIENT_BALANCE", 7)
	got := Classify(remote.Receipt{}, err, reg.Get("erc20"))
	thrown, ok := got.(ThrownError)
	if !ok {
		t.Fatalf("Classify = %s, want ThrownError", got)
	}
	if thrown.Code != "INSUFFICIENT_BALANCE" {
		t.Fatalf("Code = %q, want INSUFFICIENT_BALANCE", thrown.Code)
	}
	if !strings.HasSuffix(thrown.Message, ": INSUFFICIENT_BALANCE (7)") {
		t.Fatalf("Message = %q", thrown.Message)
	}
}

func TestClassifyUnrecognisedRevertHasNoCode(t *testing.T) {
	reg := DefaultRegistry()
	cases := []error{
		remote.RevertCode("NOT_A_CODE", 99),
		remote.Revert(""),
		errors.New("connection refused"),
	}
	for _, err := range cases {
		got := Classify(remote.Receipt{}, err, reg.Get("erc20"))
		thrown, ok := got.(ThrownError)
		if !ok || thrown.Code != "" {
			t.Fatalf("Classify(%v) = %s, want uncoded ThrownError", err, got)
		}
	}
	if code := StructuredCode(remote.RevertCode("INSUFFICIENT_BALANCE", 7).Error(), nil); code != "" {
		t.Fatalf("nil taxonomy recognised %q", code)
	}
}

func TestClassifyCodesOnlyReverts(t *testing.T) {
	reg := DefaultRegistry()
	err := errors.New(remote.RevertCode("INSUFFICIENT_BALANCE", 7).Error())
	got := Classify(remote.Receipt{}, err, reg.Get("erc20"))
	if thrown, ok := got.(ThrownError); !ok || thrown.Code != "" {
		t.Fatalf("Classify(plain error) = %s, want uncoded ThrownError", got)
	}
	wrapped := fmt.Errorf("send: %w", remote.RevertCode("INSUFFICIENT_BALANCE", 7))
	got = Classify(remote.Receipt{}, wrapped, reg.Get("erc20"))
	if thrown, ok := got.(ThrownError); !ok || thrown.Code != "INSUFFICIENT_BALANCE" {
		t.Fatalf("Classify(wrapped revert) = %s", got)
	}
}

func TestRevertText(t *testing.T) {
	cases := map[string]string{
		remote.RevertCode("INSUFFICIENT_BALANCE", 7).Error(): remote.RevertMarker,
		remote.Revert("oops").Error():                        remote.RevertMarker + " oops",
		"boom":                                               "boom",
	}
	for in, want := range cases {
		if got := RevertText(in); got != want {
			t.Fatalf("RevertText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSummary(t *testing.T) {
	tax := DefaultRegistry().Get("ctoken")
	cases := []struct {
		in   Outcome
		want string
	}{
		{Success{Value: runtime.Int(14)}, "Success(Error=TOKEN_INSUFFICIENT_CASH)"},
		{Success{Value: runtime.Int(0)}, "Success(Result=0)"},
		{Success{Value: runtime.True}, "Success(True)"},
		{Success{}, "Success"},
		{ThrownError{Message: "boom"}, ThrownError{Message: "boom"}.String()},
	}
	for _, tc := range cases {
		if got := Summary(tc.in, tax); got != tc.want {
			t.Fatalf("Summary(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClassifyFailureLog(t *testing.T) {
	reg := DefaultRegistry()
	receipt := remote.Receipt{Logs: []remote.Log{failureLog(3, 2, 4)}}
	got := Classify(receipt, nil, reg.Get("ctoken"))
	failure, ok := got.(Failure)
	if !ok {
		t.Fatalf("Classify = %s, want Failure", got)
	}
	want := Failure{ErrorCode: "COMPTROLLER_REJECTION", SubCode: "BORROW_COMPTROLLER_REJECTION", Detail: "INSUFFICIENT_LIQUIDITY"}
	if diff := cmp.Diff(want, failure, cmpIgnoreLogs); diff != "" {
		t.Fatalf("failure mismatch (-want +got):\n%s", diff)
	}
	if !failure.Matches("COMPTROLLER_REJECTION", "BORROW_COMPTROLLER_REJECTION", "INSUFFICIENT_LIQUIDITY") {
		t.Fatalf("Matches returned false")
	}
}

var cmpIgnoreLogs = cmp.FilterPath(func(p cmp.Path) bool {
	return p.Last().String() == ".Logs"
}, cmp.Ignore())

func TestClassifyFailureWithoutTaxonomyUsesNumbers(t *testing.T) {
	got := Classify(remote.Receipt{Logs: []remote.Log{failureLog(13, 7, 0)}}, nil, nil)
	failure := got.(Failure)
	if failure.ErrorCode != "13" || failure.SubCode != "7" || failure.Detail != "0" {
		t.Fatalf("failure = %s", failure)
	}
	if !failure.Matches("13", "7", "") {
		t.Fatalf("empty expected detail should match 0")
	}
}

func TestClassifySuccess(t *testing.T) {
	got := Classify(remote.Receipt{Return: decimal.NewFromInt(5)}, nil, nil)
	success, ok := got.(Success)
	if !ok || !runtime.ValuesEqual(success.Value, runtime.Int(5)) {
		t.Fatalf("Classify = %s, want Success(5)", got)
	}
}

func TestClassifyIsExclusive(t *testing.T) {
	reg := DefaultRegistry()
	inputs := []struct {
		receipt remote.Receipt
		err     error
		want    Kind
	}{
		{remote.Receipt{}, nil, KindSuccess},
		{remote.Receipt{Logs: []remote.Log{failureLog(1, 0, 0)}}, nil, KindFailure},
		{remote.Receipt{Logs: []remote.Log{failureLog(1, 0, 0)}}, remote.Revert(""), KindThrown},
	}
	for _, in := range inputs {
		got := Classify(in.receipt, in.err, reg.Get("ctoken"))
		if got == nil || got.Kind() != in.want {
			t.Fatalf("Classify kind = %v, want %s", got, in.want)
		}
	}
}

func TestTaxonomyLookups(t *testing.T) {
	tax := DefaultRegistry().Get("CToken")
	if tax == nil {
		t.Fatalf("ctoken taxonomy missing")
	}
	if code, ok := tax.ErrorCode("TOKEN_INSUFFICIENT_CASH"); !ok || code != 14 {
		t.Fatalf("ErrorCode = %d, %v", code, ok)
	}
	if name, ok := tax.InfoName(5); !ok || name != "MINT_TRANSFER_IN_NOT_POSSIBLE" {
		t.Fatalf("InfoName(5) = %q, %v", name, ok)
	}
	if got := tax.DetailName(14, 4); got != "4" {
		t.Fatalf("DetailName outside rejection = %q, want 4", got)
	}
	if got := tax.FormatResult(14); got != "Error=TOKEN_INSUFFICIENT_CASH" {
		t.Fatalf("FormatResult(14) = %q", got)
	}
	if got := tax.FormatResult(0); got != "Result=0" {
		t.Fatalf("FormatResult(0) = %q", got)
	}
	var none *Taxonomy
	if got := none.FormatResult(3); got != "Result=3" {
		t.Fatalf("nil FormatResult = %q", got)
	}
}

func TestLoadRegistryRejectsDuplicateCodes(t *testing.T) {
	doc := `
taxonomies:
  - name: broken
    errors:
      A: 1
      B: 1
`
	if _, err := LoadRegistry(strings.NewReader(doc)); err == nil || !strings.Contains(err.Error(), "code 1") {
		t.Fatalf("LoadRegistry err = %v, want duplicate code error", err)
	}
}

func TestMergeFileReplacesAndRelinks(t *testing.T) {
	reg := DefaultRegistry()
	path := t.TempDir() + "/extra.yml"
	doc := `
taxonomies:
  - name: comptroller
    errors:
      NO_ERROR: 0
      CUSTOM_REJECT: 4
`
	if err := writeFile(path, doc); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := reg.MergeFile(path); err != nil {
		t.Fatalf("MergeFile: %v", err)
	}
	if got := reg.Get("ctoken").DetailName(3, 4); got != "CUSTOM_REJECT" {
		t.Fatalf("DetailName via replaced table = %q", got)
	}
}

func TestAsValue(t *testing.T) {
	v := AsValue(ThrownError{Message: "boom"})
	m, ok := v.(runtime.MapValue)
	if !ok {
		t.Fatalf("AsValue = %s", runtime.Describe(v))
	}
	if code, _ := m.Get("code"); !runtime.ValuesEqual(code, runtime.Nothing) {
		t.Fatalf("code = %s, want Nothing", runtime.Format(code))
	}
}
