package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scenario/interpreter-go/pkg/ast"
)

func atoms(texts ...string) []ast.Expression {
	out := make([]ast.Expression, len(texts))
	for i, text := range texts {
		out[i] = ast.NewAtom(text)
	}
	return out
}

func TestParseLineShapes(t *testing.T) {
	cases := []struct {
		line string
		want ast.Expression
	}{
		{"MineBlock", ast.NewSequence(ast.NewAtom("MineBlock"))},
		{"(Equal (Exactly 0) Zero)", ast.NewSequence(
			ast.NewAtom("Equal"),
			ast.NewSequence(atoms("Exactly", "0")...),
			ast.NewAtom("Zero"),
		)},
		{"Assert Equal (Exactly 0) Zero -- trailing comment", ast.NewSequence(
			ast.NewAtom("Assert"),
			ast.NewAtom("Equal"),
			ast.NewSequence(atoms("Exactly", "0")...),
			ast.NewAtom("Zero"),
		)},
		{`Erc20 Deploy ZRX "0x Token" [1 2]`, ast.NewSequence(
			ast.NewAtom("Erc20"),
			ast.NewAtom("Deploy"),
			ast.NewAtom("ZRX"),
			ast.NewQuoted("0x Token"),
			ast.NewSequence(atoms("1", "2")...),
		)},
		{`Print "say \"hi\""`, ast.NewSequence(ast.NewAtom("Print"), ast.NewQuoted(`say "hi"`))},
		{"Expect Changes (Balance Geoff) -10", ast.NewSequence(
			ast.NewAtom("Expect"),
			ast.NewAtom("Changes"),
			ast.NewSequence(atoms("Balance", "Geoff")...),
			ast.NewAtom("-10"),
		)},
	}
	for _, tc := range cases {
		got, err := ParseLine(tc.line)
		if err != nil {
			t.Fatalf("ParseLine(%q) error: %v", tc.line, err)
		}
		if !ast.Equal(got, tc.want) {
			t.Fatalf("ParseLine(%q) = %s, want %s", tc.line, got, tc.want)
		}
	}
}

func TestParseLineBlank(t *testing.T) {
	for _, line := range []string{"", "   ", "-- only a comment", "\t-- indented comment"} {
		got, err := ParseLine(line)
		if err != nil || got != nil {
			t.Fatalf("ParseLine(%q) = %v, %v; want nil, nil", line, got, err)
		}
	}
}

func TestParseLineErrors(t *testing.T) {
	cases := []struct {
		line   string
		column int
		msg    string
	}{
		{"(Equal 1 2", 11, "missing"},
		{"Equal 1 2)", 10, "unexpected"},
		{`Print "open`, 7, "unterminated string"},
		{"(Equal [1 2) 3", 12, "unexpected"},
	}
	for _, tc := range cases {
		_, err := ParseLine(tc.line)
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("ParseLine(%q) error = %v, want *ParseError", tc.line, err)
		}
		if perr.Column != tc.column || !strings.Contains(perr.Message, tc.msg) {
			t.Fatalf("ParseLine(%q) = %d %q, want column %d containing %q", tc.line, perr.Column, perr.Message, tc.column, tc.msg)
		}
	}
}

func TestParseLineSpans(t *testing.T) {
	got, err := ParseLine("Assert Equal (Exactly 0) Zero")
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	seq := got.(*ast.Sequence)
	inner := seq.Elements[2]
	want := ast.Span{Start: ast.Position{Line: 1, Column: 14}, End: ast.Position{Line: 1, Column: 25}}
	if diff := cmp.Diff(want, inner.Span()); diff != "" {
		t.Fatalf("span mismatch (-want +got):\n%s", diff)
	}
}

func TestParseScriptBlocks(t *testing.T) {
	src := `-- setup
Print "loose"

Test "transfers"
    Erc20 Deploy ZRX "0x"
    Assert Success

Pending "later"
    Print "todo"

Skip "broken"
  (Throw "nope")
`
	script, err := ParseScript("demo.scen", strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseScript error: %v", err)
	}
	type summary struct {
		Name  string
		Mode  string
		Line  int
		Steps []string
	}
	var got []summary
	for _, test := range script.Tests {
		s := summary{Name: test.Name, Mode: test.Mode.String(), Line: test.Line}
		for _, step := range test.Steps {
			s.Steps = append(s.Steps, ast.FormatLine(step))
		}
		got = append(got, s)
	}
	want := []summary{
		{Name: "demo.scen", Mode: "run", Line: 2, Steps: []string{`Print "loose"`}},
		{Name: "transfers", Mode: "run", Line: 4, Steps: []string{`Erc20 Deploy ZRX "0x"`, "Assert Success"}},
		{Name: "later", Mode: "pending", Line: 8, Steps: []string{`Print "todo"`}},
		{Name: "broken", Mode: "skip", Line: 11, Steps: []string{`Throw "nope"`}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tests mismatch (-want +got):\n%s", diff)
	}
	if line := ast.Line(script.Tests[1].Steps[1]); line != 6 {
		t.Fatalf("step line = %d, want 6", line)
	}
}

func TestParseScriptReportsPath(t *testing.T) {
	_, err := ParseScript("bad.scen", strings.NewReader("Test \"x\"\n    (Print\n"))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if perr.Path != "bad.scen" || perr.Line != 2 {
		t.Fatalf("ParseError = %+v", perr)
	}
	if !strings.HasPrefix(err.Error(), "bad.scen:2:") {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestSubstitute(t *testing.T) {
	env := map[string]string{"USER": "Geoff", "AMOUNT": "10"}
	got := Substitute("From $USER (Erc20 ZRX Transfer $OTHER $AMOUNT) -- $AMOUNTS", env)
	want := "From Geoff (Erc20 ZRX Transfer Nothing 10) -- Nothing"
	if got != want {
		t.Fatalf("Substitute = %q, want %q", got, want)
	}
}

func TestParseLines(t *testing.T) {
	got, err := ParseLines("Print \"a\"\n\n-- skip\nMineBlock")
	if err != nil {
		t.Fatalf("ParseLines error: %v", err)
	}
	if len(got) != 2 || ast.Line(got[1]) != 4 {
		t.Fatalf("ParseLines = %v", got)
	}
}
