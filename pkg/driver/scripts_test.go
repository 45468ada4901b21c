package driver

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scenario/interpreter-go/pkg/parser"
)

func TestCollectScripts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "scenario/tokens/erc20.scen", "")
	writeFile(t, root, "scenario/markets/ctoken.scen", "")
	writeFile(t, root, "scenario/wip/draft.scen", "")
	writeFile(t, root, "scenario/tokens/notes.txt", "")
	writeFile(t, root, "scenario/.cache/stale.scen", "")
	writeFile(t, root, "extra/one.scen", "")

	rel := func(paths []string) []string {
		var out []string
		for _, path := range paths {
			r, err := filepath.Rel(root, path)
			if err != nil {
				t.Fatalf("Rel: %v", err)
			}
			out = append(out, filepath.ToSlash(r))
		}
		return out
	}

	tests := []struct {
		name    string
		targets []string
		want    []string
	}{
		{
			name:    "glob with exclusion",
			targets: []string{"scenario/**/*.scen", "!scenario/wip/**"},
			want:    []string{"scenario/markets/ctoken.scen", "scenario/tokens/erc20.scen"},
		},
		{
			name:    "directory",
			targets: []string{"extra"},
			want:    []string{"extra/one.scen"},
		},
		{
			name:    "file and duplicate glob",
			targets: []string{"scenario/tokens/erc20.scen", "scenario/tokens/*.scen"},
			want:    []string{"scenario/tokens/erc20.scen"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CollectScripts(root, tc.targets)
			if err != nil {
				t.Fatalf("CollectScripts: %v", err)
			}
			if diff := cmp.Diff(tc.want, rel(got)); diff != "" {
				t.Fatalf("scripts (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParserDiagnostic(t *testing.T) {
	_, err := parser.ParseLine(`Print "unterminated`)
	diag, ok := ParserDiagnostic(err)
	if !ok {
		t.Fatalf("ParserDiagnostic(%v) not recognised", err)
	}
	diag.Location.Path = "demo.scen"
	var parseErr *parser.ParseError
	errors.As(err, &parseErr)
	want := fmt.Sprintf("demo.scen:1:%d: error: %s", parseErr.Column, parseErr.Message)
	if got := DescribeDiagnostic(diag); got != want {
		t.Fatalf("DescribeDiagnostic = %q, want %q", got, want)
	}
	if _, ok := ParserDiagnostic(errors.New("plain")); ok {
		t.Fatalf("plain error treated as parse failure")
	}
}

func TestFormatLocation(t *testing.T) {
	tests := []struct {
		loc  DiagnosticLocation
		want string
	}{
		{DiagnosticLocation{Path: "a.scen", Line: 3, Column: 2}, "a.scen:3:2"},
		{DiagnosticLocation{Path: "a.scen", Line: 3}, "a.scen:3"},
		{DiagnosticLocation{Path: "a.scen"}, "a.scen"},
		{DiagnosticLocation{Line: 4, Column: 1}, "line 4, column 1"},
		{DiagnosticLocation{}, ""},
	}
	for _, tc := range tests {
		if got := FormatLocation(tc.loc); got != tc.want {
			t.Fatalf("FormatLocation(%#v) = %q, want %q", tc.loc, got, tc.want)
		}
	}
}
