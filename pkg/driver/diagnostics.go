package driver

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"scenario/interpreter-go/pkg/parser"
)

type DiagnosticSeverity string

const (
	SeverityError   DiagnosticSeverity = "error"
	SeverityWarning DiagnosticSeverity = "warning"
)

// DiagnosticLocation points at a position in a scenario file. Zero fields are
// unknown.
type DiagnosticLocation struct {
	Path   string
	Line   int
	Column int
}

type DiagnosticNote struct {
	Message  string
	Location DiagnosticLocation
}

// Diagnostic is a user-facing report about a script.
type Diagnostic struct {
	Severity DiagnosticSeverity
	Message  string
	Location DiagnosticLocation
	Notes    []DiagnosticNote
}

// ParserDiagnostic converts a parse failure into a diagnostic. ok is false when
// err carries no parse position.
func ParserDiagnostic(err error) (Diagnostic, bool) {
	var parseErr *parser.ParseError
	if !errors.As(err, &parseErr) {
		return Diagnostic{}, false
	}
	return Diagnostic{
		Severity: SeverityError,
		Message:  parseErr.Message,
		Location: DiagnosticLocation{
			Path:   parseErr.Path,
			Line:   parseErr.Line,
			Column: parseErr.Column,
		},
	}, true
}

// DescribeDiagnostic renders diag as `path:line:col: severity: message` with
// one `note:` line per note.
func DescribeDiagnostic(diag Diagnostic) string {
	severity := diag.Severity
	if severity == "" {
		severity = SeverityError
	}
	var b strings.Builder
	if location := FormatLocation(diag.Location); location != "" {
		fmt.Fprintf(&b, "%s: %s: %s", location, severity, strings.TrimSpace(diag.Message))
	} else {
		fmt.Fprintf(&b, "%s: %s", severity, strings.TrimSpace(diag.Message))
	}
	for _, note := range diag.Notes {
		if location := FormatLocation(note.Location); location != "" {
			fmt.Fprintf(&b, "\nnote: %s %s", location, note.Message)
		} else {
			fmt.Fprintf(&b, "\nnote: %s", note.Message)
		}
	}
	return b.String()
}

// FormatLocation renders loc in the most specific form its fields allow.
func FormatLocation(loc DiagnosticLocation) string {
	path := strings.TrimSpace(loc.Path)
	if path != "" {
		path = relativePath(path)
	}
	switch {
	case path != "" && loc.Line > 0 && loc.Column > 0:
		return fmt.Sprintf("%s:%d:%d", path, loc.Line, loc.Column)
	case path != "" && loc.Line > 0:
		return fmt.Sprintf("%s:%d", path, loc.Line)
	case path != "":
		return path
	case loc.Line > 0 && loc.Column > 0:
		return fmt.Sprintf("line %d, column %d", loc.Line, loc.Column)
	case loc.Line > 0:
		return fmt.Sprintf("line %d", loc.Line)
	default:
		return ""
	}
}

func relativePath(path string) string {
	if !filepath.IsAbs(path) {
		return path
	}
	wd, err := filepath.Abs(".")
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
