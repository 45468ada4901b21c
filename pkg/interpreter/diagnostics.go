package interpreter

import (
	"errors"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/driver"
)

const maxActionNotes = 3

// BuildDiagnostic locates err within the script at path. Parse failures keep
// their own position; event failures point at the offending event, with notes
// for the argument being resolved and the most recent actions before a failed
// assertion.
func BuildDiagnostic(path string, err error) driver.Diagnostic {
	if diag, ok := driver.ParserDiagnostic(err); ok {
		if diag.Location.Path == "" {
			diag.Location.Path = path
		}
		return diag
	}

	diag := driver.Diagnostic{Severity: driver.SeverityError, Message: err.Error()}
	var eventErr *EventProcessingError
	if errors.As(err, &eventErr) {
		diag.Location = locationOf(path, eventErr.Expr)
		if eventErr.Err != nil {
			diag.Message = eventErr.Err.Error()
		}
	}
	if diag.Location == (driver.DiagnosticLocation{}) {
		diag.Location.Path = path
	}

	var argErr *ArgumentResolutionError
	if errors.As(err, &argErr) && argErr.Expr != nil {
		if loc := locationOf(path, argErr.Expr); loc.Line > 0 && loc != diag.Location {
			diag.Notes = append(diag.Notes, driver.DiagnosticNote{
				Message:  "while resolving argument " + argErr.Arg + " of " + argErr.Command,
				Location: loc,
			})
		}
	}
	var failed *AssertionFailed
	if errors.As(err, &failed) {
		actions := failed.Actions
		if len(actions) > maxActionNotes {
			actions = actions[len(actions)-maxActionNotes:]
		}
		for idx := len(actions) - 1; idx >= 0; idx-- {
			diag.Notes = append(diag.Notes, driver.DiagnosticNote{Message: "after " + actions[idx].String()})
		}
	}
	return diag
}

// DescribeError renders err as a located diagnostic for the script at path.
func DescribeError(path string, err error) string {
	return driver.DescribeDiagnostic(BuildDiagnostic(path, err))
}

func locationOf(path string, expr ast.Expression) driver.DiagnosticLocation {
	if expr == nil {
		return driver.DiagnosticLocation{}
	}
	start := expr.Span().Start
	if start.Line == 0 {
		return driver.DiagnosticLocation{}
	}
	return driver.DiagnosticLocation{Path: path, Line: start.Line, Column: start.Column}
}
