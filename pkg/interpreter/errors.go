package interpreter

import (
	"errors"
	"fmt"
	"strings"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/outcome"
	"scenario/interpreter-go/pkg/world"
)

// ResolutionError reports an expression that could not be turned into a Value of
// the expected shape.
type ResolutionError struct {
	Expr        ast.Expression
	Reason      string
	Suggestions []string
	Err         error
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	if e.Expr != nil {
		fmt.Fprintf(&b, "cannot resolve `%s`: %s", e.Expr, e.Reason)
	} else {
		b.WriteString("cannot resolve: " + e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	writeSuggestions(&b, e.Suggestions)
	return b.String()
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func resolutionErrorf(expr ast.Expression, format string, args ...any) *ResolutionError {
	return &ResolutionError{Expr: expr, Reason: fmt.Sprintf(format, args...)}
}

// NoMatchingCommand reports that no candidate aligned with the expression.
type NoMatchingCommand struct {
	Set         string
	Name        string
	Arity       int
	Expr        ast.Expression
	Signatures  []string
	Suggestions []string
}

func (e *NoMatchingCommand) Error() string {
	var b strings.Builder
	if len(e.Signatures) == 0 {
		fmt.Fprintf(&b, "unknown %s command %q", e.Set, e.Name)
	} else {
		fmt.Fprintf(&b, "no %s command %q accepts %d argument(s); candidates: %s",
			e.Set, e.Name, e.Arity, strings.Join(e.Signatures, ", "))
	}
	writeSuggestions(&b, e.Suggestions)
	return b.String()
}

// ArgumentResolutionError wraps a resolver failure with the argument it was
// resolving.
type ArgumentResolutionError struct {
	Command string
	Arg     string
	Expr    ast.Expression
	Err     error
}

func (e *ArgumentResolutionError) Error() string {
	if e.Expr != nil {
		return fmt.Sprintf("%s: argument %q from `%s`: %v", e.Command, e.Arg, e.Expr, e.Err)
	}
	return fmt.Sprintf("%s: argument %q: %v", e.Command, e.Arg, e.Err)
}

func (e *ArgumentResolutionError) Unwrap() error { return e.Err }

// AssertionFailed reports a comparison that did not hold.
type AssertionFailed struct {
	Command  string
	Reason   string
	Given    string
	Expected string
	Actions  []world.Action
}

func (e *AssertionFailed) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed: %s", e.Command, e.Reason)
	if e.Given != "" || e.Expected != "" {
		fmt.Fprintf(&b, "\n  given:    %s\n  expected: %s", e.Given, e.Expected)
	}
	return b.String()
}

func assertFail(w *world.World, command, reason, given, expected string) error {
	return &AssertionFailed{
		Command:  command,
		Reason:   reason,
		Given:    given,
		Expected: expected,
		Actions:  w.Actions(),
	}
}

// UnhandledOutcome reports a Failure or ThrownError that no assertion consumed.
type UnhandledOutcome struct {
	Outcome outcome.Outcome
	Action  string
}

func (e *UnhandledOutcome) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("unhandled %s from %q", e.Outcome, e.Action)
	}
	return fmt.Sprintf("unhandled %s", e.Outcome)
}

// EventProcessingError attaches the offending top-level expression to an error.
type EventProcessingError struct {
	Expr ast.Expression
	Err  error
}

func (e *EventProcessingError) Error() string {
	return fmt.Sprintf("Error: `%v` when processing `%s`", e.Err, ast.FormatLine(e.Expr))
}

func (e *EventProcessingError) Unwrap() error { return e.Err }

// Line returns the script line of the offending expression, or zero.
func (e *EventProcessingError) Line() int {
	return ast.Line(e.Expr)
}

// IsScriptError reports whether err means the script itself is malformed.
func IsScriptError(err error) bool {
	var resolution *ResolutionError
	var noMatch *NoMatchingCommand
	var argErr *ArgumentResolutionError
	return errors.As(err, &resolution) || errors.As(err, &noMatch) || errors.As(err, &argErr)
}

func writeSuggestions(b *strings.Builder, suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintf(b, " (did you mean %s?)", strings.Join(quoteAll(suggestions), " or "))
}

func quoteAll(items []string) []string {
	out := make([]string, len(items))
	for idx, item := range items {
		out[idx] = fmt.Sprintf("%q", item)
	}
	return out
}
