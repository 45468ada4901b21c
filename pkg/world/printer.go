package world

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"scenario/interpreter-go/pkg/runtime"
)

// Printer receives console output produced by script commands.
type Printer interface {
	PrintLine(line string)
	PrintValue(v runtime.Value)
	PrintError(err error)
}

type discardPrinter struct{}

func (discardPrinter) PrintLine(string)         {}
func (discardPrinter) PrintValue(runtime.Value) {}
func (discardPrinter) PrintError(error)         {}

// Discard drops all output.
var Discard Printer = discardPrinter{}

// ConsolePrinter writes lines to Out and errors to Err. Errors are coloured red
// when Err is a terminal.
type ConsolePrinter struct {
	Out   io.Writer
	Err   io.Writer
	Color bool
}

// NewConsolePrinter builds a printer, enabling colour when err is a terminal.
func NewConsolePrinter(out, err io.Writer) *ConsolePrinter {
	color := false
	if file, ok := err.(*os.File); ok {
		color = term.IsTerminal(int(file.Fd()))
	}
	return &ConsolePrinter{Out: out, Err: err, Color: color}
}

func (p *ConsolePrinter) PrintLine(line string) {
	fmt.Fprintln(p.Out, line)
}

func (p *ConsolePrinter) PrintValue(v runtime.Value) {
	fmt.Fprintln(p.Out, runtime.Show(v))
}

func (p *ConsolePrinter) PrintError(err error) {
	if p.Color {
		fmt.Fprintf(p.Err, "\x1b[31m%s\x1b[0m\n", err)
		return
	}
	fmt.Fprintln(p.Err, err)
}
