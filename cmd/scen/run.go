package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"fortio.org/log"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/interpreter"
	"scenario/interpreter-go/pkg/parser"
)

// inlinePath labels `-e` lines in diagnostics.
const inlinePath = "<inline>"

func runScripts(args []string, flags globalFlags) int {
	var files, inline []string
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "-e" || arg == "--eval":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "scen run: %s expects a line\n", arg)
				return exitUsage
			}
			inline = append(inline, args[i+1])
			i++
		case strings.HasPrefix(arg, "-"):
			fmt.Fprintf(os.Stderr, "scen run: unknown flag '%s'\n", arg)
			return exitUsage
		default:
			files = append(files, arg)
		}
	}
	if len(files) == 0 && len(inline) == 0 {
		fmt.Fprintln(os.Stderr, "scen run: expected a scenario file or -e line")
		return exitUsage
	}

	proj, err := loadProject(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "scen run: %v\n", err)
		return exitUsage
	}
	applyLogLevel(flags, proj.manifest.LogLevel)

	type unit struct {
		path   string
		events []ast.Expression
	}
	var units []unit
	for _, path := range files {
		script, err := readScript(path, proj.env)
		if err != nil {
			reportScriptError(path, err)
			return exitUsage
		}
		for _, test := range script.Tests {
			if test.Mode != parser.ModeRun {
				log.Infof("%s: %s %q", path, test.Mode, test.Name)
				continue
			}
			units = append(units, unit{path: path, events: test.Steps})
		}
	}
	for _, line := range inline {
		events, err := parser.ParseLines(parser.Substitute(line, proj.env))
		if err != nil {
			reportScriptError(inlinePath, err)
			return exitUsage
		}
		units = append(units, unit{path: inlinePath, events: events})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	sess, err := proj.newSession(ctx, sessionOptions{persist: true})
	if err != nil {
		log.Errf("scen run: unable to open session: %v", err)
		return exitUsage
	}
	defer sess.Close()

	w := sess.world
	for _, u := range units {
		next, err := sess.interp.ProcessEvents(ctx, w, u.events)
		if err != nil {
			reportScriptError(u.path, err)
			return exitFailed
		}
		w = next
	}
	if err := sess.interp.Finish(w); err != nil {
		reportScriptError("", err)
		return exitFailed
	}
	return exitOK
}

func runCheck(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "scen check: expected at least one scenario file")
		return exitUsage
	}
	failed := false
	for _, path := range args {
		script, err := readScript(path, nil)
		if err != nil {
			reportScriptError(path, err)
			failed = true
			continue
		}
		steps := 0
		for _, test := range script.Tests {
			steps += len(test.Steps)
		}
		fmt.Fprintf(os.Stdout, "ok %s (%d tests, %d steps)\n", path, len(script.Tests), steps)
	}
	if failed {
		return exitFailed
	}
	return exitOK
}

// readScript parses a scenario file after substituting env. A nil env leaves
// `$NAME` references untouched.
func readScript(path string, env map[string]string) (*parser.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	src := string(data)
	if env != nil {
		src = parser.Substitute(src, env)
	}
	return parser.ParseScript(path, strings.NewReader(src))
}

func reportScriptError(path string, err error) {
	fmt.Fprintln(os.Stderr, interpreter.DescribeError(path, err))
}
