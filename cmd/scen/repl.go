package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fortio.org/log"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"scenario/interpreter-go/pkg/interpreter"
	"scenario/interpreter-go/pkg/parser"
	"scenario/interpreter-go/pkg/world"
)

const (
	replPrompt  = "scen> "
	historyFile = "history"
)

// repl evaluates one line at a time against a single world. Errors are printed
// and the world from before the failing line is kept.
type repl struct {
	interp *interpreter.Interpreter
	world  *world.World
	env    map[string]string
	out    io.Writer
}

func runRepl(args []string, flags globalFlags) int {
	if len(args) > 0 {
		fmt.Fprintf(os.Stderr, "scen repl does not take arguments (received %s)\n", strings.Join(args, " "))
		return exitUsage
	}
	proj, err := loadProject(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "scen repl: %v\n", err)
		return exitUsage
	}
	applyLogLevel(flags, proj.manifest.LogLevel)

	ctx := context.Background()
	sess, err := proj.newSession(ctx, sessionOptions{persist: true})
	if err != nil {
		log.Errf("scen repl: unable to open session: %v", err)
		return exitUsage
	}
	defer sess.Close()

	r := &repl{
		interp: sess.interp,
		world:  sess.world.WithStrictOutcomes(false),
		env:    proj.env,
		out:    os.Stdout,
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return r.runLines(ctx, os.Stdin)
	}
	return r.runInteractive(ctx)
}

// runLines serves piped input without line editing.
func (r *repl) runLines(ctx context.Context, in io.Reader) int {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if r.eval(ctx, scanner.Text()) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "scen repl: %v\n", err)
		return exitFailed
	}
	return exitOK
}

func (r *repl) runInteractive(ctx context.Context) int {
	fmt.Fprintf(r.out, "%s (type Help for commands, :quit to exit)\n", cliToolVersion)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(r.complete)

	histPath := ""
	if home, err := scenHome(); err == nil {
		histPath = filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}

	for {
		line, err := ln.Prompt(replPrompt)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintf(os.Stderr, "scen repl: %v\n", err)
			}
			fmt.Fprintln(r.out)
			break
		}
		if strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		if r.eval(ctx, line) {
			break
		}
	}

	if histPath != "" {
		if err := os.MkdirAll(filepath.Dir(histPath), 0o755); err == nil {
			if f, err := os.Create(histPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}
	}
	return exitOK
}

// eval runs one line and reports whether the session should end.
func (r *repl) eval(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch trimmed {
	case "":
		return false
	case ":quit", ":q", ":exit":
		return true
	}
	expr, err := parser.ParseLine(parser.Substitute(line, r.env))
	if err != nil {
		r.world.Printer().PrintError(errors.New(interpreter.DescribeError("", err)))
		return false
	}
	if expr == nil {
		return false
	}
	next, err := r.interp.ProcessEvent(ctx, r.world, expr)
	if err != nil {
		r.world.Printer().PrintError(err)
		return false
	}
	if next.Invoked() {
		if actions := next.Actions(); len(actions) > 0 {
			next.Printer().PrintLine(actions[len(actions)-1].String())
		}
	}
	r.world = next
	return false
}

// complete finishes the word under the cursor with command and fetcher names,
// falling back to close matches when nothing shares the prefix.
func (r *repl) complete(line string) []string {
	head, word := "", line
	if idx := strings.LastIndexAny(line, " ("); idx >= 0 {
		head, word = line[:idx+1], line[idx+1:]
	}
	names := r.interp.Completions(word)
	if len(names) == 0 && word != "" {
		names = interpreter.Suggest(word, r.interp.Completions(""))
	}
	out := make([]string, len(names))
	for idx, name := range names {
		out[idx] = head + name
	}
	return out
}
