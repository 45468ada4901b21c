package parser

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"scenario/interpreter-go/pkg/ast"
)

// Mode says how a test block is treated by the runner.
type Mode int

const (
	ModeRun Mode = iota
	ModePending
	ModeSkip
)

func (m Mode) String() string {
	switch m {
	case ModePending:
		return "pending"
	case ModeSkip:
		return "skip"
	default:
		return "run"
	}
}

// Test is one named block of a scenario file.
type Test struct {
	Name  string
	Mode  Mode
	Line  int
	Steps []ast.Expression
}

// Script is a parsed scenario file.
type Script struct {
	Path  string
	Tests []Test
}

var headers = map[string]Mode{"Test": ModeRun, "Pending": ModePending, "Skip": ModeSkip}

// ParseScript reads a scenario file. Unindented `Test "name"`, `Pending "name"`
// and `Skip "name"` lines open a block; the steps that follow belong to it. Steps
// before the first header form a test named after the file.
func ParseScript(path string, r io.Reader) (*Script, error) {
	script := &Script{Path: path}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var current *Test
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		expr, err := parseLineAt(text, lineNo)
		if err != nil {
			return nil, withPath(err, path)
		}
		if expr == nil {
			continue
		}
		indented := strings.HasPrefix(text, " ") || strings.HasPrefix(text, "\t")
		if !indented {
			if name, mode, ok := header(expr); ok {
				script.Tests = append(script.Tests, Test{Name: name, Mode: mode, Line: lineNo})
				current = &script.Tests[len(script.Tests)-1]
				continue
			}
		}
		if current == nil {
			script.Tests = append(script.Tests, Test{Name: path, Mode: ModeRun, Line: lineNo})
			current = &script.Tests[len(script.Tests)-1]
		}
		current.Steps = append(current.Steps, expr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parser: read %s: %w", path, err)
	}
	return script, nil
}

// ParseLines parses every line of src as a step of one anonymous test.
func ParseLines(src string) ([]ast.Expression, error) {
	var out []ast.Expression
	for idx, text := range strings.Split(src, "\n") {
		expr, err := parseLineAt(text, idx+1)
		if err != nil {
			return nil, err
		}
		if expr != nil {
			out = append(out, expr)
		}
	}
	return out, nil
}

func header(expr ast.Expression) (string, Mode, bool) {
	seq, ok := expr.(*ast.Sequence)
	if !ok || seq.Len() != 2 {
		return "", 0, false
	}
	head, ok := seq.Head()
	if !ok {
		return "", 0, false
	}
	mode, ok := headers[head]
	if !ok {
		return "", 0, false
	}
	name, ok := seq.Elements[1].(*ast.Atom)
	if !ok || !name.Quoted {
		return "", 0, false
	}
	return name.Text, mode, true
}

func withPath(err error, path string) error {
	if perr, ok := err.(*ParseError); ok {
		located := *perr
		located.Path = path
		return &located
	}
	return err
}

var variable = regexp.MustCompile(`\$[A-Za-z_][A-Za-z0-9_]*`)

// Substitute replaces $NAME with env[NAME]. Names missing from env become
// Nothing.
func Substitute(src string, env map[string]string) string {
	return variable.ReplaceAllStringFunc(src, func(ref string) string {
		if value, ok := env[ref[1:]]; ok {
			return value
		}
		return "Nothing"
	})
}
