// Package parser turns scenario text into ast expressions.
package parser

import (
	"fmt"
	"strings"

	"scenario/interpreter-go/pkg/ast"
)

// ParseError reports malformed input at a 1-based line and column.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

var closers = map[rune]rune{'(': ')', '[': ']'}

type lineParser struct {
	src  []rune
	pos  int
	line int
}

// ParseLine parses one script line. The top level is a sequence of the line's
// tokens; when the line holds a single bracketed group that group is returned.
// A blank or comment-only line yields nil.
func ParseLine(text string) (ast.Expression, error) {
	return parseLineAt(text, 1)
}

func parseLineAt(text string, line int) (ast.Expression, error) {
	p := &lineParser{src: []rune(text), line: line}
	elements, err := p.parseElements(0)
	if err != nil {
		return nil, err
	}
	switch len(elements) {
	case 0:
		return nil, nil
	case 1:
		if seq, ok := elements[0].(*ast.Sequence); ok {
			return seq, nil
		}
	}
	seq := ast.NewSequence(elements...)
	ast.SetSpan(seq, ast.Span{Start: elements[0].Span().Start, End: elements[len(elements)-1].Span().End})
	return seq, nil
}

func (p *lineParser) position() ast.Position {
	return ast.Position{Line: p.line, Column: p.pos + 1}
}

func (p *lineParser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.line, Column: p.pos + 1, Message: fmt.Sprintf(format, args...)}
}

// parseElements reads expressions until closer, or end of line when closer is 0.
func (p *lineParser) parseElements(closer rune) ([]ast.Expression, error) {
	var out []ast.Expression
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.atComment() {
			if closer != 0 {
				return nil, p.errorf("missing %q", closer)
			}
			p.pos = len(p.src)
			return out, nil
		}
		r := p.src[p.pos]
		switch {
		case r == closer:
			p.pos++
			return out, nil
		case r == ')' || r == ']':
			return nil, p.errorf("unexpected %q", r)
		case closers[r] != 0:
			start := p.position()
			p.pos++
			inner, err := p.parseElements(closers[r])
			if err != nil {
				return nil, err
			}
			seq := ast.NewSequence(inner...)
			ast.SetSpan(seq, ast.Span{Start: start, End: p.position()})
			out = append(out, seq)
		case r == '"':
			atom, err := p.parseQuoted()
			if err != nil {
				return nil, err
			}
			out = append(out, atom)
		default:
			out = append(out, p.parseBare())
		}
	}
}

func (p *lineParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\r') {
		p.pos++
	}
}

func (p *lineParser) atComment() bool {
	return p.pos+1 < len(p.src) && p.src[p.pos] == '-' && p.src[p.pos+1] == '-'
}

func (p *lineParser) parseQuoted() (ast.Expression, error) {
	start := p.position()
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		switch r {
		case '\\':
			if p.pos+1 >= len(p.src) {
				return nil, p.errorf("unterminated escape")
			}
			p.pos++
			switch esc := p.src[p.pos]; esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(esc)
			}
		case '"':
			p.pos++
			atom := ast.NewQuoted(b.String())
			ast.SetSpan(atom, ast.Span{Start: start, End: p.position()})
			return atom, nil
		default:
			b.WriteRune(r)
		}
		p.pos++
	}
	p.pos = len(p.src)
	return nil, &ParseError{Line: start.Line, Column: start.Column, Message: "unterminated string"}
}

func (p *lineParser) parseBare() ast.Expression {
	start := p.position()
	begin := p.pos
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		if r == ' ' || r == '\t' || r == '\r' || r == '"' || closers[r] != 0 || r == ')' || r == ']' {
			break
		}
		p.pos++
	}
	atom := ast.NewAtom(string(p.src[begin:p.pos]))
	ast.SetSpan(atom, ast.Span{Start: start, End: p.position()})
	return atom
}
