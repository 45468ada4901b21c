package ast

import (
	"strconv"
	"strings"
)

type NodeType string

const (
	NodeAtom     NodeType = "Atom"
	NodeSequence NodeType = "Sequence"
)

type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type Span struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Expression is a parsed script node. Only *Atom and *Sequence implement it.
type Expression interface {
	NodeType() NodeType
	Span() Span
	String() string
	expression()
}

type nodeImpl struct {
	Type NodeType `json:"type"`
	span Span
}

func (n *nodeImpl) NodeType() NodeType { return n.Type }
func (n *nodeImpl) Span() Span         { return n.span }
func (n *nodeImpl) setSpan(span Span)  { n.span = span }
func (n *nodeImpl) expression()        {}

// Atom is a raw token. Quoted atoms came from a string literal and are never
// reinterpreted as numbers, keywords or aliases.
type Atom struct {
	nodeImpl
	Text   string `json:"text"`
	Quoted bool   `json:"quoted,omitempty"`
}

func NewAtom(text string) *Atom {
	return &Atom{nodeImpl: nodeImpl{Type: NodeAtom}, Text: text}
}

func NewQuoted(text string) *Atom {
	return &Atom{nodeImpl: nodeImpl{Type: NodeAtom}, Text: text, Quoted: true}
}

func (a *Atom) String() string {
	if a.Quoted {
		return strconv.Quote(a.Text)
	}
	return a.Text
}

// Sequence is an ordered list of sub-expressions.
type Sequence struct {
	nodeImpl
	Elements []Expression `json:"elements"`
}

func NewSequence(elements ...Expression) *Sequence {
	if elements == nil {
		elements = []Expression{}
	}
	return &Sequence{nodeImpl: nodeImpl{Type: NodeSequence}, Elements: elements}
}

func (s *Sequence) Len() int { return len(s.Elements) }

// Head returns the text of the leading atom, if any.
func (s *Sequence) Head() (string, bool) {
	return s.AtomAt(0)
}

// AtomAt returns the unquoted atom text at index i.
func (s *Sequence) AtomAt(i int) (string, bool) {
	if s == nil || i < 0 || i >= len(s.Elements) {
		return "", false
	}
	atom, ok := s.Elements[i].(*Atom)
	if !ok || atom.Quoted {
		return "", false
	}
	return atom.Text, true
}

// Without returns the elements with index i removed.
func (s *Sequence) Without(i int) []Expression {
	out := make([]Expression, 0, len(s.Elements))
	for idx, el := range s.Elements {
		if idx != i {
			out = append(out, el)
		}
	}
	return out
}

func (s *Sequence) String() string {
	return "(" + joinExpressions(s.Elements) + ")"
}

// FormatLine renders an expression the way it would be written as a whole script
// line: a top-level sequence drops its outer parentheses.
func FormatLine(expr Expression) string {
	if seq, ok := expr.(*Sequence); ok {
		return joinExpressions(seq.Elements)
	}
	if expr == nil {
		return ""
	}
	return expr.String()
}

func joinExpressions(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, el := range exprs {
		parts[i] = el.String()
	}
	return strings.Join(parts, " ")
}

// Equal reports structural equality. Spans are ignored.
func Equal(a, b Expression) bool {
	switch av := a.(type) {
	case *Atom:
		bv, ok := b.(*Atom)
		return ok && av.Text == bv.Text && av.Quoted == bv.Quoted
	case *Sequence:
		bv, ok := b.(*Sequence)
		if !ok || len(av.Elements) != len(bv.Elements) {
			return false
		}
		for i := range av.Elements {
			if !Equal(av.Elements[i], bv.Elements[i]) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}
