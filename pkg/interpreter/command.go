package interpreter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

// Signature is the shape shared by commands and fetchers: a name literal expected
// at NamePos and the declared arguments for the remaining children.
type Signature struct {
	Name    string
	NamePos int
	Args    []ArgSpec
}

func (s *Signature) signature() *Signature { return s }

func (s *Signature) matchesName(seq *ast.Sequence) bool {
	text, ok := seq.AtomAt(s.NamePos)
	return ok && text == s.Name
}

// Usage renders the signature as "Name a:<..> b=.. ...c".
func (s *Signature) Usage() string {
	parts := make([]string, 0, len(s.Args)+1)
	for _, arg := range s.Args {
		switch {
		case arg.Implicit:
			continue
		case arg.Variadic, arg.Mapped:
			parts = append(parts, "..."+arg.Name)
		case arg.Default != nil:
			parts = append(parts, arg.Name+"="+runtime.Format(arg.Default))
		case arg.Nullable:
			parts = append(parts, arg.Name+"?")
		default:
			parts = append(parts, arg.Name)
		}
	}
	pos := s.NamePos
	if pos > len(parts) {
		pos = len(parts)
	}
	parts = append(parts[:pos], append([]string{s.Name}, parts[pos:]...)...)
	return strings.Join(parts, " ")
}

// Handler runs a command. from is the acting identity; views receive "".
type Handler func(ctx context.Context, w *world.World, from string, args Args) (*world.World, error)

// Command is a named operation with a declared argument shape.
type Command struct {
	Signature
	Doc         string
	Handler     Handler
	View        bool
	Subcommands func() *Ranked[*Command]
}

// FetchFunc produces a value from resolved arguments.
type FetchFunc func(ctx context.Context, w *world.World, args Args) (runtime.Value, error)

// Fetcher resolves an expression shape into a value of kind Yields.
type Fetcher struct {
	Signature
	Doc    string
	Yields runtime.Kind
	Fetch  FetchFunc
	Family func() *Ranked[*Fetcher]
}

// KindAny marks a fetcher whose result kind depends on its arguments.
const KindAny runtime.Kind = -1

// NewCommand declares a mutating command.
func NewCommand(doc, name string, args []ArgSpec, handler Handler) *Command {
	return &Command{Signature: Signature{Name: name, Args: args}, Doc: doc, Handler: handler}
}

// NewView declares a read-only command. Its handler receives no acting identity.
func NewView(doc, name string, args []ArgSpec, handler Handler) *Command {
	cmd := NewCommand(doc, name, args, handler)
	cmd.View = true
	return cmd
}

// At moves the command's name literal to position pos.
func (c *Command) At(pos int) *Command {
	c.NamePos = pos
	return c
}

// WithSubcommands exposes a nested command set to Help.
func (c *Command) WithSubcommands(set func() *CommandSet) *Command {
	c.Subcommands = set
	return c
}

// NewFetcher declares a fetcher.
func NewFetcher(doc, name string, yields runtime.Kind, args []ArgSpec, fetch FetchFunc) *Fetcher {
	return &Fetcher{Signature: Signature{Name: name, Args: args}, Doc: doc, Yields: yields, Fetch: fetch}
}

func (f *Fetcher) At(pos int) *Fetcher {
	f.NamePos = pos
	return f
}

type candidate interface {
	signature() *Signature
}

// Ranked is an ordered candidate list. Rank is declaration order and decides
// ties: the first candidate whose shape aligns wins.
type Ranked[T candidate] struct {
	Label   string
	entries []T
}

// CommandSet is a ranked list of commands.
type CommandSet = Ranked[*Command]

// FetcherSet is a ranked list of fetchers.
type FetcherSet = Ranked[*Fetcher]

func NewCommandSet(label string, cmds ...*Command) *CommandSet {
	set := &CommandSet{Label: label}
	set.Add(cmds...)
	return set
}

func NewFetcherSet(label string, fetchers ...*Fetcher) *FetcherSet {
	set := &FetcherSet{Label: label}
	set.Add(fetchers...)
	return set
}

// Add appends candidates after every existing one.
func (r *Ranked[T]) Add(items ...T) {
	r.entries = append(r.entries, items...)
}

// All returns every candidate in rank order.
func (r *Ranked[T]) All() []T {
	out := make([]T, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of candidates.
func (r *Ranked[T]) Len() int { return len(r.entries) }

// Named returns the candidates called name, in rank order.
func (r *Ranked[T]) Named(name string) []T {
	var out []T
	for _, entry := range r.entries {
		if entry.signature().Name == name {
			out = append(out, entry)
		}
	}
	return out
}

// Matching returns the candidates whose name literal appears in seq at their
// name position, in rank order.
func (r *Ranked[T]) Matching(seq *ast.Sequence) []T {
	var out []T
	for _, entry := range r.entries {
		if entry.signature().matchesName(seq) {
			out = append(out, entry)
		}
	}
	return out
}

// Rank returns the declaration index of item, or -1.
func (r *Ranked[T]) Rank(item T) int {
	for idx, entry := range r.entries {
		if entry.signature() == item.signature() {
			return idx
		}
	}
	return -1
}

// Names lists the distinct candidate names, sorted.
func (r *Ranked[T]) Names() []string {
	seen := map[string]struct{}{}
	var names []string
	for _, entry := range r.entries {
		name := entry.signature().Name
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Ranked[T]) String() string {
	return fmt.Sprintf("%s(%d)", r.Label, len(r.entries))
}
