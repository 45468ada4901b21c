// Package interpreter resolves scenario expressions into typed values and
// dispatches them to ranked command candidates. Every step threads an immutable
// world.World: handlers receive the current world and return its successor.
package interpreter

import (
	"context"
	"fmt"
	"strings"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

// Interpreter owns the command and fetcher tables. It holds no per-run state and
// may be shared by concurrent runs as long as families are registered up front.
type Interpreter struct {
	core         *CommandSet
	assertions   *CommandSet
	invariants   *CommandSet
	expectations *CommandSet
	fetchers     *FetcherSet
	families     []Family
}

// Family is a group of domain commands and fetchers reached through a shared
// leading keyword, e.g. `Erc20 ZRX Transfer Geoff 10`.
type Family struct {
	Name     string
	Doc      string
	Commands *CommandSet
	Fetchers *FetcherSet
}

// New builds an interpreter with the core tables installed.
func New() *Interpreter {
	i := &Interpreter{}
	i.fetchers = NewFetcherSet("value", coreFetchers(i)...)
	i.assertions = NewCommandSet("assertion", assertionCommands(i)...)
	i.invariants = NewCommandSet("invariant", invariantCommands(i)...)
	i.expectations = NewCommandSet("expectation", expectationCommands(i)...)
	i.core = NewCommandSet("core", coreCommands(i)...)
	return i
}

// RegisterFamily exposes a family under its name in both the command and the
// value tables. Later registrations rank after every existing candidate.
func (i *Interpreter) RegisterFamily(f Family) {
	if f.Commands == nil {
		f.Commands = NewCommandSet(f.Name)
	}
	if f.Fetchers == nil {
		f.Fetchers = NewFetcherSet(f.Name)
	}
	i.families = append(i.families, f)
	family := f

	cmd := NewCommand(family.Doc, family.Name,
		[]ArgSpec{Arg("event", GetEvent, Variadic())},
		func(ctx context.Context, w *world.World, from string, args Args) (*world.World, error) {
			return i.Dispatch(ctx, family.Commands, w, args.Event("event"), from)
		})
	cmd.Subcommands = func() *CommandSet { return family.Commands }
	i.core.Add(cmd)

	fetcher := NewFetcher(family.Doc, family.Name, KindAny,
		[]ArgSpec{Arg("event", GetEvent, Variadic())},
		func(ctx context.Context, w *world.World, args Args) (runtime.Value, error) {
			seq := asSequence(args.Event("event"))
			value, found, err := i.fetch(ctx, family.Fetchers, w, seq)
			if !found {
				return nil, &ResolutionError{Expr: seq, Reason: noMatch(family.Fetchers, seq, nil).Error()}
			}
			return value, err
		})
	fetcher.Family = func() *FetcherSet { return family.Fetchers }
	i.fetchers.Add(fetcher)
}

// Families lists registered families in registration order.
func (i *Interpreter) Families() []Family {
	out := make([]Family, len(i.families))
	copy(out, i.families)
	return out
}

func (i *Interpreter) Commands() *CommandSet { return i.core }

func (i *Interpreter) Assertions() *CommandSet { return i.assertions }

func (i *Interpreter) Fetchers() *FetcherSet { return i.fetchers }

// Select reports the core command that would handle expr.
func (i *Interpreter) Select(expr ast.Expression) (*Command, error) {
	return Select(i.core, expr)
}

// Completions lists command and fetcher names starting with prefix, for line
// editors.
func (i *Interpreter) Completions(prefix string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(names []string) {
		for _, name := range names {
			if seen[name] || !strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	add(i.core.Names())
	add(i.fetchers.Names())
	for _, f := range i.families {
		add(f.Commands.Names())
		add(f.Fetchers.Names())
	}
	return out
}

func (i *Interpreter) String() string {
	return fmt.Sprintf("interpreter(%s, %s, %d families)", i.core, i.fetchers, len(i.families))
}
