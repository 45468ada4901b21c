package interpreter

import (
	"context"
	"sort"
	"strings"

	"fortio.org/log"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

// binding pairs an argument spec with the expressions aligned to it.
type binding struct {
	spec    ArgSpec
	exprs   []ast.Expression
	present bool
}

// align matches children against specs left to right. It only inspects shape;
// nothing is resolved.
func align(specs []ArgSpec, children []ast.Expression) ([]binding, bool) {
	bindings := make([]binding, 0, len(specs))
	next := 0
	for _, spec := range specs {
		switch {
		case spec.Implicit:
			bindings = append(bindings, binding{spec: spec})
		case spec.consumesRest():
			if spec.NonEmpty && next >= len(children) {
				return nil, false
			}
			rest := children[next:]
			next = len(children)
			bindings = append(bindings, binding{spec: spec, exprs: rest, present: true})
		case next < len(children):
			bindings = append(bindings, binding{spec: spec, exprs: children[next : next+1], present: true})
			next++
		case spec.optional():
			bindings = append(bindings, binding{spec: spec})
		default:
			return nil, false
		}
	}
	if next < len(children) {
		return nil, false
	}
	return bindings, true
}

// asSequence views expr as a command sequence. An atom is a one-element
// sequence and a sequence wrapping a single sequence is unwrapped.
func asSequence(expr ast.Expression) *ast.Sequence {
	switch e := expr.(type) {
	case *ast.Sequence:
		for e.Len() == 1 {
			inner, ok := e.Elements[0].(*ast.Sequence)
			if !ok {
				break
			}
			e = inner
		}
		return e
	case *ast.Atom:
		seq := ast.NewSequence(e)
		ast.SetSpan(seq, e.Span())
		return seq
	default:
		return ast.NewSequence()
	}
}

// selectCandidate returns the first candidate, in rank order, whose name literal
// and argument shape both align with seq.
func selectCandidate[T candidate](set *Ranked[T], seq *ast.Sequence) (T, []binding, []T) {
	var zero T
	named := set.Matching(seq)
	for _, cand := range named {
		sig := cand.signature()
		if bindings, ok := align(sig.Args, seq.Without(sig.NamePos)); ok {
			return cand, bindings, named
		}
	}
	return zero, nil, named
}

// Select reports which command in set would handle expr. It performs no
// resolution and never consults the world.
func Select(set *CommandSet, expr ast.Expression) (*Command, error) {
	seq := asSequence(expr)
	cmd, _, named := selectCandidate(set, seq)
	if cmd == nil {
		return nil, noMatch(set, seq, named)
	}
	return cmd, nil
}

func noMatch[T candidate](set *Ranked[T], seq *ast.Sequence, named []T) *NoMatchingCommand {
	err := &NoMatchingCommand{Set: set.Label, Expr: seq, Arity: seq.Len() - 1}
	if len(named) > 0 {
		err.Name = named[0].signature().Name
		for _, cand := range named {
			err.Signatures = append(err.Signatures, "`"+cand.signature().Usage()+"`")
		}
		return err
	}
	if head, ok := seq.Head(); ok {
		err.Name = head
	} else {
		err.Name = seq.String()
	}
	err.Suggestions = suggest(err.Name, set.Names())
	return err
}

// resolveBindings applies each spec's getter to its aligned expressions.
func (i *Interpreter) resolveBindings(ctx context.Context, w *world.World, owner string, bindings []binding) (Args, error) {
	args := make(Args, len(bindings))
	for _, b := range bindings {
		value, err := i.resolveBinding(ctx, w, b)
		if err != nil {
			var expr ast.Expression
			if len(b.exprs) == 1 {
				expr = b.exprs[0]
			} else if len(b.exprs) > 1 {
				expr = ast.NewSequence(b.exprs...)
			}
			return nil, &ArgumentResolutionError{Command: owner, Arg: b.spec.Name, Expr: expr, Err: err}
		}
		args[b.spec.Name] = value
	}
	return args, nil
}

func (i *Interpreter) resolveBinding(ctx context.Context, w *world.World, b binding) (runtime.Value, error) {
	spec := b.spec
	switch {
	case spec.Implicit:
		value, ok := w.Slot(spec.slotName())
		if !ok {
			return nil, resolutionErrorf(nil, "world has no value for %q", spec.slotName())
		}
		return value, nil
	case !b.present:
		if spec.Default != nil {
			return spec.Default, nil
		}
		return runtime.Nothing, nil
	case spec.Mapped:
		items := make([]runtime.Value, 0, len(b.exprs))
		for _, expr := range b.exprs {
			value, err := i.applyGetter(ctx, w, spec, expr)
			if err != nil {
				return nil, err
			}
			items = append(items, value)
		}
		return runtime.List(items...), nil
	case spec.Variadic:
		group := ast.NewSequence(b.exprs...)
		if len(b.exprs) > 0 {
			ast.SetSpan(group, ast.Span{Start: b.exprs[0].Span().Start, End: b.exprs[len(b.exprs)-1].Span().End})
		}
		return i.applyGetter(ctx, w, spec, group)
	default:
		return i.applyGetter(ctx, w, spec, b.exprs[0])
	}
}

func (i *Interpreter) applyGetter(ctx context.Context, w *world.World, spec ArgSpec, expr ast.Expression) (runtime.Value, error) {
	get := spec.Get
	if get == nil {
		get = GetValue
	}
	value, err := get(ctx, i, w, expr)
	if err != nil {
		if spec.Rescue != nil {
			log.LogVf("argument %s rescued after: %v", spec.Name, err)
			return spec.Rescue, nil
		}
		return nil, err
	}
	return value, nil
}

// Dispatch selects the command in set that matches expr, resolves its arguments
// and runs its handler. Handler errors propagate unchanged.
func (i *Interpreter) Dispatch(ctx context.Context, set *CommandSet, w *world.World, expr ast.Expression, from string) (*world.World, error) {
	seq := asSequence(expr)
	cmd, bindings, named := selectCandidate(set, seq)
	if cmd == nil {
		return w, noMatch(set, seq, named)
	}
	log.LogVf("%s dispatch `%s` -> `%s` (rank %d)", set.Label, seq, cmd.Usage(), set.Rank(cmd))
	args, err := i.resolveBindings(ctx, w, cmd.Name, bindings)
	if err != nil {
		return w, err
	}
	if cmd.View {
		from = ""
	}
	next, err := cmd.Handler(ctx, w, from, args)
	if next == nil {
		next = w
	}
	return next, err
}

// fetch resolves a sequence through the fetchers of set. ok is false when no
// fetcher in set carries the sequence's name.
func (i *Interpreter) fetch(ctx context.Context, set *FetcherSet, w *world.World, seq *ast.Sequence) (runtime.Value, bool, error) {
	fetcher, bindings, named := selectCandidate(set, seq)
	if fetcher == nil {
		if len(named) == 0 {
			return nil, false, nil
		}
		return nil, true, &ResolutionError{Expr: seq, Reason: noMatch(set, seq, named).Error()}
	}
	log.LogVf("%s fetch `%s` -> `%s`", set.Label, seq, fetcher.Usage())
	args, err := i.resolveBindings(ctx, w, fetcher.Name, bindings)
	if err != nil {
		return nil, true, err
	}
	value, err := fetcher.Fetch(ctx, w, args)
	if err != nil {
		return nil, true, err
	}
	if fetcher.Yields != KindAny && value != nil && value.Kind() != fetcher.Yields {
		return nil, true, resolutionErrorf(seq, "%s yielded %s, declared %s", fetcher.Name, value.Kind(), fetcher.Yields)
	}
	return value, true, nil
}

// Suggest lists up to three names close to word for "did you mean" hints.
func Suggest(word string, names []string) []string {
	return suggest(word, names)
}

// suggest ranks names close to word: fuzzy subsequence matches first, then
// small edit distances.
func suggest(word string, names []string) []string {
	if word == "" || len(names) == 0 {
		return nil
	}
	var out []string
	ranks := fuzzy.RankFindFold(word, names)
	sort.Sort(ranks)
	for _, rank := range ranks {
		if len(out) == 3 {
			break
		}
		if !strings.EqualFold(rank.Target, word) {
			out = append(out, rank.Target)
		}
	}
	if len(out) > 0 {
		return out
	}
	type scored struct {
		name string
		dist int
	}
	var nearby []scored
	for _, name := range names {
		dist := fuzzy.LevenshteinDistance(strings.ToLower(word), strings.ToLower(name))
		if dist <= 2 && dist > 0 {
			nearby = append(nearby, scored{name, dist})
		}
	}
	sort.SliceStable(nearby, func(a, b int) bool { return nearby[a].dist < nearby[b].dist })
	for _, c := range nearby {
		if len(out) == 3 {
			break
		}
		out = append(out, c.name)
	}
	return out
}
