// Package world holds the state threaded through a scenario run. A World is never
// mutated after construction: every With* method returns a new World sharing
// unchanged parts with its parent.
package world

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/outcome"
	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
)

// Action is one entry of the action log.
type Action struct {
	Description string
	Outcome     outcome.Outcome
}

func (a Action) String() string {
	if a.Outcome == nil {
		return a.Description
	}
	return fmt.Sprintf("%s: %s", a.Description, a.Outcome)
}

// Checker is an invariant or expectation evaluated after each top-level event.
type Checker interface {
	Kind() string
	String() string
	Check(ctx context.Context, w *World) error
}

// ContractRef names a deployed contract within a command family.
type ContractRef struct {
	Family   string
	Name     string
	Address  string
	Taxonomy string
	Params   map[string]string
}

// TrxOptions apply to the next invocation only.
type TrxOptions struct {
	Value    decimal.Decimal
	HasValue bool
}

// Config seeds a new World.
type Config struct {
	Remote         remote.System
	Printer        Printer
	Taxonomies     *outcome.Registry
	Aliases        map[string]string
	DefaultFrom    string
	Settings       *Settings
	StrictOutcomes bool
}

type World struct {
	remote      remote.System
	printer     Printer
	taxonomies  *outcome.Registry
	settings    *Settings
	aliases     map[string]string
	contracts   map[string]ContractRef
	lastOutcome outcome.Outcome
	consumed    bool
	actions     []Action
	invariants  []Checker
	held        map[string]bool
	expects     []Checker
	trx         TrxOptions
	defaultFrom string
	event       ast.Expression
	strict      bool
	printLogs   bool
	invoked     bool
}

// New builds the initial World for a run.
func New(cfg Config) *World {
	printer := cfg.Printer
	if printer == nil {
		printer = Discard
	}
	taxonomies := cfg.Taxonomies
	if taxonomies == nil {
		taxonomies = outcome.DefaultRegistry()
	}
	aliases := make(map[string]string, len(cfg.Aliases))
	if cfg.Settings != nil {
		for name, addr := range cfg.Settings.Aliases {
			aliases[name] = addr
		}
	}
	for name, addr := range cfg.Aliases {
		aliases[name] = addr
	}
	w := &World{
		remote:     cfg.Remote,
		printer:    printer,
		taxonomies: taxonomies,
		settings:   cfg.Settings,
		aliases:    aliases,
		contracts:  map[string]ContractRef{},
		consumed:   true,
		held:       map[string]bool{},
		strict:     cfg.StrictOutcomes,
	}
	w.defaultFrom = w.resolveFrom(cfg.DefaultFrom)
	return w
}

func (w *World) resolveFrom(name string) string {
	if name != "" {
		if addr, ok := w.aliases[name]; ok {
			return addr
		}
		return name
	}
	if w.remote != nil {
		if accounts := w.remote.Accounts(); len(accounts) > 0 {
			return accounts[0]
		}
	}
	return ""
}

func (w *World) clone() *World {
	next := *w
	return &next
}

func (w *World) Remote() remote.System { return w.remote }

func (w *World) Printer() Printer { return w.printer }

func (w *World) Taxonomies() *outcome.Registry { return w.taxonomies }

// Taxonomy returns the named error taxonomy, or nil when unknown.
func (w *World) Taxonomy(name string) *outcome.Taxonomy {
	return w.taxonomies.Get(name)
}

func (w *World) Settings() *Settings { return w.settings }

// Alias returns the address bound to name.
func (w *World) Alias(name string) (string, bool) {
	addr, ok := w.aliases[name]
	return addr, ok
}

// AliasFor returns the alias bound to addr, if any.
func (w *World) AliasFor(addr string) (string, bool) {
	for _, name := range w.AliasNames() {
		if strings.EqualFold(w.aliases[name], addr) {
			return name, true
		}
	}
	return "", false
}

// AliasNames lists aliases in sorted order.
func (w *World) AliasNames() []string {
	names := make([]string, 0, len(w.aliases))
	for name := range w.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (w *World) WithAlias(name, addr string) *World {
	next := w.clone()
	next.aliases = make(map[string]string, len(w.aliases)+1)
	for k, v := range w.aliases {
		next.aliases[k] = v
	}
	next.aliases[name] = addr
	return next
}

func contractKey(family, name string) string {
	return strings.ToLower(family) + "/" + name
}

// Contract looks up a deployed contract by family and name.
func (w *World) Contract(family, name string) (ContractRef, bool) {
	ref, ok := w.contracts[contractKey(family, name)]
	return ref, ok
}

// Contracts lists the contracts of a family sorted by name.
func (w *World) Contracts(family string) []ContractRef {
	var out []ContractRef
	for _, ref := range w.contracts {
		if strings.EqualFold(ref.Family, family) {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ContractAt finds the contract deployed at addr.
func (w *World) ContractAt(addr string) (ContractRef, bool) {
	for _, ref := range w.contracts {
		if strings.EqualFold(ref.Address, addr) {
			return ref, true
		}
	}
	return ContractRef{}, false
}

func (w *World) WithContract(ref ContractRef) *World {
	next := w.clone()
	next.contracts = make(map[string]ContractRef, len(w.contracts)+1)
	for k, v := range w.contracts {
		next.contracts[k] = v
	}
	next.contracts[contractKey(ref.Family, ref.Name)] = ref
	return next
}

// LastOutcome is the classification of the most recent invocation, or nil.
func (w *World) LastOutcome() outcome.Outcome { return w.lastOutcome }

// OutcomeConsumed reports whether an assertion has read the last outcome.
func (w *World) OutcomeConsumed() bool { return w.consumed }

// WithOutcome records a new last outcome. A Success needs no assertion.
func (w *World) WithOutcome(o outcome.Outcome) *World {
	next := w.clone()
	next.lastOutcome = o
	next.consumed = o == nil || o.Kind() == outcome.KindSuccess
	next.invoked = true
	return next
}

// Invoked reports whether an outcome was recorded since the last ResetInvoked.
func (w *World) Invoked() bool { return w.invoked }

func (w *World) ResetInvoked() *World {
	if !w.invoked {
		return w
	}
	next := w.clone()
	next.invoked = false
	return next
}

// ConsumeOutcome marks the last outcome as asserted on.
func (w *World) ConsumeOutcome() *World {
	if w.consumed {
		return w
	}
	next := w.clone()
	next.consumed = true
	return next
}

// Actions returns the action log, oldest first.
func (w *World) Actions() []Action {
	out := make([]Action, len(w.actions))
	copy(out, w.actions)
	return out
}

func (w *World) WithAction(description string, o outcome.Outcome) *World {
	next := w.clone()
	next.actions = make([]Action, len(w.actions), len(w.actions)+1)
	copy(next.actions, w.actions)
	next.actions = append(next.actions, Action{Description: description, Outcome: o})
	return next
}

func (w *World) Invariants() []Checker {
	out := make([]Checker, len(w.invariants))
	copy(out, w.invariants)
	return out
}

func (w *World) WithInvariant(c Checker) *World {
	next := w.clone()
	next.invariants = append(w.Invariants(), c)
	return next
}

// ClearInvariants removes invariants of kind, or all of them for "All".
func (w *World) ClearInvariants(kind string) *World {
	next := w.clone()
	next.invariants = nil
	for _, inv := range w.invariants {
		if !kindMatches(kind, inv.Kind()) {
			next.invariants = append(next.invariants, inv)
		}
	}
	return next
}

// HoldInvariants skips invariants of kind on the next check.
func (w *World) HoldInvariants(kind string) *World {
	next := w.clone()
	next.held = make(map[string]bool, len(w.held)+1)
	for k, v := range w.held {
		next.held[k] = v
	}
	next.held[strings.ToLower(kind)] = true
	return next
}

// Held reports whether invariants of kind are held for the current event.
func (w *World) Held(kind string) bool {
	return w.held["all"] || w.held[strings.ToLower(kind)]
}

func (w *World) ReleaseHolds() *World {
	if len(w.held) == 0 {
		return w
	}
	next := w.clone()
	next.held = map[string]bool{}
	return next
}

func kindMatches(filter, kind string) bool {
	return strings.EqualFold(filter, "all") || strings.EqualFold(filter, kind)
}

func (w *World) Expectations() []Checker {
	out := make([]Checker, len(w.expects))
	copy(out, w.expects)
	return out
}

func (w *World) WithExpectation(c Checker) *World {
	next := w.clone()
	next.expects = append(w.Expectations(), c)
	return next
}

func (w *World) ClearExpectations() *World {
	next := w.clone()
	next.expects = nil
	return next
}

func (w *World) Trx() TrxOptions { return w.trx }

func (w *World) WithTrxValue(value decimal.Decimal) *World {
	next := w.clone()
	next.trx = TrxOptions{Value: value, HasValue: true}
	return next
}

func (w *World) ClearTrx() *World {
	if !w.trx.HasValue {
		return w
	}
	next := w.clone()
	next.trx = TrxOptions{}
	return next
}

// DefaultFrom is the acting identity used when a line has no From wrapper.
func (w *World) DefaultFrom() string { return w.defaultFrom }

func (w *World) WithDefaultFrom(addr string) *World {
	next := w.clone()
	next.defaultFrom = addr
	return next
}

// Event is the top-level expression currently being processed.
func (w *World) Event() ast.Expression { return w.event }

func (w *World) WithEvent(expr ast.Expression) *World {
	next := w.clone()
	next.event = expr
	return next
}

// StrictOutcomes reports whether unasserted failures abort the run.
func (w *World) StrictOutcomes() bool { return w.strict }

func (w *World) WithStrictOutcomes(strict bool) *World {
	next := w.clone()
	next.strict = strict
	return next
}

func (w *World) PrintTransactionLogs() bool { return w.printLogs }

func (w *World) WithPrintTransactionLogs(enabled bool) *World {
	next := w.clone()
	next.printLogs = enabled
	return next
}

// Slot resolves a named world slot: "Me" is the default acting identity, a
// "Family.Name" slot is a deployed contract address, and any other name is
// looked up in the alias table.
func (w *World) Slot(name string) (runtime.Value, bool) {
	switch name {
	case "Me", "From":
		if w.defaultFrom == "" {
			return nil, false
		}
		return runtime.AddressValue{Val: w.defaultFrom}, true
	}
	if family, contract, ok := strings.Cut(name, "."); ok {
		if ref, found := w.Contract(family, contract); found {
			return runtime.AddressValue{Val: ref.Address}, true
		}
		return nil, false
	}
	if addr, ok := w.aliases[name]; ok {
		return runtime.AddressValue{Val: addr}, true
	}
	return nil, false
}
