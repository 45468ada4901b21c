package interpreter

import (
	"fmt"
	"strings"
)

// Help renders markdown help for the command reached by path, or an index of the
// core commands when path is empty.
func (i *Interpreter) Help(path ...string) string {
	set := i.core
	var b strings.Builder
	if len(path) == 0 {
		writeIndex(&b, set)
		return strings.TrimRight(b.String(), "\n")
	}
	for depth, name := range path {
		cmds := set.Named(name)
		if len(cmds) == 0 {
			msg := fmt.Sprintf("no help for %q", strings.Join(path[:depth+1], " "))
			if s := suggest(name, set.Names()); len(s) > 0 {
				msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(quoteAll(s), " or "))
			}
			return msg
		}
		last := depth == len(path)-1
		if last {
			writeCommands(&b, cmds)
			for _, cmd := range cmds {
				if cmd.Subcommands != nil {
					b.WriteString("\n")
					writeIndex(&b, cmd.Subcommands())
				}
			}
			break
		}
		next := subcommandsOf(cmds)
		if next == nil {
			return fmt.Sprintf("%q has no subcommands", name)
		}
		set = next
	}
	return strings.TrimRight(b.String(), "\n")
}

// Docs renders markdown for every command, assertion and family.
func (i *Interpreter) Docs() string {
	var b strings.Builder
	b.WriteString("# Scenario commands\n\n")
	writeSection(&b, "Core", i.core)
	writeSection(&b, "Assertions", i.assertions)
	writeSection(&b, "Invariants", i.invariants)
	writeSection(&b, "Expectations", i.expectations)
	for _, f := range i.families {
		writeSection(&b, f.Name, f.Commands)
		writeFetchers(&b, f.Name+" values", f.Fetchers)
	}
	writeFetchers(&b, "Values", i.fetchers)
	return b.String()
}

func subcommandsOf(cmds []*Command) *CommandSet {
	for _, cmd := range cmds {
		if cmd.Subcommands != nil {
			return cmd.Subcommands()
		}
	}
	return nil
}

func writeIndex(b *strings.Builder, set *CommandSet) {
	for _, cmd := range set.All() {
		fmt.Fprintf(b, "* `%s` - %s\n", cmd.Usage(), cmd.Doc)
	}
}

func writeCommands(b *strings.Builder, cmds []*Command) {
	fmt.Fprintf(b, "#### %s\n\n", cmds[0].Name)
	for _, cmd := range cmds {
		fmt.Fprintf(b, "* `%s` - %s\n", cmd.Usage(), cmd.Doc)
	}
}

func writeSection(b *strings.Builder, title string, set *CommandSet) {
	fmt.Fprintf(b, "## %s\n\n", title)
	writeIndex(b, set)
	b.WriteString("\n")
}

func writeFetchers(b *strings.Builder, title string, set *FetcherSet) {
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, f := range set.All() {
		yields := "Any"
		if f.Yields != KindAny {
			yields = f.Yields.String()
		}
		fmt.Fprintf(b, "* `%s` -> %s - %s\n", f.Usage(), yields, f.Doc)
	}
	b.WriteString("\n")
}
