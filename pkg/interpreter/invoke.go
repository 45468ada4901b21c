package interpreter

import (
	"context"
	"strings"

	"fortio.org/log"

	"scenario/interpreter-go/pkg/outcome"
	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

// Invocation describes one remote call made on behalf of a command.
type Invocation struct {
	// Description is recorded in the action log, e.g. "Transfer 10 ZRX to Geoff".
	Description string
	// Taxonomy names the error table used to classify the result.
	Taxonomy string
	Call     func(ctx context.Context) (remote.Receipt, error)
}

// Invoke performs inv.Call exactly once and classifies its terminal state. The
// returned world carries the outcome as its last outcome and one new action log
// entry. The error return is reserved for conditions that stop the script: an
// earlier Failure or ThrownError that was never asserted on while strict
// outcomes are enabled.
func Invoke(ctx context.Context, w *world.World, inv Invocation) (*world.World, outcome.Outcome, error) {
	if err := unhandled(w); err != nil {
		return w, nil, err
	}
	log.LogVf("invoke %s", inv.Description)
	receipt, callErr := inv.Call(ctx)
	tax := w.Taxonomy(inv.Taxonomy)
	result := outcome.Classify(receipt, callErr, tax)
	log.S(log.Info, "invoke", log.Str("action", inv.Description), log.Str("outcome", outcome.Summary(result, tax)))

	next := w.WithOutcome(result).WithAction(inv.Description, result)
	if next.PrintTransactionLogs() {
		printLogs(next, result)
	}
	return next, result, nil
}

// unhandled reports the pending outcome when strict outcomes are enabled and the
// last Failure or ThrownError has not been asserted on.
func unhandled(w *world.World) error {
	if !w.StrictOutcomes() || w.OutcomeConsumed() || w.LastOutcome() == nil {
		return nil
	}
	err := &UnhandledOutcome{Outcome: w.LastOutcome()}
	if actions := w.Actions(); len(actions) > 0 {
		err.Action = actions[len(actions)-1].Description
	}
	return err
}

func printLogs(w *world.World, o outcome.Outcome) {
	for _, entry := range outcome.Logs(o) {
		fields := make([]string, 0, len(entry.Fields))
		for _, f := range entry.Fields {
			fields = append(fields, f.Name+"="+formatField(f.Value))
		}
		w.Printer().PrintLine("\t" + entry.Name + " " + strings.Join(fields, " "))
	}
}

func formatField(v any) string {
	return runtime.Show(runtime.FromNative(v))
}
