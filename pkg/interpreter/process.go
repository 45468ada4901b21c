package interpreter

import (
	"context"

	"fortio.org/log"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/world"
)

// ProcessEvents runs events strictly in order. The first error stops the run; it
// is returned as an *EventProcessingError together with the last good world.
func (i *Interpreter) ProcessEvents(ctx context.Context, w *world.World, events []ast.Expression) (*world.World, error) {
	for _, event := range events {
		next, err := i.ProcessEvent(ctx, w, event)
		if err != nil {
			return w, err
		}
		w = next
	}
	return w, nil
}

// ProcessEvent dispatches one top-level event as the world's default identity.
// When the event invoked the remote system, unheld invariants are checked and
// pending expectations are checked and cleared. Transaction options never
// outlive the event.
func (i *Interpreter) ProcessEvent(ctx context.Context, w *world.World, event ast.Expression) (*world.World, error) {
	if err := ctx.Err(); err != nil {
		return w, &EventProcessingError{Expr: event, Err: err}
	}
	start := w.WithEvent(event).ResetInvoked()
	next, err := i.Dispatch(ctx, i.core, start, event, start.DefaultFrom())
	if err != nil {
		log.LogVf("event `%s` failed: %v", ast.FormatLine(event), err)
		return w, &EventProcessingError{Expr: event, Err: err}
	}
	if next.Invoked() {
		if err := checkInvariants(ctx, next); err != nil {
			return w, &EventProcessingError{Expr: event, Err: err}
		}
		if err := checkExpectations(ctx, next); err != nil {
			return w, &EventProcessingError{Expr: event, Err: err}
		}
		next = next.ReleaseHolds().ClearExpectations()
	}
	return next.ClearTrx(), nil
}

// Finish reports an outcome left unasserted at the end of a run.
func (i *Interpreter) Finish(w *world.World) error {
	return unhandled(w)
}

func checkInvariants(ctx context.Context, w *world.World) error {
	for _, inv := range w.Invariants() {
		if w.Held(inv.Kind()) {
			log.LogVf("invariant %s held", inv)
			continue
		}
		if err := inv.Check(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func checkExpectations(ctx context.Context, w *world.World) error {
	for _, exp := range w.Expectations() {
		if err := exp.Check(ctx, w); err != nil {
			return err
		}
	}
	return nil
}
