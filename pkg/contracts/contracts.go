// Package contracts provides the domain command families driven through the
// interpreter: Erc20 tokens and CToken money markets. Each family addresses its
// deployed contracts by the name given at deployment, e.g. `Erc20 BAT Transfer
// Torrey 10`.
package contracts

import (
	"context"
	"fmt"
	"strings"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/interpreter"
	"scenario/interpreter-go/pkg/outcome"
	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

// Register installs every family on i.
func Register(i *interpreter.Interpreter) {
	i.RegisterFamily(Erc20())
	i.RegisterFamily(CToken())
}

// GetContract returns a getter that reads the name of a contract deployed in
// family, or any address of one, and yields its Address.
func GetContract(family string) interpreter.Getter {
	return func(ctx context.Context, i *interpreter.Interpreter, w *world.World, expr ast.Expression) (runtime.Value, error) {
		if atom, ok := expr.(*ast.Atom); ok && !runtime.IsHexAddress(atom.Text) {
			if ref, found := w.Contract(family, atom.Text); found {
				return runtime.AddressValue{Val: ref.Address}, nil
			}
			var names []string
			for _, ref := range w.Contracts(family) {
				names = append(names, ref.Name)
			}
			return nil, &interpreter.ResolutionError{
				Expr:        expr,
				Reason:      fmt.Sprintf("no %s named %q", family, atom.Text),
				Suggestions: interpreter.Suggest(atom.Text, names),
			}
		}
		value, err := interpreter.GetAddress(ctx, i, w, expr)
		if err != nil {
			return nil, err
		}
		addr := value.(runtime.AddressValue).Val
		if ref, found := w.ContractAt(addr); !found || !strings.EqualFold(ref.Family, family) {
			return nil, &interpreter.ResolutionError{Expr: expr, Reason: fmt.Sprintf("%s is not a deployed %s", addr, family)}
		}
		return value, nil
	}
}

// contractArg is the leading argument of every per-contract command.
func contractArg(family string) interpreter.ArgSpec {
	return interpreter.Arg("contract", GetContract(family))
}

// lookup returns the deployment record behind a resolved contract argument.
func lookup(w *world.World, args interpreter.Args) (world.ContractRef, error) {
	addr := args.Address("contract")
	ref, ok := w.ContractAt(addr)
	if !ok {
		return world.ContractRef{}, fmt.Errorf("no contract at %s", addr)
	}
	return ref, nil
}

func remoteOf(w *world.World) (remote.System, error) {
	sys := w.Remote()
	if sys == nil {
		return nil, fmt.Errorf("no remote system configured")
	}
	return sys, nil
}

// deploy creates a contract through Invoke and records it under name. A failed
// deployment leaves only its outcome behind.
func deploy(ctx context.Context, w *world.World, from, family, taxonomy string, spec remote.DeploySpec, params map[string]string) (*world.World, error) {
	if _, exists := w.Contract(family, spec.Name); exists {
		return w, fmt.Errorf("%s %q already deployed", family, spec.Name)
	}
	sys, err := remoteOf(w)
	if err != nil {
		return w, err
	}
	next, result, err := interpreter.Invoke(ctx, w, interpreter.Invocation{
		Description: fmt.Sprintf("Deploy %s %s", family, spec.Name),
		Taxonomy:    taxonomy,
		Call: func(ctx context.Context) (remote.Receipt, error) {
			addr, err := sys.Deploy(ctx, from, spec)
			return remote.Receipt{Return: addr}, err
		},
	})
	if err != nil {
		return next, err
	}
	success, ok := result.(outcome.Success)
	if !ok {
		return next, nil
	}
	addr, ok := success.Value.(runtime.AddressValue)
	if !ok {
		return next, fmt.Errorf("deploy returned %s, want an address", runtime.Show(success.Value))
	}
	return next.WithContract(world.ContractRef{
		Family:   family,
		Name:     spec.Name,
		Address:  addr.Val,
		Taxonomy: taxonomy,
		Params:   params,
	}), nil
}

// send invokes method on ref as from. A pending Trx value travels with the call.
func send(ctx context.Context, w *world.World, ref world.ContractRef, from, description, method string, args ...any) (*world.World, error) {
	sys, err := remoteOf(w)
	if err != nil {
		return w, err
	}
	call := remote.Call{From: from, To: ref.Address, Method: method, Args: args}
	if trx := w.Trx(); trx.HasValue {
		call.Value = trx.Value
	}
	next, _, err := interpreter.Invoke(ctx, w, interpreter.Invocation{
		Description: description,
		Taxonomy:    ref.Taxonomy,
		Call: func(ctx context.Context) (remote.Receipt, error) {
			return sys.Send(ctx, call)
		},
	})
	return next, err
}

// read calls a view method and converts the result.
func read(ctx context.Context, w *world.World, ref world.ContractRef, method string, args ...any) (runtime.Value, error) {
	sys, err := remoteOf(w)
	if err != nil {
		return nil, err
	}
	raw, err := sys.Call(ctx, remote.Call{To: ref.Address, Method: method, Args: args})
	if err != nil {
		return nil, err
	}
	return runtime.FromNative(raw), nil
}

// viewFetcher declares `<contract> Name ...args` yielding the result of method
// called with the named address arguments.
func viewFetcher(family, doc, name, method string, yields runtime.Kind, params ...string) *interpreter.Fetcher {
	specs := []interpreter.ArgSpec{contractArg(family)}
	for _, p := range params {
		specs = append(specs, interpreter.Arg(p, interpreter.GetAddress))
	}
	return interpreter.NewFetcher(doc, name, yields, specs,
		func(ctx context.Context, w *world.World, args interpreter.Args) (runtime.Value, error) {
			ref, err := lookup(w, args)
			if err != nil {
				return nil, err
			}
			callArgs := make([]any, len(params))
			for idx, p := range params {
				callArgs[idx] = args.Address(p)
			}
			return read(ctx, w, ref, method, callArgs...)
		}).At(1)
}

// refFetcher declares `<contract> Name` answered from the deployment record.
func refFetcher(family, doc, name string, yields runtime.Kind, get func(world.ContractRef) runtime.Value) *interpreter.Fetcher {
	return interpreter.NewFetcher(doc, name, yields, []interpreter.ArgSpec{contractArg(family)},
		func(_ context.Context, w *world.World, args interpreter.Args) (runtime.Value, error) {
			ref, err := lookup(w, args)
			if err != nil {
				return nil, err
			}
			return get(ref), nil
		}).At(1)
}

func symbolOf(ref world.ContractRef) string {
	if symbol := ref.Params["symbol"]; symbol != "" {
		return symbol
	}
	return ref.Name
}

func describe(w *world.World, addr string) string {
	return interpreter.DescribeAddress(w, addr)
}
