package contracts

import (
	"context"
	"fmt"

	"scenario/interpreter-go/pkg/interpreter"
	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

const erc20Family = "Erc20"

// Erc20 is the token family.
func Erc20() interpreter.Family {
	return interpreter.Family{
		Name:     erc20Family,
		Doc:      "ERC-20 token commands, e.g. `Erc20 BAT Transfer Torrey 10`",
		Commands: interpreter.NewCommandSet(erc20Family, erc20Commands()...),
		Fetchers: interpreter.NewFetcherSet(erc20Family, erc20Fetchers()...),
	}
}

func erc20Commands() []*interpreter.Command {
	arg, num, addr := interpreter.Arg, interpreter.GetNumber, interpreter.GetAddress
	return []*interpreter.Command{
		interpreter.NewCommand("Deploys a token with the given symbol", "Deploy",
			[]interpreter.ArgSpec{
				arg("name", interpreter.GetString),
				arg("symbol", interpreter.GetString),
				arg("decimals", num, interpreter.Default(runtime.Int(18))),
			},
			func(ctx context.Context, w *world.World, from string, args interpreter.Args) (*world.World, error) {
				spec := remote.DeploySpec{
					Kind: "erc20",
					Name: args.String("name"),
					Params: map[string]any{
						"symbol":   args.String("symbol"),
						"decimals": args.Number("decimals"),
					},
				}
				params := map[string]string{
					"symbol":   args.String("symbol"),
					"decimals": args.Number("decimals").String(),
				}
				return deploy(ctx, w, from, erc20Family, "erc20", spec, params)
			}),
		interpreter.NewCommand("Mints amount tokens to who", "Faucet",
			[]interpreter.ArgSpec{contractArg(erc20Family), arg("who", addr), arg("amount", num)},
			func(ctx context.Context, w *world.World, from string, args interpreter.Args) (*world.World, error) {
				ref, err := lookup(w, args)
				if err != nil {
					return w, err
				}
				description := fmt.Sprintf("Faucet %s %s to %s", args.Number("amount"), symbolOf(ref), describe(w, args.Address("who")))
				return send(ctx, w, ref, from, description, "faucet", args.Address("who"), args.Number("amount"))
			}).At(1),
		interpreter.NewCommand("Allows spender to move amount of the acting identity's tokens", "Approve",
			[]interpreter.ArgSpec{contractArg(erc20Family), arg("spender", addr), arg("amount", num)},
			func(ctx context.Context, w *world.World, from string, args interpreter.Args) (*world.World, error) {
				ref, err := lookup(w, args)
				if err != nil {
					return w, err
				}
				description := fmt.Sprintf("Approve %s to spend %s %s", describe(w, args.Address("spender")), args.Number("amount"), symbolOf(ref))
				return send(ctx, w, ref, from, description, "approve", args.Address("spender"), args.Number("amount"))
			}).At(1),
		interpreter.NewCommand("Transfers amount tokens to to", "Transfer",
			[]interpreter.ArgSpec{contractArg(erc20Family), arg("to", addr), arg("amount", num)},
			func(ctx context.Context, w *world.World, from string, args interpreter.Args) (*world.World, error) {
				ref, err := lookup(w, args)
				if err != nil {
					return w, err
				}
				description := fmt.Sprintf("Transfer %s %s to %s", args.Number("amount"), symbolOf(ref), describe(w, args.Address("to")))
				return send(ctx, w, ref, from, description, "transfer", args.Address("to"), args.Number("amount"))
			}).At(1),
		interpreter.NewCommand("Transfers amount of owner's tokens to to using an allowance", "TransferFrom",
			[]interpreter.ArgSpec{contractArg(erc20Family), arg("owner", addr), arg("to", addr), arg("amount", num)},
			func(ctx context.Context, w *world.World, from string, args interpreter.Args) (*world.World, error) {
				ref, err := lookup(w, args)
				if err != nil {
					return w, err
				}
				description := fmt.Sprintf("Transfer %s %s from %s to %s", args.Number("amount"), symbolOf(ref),
					describe(w, args.Address("owner")), describe(w, args.Address("to")))
				return send(ctx, w, ref, from, description, "transferFrom",
					args.Address("owner"), args.Address("to"), args.Number("amount"))
			}).At(1),
	}
}

func erc20Fetchers() []*interpreter.Fetcher {
	return []*interpreter.Fetcher{
		viewFetcher(erc20Family, "Token balance of who", "TokenBalance", "balanceOf", runtime.KindNumber, "who"),
		viewFetcher(erc20Family, "Amount spender may move from owner", "Allowance", "allowance", runtime.KindNumber, "owner", "spender"),
		viewFetcher(erc20Family, "Tokens in circulation", "TotalSupply", "totalSupply", runtime.KindNumber),
		viewFetcher(erc20Family, "Token symbol", "Symbol", "symbol", runtime.KindString),
		viewFetcher(erc20Family, "Token decimals", "Decimals", "decimals", runtime.KindNumber),
		refFetcher(erc20Family, "Address of the token", "Address", runtime.KindAddress,
			func(ref world.ContractRef) runtime.Value { return runtime.AddressValue{Val: ref.Address} }),
		refFetcher(erc20Family, "Name given at deployment", "Name", runtime.KindString,
			func(ref world.ContractRef) runtime.Value { return runtime.String(ref.Name) }),
	}
}
