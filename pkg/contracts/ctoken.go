package contracts

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/interpreter"
	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

const cTokenFamily = "CToken"

// mockable maps lower-cased variable names to market storage slots.
var mockable = map[string]string{
	"totalborrows":  "totalBorrows",
	"totalreserves": "totalReserves",
}

// CToken is the money market family.
func CToken() interpreter.Family {
	return interpreter.Family{
		Name:     cTokenFamily,
		Doc:      "Money market commands, e.g. `CToken cBAT Mint 10`",
		Commands: interpreter.NewCommandSet(cTokenFamily, cTokenCommands()...),
		Fetchers: interpreter.NewFetcherSet(cTokenFamily, cTokenFetchers()...),
	}
}

// marketVerb declares `<market> Name amount` calling method with the amount.
func marketVerb(doc, name, method, format string, amount interpreter.ArgSpec) *interpreter.Command {
	return interpreter.NewCommand(doc, name,
		[]interpreter.ArgSpec{contractArg(cTokenFamily), amount},
		func(ctx context.Context, w *world.World, from string, args interpreter.Args) (*world.World, error) {
			ref, err := lookup(w, args)
			if err != nil {
				return w, err
			}
			value := args.Number("amount")
			if !args.Has("amount") {
				trx := w.Trx()
				if !trx.HasValue {
					return w, fmt.Errorf("%s requires an amount or a Trx Value", name)
				}
				value = trx.Value
			}
			return send(ctx, w, ref, from, fmt.Sprintf(format, value, ref.Name), method, value)
		}).At(1)
}

func cTokenCommands() []*interpreter.Command {
	arg, num := interpreter.Arg, interpreter.GetNumber
	return []*interpreter.Command{
		interpreter.NewCommand("Deploys a market over an Erc20 underlying", "Deploy",
			[]interpreter.ArgSpec{
				arg("name", interpreter.GetString),
				arg("underlying", GetContract(erc20Family)),
				arg("exchangeRate", num, interpreter.Default(runtime.Int(1))),
				arg("borrowRate", num, interpreter.Default(runtime.Int(0))),
				arg("collateralFactor", num, interpreter.Default(runtime.Number(decimal.NewFromFloat(0.5)))),
				arg("reserveFactor", num, interpreter.Default(runtime.Int(0))),
			},
			func(ctx context.Context, w *world.World, from string, args interpreter.Args) (*world.World, error) {
				spec := remote.DeploySpec{
					Kind: "ctoken",
					Name: args.String("name"),
					Params: map[string]any{
						"underlying":       args.Address("underlying"),
						"exchangeRate":     args.Number("exchangeRate"),
						"borrowRate":       args.Number("borrowRate"),
						"collateralFactor": args.Number("collateralFactor"),
						"reserveFactor":    args.Number("reserveFactor"),
					},
				}
				params := map[string]string{"underlying": args.Address("underlying")}
				if ref, ok := w.ContractAt(args.Address("underlying")); ok {
					params["symbol"] = "c" + symbolOf(ref)
				}
				return deploy(ctx, w, from, cTokenFamily, "ctoken", spec, params)
			}),
		marketVerb("Supplies amount of the underlying; without an amount the Trx Value is used", "Mint", "mint",
			"Mint %s %s", arg("amount", num, interpreter.Nullable())),
		marketVerb("Redeems tokens for the underlying", "Redeem", "redeem",
			"Redeem %s %s", arg("amount", num)),
		marketVerb("Redeems cTokens worth amount of the underlying", "RedeemUnderlying", "redeemUnderlying",
			"Redeem underlying %s from %s", arg("amount", num)),
		marketVerb("Borrows amount of the underlying", "Borrow", "borrow",
			"Borrow %s from %s", arg("amount", num)),
		marketVerb("Repays up to amount of the acting identity's borrow", "RepayBorrow", "repayBorrow",
			"Repay borrow %s to %s", arg("amount", num)),
		interpreter.NewCommand("Applies interest accrued since the last accrual", "AccrueInterest",
			[]interpreter.ArgSpec{contractArg(cTokenFamily)},
			func(ctx context.Context, w *world.World, from string, args interpreter.Args) (*world.World, error) {
				ref, err := lookup(w, args)
				if err != nil {
					return w, err
				}
				return send(ctx, w, ref, from, "Accrue interest on "+ref.Name, "accrueInterest")
			}).At(1),
		interpreter.NewCommand("Overwrites totalBorrows or totalReserves", "Mock",
			[]interpreter.ArgSpec{contractArg(cTokenFamily), arg("variable", interpreter.GetString), arg("value", num)},
			func(ctx context.Context, w *world.World, from string, args interpreter.Args) (*world.World, error) {
				variable, ok := mockable[strings.ToLower(args.String("variable"))]
				if !ok {
					return w, fmt.Errorf("Mock %q not defined for cToken", args.String("variable"))
				}
				ref, err := lookup(w, args)
				if err != nil {
					return w, err
				}
				description := fmt.Sprintf("Mock %s %s to %s", ref.Name, variable, args.Number("value"))
				return send(ctx, w, ref, from, description, "mock", variable, args.Number("value"))
			}).At(1),
	}
}

func cTokenFetchers() []*interpreter.Fetcher {
	return []*interpreter.Fetcher{
		viewFetcher(cTokenFamily, "Total outstanding borrows", "TotalBorrows", "totalBorrows", runtime.KindNumber),
		viewFetcher(cTokenFamily, "Total reserves", "TotalReserves", "totalReserves", runtime.KindNumber),
		viewFetcher(cTokenFamily, "cTokens in circulation", "TotalSupply", "totalSupply", runtime.KindNumber),
		viewFetcher(cTokenFamily, "Underlying held by the market", "Cash", "getCash", runtime.KindNumber),
		viewFetcher(cTokenFamily, "Underlying per cToken", "ExchangeRateStored", "exchangeRateStored", runtime.KindNumber),
		viewFetcher(cTokenFamily, "cToken balance of who", "TokenBalance", "balanceOf", runtime.KindNumber, "who"),
		viewFetcher(cTokenFamily, "Borrow balance of who including interest", "BorrowBalance", "borrowBalanceStored", runtime.KindNumber, "who"),
		viewFetcher(cTokenFamily, "Address of the underlying token", "Underlying", "underlying", runtime.KindAddress),
		refFetcher(cTokenFamily, "Address of the market", "Address", runtime.KindAddress,
			func(ref world.ContractRef) runtime.Value { return runtime.AddressValue{Val: ref.Address} }),
	}
}
