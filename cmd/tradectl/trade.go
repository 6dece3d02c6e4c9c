package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"papertrade/internal/app"
	"papertrade/internal/models"
	"papertrade/internal/portfolio"

	"github.com/google/subcommands"
)

// tradeCmd is both "buy" and "sell"; typ picks which.
type tradeCmd struct {
	typ      models.TxType
	username string
	symbol   string
	shares   string
}

func (c *tradeCmd) Name() string { return string(c.typ) }
func (c *tradeCmd) Synopsis() string {
	return fmt.Sprintf("%s shares at the current quote", c.typ)
}
func (c *tradeCmd) Usage() string {
	return fmt.Sprintf("tradectl %s -u <username> -s <symbol> -n <shares>\n", c.typ)
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "u", "", "username")
	f.StringVar(&c.symbol, "s", "", "stock symbol")
	f.StringVar(&c.shares, "n", "", "number of shares")
}

func (c *tradeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	shares, err := portfolio.ParseShares(c.shares)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app.App) error {
		u, err := lookupUser(ctx, a, c.username)
		if err != nil {
			return err
		}
		if c.typ == models.Buy {
			_, err = a.Engine.Buy(ctx, u.ID, c.symbol, shares)
		} else {
			_, err = a.Engine.Sell(ctx, u.ID, c.symbol, shares)
		}
		if err != nil {
			return err
		}
		cash, err := a.Engine.Cash(ctx, u.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d %s. Cash: %s\n", c.typ, shares, c.symbol, models.USD(cash))
		return nil
	})
}

type quoteCmd struct{}

func (*quoteCmd) Name() string             { return "quote" }
func (*quoteCmd) Synopsis() string         { return "print the current quote of one or more symbols" }
func (*quoteCmd) Usage() string            { return "tradectl quote <symbol>...\n" }
func (*quoteCmd) SetFlags(f *flag.FlagSet) {}

func (c *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app.App) error {
		for _, sym := range f.Args() {
			q, err := a.Engine.Quote(ctx, sym)
			if err != nil {
				return err
			}
			fmt.Printf("A share of %s (%s) costs %s.\n", q.Name, q.Symbol, models.USD(q.Price))
		}
		return nil
	})
}
