package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"papertrade/internal/app"
	"papertrade/internal/models"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type portfolioCmd struct {
	username string
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "value a user's holdings at current quotes" }
func (*portfolioCmd) Usage() string    { return "tradectl portfolio -u <username>\n" }

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "u", "", "username")
}

func (c *portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		u, err := lookupUser(ctx, a, c.username)
		if err != nil {
			return err
		}
		v, err := a.Engine.Portfolio(ctx, u.ID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "Symbol\tName\tShares\tPrice\tTotal\t")
		for _, p := range v.Positions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t\n", p.Symbol, p.Name, p.Shares, models.USD(p.Price), models.USD(p.Total))
		}
		for _, h := range v.Unpriced {
			fmt.Fprintf(w, "%s\t\t%d\tn/a\tn/a\t\n", h.Symbol, h.Shares)
		}
		fmt.Fprintf(w, "Cash\t\t\t\t%s\t\n", models.USD(v.Cash))
		fmt.Fprintf(w, "TOTAL\t\t\t\t%s\t\n", models.USD(v.Total))
		return w.Flush()
	})
}

type historyCmd struct {
	username string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list a user's transactions, newest first" }
func (*historyCmd) Usage() string    { return "tradectl history -u <username>\n" }

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "u", "", "username")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		u, err := lookupUser(ctx, a, c.username)
		if err != nil {
			return err
		}
		rows, err := a.Engine.History(ctx, u.ID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Time\tType\tSymbol\tShares\tPrice\tAmount")
		net := decimal.Zero
		for _, t := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				t.Timestamp.Local().Format("2006-01-02 15:04:05"), t.Type, t.Symbol, t.Shares, models.USD(t.Price), models.USD(t.Amount()))
			if t.Type == models.Buy {
				net = net.Sub(t.Amount())
			} else {
				net = net.Add(t.Amount())
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("%d transactions, net cash flow %s\n", len(rows), models.USD(net))
		return nil
	})
}
