package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"papertrade/internal/app"
	"papertrade/internal/database"
	"papertrade/internal/portfolio"
	"papertrade/internal/service"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string             { return "migrate" }
func (*migrateCmd) Synopsis() string         { return "create the ledger tables if missing" }
func (*migrateCmd) Usage() string            { return "tradectl migrate\n" }
func (*migrateCmd) SetFlags(f *flag.FlagSet) {}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	// Opening the ledger migrates it.
	return run(ctx, func(a *app.App) error {
		fmt.Println("Ledger schema is up to date.")
		return nil
	})
}

type resetCmd struct {
	defaults bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "delete every user and transaction" }
func (*resetCmd) Usage() string {
	return `tradectl reset [-defaults]

  Empties the ledger. With -defaults, recreates the admin, test and demo users.
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.defaults, "defaults", false, "recreate the default users after the reset")
}

var defaultUsers = []struct{ name, password string }{
	{"admin", "admin123"},
	{"test", "test123"},
	{"demo", "demo123"},
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		if err := a.Repo.Reset(ctx); err != nil {
			return err
		}
		fmt.Println("Ledger reset.")
		if !c.defaults {
			return nil
		}
		for _, u := range defaultUsers {
			if _, err := a.Accounts.Register(ctx, u.name, u.password, u.password); err != nil {
				return err
			}
			fmt.Printf("  Username: %s, Password: %s\n", u.name, u.password)
		}
		return nil
	})
}

type registerCmd struct {
	username string
	password string
}

func (*registerCmd) Name() string     { return "register" }
func (*registerCmd) Synopsis() string { return "create a user with the configured opening cash" }
func (*registerCmd) Usage() string {
	return "tradectl register -u <username> -p <password>\n"
}

func (c *registerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "u", "", "username")
	f.StringVar(&c.password, "p", "", "password")
}

func (c *registerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		id, err := a.Accounts.Register(ctx, c.username, c.password, c.password)
		if err != nil {
			return err
		}
		fmt.Printf("Registered %s with id %d.\n", c.username, id)
		return nil
	})
}

type seedCmd struct {
	seed int64
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "add sample users and random trades" }
func (*seedCmd) Usage() string {
	return `tradectl seed [-seed <n>]

  Registers alice, bob, charlie, diana and eve (skipping existing ones) and
  trades 3 to 8 times for each at prices within 20% of the listing price.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.seed, "seed", time.Now().UnixNano(), "random seed")
}

var sampleUsers = []struct{ name, password string }{
	{"alice", "password123"},
	{"bob", "password456"},
	{"charlie", "password789"},
	{"diana", "password101"},
	{"eve", "password202"},
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		rnd := rand.New(rand.NewSource(c.seed))
		market := service.NewMarketSim(service.DefaultListings, a.Log)
		engine := portfolio.NewEngine(a.Repo, market, nil, a.Log)
		symbols := market.Symbols()

		for _, u := range sampleUsers {
			if _, err := a.Repo.GetUserByUsername(ctx, u.name); !errors.Is(err, database.ErrUserNotFound) {
				if err != nil {
					return err
				}
				fmt.Printf("User %s already exists, skipping...\n", u.name)
				continue
			}
			id, err := a.Accounts.Register(ctx, u.name, u.password, u.password)
			if err != nil {
				return err
			}
			trades := 0
			for i, n := 0, 3+rnd.Intn(6); i < n; i++ {
				sym := symbols[rnd.Intn(len(symbols))]
				base := service.DefaultListings[sym].Price
				factor := decimal.NewFromFloat(0.8 + 0.4*rnd.Float64())
				market.Set(sym, base.Mul(factor).Round(2))
				shares := int64(1 + rnd.Intn(10))

				if rnd.Float64() < 0.7 {
					_, err = engine.Buy(ctx, id, sym, shares)
				} else {
					_, err = engine.Sell(ctx, id, sym, shares)
				}
				if portfolio.IsRejection(err) {
					continue
				}
				if err != nil {
					return err
				}
				trades++
			}
			fmt.Printf("Added user %s with %d trades.\n", u.name, trades)
		}

		stats, err := a.Repo.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\nLedger holds %d users and %d transactions.\n", stats.Users, stats.Transactions)
		return nil
	})
}

type verifyCmd struct{}

func (*verifyCmd) Name() string             { return "verify" }
func (*verifyCmd) Synopsis() string         { return "audit the ledger for broken bookkeeping" }
func (*verifyCmd) Usage() string            { return "tradectl verify\n" }
func (*verifyCmd) SetFlags(f *flag.FlagSet) {}

var errViolations = errors.New("ledger audit failed")

func (c *verifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		violations, err := a.Repo.Audit(ctx)
		if err != nil {
			return err
		}
		stats, err := a.Repo.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Checked %d users and %d transactions.\n", stats.Users, stats.Transactions)
		for _, v := range violations {
			fmt.Fprintln(os.Stderr, "  "+v.String())
		}
		if len(violations) > 0 {
			return fmt.Errorf("%w: %d violations", errViolations, len(violations))
		}
		fmt.Println("OK")
		return nil
	})
}
