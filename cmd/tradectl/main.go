// Command tradectl administers a paper-trading ledger from the shell.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"papertrade/internal/models"

	"github.com/google/subcommands"
)

var dbURL = flag.String("db", "", "ledger database URL, overrides DATABASE_URL")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range []subcommands.Command{&migrateCmd{}, &resetCmd{}, &registerCmd{}, &seedCmd{}, &verifyCmd{}} {
		commander.Register(c, "admin")
	}
	for _, c := range []subcommands.Command{&tradeCmd{typ: models.Buy}, &tradeCmd{typ: models.Sell}, &quoteCmd{}} {
		commander.Register(c, "trading")
	}
	for _, c := range []subcommands.Command{&portfolioCmd{}, &historyCmd{}} {
		commander.Register(c, "reports")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
