package main

import (
	"context"
	"fmt"
	"os"

	"papertrade/internal/app"
	"papertrade/internal/config"
	"papertrade/internal/models"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// run opens the ledger, hands it to fn and maps the outcome to an exit status.
func run(ctx context.Context, fn func(a *app.App) error) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return subcommands.ExitFailure
	}
	if *dbURL != "" {
		cfg.DatabaseURL = *dbURL
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if cfg.LogLevel > logrus.WarnLevel {
		log.SetLevel(cfg.LogLevel)
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func lookupUser(ctx context.Context, a *app.App, username string) (models.User, error) {
	if username == "" {
		return models.User{}, fmt.Errorf("must provide -u <username>")
	}
	u, err := a.Repo.GetUserByUsername(ctx, username)
	if err != nil {
		return models.User{}, fmt.Errorf("user %q: %w", username, err)
	}
	return u, nil
}
