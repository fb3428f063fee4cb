package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"portfolio_api/config"
	"portfolio_api/services"

	"github.com/google/subcommands"
)

type createUserCmd struct {
	username  string
	password  string
	email     string
	firstName string
	lastName  string
}

func (*createUserCmd) Name() string     { return "createuser" }
func (*createUserCmd) Synopsis() string { return "create an API user" }
func (*createUserCmd) Usage() string {
	return `createuser -username <name> -password <password> [-email <email> -first <name> -last <name>]

  Creates an active user that can log in with POST /login.
`
}

func (c *createUserCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "username", "", "Login name (required)")
	f.StringVar(&c.password, "password", "", "Password (required)")
	f.StringVar(&c.email, "email", "", "Email address")
	f.StringVar(&c.firstName, "first", "", "First name")
	f.StringVar(&c.lastName, "last", "", "Last name")
}

func (c *createUserCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.username == "" || c.password == "" {
		fmt.Fprintln(os.Stderr, "Error: -username and -password are required.")
		return subcommands.ExitUsageError
	}

	cfg, db, logger, err := openDatabase()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer config.CloseDB(db) //nolint:errcheck

	auth := services.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL, logger)
	user, err := auth.CreateUser(c.username, c.password, c.email, c.firstName, c.lastName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating user '%s': %v\n", c.username, err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Created user %s (id %d)\n", user.Username, user.ID)
	return subcommands.ExitSuccess
}
