package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/crypto/bcrypt"
)

type hashPasswordCmd struct{}

func (*hashPasswordCmd) Name() string     { return "hashpw" }
func (*hashPasswordCmd) Synopsis() string { return "print the bcrypt hash of a password" }
func (*hashPasswordCmd) Usage() string {
	return `hashpw <password>

  Prints a bcrypt hash suitable for the users.password_hash column.
`
}

func (*hashPasswordCmd) SetFlags(*flag.FlagSet) {}

func (*hashPasswordCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one password argument is required.")
		return subcommands.ExitUsageError
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(f.Arg(0)), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating hash: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Println(string(hash))
	return subcommands.ExitSuccess
}
