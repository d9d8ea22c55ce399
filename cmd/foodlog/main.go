// ABOUTME: foodlog is a command-line client for the food log.
// ABOUTME: Works locally by default and against foodlogd when signed in.

package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	log.SetFlags(0)
	if err := loadDotEnv(); err != nil {
		log.Fatal(err)
	}

	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}
	if err := newRootCommand(os.Stdout).Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func newRootCommand(out io.Writer) *cli.Command {
	var rc = defaultRuntime()
	return &cli.Command{
		Name:   "foodlog",
		Usage:  "Log meals locally or against your account",
		Writer: out,
		Flags:  rc.Flags(),
		Commands: []*cli.Command{
			logCommand(),
			customCommand(),
			renameCommand(),
			deleteCommand(),
			listCommand(),
			historyCommand(),
			itemsCommand(),
			exportCommand(),
			importCommand(),
			loginCommand(),
			signupCommand(),
			logoutCommand(),
			statusCommand(),
			inspectCommand(),
		},
	}
}
