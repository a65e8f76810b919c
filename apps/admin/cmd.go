package main

import (
	"context"
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/chaima229/fraisScolaire-backend-sub000/apps/shared"
	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf     *core.Config
	logger   core.Logger
	out      io.Writer
	validate *validator.Validate

	// resources are opened on first use so that `token` works without a database
	openDB   func() (*sqlx.DB, error)
	services func() (*shared.Services, error)
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Back office administration of " + cli.conf.AppName,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(cli.migrateCmd())
	root.AddCommand(cli.tokenCmd())
	root.AddCommand(cli.seedCmd())
	root.AddCommand(cli.remindersCmd())
	root.AddCommand(cli.outboxCmd())
	return root
}

// run executes the command line `args`, program name included.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// groupCmd is a command that only holds subcommands.
func groupCmd(use, short string, subs ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	cmd.AddCommand(subs...)
	return cmd
}
