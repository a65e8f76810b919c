package main

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	echoapi "github.com/chaima229/fraisScolaire-backend-sub000/apps/api/echo"
	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

func (cli *commandLine) tokenCmd() *cobra.Command {
	var actor core.Actor
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed API token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := cli.token(actor)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cli.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor.ID, "sub", "", "id of the token holder (required)")
	cmd.Flags().StringVar(&actor.Name, "name", "", "display name")
	cmd.Flags().StringVar(&actor.Email, "email", "", "email address")
	cmd.Flags().StringSliceVar(&actor.Roles, "role", nil, "role(s): "+strings.Join(core.AllRoles, ", ")+" (required)")
	return cmd
}

func (cli *commandLine) token(actor core.Actor) (string, error) {
	actor.ID = core.CleanString(actor.ID)
	if actor.ID == "" {
		return "", fmt.Errorf("--sub is required")
	}
	if len(actor.Roles) == 0 {
		return "", fmt.Errorf("at least one --role is required")
	}
	if unknown := lo.Without(actor.Roles, core.AllRoles...); len(unknown) > 0 {
		return "", fmt.Errorf("unknown role(s): %s", strings.Join(unknown, ", "))
	}
	return echoapi.GenerateToken(echoapi.NewClaims(actor, cli.conf), cli.conf.SecretKey)
}
