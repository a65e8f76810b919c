package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

// remindersCmd and outboxCmd run the scheduled jobs of the API server once, on demand.

func (cli *commandLine) remindersCmd() *cobra.Command {
	send := &cobra.Command{
		Use:   "send",
		Short: "Send a reminder to the parents of every student with a remaining balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svcs, err := cli.services()
			if err != nil {
				return err
			}
			sent, err := svcs.Reminders.SendDue(cmd.Context(), time.Now(), core.CLIActor)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cli.out, "%d reminder(s) sent\n", len(sent))
			return nil
		},
	}
	return groupCmd("reminders", "Payment reminders", send)
}

func (cli *commandLine) outboxCmd() *cobra.Command {
	drain := &cobra.Command{
		Use:   "drain",
		Short: "Deliver the pending outbox events to the webhook subscriptions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svcs, err := cli.services()
			if err != nil {
				return err
			}
			n, err := svcs.Outbox.Drain(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cli.out, "%d event(s) handled\n", n)
			return nil
		},
	}
	return groupCmd("outbox", "Webhook outbox", drain)
}
