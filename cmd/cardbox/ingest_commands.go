package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cardbox/internal/ipc"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Trigger an ingest pass now instead of waiting for the next poll",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.IngestStart()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Started {
					fmt.Fprintf(stdout, "Ingest started from %s\n", resp.Source)
					return nil
				}
				if resp.Message != "" {
					fmt.Fprintln(stdout, resp.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Ingest not started")
				return nil
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Cancel the running ingest session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.IngestStop()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Message != "" {
					fmt.Fprintln(stdout, resp.Message)
				} else if resp.Stopped {
					fmt.Fprintln(stdout, "Cancellation requested")
				}
				return nil
			})
		},
	}
}
