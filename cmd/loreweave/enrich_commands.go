package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"loreweave/internal/apiclient"
)

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <job-id>",
		Short: "Start LLM enrichment for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseIDArg("job", args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.TriggerEnrichment(context.Background(), jobID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				switch {
				case resp.Message != "":
					fmt.Fprintf(out, "Enrichment %s: %s\n", resp.Status, resp.Message)
				case resp.EntityCount != nil:
					fmt.Fprintf(out, "Enrichment %s for %d entities\n", resp.Status, *resp.EntityCount)
				default:
					fmt.Fprintf(out, "Enrichment %s\n", resp.Status)
				}
				return nil
			})
		},
	}
}

func newCancelEnrichCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-enrich <job-id>",
		Short: "Cancel a running enrichment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseIDArg("job", args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.CancelEnrichment(context.Background(), jobID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enrichment %s\n", resp.Status)
				return nil
			})
		},
	}
}
