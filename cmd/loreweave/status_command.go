package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"loreweave/internal/apiclient"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			return ctx.withClient(func(client *apiclient.Client) error {
				status, err := client.Status(context.Background())
				if err != nil {
					if apiclient.IsAPIUnavailable(err) {
						printLines(out, renderSectionHeader("Daemon", colorize)...)
						printLines(out, renderStatusLine("Daemon", statusError, "not running", colorize))
						return nil
					}
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}

				printLines(out, renderSectionHeader("Daemon", colorize)...)
				printLines(out,
					renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize),
					renderStatusLine("Database", statusInfo, fmt.Sprintf("%s (schema v%d)", status.DatabasePath, status.SchemaVersion), colorize),
					renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize),
				)

				enrichKind := statusOK
				enrichDetail := "enabled"
				switch {
				case !status.EnrichmentEnabled:
					enrichKind, enrichDetail = statusWarn, "disabled"
				case status.LLMProvider == "":
					enrichKind, enrichDetail = statusWarn, "no language model configured"
				default:
					enrichDetail = fmt.Sprintf("%s / %s", status.LLMProvider, status.LLMModel)
				}
				printLines(out,
					renderStatusLine("Enrichment", enrichKind, enrichDetail, colorize),
					renderStatusLine("Active runs", statusInfo, strconv.Itoa(status.ActiveEnrichments), colorize),
				)
				return nil
			})
		},
	}
}
