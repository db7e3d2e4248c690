package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"loreweave/internal/api"
	"loreweave/internal/apiclient"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var req api.TriggerAnalysisRequest
	var file string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Scan a text field for entity mentions",
		Long: "Scan a text field for entity mentions and create review items.\n\n" +
			"Content is read from --file, or from stdin when --file is omitted or \"-\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			req.Content = content

			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.TriggerAnalysis(context.Background(), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %d %s: %d detection(s)\n", resp.Job.ID, resp.Job.Status, len(resp.Items))
				if len(resp.Items) > 0 {
					fmt.Fprintln(out, renderItems(resp.Items))
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&req.CampaignID, "campaign", 0, "Campaign id")
	cmd.Flags().StringVar(&req.SourceTable, "table", "", "Source table (e.g. sessions)")
	cmd.Flags().Int64Var(&req.SourceID, "source-id", 0, "Source row id")
	cmd.Flags().StringVar(&req.SourceField, "field", "", "Source field name")
	cmd.Flags().Int64SliceVar(&req.ExcludeEntityIDs, "exclude", nil, "Entity ids to skip during fuzzy matching")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read content from a file")
	return cmd
}

func readContent(stdin io.Reader, file string) (string, error) {
	file = strings.TrimSpace(file)
	if file != "" && file != "-" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read content: %w", err)
		}
		return string(data), nil
	}
	if stdin == nil {
		return "", errors.New("no content provided")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
