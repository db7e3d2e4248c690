package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"loreweave/internal/api"
	"loreweave/internal/apiclient"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect analysis jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var filter apiclient.JobFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				list, err := client.ListJobs(context.Background(), filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs found")
					return nil
				}
				fmt.Fprintln(out, renderJobs(list))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&filter.CampaignID, "campaign", 0, "Filter by campaign id")
	cmd.Flags().StringVar(&filter.SourceTable, "table", "", "Filter by source table")
	cmd.Flags().Int64Var(&filter.SourceID, "source-id", 0, "Filter by source id")
	cmd.Flags().StringVar(&filter.SourceField, "field", "", "Filter by source field")
	cmd.Flags().StringVar(&filter.Status, "status", "", "Filter by status (created, running, completed, failed, cancelled)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum jobs to return")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with its review progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseIDArg("job", args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				job, err := client.GetJob(context.Background(), jobID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				printLines(out, renderSectionHeader(fmt.Sprintf("Job %d", job.ID), colorize)...)
				printLines(out,
					renderStatusLine("Status", jobStatusKind(job.Status), job.Status, colorize),
					renderStatusLine("Source", statusInfo, sourceLabel(job), colorize),
					renderStatusLine("Phases", statusInfo, phasesLabel(job), colorize),
					renderStatusLine("Identification", statusInfo, fmt.Sprintf("%d/%d resolved", job.ResolvedItems, job.TotalItems), colorize),
					renderStatusLine("Enrichment", statusInfo, fmt.Sprintf("%d/%d resolved", job.Enrichment.Resolved, job.Enrichment.Total), colorize),
				)
				if job.FailureReason != "" {
					printLines(out, renderStatusLine("Failure", statusError, job.FailureReason, colorize))
				}
				return nil
			})
		},
	}
}

func jobStatusKind(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "failed":
		return statusError
	case "cancelled":
		return statusWarn
	default:
		return statusInfo
	}
}

func sourceLabel(job api.Job) string {
	return fmt.Sprintf("campaign %d %s/%d.%s", job.CampaignID, job.SourceTable, job.SourceID, job.SourceField)
}

func phasesLabel(job api.Job) string {
	if len(job.Phases) == 0 {
		return "none"
	}
	label := strings.Join(job.Phases, ", ")
	if job.CurrentPhase != "" {
		label += " (current: " + job.CurrentPhase + ")"
	}
	return label
}

func renderJobs(list []api.Job) string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			sourceLabel(job),
			job.Status,
			fmt.Sprintf("%d/%d", job.ResolvedItems, job.TotalItems),
			fmt.Sprintf("%d/%d", job.Enrichment.Resolved, job.Enrichment.Total),
			job.UpdatedAt,
		})
	}
	return renderTable(
		[]string{"ID", "Source", "Status", "Identified", "Enriched", "Updated"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
