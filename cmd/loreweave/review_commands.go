package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"loreweave/internal/api"
	"loreweave/internal/apiclient"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	var filter apiclient.ItemFilter

	cmd := &cobra.Command{
		Use:   "items <job-id>",
		Short: "List review items for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseIDArg("job", args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				items, err := client.ListItems(context.Background(), jobID, filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No items found")
					return nil
				}
				fmt.Fprintln(out, renderItems(items))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.Resolution, "resolution", "", "Filter by resolution (pending, accepted, new_entity, dismissed)")
	cmd.Flags().StringVar(&filter.Phase, "phase", "", "Filter by phase (identification, enrichment)")
	cmd.Flags().StringVar(&filter.DetectionType, "type", "", "Filter by detection type")
	return cmd
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var req api.ResolveItemRequest
	var override string

	cmd := &cobra.Command{
		Use:   "resolve <item-id>",
		Short: "Record a review decision for one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseIDArg("item", args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(override) != "" {
				if !json.Valid([]byte(override)) {
					return fmt.Errorf("--override must be valid JSON")
				}
				req.Override = json.RawMessage(override)
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				item, err := client.ResolveItem(context.Background(), itemID, req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, item)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d %s\n", item.ID, item.Resolution)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&req.Resolution, "resolution", "r", "accepted", "Resolution (accepted, new_entity, dismissed)")
	cmd.Flags().StringVar(&req.EntityType, "entity-type", "", "Entity type for new_entity")
	cmd.Flags().StringVar(&req.EntityName, "entity-name", "", "Entity name for new_entity")
	cmd.Flags().StringVar(&override, "override", "", "JSON fields replacing parts of the suggestion on accept")
	return cmd
}

func newRevertCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "revert <item-id>",
		Short: "Return a resolved item to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseIDArg("item", args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				item, err := client.RevertItem(context.Background(), itemID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, item)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d %s\n", item.ID, item.Resolution)
				return nil
			})
		},
	}
}

func newBatchResolveCommand(ctx *commandContext) *cobra.Command {
	var req api.BatchResolveRequest

	cmd := &cobra.Command{
		Use:   "batch-resolve <job-id>",
		Short: "Resolve every pending item of one detection type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseIDArg("job", args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.BatchResolve(context.Background(), jobID, req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resolved %d item(s) as %s\n", resp.ResolvedCount, req.Resolution)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.DetectionType, "type", "", "Detection type to resolve")
	cmd.Flags().StringVarP(&req.Resolution, "resolution", "r", "accepted", "Resolution (accepted, dismissed)")
	return cmd
}

func newPendingCommand(ctx *commandContext) *cobra.Command {
	var campaignID, sourceID int64
	var sourceTable string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Count unresolved items for a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				count, err := client.PendingCount(context.Background(), campaignID, sourceTable, sourceID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.PendingCountResponse{Count: count})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d pending\n", count)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&campaignID, "campaign", 0, "Campaign id")
	cmd.Flags().StringVar(&sourceTable, "table", "", "Limit to a source table")
	cmd.Flags().Int64Var(&sourceID, "source-id", 0, "Limit to a source row")
	return cmd
}

func renderItems(items []api.Item) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		entity := ""
		if item.EntityID != nil {
			entity = strconv.FormatInt(*item.EntityID, 10)
		}
		similarity := ""
		if item.Similarity != nil {
			similarity = strconv.FormatFloat(*item.Similarity, 'f', 2, 64)
		}
		span := ""
		if item.PositionStart != nil && item.PositionEnd != nil {
			span = fmt.Sprintf("%d-%d", *item.PositionStart, *item.PositionEnd)
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.DetectionType,
			item.MatchedText,
			entity,
			similarity,
			span,
			item.Resolution,
		})
	}
	return renderTable(
		[]string{"ID", "Type", "Text", "Entity", "Score", "Span", "Resolution"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}
