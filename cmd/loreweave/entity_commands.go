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

func newEntitiesCommand(ctx *commandContext) *cobra.Command {
	entitiesCmd := &cobra.Command{
		Use:   "entities",
		Short: "Manage known campaign entities",
	}
	entitiesCmd.AddCommand(newEntitiesAddCommand(ctx))
	entitiesCmd.AddCommand(newEntitiesListCommand(ctx))
	return entitiesCmd
}

func newEntitiesAddCommand(ctx *commandContext) *cobra.Command {
	var campaignID int64
	var req api.CreateEntityRequest

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = strings.TrimSpace(args[0])
			return ctx.withClient(func(client *apiclient.Client) error {
				entity, err := client.CreateEntity(context.Background(), campaignID, req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, entity)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q (id %d)\n", entity.Type, entity.Name, entity.ID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&campaignID, "campaign", 0, "Campaign id")
	cmd.Flags().StringVar(&req.Type, "type", "", "Entity type (npc, location, item, faction...)")
	cmd.Flags().StringSliceVar(&req.Aliases, "alias", nil, "Alternate name (repeatable)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Initial description")
	return cmd
}

func newEntitiesListCommand(ctx *commandContext) *cobra.Command {
	var campaignID int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities of a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				list, err := client.ListEntities(context.Background(), campaignID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No entities found")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, e := range list {
					rows = append(rows, []string{strconv.FormatInt(e.ID, 10), e.Type, e.Name, strings.Join(e.Aliases, ", ")})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Type", "Name", "Aliases"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&campaignID, "campaign", 0, "Campaign id")
	return cmd
}
