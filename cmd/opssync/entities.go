package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jerrsapps1/opssync/internal/client"
	"github.com/jerrsapps1/opssync/internal/model"
	"github.com/spf13/cobra"
)

func parseKindArg(s string) (model.EntityKind, error) {
	kind, ok := model.ParseEntityKind(s)
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q (want employee or equipment)", s)
	}
	return kind, nil
}

var createCmd = &cobra.Command{
	Use:   "create <kind> <name>",
	Short: "Create a new employee or piece of equipment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		e, err := api.CreateEntity(context.Background(), kind, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(e)
		} else {
			fmt.Printf("created %s %s\n", e.Kind, e.ID)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <kind> <id>",
	Short: "Show a single entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		e, err := api.GetEntity(context.Background(), kind, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(e)
		} else {
			printEntityTable(e)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List entities in the roster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.ListEntitiesRequest{}

		if kindStr, _ := cmd.Flags().GetString("kind"); kindStr != "" {
			kind, err := parseKindArg(kindStr)
			if err != nil {
				return err
			}
			req.Kind = []model.EntityKind{kind}
		}
		if statusStr, _ := cmd.Flags().GetString("status"); statusStr != "" {
			req.Status = []model.Status{model.Status(statusStr)}
		}
		if cmd.Flags().Changed("assignment") {
			val, _ := cmd.Flags().GetString("assignment")
			a := model.Assignment(val)
			req.Assignment = &a
		}
		req.Search, _ = cmd.Flags().GetString("search")
		req.Limit, _ = cmd.Flags().GetInt("limit")
		req.Offset, _ = cmd.Flags().GetInt("offset")

		resp, err := api.ListEntities(context.Background(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(resp)
		} else {
			printEntityListTable(resp.Entities, resp.Total)
		}
		return nil
	},
}

// runAssign PATCHes the assignment and reports a conflict's authoritative
// value instead of a bare error.
func runAssign(kind model.EntityKind, id string, target model.Assignment) error {
	e, err := api.AssignEntity(context.Background(), kind, id, target)
	if err != nil {
		if ce, ok := model.IsConflict(err); ok {
			fmt.Fprintf(os.Stderr, "conflict: %s/%s is now assigned to %s (version %d)\n",
				ce.EntityKind, ce.EntityID, assignmentLabel(ce.Current), ce.Version)
			os.Exit(1)
		}
		return err
	}
	if jsonOutput {
		printJSON(e)
	} else {
		fmt.Printf("%s %s -> %s (version %d)\n", e.Kind, e.ID, assignmentLabel(e.Assignment), e.Version)
	}
	return nil
}

var assignCmd = &cobra.Command{
	Use:   "assign <kind> <id> <project>",
	Short: "Assign an entity to a project",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		return runAssign(kind, args[1], model.Assignment(args[2]))
	},
}

var unassignCmd = &cobra.Command{
	Use:   "unassign <kind> <id>",
	Short: "Return an entity to the unassigned pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		return runAssign(kind, args[1], "")
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair <id>",
	Short: "Send a piece of equipment to the repair shop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAssign(model.KindEquipment, args[0], model.AssignmentRepair)
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <kind> <id>",
	Short: "Archive an entity (clears its assignment)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		e, err := api.ArchiveEntity(context.Background(), kind, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(e)
		} else {
			fmt.Printf("archived %s %s\n", e.Kind, e.ID)
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <kind> <id>",
	Short: "Restore an archived entity to the active roster",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		e, err := api.RestoreEntity(context.Background(), kind, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(e)
		} else {
			fmt.Printf("restored %s %s\n", e.Kind, e.ID)
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <kind> <id>",
	Short: "Permanently remove an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		if err := api.RemoveEntity(context.Background(), kind, args[1]); err != nil {
			return err
		}
		fmt.Printf("removed %s %s\n", kind, args[1])
		return nil
	},
}
