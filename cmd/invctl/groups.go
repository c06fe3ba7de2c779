package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rl1809/digital-inventory/internal/core/domain"
	"github.com/rl1809/digital-inventory/internal/core/service"
)

func newGroupsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "groups",
		Aliases: []string{"group", "inventory"},
		Short:   "List and edit inventory groups",
	}
	cmd.AddCommand(
		newGroupsListCmd(a),
		newGroupsShowCmd(a),
		newGroupsCreateCmd(a),
		newGroupsKeysCmd(a),
		newGroupsAddAssetCmd(a),
		newGroupsRemoveAssetCmd(a),
		newGroupsSetCmd(a),
		newGroupsDeleteCmd(a),
	)
	return cmd
}

func newGroupsListCmd(a *app) *cobra.Command {
	var search, filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inventory groups",
		Long: `List inventory groups, optionally narrowed by a search term matched
against the group name and linked product title.

  invctl groups list --search netflix
  invctl groups list --filter unlinked`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseLinkFilter(filter)
			if err != nil {
				return err
			}
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}

			groups := m.View(search, f)
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), groups)
			}
			groupTable(cmd.OutOrStdout(), groups)
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Match group name or linked product title")
	cmd.Flags().StringVar(&filter, "filter", "all", "Link status: all, linked, unlinked")
	return cmd
}

func newGroupsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <group-id>",
		Short: "Show a group and its digital assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			g, ok := m.Group(args[0])
			if !ok {
				return fmt.Errorf("inventory group %s not found", args[0])
			}
			return a.printGroup(cmd, g)
		},
	}
}

func newGroupsCreateCmd(a *app) *cobra.Command {
	var keys []string
	var assets []string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an inventory group",
		Long: `Create an inventory group. Each --asset adds one digital asset given as
comma-separated Key=Value pairs.

  invctl groups create Netflix
  invctl groups create Netflix --keys Email,Password --asset Email=a@x.com,Password=pw`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.manager(ctx)
			if err != nil {
				return err
			}

			existing := make(map[string]bool)
			for _, g := range m.Groups() {
				existing[g.ID] = true
			}

			var schema []string
			if cmd.Flags().Changed("keys") {
				schema = keys
			}
			ref := m.NewGroup(args[0], schema)
			if err := m.Open(ref); err != nil {
				return err
			}
			for i, asset := range assets {
				patch, err := parseAssignments(strings.Split(asset, ","))
				if err != nil {
					return err
				}
				if i > 0 {
					if err := m.AddDigitalAsset(ref); err != nil {
						return err
					}
				}
				if err := applyPatch(m, ref, i, patch); err != nil {
					return err
				}
			}
			if err := m.CommitAndSave(ctx, ref); err != nil {
				return err
			}

			for _, g := range m.Groups() {
				if g.ID != "" && !existing[g.ID] {
					a.report(cmd.ErrOrStderr(), m)
					return a.printGroup(cmd, g)
				}
			}
			return fmt.Errorf("saved group missing from the refreshed list")
		},
	}
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "Asset keys (default Email,Password)")
	cmd.Flags().StringArrayVar(&assets, "asset", nil, "Digital asset as Key=Value[,Key=Value...] (repeatable)")
	return cmd
}

func newGroupsKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys <group-id> <key>...",
		Short: "Replace a group's asset keys",
		Long: `Replace a group's asset keys and save at once. Values of retained keys
are kept, removed keys are dropped and new keys start empty.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			if err := m.ChangeAssetKeys(ctx, args[0], args[1:]); err != nil {
				return err
			}
			a.report(cmd.ErrOrStderr(), m)
			g, _ := m.Group(args[0])
			return a.printGroup(cmd, g)
		},
	}
}

func newGroupsAddAssetCmd(a *app) *cobra.Command {
	var fields []string

	cmd := &cobra.Command{
		Use:   "add-asset <group-id>",
		Short: "Append a digital asset to a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseAssignments(fields)
			if err != nil {
				return err
			}
			return a.edit(cmd, args[0], func(m *service.Manager, ref string) error {
				if err := m.AddDigitalAsset(ref); err != nil {
					return err
				}
				records, err := m.WorkingCopy(ref)
				if err != nil {
					return err
				}
				return applyPatch(m, ref, len(records)-1, patch)
			})
		},
	}
	cmd.Flags().StringArrayVar(&fields, "set", nil, "Field value as Key=Value (repeatable)")
	return cmd
}

func newGroupsRemoveAssetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-asset <group-id> <index>",
		Short: "Remove a digital asset from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}
			return a.edit(cmd, args[0], func(m *service.Manager, ref string) error {
				return m.RemoveDigitalAsset(ref, index)
			})
		},
	}
}

func newGroupsSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <group-id> <index> <Key=Value>...",
		Short: "Set field values on one digital asset",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}
			patch, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			return a.edit(cmd, args[0], func(m *service.Manager, ref string) error {
				return applyPatch(m, ref, index, patch)
			})
		},
	}
}

func newGroupsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <group-id>",
		Aliases: []string{"rm"},
		Short:   "Delete an inventory group",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			if err := m.DeleteGroup(ctx, args[0]); err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[0]})
			}
			a.report(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

// edit opens a group, applies fn to its working copy and saves it.
func (a *app) edit(cmd *cobra.Command, id string, fn func(m *service.Manager, ref string) error) error {
	ctx := cmd.Context()
	m, err := a.manager(ctx)
	if err != nil {
		return err
	}
	if err := m.Open(id); err != nil {
		return fmt.Errorf("inventory group %s: %w", id, err)
	}
	defer m.Close()

	if err := fn(m, id); err != nil {
		return err
	}
	if err := m.CommitAndSave(ctx, id); err != nil {
		return err
	}
	a.report(cmd.ErrOrStderr(), m)

	g, _ := m.Group(id)
	return a.printGroup(cmd, g)
}

func (a *app) printGroup(cmd *cobra.Command, g domain.InventoryGroup) error {
	if a.jsonOut {
		return printJSON(cmd.OutOrStdout(), g)
	}
	groupDetail(cmd.OutOrStdout(), g)
	return nil
}

func applyPatch(m *service.Manager, ref string, index int, patch domain.Record) error {
	for k, v := range patch {
		if err := m.UpdateFieldValue(ref, index, k, v); err != nil {
			return err
		}
	}
	return nil
}

