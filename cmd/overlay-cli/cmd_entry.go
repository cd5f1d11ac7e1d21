package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pwa-modeller/overlay/client"
)

func newEntryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Manage overlay entries",
	}
	cmd.AddCommand(entryCreateCmd())
	cmd.AddCommand(entryGetCmd())
	cmd.AddCommand(entryListCmd())
	cmd.AddCommand(entryDeleteCmd())
	cmd.AddCommand(entryTagCmd())
	cmd.AddCommand(entryRebindCmd())
	return cmd
}

// parseRefs turns "cmdb:CI100,cmdb@prod:CI200" into packed refs.
func parseRefs(raw string) ([]client.Ref, error) {
	var refs []client.Ref
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		scheme, value, ok := strings.Cut(part, ":")
		if !ok || scheme == "" || value == "" {
			return nil, fmt.Errorf("ref %q must be scheme:value", part)
		}
		refs = append(refs, client.Ref{Scheme: scheme, Value: value})
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("at least one ref is required")
	}
	return refs, nil
}

func entryCreateCmd() *cobra.Command {
	var kind, refsRaw, tagsJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an overlay entry",
		Run: func(cmd *cobra.Command, args []string) {
			refs, err := parseRefs(refsRaw)
			if err != nil {
				fatal("parse refs", err)
			}
			req := &client.UpsertEntryRequest{Kind: kind, Refs: refs}
			if tagsJSON != "" {
				if err := json.Unmarshal([]byte(tagsJSON), &req.Tags); err != nil {
					fatal("parse tags", err)
				}
			}
			entry, err := apiClient.Entries.Upsert(context.Background(), req)
			if err != nil {
				fatal("create entry", err)
			}
			output(entry, entry.EntryID)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "element", "Target kind: element|relationship")
	cmd.Flags().StringVar(&refsRaw, "refs", "", "External refs as scheme:value[,scheme:value...]")
	cmd.Flags().StringVar(&tagsJSON, "tags", "", "Tags as JSON object")
	cmd.MarkFlagRequired("refs") //nolint:errcheck // flag exists
	return cmd
}

func entryGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get an entry by ID",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entry, err := apiClient.Entries.Get(context.Background(), args[0])
			if err != nil {
				fatal("get entry", err)
			}
			output(entry, entry.EntryID)
		},
	}
}

func entryListCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List overlay entries",
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := apiClient.Entries.List(context.Background(), filter)
			if err != nil {
				fatal("list entries", err)
			}
			if flagFmt == "table" {
				headers := []string{"ID", "KIND", "REFS", "TAGS"}
				var rows [][]string
				for _, e := range entries {
					rows = append(rows, []string{
						e.EntryID, e.Target.Kind,
						refSummary(e.Target.Refs),
						fmt.Sprintf("%d", len(e.Tags)),
					})
				}
				formatTable(headers, rows)
				return
			}
			if flagFmt == "quiet" {
				for _, e := range entries {
					fmt.Println(e.EntryID)
				}
				return
			}
			formatJSON(entries)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", `Filter expression, e.g. 'tags.env == "prod"'`)
	return cmd
}

func entryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient.Entries.Delete(context.Background(), args[0]); err != nil {
				fatal("delete entry", err)
			}
			fmt.Println("deleted")
		},
	}
}

func entryTagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage entry tags",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <id> <key> <value>",
		Short: "Set one tag (value is JSON, bare strings allowed)",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			var value any
			if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
				value = args[2] // treat as a plain string
			}
			entry, err := apiClient.Entries.SetTag(context.Background(), args[0], args[1], value)
			if err != nil {
				fatal("set tag", err)
			}
			output(entry, entry.EntryID)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id> <key>",
		Short: "Remove one tag",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient.Entries.RemoveTag(context.Background(), args[0], args[1]); err != nil {
				fatal("remove tag", err)
			}
			fmt.Println("removed")
		},
	})
	return cmd
}

func entryRebindCmd() *cobra.Command {
	var kind string
	var preferUnique bool
	cmd := &cobra.Command{
		Use:   "rebind <id> <target-id>",
		Short: "Repoint an entry at a model target",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			result, err := apiClient.Entries.Rebind(context.Background(), args[0], &client.RebindRequest{
				Kind:             kind,
				TargetID:         args[1],
				PreferUniqueRefs: preferUnique,
			})
			if err != nil {
				fatal("rebind entry", err)
			}
			if result.DroppedRefs > 0 {
				fmt.Fprintf(os.Stderr, "note: %d ambiguous ref(s) dropped\n", result.DroppedRefs)
			}
			output(result, result.EntryID)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "element", "Target kind: element|relationship")
	cmd.Flags().BoolVar(&preferUnique, "prefer-unique", true, "Prefer refs unique to the target")
	return cmd
}
