package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage the loaded primary model",
	}
	cmd.AddCommand(modelLoadCmd())
	cmd.AddCommand(modelInfoCmd())
	cmd.AddCommand(modelCollisionsCmd())
	return cmd
}

func modelLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <model.json>",
		Short: "Upload a model document and make it current",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				fatal("read model file", err)
			}
			info, err := apiClient.Model.Load(context.Background(), data)
			if err != nil {
				fatal("load model", err)
			}
			output(info, info.Signature)
		},
	}
}

func modelInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the loaded model summary",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info, err := apiClient.Model.Get(context.Background())
			if err != nil {
				fatal("get model", err)
			}
			output(info, info.Signature)
		},
	}
}

func modelCollisionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collisions",
		Short: "List external-key collisions inside the model",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			collisions, err := apiClient.Model.Collisions(context.Background())
			if err != nil {
				fatal("get collisions", err)
			}
			if flagFmt == "table" {
				headers := []string{"KEY", "KIND", "TARGETS"}
				var rows [][]string
				for _, col := range collisions {
					rows = append(rows, []string{col.Key, col.Kind, fmt.Sprintf("%d", len(col.Targets))})
				}
				formatTable(headers, rows)
				return
			}
			output(collisions, fmt.Sprintf("%d", len(collisions)))
		},
	}
}
