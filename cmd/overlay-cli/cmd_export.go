package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pwa-modeller/overlay/client"
)

func newExportCmd() *cobra.Command {
	var outPath, tagsRaw string
	cmd := &cobra.Command{
		Use:   "export <json|csv|survey>",
		Short: "Export the overlay to a file or stdout",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var tagKeys []string
			if tagsRaw != "" {
				tagKeys = strings.Split(tagsRaw, ",")
			}
			data, err := apiClient.Files.Export(context.Background(), args[0], tagKeys)
			if err != nil {
				fatal("export", err)
			}
			if outPath == "" || outPath == "-" {
				os.Stdout.Write(data)
				return
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				fatal("write export file", err)
			}
			fmt.Fprintf(os.Stderr, "wrote %d bytes to %s\n", len(data), outPath)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&tagsRaw, "tags", "", "Survey tag columns, comma-separated")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether unexported changes exist",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			status, err := apiClient.Files.Status(context.Background())
			if err != nil {
				fatal("export status", err)
			}
			quiet := "clean"
			if status.Dirty {
				quiet = "dirty"
			}
			output(status, quiet)
		},
	})
	return cmd
}

func newImportCmd() *cobra.Command {
	var strategy string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <json|csv|survey> <file>",
		Short: "Import an overlay file",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[1])
			if err != nil {
				fatal("read import file", err)
			}
			result, err := apiClient.Files.Import(context.Background(), args[0], data, &client.ImportOptions{
				Strategy: strategy,
				DryRun:   dryRun,
			})
			if err != nil {
				fatal("import", err)
			}
			for _, w := range result.Warnings {
				fmt.Fprintf(os.Stderr, "warning [%s]: %s\n", w.Code, w.Message)
			}
			output(result, fmt.Sprintf("+%d ~%d -%d", result.Added, result.Updated, result.Dropped))
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "merge", "Import strategy: merge|replace")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the result without applying it")
	return cmd
}
