package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Classify every entry against the loaded model",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			res, err := apiClient.Resolve.Resolve(context.Background())
			if err != nil {
				fatal("resolve", err)
			}
			if flagFmt == "table" {
				headers := []string{"STATE", "COUNT"}
				rows := [][]string{
					{"attached", fmt.Sprintf("%d", res.Counts.Attached)},
					{"orphan", fmt.Sprintf("%d", res.Counts.Orphan)},
					{"ambiguous", fmt.Sprintf("%d", res.Counts.Ambiguous)},
					{"total", fmt.Sprintf("%d", res.Counts.Total)},
				}
				formatTable(headers, rows)
				return
			}
			output(res, fmt.Sprintf("%d/%d attached", res.Counts.Attached, res.Counts.Total))
		},
	}
}

func newEffectiveCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "effective <target-id>",
		Short: "Show the merged tag view for one model object",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eff, err := apiClient.Resolve.Effective(context.Background(), kind, args[0])
			if err != nil {
				fatal("effective", err)
			}
			if flagFmt == "table" {
				headers := []string{"KEY", "VALUE", "NAMESPACE"}
				var rows [][]string
				for _, tv := range eff.EffectiveTaggedValues {
					rows = append(rows, []string{tv.Key, fmt.Sprintf("%v", tv.Value), tv.Namespace})
				}
				formatTable(headers, rows)
				return
			}
			output(eff, eff.OverlayMatch.State)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "element", "Target kind: element|relationship")
	return cmd
}
