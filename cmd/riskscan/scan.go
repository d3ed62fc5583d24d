package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"riskscan/internal/workers/scanrunner"
)

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <target>",
		Short: "Scan a target in-process and print the enriched result; no queue or database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb := a.redisClient()
			if rdb != nil {
				defer rdb.Close()
			}
			result, err := scanrunner.Scan(cmd.Context(), a.executor(), a.enricher(rdb), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
