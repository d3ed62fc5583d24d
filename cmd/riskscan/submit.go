package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"riskscan/internal/adapters/rabbitmq"
	"riskscan/internal/services/jobs"
)

func newSubmitCmd(a *app) *cobra.Command {
	var options string
	cmd := &cobra.Command{
		Use:   "submit <target>",
		Short: "Queue a scan job for a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, closeRepo, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			rdb := a.redisClient()
			if rdb != nil {
				defer rdb.Close()
			}
			publisher := rabbitmq.NewPublisher(a.brokerConfig(), a.log)
			defer publisher.Close()

			svc := jobs.New(repo, publisher, publisher, a.clock(rdb), a.log)
			res, err := svc.Submit(ctx, args[0], json.RawMessage(options))
			if res.JobID != "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				_ = enc.Encode(res)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&options, "options", "", "JSON object stored with the job")
	return cmd
}
