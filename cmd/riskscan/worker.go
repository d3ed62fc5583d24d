package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"riskscan/internal/adapters/rabbitmq"
	"riskscan/internal/ports"
	"riskscan/internal/workers/scanrunner"
)

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume scan jobs from the queue and process them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			repo, closeRepo, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			rdb := a.redisClient()
			if rdb != nil {
				defer rdb.Close()
			}
			broker := a.brokerConfig()
			publisher := rabbitmq.NewPublisher(broker, a.log)
			defer publisher.Close()

			host := hostname()
			processor := scanrunner.NewProcessor(repo, a.executor(), a.enricher(rdb), publisher, a.clock(rdb),
				scanrunner.Options{MaxAttempts: a.cfg.Worker.MaxAttempts, Via: "worker@" + host}, a.log)

			consumers := make([]ports.Consumer, a.cfg.Worker.Concurrency)
			for i := range consumers {
				consumers[i] = rabbitmq.NewConsumer(broker, fmt.Sprintf("riskscan-%s-%d", host, i), a.log)
			}
			a.log.WithField("consumers", len(consumers)).Info("worker started")
			return scanrunner.Run(ctx, consumers, processor, a.log)
		},
	}
}
