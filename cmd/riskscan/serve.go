package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "riskscan/internal/adapters/http"
	"riskscan/internal/adapters/rabbitmq"
	"riskscan/internal/domain"
	"riskscan/internal/services/jobs"
	"riskscan/internal/workers/scanrunner"
)

func newServeCmd(a *app) *cobra.Command {
	var inline bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the submit/status API and the pending-job sweeper",
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
			publisher := rabbitmq.NewPublisher(a.brokerConfig(), a.log)
			defer publisher.Close()

			clk := a.clock(rdb)
			svc := jobs.New(repo, publisher, publisher, clk, a.log)

			var runInline httpadapter.InlineRunner
			if inline {
				processor := scanrunner.NewProcessor(repo, a.executor(), a.enricher(rdb), nil, clk,
					scanrunner.Options{MaxAttempts: 1, Via: "inline@" + hostname()}, a.log)
				runInline = func(ctx context.Context, jobID string) (domain.ScanJob, error) {
					return scanrunner.ProcessInline(ctx, repo, processor, jobID)
				}
			}

			go scanrunner.RunSweeper(ctx, svc, a.cfg.Worker.SweepInterval, a.cfg.Worker.SweepAfter, a.log)

			srv := &http.Server{
				Addr:              a.cfg.ListenAddr,
				Handler:           httpadapter.New(svc, repo, runInline, a.log).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.log.WithField("addr", a.cfg.ListenAddr).Info("listening")

			select {
			case <-ctx.Done():
				a.log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
	cmd.Flags().BoolVar(&inline, "inline", false, "allow POST /scans?wait=true to run scans in this process")
	return cmd
}
