package scanrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"riskscan/internal/domain"
	"riskscan/internal/ports"
)

// ScanProcessor performs the scan work for one job message.
type ScanProcessor interface {
	Process(ctx context.Context, msg domain.JobMessage)
}

// Run feeds every consumer's deliveries to processor until ctx is cancelled.
// Each consumer owns one broker connection and handles one message at a time.
func Run(ctx context.Context, consumers []ports.Consumer, processor ScanProcessor, log logrus.FieldLogger) error {
	if len(consumers) == 0 {
		return errNoConsumers
	}
	handle := func(ctx context.Context, body []byte) {
		var msg domain.JobMessage
		if err := json.Unmarshal(body, &msg); err != nil || msg.JobID == "" {
			log.WithField("body", domain.Truncate(string(body), 256)).WithError(err).Error("dropping undecodable job message")
			return
		}
		processor.Process(ctx, msg)
	}
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range consumers {
		i, c := i, c
		g.Go(func() error {
			if err := c.Run(ctx, handle); err != nil {
				return fmt.Errorf("consumer %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Sweeper republishes stale pending jobs.
type Sweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

// RunSweeper calls sweeper every interval until ctx is cancelled.
func RunSweeper(ctx context.Context, sweeper Sweeper, interval, olderThan time.Duration, log logrus.FieldLogger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.Sweep(ctx, olderThan); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("pending job sweep failed")
			}
		}
	}
}

// ProcessInline runs a stored job synchronously with the same processor the
// workers use and returns the job as it was left. A ctx that ends mid-scan
// fails the job; the final read still happens.
func ProcessInline(ctx context.Context, repo ports.JobReader, processor ScanProcessor, jobID string) (domain.ScanJob, error) {
	job, err := repo.GetJob(ctx, jobID)
	if err != nil {
		return job, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	processor.Process(ctx, job.Message(1))
	return repo.GetJob(context.WithoutCancel(ctx), jobID)
}

var errNoConsumers = errors.New("no consumers configured")
