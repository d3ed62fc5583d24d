package scanrunner

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"riskscan/internal/domain"
	"riskscan/internal/parser"
	"riskscan/internal/ports"
)

type Options struct {
	// MaxAttempts bounds how often a job whose scan run failed is tried.
	// One means failures are final.
	MaxAttempts int
	// Via is recorded on completed jobs as processed_via.
	Via string
}

// Processor takes one job through scan, parse, enrichment and persistence.
type Processor struct {
	repo      ports.JobRepository
	scanner   ports.ScanExecutor
	enricher  ports.Enricher
	publisher ports.Publisher
	clock     ports.Clock
	opts      Options
	log       logrus.FieldLogger
}

// NewProcessor wires a processor. publisher is only used to requeue retries
// and may be nil when MaxAttempts is 1.
func NewProcessor(repo ports.JobRepository, scanner ports.ScanExecutor, enricher ports.Enricher,
	publisher ports.Publisher, clock ports.Clock, opts Options, log logrus.FieldLogger) *Processor {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Via == "" {
		opts.Via = "worker"
	}
	return &Processor{
		repo:      repo,
		scanner:   scanner,
		enricher:  enricher,
		publisher: publisher,
		clock:     clock,
		opts:      opts,
		log:       log.WithField("component", "worker"),
	}
}

// Process never returns an error: every outcome is recorded on the job or
// logged, and the message is always considered handled.
//
// Only the scan itself observes ctx. Store writes and the retry publish run
// on a detached context bounded by the store's own timeouts, so a deadline or
// disconnect that ends the scan still leaves the job in a terminal state.
func (p *Processor) Process(ctx context.Context, msg domain.JobMessage) {
	attempt := max(msg.Attempt, 1)
	log := p.log.WithFields(logrus.Fields{"job_id": msg.JobID, "target": msg.Target, "attempt": attempt})
	store := context.WithoutCancel(ctx)

	started := p.clock.Now(store)
	if err := p.repo.MarkProcessing(store, msg.JobID, started, attempt); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTransition):
			log.Info("job already claimed or finished, skipping")
			return
		case errors.Is(err, domain.ErrNotFound):
			log.Warn("unknown job, skipping")
			return
		default:
			log.WithError(err).Error("could not mark job processing")
		}
	}
	log.Info("scan started")

	result, err := Scan(ctx, p.scanner, p.enricher, msg.Target)
	if err != nil {
		if p.retry(store, msg, attempt, err, log) {
			return
		}
		p.fail(store, msg.JobID, err, log)
		return
	}

	doc, err := json.Marshal(result)
	if err != nil {
		p.fail(store, msg.JobID, err, log)
		return
	}
	rows := make([]domain.PortResult, len(result.Ports))
	for i, r := range result.Ports {
		r.JobID = msg.JobID
		rows[i] = r
	}
	finished := p.clock.Now(store)
	err = p.repo.Complete(store, domain.CompletedScan{
		JobID:             msg.JobID,
		Ports:             rows,
		Result:            doc,
		CompletedAt:       finished,
		ProcessedVia:      p.opts.Via,
		ProcessingSeconds: processingSeconds(started, finished),
	})
	if err != nil {
		log.WithError(err).Error("could not store scan result")
		p.fail(store, msg.JobID, err, log)
		return
	}
	log.WithFields(logrus.Fields{
		"findings":  result.Summary.Count,
		"max_score": result.Summary.MaxScore,
		"ports":     len(rows),
	}).Info("scan completed")
}

// retry requeues a job whose scan run failed while attempts remain. Invalid
// targets and unreadable output are never retried.
func (p *Processor) retry(ctx context.Context, msg domain.JobMessage, attempt int, cause error, log logrus.FieldLogger) bool {
	var execErr *domain.ExecutionError
	if !errors.As(cause, &execErr) || attempt >= p.opts.MaxAttempts || p.publisher == nil {
		return false
	}
	next := msg
	next.Attempt = attempt + 1
	if err := p.publisher.Publish(ctx, next); err != nil {
		log.WithError(err).Error("could not requeue job")
		return false
	}
	log.WithError(cause).Warn("scan failed, requeued")
	return true
}

func (p *Processor) fail(ctx context.Context, jobID string, cause error, log logrus.FieldLogger) {
	log.WithError(cause).Error("scan failed")
	if err := p.repo.Fail(ctx, jobID, cause.Error(), p.clock.Now(ctx)); err != nil {
		log.WithError(err).Error("could not mark job failed")
	}
}

// Scan runs the executor, parser and enrichment for one target.
func Scan(ctx context.Context, scanner ports.ScanExecutor, enricher ports.Enricher, target string) (domain.EnrichedScanResult, error) {
	raw, err := scanner.Scan(ctx, target)
	if err != nil {
		return domain.EnrichedScanResult{}, err
	}
	parsed, err := parser.Parse(raw, target)
	if err != nil {
		return domain.EnrichedScanResult{}, err
	}
	return enricher.Enrich(ctx, parsed), nil
}

func processingSeconds(start, end time.Time) float64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return d.Round(time.Millisecond).Seconds()
}
