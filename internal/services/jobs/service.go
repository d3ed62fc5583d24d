package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"riskscan/internal/domain"
	"riskscan/internal/ports"
	"riskscan/internal/scanner"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	sweepBatch       = 100
)

type Service struct {
	repo      ports.JobRepository
	publisher ports.Publisher
	queue     ports.QueueInspector
	clock     ports.Clock
	log       logrus.FieldLogger
}

func New(repo ports.JobRepository, publisher ports.Publisher, queue ports.QueueInspector, clock ports.Clock, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, publisher: publisher, queue: queue, clock: clock, log: log.WithField("component", "producer")}
}

var _ ports.Jobs = (*Service)(nil)

// Create validates the target and records a pending job.
func (s *Service) Create(ctx context.Context, target string, options json.RawMessage) (domain.ScanJob, error) {
	normalized, err := scanner.ValidateTarget(target)
	if err != nil {
		return domain.ScanJob{}, err
	}
	options = bytes.TrimSpace(options)
	if len(options) == 0 || string(options) == "null" {
		options = json.RawMessage(`{}`)
	}
	if !json.Valid(options) || options[0] != '{' {
		return domain.ScanJob{}, domain.ErrInvalidOptions
	}

	job := domain.ScanJob{
		ID:        uuid.NewString(),
		Target:    normalized,
		ScanType:  domain.ScanTypeVuln,
		Options:   options,
		Status:    domain.StatusPending,
		CreatedAt: domain.StorageTime(s.clock.Now(ctx)),
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return domain.ScanJob{}, err
	}
	return job, nil
}

// Submit records a pending job and publishes it. When publishing fails the
// job is already stored: the result still carries its id and the error wraps
// domain.ErrPublish.
func (s *Service) Submit(ctx context.Context, target string, options json.RawMessage) (ports.SubmitResult, error) {
	job, err := s.Create(ctx, target, options)
	if err != nil {
		return ports.SubmitResult{}, err
	}
	log := s.log.WithFields(logrus.Fields{"job_id": job.ID, "target": job.Target})

	res := ports.SubmitResult{JobID: job.ID, Status: "queued"}
	if err := s.publisher.Publish(ctx, job.Message(1)); err != nil {
		log.WithError(err).Error("job stored but not published")
		res.Status = string(domain.StatusPending)
		return res, fmt.Errorf("%w: %w", domain.ErrPublish, err)
	}
	log.Info("job queued")
	return res, nil
}

func (s *Service) Job(ctx context.Context, jobID string) (domain.ScanJob, []domain.PortResult, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return job, nil, err
	}
	rows, err := s.repo.PortResults(ctx, jobID)
	if err != nil {
		return job, nil, err
	}
	return job, rows, nil
}

// Jobs lists the most recent jobs first. limit is clamped to 1..MaxListLimit;
// zero or less means DefaultListLimit.
func (s *Service) Jobs(ctx context.Context, limit int) ([]domain.ScanJob, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.repo.ListJobs(ctx, limit)
}

func (s *Service) Counts(ctx context.Context) (map[domain.JobStatus]int, error) {
	return s.repo.StatusCounts(ctx)
}

func (s *Service) Queue(ctx context.Context) (domain.QueueStats, error) {
	return s.queue.QueueStats(ctx)
}

// Sweep republishes pending jobs that have not been queued for olderThan,
// which recovers jobs whose publish was lost. Each republished job is stamped
// so the next sweep waits another olderThan before sending it again. It
// returns how many were sent.
func (s *Service) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	now := s.clock.Now(ctx)
	stale, err := s.repo.PendingBefore(ctx, now.Add(-olderThan), sweepBatch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, job := range stale {
		if err := s.publisher.Publish(ctx, job.Message(1)); err != nil {
			return sent, fmt.Errorf("%w: %w", domain.ErrPublish, err)
		}
		sent++
		if err := s.repo.MarkPublished(ctx, job.ID, now); err != nil {
			s.log.WithError(err).WithField("job_id", job.ID).Warn("could not stamp republished job")
		}
	}
	if sent > 0 {
		s.log.WithField("count", sent).Info("republished stale pending jobs")
	}
	return sent, nil
}
