package ports

import (
	"context"
	"time"

	"riskscan/internal/domain"
)

// JobRepository persists scan jobs and their per-port results.
// Status updates are conditional; a transition the job's current status does
// not allow returns domain.ErrInvalidTransition, an unknown id
// domain.ErrNotFound.
type JobRepository interface {
	CreateJob(ctx context.Context, job domain.ScanJob) error
	MarkProcessing(ctx context.Context, jobID string, at time.Time, attempt int) error
	Complete(ctx context.Context, done domain.CompletedScan) error
	Fail(ctx context.Context, jobID string, reason string, at time.Time) error
	// MarkPublished stamps a pending job with the time it was last queued.
	MarkPublished(ctx context.Context, jobID string, at time.Time) error
	JobReader
}

// JobReader is the read side used by status queries.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (domain.ScanJob, error)
	PortResults(ctx context.Context, jobID string) ([]domain.PortResult, error)
	ListJobs(ctx context.Context, limit int) ([]domain.ScanJob, error)
	StatusCounts(ctx context.Context) (map[domain.JobStatus]int, error)
	// PendingBefore lists pending jobs last queued (or, if never republished,
	// created) before cutoff, oldest first.
	PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ScanJob, error)
}
