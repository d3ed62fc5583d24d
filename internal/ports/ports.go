package ports

import (
	"context"
	"encoding/json"
	"time"

	"riskscan/internal/domain"
)

// Jobs accepts scan requests and answers status queries.
type Jobs interface {
	// Create records a pending job without publishing it.
	Create(ctx context.Context, target string, options json.RawMessage) (domain.ScanJob, error)
	Submit(ctx context.Context, target string, options json.RawMessage) (SubmitResult, error)
	Job(ctx context.Context, jobID string) (domain.ScanJob, []domain.PortResult, error)
	Jobs(ctx context.Context, limit int) ([]domain.ScanJob, error)
	Counts(ctx context.Context) (map[domain.JobStatus]int, error)
	Queue(ctx context.Context) (domain.QueueStats, error)
}

type SubmitResult struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Publisher delivers work messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg domain.JobMessage) error
}

// MessageHandler processes one message body taken off the work queue.
type MessageHandler func(ctx context.Context, body []byte)

// Consumer delivers queued messages to a handler until ctx is cancelled.
type Consumer interface {
	Run(ctx context.Context, handle MessageHandler) error
}

// QueueInspector reports broker-side queue depth.
type QueueInspector interface {
	QueueStats(ctx context.Context) (domain.QueueStats, error)
}

// Clock is the distributed timestamp provider. It never fails: on any
// error implementations fall back to the local wall clock.
type Clock interface {
	Now(ctx context.Context) time.Time
}

// Advisories looks up vulnerability metadata by reference id.
type Advisories interface {
	Lookup(ctx context.Context, ref string) (domain.Advisory, error)
}

// ScanExecutor runs the external scan tool and returns its raw output.
type ScanExecutor interface {
	Scan(ctx context.Context, target string) ([]byte, error)
}

// Enricher turns a parsed scan into a risk-rated one.
type Enricher interface {
	Enrich(ctx context.Context, result domain.ScanResult) domain.EnrichedScanResult
}
