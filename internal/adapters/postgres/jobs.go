package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"riskscan/internal/domain"
)

const opTimeout = 5 * time.Second

func (db *DB) CreateJob(ctx context.Context, job domain.ScanJob) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO scan_jobs (job_id, target, scan_type, options, status, created_at, attempts)
        VALUES ($1, $2, $3, $4, 'pending', $5, 0)
    `, job.ID, job.Target, job.ScanType, jsonArg(job.Options), domain.StorageTime(job.CreatedAt))
	if err != nil {
		return persistErr("create job", err)
	}
	return nil
}

// MarkProcessing claims a job for one attempt. A pending job is always
// claimable; a processing job only by a later attempt, so a duplicate
// delivery of the attempt already running gets domain.ErrInvalidTransition.
// processed_at keeps the first pickup time.
func (db *DB) MarkProcessing(ctx context.Context, jobID string, at time.Time, attempt int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	tag, err := db.Pool.Exec(ctx, `
        UPDATE scan_jobs
        SET status='processing', processed_at=COALESCE(processed_at, $2), attempts=GREATEST(attempts, $3)
        WHERE job_id=$1 AND (status='pending' OR (status='processing' AND attempts < $3))
    `, jobID, domain.StorageTime(at), attempt)
	if err != nil {
		return persistErr("mark processing", err)
	}
	if tag.RowsAffected() == 0 {
		return transitionError(ctx, db.Pool, jobID, domain.StatusProcessing)
	}
	return nil
}

// Complete stores the per-port rows and the result document and marks the job
// completed in one transaction.
func (db *DB) Complete(ctx context.Context, done domain.CompletedScan) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistErr("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
			if err != nil {
				err = persistErr("commit", err)
			}
		}
	}()

	counts := domain.CountPorts(done.Ports)
	tag, err := tx.Exec(ctx, `
        UPDATE scan_jobs
        SET status='completed', completed_at=$2, result=$3,
            total_ports=$4, open_ports=$5, closed_ports=$6, filtered_ports=$7,
            processed_via=$8, processing_time_seconds=$9, error_message=NULL
        WHERE job_id=$1 AND status='processing'
    `, done.JobID, domain.StorageTime(done.CompletedAt), jsonArg(done.Result),
		counts.Total, counts.Open, counts.Closed, counts.Filtered,
		done.ProcessedVia, done.ProcessingSeconds)
	if err != nil {
		return persistErr("complete job", err)
	}
	if tag.RowsAffected() == 0 {
		return transitionError(ctx, tx, done.JobID, domain.StatusCompleted)
	}

	batch := &pgx.Batch{}
	for _, p := range done.Ports {
		batch.Queue(`
            INSERT INTO scan_results (job_id, port_number, protocol, state, service, product, version, os_match, scripts, raw_data, scanned_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
            ON CONFLICT (job_id, port_number) DO UPDATE SET
                protocol=EXCLUDED.protocol, state=EXCLUDED.state, service=EXCLUDED.service,
                product=EXCLUDED.product, version=EXCLUDED.version, os_match=EXCLUDED.os_match,
                scripts=EXCLUDED.scripts, raw_data=EXCLUDED.raw_data, scanned_at=EXCLUDED.scanned_at
        `, done.JobID, p.Port, p.Protocol, p.State, nullString(p.Service), nullString(p.Product),
			nullString(p.Version), nullString(p.OSMatch), jsonArg(p.Scripts), jsonArg(p.Raw), domain.StorageTime(p.ScannedAt))
	}
	if batch.Len() > 0 {
		if err = tx.SendBatch(ctx, batch).Close(); err != nil {
			return persistErr("store port results", err)
		}
	}
	return nil
}

func (db *DB) Fail(ctx context.Context, jobID string, reason string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	tag, err := db.Pool.Exec(ctx, `
        UPDATE scan_jobs SET status='failed', completed_at=$2, error_message=$3
        WHERE job_id=$1 AND status='processing'
    `, jobID, domain.StorageTime(at), reason)
	if err != nil {
		return persistErr("fail job", err)
	}
	if tag.RowsAffected() == 0 {
		return transitionError(ctx, db.Pool, jobID, domain.StatusFailed)
	}
	return nil
}

// MarkPublished records that a pending job was just sent to the queue. A job
// claimed in the meantime is left alone.
func (db *DB) MarkPublished(ctx context.Context, jobID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `UPDATE scan_jobs SET published_at=$2 WHERE job_id=$1 AND status='pending'`,
		jobID, domain.StorageTime(at))
	if err != nil {
		return persistErr("mark published", err)
	}
	return nil
}

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
