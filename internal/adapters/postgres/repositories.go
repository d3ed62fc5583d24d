package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"riskscan/internal/domain"
)

const jobColumns = `job_id, target, scan_type, options, status, created_at, processed_at, completed_at,
    total_ports, open_ports, closed_ports, filtered_ports, COALESCE(processed_via, ''),
    COALESCE(processing_time_seconds, 0), attempts, COALESCE(error_message, ''), result, published_at`

func scanJob(row pgx.Row) (domain.ScanJob, error) {
	var (
		job             domain.ScanJob
		options, result []byte
	)
	err := row.Scan(&job.ID, &job.Target, &job.ScanType, &options, &job.Status, &job.CreatedAt,
		&job.ProcessedAt, &job.CompletedAt, &job.Ports.Total, &job.Ports.Open, &job.Ports.Closed,
		&job.Ports.Filtered, &job.ProcessedVia, &job.ProcessingSeconds, &job.Attempts,
		&job.ErrorMessage, &result, &job.PublishedAt)
	if err != nil {
		return job, err
	}
	job.Options = options
	job.Result = result
	job.CreatedAt = job.CreatedAt.UTC()
	job.ProcessedAt = utcPtr(job.ProcessedAt)
	job.CompletedAt = utcPtr(job.CompletedAt)
	job.PublishedAt = utcPtr(job.PublishedAt)
	return job, nil
}

func (db *DB) GetJob(ctx context.Context, jobID string) (domain.ScanJob, error) {
	job, err := scanJob(db.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM scan_jobs WHERE job_id=$1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return job, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	if err != nil {
		return job, persistErr("get job", err)
	}
	return job, nil
}

func (db *DB) ListJobs(ctx context.Context, limit int) ([]domain.ScanJob, error) {
	return db.queryJobs(ctx, `SELECT `+jobColumns+` FROM scan_jobs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (db *DB) PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ScanJob, error) {
	return db.queryJobs(ctx, `
        SELECT `+jobColumns+` FROM scan_jobs
        WHERE status='pending' AND COALESCE(published_at, created_at) < $2
        ORDER BY COALESCE(published_at, created_at), id
        LIMIT $1
    `, limit, domain.StorageTime(cutoff))
}

func (db *DB) queryJobs(ctx context.Context, sql string, args ...any) ([]domain.ScanJob, error) {
	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, persistErr("list jobs", err)
	}
	defer rows.Close()
	jobs := []domain.ScanJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, persistErr("scan job row", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list jobs", err)
	}
	return jobs, nil
}

func (db *DB) PortResults(ctx context.Context, jobID string) ([]domain.PortResult, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT job_id, port_number, protocol, state, COALESCE(service, ''), COALESCE(product, ''),
               COALESCE(version, ''), COALESCE(os_match, ''), scripts, raw_data, scanned_at
        FROM scan_results WHERE job_id=$1 ORDER BY port_number
    `, jobID)
	if err != nil {
		return nil, persistErr("port results", err)
	}
	defer rows.Close()
	out := []domain.PortResult{}
	for rows.Next() {
		var (
			p            domain.PortResult
			scripts, raw []byte
		)
		if err := rows.Scan(&p.JobID, &p.Port, &p.Protocol, &p.State, &p.Service, &p.Product,
			&p.Version, &p.OSMatch, &scripts, &raw, &p.ScannedAt); err != nil {
			return nil, persistErr("scan port row", err)
		}
		p.Scripts = scripts
		p.Raw = raw
		p.ScannedAt = p.ScannedAt.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("port results", err)
	}
	return out, nil
}

// StatusCounts returns the number of jobs per status; every status is present.
func (db *DB) StatusCounts(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM scan_jobs GROUP BY status`)
	if err != nil {
		return nil, persistErr("status counts", err)
	}
	defer rows.Close()
	counts := map[domain.JobStatus]int{
		domain.StatusPending:    0,
		domain.StatusProcessing: 0,
		domain.StatusCompleted:  0,
		domain.StatusFailed:     0,
	}
	for rows.Next() {
		var (
			status domain.JobStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, persistErr("status counts", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("status counts", err)
	}
	return counts, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
