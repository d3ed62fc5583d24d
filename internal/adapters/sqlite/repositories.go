package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"riskscan/internal/domain"
)

const jobColumns = `job_id, target, scan_type, options, status, created_at, processed_at, completed_at,
    total_ports, open_ports, closed_ports, filtered_ports, COALESCE(processed_via, ''),
    COALESCE(processing_time_seconds, 0), attempts, COALESCE(error_message, ''), result, published_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.ScanJob, error) {
	var (
		job                  domain.ScanJob
		options, result      []byte
		created              int64
		processed, completed sql.NullInt64
		published            sql.NullInt64
	)
	err := row.Scan(&job.ID, &job.Target, &job.ScanType, &options, &job.Status, &created,
		&processed, &completed, &job.Ports.Total, &job.Ports.Open, &job.Ports.Closed,
		&job.Ports.Filtered, &job.ProcessedVia, &job.ProcessingSeconds, &job.Attempts,
		&job.ErrorMessage, &result, &published)
	if err != nil {
		return job, err
	}
	job.Options = options
	job.Result = result
	job.CreatedAt = fromMicros(created)
	job.ProcessedAt = nullTime(processed)
	job.CompletedAt = nullTime(completed)
	job.PublishedAt = nullTime(published)
	return job, nil
}

func (db *DB) GetJob(ctx context.Context, jobID string) (domain.ScanJob, error) {
	job, err := scanJob(db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scan_jobs WHERE job_id=?`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return job, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	if err != nil {
		return job, persistErr("get job", err)
	}
	return job, nil
}

func (db *DB) ListJobs(ctx context.Context, limit int) ([]domain.ScanJob, error) {
	return db.queryJobs(ctx, `SELECT `+jobColumns+` FROM scan_jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

func (db *DB) PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ScanJob, error) {
	return db.queryJobs(ctx, `
        SELECT `+jobColumns+` FROM scan_jobs
        WHERE status='pending' AND COALESCE(published_at, created_at) < ?
        ORDER BY COALESCE(published_at, created_at), id
        LIMIT ?
    `, micros(cutoff), limit)
}

func (db *DB) queryJobs(ctx context.Context, query string, args ...any) ([]domain.ScanJob, error) {
	rows, err := db.QueryContext(ctx, query, args...)
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
	rows, err := db.QueryContext(ctx, `
        SELECT job_id, port_number, protocol, state, COALESCE(service, ''), COALESCE(product, ''),
               COALESCE(version, ''), COALESCE(os_match, ''), scripts, raw_data, scanned_at
        FROM scan_results WHERE job_id=? ORDER BY port_number
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
			scanned      int64
		)
		if err := rows.Scan(&p.JobID, &p.Port, &p.Protocol, &p.State, &p.Service, &p.Product,
			&p.Version, &p.OSMatch, &scripts, &raw, &scanned); err != nil {
			return nil, persistErr("scan port row", err)
		}
		p.Scripts = scripts
		p.Raw = raw
		p.ScannedAt = fromMicros(scanned)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("port results", err)
	}
	return out, nil
}

func (db *DB) StatusCounts(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM scan_jobs GROUP BY status`)
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

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}
