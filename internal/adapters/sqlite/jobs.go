package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"riskscan/internal/domain"
)

const opTimeout = 5 * time.Second

func (db *DB) CreateJob(ctx context.Context, job domain.ScanJob) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := db.ExecContext(ctx, `
        INSERT INTO scan_jobs (job_id, target, scan_type, options, status, created_at, attempts)
        VALUES (?, ?, ?, ?, 'pending', ?, 0)
    `, job.ID, job.Target, job.ScanType, jsonArg(job.Options), micros(job.CreatedAt))
	if err != nil {
		return persistErr("create job", err)
	}
	return nil
}

// MarkProcessing claims a job for one attempt; see the postgres store for the
// rules.
func (db *DB) MarkProcessing(ctx context.Context, jobID string, at time.Time, attempt int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := db.ExecContext(ctx, `
        UPDATE scan_jobs
        SET status='processing', processed_at=COALESCE(processed_at, ?), attempts=MAX(attempts, ?)
        WHERE job_id=? AND (status='pending' OR (status='processing' AND attempts < ?))
    `, micros(at), attempt, jobID, attempt)
	if err != nil {
		return persistErr("mark processing", err)
	}
	return checkTransition(ctx, db.DB, res, jobID, domain.StatusProcessing)
}

func (db *DB) Complete(ctx context.Context, done domain.CompletedScan) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else if err = tx.Commit(); err != nil {
			err = persistErr("commit", err)
		}
	}()

	counts := domain.CountPorts(done.Ports)
	res, err := tx.ExecContext(ctx, `
        UPDATE scan_jobs
        SET status='completed', completed_at=?, result=?,
            total_ports=?, open_ports=?, closed_ports=?, filtered_ports=?,
            processed_via=?, processing_time_seconds=?, error_message=NULL
        WHERE job_id=? AND status='processing'
    `, micros(done.CompletedAt), jsonArg(done.Result),
		counts.Total, counts.Open, counts.Closed, counts.Filtered,
		done.ProcessedVia, done.ProcessingSeconds, done.JobID)
	if err != nil {
		return persistErr("complete job", err)
	}
	if err = checkTransition(ctx, tx, res, done.JobID, domain.StatusCompleted); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO scan_results (job_id, port_number, protocol, state, service, product, version, os_match, scripts, raw_data, scanned_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (job_id, port_number) DO UPDATE SET
            protocol=excluded.protocol, state=excluded.state, service=excluded.service,
            product=excluded.product, version=excluded.version, os_match=excluded.os_match,
            scripts=excluded.scripts, raw_data=excluded.raw_data, scanned_at=excluded.scanned_at
    `)
	if err != nil {
		return persistErr("prepare port upsert", err)
	}
	defer stmt.Close()
	for _, p := range done.Ports {
		if _, err = stmt.ExecContext(ctx, done.JobID, p.Port, p.Protocol, p.State,
			nullString(p.Service), nullString(p.Product), nullString(p.Version), nullString(p.OSMatch),
			jsonArg(p.Scripts), jsonArg(p.Raw), micros(p.ScannedAt)); err != nil {
			return persistErr("store port result", err)
		}
	}
	return nil
}

func (db *DB) Fail(ctx context.Context, jobID string, reason string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := db.ExecContext(ctx, `
        UPDATE scan_jobs SET status='failed', completed_at=?, error_message=?
        WHERE job_id=? AND status='processing'
    `, micros(at), reason, jobID)
	if err != nil {
		return persistErr("fail job", err)
	}
	return checkTransition(ctx, db.DB, res, jobID, domain.StatusFailed)
}

func (db *DB) MarkPublished(ctx context.Context, jobID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := db.ExecContext(ctx, `UPDATE scan_jobs SET published_at=? WHERE job_id=? AND status='pending'`,
		micros(at), jobID)
	if err != nil {
		return persistErr("mark published", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func checkTransition(ctx context.Context, q querier, res sql.Result, jobID string, next domain.JobStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("rows affected", err)
	}
	if n > 0 {
		return nil
	}
	var current domain.JobStatus
	err = q.QueryRowContext(ctx, `SELECT status FROM scan_jobs WHERE job_id=?`, jobID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	if err != nil {
		return persistErr("load status", err)
	}
	return fmt.Errorf("job %s %s -> %s: %w", jobID, current, next, domain.ErrInvalidTransition)
}

func micros(t time.Time) int64 { return domain.StorageTime(t).UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
