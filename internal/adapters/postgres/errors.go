package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"riskscan/internal/domain"
)

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// transitionError explains why a conditional status update touched no row.
func transitionError(ctx context.Context, q querier, jobID string, next domain.JobStatus) error {
	var current domain.JobStatus
	err := q.QueryRow(ctx, `SELECT status FROM scan_jobs WHERE job_id=$1`, jobID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	if err != nil {
		return persistErr("load status", err)
	}
	return fmt.Errorf("job %s %s -> %s: %w", jobID, current, next, domain.ErrInvalidTransition)
}
