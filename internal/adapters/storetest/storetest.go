// Package storetest holds behaviour tests shared by every JobRepository
// implementation.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskscan/internal/domain"
	"riskscan/internal/ports"
)

// Run exercises repo against the job lifecycle. newRepo must return an empty
// store for every call.
func Run(t *testing.T, newRepo func(t *testing.T) ports.JobRepository) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newRepo(t)) })
	t.Run("Transitions", func(t *testing.T) { testTransitions(t, newRepo(t)) })
	t.Run("Remark", func(t *testing.T) { testRemark(t, newRepo(t)) })
	t.Run("DuplicateClaim", func(t *testing.T) { testDuplicateClaim(t, newRepo(t)) })
	t.Run("FailKeepsReason", func(t *testing.T) { testFail(t, newRepo(t)) })
	t.Run("PortUpsert", func(t *testing.T) { testPortUpsert(t, newRepo(t)) })
	t.Run("ListAndCounts", func(t *testing.T) { testListAndCounts(t, newRepo(t)) })
	t.Run("PendingBefore", func(t *testing.T) { testPendingBefore(t, newRepo(t)) })
}

var base = time.Date(2024, 6, 10, 8, 30, 0, 123456000, time.UTC)

func newJob(target string, created time.Time) domain.ScanJob {
	return domain.ScanJob{
		ID:        uuid.NewString(),
		Target:    target,
		ScanType:  domain.ScanTypeVuln,
		Options:   json.RawMessage(`{"note": "nightly",  "tags":["dmz"]}`),
		Status:    domain.StatusPending,
		CreatedAt: created,
	}
}

func testRoundTrip(t *testing.T, repo ports.JobRepository) {
	ctx := context.Background()
	job := newJob("192.168.100.2", base)
	require.NoError(t, repo.CreateJob(ctx, job))

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, string(job.Options), string(got.Options))
	assert.True(t, base.Equal(got.CreatedAt), "created_at %s", got.CreatedAt)
	assert.Nil(t, got.CompletedAt)

	started := base.Add(time.Second)
	require.NoError(t, repo.MarkProcessing(ctx, job.ID, started, 1))

	result := json.RawMessage(`{"target":"192.168.100.2", "findings":[{"id":"vulners","risk":{"score":79.0}}],"summary":{"count":1}}`)
	finished := base.Add(42 * time.Second)
	scannedAt := base.Add(40 * time.Second)
	portRows := []domain.PortResult{
		{JobID: job.ID, Port: 22, Protocol: "tcp", State: "open", Service: "ssh", Product: "OpenSSH 8.9p1",
			Scripts: json.RawMessage(`{}`), Raw: json.RawMessage(`{"portid":22}`), ScannedAt: scannedAt},
		{JobID: job.ID, Port: 80, Protocol: "tcp", State: "open", Service: "http", Product: "Apache httpd 2.4.49",
			Version: "2.4.49", OSMatch: "Linux 5.4",
			Scripts: json.RawMessage(`{"http-vuln-cve2021-41773":"VULNERABLE"}`), Raw: json.RawMessage(`{"portid":80}`), ScannedAt: scannedAt},
		{JobID: job.ID, Port: 443, Protocol: "tcp", State: "filtered", ScannedAt: scannedAt},
	}
	require.NoError(t, repo.Complete(ctx, domain.CompletedScan{
		JobID: job.ID, Ports: portRows, Result: result, CompletedAt: finished,
		ProcessedVia: "worker-a", ProcessingSeconds: 41.5,
	}))

	got, err = repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, started.Equal(*got.ProcessedAt))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, finished.Equal(*got.CompletedAt))
	assert.Equal(t, string(result), string(got.Result))
	assert.Equal(t, domain.PortCounts{Total: 3, Open: 2, Filtered: 1}, got.Ports)
	assert.Equal(t, "worker-a", got.ProcessedVia)
	assert.InDelta(t, 41.5, got.ProcessingSeconds, 0.001)
	assert.Equal(t, 1, got.Attempts)
	assert.Empty(t, got.ErrorMessage)

	stored, err := repo.PortResults(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, want := range portRows {
		assert.Equal(t, want.Port, stored[i].Port)
		assert.Equal(t, want.Protocol, stored[i].Protocol)
		assert.Equal(t, want.State, stored[i].State)
		assert.Equal(t, want.Service, stored[i].Service)
		assert.Equal(t, want.Product, stored[i].Product)
		assert.Equal(t, want.Version, stored[i].Version)
		assert.Equal(t, want.OSMatch, stored[i].OSMatch)
		assert.Equal(t, string(want.Scripts), string(stored[i].Scripts))
		assert.Equal(t, string(want.Raw), string(stored[i].Raw))
		assert.True(t, scannedAt.Equal(stored[i].ScannedAt))
	}
}

func testTransitions(t *testing.T, repo ports.JobRepository) {
	ctx := context.Background()
	job := newJob("scanme.example.org", base)
	require.NoError(t, repo.CreateJob(ctx, job))

	err := repo.Complete(ctx, domain.CompletedScan{JobID: job.ID, CompletedAt: base})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending cannot complete")
	err = repo.Fail(ctx, job.ID, "boom", base)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending cannot fail")

	require.NoError(t, repo.MarkProcessing(ctx, job.ID, base, 1))
	require.NoError(t, repo.Fail(ctx, job.ID, "nmap exited 1", base.Add(time.Minute)))

	assert.ErrorIs(t, repo.MarkProcessing(ctx, job.ID, base, 2), domain.ErrInvalidTransition)
	assert.ErrorIs(t, repo.Complete(ctx, domain.CompletedScan{JobID: job.ID, CompletedAt: base}), domain.ErrInvalidTransition)
	assert.ErrorIs(t, repo.Fail(ctx, job.ID, "again", base), domain.ErrInvalidTransition)

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "nmap exited 1", got.ErrorMessage)

	missing := uuid.NewString()
	assert.ErrorIs(t, repo.MarkProcessing(ctx, missing, base, 1), domain.ErrNotFound)
	assert.ErrorIs(t, repo.Fail(ctx, missing, "x", base), domain.ErrNotFound)
	_, err = repo.GetJob(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testRemark(t *testing.T, repo ports.JobRepository) {
	ctx := context.Background()
	job := newJob("10.0.0.5", base)
	require.NoError(t, repo.CreateJob(ctx, job))

	first := base.Add(time.Second)
	require.NoError(t, repo.MarkProcessing(ctx, job.ID, first, 1))
	require.NoError(t, repo.MarkProcessing(ctx, job.ID, base.Add(time.Hour), 2))

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, first.Equal(*got.ProcessedAt))
}

func testFail(t *testing.T, repo ports.JobRepository) {
	ctx := context.Background()
	job := newJob("10.0.0.6", base)
	require.NoError(t, repo.CreateJob(ctx, job))
	require.NoError(t, repo.MarkProcessing(ctx, job.ID, base, 1))
	at := base.Add(15 * time.Minute)
	require.NoError(t, repo.Fail(ctx, job.ID, "scan execution failed: timed out", at))

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, at.Equal(*got.CompletedAt))
	assert.Empty(t, got.Result)

	rows, err := repo.PortResults(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testPortUpsert(t *testing.T, repo ports.JobRepository) {
	ctx := context.Background()
	job := newJob("10.0.0.53", base)
	require.NoError(t, repo.CreateJob(ctx, job))
	require.NoError(t, repo.MarkProcessing(ctx, job.ID, base, 1))
	require.NoError(t, repo.Complete(ctx, domain.CompletedScan{
		JobID: job.ID,
		Ports: []domain.PortResult{
			{JobID: job.ID, Port: 53, Protocol: "tcp", State: "open", Service: "domain", ScannedAt: base},
			{JobID: job.ID, Port: 53, Protocol: "udp", State: "open", Service: "domain", ScannedAt: base},
		},
		CompletedAt: base,
	}))

	rows, err := repo.PortResults(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "udp", rows[0].Protocol)
}

func testListAndCounts(t *testing.T, repo ports.JobRepository) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		job := newJob("10.0.1.1", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.CreateJob(ctx, job))
		ids = append(ids, job.ID)
	}
	require.NoError(t, repo.MarkProcessing(ctx, ids[0], base, 1))
	require.NoError(t, repo.Complete(ctx, domain.CompletedScan{JobID: ids[0], CompletedAt: base}))
	require.NoError(t, repo.MarkProcessing(ctx, ids[1], base, 1))

	jobs, err := repo.ListJobs(ctx, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, ids[3], jobs[0].ID)
	assert.Equal(t, ids[2], jobs[1].ID)
	assert.Equal(t, ids[1], jobs[2].ID)

	counts, err := repo.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.JobStatus]int{
		domain.StatusPending:    2,
		domain.StatusProcessing: 1,
		domain.StatusCompleted:  1,
		domain.StatusFailed:     0,
	}, counts)
}

func testPendingBefore(t *testing.T, repo ports.JobRepository) {
	ctx := context.Background()
	old := newJob("10.0.2.1", base)
	older := newJob("10.0.2.2", base.Add(-time.Hour))
	fresh := newJob("10.0.2.3", base.Add(time.Hour))
	picked := newJob("10.0.2.4", base.Add(-2*time.Hour))
	for _, j := range []domain.ScanJob{old, older, fresh, picked} {
		require.NoError(t, repo.CreateJob(ctx, j))
	}
	require.NoError(t, repo.MarkProcessing(ctx, picked.ID, base, 1))

	jobs, err := repo.PendingBefore(ctx, base.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, older.ID, jobs[0].ID)
	assert.Equal(t, old.ID, jobs[1].ID)

	// a recent publish hides the job until it goes stale again
	require.NoError(t, repo.MarkPublished(ctx, older.ID, base.Add(2*time.Minute)))
	jobs, err = repo.PendingBefore(ctx, base.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, old.ID, jobs[0].ID)

	jobs, err = repo.PendingBefore(ctx, base.Add(3*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, old.ID, jobs[0].ID)
	assert.Equal(t, older.ID, jobs[1].ID)
	require.NotNil(t, jobs[1].PublishedAt)
	assert.True(t, base.Add(2*time.Minute).Equal(*jobs[1].PublishedAt))

	// stamping a job that left pending is a no-op
	require.NoError(t, repo.MarkPublished(ctx, picked.ID, base.Add(5*time.Minute)))
	got, err := repo.GetJob(ctx, picked.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PublishedAt)
}

func testDuplicateClaim(t *testing.T, repo ports.JobRepository) {
	ctx := context.Background()
	job := newJob("10.0.3.1", base)
	require.NoError(t, repo.CreateJob(ctx, job))

	require.NoError(t, repo.MarkProcessing(ctx, job.ID, base.Add(time.Second), 1))
	err := repo.MarkProcessing(ctx, job.ID, base.Add(2*time.Second), 1)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)

	require.NoError(t, repo.MarkProcessing(ctx, job.ID, base.Add(3*time.Second), 2))
	err = repo.MarkProcessing(ctx, job.ID, base.Add(4*time.Second), 2)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	err = repo.MarkProcessing(ctx, job.ID, base.Add(5*time.Second), 1)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err = repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, base.Add(time.Second).Equal(*got.ProcessedAt))
}
