package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskscan/internal/domain"
	"riskscan/internal/ports"
)

type fakeJobs struct {
	jobs       map[string]domain.ScanJob
	submitErr  error
	queueErr   error
	lastLimit  int
	lastTarget string
}

func (f *fakeJobs) Create(_ context.Context, target string, _ json.RawMessage) (domain.ScanJob, error) {
	if target == "bad" {
		return domain.ScanJob{}, domain.InvalidTargetError(target)
	}
	job := domain.ScanJob{ID: "job-inline", Target: target, Status: domain.StatusPending}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) Submit(_ context.Context, target string, _ json.RawMessage) (ports.SubmitResult, error) {
	f.lastTarget = target
	if target == "bad" {
		return ports.SubmitResult{}, domain.InvalidTargetError(target)
	}
	if f.submitErr != nil {
		return ports.SubmitResult{JobID: "job-1", Status: "pending"}, f.submitErr
	}
	return ports.SubmitResult{JobID: "job-1", Status: "queued"}, nil
}

func (f *fakeJobs) Job(_ context.Context, id string) (domain.ScanJob, []domain.PortResult, error) {
	job, ok := f.jobs[id]
	if !ok {
		return job, nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return job, []domain.PortResult{{JobID: id, Port: 80, Protocol: "tcp", State: "open"}}, nil
}

func (f *fakeJobs) Jobs(_ context.Context, limit int) ([]domain.ScanJob, error) {
	f.lastLimit = limit
	out := []domain.ScanJob{}
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeJobs) Counts(context.Context) (map[domain.JobStatus]int, error) {
	return map[domain.JobStatus]int{domain.StatusPending: 2, domain.StatusCompleted: 3}, nil
}

func (f *fakeJobs) Queue(context.Context) (domain.QueueStats, error) {
	if f.queueErr != nil {
		return domain.QueueStats{}, f.queueErr
	}
	return domain.QueueStats{Queue: "scan_jobs", Messages: 5, Consumers: 2}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, jobs *fakeJobs, db Pinger, inline InlineRunner) *httptest.Server {
	t.Helper()
	log, _ := test.NewNullLogger()
	srv := httptest.NewServer(New(jobs, db, inline, log).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func newFakeJobs() *fakeJobs {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	return &fakeJobs{jobs: map[string]domain.ScanJob{
		"job-1": {ID: "job-1", Target: "192.168.100.2", Status: domain.StatusCompleted, CreatedAt: now, CompletedAt: &now},
	}}
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, newFakeJobs(), pinger{}, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestServer(t, newFakeJobs(), pinger{err: errors.New("connection refused")}, nil)
	resp, err = http.Get(down.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPostScan(t *testing.T) {
	jobs := newFakeJobs()
	srv := newTestServer(t, jobs, nil, nil)

	resp, err := http.Post(srv.URL+"/scans", "application/json", strings.NewReader(`{"target":"192.168.100.2"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var res ports.SubmitResult
	decode(t, resp, &res)
	assert.Equal(t, ports.SubmitResult{JobID: "job-1", Status: "queued"}, res)
	assert.Equal(t, "192.168.100.2", jobs.lastTarget)

	resp, err = http.Post(srv.URL+"/scans", "application/json", strings.NewReader(`{"target":"bad"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/scans", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostScanPublishFailure(t *testing.T) {
	jobs := newFakeJobs()
	jobs.submitErr = fmt.Errorf("%w: broker unavailable", domain.ErrPublish)
	srv := newTestServer(t, jobs, nil, nil)

	resp, err := http.Post(srv.URL+"/scans", "application/json", strings.NewReader(`{"target":"10.0.0.1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "job-1", body["job_id"])
}

func TestPostScanWait(t *testing.T) {
	jobs := newFakeJobs()
	var ran string
	inline := func(ctx context.Context, id string) (domain.ScanJob, error) {
		ran = id
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		job := jobs.jobs[id]
		job.Status = domain.StatusCompleted
		jobs.jobs[id] = job
		return job, nil
	}
	srv := newTestServer(t, jobs, nil, inline)

	resp, err := http.Post(srv.URL+"/scans?wait=true&timeout=5", "application/json", strings.NewReader(`{"target":"10.0.0.1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body scanResponse
	decode(t, resp, &body)
	assert.Equal(t, "job-inline", ran)
	assert.Equal(t, domain.StatusCompleted, body.Job.Status)
	assert.Len(t, body.Ports, 1)

	disabled := newTestServer(t, newFakeJobs(), nil, nil)
	resp, err = http.Post(disabled.URL+"/scans?wait=1", "application/json", strings.NewReader(`{"target":"10.0.0.1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetScan(t *testing.T) {
	srv := newTestServer(t, newFakeJobs(), nil, nil)

	resp, err := http.Get(srv.URL + "/scans/job-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body scanResponse
	decode(t, resp, &body)
	assert.Equal(t, "192.168.100.2", body.Job.Target)
	require.NotNil(t, body.Job.CompletedAt)

	resp, err = http.Get(srv.URL + "/scans/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListScans(t *testing.T) {
	jobs := newFakeJobs()
	srv := newTestServer(t, jobs, nil, nil)

	resp, err := http.Get(srv.URL + "/scans?limit=20")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Jobs  []domain.ScanJob `json:"jobs"`
		Count int              `json:"count"`
	}
	decode(t, resp, &body)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, 20, jobs.lastLimit)

	resp, err = http.Get(srv.URL + "/scans?limit=lots")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatsAndQueue(t *testing.T) {
	jobs := newFakeJobs()
	srv := newTestServer(t, jobs, nil, nil)

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	var stats struct {
		Statuses map[string]int `json:"statuses"`
		Total    int            `json:"total"`
	}
	decode(t, resp, &stats)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Statuses["pending"])

	resp, err = http.Get(srv.URL + "/queue")
	require.NoError(t, err)
	var q domain.QueueStats
	decode(t, resp, &q)
	assert.Equal(t, domain.QueueStats{Queue: "scan_jobs", Messages: 5, Consumers: 2}, q)

	jobs.queueErr = fmt.Errorf("%w: dial: refused", domain.ErrBrokerConnectivity)
	resp, err = http.Get(srv.URL + "/queue")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
