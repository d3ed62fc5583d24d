package scanrunner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskscan/internal/adapters/sqlite"
	"riskscan/internal/domain"
	"riskscan/internal/enrichment"
	"riskscan/internal/scanner"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

// Now advances two seconds per call so processing time is never zero.
func (c *stepClock) Now(context.Context) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(2 * time.Second)
	return c.t
}

type fakeScanner struct {
	mu      sync.Mutex
	outputs [][]byte
	errs    []error
	calls   int
}

func (s *fakeScanner) Scan(_ context.Context, target string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if _, err := scanner.ValidateTarget(target); err != nil {
		return nil, err
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.outputs) {
		return s.outputs[i], nil
	}
	return s.outputs[len(s.outputs)-1], nil
}

func (s *fakeScanner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// blockingScanner holds every scan until ctx ends, like a tool run whose
// caller went away.
type blockingScanner struct{}

func (blockingScanner) Scan(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, &domain.ExecutionError{Reason: "interrupted: " + ctx.Err().Error(), ExitCode: -1}
}

type queue struct {
	mu   sync.Mutex
	msgs []domain.JobMessage
}

func (q *queue) Publish(_ context.Context, msg domain.JobMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

type harness struct {
	repo    *sqlite.DB
	scanner *fakeScanner
	queue   *queue
	proc    *Processor
	hook    *test.Hook
}

func fixtureXML(t *testing.T) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "..", "parser", "testdata", "vuln_scan.xml"))
	require.NoError(t, err)
	return raw
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	repo, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	h := &harness{repo: repo, scanner: &fakeScanner{outputs: [][]byte{fixtureXML(t)}}, queue: &queue{}, hook: hook}
	clock := &stepClock{t: time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)}
	h.proc = NewProcessor(repo, h.scanner, enrichment.New(nil, log), h.queue, clock,
		Options{MaxAttempts: maxAttempts, Via: "worker-test"}, log)
	return h
}

func (h *harness) pending(t *testing.T, target string) domain.ScanJob {
	t.Helper()
	job := domain.ScanJob{
		ID:        uuid.NewString(),
		Target:    target,
		ScanType:  domain.ScanTypeVuln,
		Options:   json.RawMessage(`{}`),
		Status:    domain.StatusPending,
		CreatedAt: time.Date(2024, 6, 10, 7, 59, 0, 0, time.UTC),
	}
	require.NoError(t, h.repo.CreateJob(context.Background(), job))
	return job
}

func (h *harness) blockingProcessor() *Processor {
	log, _ := test.NewNullLogger()
	clock := &stepClock{t: time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)}
	return NewProcessor(h.repo, blockingScanner{}, enrichment.New(nil, log), nil, clock,
		Options{MaxAttempts: 1, Via: "inline-test"}, log)
}

func (h *harness) job(t *testing.T, id string) domain.ScanJob {
	t.Helper()
	job, err := h.repo.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestProcessCompletesJob(t *testing.T) {
	h := newHarness(t, 1)
	job := h.pending(t, "192.168.100.2")

	h.proc.Process(context.Background(), job.Message(1))

	got := h.job(t, job.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, got.CompletedAt.After(*got.ProcessedAt))
	assert.Equal(t, domain.PortCounts{Total: 4, Open: 3, Filtered: 1}, got.Ports)
	assert.Equal(t, "worker-test", got.ProcessedVia)
	assert.InDelta(t, 2.0, got.ProcessingSeconds, 0.001)
	assert.Equal(t, 1, got.Attempts)

	var result domain.EnrichedScanResult
	require.NoError(t, json.Unmarshal(got.Result, &result))
	assert.Equal(t, 3, result.Summary.Count)
	for _, f := range result.Findings {
		assert.Equal(t, enrichment.MapScoreToCategory(f.Risk.Score), f.Risk.Category, f.ID)
	}

	rows, err := h.repo.PortResults(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, job.ID, rows[0].JobID)
	assert.Equal(t, 22, rows[0].Port)
}

func TestProcessExecutionFailureFailsJob(t *testing.T) {
	h := newHarness(t, 1)
	h.scanner.errs = []error{&domain.ExecutionError{Reason: "exit status 1", ExitCode: 1, Stderr: "Failed to resolve"}}
	job := h.pending(t, "10.0.0.9")

	h.proc.Process(context.Background(), job.Message(1))

	got := h.job(t, job.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Contains(t, got.ErrorMessage, "Failed to resolve")
	assert.Empty(t, h.queue.msgs, "MaxAttempts 1 never requeues")
}

func TestProcessTimeoutFailsJob(t *testing.T) {
	h := newHarness(t, 1)
	h.scanner.errs = []error{&domain.ExecutionError{Reason: "timed out after 15m0s", TimedOut: true}}
	job := h.pending(t, "10.0.0.10")

	h.proc.Process(context.Background(), job.Message(1))

	got := h.job(t, job.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Contains(t, got.ErrorMessage, "timed out")
}

func TestProcessFailsJobWhenContextEnds(t *testing.T) {
	h := newHarness(t, 1)
	job := h.pending(t, "10.0.0.11")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	h.blockingProcessor().Process(ctx, job.Message(1))

	got := h.job(t, job.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Contains(t, got.ErrorMessage, "interrupted: context deadline exceeded")
}

func TestProcessParseFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, 3)
	h.scanner.outputs = [][]byte{[]byte("<nmaprun><host>")}
	job := h.pending(t, "10.0.0.11")

	h.proc.Process(context.Background(), job.Message(1))

	got := h.job(t, job.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, domain.ErrParse.Error())
	assert.Empty(t, h.queue.msgs)
}

func TestProcessInvalidTargetIsNotRetried(t *testing.T) {
	h := newHarness(t, 3)
	job := h.pending(t, "bad target;id")

	h.proc.Process(context.Background(), job.Message(1))

	got := h.job(t, job.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, domain.ErrInvalidTarget.Error())
	assert.Empty(t, h.queue.msgs)
}

func TestProcessRetriesExecutionFailures(t *testing.T) {
	h := newHarness(t, 2)
	h.scanner.errs = []error{
		&domain.ExecutionError{Reason: "exit status 1", ExitCode: 1},
		&domain.ExecutionError{Reason: "exit status 1", ExitCode: 1},
	}
	job := h.pending(t, "10.0.0.12")

	h.proc.Process(context.Background(), job.Message(1))
	got := h.job(t, job.ID)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	require.Len(t, h.queue.msgs, 1)
	assert.Equal(t, 2, h.queue.msgs[0].Attempt)

	h.proc.Process(context.Background(), h.queue.msgs[0])
	got = h.job(t, job.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Len(t, h.queue.msgs, 1, "last attempt is not requeued")
}

func TestProcessRetrySucceeds(t *testing.T) {
	h := newHarness(t, 2)
	h.scanner.errs = []error{&domain.ExecutionError{Reason: "exit status 1", ExitCode: 1}}
	job := h.pending(t, "192.168.100.2")

	h.proc.Process(context.Background(), job.Message(1))
	h.proc.Process(context.Background(), h.queue.msgs[0])

	got := h.job(t, job.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.Attempts)
}

func TestProcessSkipsTerminalJob(t *testing.T) {
	h := newHarness(t, 1)
	job := h.pending(t, "192.168.100.2")
	h.proc.Process(context.Background(), job.Message(1))
	require.Equal(t, 1, h.scanner.callCount())

	h.proc.Process(context.Background(), job.Message(1))
	assert.Equal(t, 1, h.scanner.callCount(), "redelivered message for a finished job is skipped")
	assert.Equal(t, domain.StatusCompleted, h.job(t, job.ID).Status)
}

func TestProcessSkipsDuplicateClaim(t *testing.T) {
	h := newHarness(t, 1)
	job := h.pending(t, "192.168.100.2")
	claimed := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, h.repo.MarkProcessing(context.Background(), job.ID, claimed, 1))

	h.proc.Process(context.Background(), job.Message(1))
	assert.Zero(t, h.scanner.callCount(), "second delivery of a running attempt is skipped")

	got := h.job(t, job.ID)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestProcessSkipsUnknownJob(t *testing.T) {
	h := newHarness(t, 1)
	h.proc.Process(context.Background(), domain.JobMessage{JobID: uuid.NewString(), Target: "10.0.0.1"})
	assert.Zero(t, h.scanner.callCount())

	var warned bool
	for _, e := range h.hook.AllEntries() {
		if e.Message == "unknown job, skipping" {
			warned = true
		}
	}
	assert.True(t, warned)
}

type failingAdvisories struct{}

func (failingAdvisories) Lookup(context.Context, string) (domain.Advisory, error) {
	return domain.Advisory{}, errors.New("advisory lookup failed: dial tcp: i/o timeout")
}

func TestAdvisoryOutageDoesNotFailJob(t *testing.T) {
	h := newHarness(t, 1)
	log, _ := test.NewNullLogger()
	h.proc.enricher = enrichment.New(failingAdvisories{}, log)
	job := h.pending(t, "192.168.100.2")

	h.proc.Process(context.Background(), job.Message(1))
	assert.Equal(t, domain.StatusCompleted, h.job(t, job.ID).Status)
}
