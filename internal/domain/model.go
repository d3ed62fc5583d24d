package domain

import (
	"encoding/json"
	"time"
)

// Core domain models shared by the producer, the worker and the stores.
// Wire and storage shapes are derived from these; keep them free of I/O.

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a job may move from s to next. Re-marking a
// processing job as processing is allowed for a retry; stores additionally
// require the retry to carry a later attempt number.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed
	}
	return false
}

const ScanTypeVuln = "vuln"

type PortCounts struct {
	Total    int `json:"total"`
	Open     int `json:"open"`
	Closed   int `json:"closed"`
	Filtered int `json:"filtered"`
}

type ScanJob struct {
	ID                string          `json:"job_id"`
	Target            string          `json:"target"`
	ScanType          string          `json:"scan_type"`
	Options           json.RawMessage `json:"options,omitempty"`
	Status            JobStatus       `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	PublishedAt       *time.Time      `json:"published_at,omitempty"`
	Ports             PortCounts      `json:"port_counts"`
	ProcessedVia      string          `json:"processed_via,omitempty"`
	ProcessingSeconds float64         `json:"processing_time_seconds,omitempty"`
	Attempts          int             `json:"attempts"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	Result            json.RawMessage `json:"result,omitempty"`
}

type PortResult struct {
	JobID     string          `json:"job_id"`
	Port      int             `json:"port"`
	Protocol  string          `json:"protocol"`
	State     string          `json:"state"`
	Service   string          `json:"service,omitempty"`
	Product   string          `json:"product,omitempty"`
	Version   string          `json:"version,omitempty"`
	OSMatch   string          `json:"os_match,omitempty"`
	Scripts   json.RawMessage `json:"scripts,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	ScannedAt time.Time       `json:"scanned_at"`
}

// CountPorts tallies port states for the job aggregate columns.
func CountPorts(ports []PortResult) PortCounts {
	c := PortCounts{Total: len(ports)}
	for _, p := range ports {
		switch p.State {
		case "open":
			c.Open++
		case "closed":
			c.Closed++
		case "filtered", "open|filtered", "closed|filtered":
			c.Filtered++
		}
	}
	return c
}

// JobMessage is the broker payload for one unit of scan work.
type JobMessage struct {
	JobID     string          `json:"job_id"`
	Target    string          `json:"target"`
	Options   json.RawMessage `json:"options,omitempty"`
	CreatedAt int64           `json:"created_at"`
	Attempt   int             `json:"attempt,omitempty"`
}

// Message builds the queue message that asks a worker to run job.
func (j ScanJob) Message(attempt int) JobMessage {
	return JobMessage{
		JobID:     j.ID,
		Target:    j.Target,
		Options:   j.Options,
		CreatedAt: j.CreatedAt.Unix(),
		Attempt:   attempt,
	}
}

// QueueStats is the broker-side view of the work queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
}

// CompletedScan carries everything persisted when a job finishes.
type CompletedScan struct {
	JobID             string
	Ports             []PortResult
	Result            json.RawMessage
	CompletedAt       time.Time
	ProcessedVia      string
	ProcessingSeconds float64
}

// StorageTime normalises timestamps to the precision both stores keep.
func StorageTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
