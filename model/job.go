/*
Copyright 2024 Ledgerscan Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"database/sql"
	"time"
)

// JobStatus is the closed set of states a queued job moves through.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobClaimed   JobStatus = "claimed"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobKind identifies the worker that should process a job.
type JobKind string

const (
	JobKindDocumentOCR      JobKind = "document_ocr"
	JobKindMemoryExtraction JobKind = "memory_extraction"
)

// DefaultMaxRetries is applied to newly enqueued jobs unless overridden.
const DefaultMaxRetries = 3

// Job is a durable unit of asynchronous work. At most one worker holds a
// claimed job at a time; the claim itself is a single conditional update in
// the job store, never a read-then-write.
type Job struct {
	ID           int64        `json:"-"`
	JobID        string       `json:"job_id"`
	Kind         JobKind      `json:"kind"`
	PayloadRef   string       `json:"payload_ref"`
	Status       JobStatus    `json:"status"`
	RetryCount   int          `json:"retry_count"`
	MaxRetries   int          `json:"max_retries"`
	ErrorMessage string       `json:"error_message,omitempty"`
	ClaimedAt    sql.NullTime `json:"claimed_at,omitempty"`
	CompletedAt  sql.NullTime `json:"completed_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Terminal reports whether the job can never be claimed again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransitionTo enforces the job state machine. A failed job below its
// retry budget re-enters via pending, which FailJob handles in the store.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobClaimed
	case JobClaimed:
		return next == JobCompleted || next == JobFailed || next == JobPending
	}
	return false
}

// RetriesExhausted reports whether another failure would be final.
func (j *Job) RetriesExhausted() bool {
	return j.RetryCount >= j.MaxRetries
}

// StuckSince reports whether a claimed job has been held longer than the
// given threshold. A stuck claim is evidence of a lost worker, surfaced for
// observability; automatic recovery is handled elsewhere.
func (j *Job) StuckSince(threshold time.Duration, now time.Time) bool {
	return j.Status == JobClaimed && j.ClaimedAt.Valid && now.Sub(j.ClaimedAt.Time) > threshold
}
