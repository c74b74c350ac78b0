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

package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/ledgerscan/ledgerscan/internal/apierror"
	"github.com/ledgerscan/ledgerscan/model"
)

func TestEnqueueJob_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(sqlmock.AnyArg(), string(model.JobKindDocumentOCR), "doc_1", string(model.JobPending), model.DefaultMaxRetries).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job, err := ds.EnqueueJob(context.Background(), &model.Job{
		Kind:       model.JobKindDocumentOCR,
		PayloadRef: "doc_1",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, model.JobPending, job.Status)
	assert.Equal(t, model.DefaultMaxRetries, job.MaxRetries)
}

func TestClaimNextJobs_SingleConditionalUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	now := time.Now()
	rows := sqlmock.NewRows([]string{"job_id", "kind", "payload_ref", "status", "retry_count", "max_retries", "error_message", "claimed_at", "completed_at", "created_at"}).
		AddRow("job_1", "document_ocr", "doc_1", "claimed", 0, 3, nil, now, nil, now).
		AddRow("job_2", "document_ocr", "doc_2", "claimed", 1, 3, "timeout", now, nil, now)

	// the claim is one UPDATE ... SKIP LOCKED ... RETURNING, never a read first
	mock.ExpectQuery("UPDATE jobs SET status = 'claimed', claimed_at = NOW\\(\\) WHERE job_id IN \\( SELECT job_id FROM jobs WHERE kind = \\$1 AND status = 'pending' ORDER BY created_at LIMIT \\$2 FOR UPDATE SKIP LOCKED \\) RETURNING").
		WithArgs(string(model.JobKindDocumentOCR), 10).
		WillReturnRows(rows)

	jobs, err := ds.ClaimNextJobs(context.Background(), model.JobKindDocumentOCR, 10)
	assert.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Equal(t, model.JobClaimed, jobs[0].Status)
	assert.True(t, jobs[0].ClaimedAt.Valid)
	assert.Equal(t, "timeout", jobs[1].ErrorMessage)
}

func TestClaimNextJobs_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("UPDATE jobs").
		WithArgs(string(model.JobKindMemoryExtraction), 10).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "kind", "payload_ref", "status", "retry_count", "max_retries", "error_message", "claimed_at", "completed_at", "created_at"}))

	jobs, err := ds.ClaimNextJobs(context.Background(), model.JobKindMemoryExtraction, 10)
	assert.NoError(t, err)
	assert.Len(t, jobs, 0)
}

func TestCompleteJob_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE jobs SET status = 'completed'").
		WithArgs("job_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.CompleteJob(context.Background(), "job_1")
	assert.NoError(t, err)
}

func TestCompleteJob_NotClaimedIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	// a duplicate invocation hits a job no longer in claimed state
	mock.ExpectExec("UPDATE jobs SET status = 'completed'").
		WithArgs("job_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.CompleteJob(context.Background(), "job_1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestFailJob_TransientIncrementsRetry(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE jobs SET retry_count = retry_count \\+ 1").
		WithArgs("job_1", "provider timeout").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.FailJob(context.Background(), "job_1", "provider timeout", false)
	assert.NoError(t, err)
}

func TestFailJob_PermanentForcesMaxRetries(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	// a permanent classification fails the job and exhausts the budget in one step
	mock.ExpectExec("UPDATE jobs SET status = 'failed', retry_count = max_retries").
		WithArgs("job_1", "owner no longer exists").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.FailJob(context.Background(), "job_1", "owner no longer exists", true)
	assert.NoError(t, err)
}

func TestFailJob_NotClaimedIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE jobs SET retry_count = retry_count \\+ 1").
		WithArgs("job_1", "boom").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.FailJob(context.Background(), "job_1", "boom", false)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE job_id").
		WithArgs("job_missing").
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "kind", "payload_ref", "status", "retry_count", "max_retries", "error_message", "claimed_at", "completed_at", "created_at"}))

	_, err = ds.GetJob(context.Background(), "job_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestRequeueStuckJobs(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE jobs SET retry_count = retry_count \\+ 1").
		WithArgs(float64(3600)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := ds.RequeueStuckJobs(context.Background(), time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
