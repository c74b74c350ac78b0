package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/ledgerscan/ledgerscan/internal/apierror"
	"github.com/ledgerscan/ledgerscan/model"
)

const jobColumns = `job_id, kind, payload_ref, status, retry_count, max_retries, error_message, claimed_at, completed_at, created_at`

// EnqueueJob persists a new pending job and assigns its ID.
func (d Datasource) EnqueueJob(ctx context.Context, job *model.Job) (*model.Job, error) {
	job.JobID = model.GenerateUUIDWithSuffix("job")
	job.Status = model.JobPending
	if job.MaxRetries <= 0 {
		job.MaxRetries = model.DefaultMaxRetries
	}
	job.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO jobs (job_id, kind, payload_ref, status, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, 0, $5)
	`, job.JobID, job.Kind, job.PayloadRef, job.Status, job.MaxRetries)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, apierror.NewAPIError(apierror.ErrConflict, "Job with this ID already exists", err)
			default:
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to enqueue job", err)
	}

	return job, nil
}

// ClaimNextJobs atomically claims up to batchSize pending jobs of the given
// kind. The claim is a single conditional update: SKIP LOCKED lets concurrent
// workers pull disjoint batches without blocking each other, and exactly one
// worker ever sees a given job in claimed state.
func (d Datasource) ClaimNextJobs(ctx context.Context, kind model.JobKind, batchSize int) ([]*model.Job, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	rows, err := d.Conn.QueryContext(ctx, `
		UPDATE jobs
		SET status = 'claimed', claimed_at = NOW()
		WHERE job_id IN (
			SELECT job_id FROM jobs
			WHERE kind = $1 AND status = 'pending'
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, kind, batchSize)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim jobs", err)
	}
	defer rows.Close()

	jobs := []*model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan job data", err)
		}
		jobs = append(jobs, job)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over jobs", err)
	}

	return jobs, nil
}

// CompleteJob marks a claimed job completed. Calling it on a job that is not
// claimed is a conflict, which shields against duplicate worker invocations
// racing on the same job id.
func (d Datasource) CompleteJob(ctx context.Context, jobID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed', completed_at = NOW(), error_message = NULL
		WHERE job_id = $1 AND status = 'claimed'
	`, jobID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete job", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Job is not claimed", nil)
	}
	return nil
}

// FailJob records a failure on a claimed job. A transient failure increments
// the retry count and returns the job to the pending pool until the budget
// runs out. A permanent failure forces the retry count to the maximum and
// fails the job in the same statement; retrying cannot possibly succeed, so
// no further attempt is made.
func (d Datasource) FailJob(ctx context.Context, jobID string, errMsg string, permanent bool) error {
	var result sql.Result
	var err error

	if permanent {
		result, err = d.Conn.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'failed', retry_count = max_retries, error_message = $2, completed_at = NOW(), claimed_at = NULL
			WHERE job_id = $1 AND status = 'claimed'
		`, jobID, errMsg)
	} else {
		result, err = d.Conn.ExecContext(ctx, `
			UPDATE jobs
			SET retry_count = retry_count + 1,
			    error_message = $2,
			    status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
			    completed_at = CASE WHEN retry_count + 1 >= max_retries THEN NOW() ELSE NULL END,
			    claimed_at = NULL
			WHERE job_id = $1 AND status = 'claimed'
		`, jobID, errMsg)
	}
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record job failure", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Job is not claimed", nil)
	}
	return nil
}

// GetJob retrieves a job by its ID.
func (d Datasource) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE job_id = $1
	`, jobID)

	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Job not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve job", err)
	}
	return job, nil
}

// GetStuckJobs lists claimed jobs held longer than the threshold. A stuck
// claim is evidence of a lost worker.
func (d Datasource) GetStuckJobs(ctx context.Context, threshold time.Duration, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'claimed' AND claimed_at < NOW() - ($1 * interval '1 second')
		ORDER BY claimed_at
		LIMIT $2
	`, threshold.Seconds(), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stuck jobs", err)
	}
	defer rows.Close()

	jobs := []*model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan job data", err)
		}
		jobs = append(jobs, job)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over jobs", err)
	}

	return jobs, nil
}

// RequeueStuckJobs returns long-claimed jobs to the pending pool so another
// worker can pick them up. The failed attempt counts against the retry budget.
func (d Datasource) RequeueStuckJobs(ctx context.Context, threshold time.Duration) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs
		SET retry_count = retry_count + 1,
		    error_message = 'claim expired',
		    status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
		    completed_at = CASE WHEN retry_count + 1 >= max_retries THEN NOW() ELSE NULL END,
		    claimed_at = NULL
		WHERE status = 'claimed' AND claimed_at < NOW() - ($1 * interval '1 second')
	`, threshold.Seconds())
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to requeue stuck jobs", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	job := model.Job{}
	var errorMessage sql.NullString
	err := row.Scan(&job.JobID, &job.Kind, &job.PayloadRef, &job.Status, &job.RetryCount, &job.MaxRetries,
		&errorMessage, &job.ClaimedAt, &job.CompletedAt, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	job.ErrorMessage = errorMessage.String
	return &job, nil
}
