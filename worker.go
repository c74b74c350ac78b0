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

package ledgerscan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ledgerscan/ledgerscan/config"
	"github.com/ledgerscan/ledgerscan/model"
)

// WorkerPool polls the durable job queue and drives the ingestion pipeline.
// Workers coordinate only through the queue's atomic claim; any number of
// pools may run against the same database.
type WorkerPool struct {
	ledgerscan *Ledgerscan
}

// NewWorkerPool creates a worker pool bound to a Ledgerscan instance.
func NewWorkerPool(l *Ledgerscan) *WorkerPool {
	return &WorkerPool{ledgerscan: l}
}

// Start runs the configured number of polling workers for each job kind plus
// the stuck-claim monitor, and blocks until the context is cancelled.
func (w *WorkerPool) Start(ctx context.Context) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	pollInterval := time.Duration(cnf.Worker.PollIntervalSec) * time.Second
	kinds := []model.JobKind{model.JobKindDocumentOCR, model.JobKindMemoryExtraction}

	var wg sync.WaitGroup
	for _, kind := range kinds {
		for i := 0; i < cnf.Worker.Count; i++ {
			wg.Add(1)
			go func(kind model.JobKind, id int) {
				defer wg.Done()
				w.poll(ctx, kind, id, pollInterval, cnf.Worker.BatchSize)
			}(kind, i)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.monitorStuckJobs(ctx, time.Duration(cnf.Worker.StuckThresholdMin)*time.Minute, pollInterval)
	}()

	logrus.WithFields(logrus.Fields{
		"workers_per_kind": cnf.Worker.Count,
		"batch_size":       cnf.Worker.BatchSize,
		"poll_interval":    pollInterval,
	}).Info("worker pool started")

	wg.Wait()
	return ctx.Err()
}

// poll claims and processes one batch per tick. Each cycle is bounded by the
// batch size; the next tick picks up whatever is left.
func (w *WorkerPool) poll(ctx context.Context, kind model.JobKind, id int, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := logrus.WithFields(logrus.Fields{"kind": kind, "worker": id})
	for {
		processed, err := w.RunCycle(ctx, kind, batchSize)
		if err != nil {
			log.Errorf("worker cycle failed: %v", err)
		} else if processed > 0 {
			log.Infof("processed %d jobs", processed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunCycle claims up to batchSize jobs of the given kind and processes them
// sequentially, completing or failing each one. It returns the number of jobs
// it claimed.
func (w *WorkerPool) RunCycle(ctx context.Context, kind model.JobKind, batchSize int) (int, error) {
	jobs, err := w.ledgerscan.datasource.ClaimNextJobs(ctx, kind, batchSize)
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		w.processJob(ctx, job)
	}
	return len(jobs), nil
}

// processJob dispatches a claimed job to its handler and records the outcome.
// A permanent failure exhausts the retry budget in a single fail call.
func (w *WorkerPool) processJob(ctx context.Context, job *model.Job) {
	log := logrus.WithFields(logrus.Fields{
		"job":     job.JobID,
		"kind":    job.Kind,
		"payload": job.PayloadRef,
		"retry":   job.RetryCount,
	})

	var err error
	switch job.Kind {
	case model.JobKindDocumentOCR:
		err = w.ledgerscan.ProcessDocument(ctx, job)
	case model.JobKindMemoryExtraction:
		err = w.ledgerscan.ProcessMemoryExtraction(ctx, job)
	default:
		err = permanent(fmt.Errorf("unknown job kind %q", job.Kind))
	}

	if err == nil {
		if completeErr := w.ledgerscan.datasource.CompleteJob(ctx, job.JobID); completeErr != nil {
			log.Errorf("failed to complete job: %v", completeErr)
		}
		return
	}

	isPermanent := IsPermanentFailure(err)
	log.WithField("permanent", isPermanent).Errorf("job failed: %v", err)
	if failErr := w.ledgerscan.datasource.FailJob(ctx, job.JobID, err.Error(), isPermanent); failErr != nil {
		log.Errorf("failed to record job failure: %v", failErr)
	}
}

// monitorStuckJobs periodically surfaces claims held past the staleness
// threshold and releases them back to pending. A stale claim is evidence of a
// lost worker; the requeue counts against the job's retry budget so a
// repeatedly crashing job still terminates.
func (w *WorkerPool) monitorStuckJobs(ctx context.Context, threshold, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stuck, err := w.ledgerscan.datasource.GetStuckJobs(ctx, threshold, 100)
		if err != nil {
			logrus.Errorf("stuck job scan failed: %v", err)
			continue
		}
		for _, job := range stuck {
			logrus.WithFields(logrus.Fields{
				"job":        job.JobID,
				"kind":       job.Kind,
				"claimed_at": job.ClaimedAt.Time,
			}).Warn("job claim is stale")
		}

		requeued, err := w.ledgerscan.datasource.RequeueStuckJobs(ctx, threshold)
		if err != nil {
			logrus.Errorf("stuck job requeue failed: %v", err)
			continue
		}
		if requeued > 0 {
			logrus.Infof("requeued %d stuck jobs", requeued)
		}
	}
}
