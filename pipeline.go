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
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/ledgerscan/ledgerscan/config"
	"github.com/ledgerscan/ledgerscan/guardrails"
	"github.com/ledgerscan/ledgerscan/internal/apierror"
	"github.com/ledgerscan/ledgerscan/model"
	"github.com/ledgerscan/ledgerscan/ocr"
)

// permanentError marks a processing failure that must never be retried.
// Everything else is treated as transient and counts against the job's retry
// budget.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// IsPermanentFailure classifies a pipeline error. Permanent failures are
// explicit markers, OCR exhaustion with nothing configured, and referential
// integrity violations surfaced as not-found.
func IsPermanentFailure(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	var nre *ocr.NoResultError
	if errors.As(err, &nre) {
		return nre.Permanent()
	}
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == apierror.ErrNotFound || apiErr.Code == apierror.ErrRejected
	}
	return false
}

// ProcessDocument runs the full ingestion pipeline for one claimed OCR job:
// fetch the original, extract text through the provider chain, evaluate
// guardrails, persist the redacted artifact, normalize statement rows, and
// finalize the document. Rejections reject the document before returning a
// permanent error so the job is never retried against a terminal document.
func (l *Ledgerscan) ProcessDocument(ctx context.Context, job *model.Job) error {
	ctx, span := otel.Tracer("ledgerscan.pipeline").Start(ctx, "Process Document From Job Queue")
	defer span.End()

	documentID := job.PayloadRef

	doc, err := l.datasource.GetDocumentByID(ctx, documentID)
	if err != nil {
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) && apiErr.Code == apierror.ErrNotFound {
			return permanent(err)
		}
		return err
	}

	if err := l.datasource.UpdateDocumentStatus(ctx, documentID, model.DocumentProcessing, model.DocumentPending, model.DocumentProcessing); err != nil {
		// A conflict means the document reached a terminal state since this
		// job was enqueued. The job is stale, not retryable.
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) && apiErr.Code == apierror.ErrConflict {
			return permanent(err)
		}
		return err
	}

	data, err := l.storage.GetObject(ctx, doc.StoragePath)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch original document", err)
	}

	extracted, err := l.ocr.Extract(ctx, ocr.SourceRef{
		DocumentID: doc.DocumentID,
		MimeType:   doc.MimeType,
		Bytes:      data,
	})
	if err != nil {
		var nre *ocr.NoResultError
		if errors.As(err, &nre) && nre.Permanent() {
			if rejectErr := l.rejectDocument(ctx, doc, "no OCR provider is configured"); rejectErr != nil {
				return rejectErr
			}
			return permanent(err)
		}
		return err
	}

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	verdict, err := l.guardrails.Evaluate(ctx, extracted.Text, guardrails.OriginDocument, policyFromConfig(cnf, guardrails.OriginDocument))
	if err != nil {
		// Moderation outages are transient; retry the whole job.
		return err
	}
	if !verdict.OK {
		reason := fmt.Sprintf("content blocked: %s", strings.Join(verdict.Reasons, ", "))
		if rejectErr := l.rejectDocument(ctx, doc, reason); rejectErr != nil {
			return rejectErr
		}
		return permanent(apierror.NewAPIError(apierror.ErrRejected, reason, nil))
	}

	redactedPath := fmt.Sprintf("redacted/%s/%s.txt", doc.OwnerID, doc.DocumentID)
	if err := l.storage.PutObject(ctx, redactedPath, []byte(verdict.Redacted), "text/plain"); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to store redacted artifact", err)
	}

	needsReview := false
	var rows []*model.Transaction
	if doc.IsStatement() {
		lines := ParseStatementLines(verdict.Redacted)
		if len(lines) == 0 {
			reason := "no transaction rows could be parsed"
			if rejectErr := l.rejectDocument(ctx, doc, reason); rejectErr != nil {
				return rejectErr
			}
			return permanent(apierror.NewAPIError(apierror.ErrRejected, reason, nil))
		}

		normalized, err := l.NormalizeLines(lines, doc.DocumentID, doc.OwnerID)
		if err != nil {
			return err
		}
		rows = normalized.Rows
		needsReview = normalized.NeedsReview

		if err := l.datasource.RecordTransactions(ctx, rows); err != nil {
			var apiErr apierror.APIError
			if errors.As(err, &apiErr) && apiErr.Code == apierror.ErrNotFound {
				return permanent(err)
			}
			return err
		}
	}

	if err := l.datasource.FinalizeDocument(ctx, doc.DocumentID, redactedPath, extracted.Provider, verdict.Signals.PIIPresent, needsReview); err != nil {
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) && apiErr.Code == apierror.ErrConflict {
			return permanent(err)
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"document":     doc.DocumentID,
		"provider":     extracted.Provider,
		"rows":         len(rows),
		"needs_review": needsReview,
		"warnings":     len(extracted.Warnings),
	}).Info("document processed")

	l.notifyReady(doc, rows)
	return nil
}

// rejectDocument marks the document rejected and emits the rejection webhook.
// A conflict on the status update means another worker already finalized the
// document, which also makes this job permanently stale.
func (l *Ledgerscan) rejectDocument(ctx context.Context, doc *model.Document, reason string) error {
	if err := l.datasource.RejectDocument(ctx, doc.DocumentID, reason); err != nil {
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) && apiErr.Code == apierror.ErrConflict {
			return permanent(err)
		}
		return err
	}
	doc.Status = model.DocumentRejected
	doc.RejectionReason = reason
	if err := SendWebhook(NewWebhook{Event: getEventFromStatus(doc.Status), Payload: doc}); err != nil {
		logrus.Error(err)
	}
	return nil
}

// notifyReady fans out the side effects of a successful run: the ready
// webhook, search indexing for the document and its rows, and the downstream
// stage trigger. All of it is best effort.
func (l *Ledgerscan) notifyReady(doc *model.Document, rows []*model.Transaction) {
	doc.Status = model.DocumentReady
	if err := SendWebhook(NewWebhook{Event: getEventFromStatus(doc.Status), Payload: doc}); err != nil {
		logrus.Error(err)
	}

	if err := l.queue.queueIndexData(doc.DocumentID, "documents", doc); err != nil {
		logrus.Error(err)
	}
	for _, row := range rows {
		if err := l.queue.queueIndexData(row.TransactionID, "transactions", indexableTransaction(row)); err != nil {
			logrus.Error(err)
		}
	}

	if err := l.queue.queueDownstreamTrigger(DownstreamPayload{DocumentID: doc.DocumentID, Stage: "document_ready"}); err != nil {
		logrus.Error(err)
	}
}

// indexableTransaction flattens a transaction for the search index. Amounts
// go in as floats because the index has no decimal type.
func indexableTransaction(t *model.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"id":              t.TransactionID,
		"document_id":     t.DocumentID,
		"owner_id":        t.OwnerID,
		"date":            t.Date,
		"vendor":          t.Vendor,
		"raw_description": t.RawDescription,
		"amount":          t.Amount.InexactFloat64(),
		"currency":        t.Currency,
		"category":        t.Category,
		"confidence":      t.Confidence,
		"created_at":      t.CreatedAt,
	}
}
