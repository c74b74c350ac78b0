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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ledgerscan/ledgerscan/config"
	"github.com/ledgerscan/ledgerscan/internal/apierror"
	"github.com/ledgerscan/ledgerscan/internal/notification"
	"github.com/ledgerscan/ledgerscan/model"
)

// DocumentStatusResult is the caller-facing view of a document's progress.
// RedactedURL is only populated for ready documents; the original artifact's
// URL is never part of this payload.
type DocumentStatusResult struct {
	DocumentID  string               `json:"document_id"`
	Status      model.DocumentStatus `json:"status"`
	Reason      string               `json:"reason,omitempty"`
	OCRProvider string               `json:"ocr_provider,omitempty"`
	NeedsReview bool                 `json:"needs_review"`
	RedactedURL string               `json:"redacted_url,omitempty"`
}

// SubmitDocument accepts an uploaded document: it stores the original bytes,
// creates a pending document record, and enqueues the OCR job. The upload is
// accepted as soon as the job is durable; all processing happens in workers.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - ownerID string: The owner the document belongs to.
// - sourceType model.SourceType: Where the document entered the system from.
// - filename string: The original filename.
// - mimeType string: The document's MIME type.
// - data []byte: The raw document bytes.
// - metadata map[string]interface{}: Caller metadata, e.g. document_type.
//
// Returns:
// - string: The new document's ID.
// - error: An error if storage, persistence, or enqueueing fails.
func (l *Ledgerscan) SubmitDocument(ctx context.Context, ownerID string, sourceType model.SourceType, filename, mimeType string, data []byte, metadata map[string]interface{}) (string, error) {
	if ownerID == "" {
		return "", apierror.NewAPIError(apierror.ErrBadRequest, "Owner ID is required", nil)
	}
	if len(data) == 0 {
		return "", apierror.NewAPIError(apierror.ErrBadRequest, "Document is empty", nil)
	}

	storagePath := fmt.Sprintf("uploads/%s/%d-%s", ownerID, time.Now().UnixNano(), filename)
	if err := l.storage.PutObject(ctx, storagePath, data, mimeType); err != nil {
		notification.NotifyError(err)
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to store document", err)
	}

	doc, err := l.datasource.CreateDocument(ctx, &model.Document{
		OwnerID:          ownerID,
		SourceType:       sourceType,
		OriginalFilename: filename,
		MimeType:         mimeType,
		StoragePath:      storagePath,
		MetaData:         metadata,
	})
	if err != nil {
		return "", err
	}

	if _, err := l.datasource.EnqueueJob(ctx, &model.Job{
		Kind:       model.JobKindDocumentOCR,
		PayloadRef: doc.DocumentID,
	}); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"document": doc.DocumentID,
		"owner":    ownerID,
		"source":   sourceType,
	}).Info("document submitted")

	if err := SendWebhook(NewWebhook{Event: getEventFromStatus(doc.Status), Payload: doc}); err != nil {
		logrus.Error(err)
	}
	return doc.DocumentID, nil
}

// GetDocumentStatus returns a document's status along with its rejection
// reason and, once ready, a signed URL for the redacted artifact. Status
// reads are cached briefly; terminal states are safe to cache since no
// automatic transition can follow them.
func (l *Ledgerscan) GetDocumentStatus(ctx context.Context, documentID string) (*DocumentStatusResult, error) {
	cacheKey := fmt.Sprintf("document:status:%s", documentID)
	if l.cacheStore() != nil {
		var cached DocumentStatusResult
		if err := l.cacheStore().Get(ctx, cacheKey, &cached); err == nil && cached.DocumentID != "" {
			return &cached, nil
		}
	}

	doc, err := l.datasource.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	result := &DocumentStatusResult{
		DocumentID:  doc.DocumentID,
		Status:      doc.Status,
		Reason:      doc.RejectionReason,
		OCRProvider: doc.OCRProvider,
		NeedsReview: doc.NeedsReview,
	}

	if doc.Status == model.DocumentReady && doc.RedactedPath != "" {
		cnf, err := config.Fetch()
		if err != nil {
			return nil, err
		}
		url, err := l.storage.SignedDownloadURL(doc.RedactedPath, time.Duration(cnf.Storage.RedactedURLTTLMin)*time.Minute)
		if err != nil {
			logrus.Errorf("failed to sign redacted url for %s: %v", doc.DocumentID, err)
		} else {
			result.RedactedURL = url
		}
	}

	if l.cacheStore() != nil && doc.Status.Terminal() {
		if err := l.cacheStore().Set(ctx, cacheKey, result, time.Minute); err != nil {
			logrus.Error(err)
		}
	}
	return result, nil
}

// GetOriginalDownloadURL issues a signed URL for the original, unredacted
// artifact. Its lifetime is deliberately shorter than the redacted URL's and
// it is only available to the document's owner through the API layer.
func (l *Ledgerscan) GetOriginalDownloadURL(ctx context.Context, documentID string) (string, error) {
	doc, err := l.datasource.GetDocumentByID(ctx, documentID)
	if err != nil {
		return "", err
	}
	cnf, err := config.Fetch()
	if err != nil {
		return "", err
	}
	return l.storage.SignedDownloadURL(doc.StoragePath, time.Duration(cnf.Storage.OriginalURLTTLMin)*time.Minute)
}

// GetDocumentsByOwner lists an owner's documents.
func (l *Ledgerscan) GetDocumentsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Document, error) {
	return l.datasource.GetDocumentsByOwner(ctx, ownerID, limit, offset)
}

// GetDocumentTransactions lists the normalized transactions parsed from a
// document.
func (l *Ledgerscan) GetDocumentTransactions(ctx context.Context, documentID string, limit, offset int) ([]*model.Transaction, error) {
	return l.datasource.GetTransactionsByDocument(ctx, documentID, limit, offset)
}

// ReprocessDocument enqueues a fresh OCR job for a terminal document. The
// document first moves back to processing; this is the only path out of a
// terminal state.
func (l *Ledgerscan) ReprocessDocument(ctx context.Context, documentID string) error {
	doc, err := l.datasource.GetDocumentByID(ctx, documentID)
	if err != nil {
		return err
	}
	if !doc.Status.Terminal() {
		return apierror.NewAPIError(apierror.ErrConflict, "Document is still being processed", nil)
	}

	if err := l.datasource.UpdateDocumentStatus(ctx, documentID, model.DocumentProcessing, model.DocumentReady, model.DocumentRejected); err != nil {
		return err
	}

	_, err = l.datasource.EnqueueJob(ctx, &model.Job{
		Kind:       model.JobKindDocumentOCR,
		PayloadRef: documentID,
	})
	return err
}
