package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/ledgerscan/ledgerscan/internal/apierror"
	"github.com/ledgerscan/ledgerscan/model"
)

// CreateDocument persists a new document in pending state and assigns its ID.
func (d Datasource) CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	metaDataJSON, err := json.Marshal(doc.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	doc.DocumentID = model.GenerateUUIDWithSuffix("doc")
	doc.Status = model.DocumentPending
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO documents (document_id, owner_id, source_type, original_filename, mime_type, storage_path, status, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, doc.DocumentID, doc.OwnerID, doc.SourceType, doc.OriginalFilename, doc.MimeType, doc.StoragePath, doc.Status, metaDataJSON)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, apierror.NewAPIError(apierror.ErrConflict, "Document with this ID already exists", err)
			default:
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create document", err)
	}

	return doc, nil
}

// GetDocumentByID retrieves a document by its ID.
func (d Datasource) GetDocumentByID(ctx context.Context, id string) (*model.Document, error) {
	doc := model.Document{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT document_id, owner_id, source_type, original_filename, mime_type, storage_path, redacted_path,
		       status, rejection_reason, ocr_provider, pii_redacted, needs_review, created_at, updated_at, meta_data
		FROM documents
		WHERE document_id = $1
	`, id)

	var redactedPath, rejectionReason, ocrProvider sql.NullString
	var metaDataJSON []byte
	err := row.Scan(&doc.DocumentID, &doc.OwnerID, &doc.SourceType, &doc.OriginalFilename, &doc.MimeType,
		&doc.StoragePath, &redactedPath, &doc.Status, &rejectionReason, &ocrProvider,
		&doc.PIIRedacted, &doc.NeedsReview, &doc.CreatedAt, &doc.UpdatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Document not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve document", err)
	}

	doc.RedactedPath = redactedPath.String
	doc.RejectionReason = rejectionReason.String
	doc.OCRProvider = ocrProvider.String

	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &doc.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}

	return &doc, nil
}

// UpdateDocumentStatus moves a document to next, but only when its current
// status is one of from. The condition lives in the statement itself so the
// lifecycle guarantee holds under concurrent workers without a read first.
func (d Datasource) UpdateDocumentStatus(ctx context.Context, id string, next model.DocumentStatus, from ...model.DocumentStatus) error {
	if len(from) == 0 {
		return apierror.NewAPIError(apierror.ErrBadRequest, "At least one source status is required", nil)
	}

	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE documents
		SET status = $2, updated_at = NOW()
		WHERE document_id = $1 AND status = ANY($3)
	`, id, next, pq.Array(fromStrs))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update document status", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Document is not in an eligible status", nil)
	}
	return nil
}

// FinalizeDocument marks a processing document ready and records the redacted
// artifact path, the winning OCR provider, and the review flag.
func (d Datasource) FinalizeDocument(ctx context.Context, id string, redactedPath, ocrProvider string, piiRedacted, needsReview bool) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE documents
		SET status = 'ready', redacted_path = $2, ocr_provider = $3, pii_redacted = $4, needs_review = $5,
		    rejection_reason = NULL, updated_at = NOW()
		WHERE document_id = $1 AND status = 'processing'
	`, id, redactedPath, ocrProvider, piiRedacted, needsReview)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to finalize document", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Document is not processing", nil)
	}
	return nil
}

// RejectDocument marks a processing document rejected with a human-readable
// reason.
func (d Datasource) RejectDocument(ctx context.Context, id string, reason string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE documents
		SET status = 'rejected', rejection_reason = $2, updated_at = NOW()
		WHERE document_id = $1 AND status = 'processing'
	`, id, reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reject document", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Document is not processing", nil)
	}
	return nil
}

// GetDocumentsByOwner retrieves an owner's documents, newest first.
func (d Datasource) GetDocumentsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Document, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT document_id, owner_id, source_type, original_filename, mime_type, storage_path, redacted_path,
		       status, rejection_reason, ocr_provider, pii_redacted, needs_review, created_at, updated_at, meta_data
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve documents", err)
	}
	defer rows.Close()

	documents := []*model.Document{}
	for rows.Next() {
		doc := model.Document{}
		var redactedPath, rejectionReason, ocrProvider sql.NullString
		var metaDataJSON []byte
		err = rows.Scan(&doc.DocumentID, &doc.OwnerID, &doc.SourceType, &doc.OriginalFilename, &doc.MimeType,
			&doc.StoragePath, &redactedPath, &doc.Status, &rejectionReason, &ocrProvider,
			&doc.PIIRedacted, &doc.NeedsReview, &doc.CreatedAt, &doc.UpdatedAt, &metaDataJSON)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan document data", err)
		}

		doc.RedactedPath = redactedPath.String
		doc.RejectionReason = rejectionReason.String
		doc.OCRProvider = ocrProvider.String
		if len(metaDataJSON) > 0 {
			if err := json.Unmarshal(metaDataJSON, &doc.MetaData); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
			}
		}

		documents = append(documents, &doc)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over documents", err)
	}

	return documents, nil
}
