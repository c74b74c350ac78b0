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
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/ledgerscan/ledgerscan/internal/apierror"
	"github.com/ledgerscan/ledgerscan/model"
)

func TestCreateDocument_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	doc := &model.Document{
		OwnerID:          "usr_1",
		SourceType:       model.SourceUpload,
		OriginalFilename: "statement.pdf",
		MimeType:         "application/pdf",
		StoragePath:      "uploads/usr_1/statement.pdf",
		MetaData:         map[string]interface{}{"document_type": "statement"},
	}

	metaDataJSON, err := json.Marshal(doc.MetaData)
	assert.NoError(t, err)

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(sqlmock.AnyArg(), "usr_1", string(model.SourceUpload), "statement.pdf", "application/pdf",
			"uploads/usr_1/statement.pdf", string(model.DocumentPending), metaDataJSON).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateDocument(context.Background(), doc)
	assert.NoError(t, err)
	assert.NotEmpty(t, created.DocumentID)
	assert.Equal(t, model.DocumentPending, created.Status)
	assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Second)
}

func TestCreateDocument_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO documents").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	_, err = ds.CreateDocument(context.Background(), &model.Document{OwnerID: "usr_1"})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestGetDocumentByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE document_id").
		WithArgs("doc_missing").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetDocumentByID(context.Background(), "doc_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestUpdateDocumentStatus_ConditionalOnSource(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE documents SET status = \\$2, updated_at = NOW\\(\\) WHERE document_id = \\$1 AND status = ANY\\(\\$3\\)").
		WithArgs("doc_1", string(model.DocumentProcessing), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.UpdateDocumentStatus(context.Background(), "doc_1", model.DocumentProcessing, model.DocumentPending)
	assert.NoError(t, err)
}

func TestUpdateDocumentStatus_WrongSourceIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	// a terminal document cannot be moved by an automatic transition
	mock.ExpectExec("UPDATE documents SET status").
		WithArgs("doc_1", string(model.DocumentReady), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateDocumentStatus(context.Background(), "doc_1", model.DocumentReady, model.DocumentProcessing)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestFinalizeDocument_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE documents SET status = 'ready'").
		WithArgs("doc_1", "redacted/doc_1.txt", "local", true, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.FinalizeDocument(context.Background(), "doc_1", "redacted/doc_1.txt", "local", true, false)
	assert.NoError(t, err)
}

func TestFinalizeDocument_NotProcessingIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE documents SET status = 'ready'").
		WithArgs("doc_1", "redacted/doc_1.txt", "local", true, false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.FinalizeDocument(context.Background(), "doc_1", "redacted/doc_1.txt", "local", true, false)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestRejectDocument_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE documents SET status = 'rejected', rejection_reason = \\$2").
		WithArgs("doc_1", "all OCR providers failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.RejectDocument(context.Background(), "doc_1", "all OCR providers failed")
	assert.NoError(t, err)
}

func TestGetDocumentsByOwner_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	now := time.Now()
	rows := sqlmock.NewRows([]string{"document_id", "owner_id", "source_type", "original_filename", "mime_type",
		"storage_path", "redacted_path", "status", "rejection_reason", "ocr_provider", "pii_redacted",
		"needs_review", "created_at", "updated_at", "meta_data"}).
		AddRow("doc_1", "usr_1", "upload", "a.pdf", "application/pdf", "uploads/a.pdf", "redacted/a.txt",
			"ready", nil, "local", true, false, now, now, nil).
		AddRow("doc_2", "usr_1", "chat", "b.png", "image/png", "uploads/b.png", nil,
			"rejected", "guardrails blocked content", nil, false, false, now, now, nil)

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE owner_id").
		WithArgs("usr_1", 20, 0).
		WillReturnRows(rows)

	docs, err := ds.GetDocumentsByOwner(context.Background(), "usr_1", 20, 0)
	assert.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, model.DocumentReady, docs[0].Status)
	assert.Equal(t, "guardrails blocked content", docs[1].RejectionReason)
}
