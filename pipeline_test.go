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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgerscan/ledgerscan/config"
	"github.com/ledgerscan/ledgerscan/database/mocks"
	"github.com/ledgerscan/ledgerscan/guardrails"
	"github.com/ledgerscan/ledgerscan/internal/apierror"
	"github.com/ledgerscan/ledgerscan/model"
	"github.com/ledgerscan/ledgerscan/ocr"
)

type stubStorage struct {
	objects map[string][]byte
	puts    map[string][]byte
	getErr  error
}

func newStubStorage() *stubStorage {
	return &stubStorage{objects: map[string][]byte{}, puts: map[string][]byte{}}
}

func (s *stubStorage) PutObject(_ context.Context, path string, data []byte, _ string) error {
	s.puts[path] = data
	s.objects[path] = data
	return nil
}

func (s *stubStorage) GetObject(_ context.Context, path string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.objects[path], nil
}

func (s *stubStorage) SignedDownloadURL(path string, _ time.Duration) (string, error) {
	return "https://signed.test/" + path, nil
}

func (s *stubStorage) SignedUploadURL(path string, _ time.Duration) (string, error) {
	return "https://signed.test/upload/" + path, nil
}

type stubProvider struct {
	name       string
	configured bool
	text       string
	err        error
	calls      int
}

func (p *stubProvider) Name() string           { return p.name }
func (p *stubProvider) Configured() bool       { return p.configured }
func (p *stubProvider) Timeout() time.Duration { return time.Second }

func (p *stubProvider) Extract(_ context.Context, _ ocr.SourceRef) (*ocr.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &ocr.Result{Text: p.text}, nil
}

type stubModeration struct {
	flagged bool
}

func (m *stubModeration) Classify(_ context.Context, _ string) (*guardrails.ModerationVerdict, error) {
	return &guardrails.ModerationVerdict{Flagged: m.flagged}, nil
}

const statementText = `01/15/2024 STARBUCKS #221 45.80
01/16/2024 PAYROLL DEPOSIT ACME 2000.00
Cardholder 4111 1111 1111 1111`

func pendingStatementDoc() *model.Document {
	return &model.Document{
		DocumentID:  "doc_1",
		OwnerID:     "owner_1",
		SourceType:  model.SourceUpload,
		MimeType:    "application/pdf",
		StoragePath: "uploads/owner_1/statement.pdf",
		Status:      model.DocumentPending,
	}
}

func newPipelineFixture(extractor ocr.Provider) (*Ledgerscan, *mocks.MockDataSource, *stubStorage) {
	config.MockConfig(&config.Configuration{})

	mockDS := new(mocks.MockDataSource)
	store := newStubStorage()
	l := &Ledgerscan{
		datasource: mockDS,
		storage:    store,
		ocr:        ocr.NewChain(extractor),
		guardrails: guardrails.NewEvaluator(guardrails.NewRegistry(), nil),
	}
	return l, mockDS, store
}

func ocrJob(documentID string) *model.Job {
	return &model.Job{JobID: "job_1", Kind: model.JobKindDocumentOCR, PayloadRef: documentID, Status: model.JobClaimed, MaxRetries: 3}
}

func TestProcessDocumentSuccess(t *testing.T) {
	provider := &stubProvider{name: "local", configured: true, text: statementText}
	l, mockDS, store := newPipelineFixture(provider)

	doc := pendingStatementDoc()
	store.objects[doc.StoragePath] = []byte("%PDF-1.4")

	mockDS.On("GetDocumentByID", mock.Anything, "doc_1").Return(doc, nil)
	mockDS.On("UpdateDocumentStatus", mock.Anything, "doc_1", model.DocumentProcessing,
		[]model.DocumentStatus{model.DocumentPending, model.DocumentProcessing}).Return(nil)

	var recorded []*model.Transaction
	mockDS.On("RecordTransactions", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		recorded = args.Get(1).([]*model.Transaction)
	}).Return(nil)
	mockDS.On("FinalizeDocument", mock.Anything, "doc_1", "redacted/owner_1/doc_1.txt", "local", true, false).Return(nil)

	err := l.ProcessDocument(context.Background(), ocrJob("doc_1"))
	require.NoError(t, err)

	require.Len(t, recorded, 2)
	assert.True(t, recorded[0].Amount.IsNegative())
	assert.True(t, recorded[1].Amount.IsPositive())

	redacted, ok := store.puts["redacted/owner_1/doc_1.txt"]
	require.True(t, ok, "redacted artifact must be stored")
	assert.NotContains(t, string(redacted), "4111", "card number must not survive redaction")
	assert.Contains(t, string(redacted), "[REDACTED:credit_card]")

	mockDS.AssertExpectations(t)
}

func TestProcessDocumentStaleJobIsPermanent(t *testing.T) {
	provider := &stubProvider{name: "local", configured: true, text: statementText}
	l, mockDS, _ := newPipelineFixture(provider)

	doc := pendingStatementDoc()
	doc.Status = model.DocumentReady
	mockDS.On("GetDocumentByID", mock.Anything, "doc_1").Return(doc, nil)
	mockDS.On("UpdateDocumentStatus", mock.Anything, "doc_1", model.DocumentProcessing,
		mock.Anything).Return(apierror.NewAPIError(apierror.ErrConflict, "Document is not in an expected state", nil))

	err := l.ProcessDocument(context.Background(), ocrJob("doc_1"))
	require.Error(t, err)
	assert.True(t, IsPermanentFailure(err), "a duplicate job against a terminal document must not retry")

	assert.Equal(t, 0, provider.calls)
	mockDS.AssertNotCalled(t, "RejectDocument", mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertNotCalled(t, "FinalizeDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessDocumentNoProviderConfiguredRejects(t *testing.T) {
	provider := &stubProvider{name: "local", configured: false}
	l, mockDS, store := newPipelineFixture(provider)

	doc := pendingStatementDoc()
	store.objects[doc.StoragePath] = []byte("%PDF-1.4")

	mockDS.On("GetDocumentByID", mock.Anything, "doc_1").Return(doc, nil)
	mockDS.On("UpdateDocumentStatus", mock.Anything, "doc_1", model.DocumentProcessing, mock.Anything).Return(nil)
	mockDS.On("RejectDocument", mock.Anything, "doc_1", "no OCR provider is configured").Return(nil)

	err := l.ProcessDocument(context.Background(), ocrJob("doc_1"))
	require.Error(t, err)
	assert.True(t, IsPermanentFailure(err))
	assert.Equal(t, 0, provider.calls)
	mockDS.AssertExpectations(t)
}

func TestProcessDocumentTransientOCRFailureRetries(t *testing.T) {
	provider := &stubProvider{name: "local", configured: true, err: errors.New("connection timed out")}
	l, mockDS, store := newPipelineFixture(provider)

	doc := pendingStatementDoc()
	store.objects[doc.StoragePath] = []byte("%PDF-1.4")

	mockDS.On("GetDocumentByID", mock.Anything, "doc_1").Return(doc, nil)
	mockDS.On("UpdateDocumentStatus", mock.Anything, "doc_1", model.DocumentProcessing, mock.Anything).Return(nil)

	err := l.ProcessDocument(context.Background(), ocrJob("doc_1"))
	require.Error(t, err)
	assert.False(t, IsPermanentFailure(err), "a configured provider failing is transient")

	mockDS.AssertNotCalled(t, "RejectDocument", mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertNotCalled(t, "FinalizeDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessDocumentModerationBlockRejects(t *testing.T) {
	provider := &stubProvider{name: "local", configured: true, text: statementText}
	l, mockDS, store := newPipelineFixture(provider)
	config.MockConfig(&config.Configuration{
		Guardrails: config.GuardrailsConfig{ModerationUrl: "https://moderation.test/classify"},
	})
	l.guardrails = guardrails.NewEvaluator(guardrails.NewRegistry(), &stubModeration{flagged: true})

	doc := pendingStatementDoc()
	store.objects[doc.StoragePath] = []byte("%PDF-1.4")

	mockDS.On("GetDocumentByID", mock.Anything, "doc_1").Return(doc, nil)
	mockDS.On("UpdateDocumentStatus", mock.Anything, "doc_1", model.DocumentProcessing, mock.Anything).Return(nil)
	mockDS.On("RejectDocument", mock.Anything, "doc_1", mock.MatchedBy(func(reason string) bool {
		return strings.Contains(reason, guardrails.ReasonModerationFlagged)
	})).Return(nil)

	err := l.ProcessDocument(context.Background(), ocrJob("doc_1"))
	require.Error(t, err)
	assert.True(t, IsPermanentFailure(err), "a guardrail hard block must not retry")

	assert.Empty(t, store.puts, "blocked text must never be persisted")
	mockDS.AssertExpectations(t)
}

func TestProcessDocumentNoParsedRowsRejects(t *testing.T) {
	provider := &stubProvider{name: "local", configured: true, text: "Thank you for your business"}
	l, mockDS, store := newPipelineFixture(provider)

	doc := pendingStatementDoc()
	store.objects[doc.StoragePath] = []byte("%PDF-1.4")

	mockDS.On("GetDocumentByID", mock.Anything, "doc_1").Return(doc, nil)
	mockDS.On("UpdateDocumentStatus", mock.Anything, "doc_1", model.DocumentProcessing, mock.Anything).Return(nil)
	mockDS.On("RejectDocument", mock.Anything, "doc_1", "no transaction rows could be parsed").Return(nil)

	err := l.ProcessDocument(context.Background(), ocrJob("doc_1"))
	require.Error(t, err)
	assert.True(t, IsPermanentFailure(err))
	mockDS.AssertExpectations(t)
}

func TestProcessDocumentMissingOwnerIsPermanent(t *testing.T) {
	provider := &stubProvider{name: "local", configured: true, text: statementText}
	l, mockDS, store := newPipelineFixture(provider)

	doc := pendingStatementDoc()
	store.objects[doc.StoragePath] = []byte("%PDF-1.4")

	mockDS.On("GetDocumentByID", mock.Anything, "doc_1").Return(doc, nil)
	mockDS.On("UpdateDocumentStatus", mock.Anything, "doc_1", model.DocumentProcessing, mock.Anything).Return(nil)
	mockDS.On("RecordTransactions", mock.Anything, mock.Anything).
		Return(apierror.NewAPIError(apierror.ErrNotFound, "Referenced document no longer exists", nil))

	err := l.ProcessDocument(context.Background(), ocrJob("doc_1"))
	require.Error(t, err)
	assert.True(t, IsPermanentFailure(err), "a referential integrity violation must not retry")
	mockDS.AssertNotCalled(t, "FinalizeDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessDocumentSkipsNormalizerForNonStatements(t *testing.T) {
	provider := &stubProvider{name: "local", configured: true, text: "Invoice total due on receipt"}
	l, mockDS, store := newPipelineFixture(provider)

	doc := pendingStatementDoc()
	doc.MetaData = map[string]interface{}{"document_type": "receipt"}
	store.objects[doc.StoragePath] = []byte("%PDF-1.4")

	mockDS.On("GetDocumentByID", mock.Anything, "doc_1").Return(doc, nil)
	mockDS.On("UpdateDocumentStatus", mock.Anything, "doc_1", model.DocumentProcessing, mock.Anything).Return(nil)
	mockDS.On("FinalizeDocument", mock.Anything, "doc_1", "redacted/owner_1/doc_1.txt", "local", false, false).Return(nil)

	err := l.ProcessDocument(context.Background(), ocrJob("doc_1"))
	require.NoError(t, err)

	mockDS.AssertNotCalled(t, "RecordTransactions", mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}
