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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ledgerscan/ledgerscan/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Document methods

func (m *MockDataSource) CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	args := m.Called(ctx, doc)
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDataSource) GetDocumentByID(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDataSource) UpdateDocumentStatus(ctx context.Context, id string, next model.DocumentStatus, from ...model.DocumentStatus) error {
	args := m.Called(ctx, id, next, from)
	return args.Error(0)
}

func (m *MockDataSource) FinalizeDocument(ctx context.Context, id, redactedPath, ocrProvider string, piiRedacted, needsReview bool) error {
	args := m.Called(ctx, id, redactedPath, ocrProvider, piiRedacted, needsReview)
	return args.Error(0)
}

func (m *MockDataSource) RejectDocument(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockDataSource) GetDocumentsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Document, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Document), args.Error(1)
}

// Job methods

func (m *MockDataSource) EnqueueJob(ctx context.Context, job *model.Job) (*model.Job, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) ClaimNextJobs(ctx context.Context, kind model.JobKind, batchSize int) ([]*model.Job, error) {
	args := m.Called(ctx, kind, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Job), args.Error(1)
}

func (m *MockDataSource) CompleteJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockDataSource) FailJob(ctx context.Context, jobID, errMsg string, permanent bool) error {
	args := m.Called(ctx, jobID, errMsg, permanent)
	return args.Error(0)
}

func (m *MockDataSource) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) GetStuckJobs(ctx context.Context, threshold time.Duration, limit int) ([]*model.Job, error) {
	args := m.Called(ctx, threshold, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Job), args.Error(1)
}

func (m *MockDataSource) RequeueStuckJobs(ctx context.Context, threshold time.Duration) (int64, error) {
	args := m.Called(ctx, threshold)
	return args.Get(0).(int64), args.Error(1)
}

// Transaction methods

func (m *MockDataSource) RecordTransactions(ctx context.Context, txns []*model.Transaction) error {
	args := m.Called(ctx, txns)
	return args.Error(0)
}

func (m *MockDataSource) GetTransactionsByDocument(ctx context.Context, documentID string, limit, offset int) ([]*model.Transaction, error) {
	args := m.Called(ctx, documentID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

// Memory methods

func (m *MockDataSource) RecordConversationTurn(ctx context.Context, turn *model.ConversationTurn) (*model.ConversationTurn, error) {
	args := m.Called(ctx, turn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConversationTurn), args.Error(1)
}

func (m *MockDataSource) GetConversationTurn(ctx context.Context, turnID string) (*model.ConversationTurn, error) {
	args := m.Called(ctx, turnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConversationTurn), args.Error(1)
}

func (m *MockDataSource) CreateMemoryFacts(ctx context.Context, facts []*model.MemoryFact) error {
	args := m.Called(ctx, facts)
	return args.Error(0)
}

func (m *MockDataSource) GetMemoryFactsByUser(ctx context.Context, userID string, limit, offset int) ([]*model.MemoryFact, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.MemoryFact), args.Error(1)
}
