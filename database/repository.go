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
	"time"

	"github.com/ledgerscan/ledgerscan/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	document    // Interface for document-related operations
	job         // Interface for job-queue operations
	transaction // Interface for transaction-related operations
	memory      // Interface for conversation-memory operations
}

// document defines methods for handling documents.
type document interface {
	CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error)                                         // Creates a new document record
	GetDocumentByID(ctx context.Context, id string) (*model.Document, error)                                                  // Retrieves a document by ID
	UpdateDocumentStatus(ctx context.Context, id string, next model.DocumentStatus, from ...model.DocumentStatus) error       // Conditionally moves a document between states
	FinalizeDocument(ctx context.Context, id string, redactedPath, ocrProvider string, piiRedacted, needsReview bool) error   // Marks a processing document ready with its artifacts
	RejectDocument(ctx context.Context, id string, reason string) error                                                       // Marks a processing document rejected with a reason
	GetDocumentsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Document, error)                    // Retrieves an owner's documents
}

// job defines methods for the durable job queue shared by OCR and
// memory-extraction workers.
type job interface {
	EnqueueJob(ctx context.Context, job *model.Job) (*model.Job, error)                            // Enqueues a new pending job
	ClaimNextJobs(ctx context.Context, kind model.JobKind, batchSize int) ([]*model.Job, error)    // Atomically claims up to batchSize pending jobs
	CompleteJob(ctx context.Context, jobID string) error                                           // Marks a claimed job completed
	FailJob(ctx context.Context, jobID string, errMsg string, permanent bool) error                // Records a failure; permanent failures skip remaining retries
	GetJob(ctx context.Context, jobID string) (*model.Job, error)                                  // Retrieves a job by ID
	GetStuckJobs(ctx context.Context, threshold time.Duration, limit int) ([]*model.Job, error)    // Lists claimed jobs held past the threshold
	RequeueStuckJobs(ctx context.Context, threshold time.Duration) (int64, error)                  // Returns long-claimed jobs to the pending pool
}

// transaction defines methods for handling normalized transactions.
type transaction interface {
	RecordTransactions(ctx context.Context, txns []*model.Transaction) error                                     // Records a batch of transactions atomically
	GetTransactionsByDocument(ctx context.Context, documentID string, limit, offset int) ([]*model.Transaction, error) // Retrieves a document's transactions
}

// memory defines methods for the conversation-memory subsystem.
type memory interface {
	RecordConversationTurn(ctx context.Context, turn *model.ConversationTurn) (*model.ConversationTurn, error) // Records a redacted conversation turn
	GetConversationTurn(ctx context.Context, turnID string) (*model.ConversationTurn, error)                   // Retrieves a conversation turn by ID
	CreateMemoryFacts(ctx context.Context, facts []*model.MemoryFact) error                                    // Records extracted facts
	GetMemoryFactsByUser(ctx context.Context, userID string, limit, offset int) ([]*model.MemoryFact, error)   // Retrieves a user's facts
}
