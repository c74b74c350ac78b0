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

package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DocumentStatus is the closed set of states a document moves through.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentRejected   DocumentStatus = "rejected"
)

// SourceType describes where a document entered the system from.
type SourceType string

const (
	SourceUpload       SourceType = "upload"
	SourceChat         SourceType = "chat"
	SourceExternalSync SourceType = "external-sync"
)

// Document represents an uploaded financial document moving through the
// ingestion pipeline. Once ready or rejected it is immutable; re-processing
// requires an explicit new job against the same document id.
type Document struct {
	ID               int64                  `json:"-"`
	DocumentID       string                 `json:"document_id"`
	OwnerID          string                 `json:"owner_id"`
	SourceType       SourceType             `json:"source_type"`
	OriginalFilename string                 `json:"original_filename"`
	MimeType         string                 `json:"mime_type"`
	StoragePath      string                 `json:"storage_path"`
	RedactedPath     string                 `json:"redacted_path,omitempty"`
	Status           DocumentStatus         `json:"status"`
	RejectionReason  string                 `json:"rejection_reason,omitempty"`
	OCRProvider      string                 `json:"ocr_provider,omitempty"`
	PIIRedacted      bool                   `json:"pii_redacted"`
	NeedsReview      bool                   `json:"needs_review"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`
}

// Terminal reports whether the status permits no further automatic transitions.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentReady || s == DocumentRejected
}

// CanTransitionTo enforces the lifecycle state machine: pending to processing,
// processing to ready or rejected. A terminal document may only move back to
// processing, which is the explicit re-processing path.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case DocumentPending:
		return next == DocumentProcessing
	case DocumentProcessing:
		return next == DocumentReady || next == DocumentRejected
	case DocumentReady, DocumentRejected:
		return next == DocumentProcessing
	}
	return false
}

// Transition validates and applies a status change on the document.
func (d *Document) Transition(next DocumentStatus) error {
	if !d.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid document transition %s -> %s", d.Status, next)
	}
	d.Status = next
	d.UpdatedAt = time.Now()
	return nil
}

// IsStatement reports whether the document should be run through the
// transaction normalizer after OCR.
func (d *Document) IsStatement() bool {
	v, ok := d.MetaData["document_type"]
	if !ok {
		return true
	}
	s, _ := v.(string)
	return s == "" || s == "statement" || s == "bank_statement"
}

func (d *Document) ToJSON() ([]byte, error) {
	return json.Marshal(d)
}
