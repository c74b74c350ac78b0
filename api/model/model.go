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
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ledgerscan/ledgerscan/model"
)

// SubmitDocument carries the form fields of a document upload. The file
// itself travels as the multipart "file" part.
type SubmitDocument struct {
	OwnerID      string                 `form:"owner_id" json:"owner_id"`
	SourceType   string                 `form:"source_type" json:"source_type"`
	DocumentType string                 `form:"document_type" json:"document_type"`
	MetaData     map[string]interface{} `json:"meta_data,omitempty"`
}

func (s *SubmitDocument) ValidateSubmitDocument() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.OwnerID, validation.Required),
		validation.Field(&s.SourceType, validation.In(
			string(model.SourceUpload), string(model.SourceChat), string(model.SourceExternalSync), "")),
	)
}

// Source returns the typed source, defaulting to upload.
func (s *SubmitDocument) Source() model.SourceType {
	if s.SourceType == "" {
		return model.SourceUpload
	}
	return model.SourceType(s.SourceType)
}

// Metadata folds the document type into the caller metadata.
func (s *SubmitDocument) Metadata() map[string]interface{} {
	meta := s.MetaData
	if meta == nil {
		meta = map[string]interface{}{}
	}
	if s.DocumentType != "" {
		meta["document_type"] = s.DocumentType
	}
	return meta
}

// EnqueueMemoryTurn is the request body for queueing fact extraction. Text is
// expected to be post-guardrails; the API forwards it untouched.
type EnqueueMemoryTurn struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

func (e *EnqueueMemoryTurn) ValidateEnqueueMemoryTurn() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.UserID, validation.Required),
		validation.Field(&e.Text, validation.Required, validation.Length(1, 20000)),
	)
}
