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
package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/ledgerscan/ledgerscan/api/model"
	"github.com/ledgerscan/ledgerscan/internal/apierror"
)

// SubmitDocument accepts a multipart document upload and enqueues it for
// asynchronous processing. The response carries only the new document id; the
// caller polls the status endpoint for progress.
//
// Parameters:
// - c: The Gin context containing the request and response.
//
// Responses:
// - 400 Bad Request: If the form fields or file are missing or invalid.
// - 201 Created: If the document was accepted and the OCR job enqueued.
func (a Api) SubmitDocument(c *gin.Context) {
	var form model2.SubmitDocument
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := form.ValidateSubmitDocument(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	defer func() {
		_ = file.Close()
	}()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	documentID, err := a.ledgerscan.SubmitDocument(c.Request.Context(), form.OwnerID, form.Source(), fileHeader.Filename, mimeType, data, form.Metadata())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"document_id": documentID, "status": "pending"})
}

// GetDocumentStatus returns a document's processing status, its rejection
// reason when rejected, and a signed redacted-artifact URL once ready.
//
// Responses:
// - 404 Not Found: If the document does not exist.
// - 200 OK: The status payload.
func (a Api) GetDocumentStatus(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	status, err := a.ledgerscan.GetDocumentStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetDocumentsByOwner lists documents for the owner given in the owner_id
// query parameter.
func (a Api) GetDocumentsByOwner(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id query parameter is required"})
		return
	}

	limit, offset := paginationParams(c)
	docs, err := a.ledgerscan.GetDocumentsByOwner(c.Request.Context(), ownerID, limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, docs)
}

// GetDocumentTransactions lists the normalized transactions parsed from a
// document.
func (a Api) GetDocumentTransactions(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	limit, offset := paginationParams(c)
	transactions, err := a.ledgerscan.GetDocumentTransactions(c.Request.Context(), id, limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, transactions)
}

// GetOriginalDownloadURL issues a short-lived signed URL for the original,
// unredacted artifact.
func (a Api) GetOriginalDownloadURL(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	url, err := a.ledgerscan.GetOriginalDownloadURL(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"download_url": url})
}

// ReprocessDocument enqueues a fresh OCR job for a terminal document.
//
// Responses:
// - 409 Conflict: If the document is still being processed.
// - 200 OK: If a new job was enqueued.
func (a Api) ReprocessDocument(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	if err := a.ledgerscan.ReprocessDocument(c.Request.Context(), id); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": id, "status": "processing"})
}

func paginationParams(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
