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
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/ledgerscan/ledgerscan/api/model"
	"github.com/ledgerscan/ledgerscan/internal/apierror"
)

// EnqueueMemoryTurn records a redacted conversation turn and enqueues fact
// extraction for it. The text must already be redacted; the caller owns that
// guarantee.
//
// Responses:
// - 400 Bad Request: If the body is missing required fields.
// - 201 Created: If the turn was recorded and the job enqueued.
func (a Api) EnqueueMemoryTurn(c *gin.Context) {
	var body model2.EnqueueMemoryTurn
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := body.ValidateEnqueueMemoryTurn(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	turnID, err := a.ledgerscan.EnqueueMemoryExtraction(c.Request.Context(), body.UserID, body.SessionID, body.Text)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"turn_id": turnID})
}

// GetMemoryFacts lists the facts extracted for a user.
func (a Api) GetMemoryFacts(c *gin.Context) {
	userID, passed := c.Params.Get("user_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required. pass id in the route /:user_id"})
		return
	}

	limit, offset := paginationParams(c)
	facts, err := a.ledgerscan.GetMemoryFacts(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, facts)
}
