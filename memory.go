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
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/ledgerscan/ledgerscan/internal/apierror"
	"github.com/ledgerscan/ledgerscan/model"
)

// EnqueueMemoryExtraction records a redacted conversation turn and enqueues a
// fact-extraction job against it. The text must already have been through the
// guardrails evaluator; this function never re-checks it.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - userID string: The user the turn belongs to.
// - sessionID string: The conversation session identifier.
// - redactedText string: The post-guardrails turn text.
//
// Returns:
// - string: The recorded turn's ID.
// - error: An error if persistence or enqueueing fails.
func (l *Ledgerscan) EnqueueMemoryExtraction(ctx context.Context, userID, sessionID, redactedText string) (string, error) {
	if userID == "" {
		return "", apierror.NewAPIError(apierror.ErrBadRequest, "User ID is required", nil)
	}
	if strings.TrimSpace(redactedText) == "" {
		return "", apierror.NewAPIError(apierror.ErrBadRequest, "Turn text is empty", nil)
	}

	turn, err := l.datasource.RecordConversationTurn(ctx, &model.ConversationTurn{
		UserID:    userID,
		SessionID: sessionID,
		Text:      redactedText,
	})
	if err != nil {
		return "", err
	}

	if _, err := l.datasource.EnqueueJob(ctx, &model.Job{
		Kind:       model.JobKindMemoryExtraction,
		PayloadRef: turn.TurnID,
	}); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"turn":    turn.TurnID,
		"user":    userID,
		"session": sessionID,
	}).Info("memory extraction enqueued")
	return turn.TurnID, nil
}

// ProcessMemoryExtraction runs fact extraction for one claimed job. A missing
// turn or a missing referenced user is a permanent failure; retrying cannot
// recreate either.
func (l *Ledgerscan) ProcessMemoryExtraction(ctx context.Context, job *model.Job) error {
	ctx, span := otel.Tracer("ledgerscan.memory").Start(ctx, "Process Memory Extraction From Job Queue")
	defer span.End()

	turn, err := l.datasource.GetConversationTurn(ctx, job.PayloadRef)
	if err != nil {
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) && apiErr.Code == apierror.ErrNotFound {
			return permanent(err)
		}
		return err
	}

	facts := extractFacts(turn)
	if len(facts) == 0 {
		logrus.WithField("turn", turn.TurnID).Info("no durable facts in turn")
		return nil
	}

	if err := l.datasource.CreateMemoryFacts(ctx, facts); err != nil {
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) && apiErr.Code == apierror.ErrNotFound {
			return permanent(err)
		}
		return err
	}

	for _, fact := range facts {
		if err := l.queue.queueIndexData(fact.FactID, "memory_facts", fact); err != nil {
			logrus.Error(err)
		}
	}
	if err := l.queue.queueDownstreamTrigger(DownstreamPayload{ConversationTurnID: turn.TurnID, Stage: "memory_extracted"}); err != nil {
		logrus.Error(err)
	}

	logrus.WithFields(logrus.Fields{
		"turn":  turn.TurnID,
		"facts": len(facts),
	}).Info("memory facts extracted")
	return nil
}

// GetMemoryFacts lists a user's extracted facts.
func (l *Ledgerscan) GetMemoryFacts(ctx context.Context, userID string, limit, offset int) ([]*model.MemoryFact, error) {
	return l.datasource.GetMemoryFactsByUser(ctx, userID, limit, offset)
}

const (
	FactKindPreference = "preference"
	FactKindIdentity   = "identity"
	FactKindGoal       = "goal"
	FactKindRecurring  = "recurring_expense"
)

// factRule pairs a sentence pattern with the fact kind it yields. The first
// capture group is the fact content.
type factRule struct {
	pattern *regexp.Regexp
	kind    string
}

var factRules = []factRule{
	{regexp.MustCompile(`(?i)\bi\s+(?:really\s+)?(?:prefer|like|love|always use)\s+(.{3,80}?)[.!?\n]`), FactKindPreference},
	{regexp.MustCompile(`(?i)\bmy\s+(?:bank|budget|preferred currency|currency)\s+is\s+(.{2,60}?)[.!?\n]`), FactKindPreference},
	{regexp.MustCompile(`(?i)\bi\s+(?:live|work)\s+(?:in|at)\s+(.{2,60}?)[.!?\n]`), FactKindIdentity},
	{regexp.MustCompile(`(?i)\bi\s+am\s+(?:a|an)\s+(.{2,60}?)[.!?\n]`), FactKindIdentity},
	{regexp.MustCompile(`(?i)\bi\s+(?:want|plan|am trying|am saving)\s+to\s+(.{3,80}?)[.!?\n]`), FactKindGoal},
	{regexp.MustCompile(`(?i)\b(?:every|each)\s+(?:week|month|year)\s+i\s+(?:pay|spend)\s+(.{3,80}?)[.!?\n]`), FactKindRecurring},
	{regexp.MustCompile(`(?i)\bi\s+pay\s+(.{3,60}?)\s+(?:every|each|per)\s+(?:week|month|year)`), FactKindRecurring},
}

// extractFacts pulls durable facts out of a turn with the sentence-pattern
// rules. Duplicate content within one turn collapses to a single fact.
func extractFacts(turn *model.ConversationTurn) []*model.MemoryFact {
	// trailing newline so end-of-text sentences still terminate a pattern
	text := turn.Text + "\n"

	seen := map[string]bool{}
	facts := []*model.MemoryFact{}

	for _, rule := range factRules {
		for _, match := range rule.pattern.FindAllStringSubmatch(text, -1) {
			content := strings.TrimSpace(strings.Trim(match[1], " .,!?"))
			if content == "" {
				continue
			}
			key := rule.kind + "|" + strings.ToLower(content)
			if seen[key] {
				continue
			}
			seen[key] = true
			facts = append(facts, &model.MemoryFact{
				UserID:    turn.UserID,
				SessionID: turn.SessionID,
				Kind:      rule.kind,
				Content:   content,
			})
		}
	}
	return facts
}
