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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgerscan/ledgerscan/config"
	"github.com/ledgerscan/ledgerscan/database/mocks"
	"github.com/ledgerscan/ledgerscan/model"
)

func TestExtractFacts(t *testing.T) {
	turn := &model.ConversationTurn{
		TurnID:    "turn_1",
		UserID:    "user_1",
		SessionID: "sess_1",
		Text:      "I live in Denver. I prefer weekly budget summaries. Every month I pay 15.99 for streaming.",
	}

	facts := extractFacts(turn)
	require.Len(t, facts, 3)

	kinds := map[string]string{}
	for _, f := range facts {
		assert.Equal(t, "user_1", f.UserID)
		assert.Equal(t, "sess_1", f.SessionID)
		kinds[f.Kind] = f.Content
	}
	assert.Equal(t, "Denver", kinds[FactKindIdentity])
	assert.Equal(t, "weekly budget summaries", kinds[FactKindPreference])
	assert.Equal(t, "15.99 for streaming", kinds[FactKindRecurring])
}

func TestExtractFactsDeduplicates(t *testing.T) {
	turn := &model.ConversationTurn{
		UserID: "user_1",
		Text:   "I prefer dark mode. I prefer dark mode.",
	}
	facts := extractFacts(turn)
	require.Len(t, facts, 1)
	assert.Equal(t, FactKindPreference, facts[0].Kind)
}

func TestExtractFactsNoneInSmallTalk(t *testing.T) {
	turn := &model.ConversationTurn{UserID: "user_1", Text: "thanks, that looks right"}
	assert.Empty(t, extractFacts(turn))
}

func TestEnqueueMemoryExtraction(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	mockDS := new(mocks.MockDataSource)
	l := &Ledgerscan{datasource: mockDS}

	mockDS.On("RecordConversationTurn", mock.Anything, mock.MatchedBy(func(turn *model.ConversationTurn) bool {
		return turn.UserID == "user_1" && turn.Text == "I live in Denver."
	})).Return(&model.ConversationTurn{TurnID: "turn_1", UserID: "user_1"}, nil)
	mockDS.On("EnqueueJob", mock.Anything, mock.MatchedBy(func(job *model.Job) bool {
		return job.Kind == model.JobKindMemoryExtraction && job.PayloadRef == "turn_1"
	})).Return(&model.Job{JobID: "job_1"}, nil)

	turnID, err := l.EnqueueMemoryExtraction(context.Background(), "user_1", "sess_1", "I live in Denver.")
	require.NoError(t, err)
	assert.Equal(t, "turn_1", turnID)
	mockDS.AssertExpectations(t)
}

func TestEnqueueMemoryExtractionValidation(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	l := &Ledgerscan{}

	_, err := l.EnqueueMemoryExtraction(context.Background(), "", "sess_1", "text")
	assert.Error(t, err)

	_, err = l.EnqueueMemoryExtraction(context.Background(), "user_1", "sess_1", "   ")
	assert.Error(t, err)
}

func TestProcessMemoryExtractionStoresFacts(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	mockDS := new(mocks.MockDataSource)
	l := &Ledgerscan{datasource: mockDS}

	mockDS.On("GetConversationTurn", mock.Anything, "turn_1").Return(&model.ConversationTurn{
		TurnID: "turn_1",
		UserID: "user_1",
		Text:   "I am saving to build an emergency fund.",
	}, nil)
	mockDS.On("CreateMemoryFacts", mock.Anything, mock.MatchedBy(func(facts []*model.MemoryFact) bool {
		return len(facts) == 1 && facts[0].Kind == FactKindGoal
	})).Return(nil)

	err := l.ProcessMemoryExtraction(context.Background(), memoryJob("job_1", "turn_1"))
	require.NoError(t, err)
	mockDS.AssertExpectations(t)
}
