package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/ledgerscan/ledgerscan/internal/apierror"
	"github.com/ledgerscan/ledgerscan/model"
)

// RecordConversationTurn persists a redacted conversation turn. The text is
// already post-guardrails; that precondition is owned by the caller.
func (d Datasource) RecordConversationTurn(ctx context.Context, turn *model.ConversationTurn) (*model.ConversationTurn, error) {
	turn.TurnID = model.GenerateUUIDWithSuffix("turn")
	turn.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO conversation_turns (turn_id, user_id, session_id, text)
		VALUES ($1, $2, $3, $4)
	`, turn.TurnID, turn.UserID, turn.SessionID, turn.Text)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Conversation turn with this ID already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record conversation turn", err)
	}

	return turn, nil
}

// GetConversationTurn retrieves a conversation turn by its ID.
func (d Datasource) GetConversationTurn(ctx context.Context, turnID string) (*model.ConversationTurn, error) {
	turn := model.ConversationTurn{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT turn_id, user_id, session_id, text, created_at
		FROM conversation_turns
		WHERE turn_id = $1
	`, turnID)

	err := row.Scan(&turn.TurnID, &turn.UserID, &turn.SessionID, &turn.Text, &turn.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Conversation turn not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve conversation turn", err)
	}

	return &turn, nil
}

// CreateMemoryFacts persists a batch of extracted facts.
func (d Datasource) CreateMemoryFacts(ctx context.Context, facts []*model.MemoryFact) error {
	if len(facts) == 0 {
		return nil
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, fact := range facts {
		if fact.FactID == "" {
			fact.FactID = model.GenerateUUIDWithSuffix("fact")
		}
		fact.CreatedAt = time.Now()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO memory_facts (fact_id, user_id, session_id, kind, content)
			VALUES ($1, $2, $3, $4, $5)
		`, fact.FactID, fact.UserID, fact.SessionID, fact.Kind, fact.Content)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record memory fact", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit memory facts", err)
	}
	return nil
}

// GetMemoryFactsByUser retrieves a user's facts, newest first.
func (d Datasource) GetMemoryFactsByUser(ctx context.Context, userID string, limit, offset int) ([]*model.MemoryFact, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT fact_id, user_id, session_id, kind, content, created_at
		FROM memory_facts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve memory facts", err)
	}
	defer rows.Close()

	facts := []*model.MemoryFact{}
	for rows.Next() {
		fact := model.MemoryFact{}
		var sessionID, kind sql.NullString
		err = rows.Scan(&fact.FactID, &fact.UserID, &sessionID, &kind, &fact.Content, &fact.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan memory fact data", err)
		}
		fact.SessionID = sessionID.String
		fact.Kind = kind.String
		facts = append(facts, &fact)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over memory facts", err)
	}

	return facts, nil
}
