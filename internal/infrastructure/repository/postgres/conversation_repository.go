package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// EnsureConversation returns the existing conversation or creates it with
// the requested mode. The stored mode always wins: a conversation created
// as public stays public even if a later turn asks for dual.
func (r *ConversationRepository) EnsureConversation(ctx context.Context, owner, conversationID string, mode domain.SessionMode) (*domain.Conversation, error) {
	existing, err := r.GetConversation(ctx, owner, conversationID)
	if err == nil {
		return existing, nil
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	conv := &domain.Conversation{
		ID:        conversationID,
		Owner:     owner,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Concurrent creates race on (owner, id); the conflict clause keeps the
	// first writer's mode and the follow-up read returns it.
	_, err = r.db.ExecContext(ctx, `
INSERT INTO conversations (id, owner, mode, title, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (owner, id) DO NOTHING
`, conv.ID, conv.Owner, string(conv.Mode), conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	return r.GetConversation(ctx, owner, conversationID)
}

func (r *ConversationRepository) GetConversation(ctx context.Context, owner, conversationID string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, owner, mode, title, created_at, updated_at
FROM conversations
WHERE owner = $1 AND id = $2
`, owner, conversationID)

	var conv domain.Conversation
	var mode string

	err := row.Scan(&conv.ID, &conv.Owner, &mode, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get conversation", fmt.Errorf("conversation %s", conversationID))
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	conv.Mode = domain.SessionMode(mode)
	return &conv, nil
}
