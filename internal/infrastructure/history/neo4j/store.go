package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

// HistoryStore keeps per-session message chains in neo4j. One Session node
// per session key, message nodes ordered by a monotonically assigned seq.
// The session key already carries the mode prefix, so public and dual
// histories of the same conversation live under different Session nodes.
type HistoryStore struct {
	driver neo4j.DriverWithContext
}

func NewHistoryStore(driver neo4j.DriverWithContext) *HistoryStore {
	return &HistoryStore{driver: driver}
}

const appendQuery = `
MERGE (s:Session {id: $sessionID})
ON CREATE SET s.created_at = $now
SET s.updated_at = $now
WITH s
OPTIONAL MATCH (s)-[:HAS_MESSAGE]->(prev:Message)
WITH s, coalesce(max(prev.seq), 0) AS lastSeq
CREATE (s)-[:HAS_MESSAGE]->(m:Message {
	seq: lastSeq + 1,
	role: $role,
	content: $content,
	citations: $citations,
	created_at: $now
})
RETURN m.seq
`

func (s *HistoryStore) Append(ctx context.Context, sessionKey string, message domain.ChatMessage) error {
	if sessionKey == "" {
		return fmt.Errorf("empty session key")
	}

	createdAt := message.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	citations := message.Citations
	if citations == nil {
		citations = []string{}
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, appendQuery, map[string]any{
			"sessionID": sessionKey,
			"role":      message.Role,
			"content":   message.Content,
			"citations": citations,
			"now":       createdAt,
		})
		if err != nil {
			return nil, err
		}
		return nil, result.Err()
	})
	if err != nil {
		return fmt.Errorf("append session message: %w", err)
	}
	return nil
}

const listQuery = `
MATCH (s:Session {id: $sessionID})-[:HAS_MESSAGE]->(m:Message)
RETURN m.role AS role, m.content AS content, m.citations AS citations, m.created_at AS created_at
ORDER BY m.seq DESC
LIMIT $limit
`

// maxSessionMessages bounds what a single turn loads as context. The query
// takes the newest window so a long session never loses its recent tail.
const maxSessionMessages = 200

func (s *HistoryStore) List(ctx context.Context, sessionKey string) ([]domain.ChatMessage, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("empty session key")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, listQuery, map[string]any{
			"sessionID": sessionKey,
			"limit":     maxSessionMessages,
		})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}

	rows, ok := records.([]*neo4j.Record)
	if !ok {
		return nil, fmt.Errorf("unexpected neo4j result type %T", records)
	}

	return chronologicalMessages(rows), nil
}

// chronologicalMessages converts the newest-first record window back to
// append order.
func chronologicalMessages(rows []*neo4j.Record) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = domain.ChatMessage{
			Role:      recordString(row, "role"),
			Content:   recordString(row, "content"),
			Citations: recordStrings(row, "citations"),
			CreatedAt: recordTime(row, "created_at"),
		}
	}
	return out
}

// Ping verifies connectivity at startup.
func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func recordString(row *neo4j.Record, key string) string {
	v, ok := row.Get(key)
	if !ok || v == nil {
		return ""
	}
	str, _ := v.(string)
	return str
}

func recordStrings(row *neo4j.Record, key string) []string {
	v, ok := row.Get(key)
	if !ok || v == nil {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func recordTime(row *neo4j.Record, key string) time.Time {
	v, ok := row.Get(key)
	if !ok || v == nil {
		return time.Time{}
	}
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}
