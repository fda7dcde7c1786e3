package ports

import (
	"context"
	"io"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

// Retriever is the single explicit capability every retrieval backend is
// wrapped into. Implementations are bound to one backend and one partition
// at construction time. A backend failure must surface as a typed
// ErrRetrieverUnavailable result, never a panic.
type Retriever interface {
	Query(ctx context.Context, standaloneQuery string, limit int) (domain.RankedList, error)
	Partition() domain.Partition
	Kind() string
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatGenerator produces completions over an ordered message transcript.
type ChatGenerator interface {
	Generate(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// HistoryStore is the append-only per-session message log.
type HistoryStore interface {
	Append(ctx context.Context, sessionKey string, message domain.ChatMessage) error
	List(ctx context.Context, sessionKey string) ([]domain.ChatMessage, error)
}

// ConversationStore owns conversation metadata; a conversation's mode is
// fixed at creation.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, owner, conversationID string, mode domain.SessionMode) (*domain.Conversation, error)
	GetConversation(ctx context.Context, owner, conversationID string) (*domain.Conversation, error)
}

// UserStore reads authentication records.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
}

// VectorIndex indexes chunks and serves dense and lexical search for one
// or more partitions.
type VectorIndex interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error
	Search(ctx context.Context, partition domain.Partition, queryVector []float32, limit int) ([]domain.Chunk, error)
	SearchLexical(ctx context.Context, partition domain.Partition, queryText string, limit int) ([]domain.Chunk, error)
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events and turn telemetry.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
	PublishTurnEvent(ctx context.Context, event string, payload any) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Chunker splits text into indexable chunks.
type Chunker interface {
	Split(text string) []string
}
