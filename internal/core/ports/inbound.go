package ports

import (
	"context"
	"io"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

// ChatService is the transport-agnostic turn API.
type ChatService interface {
	SubmitTurn(ctx context.Context, session domain.SessionContext, userInput string) (*domain.TurnResult, error)
	GetHistory(ctx context.Context, session domain.SessionContext) ([]domain.ChatMessage, error)
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, partition domain.Partition, category string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}
