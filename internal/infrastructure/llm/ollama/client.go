package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aerodocs/docuchat/internal/core/domain"
	"github.com/aerodocs/docuchat/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, chatModel, embedModel string, cfg resilience.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 150 * time.Second},
		executor:   resilience.NewExecutor("ollama", cfg, classifyOllamaError, logger),
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.post(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator answers chat turns through the /api/chat endpoint. The full
// message sequence, system prompt included, is built by the caller.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	wire := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		wire = append(wire, chatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	request := map[string]any{
		"model":    g.client.chatModel,
		"messages": wire,
		"stream":   false,
	}

	var response struct {
		Message chatMessage `json:"message"`
	}
	if err := g.client.post(ctx, "/api/chat", request, &response, "chat"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Message.Content), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) post(ctx context.Context, path string, payload, out any, operation string) error {
	err := c.executor.Execute(ctx, "ollama "+operation, func(ctx context.Context) error {
		return c.postJSON(ctx, path, payload, out, operation)
	})
	return wrapTemporaryIfNeeded("ollama "+operation, err)
}
