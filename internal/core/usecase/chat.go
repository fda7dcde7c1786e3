package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aerodocs/docuchat/internal/core/domain"
	"github.com/aerodocs/docuchat/internal/core/ports"
)

const answerSystemPrompt = `You are a professional Document Analyst. Use the provided context to answer questions precisely or provide comprehensive summaries.

GUIDELINES:
1. FACT RETRIEVAL: Provide direct answers grounded in context.
2. SUMMARIZATION: Synthesize details into a structured overview. Use bullet points.
3. INTEGRITY: Use ONLY provided context. If missing, say materials are insufficient.
4. CITATION: Always mention source and page numbers.

Context:
%s`

const noContextMarker = "[no supporting documents were retrieved for this question; the available materials are insufficient]"

// TurnTelemetry receives orchestration signals that must stay observable
// even when the turn itself succeeds (degraded backends, persist failures).
type TurnTelemetry interface {
	TurnCompleted(mode string)
	TurnFailed(mode, stage string)
	RetrieverDegraded(partition, kind string)
	HistoryPersistFailed()
}

type noopTelemetry struct{}

func (noopTelemetry) TurnCompleted(string)             {}
func (noopTelemetry) TurnFailed(string, string)        {}
func (noopTelemetry) RetrieverDegraded(string, string) {}
func (noopTelemetry) HistoryPersistFailed()            {}

// ChatLimits bounds one turn. Zero values fall back to defaults.
type ChatLimits struct {
	TopK              int
	RRFK              int
	DenseWeight       float64
	LexicalWeight     float64
	RetrievalWorkers  int
	GenerationTimeout time.Duration
}

// ChatUseCase drives one conversational turn: authorize, rewrite, retrieve
// concurrently, fuse, generate, persist.
type ChatUseCase struct {
	router        *PartitionRouter
	rewriter      *QueryRewriter
	retrievers    map[domain.Partition][]ports.Retriever
	generator     ports.ChatGenerator
	history       ports.HistoryStore
	conversations ports.ConversationStore
	queue         ports.MessageQueue
	telemetry     TurnTelemetry
	limits        ChatLimits
	logger        *slog.Logger
}

func NewChatUseCase(
	router *PartitionRouter,
	rewriter *QueryRewriter,
	retrievers map[domain.Partition][]ports.Retriever,
	generator ports.ChatGenerator,
	history ports.HistoryStore,
	conversations ports.ConversationStore,
	queue ports.MessageQueue,
	telemetry TurnTelemetry,
	limits ChatLimits,
	logger *slog.Logger,
) *ChatUseCase {
	if limits.TopK <= 0 {
		limits.TopK = 10
	}
	if limits.RRFK <= 0 {
		limits.RRFK = defaultRRFK
	}
	if limits.DenseWeight <= 0 {
		limits.DenseWeight = 0.5
	}
	if limits.LexicalWeight <= 0 {
		limits.LexicalWeight = 0.5
	}
	if limits.RetrievalWorkers <= 0 {
		limits.RetrievalWorkers = 4
	}
	if limits.GenerationTimeout <= 0 {
		limits.GenerationTimeout = 120 * time.Second
	}
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ChatUseCase{
		router:        router,
		rewriter:      rewriter,
		retrievers:    retrievers,
		generator:     generator,
		history:       history,
		conversations: conversations,
		queue:         queue,
		telemetry:     telemetry,
		limits:        limits,
		logger:        logger,
	}
}

func (uc *ChatUseCase) SubmitTurn(ctx context.Context, session domain.SessionContext, userInput string) (*domain.TurnResult, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit turn", fmt.Errorf("user input is required"))
	}
	if strings.TrimSpace(session.UserID) == "" || strings.TrimSpace(session.ConversationID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit turn", fmt.Errorf("user and conversation ids are required"))
	}

	// Authorizing. Fail-closed before any retrieval or generation work.
	if err := uc.router.Authorize(session.Role, session.Mode); err != nil {
		uc.telemetry.TurnFailed(string(session.Mode), "authorizing")
		return nil, err
	}
	conv, err := uc.conversations.EnsureConversation(ctx, session.UserID, session.ConversationID, session.Mode)
	if err != nil {
		uc.telemetry.TurnFailed(string(session.Mode), "authorizing")
		return nil, domain.WrapError(domain.ErrTemporary, "ensure conversation", err)
	}
	if conv.Mode != session.Mode {
		uc.telemetry.TurnFailed(string(session.Mode), "authorizing")
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit turn",
			fmt.Errorf("conversation %s is fixed to mode %q", conv.ID, conv.Mode))
	}

	sessionKey := session.SessionKey()
	history, err := uc.history.List(ctx, sessionKey)
	if err != nil {
		uc.telemetry.TurnFailed(string(session.Mode), "rewriting")
		return nil, domain.WrapError(domain.ErrTemporary, "load session history", err)
	}

	// Rewriting.
	standalone, err := uc.rewriter.Rewrite(ctx, history, userInput)
	if err != nil {
		uc.telemetry.TurnFailed(string(session.Mode), "rewriting")
		return nil, err
	}

	// Retrieving + Fusing.
	fused := uc.retrieveAndFuse(ctx, session.Mode, standalone)

	// Generating.
	answer, err := uc.generate(ctx, history, userInput, fused)
	if err != nil {
		uc.telemetry.TurnFailed(string(session.Mode), "generating")
		return nil, err
	}

	sources := citations(fused)

	// Persisting. User message first, assistant second; failure is reported
	// but never revokes the already-produced answer.
	uc.persistTurn(ctx, sessionKey, userInput, answer, sources)

	uc.telemetry.TurnCompleted(string(session.Mode))
	return &domain.TurnResult{Answer: answer, Sources: sources}, nil
}

func (uc *ChatUseCase) GetHistory(ctx context.Context, session domain.SessionContext) ([]domain.ChatMessage, error) {
	if err := uc.router.Authorize(session.Role, session.Mode); err != nil {
		return nil, err
	}
	messages, err := uc.history.List(ctx, session.SessionKey())
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "load session history", err)
	}
	return messages, nil
}

type retrievalSlot struct {
	partition domain.Partition
	weight    float64
	list      domain.RankedList
}

// retrieveAndFuse fans out one call per (partition, backend) pair, joined
// before fusion. Individual backend failures degrade that slot to an empty
// list; fusion input order is fixed by construction so completion order
// cannot influence the result.
func (uc *ChatUseCase) retrieveAndFuse(ctx context.Context, mode domain.SessionMode, standalone string) domain.RankedList {
	partitions := uc.router.Partitions(mode)

	slots := make([]retrievalSlot, 0, len(partitions)*2)
	calls := make([]ports.Retriever, 0, len(partitions)*2)
	for _, partition := range partitions {
		for _, retriever := range uc.retrievers[partition] {
			weight := uc.limits.DenseWeight
			if retriever.Kind() == RetrieverKindLexical {
				weight = uc.limits.LexicalWeight
			}
			slots = append(slots, retrievalSlot{partition: partition, weight: weight})
			calls = append(calls, retriever)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.limits.RetrievalWorkers)
	for i := range calls {
		g.Go(func() error {
			list, err := calls[i].Query(gctx, standalone, uc.limits.TopK)
			if err != nil {
				uc.logger.Warn("retriever_degraded",
					"partition", string(calls[i].Partition()),
					"kind", calls[i].Kind(),
					"error", err,
				)
				uc.telemetry.RetrieverDegraded(string(calls[i].Partition()), calls[i].Kind())
				return nil
			}
			slots[i].list = list
			return nil
		})
	}
	_ = g.Wait()

	// Fuse per partition, then across partitions with weight 1.0 each.
	partitionLists := make([]WeightedList, 0, len(partitions))
	for _, partition := range partitions {
		perBackend := make([]WeightedList, 0, 2)
		for _, slot := range slots {
			if slot.partition == partition {
				perBackend = append(perBackend, WeightedList{Chunks: slot.list, Weight: slot.weight})
			}
		}
		partitionLists = append(partitionLists, WeightedList{
			Chunks: FuseRRF(perBackend, uc.limits.RRFK),
			Weight: 1.0,
		})
	}

	if len(partitionLists) == 1 {
		return trimRanked(partitionLists[0].Chunks, uc.limits.TopK)
	}
	return trimRanked(FuseRRF(partitionLists, uc.limits.RRFK), uc.limits.TopK)
}

func (uc *ChatUseCase) generate(ctx context.Context, history []domain.ChatMessage, userInput string, fused domain.RankedList) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, uc.limits.GenerationTimeout)
	defer cancel()

	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{
		Role:    "system",
		Content: fmt.Sprintf(answerSystemPrompt, contextBlock(fused)),
	})
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: domain.MessageRoleUser, Content: userInput})

	answer, err := uc.generator.Generate(genCtx, messages)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", domain.WrapError(domain.ErrGenerationFailure, "generation timeout", err)
		}
		return "", domain.WrapError(domain.ErrGenerationFailure, "generate answer", err)
	}
	return strings.TrimSpace(answer), nil
}

func (uc *ChatUseCase) persistTurn(ctx context.Context, sessionKey, userInput, answer string, sources []string) {
	now := time.Now().UTC()
	appendErr := uc.history.Append(ctx, sessionKey, domain.ChatMessage{
		Role:      domain.MessageRoleUser,
		Content:   userInput,
		CreatedAt: now,
	})
	if appendErr == nil {
		appendErr = uc.history.Append(ctx, sessionKey, domain.ChatMessage{
			Role:      domain.MessageRoleAssistant,
			Content:   answer,
			Citations: sources,
			CreatedAt: now,
		})
	}
	if appendErr == nil {
		return
	}

	err := domain.WrapError(domain.ErrHistoryPersist, "persist turn", appendErr)
	uc.logger.Error("history_persist_failed", "session_key", sessionKey, "error", err)
	uc.telemetry.HistoryPersistFailed()
	if uc.queue != nil {
		if pubErr := uc.queue.PublishTurnEvent(ctx, "chat.turn.persist_failed", map[string]string{
			"session_key": sessionKey,
			"error":       appendErr.Error(),
		}); pubErr != nil {
			uc.logger.Error("persist_failure_event_publish_failed", "error", pubErr)
		}
	}
}

func contextBlock(fused domain.RankedList) string {
	if len(fused) == 0 {
		return noContextMarker
	}
	var b strings.Builder
	for _, chunk := range fused {
		fmt.Fprintf(&b, "Source: %s | Page: %d\nContent: %s\n\n",
			chunk.Metadata.Source, chunk.Metadata.Page, chunk.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// citations lists the deduplicated "{source} (page {page})" strings for the
// chunks actually handed to the generator, in fused order.
func citations(fused domain.RankedList) []string {
	seen := make(map[string]struct{}, len(fused))
	out := make([]string, 0, len(fused))
	for _, chunk := range fused {
		ref := fmt.Sprintf("%s (page %d)", chunk.Metadata.Source, chunk.Metadata.Page)
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
