package usecase

import (
	"context"
	"strings"

	"github.com/aerodocs/docuchat/internal/core/domain"
	"github.com/aerodocs/docuchat/internal/core/ports"
)

const rewriteInstruction = "Rephrase the user's last question into a standalone question based on history. Return only the rephrased question."

// QueryRewriter turns (history, new utterance) into a standalone query.
type QueryRewriter struct {
	generator     ports.ChatGenerator
	fallbackToRaw bool
}

// NewQueryRewriter builds a rewriter. With fallbackToRaw set, a failed
// rewrite degrades to the unrewritten input instead of failing the turn.
func NewQueryRewriter(generator ports.ChatGenerator, fallbackToRaw bool) *QueryRewriter {
	return &QueryRewriter{
		generator:     generator,
		fallbackToRaw: fallbackToRaw,
	}
}

// Rewrite returns newInput unchanged when history is empty; that path makes
// no backend call. Otherwise it issues one generation call with the fixed
// rephrase instruction.
func (qr *QueryRewriter) Rewrite(ctx context.Context, history []domain.ChatMessage, newInput string) (string, error) {
	if len(history) == 0 {
		return newInput, nil
	}

	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: "system", Content: rewriteInstruction})
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: domain.MessageRoleUser, Content: newInput})

	rewritten, err := qr.generator.Generate(ctx, messages)
	if err != nil {
		if qr.fallbackToRaw {
			return newInput, nil
		}
		return "", domain.WrapError(domain.ErrRewriteFailure, "rewrite standalone query", err)
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return newInput, nil
	}
	return rewritten, nil
}
