package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuthorizationDenied  = errors.New("authorization denied")
	ErrRetrieverUnavailable = errors.New("retriever unavailable")
	ErrRewriteFailure       = errors.New("query rewrite failure")
	ErrGenerationFailure    = errors.New("generation failure")
	ErrHistoryPersist       = errors.New("history persist failure")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrTemporary            = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
