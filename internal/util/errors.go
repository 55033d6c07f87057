package util

import (
	"context"
	"errors"
)

var (
	ErrInvalidFormat       = errors.New("invalid format: not a readable PDF")
	ErrNoExtractableText   = errors.New("no extractable text found in PDF")
	ErrEmbeddingFailure    = errors.New("embedding failure")
	ErrIndex               = errors.New("vector index error")
	ErrGeneration          = errors.New("generation error")
	ErrCollaboratorTimeout = errors.New("collaborator timeout")
	ErrNotFound            = errors.New("not found")
	ErrInvalidQuery        = errors.New("invalid query")
	ErrInvalidTransition   = errors.New("invalid document status transition")

	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrTransient      = errors.New("transient provider error")
	ErrPermanent      = errors.New("permanent provider error")
	ErrContextTooLong = errors.New("context too long")
)

// Error type names. They are persisted on failed documents and used as
// Temporal ApplicationError types, so they must stay stable.
const (
	TypeInvalidFormat       = "InvalidFormat"
	TypeNoExtractableText   = "NoExtractableText"
	TypeEmbeddingFailure    = "EmbeddingFailure"
	TypeIndexError          = "IndexError"
	TypeGenerationError     = "GenerationError"
	TypeCollaboratorTimeout = "CollaboratorTimeout"
	TypeNotFound            = "NotFound"
	TypeInvalidQuery        = "InvalidQuery"
	TypeInternal            = "Internal"
)

var typeSentinels = []struct {
	name string
	err  error
}{
	{TypeInvalidFormat, ErrInvalidFormat},
	{TypeNoExtractableText, ErrNoExtractableText},
	{TypeCollaboratorTimeout, ErrCollaboratorTimeout},
	{TypeEmbeddingFailure, ErrEmbeddingFailure},
	{TypeIndexError, ErrIndex},
	{TypeGenerationError, ErrGeneration},
	{TypeNotFound, ErrNotFound},
	{TypeInvalidQuery, ErrInvalidQuery},
}

// ErrorType names the taxonomy class of err. Deadline errors count as
// collaborator timeouts; anything unclassified is Internal.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TypeCollaboratorTimeout
	}
	for _, s := range typeSentinels {
		if errors.Is(err, s.err) {
			return s.name
		}
	}
	return TypeInternal
}

// ErrorFromType returns the sentinel for a taxonomy name, or nil when the
// name is unknown.
func ErrorFromType(name string) error {
	for _, s := range typeSentinels {
		if s.name == name {
			return s.err
		}
	}
	return nil
}

// Retryable reports whether an ingestion step failing with err is worth
// another attempt.
func Retryable(err error) bool {
	switch ErrorType(err) {
	case TypeInvalidFormat, TypeNoExtractableText, TypeNotFound, TypeInvalidQuery:
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrQuotaExhausted) || errors.Is(err, ErrContextTooLong) || errors.Is(err, ErrInvalidTransition) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
