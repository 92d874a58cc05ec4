package search

import (
	"errors"
	"fmt"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
)

var (
	// ErrInvalidPage rejects a negative offset or a non-positive page size
	ErrInvalidPage = errors.New("invalid page request")

	// ErrRetrievalUnavailable marks a failed venue retrieval, as opposed to zero matches
	ErrRetrievalUnavailable = errors.New("search unavailable")
)

// RetrievalError is returned when the venue retrieval fails. errors.Is matches both
// ErrRetrievalUnavailable and the underlying cause.
type RetrievalError struct {
	Kind model.PlaceKind
	Err  error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s retrieval: %v", e.Kind, e.Err)
}

func (e *RetrievalError) Unwrap() []error {
	return []error{ErrRetrievalUnavailable, e.Err}
}

// IsUnavailable reports whether err means "search is down" rather than a bad request
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrRetrievalUnavailable)
}
