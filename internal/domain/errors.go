package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the quiz core wraps exactly one of these,
// so transports can map them with errors.Is.
var (
	// ErrValidation marks bad input; session state is unchanged and the call must not be retried as-is.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing session, user or question.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation that is not allowed in the current state.
	ErrConflict = errors.New("conflict")
	// ErrStoreUnavailable marks a durable-store failure; callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)

var (
	// ErrSessionNotFound is returned when a quiz session id is unknown.
	ErrSessionNotFound = fmt.Errorf("%w: quiz session", ErrNotFound)
	// ErrInsufficientCatalog is returned when the question catalog is empty.
	ErrInsufficientCatalog = fmt.Errorf("%w: no questions available", ErrNotFound)
	// ErrQuestionNotFound indicates a question id is missing from the catalog.
	ErrQuestionNotFound = fmt.Errorf("%w: question", ErrNotFound)
	// ErrUserNotFound indicates no aggregate exists for a user id.
	ErrUserNotFound = fmt.Errorf("%w: user", ErrNotFound)

	// ErrUnknownQuestion indicates a submitted question id is not part of the session.
	ErrUnknownQuestion = fmt.Errorf("%w: question is not part of this session", ErrValidation)
	// ErrDuplicateAnswer indicates the question was already answered in this session.
	ErrDuplicateAnswer = fmt.Errorf("%w: question already answered", ErrValidation)
	// ErrInvalidElapsedTime indicates a negative or non-finite elapsed time.
	ErrInvalidElapsedTime = fmt.Errorf("%w: elapsed time must be a finite number >= 0", ErrValidation)
	// ErrInvalidGrade indicates a grade outside {0, 1}.
	ErrInvalidGrade = fmt.Errorf("%w: grade must be 0 or 1", ErrValidation)
	// ErrInvalidQuestionCount indicates a requested session size above MaxQuestionCount.
	ErrInvalidQuestionCount = fmt.Errorf("%w: question count out of range", ErrValidation)
	// ErrMissingIdentity indicates a call that needs a user id did not carry one.
	ErrMissingIdentity = fmt.Errorf("%w: user identity required", ErrValidation)

	// ErrSessionAlreadyComplete is returned for submissions against a completed session.
	ErrSessionAlreadyComplete = fmt.Errorf("%w: quiz session already complete", ErrConflict)
	// ErrConcurrentUpdate is returned when a compare-and-append lost against another writer.
	ErrConcurrentUpdate = fmt.Errorf("%w: session modified concurrently", ErrConflict)
	// ErrSessionExists is returned when creating a session whose id is already taken.
	ErrSessionExists = fmt.Errorf("%w: quiz session already exists", ErrConflict)
)

// Unavailable wraps a backend failure as ErrStoreUnavailable, keeping the cause in the message.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
