// Package apperrors defines the error taxonomy shared across the engine.
// Callers branch on the sentinel values with errors.Is; the HTTP layer maps
// them to status codes with HTTPStatus.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation indicates malformed or inconsistent input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotApproved indicates a policy precondition failed, e.g. crawling a
	// website that has not passed moderation.
	ErrNotApproved = errors.New("not approved")

	// ErrAlreadyCrawling indicates a crawl is already in progress for the
	// website. Retryable later, not fatal.
	ErrAlreadyCrawling = errors.New("crawl already in progress")

	// ErrStepAlreadyRunning indicates a run already exists for the
	// (agent, step) pair. Retryable later, not fatal.
	ErrStepAlreadyRunning = errors.New("step already running")

	// ErrAgentPaused indicates the agent is paused and cannot start new runs.
	ErrAgentPaused = errors.New("agent is paused")

	// ErrExhaustedRetries indicates the crawl retry budget is spent and only
	// a manual re-trigger can re-arm the website.
	ErrExhaustedRetries = errors.New("crawl retries exhausted")

	// ErrStaleProposal indicates a proposal references entities already
	// resolved by a competing decision, e.g. merge sources archived elsewhere.
	ErrStaleProposal = errors.New("proposal is stale")

	// ErrBatchExpired indicates the batch TTL elapsed; its pending proposals
	// are permanently void.
	ErrBatchExpired = errors.New("batch expired")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrValidation, args)...)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrNotFound, args)...)
}

func prepend(err error, args []any) []any {
	return append([]any{err}, args...)
}

// IsConflict reports whether err is one of the conflict-class errors that a
// caller should treat as "try again later" rather than a failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyCrawling) ||
		errors.Is(err, ErrStepAlreadyRunning) ||
		errors.Is(err, ErrStaleProposal)
}

// HTTPStatus maps a taxonomy error to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotApproved), errors.Is(err, ErrAgentPaused):
		return http.StatusForbidden
	case IsConflict(err), errors.Is(err, ErrExhaustedRetries):
		return http.StatusConflict
	case errors.Is(err, ErrBatchExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
