package apperrors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/curation-engine/internal/apperrors"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperrors.Validationf("bad input"), http.StatusBadRequest},
		{"not found", apperrors.NotFoundf("website %s", "w-1"), http.StatusNotFound},
		{"not approved", apperrors.ErrNotApproved, http.StatusForbidden},
		{"already crawling", apperrors.ErrAlreadyCrawling, http.StatusConflict},
		{"step already running", apperrors.ErrStepAlreadyRunning, http.StatusConflict},
		{"stale proposal", apperrors.ErrStaleProposal, http.StatusConflict},
		{"exhausted retries", apperrors.ErrExhaustedRetries, http.StatusConflict},
		{"agent paused", apperrors.ErrAgentPaused, http.StatusForbidden},
		{"batch expired", apperrors.ErrBatchExpired, http.StatusGone},
		{"wrapped sentinel", fmt.Errorf("context: %w", apperrors.ErrNotFound), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.HTTPStatus(tt.err))
		})
	}
}

func TestIsConflict(t *testing.T) {
	assert.True(t, apperrors.IsConflict(apperrors.ErrAlreadyCrawling))
	assert.True(t, apperrors.IsConflict(apperrors.ErrStepAlreadyRunning))
	assert.True(t, apperrors.IsConflict(fmt.Errorf("wrap: %w", apperrors.ErrStaleProposal)))
	assert.False(t, apperrors.IsConflict(apperrors.ErrNotFound))
	assert.False(t, apperrors.IsConflict(errors.New("boom")))
}

func TestFormattedErrorsWrapSentinels(t *testing.T) {
	err := apperrors.Validationf("unknown step %q", "refine")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Contains(t, err.Error(), "refine")

	err = apperrors.NotFoundf("agent %s", "a-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Contains(t, err.Error(), "a-1")
}
