package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExternalAPIError_StatusSentinels(t *testing.T) {
	tests := []struct {
		status int
		want   error
		not    []error
	}{
		{404, ErrNotFound, []error{ErrRateLimited, ErrServiceUnavailable}},
		{429, ErrRateLimited, []error{ErrNotFound, ErrServiceUnavailable}},
		{503, ErrServiceUnavailable, []error{ErrNotFound, ErrRateLimited}},
		{400, nil, []error{ErrNotFound, ErrRateLimited, ErrServiceUnavailable}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := fmt.Errorf("search: %w", NewExternalAPIError("crossref", tt.status, "body", nil))
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			for _, other := range tt.not {
				assert.False(t, errors.Is(err, other), "status %d must not match %v", tt.status, other)
			}
		})
	}
}

func TestExternalAPIError_CauseAndTruncation(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewExternalAPIError("core", 502, strings.Repeat("x", 4096), cause)

	assert.ErrorIs(t, err, cause)
	assert.Less(t, len(err.Error()), 600)
	assert.True(t, strings.HasSuffix(err.Message, "..."))
	assert.Equal(t, "core API error (status 500)", NewExternalAPIError("core", 500, "", nil).Error())
}

func TestEntityErrors(t *testing.T) {
	nf := NewNotFoundError("paper", "abc")
	assert.EqualError(t, nf, "paper not found: abc")
	assert.ErrorIs(t, nf, ErrNotFound)
	assert.NotErrorIs(t, nf, ErrAlreadyExists)

	dup := NewAlreadyExistsError("paper", "doi:10.1/x")
	assert.EqualError(t, dup, "paper already exists: doi:10.1/x")
	assert.ErrorIs(t, dup, ErrAlreadyExists)
}

func TestConfigAndValidationErrors(t *testing.T) {
	assert.ErrorIs(t, NewConfigError("sources.unpaywall.mailto", "required"), ErrInvalidConfig)
	assert.ErrorIs(t, NewValidationError("query", "required"), ErrInvalidInput)
}
