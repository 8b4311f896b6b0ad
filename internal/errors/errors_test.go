package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		code         string
		wantCategory Category
		wantSeverity Severity
		wantRetry    bool
	}{
		{"config error", ErrCodeConfigInvalid, CategoryConfig, SeverityFatal, false},
		{"storage error", ErrCodeStoreWrite, CategoryStorage, SeverityError, false},
		{"provider timeout", ErrCodeProviderTimeout, CategoryProvider, SeverityWarning, true},
		{"decode error", ErrCodeDecodeSizeMismatch, CategoryValidation, SeverityError, false},
		{"generation error", ErrCodeGenerationFailed, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "something broke", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
			assert.Equal(t, tt.wantSeverity, err.Severity)
			assert.Equal(t, tt.wantRetry, err.Retryable)
			assert.Contains(t, err.Error(), tt.code)
		})
	}
}

func TestWrap(t *testing.T) {
	t.Run("wraps cause", func(t *testing.T) {
		cause := fmt.Errorf("disk full")
		err := Wrap(ErrCodeStoreWrite, cause)
		require.NotNil(t, err)
		assert.Equal(t, "disk full", err.Message)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("nil cause returns nil", func(t *testing.T) {
		assert.Nil(t, Wrap(ErrCodeStoreWrite, nil))
	})
}

func TestIs(t *testing.T) {
	err := New(ErrCodeGenerationFailed, "provider returned nothing", nil)
	target := New(ErrCodeGenerationFailed, "different message", nil)

	assert.True(t, stderrors.Is(err, target))
	assert.False(t, stderrors.Is(err, New(ErrCodeAdapterFailed, "", nil)))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeStoreRead, "cannot read embedding", nil).
		WithDetail("entity_type", "scene").
		WithDetail("entity_id", "42")

	assert.Equal(t, "scene", err.Details["entity_type"])
	assert.Equal(t, "42", err.Details["entity_id"])
}

func TestAccessors(t *testing.T) {
	plain := fmt.Errorf("plain error")

	assert.Equal(t, "", GetCode(plain))
	assert.Equal(t, Category(""), GetCategory(plain))
	assert.False(t, IsRetryable(plain))
	assert.False(t, IsRetryable(nil))

	err := New(ErrCodeProviderUnavailable, "connection refused", nil)
	assert.Equal(t, ErrCodeProviderUnavailable, GetCode(err))
	assert.Equal(t, CategoryProvider, GetCategory(err))
	assert.True(t, IsRetryable(err))
}
