package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *LoadError
		expected string
	}{
		{
			name:     "schema error with column",
			err:      NewSchemaError("cash_amount", "required column is missing"),
			expected: `[schema] column "cash_amount": required column is missing`,
		},
		{
			name:     "calendar range error",
			err:      NewCalendarRangeError("2014-01-04 is not a trading day"),
			expected: "[calendar_range] 2014-01-04 is not a trading day",
		},
		{
			name:     "resolution error with cause",
			err:      NewSourceResolutionError("query failed", fmt.Errorf("connection refused")),
			expected: "[source_resolution] query failed: connection refused",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "unknown load error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestLoadErrorIs(t *testing.T) {
	err := fmt.Errorf("resolve events: %w", NewTypeError("cash_amount", "expected float, found date", nil))

	assert.True(t, stderrors.Is(err, ErrType))
	assert.False(t, stderrors.Is(err, ErrSchema))
	assert.True(t, IsTypeError(err))
	assert.False(t, IsSchemaError(err))
	assert.Equal(t, ErrorTypeType, GetErrorType(err))
	assert.Equal(t, ErrorType(""), GetErrorType(fmt.Errorf("plain")))
}

func TestLoadErrorUnwrap(t *testing.T) {
	cause := stderrors.New("no such table: buyback_auth")
	err := NewSourceResolutionError("execute deferred query", cause)

	require.ErrorIs(t, err, cause)
	assert.True(t, IsSourceResolutionError(err))
	assert.Nil(t, (*LoadError)(nil).Unwrap())
}

func TestLoadErrorWithContext(t *testing.T) {
	err := NewCalendarRangeError("unsorted days").
		WithContext("index", 3).
		WithContext("day", "2014-01-07")

	assert.True(t, IsCalendarRangeError(err))
	assert.Equal(t, 3, err.Context["index"])
	assert.Equal(t, "2014-01-07", err.Context["day"])
}
