package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "error without cause",
			err:      &Error{Code: CodeBadInput, Message: "invalid input"},
			expected: "BAD_INPUT: invalid input",
		},
		{
			name: "error with cause",
			err: &Error{
				Code:    CodeBadInput,
				Message: "invalid input",
				Cause:   fmt.Errorf("underlying error"),
			},
			expected: "BAD_INPUT: invalid input (caused by: underlying error)",
		},
		{
			name: "conflict with detail",
			err: &Error{
				Code:    CodeConflict,
				Message: "unique constraint violated",
				Detail:  "Key (project_id, name)=(1, a) already exists.",
			},
			expected: "CONFLICT: unique constraint violated (Key (project_id, name)=(1, a) already exists.)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Conflict("dup", cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, ErrConflict))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrBadInput))
}

func TestError_Is(t *testing.T) {
	err1 := &Error{Code: CodeBadInput, Message: "one"}
	err2 := &Error{Code: CodeBadInput, Message: "two"}
	err3 := &Error{Code: CodeConflict, Message: "three"}

	assert.True(t, err1.Is(err2), "errors with same code should match")
	assert.False(t, err1.Is(err3), "errors with different codes should not match")
	assert.False(t, err1.Is(fmt.Errorf("standard error")))
}

func TestError_WithDetail(t *testing.T) {
	err := BadInput("unknown column").WithDetail("column", "nope").WithDetail("table", "team")

	assert.Equal(t, "nope", err.Details["column"])
	assert.Equal(t, "team", err.Details["table"])

	err = err.WithDetails(map[string]interface{}{"key": "v"})
	assert.Equal(t, map[string]interface{}{"key": "v"}, err.Details)
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(cause, CodeUnavailable, "pool closed")

	assert.Equal(t, CodeUnavailable, err.Code)
	assert.Equal(t, "pool closed", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.Nil(t, Wrap(nil, CodeUnavailable, "message"))

	errf := Wrapf(cause, CodeBadInput, "row %d", 3)
	assert.Equal(t, "row 3", errf.Message)
	assert.Nil(t, Wrapf(nil, CodeBadInput, "row %d", 3))
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("bulk create: %w", Conflict("Key (id)=(1) already exists.", nil))

	tests := []struct {
		name        string
		err         error
		conflict    bool
		badInput    bool
		unavailable bool
		code        string
	}{
		{name: "conflict", err: Conflict("d", nil), conflict: true, code: CodeConflict},
		{name: "wrapped conflict", err: wrapped, conflict: true, code: CodeConflict},
		{name: "bad input", err: BadInputf("column %q", "x"), badInput: true, code: CodeBadInput},
		{name: "unavailable", err: ErrUnavailable, unavailable: true, code: CodeUnavailable},
		{name: "standard error", err: fmt.Errorf("boom"), code: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.conflict, IsConflict(tt.err))
			assert.Equal(t, tt.badInput, IsBadInput(tt.err))
			assert.Equal(t, tt.unavailable, IsUnavailable(tt.err))
			assert.Equal(t, tt.code, GetCode(tt.err))
		})
	}
}

func TestConflictDetail(t *testing.T) {
	detail, ok := ConflictDetail(fmt.Errorf("wrap: %w", Conflict("Key (name)=(a) already exists.", nil)))
	assert.True(t, ok)
	assert.Equal(t, "Key (name)=(a) already exists.", detail)

	_, ok = ConflictDetail(BadInput("x"))
	assert.False(t, ok)
}

func TestGetMessage(t *testing.T) {
	assert.Equal(t, "bad input", GetMessage(ErrBadInput))
	assert.Equal(t, "standard error", GetMessage(fmt.Errorf("standard error")))
}
