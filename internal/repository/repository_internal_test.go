// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstraintColumn(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"constraint failed: UNIQUE constraint failed: participants.email (2067)", "email"},
		{"UNIQUE constraint failed: issued_tokens.token_value", "token_value"},
		{"UNIQUE constraint failed: participants.phone_number (2067)", "phone_number"},
		{"something else", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, constraintColumn(tt.msg), tt.msg)
	}
}

func TestWrapError_Passthrough(t *testing.T) {
	plain := errors.New("plain")

	assert.NoError(t, wrapError(nil))
	assert.Same(t, plain, wrapError(plain))
}

func TestDuplicateError_Is(t *testing.T) {
	cause := errors.New("cause")
	err := &DuplicateError{Column: "email", Err: cause}

	assert.ErrorIs(t, err, ErrDuplicate)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "email")
}
