package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProcessRole(t *testing.T) {
	tests := []struct {
		in      string
		want    ProcessRole
		wantErr bool
	}{
		{"primary", RolePrimary, false},
		{"SECONDARY", RoleSecondary, false},
		{" auto ", RoleAuto, false},
		{"", RoleAuto, false},
		{"tertiary", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProcessRole(tt.in)
			if tt.wantErr {
				assert.True(t, IsErrCode(err, ErrCodeInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, RolePrimary.IsPrimary())
	assert.False(t, RoleSecondary.IsPrimary())
}

func TestErrorFormatting(t *testing.T) {
	assert.Equal(t, "TIMEOUT: no reply", NewError(ErrCodeTimeout, "no reply").Error())

	cause := errors.New("connection refused")
	err := WrapError(ErrCodeLocalIO, "send failed", cause)
	assert.Equal(t, "LOCAL_IO_FAILURE: send failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestIsErrCode(t *testing.T) {
	timeout := NewError(ErrCodeTimeout, "no reply")
	local := WrapError(ErrCodeLocalIO, "send failed", errors.New("boom"))
	joined := WrapError(ErrCodePartialFailure, "failed to reach 2 of 3 peers", errors.Join(local, timeout))

	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"nil", nil, ErrCodeTimeout, false},
		{"direct", timeout, ErrCodeTimeout, true},
		{"other code", timeout, ErrCodeLocalIO, false},
		{"fmt wrapped", fmt.Errorf("request: %w", timeout), ErrCodeTimeout, true},
		{"aggregate itself", joined, ErrCodePartialFailure, true},
		{"first joined", joined, ErrCodeLocalIO, true},
		{"second joined", joined, ErrCodeTimeout, true},
		{"absent", joined, ErrCodeCanceled, false},
		{"plain error", errors.New("x"), ErrCodeInvalid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsErrCode(tt.err, tt.code))
		})
	}

	assert.Equal(t, ErrCodePartialFailure, GetErrorCode(fmt.Errorf("x: %w", joined)))
	assert.Empty(t, GetErrorCode(errors.New("x")))
}
