// File: api/errors_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWithoutContextOmitsContextSuffix(t *testing.T) {
	err := NewError(ErrCodeInvalidArgument, ErrProtocolViolation, "bad frame")
	assert.Equal(t, "bad frame", err.Error())
}

func TestErrorWithContextAppendsContextSuffix(t *testing.T) {
	err := NewError(ErrCodeInternal, ErrSyscallFailure, "read failed").
		WithContext("fd", 7).
		WithContext("connection_id", uint64(42))
	assert.Contains(t, err.Error(), "read failed")
	assert.Contains(t, err.Error(), "fd:7")
	assert.Equal(t, ErrCodeInternal, err.Code)
	assert.Equal(t, ErrSyscallFailure, err.Net)
}

func TestNetworkErrorStringTaxonomy(t *testing.T) {
	assert.Equal(t, "PeerClosed", ErrPeerClosed.String())
	assert.Equal(t, "Unknown", NetworkError(99).String())
}
