package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped", fmt.Errorf("get job: %w", NewTransientError(errors.New("429"), 429)), true},
		{"plain", errors.New("invalid api key"), false},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"message", errors.New("Get \"https://x\": TLS handshake timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 501} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner, 502)
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "inner", te.Error())
	assert.Equal(t, 502, te.StatusCode)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassTransient, Classify(NewTransientError(errors.New("x"), 500)))
	assert.Equal(t, ClassPermanent, Classify(errors.New("decode job")))
}
