package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", New(ErrNotFound, http.StatusConflict, "taken"), http.StatusConflict},
		{"wrapped app error", fmt.Errorf("outer: %w", Newf(ErrInternal, http.StatusTeapot, "n=%d", 1)), http.StatusTeapot},
		{"not found", fmt.Errorf("doc 7: %w", ErrNotFound), http.StatusNotFound},
		{"invalid", Invalidf("limit %d", -1), http.StatusBadRequest},
		{"timeout", fmt.Errorf("reading positions: %w", ErrTimeout), http.StatusServiceUnavailable},
		{"not ready", ErrIndexNotReady, http.StatusServiceUnavailable},
		{"corrupt", Corruptf("bad magic %x", 0xbeef), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsTimeout(fmt.Errorf("a: %w", fmt.Errorf("b: %w", ErrTimeout))))
	assert.False(t, IsTimeout(ErrIndexNotReady))
	assert.True(t, IsNotReady(fmt.Errorf("acquire: %w", ErrIndexNotReady)))
	assert.False(t, IsNotReady(nil))
}

func TestFormattedErrors(t *testing.T) {
	err := Corruptf("block %d", 3)
	assert.ErrorIs(t, err, ErrCorruptIndex)
	assert.EqualError(t, err, "corrupt index: block 3")

	appErr := Newf(ErrInvalidInput, http.StatusBadRequest, "field %q", "q")
	assert.ErrorIs(t, appErr, ErrInvalidInput)
	assert.EqualError(t, appErr, `invalid input: field "q"`)
}
