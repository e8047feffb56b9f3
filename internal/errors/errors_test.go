package errors_test

import (
	"fmt"
	"testing"

	"github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorKind
	}{
		{"nil", nil, errors.KindNone},
		{"validation", errors.NewValidationError("title", "Title is required"), errors.KindValidation},
		{"wrapped not found", errors.Wrapf(errors.ErrNotFound, "movie %s", "m-1"), errors.KindNotFound},
		{"denied", fmt.Errorf("insert: %w", errors.ErrDenied), errors.KindDenied},
		{"transport", errors.Wrapf(errors.ErrTransport, "dial"), errors.KindTransport},
		{"credentials", errors.ErrInvalidCredentials, errors.KindCredentials},
		{"conflict", errors.Wrapf(errors.ErrConflict, "insert"), errors.KindConflict},
		{"unknown", fmt.Errorf("boom"), errors.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, errors.Kind(tt.err))
		})
	}
}

func TestUserMessage(t *testing.T) {
	require.Equal(t, "Title is required", errors.UserMessage(errors.NewValidationError("title", "Title is required")))
	require.Contains(t, errors.UserMessage(errors.Wrapf(errors.ErrTransport, "get")), "try again")
	require.Empty(t, errors.UserMessage(nil))
}

func TestWrapfNil(t *testing.T) {
	require.NoError(t, errors.Wrapf(nil, "ignored"))
}
