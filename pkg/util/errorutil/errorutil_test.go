package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	t.Run("keeps wrapped domain errors", func(t *testing.T) {
		err := fmt.Errorf("login: %w", NewInvalidCredentials("bad"))
		de := ToDomainError(err)
		require.NotNil(t, de)
		assert.Equal(t, CodeInvalidCredentials, de.Code)
		assert.Equal(t, http.StatusUnauthorized, de.HTTPStatus)
	})

	t.Run("maps fiber errors by status", func(t *testing.T) {
		de := ToDomainError(fiber.NewError(http.StatusTooManyRequests, "slow down"))
		assert.Equal(t, CodeRateLimited, de.Code)
		assert.Equal(t, "slow down", de.Message)
	})

	t.Run("deadline becomes persistence failure", func(t *testing.T) {
		de := ToDomainError(fmt.Errorf("store: %w", context.DeadlineExceeded))
		assert.Equal(t, CodePersistenceFailure, de.Code)
		assert.Equal(t, http.StatusServiceUnavailable, de.HTTPStatus)
	})

	t.Run("hides unknown errors", func(t *testing.T) {
		de := ToDomainError(errors.New("pq: connection refused"))
		assert.Equal(t, CodeInternal, de.Code)
		assert.Equal(t, "internal server error", de.Message)
	})

	assert.Nil(t, ToDomainError(nil))
}
