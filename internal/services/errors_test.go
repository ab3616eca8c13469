package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("driver: bad connection")
	wrapped := fmt.Errorf("handler: %w", internalError("Failed", cause))

	assert.Equal(t, KindInternal, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, KindNotFound, KindOf(notFoundError("missing")))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("x: %w", conflictError("dup"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	err := validationError("Validation failed", map[string]string{"name": "Name is required"})

	assert.Equal(t, "validation: Validation failed", err.Error())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "unavailable", KindUnavailable.String())
}
