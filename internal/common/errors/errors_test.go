package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnknownCommandMessage(t *testing.T) {
	err := UnknownCommand("invalid_command")

	assert.Equal(t, "Unknown command: invalid_command", Message(err))
	assert.True(t, IsUnknownCommand(err))
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(err))
}

func TestTimeoutIsConnectorUnavailable(t *testing.T) {
	err := Timeout("Command timeout - Blender not responding")

	assert.True(t, IsTimeout(err))
	assert.True(t, IsConnectorUnavailable(err))
	assert.False(t, IsTimeout(ConnectorUnavailable("no connection", nil)))
}

func TestWrapPreservesCode(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("outer: %w", Timeout("slow")), "apply texture")

	assert.True(t, IsTimeout(wrapped))
	assert.Equal(t, "apply texture: slow", wrapped.Message)
	assert.Nil(t, Wrap(nil, "noop"))
}

func TestMessageOfForeignError(t *testing.T) {
	err := fmt.Errorf("boom")

	assert.Equal(t, "boom", Message(err))
	assert.Equal(t, ErrCodeInternalError, Code(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(err))
}
