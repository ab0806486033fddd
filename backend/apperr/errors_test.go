package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("smtp: 550 mailbox unavailable")

	assert.ErrorIs(t, Invalid("email", "Emails do not match!"), ErrValidation)
	assert.ErrorIs(t, &DeliveryError{Err: cause}, ErrDelivery)
	assert.ErrorIs(t, &DeliveryError{Err: cause}, cause)
	assert.ErrorIs(t, &AccessError{FileID: "f1"}, ErrAccess)
	assert.ErrorIs(t, Blob("delete", cause), ErrStorage)
	assert.ErrorIs(t, Metadata("insert", cause), cause)
}

func TestLayerOf(t *testing.T) {
	wrapped := fmt.Errorf("delete file: %w", Blob("delete", errors.New("timeout")))

	layer, ok := LayerOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, LayerBlob, layer)

	_, ok = LayerOf(ErrNotFound)
	assert.False(t, ok)
}

func TestMessage_AccessLooksLikeNotFound(t *testing.T) {
	assert.Equal(t, Message(ErrNotFound), Message(&AccessError{FileID: "other"}))
}

func TestMessage_HidesInternalDetail(t *testing.T) {
	err := Metadata("insert", errors.New("pq: password authentication failed for user admin"))
	assert.NotContains(t, Message(err), "password authentication")
	assert.NotContains(t, Message(errors.New("boom")), "boom")
}

func TestMessage_Validation(t *testing.T) {
	assert.Equal(t, "Passwords do not match!", Message(Invalid("password", "Passwords do not match!")))
}
