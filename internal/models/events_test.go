package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventSnapshotsPayload(t *testing.T) {
	payload := &StatusPayload{Status: SessionActive}
	event, err := NewEvent(EventSessionStatus, 1, payload)
	require.NoError(t, err)

	// Mutating the source after the event is built must not change the frame
	payload.Status = SessionEnded

	var decoded StatusPayload
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	assert.Equal(t, SessionActive, decoded.Status)
	assert.Equal(t, int64(1), event.SessionID)
	assert.False(t, event.At.IsZero())
}

func TestNewEventWithoutPayload(t *testing.T) {
	event, err := NewEvent(EventSessionTimeout, 5, nil)
	require.NoError(t, err)
	assert.Nil(t, event.Payload)
}
