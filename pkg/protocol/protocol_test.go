package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRoomId(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizeRoomId("ab12cd"))
	assert.Equal(t, "AB12CD", NormalizeRoomId(" Ab12Cd \n"))
}

func TestNewMessageDecode(t *testing.T) {
	progress := int64(10000)
	msg, err := NewMessage(TypeSyncPlay, SyncState{RoomId: "AB12CD", Timestamp: 42, ProgressMs: &progress})
	require.NoError(t, err)
	assert.JSONEq(t, `{"roomId":"AB12CD","timestamp":42,"progressMs":10000}`, string(msg.Payload))

	var state SyncState
	require.NoError(t, msg.Decode(&state))
	require.NotNil(t, state.ProgressMs)
	assert.Equal(t, int64(10000), *state.ProgressMs)
}

func TestNewMessageWithoutPayload(t *testing.T) {
	msg, err := NewMessage(TypePartnerLeft, nil)
	require.NoError(t, err)
	assert.Empty(t, msg.Payload)

	var partner Partner
	assert.NoError(t, msg.Decode(&partner))
}
