// Package protocol holds the relay wire format shared by the server and clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client to server.
const (
	TypeCreateRoom = "create-room"
	TypeJoinRoom   = "join-room"
	TypeLeaveRoom  = "leave-room"
	TypeControl    = "control"
)

// Server to client.
const (
	TypeAck           = "ack"
	TypeSyncPlay      = "sync-play"
	TypeSyncPause     = "sync-pause"
	TypePartnerJoined = "partner-joined"
	TypePartnerLeft   = "partner-left"
)

// Relayed in both directions under the same name.
const (
	TypeSyncSeek  = "sync-seek"
	TypeSyncTrack = "sync-track"
	TypeReaction  = "reaction"
)

const (
	ControlPlay  = "play"
	ControlPause = "pause"
)

const (
	ErrCodeRoomAlreadyActive = "RoomAlreadyActive"
	ErrCodeRoomNotFound      = "RoomNotFound"
	ErrCodeRoomFull          = "RoomFull"
	ErrCodeInvalidPayload    = "InvalidPayload"
	ErrCodeInternal          = "Internal"
)

// Message is the envelope of every frame. AckId is set on requests that expect
// an ack and echoed back on the ack.
type Message struct {
	Type    string          `json:"type"`
	AckId   string          `json:"ackId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewMessage(messageType string, payload any) (*Message, error) {
	msg := Message{Type: messageType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", messageType, err)
		}
		msg.Payload = raw
	}

	return &msg, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}

	return json.Unmarshal(m.Payload, v)
}

type RoomRequest struct {
	RoomId      string `json:"roomId" validate:"required,alphanum,min=4,max=16"`
	DisplayName string `json:"displayName,omitempty" validate:"max=64"`
	AvatarURL   string `json:"avatarUrl,omitempty" validate:"omitempty,url,max=512"`
}

type LeaveRoom struct {
	RoomId string `json:"roomId" validate:"required"`
}

type Ack struct {
	Success bool     `json:"success"`
	RoomId  string   `json:"roomId,omitempty"`
	Error   string   `json:"error,omitempty"`
	Partner *Partner `json:"partner,omitempty"`
}

// Partner is the payload of partner-joined and the optional partner of a join ack.
type Partner struct {
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type Control struct {
	Event      string `json:"event" validate:"required,oneof=play pause"`
	RoomId     string `json:"roomId" validate:"required"`
	Timestamp  int64  `json:"timestamp"`
	ProgressMs *int64 `json:"progressMs,omitempty"`
}

// SyncState is the payload of sync-play and sync-pause.
type SyncState struct {
	RoomId     string `json:"roomId"`
	Timestamp  int64  `json:"timestamp"`
	ProgressMs *int64 `json:"progressMs,omitempty"`
}

type Seek struct {
	RoomId     string `json:"roomId" validate:"required"`
	PositionMs *int64 `json:"positionMs" validate:"required"`
	Timestamp  int64  `json:"timestamp"`
}

type Track struct {
	RoomId    string `json:"roomId" validate:"required"`
	URI       string `json:"uri" validate:"required"`
	TrackName string `json:"trackName"`
	Timestamp int64  `json:"timestamp"`
}

type Reaction struct {
	RoomId    string `json:"roomId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,max=32"`
	Timestamp int64  `json:"timestamp"`
}

// NormalizeRoomId makes room ids case-insensitive.
func NormalizeRoomId(roomId string) string {
	return strings.ToUpper(strings.TrimSpace(roomId))
}
