package room

import "errors"

var (
	ErrRoomAlreadyActive = errors.New("room already active")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room full")
	ErrNotMember         = errors.New("connection is not a member of the room")
)
