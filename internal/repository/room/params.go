package room

type CreateRoomParams struct {
	RoomId string `json:"room_id"`
	Member Member `json:"member"`
}

type JoinRoomParams struct {
	RoomId string `json:"room_id"`
	Member Member `json:"member"`
}

type LeaveRoomParams struct {
	RoomId       string `json:"room_id"`
	ConnectionId string `json:"connection_id"`
}

type LeaveRoomResponse struct {
	// Left is false when the connection was not a member.
	Left      bool
	Remaining []Member
}

type RemoveConnectionResponse struct {
	// RoomId is empty when the connection was in no room.
	RoomId    string
	Remaining []Member
}
