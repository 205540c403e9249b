package room

import (
	"context"
	"fmt"

	"github.com/sharetube/tandem/internal/repository/connection"
	"github.com/sharetube/tandem/internal/repository/room"
	"github.com/sharetube/tandem/pkg/protocol"
)

type Member struct {
	DisplayName string
	AvatarURL   string
}

// LeftRoom describes the room a connection implicitly left by moving to another one.
type LeftRoom struct {
	RoomId string
	Conns  []connection.Peer
}

func (s service) leavePrevious(ctx context.Context, connectionId, prevRoomId, roomId string) (*LeftRoom, error) {
	if prevRoomId == "" || prevRoomId == roomId {
		return nil, nil
	}

	resp, err := s.roomRepo.LeaveRoom(ctx, &room.LeaveRoomParams{RoomId: prevRoomId, ConnectionId: connectionId})
	if err != nil {
		return nil, fmt.Errorf("failed to leave previous room: %w", err)
	}

	if !resp.Left {
		return nil, nil
	}

	return &LeftRoom{RoomId: prevRoomId, Conns: s.getPeers(ctx, resp.Remaining)}, nil
}

type CreateRoomParams struct {
	ConnectionId string
	RoomId       string
	DisplayName  string
	AvatarURL    string
}

type CreateRoomResponse struct {
	RoomId   string
	LeftRoom *LeftRoom
}

func (s service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	roomId := protocol.NormalizeRoomId(params.RoomId)

	prevRoomId, err := s.roomRepo.GetRoomId(ctx, params.ConnectionId)
	if err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to get current room: %w", err)
	}

	if err := s.roomRepo.CreateRoom(ctx, &room.CreateRoomParams{
		RoomId: roomId,
		Member: room.Member{
			ConnectionId: params.ConnectionId,
			DisplayName:  params.DisplayName,
			AvatarURL:    params.AvatarURL,
		},
	}); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to create room: %w", err)
	}

	leftRoom, err := s.leavePrevious(ctx, params.ConnectionId, prevRoomId, roomId)
	if err != nil {
		return CreateRoomResponse{}, err
	}

	return CreateRoomResponse{RoomId: roomId, LeftRoom: leftRoom}, nil
}

type JoinRoomParams struct {
	ConnectionId string
	RoomId       string
	DisplayName  string
	AvatarURL    string
}

type JoinRoomResponse struct {
	RoomId string
	// Partner is nil when the room has no other member.
	Partner *Member
	// Conns are the members to notify about the joined one. Empty on a repeated join.
	Conns    []connection.Peer
	LeftRoom *LeftRoom
}

func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	roomId := protocol.NormalizeRoomId(params.RoomId)

	prevRoomId, err := s.roomRepo.GetRoomId(ctx, params.ConnectionId)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get current room: %w", err)
	}

	others, err := s.roomRepo.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId: roomId,
		Member: room.Member{
			ConnectionId: params.ConnectionId,
			DisplayName:  params.DisplayName,
			AvatarURL:    params.AvatarURL,
		},
	})
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to join room: %w", err)
	}

	leftRoom, err := s.leavePrevious(ctx, params.ConnectionId, prevRoomId, roomId)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	resp := JoinRoomResponse{RoomId: roomId, LeftRoom: leftRoom}
	if len(others) > 0 {
		resp.Partner = &Member{DisplayName: others[0].DisplayName, AvatarURL: others[0].AvatarURL}
	}

	if prevRoomId != roomId {
		resp.Conns = s.getPeers(ctx, others)
	}

	return resp, nil
}

type LeaveRoomParams struct {
	ConnectionId string
	RoomId       string
}

type LeaveRoomResponse struct {
	Conns []connection.Peer
}

// LeaveRoom is idempotent. Leaving a room the connection is not in notifies nobody.
func (s service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) (LeaveRoomResponse, error) {
	resp, err := s.roomRepo.LeaveRoom(ctx, &room.LeaveRoomParams{
		RoomId:       protocol.NormalizeRoomId(params.RoomId),
		ConnectionId: params.ConnectionId,
	})
	if err != nil {
		return LeaveRoomResponse{}, fmt.Errorf("failed to leave room: %w", err)
	}

	if !resp.Left {
		return LeaveRoomResponse{}, nil
	}

	return LeaveRoomResponse{Conns: s.getPeers(ctx, resp.Remaining)}, nil
}

type GetRoomResponse struct {
	RoomId  string `json:"roomId"`
	Exists  bool   `json:"exists"`
	Members int    `json:"members"`
}

func (s service) GetRoom(ctx context.Context, roomId string) (GetRoomResponse, error) {
	roomId = protocol.NormalizeRoomId(roomId)

	members, err := s.roomRepo.GetMembers(ctx, roomId)
	if err != nil {
		return GetRoomResponse{}, fmt.Errorf("failed to get members: %w", err)
	}

	return GetRoomResponse{
		RoomId:  roomId,
		Exists:  len(members) > 0,
		Members: len(members),
	}, nil
}
