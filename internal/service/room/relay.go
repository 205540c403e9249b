package room

import (
	"context"
	"fmt"

	"github.com/sharetube/tandem/internal/repository/connection"
	"github.com/sharetube/tandem/internal/repository/room"
	"github.com/sharetube/tandem/pkg/protocol"
)

type RelayParams struct {
	SenderId string
	RoomId   string
}

type RelayResponse struct {
	// Conns never contains the sender.
	Conns []connection.Peer
}

// Relay resolves who should receive an event the sender published to RoomId.
// A sender that is not currently a member gets ErrNotMember.
func (s service) Relay(ctx context.Context, params *RelayParams) (RelayResponse, error) {
	roomId := protocol.NormalizeRoomId(params.RoomId)

	currentRoomId, err := s.roomRepo.GetRoomId(ctx, params.SenderId)
	if err != nil {
		return RelayResponse{}, fmt.Errorf("failed to get sender room: %w", err)
	}

	if currentRoomId == "" || currentRoomId != roomId {
		return RelayResponse{}, ErrNotMember
	}

	if err := s.roomRepo.RefreshRoom(ctx, roomId); err != nil {
		return RelayResponse{}, fmt.Errorf("failed to refresh room: %w", err)
	}

	members, err := s.roomRepo.GetMembers(ctx, roomId)
	if err != nil {
		return RelayResponse{}, fmt.Errorf("failed to get members: %w", err)
	}

	return RelayResponse{Conns: s.getPeers(ctx, room.Others(members, params.SenderId))}, nil
}

// TouchMember keeps the room of an idle connection from expiring. Connections
// outside a room are ignored.
func (s service) TouchMember(ctx context.Context, connectionId string) error {
	roomId, err := s.roomRepo.GetRoomId(ctx, connectionId)
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	if roomId == "" {
		return nil
	}

	if err := s.roomRepo.RefreshRoom(ctx, roomId); err != nil {
		return fmt.Errorf("failed to refresh room: %w", err)
	}

	return nil
}
