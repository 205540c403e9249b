package room

import (
	"context"
	"fmt"

	"github.com/sharetube/tandem/internal/repository/connection"
)

type ConnectMemberParams struct {
	ConnectionId string
	Peer         connection.Peer
}

func (s service) ConnectMember(ctx context.Context, params *ConnectMemberParams) error {
	if err := s.connRepo.Add(params.ConnectionId, params.Peer); err != nil {
		return fmt.Errorf("failed to add connection: %w", err)
	}

	s.logger.DebugContext(ctx, "member connected")

	return nil
}

type DisconnectMemberParams struct {
	ConnectionId string
}

type DisconnectMemberResponse struct {
	RoomId string
	// Conns are the remaining members of RoomId.
	Conns []connection.Peer
}

// DisconnectMember drops every trace of the connection. It is safe to call for
// a connection that never joined a room.
func (s service) DisconnectMember(ctx context.Context, params *DisconnectMemberParams) (DisconnectMemberResponse, error) {
	if _, err := s.connRepo.Remove(params.ConnectionId); err != nil {
		s.logger.DebugContext(ctx, "connection already removed", "error", err)
	}

	resp, err := s.roomRepo.RemoveConnection(ctx, params.ConnectionId)
	if err != nil {
		return DisconnectMemberResponse{}, fmt.Errorf("failed to remove connection from room: %w", err)
	}

	if resp.RoomId == "" {
		return DisconnectMemberResponse{}, nil
	}

	return DisconnectMemberResponse{
		RoomId: resp.RoomId,
		Conns:  s.getPeers(ctx, resp.Remaining),
	}, nil
}
