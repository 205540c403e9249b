package room

import (
	"context"
	"log/slog"

	"github.com/sharetube/tandem/internal/repository/connection"
	"github.com/sharetube/tandem/internal/repository/room"
)

var (
	ErrRoomAlreadyActive = room.ErrRoomAlreadyActive
	ErrRoomNotFound      = room.ErrRoomNotFound
	ErrRoomFull          = room.ErrRoomFull
	ErrNotMember         = room.ErrNotMember
)

type iRoomRepo interface {
	CreateRoom(context.Context, *room.CreateRoomParams) error
	JoinRoom(context.Context, *room.JoinRoomParams) ([]room.Member, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	RemoveConnection(context.Context, string) (room.RemoveConnectionResponse, error)
	GetRoomId(context.Context, string) (string, error)
	GetMembers(context.Context, string) ([]room.Member, error)
	RefreshRoom(context.Context, string) error
}

type iConnRepo interface {
	Add(string, connection.Peer) error
	Remove(string) (connection.Peer, error)
	Get(string) (connection.Peer, error)
}

type service struct {
	roomRepo iRoomRepo
	connRepo iConnRepo
	logger   *slog.Logger
}

func NewService(roomRepo iRoomRepo, connRepo iConnRepo, logger *slog.Logger) *service {
	return &service{
		roomRepo: roomRepo,
		connRepo: connRepo,
		logger:   logger,
	}
}

// getPeers resolves members to their live peers. Members without a local peer
// are skipped.
func (s service) getPeers(ctx context.Context, members []room.Member) []connection.Peer {
	peers := make([]connection.Peer, 0, len(members))
	for _, member := range members {
		peer, err := s.connRepo.Get(member.ConnectionId)
		if err != nil {
			s.logger.WarnContext(ctx, "member has no local connection", "connection_id", member.ConnectionId, "error", err)
			continue
		}

		peers = append(peers, peer)
	}

	return peers
}
