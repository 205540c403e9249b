// Package inmemory is the in-process room registry. One mutex guards every
// room so a capacity check and the insert that follows it are atomic.
package inmemory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/sharetube/tandem/internal/repository/room"
	"golang.org/x/exp/maps"
)

type repo struct {
	mu           sync.Mutex
	rooms        map[string]map[string]room.Member
	connRoom     map[string]string
	membersLimit int
	logger       *slog.Logger
}

func NewRepo(membersLimit int, logger *slog.Logger) *repo {
	return &repo{
		rooms:        make(map[string]map[string]room.Member),
		connRoom:     make(map[string]string),
		membersLimit: membersLimit,
		logger:       logger,
	}
}

func (r *repo) members(roomId string) []room.Member {
	byConn := r.rooms[roomId]
	ids := maps.Keys(byConn)
	sort.Strings(ids)

	members := make([]room.Member, 0, len(ids))
	for _, id := range ids {
		members = append(members, byConn[id])
	}

	return members
}

func (r *repo) insert(roomId string, member room.Member) {
	byConn, ok := r.rooms[roomId]
	if !ok {
		byConn = make(map[string]room.Member)
		r.rooms[roomId] = byConn
	}

	byConn[member.ConnectionId] = member
	r.connRoom[member.ConnectionId] = roomId
}

func (r *repo) CreateRoom(ctx context.Context, params *room.CreateRoomParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.rooms[params.RoomId]) > 0 {
		r.logger.DebugContext(ctx, "returned", "error", room.ErrRoomAlreadyActive)
		return room.ErrRoomAlreadyActive
	}

	r.insert(params.RoomId, params.Member)

	return nil
}

func (r *repo) JoinRoom(ctx context.Context, params *room.JoinRoomParams) ([]room.Member, error) {
	r.logger.DebugContext(ctx, "called", "params", params)
	r.mu.Lock()
	defer r.mu.Unlock()

	byConn := r.rooms[params.RoomId]
	if _, ok := byConn[params.Member.ConnectionId]; ok {
		return room.Others(r.members(params.RoomId), params.Member.ConnectionId), nil
	}

	if len(byConn) == 0 {
		r.logger.DebugContext(ctx, "returned", "error", room.ErrRoomNotFound)
		return nil, room.ErrRoomNotFound
	}

	if len(byConn) >= r.membersLimit {
		r.logger.DebugContext(ctx, "returned", "error", room.ErrRoomFull)
		return nil, room.ErrRoomFull
	}

	others := r.members(params.RoomId)
	r.insert(params.RoomId, params.Member)

	return others, nil
}

func (r *repo) leave(roomId, connectionId string) room.LeaveRoomResponse {
	byConn := r.rooms[roomId]
	if _, ok := byConn[connectionId]; !ok {
		return room.LeaveRoomResponse{Remaining: r.members(roomId)}
	}

	delete(byConn, connectionId)
	if r.connRoom[connectionId] == roomId {
		delete(r.connRoom, connectionId)
	}

	if len(byConn) == 0 {
		delete(r.rooms, roomId)
	}

	return room.LeaveRoomResponse{Left: true, Remaining: r.members(roomId)}
}

func (r *repo) LeaveRoom(ctx context.Context, params *room.LeaveRoomParams) (room.LeaveRoomResponse, error) {
	r.logger.DebugContext(ctx, "called", "params", params)
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leave(params.RoomId, params.ConnectionId), nil
}

func (r *repo) RemoveConnection(ctx context.Context, connectionId string) (room.RemoveConnectionResponse, error) {
	r.logger.DebugContext(ctx, "called", "connection_id", connectionId)
	r.mu.Lock()
	defer r.mu.Unlock()

	roomId, ok := r.connRoom[connectionId]
	if !ok {
		return room.RemoveConnectionResponse{}, nil
	}

	resp := r.leave(roomId, connectionId)

	return room.RemoveConnectionResponse{RoomId: roomId, Remaining: resp.Remaining}, nil
}

func (r *repo) GetRoomId(ctx context.Context, connectionId string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.connRoom[connectionId], nil
}

func (r *repo) GetMembers(ctx context.Context, roomId string) ([]room.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.members(roomId), nil
}

// RefreshRoom is a no-op: rooms in memory live until their last member leaves.
func (r *repo) RefreshRoom(ctx context.Context, roomId string) error {
	return nil
}
