package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/tandem/internal/repository/room"
)

const (
	modeCreate = "create"
	modeJoin   = "join"
)

func (r repo) runJoin(ctx context.Context, mode, roomId string, member room.Member) error {
	res, err := r.joinScript.Run(ctx, r.rc,
		[]string{r.getMemberListKey(roomId), r.getConnRoomKey(member.ConnectionId), r.getMemberKey(member.ConnectionId)},
		member.ConnectionId, roomId, r.membersLimit, mode, r.ttlSeconds(), member.DisplayName, member.AvatarURL,
	).Text()
	if err != nil {
		return fmt.Errorf("failed to run join script: %w", err)
	}

	switch res {
	case "OK":
		return nil
	case "ACTIVE":
		return room.ErrRoomAlreadyActive
	case "NOT_FOUND":
		return room.ErrRoomNotFound
	case "FULL":
		return room.ErrRoomFull
	default:
		return fmt.Errorf("unexpected join script result %q", res)
	}
}

func (r repo) CreateRoom(ctx context.Context, params *room.CreateRoomParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	if err := r.runJoin(ctx, modeCreate, params.RoomId, params.Member); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}

func (r repo) JoinRoom(ctx context.Context, params *room.JoinRoomParams) ([]room.Member, error) {
	r.logger.DebugContext(ctx, "called", "params", params)
	if err := r.runJoin(ctx, modeJoin, params.RoomId, params.Member); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	members, err := r.GetMembers(ctx, params.RoomId)
	if err != nil {
		return nil, err
	}

	return room.Others(members, params.Member.ConnectionId), nil
}

func (r repo) LeaveRoom(ctx context.Context, params *room.LeaveRoomParams) (room.LeaveRoomResponse, error) {
	r.logger.DebugContext(ctx, "called", "params", params)
	removed, err := r.leaveScript.Run(ctx, r.rc,
		[]string{r.getMemberListKey(params.RoomId), r.getConnRoomKey(params.ConnectionId), r.getMemberKey(params.ConnectionId)},
		params.ConnectionId, params.RoomId,
	).Int()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return room.LeaveRoomResponse{}, fmt.Errorf("failed to run leave script: %w", err)
	}

	remaining, err := r.GetMembers(ctx, params.RoomId)
	if err != nil {
		return room.LeaveRoomResponse{}, err
	}

	return room.LeaveRoomResponse{Left: removed == 1, Remaining: remaining}, nil
}

func (r repo) RemoveConnection(ctx context.Context, connectionId string) (room.RemoveConnectionResponse, error) {
	r.logger.DebugContext(ctx, "called", "connection_id", connectionId)
	roomId, err := r.GetRoomId(ctx, connectionId)
	if err != nil {
		return room.RemoveConnectionResponse{}, err
	}

	if roomId == "" {
		return room.RemoveConnectionResponse{}, nil
	}

	resp, err := r.LeaveRoom(ctx, &room.LeaveRoomParams{RoomId: roomId, ConnectionId: connectionId})
	if err != nil {
		return room.RemoveConnectionResponse{}, err
	}

	return room.RemoveConnectionResponse{RoomId: roomId, Remaining: resp.Remaining}, nil
}

func (r repo) GetMembers(ctx context.Context, roomId string) ([]room.Member, error) {
	r.logger.DebugContext(ctx, "called", "room_id", roomId)
	connectionIds, err := r.rc.SMembers(ctx, r.getMemberListKey(roomId)).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	if len(connectionIds) == 0 {
		return []room.Member{}, nil
	}

	pipe := r.rc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(connectionIds))
	for i, connectionId := range connectionIds {
		cmds[i] = pipe.HGetAll(ctx, r.getMemberKey(connectionId))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, fmt.Errorf("failed to get members: %w", err)
	}

	members := make([]room.Member, 0, len(connectionIds))
	for i, cmd := range cmds {
		var member room.Member
		if err := cmd.Scan(&member); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		member.ConnectionId = connectionIds[i]
		members = append(members, member)
	}

	return members, nil
}

// RefreshRoom restarts the ttl of the room and of all its members. A missing
// room is not an error.
func (r repo) RefreshRoom(ctx context.Context, roomId string) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomId)
	if err := r.refreshScript.Run(ctx, r.rc, []string{r.getMemberListKey(roomId)}, r.ttlSeconds()).Err(); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to run refresh script: %w", err)
	}

	return nil
}
