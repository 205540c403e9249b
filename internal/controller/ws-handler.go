package controller

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/sharetube/tandem/internal/service/room"
	"github.com/sharetube/tandem/pkg/protocol"
)

func (c controller) notifyLeft(ctx context.Context, leftRoom *room.LeftRoom) {
	if leftRoom == nil {
		return
	}

	c.broadcast(ctx, leftRoom.Conns, &Output{Type: protocol.TypePartnerLeft})
}

func (c controller) handleCreateRoom(ctx context.Context, _ *websocket.Conn, input protocol.RoomRequest) error {
	input.RoomId = protocol.NormalizeRoomId(input.RoomId)
	if errs, ok := c.validate.Validate(input); !ok {
		c.reply(ctx, protocol.Ack{Success: false, RoomId: input.RoomId, Error: protocol.ErrCodeInvalidPayload})
		return c.validationError(errs)
	}

	createRoomResp, err := c.roomService.CreateRoom(ctx, &room.CreateRoomParams{
		ConnectionId: c.getConnectionIdFromCtx(ctx),
		RoomId:       input.RoomId,
		DisplayName:  input.DisplayName,
		AvatarURL:    input.AvatarURL,
	})
	if err != nil {
		c.reply(ctx, protocol.Ack{Success: false, RoomId: input.RoomId, Error: errorCode(err)})
		return fmt.Errorf("failed to create room: %w", err)
	}

	c.notifyLeft(ctx, createRoomResp.LeftRoom)
	c.reply(ctx, protocol.Ack{Success: true, RoomId: createRoomResp.RoomId})

	return nil
}

func (c controller) handleJoinRoom(ctx context.Context, _ *websocket.Conn, input protocol.RoomRequest) error {
	input.RoomId = protocol.NormalizeRoomId(input.RoomId)
	if errs, ok := c.validate.Validate(input); !ok {
		c.reply(ctx, protocol.Ack{Success: false, RoomId: input.RoomId, Error: protocol.ErrCodeInvalidPayload})
		return c.validationError(errs)
	}

	joinRoomResp, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		ConnectionId: c.getConnectionIdFromCtx(ctx),
		RoomId:       input.RoomId,
		DisplayName:  input.DisplayName,
		AvatarURL:    input.AvatarURL,
	})
	if err != nil {
		c.reply(ctx, protocol.Ack{Success: false, RoomId: input.RoomId, Error: errorCode(err)})
		return fmt.Errorf("failed to join room: %w", err)
	}

	c.notifyLeft(ctx, joinRoomResp.LeftRoom)

	ack := protocol.Ack{Success: true, RoomId: joinRoomResp.RoomId}
	if joinRoomResp.Partner != nil {
		ack.Partner = &protocol.Partner{
			DisplayName: joinRoomResp.Partner.DisplayName,
			AvatarURL:   joinRoomResp.Partner.AvatarURL,
		}
	}
	c.reply(ctx, ack)

	c.broadcast(ctx, joinRoomResp.Conns, &Output{
		Type: protocol.TypePartnerJoined,
		Payload: protocol.Partner{
			DisplayName: input.DisplayName,
			AvatarURL:   input.AvatarURL,
		},
	})

	return nil
}

func (c controller) handleLeaveRoom(ctx context.Context, _ *websocket.Conn, input protocol.LeaveRoom) error {
	if errs, ok := c.validate.Validate(input); !ok {
		return c.validationError(errs)
	}

	leaveRoomResp, err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
		ConnectionId: c.getConnectionIdFromCtx(ctx),
		RoomId:       input.RoomId,
	})
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	c.broadcast(ctx, leaveRoomResp.Conns, &Output{Type: protocol.TypePartnerLeft})

	return nil
}

// relay forwards payload under messageType to the sender's partner.
func (c controller) relay(ctx context.Context, roomId, messageType string, payload any) error {
	relayResp, err := c.roomService.Relay(ctx, &room.RelayParams{
		SenderId: c.getConnectionIdFromCtx(ctx),
		RoomId:   roomId,
	})
	if err != nil {
		return fmt.Errorf("failed to relay %s: %w", messageType, err)
	}

	c.broadcast(ctx, relayResp.Conns, &Output{Type: messageType, Payload: payload})

	return nil
}

func (c controller) handleControl(ctx context.Context, _ *websocket.Conn, input protocol.Control) error {
	if errs, ok := c.validate.Validate(input); !ok {
		return c.validationError(errs)
	}

	input.RoomId = protocol.NormalizeRoomId(input.RoomId)
	messageType := protocol.TypeSyncPause
	if input.Event == protocol.ControlPlay {
		messageType = protocol.TypeSyncPlay
	}

	return c.relay(ctx, input.RoomId, messageType, protocol.SyncState{
		RoomId:     input.RoomId,
		Timestamp:  input.Timestamp,
		ProgressMs: input.ProgressMs,
	})
}

func (c controller) handleSyncSeek(ctx context.Context, _ *websocket.Conn, input protocol.Seek) error {
	if errs, ok := c.validate.Validate(input); !ok {
		return c.validationError(errs)
	}

	input.RoomId = protocol.NormalizeRoomId(input.RoomId)

	return c.relay(ctx, input.RoomId, protocol.TypeSyncSeek, input)
}

func (c controller) handleSyncTrack(ctx context.Context, _ *websocket.Conn, input protocol.Track) error {
	if errs, ok := c.validate.Validate(input); !ok {
		return c.validationError(errs)
	}

	input.RoomId = protocol.NormalizeRoomId(input.RoomId)

	return c.relay(ctx, input.RoomId, protocol.TypeSyncTrack, input)
}

func (c controller) handleReaction(ctx context.Context, _ *websocket.Conn, input protocol.Reaction) error {
	if errs, ok := c.validate.Validate(input); !ok {
		return c.validationError(errs)
	}

	input.RoomId = protocol.NormalizeRoomId(input.RoomId)

	return c.relay(ctx, input.RoomId, protocol.TypeReaction, input)
}
