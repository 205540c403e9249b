package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/sharetube/tandem/internal/repository/connection"
	"github.com/sharetube/tandem/internal/service/room"
	"github.com/sharetube/tandem/pkg/protocol"
	"github.com/sharetube/tandem/pkg/validator"
	"github.com/sharetube/tandem/pkg/wsrouter"
)

var ErrValidation = errors.New("validation failed")

type Output struct {
	Type    string `json:"type"`
	AckId   string `json:"ackId,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// broadcast is best-effort. A peer with a full buffer misses the message.
func (c controller) broadcast(ctx context.Context, conns []connection.Peer, output *Output) {
	for _, conn := range conns {
		if err := conn.Send(output); err != nil {
			c.logger.WarnContext(ctx, "message dropped", "type", output.Type, "error", err)
		}
	}
}

func (c controller) reply(ctx context.Context, ack protocol.Ack) {
	peer := c.getPeerFromCtx(ctx)
	if peer == nil {
		c.logger.ErrorContext(ctx, "no peer in context")
		return
	}

	if err := peer.Send(&Output{
		Type:    protocol.TypeAck,
		AckId:   wsrouter.GetAckIdFromCtx(ctx),
		Payload: ack,
	}); err != nil {
		c.logger.WarnContext(ctx, "ack dropped", "error", err)
	}
}

func (c controller) validationError(errs []validator.ValidationError) error {
	return fmt.Errorf("%w: %v", ErrValidation, errs)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomAlreadyActive):
		return protocol.ErrCodeRoomAlreadyActive
	case errors.Is(err, room.ErrRoomNotFound):
		return protocol.ErrCodeRoomNotFound
	case errors.Is(err, room.ErrRoomFull):
		return protocol.ErrCodeRoomFull
	case errors.Is(err, ErrValidation), errors.Is(err, wsrouter.ErrInvalidPayload):
		return protocol.ErrCodeInvalidPayload
	default:
		return protocol.ErrCodeInternal
	}
}

func expectsAck(messageType string) bool {
	return messageType == protocol.TypeCreateRoom || messageType == protocol.TypeJoinRoom
}

// handleWSError drops the offending message. Requests that expect an ack get
// one so the client does not wait for its timeout.
func (c controller) handleWSError(ctx context.Context, _ *websocket.Conn, err error) {
	messageType := wsrouter.GetMessageTypeFromCtx(ctx)

	if errors.Is(err, wsrouter.ErrInvalidPayload) && expectsAck(messageType) {
		c.reply(ctx, protocol.Ack{Success: false, Error: protocol.ErrCodeInvalidPayload})
	}

	switch {
	case errors.Is(err, wsrouter.ErrMalformedMessage),
		errors.Is(err, wsrouter.ErrUnknownMessageType),
		errors.Is(err, wsrouter.ErrInvalidPayload),
		errors.Is(err, ErrValidation),
		errors.Is(err, room.ErrNotMember):
		c.logger.InfoContext(ctx, "message dropped", "message_type", messageType, "error", err)
	case errors.Is(err, room.ErrRoomAlreadyActive),
		errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, room.ErrRoomFull):
		c.logger.InfoContext(ctx, "request rejected", "message_type", messageType, "error", err)
	default:
		c.logger.ErrorContext(ctx, "failed to handle message", "message_type", messageType, "error", err)
	}
}
