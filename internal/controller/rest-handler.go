package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sharetube/tandem/internal/service/room"
	"github.com/sharetube/tandem/pkg/ctxlogger"
	"github.com/sharetube/tandem/pkg/protocol"
	"github.com/sharetube/tandem/pkg/rest"
	"github.com/sharetube/tandem/pkg/wspeer"
)

func (c controller) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	getRoomResp, err := c.roomService.GetRoom(r.Context(), roomId)
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to get room", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, getRoomResp)
}

// serveWS owns a connection from upgrade to disconnect.
func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	connectionId := uuid.NewString()
	peer := wspeer.New(conn, c.sendBuffer)

	ctx := context.WithoutCancel(r.Context())
	ctx = ctxlogger.AppendCtx(ctx, slog.String("connection_id", connectionId))
	ctx = context.WithValue(ctx, connectionIdCtxKey, connectionId)
	ctx = context.WithValue(ctx, peerCtxKey, peer)

	if err := c.roomService.ConnectMember(ctx, &room.ConnectMemberParams{
		ConnectionId: connectionId,
		Peer:         peer,
	}); err != nil {
		c.logger.ErrorContext(ctx, "failed to connect member", "error", err)
		conn.Close()
		return
	}

	go peer.WritePump()
	defer c.disconnect(ctx, connectionId, peer)

	c.logger.InfoContext(ctx, "connection opened")

	wspeer.PrepareRead(conn, func() {
		if err := c.roomService.TouchMember(ctx, connectionId); err != nil {
			c.logger.WarnContext(ctx, "failed to touch member", "error", err)
		}
	})
	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.InfoContext(ctx, "connection lost", "error", err)
		}
	}
}

func (c controller) disconnect(ctx context.Context, connectionId string, peer *wspeer.Peer) {
	peer.Close()

	disconnectResp, err := c.roomService.DisconnectMember(ctx, &room.DisconnectMemberParams{
		ConnectionId: connectionId,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to disconnect member", "error", err)
		return
	}

	c.broadcast(ctx, disconnectResp.Conns, &Output{Type: protocol.TypePartnerLeft})
	c.logger.InfoContext(ctx, "connection closed", "room_id", disconnectResp.RoomId)
}
