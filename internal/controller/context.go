package controller

import (
	"context"

	"github.com/sharetube/tandem/internal/repository/connection"
)

type contextKey int

const (
	connectionIdCtxKey contextKey = iota
	peerCtxKey
)

func (c controller) getConnectionIdFromCtx(ctx context.Context) string {
	connectionId, ok := ctx.Value(connectionIdCtxKey).(string)
	if !ok {
		return ""
	}

	return connectionId
}

func (c controller) getPeerFromCtx(ctx context.Context) connection.Peer {
	peer, ok := ctx.Value(peerCtxKey).(connection.Peer)
	if !ok {
		return nil
	}

	return peer
}
