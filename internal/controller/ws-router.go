package controller

import (
	"github.com/sharetube/tandem/pkg/protocol"
	"github.com/sharetube/tandem/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw())
	mux.HandleError(c.handleWSError)

	// room
	wsrouter.Handle(mux, protocol.TypeCreateRoom, c.handleCreateRoom)
	wsrouter.Handle(mux, protocol.TypeJoinRoom, c.handleJoinRoom)
	wsrouter.Handle(mux, protocol.TypeLeaveRoom, c.handleLeaveRoom)

	// playback
	wsrouter.Handle(mux, protocol.TypeControl, c.handleControl)
	wsrouter.Handle(mux, protocol.TypeSyncSeek, c.handleSyncSeek)
	wsrouter.Handle(mux, protocol.TypeSyncTrack, c.handleSyncTrack)

	wsrouter.Handle(mux, protocol.TypeReaction, c.handleReaction)

	return mux
}
