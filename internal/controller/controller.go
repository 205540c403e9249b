package controller

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/sharetube/tandem/internal/service/room"
	"github.com/sharetube/tandem/pkg/validator"
	"github.com/sharetube/tandem/pkg/wsrouter"
)

type iRoomService interface {
	ConnectMember(context.Context, *room.ConnectMemberParams) error
	DisconnectMember(context.Context, *room.DisconnectMemberParams) (room.DisconnectMemberResponse, error)
	CreateRoom(context.Context, *room.CreateRoomParams) (room.CreateRoomResponse, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	Relay(context.Context, *room.RelayParams) (room.RelayResponse, error)
	TouchMember(context.Context, string) error
	GetRoom(context.Context, string) (room.GetRoomResponse, error)
}

type Config struct {
	// AllowedOrigins of "*" accepts any origin.
	AllowedOrigins []string
	SendBuffer     int
}

type controller struct {
	roomService    iRoomService
	upgrader       websocket.Upgrader
	validate       *validator.Validator
	wsmux          *wsrouter.WSRouter
	allowedOrigins []string
	sendBuffer     int
	logger         *slog.Logger
}

func NewController(roomService iRoomService, cfg *Config, logger *slog.Logger) *controller {
	c := &controller{
		roomService:    roomService,
		validate:       validator.NewValidator(),
		allowedOrigins: cfg.AllowedOrigins,
		sendBuffer:     cfg.SendBuffer,
		logger:         logger,
	}

	c.upgrader = websocket.Upgrader{
		CheckOrigin: c.checkOrigin,
	}
	c.wsmux = c.getWSRouter()

	return c
}

func (c controller) allowAnyOrigin() bool {
	return len(c.allowedOrigins) == 0 || slices.Contains(c.allowedOrigins, "*")
}

// checkOrigin lets through non-browser clients, which send no Origin header.
func (c controller) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || c.allowAnyOrigin() {
		return true
	}

	return slices.Contains(c.allowedOrigins, origin)
}
