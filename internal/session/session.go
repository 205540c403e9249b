// Package session drives one participant: it joins rooms over the relay,
// mirrors local actions to the partner and applies the partner's actions
// locally.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/tandem/internal/drift"
	"github.com/sharetube/tandem/internal/playback"
	"github.com/sharetube/tandem/internal/presence"
	"github.com/sharetube/tandem/internal/relayclient"
	"github.com/sharetube/tandem/pkg/protocol"
	"github.com/sharetube/tandem/pkg/randstr"
)

var (
	ErrNotInRoom         = errors.New("not in a room")
	ErrAlreadyInRoom     = errors.New("already in a room")
	ErrRoomAlreadyActive = errors.New("room already active")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room full")
	ErrInvalidRoomId     = errors.New("invalid room id")
	ErrNothingPlaying    = errors.New("nothing is playing")
	ErrTrackWithoutURI   = errors.New("track without uri")
	ErrAbandoned         = errors.New("left before the relay answered")
)

const generatedRoomIdLength = 6

type iTransport interface {
	Request(ctx context.Context, messageType string, payload any) (protocol.Ack, error)
	Emit(messageType string, payload any) error
	Incoming() <-chan *protocol.Message
	Status() <-chan relayclient.Status
}

type iPlayer interface {
	drift.Player
	Refresh(ctx context.Context) (playback.State, error)
	Snapshot() playback.State
	Position() int64
}

type iPresence interface {
	Fire(ctx context.Context, ev presence.Event, opts ...presence.Option)
	Snapshot() presence.State
}

type Config struct {
	DisplayName    string
	AvatarURL      string
	SettleInterval time.Duration
	TogetherWindow time.Duration
}

type Session struct {
	transport   iTransport
	player      iPlayer
	presence    iPresence
	compensator *drift.Compensator
	together    *drift.TogetherDetector
	roomIds     *randstr.Generator
	clock       clock.Clock
	cfg         Config
	logger      *slog.Logger

	mu      sync.Mutex
	roomId  string
	pending *pendingEntry

	notifications chan Notification
}

func New(transport iTransport, player iPlayer, machine iPresence, cfg Config, clk clock.Clock, logger *slog.Logger) *Session {
	return &Session{
		transport:     transport,
		player:        player,
		presence:      machine,
		compensator:   drift.NewCompensator(player, cfg.SettleInterval, clk),
		together:      drift.NewTogetherDetector(cfg.TogetherWindow),
		roomIds:       randstr.New([]byte(randstr.Unambiguous)),
		clock:         clk,
		cfg:           cfg,
		logger:        logger,
		notifications: make(chan Notification, 32),
	}
}

// Notifications carries what the user should see. It is never closed.
func (s *Session) Notifications() <-chan Notification {
	return s.notifications
}

// RoomId is empty outside a room.
func (s *Session) RoomId() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roomId
}

func (s *Session) setRoomId(roomId string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomId = roomId
}

func (s *Session) now() int64 {
	return s.clock.Now().UnixMilli()
}

func (s *Session) notify(n Notification) {
	select {
	case s.notifications <- n:
	default:
		s.logger.Debug("notification dropped", "kind", n.Kind)
	}
}
