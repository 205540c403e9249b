package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/tandem/internal/presence"
	"github.com/sharetube/tandem/internal/relayclient"
	"github.com/sharetube/tandem/pkg/protocol"
)

type JoinResponse struct {
	RoomId string
	// Partner is nil when the room was empty apart from us.
	Partner *presence.Partner
}

func ackError(code string) error {
	switch code {
	case protocol.ErrCodeRoomAlreadyActive:
		return ErrRoomAlreadyActive
	case protocol.ErrCodeRoomNotFound:
		return ErrRoomNotFound
	case protocol.ErrCodeRoomFull:
		return ErrRoomFull
	case protocol.ErrCodeInvalidPayload:
		return ErrInvalidRoomId
	default:
		return fmt.Errorf("relay rejected request: %s", code)
	}
}

func toPartner(p *protocol.Partner) *presence.Partner {
	if p == nil {
		return nil
	}

	return &presence.Partner{DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}
}

func (s *Session) enter(ctx context.Context, messageType, roomId string) (JoinResponse, error) {
	ack, err := s.transport.Request(ctx, messageType, protocol.RoomRequest{
		RoomId:      roomId,
		DisplayName: s.cfg.DisplayName,
		AvatarURL:   s.cfg.AvatarURL,
	})
	if err != nil {
		return JoinResponse{}, fmt.Errorf("failed to send %s: %w", messageType, err)
	}

	if !ack.Success {
		return JoinResponse{}, ackError(ack.Error)
	}

	if ack.RoomId != "" {
		roomId = ack.RoomId
	}

	return JoinResponse{RoomId: roomId, Partner: toPartner(ack.Partner)}, nil
}

// pendingEntry is a create or join waiting for its ack.
type pendingEntry struct {
	roomId    string
	cancel    context.CancelFunc
	abandoned bool
	// leaveSent is set once the relay was told about the abandon.
	leaveSent bool
}

// begin reserves the session for one create or join. The returned ctx is
// cancelled when Leave abandons the request.
func (s *Session) begin(ctx context.Context, roomId string) (context.Context, *pendingEntry, error) {
	s.mu.Lock()
	if s.roomId != "" || s.pending != nil {
		s.mu.Unlock()
		return nil, nil, ErrAlreadyInRoom
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &pendingEntry{roomId: roomId, cancel: cancel}
	s.pending = p
	s.mu.Unlock()

	s.presence.Fire(ctx, presence.EventConnect)

	return ctx, p, nil
}

func (s *Session) finish(ctx context.Context, p *pendingEntry, resp JoinResponse, err error) error {
	defer p.cancel()

	s.mu.Lock()
	s.pending = nil
	abandoned, leaveSent := p.abandoned, p.leaveSent
	if !abandoned && err == nil {
		s.roomId = resp.RoomId
	}
	s.mu.Unlock()

	if abandoned {
		if err == nil && !leaveSent {
			s.sendLeave(resp.RoomId)
		}
		return ErrAbandoned
	}

	if err != nil {
		s.presence.Fire(ctx, presence.EventFailed)
		return err
	}

	opts := []presence.Option{presence.WithRoom(resp.RoomId)}
	if resp.Partner != nil {
		opts = append(opts, presence.WithPartner(*resp.Partner))
	}
	s.presence.Fire(ctx, presence.EventConnected, opts...)

	return nil
}

// abandon cancels an outstanding create or join. It reports false when
// nothing was pending.
func (s *Session) abandon(ctx context.Context) bool {
	s.mu.Lock()
	p := s.pending
	if p == nil || p.abandoned {
		s.mu.Unlock()
		return false
	}
	p.abandoned = true
	s.mu.Unlock()

	p.cancel()
	s.presence.Fire(ctx, presence.EventLeft)

	// The request may already be on the wire, so the relay is told as well.
	if err := s.sendLeave(p.roomId); err == nil {
		s.mu.Lock()
		p.leaveSent = true
		s.mu.Unlock()
	}

	s.logger.Info("abandoned pending room request", "room_id", p.roomId)

	return true
}

// sendLeave returns ErrNotConnected and ErrClosed unwrapped. Callers treat
// them as success since the relay drops our membership with the connection.
func (s *Session) sendLeave(roomId string) error {
	err := s.transport.Emit(protocol.TypeLeaveRoom, protocol.LeaveRoom{RoomId: roomId})
	if errors.Is(err, relayclient.ErrNotConnected) || errors.Is(err, relayclient.ErrClosed) {
		s.logger.Info("left room while offline", "room_id", roomId)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to send leave: %w", err)
	}

	return nil
}

// Create opens a fresh room. An empty roomId is replaced by a generated one.
func (s *Session) Create(ctx context.Context, roomId string) (string, error) {
	roomId = protocol.NormalizeRoomId(roomId)
	if roomId == "" {
		roomId = s.roomIds.GenerateRandomString(generatedRoomIdLength)
	}

	reqCtx, p, err := s.begin(ctx, roomId)
	if err != nil {
		return "", err
	}

	resp, err := s.enter(reqCtx, protocol.TypeCreateRoom, roomId)
	if err := s.finish(ctx, p, resp, err); err != nil {
		return "", err
	}

	s.logger.Info("room created", "room_id", resp.RoomId)

	return resp.RoomId, nil
}

func (s *Session) Join(ctx context.Context, roomId string) (JoinResponse, error) {
	roomId = protocol.NormalizeRoomId(roomId)
	if roomId == "" {
		return JoinResponse{}, ErrInvalidRoomId
	}

	reqCtx, p, err := s.begin(ctx, roomId)
	if err != nil {
		return JoinResponse{}, err
	}

	resp, err := s.enter(reqCtx, protocol.TypeJoinRoom, roomId)
	if err := s.finish(ctx, p, resp, err); err != nil {
		return JoinResponse{}, err
	}

	s.logger.Info("room joined", "room_id", resp.RoomId, "partner", resp.Partner != nil)

	return resp, nil
}

// Leave forgets the room locally even when the relay cannot be told. A create
// or join still waiting for its ack is abandoned.
func (s *Session) Leave(ctx context.Context) error {
	if s.abandon(ctx) {
		return nil
	}

	roomId := s.RoomId()
	if roomId == "" {
		return ErrNotInRoom
	}

	s.setRoomId("")
	s.presence.Fire(ctx, presence.EventLeft)

	err := s.sendLeave(roomId)
	if errors.Is(err, relayclient.ErrNotConnected) || errors.Is(err, relayclient.ErrClosed) {
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info("room left", "room_id", roomId)

	return nil
}

// rejoin restores membership after the transport came back. A room that
// expired while we were away is created again under the same id.
func (s *Session) rejoin(ctx context.Context) {
	roomId := s.RoomId()
	if roomId == "" {
		return
	}

	resp, err := s.enter(ctx, protocol.TypeJoinRoom, roomId)
	if errors.Is(err, ErrRoomNotFound) {
		resp, err = s.enter(ctx, protocol.TypeCreateRoom, roomId)
	}
	if err != nil {
		s.logger.Warn("failed to rejoin room", "room_id", roomId, "error", err)
		s.setRoomId("")
		s.presence.Fire(ctx, presence.EventGaveUp)
		s.notify(Notification{Kind: NotifyGaveUp, RoomId: roomId, Err: err})
		return
	}

	opts := []presence.Option{presence.WithRoom(resp.RoomId)}
	if resp.Partner != nil {
		opts = append(opts, presence.WithPartner(*resp.Partner))
	}
	s.presence.Fire(ctx, presence.EventResumed, opts...)
	s.notify(Notification{Kind: NotifyRejoined, RoomId: resp.RoomId, Partner: resp.Partner})
}
