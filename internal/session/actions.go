package session

import (
	"context"
	"fmt"

	"github.com/sharetube/tandem/pkg/protocol"
)

func (s *Session) emit(messageType string, payload any) error {
	if err := s.transport.Emit(messageType, payload); err != nil {
		return fmt.Errorf("failed to send %s: %w", messageType, err)
	}

	return nil
}

func (s *Session) requireRoom() (string, error) {
	roomId := s.RoomId()
	if roomId == "" {
		return "", ErrNotInRoom
	}

	return roomId, nil
}

func (s *Session) Play(ctx context.Context) error {
	roomId, err := s.requireRoom()
	if err != nil {
		return err
	}

	if err := s.player.Play(ctx); err != nil {
		return err
	}

	if s.together.Local(s.clock.Now()) {
		s.notify(Notification{Kind: NotifyPlayedTogether, RoomId: roomId})
	}

	progress := s.player.Position()
	return s.emit(protocol.TypeControl, protocol.Control{
		Event:      protocol.ControlPlay,
		RoomId:     roomId,
		Timestamp:  s.now(),
		ProgressMs: &progress,
	})
}

func (s *Session) Pause(ctx context.Context) error {
	roomId, err := s.requireRoom()
	if err != nil {
		return err
	}

	if err := s.player.Pause(ctx); err != nil {
		return err
	}

	progress := s.player.Position()
	return s.emit(protocol.TypeControl, protocol.Control{
		Event:      protocol.ControlPause,
		RoomId:     roomId,
		Timestamp:  s.now(),
		ProgressMs: &progress,
	})
}

func (s *Session) Seek(ctx context.Context, positionMs int64) error {
	roomId, err := s.requireRoom()
	if err != nil {
		return err
	}

	positionMs = max(0, positionMs)
	if err := s.player.Seek(ctx, positionMs); err != nil {
		return err
	}

	return s.emit(protocol.TypeSyncSeek, protocol.Seek{
		RoomId:     roomId,
		PositionMs: &positionMs,
		Timestamp:  s.now(),
	})
}

func (s *Session) ChangeTrack(ctx context.Context, uri, name string) error {
	roomId, err := s.requireRoom()
	if err != nil {
		return err
	}

	if err := s.player.ChangeTrack(ctx, uri, name); err != nil {
		return err
	}

	return s.emit(protocol.TypeSyncTrack, protocol.Track{
		RoomId:    roomId,
		URI:       uri,
		TrackName: name,
		Timestamp: s.now(),
	})
}

// ShareCurrentTrack announces whatever the local player switched to on its
// own, for example after skipping to the next queued track.
func (s *Session) ShareCurrentTrack(ctx context.Context) error {
	roomId, err := s.requireRoom()
	if err != nil {
		return err
	}

	state, err := s.player.Refresh(ctx)
	if err != nil {
		return err
	}

	if state.TrackURI == "" {
		return ErrNothingPlaying
	}

	return s.emit(protocol.TypeSyncTrack, protocol.Track{
		RoomId:    roomId,
		URI:       state.TrackURI,
		TrackName: state.TrackName,
		Timestamp: s.now(),
	})
}

func (s *Session) React(emoji string) error {
	roomId, err := s.requireRoom()
	if err != nil {
		return err
	}

	return s.emit(protocol.TypeReaction, protocol.Reaction{
		RoomId:    roomId,
		Emoji:     emoji,
		Timestamp: s.now(),
	})
}
