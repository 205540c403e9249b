package session

import (
	"context"
	"time"

	"github.com/sharetube/tandem/internal/drift"
	"github.com/sharetube/tandem/internal/presence"
	"github.com/sharetube/tandem/internal/relayclient"
	"github.com/sharetube/tandem/pkg/protocol"
)

// Run handles relayed events and transport changes until ctx is done or the
// transport stops for good.
func (s *Session) Run(ctx context.Context) error {
	incoming := s.transport.Incoming()
	status := s.transport.Status()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			s.handleMessage(ctx, msg)
		case st, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			s.handleStatus(ctx, st)
		}
	}
}

func (s *Session) handleStatus(ctx context.Context, st relayclient.Status) {
	s.logger.Info("transport status", "status", st.String())

	switch st {
	case relayclient.StatusDropped:
		s.presence.Fire(ctx, presence.EventDropped)
		if s.RoomId() != "" {
			s.notify(Notification{Kind: NotifyDropped, RoomId: s.RoomId()})
		}
	case relayclient.StatusResumed:
		s.rejoin(ctx)
	case relayclient.StatusGaveUp:
		roomId := s.RoomId()
		s.setRoomId("")
		s.presence.Fire(ctx, presence.EventGaveUp)
		s.notify(Notification{Kind: NotifyGaveUp, RoomId: roomId})
	}
}

func (s *Session) handleMessage(ctx context.Context, msg *protocol.Message) {
	receivedAt := s.clock.Now()
	logger := s.logger.With("message_type", msg.Type)

	switch msg.Type {
	case protocol.TypePartnerJoined:
		var partner protocol.Partner
		if err := msg.Decode(&partner); err != nil {
			logger.Warn("malformed event", "error", err)
			return
		}
		p := toPartner(&partner)
		s.presence.Fire(ctx, presence.EventPartnerJoined, presence.WithPartner(*p))
		s.notify(Notification{Kind: NotifyPartnerJoined, RoomId: s.RoomId(), Partner: p})
	case protocol.TypePartnerLeft:
		s.presence.Fire(ctx, presence.EventPartnerLeft)
		s.notify(Notification{Kind: NotifyPartnerLeft, RoomId: s.RoomId()})
	case protocol.TypeReaction:
		var reaction protocol.Reaction
		if err := msg.Decode(&reaction); err != nil {
			logger.Warn("malformed event", "error", err)
			return
		}
		if !s.inRoom(reaction.RoomId) {
			logger.Debug("event for another room", "room_id", reaction.RoomId)
			return
		}
		s.sampleLatency(ctx, receivedAt, reaction.Timestamp)
		s.notify(Notification{Kind: NotifyReaction, RoomId: reaction.RoomId, Emoji: reaction.Emoji})
	case protocol.TypeSyncPlay, protocol.TypeSyncPause, protocol.TypeSyncSeek, protocol.TypeSyncTrack:
		roomId, ev, err := decodeSync(msg)
		if err != nil {
			logger.Warn("malformed event", "error", err)
			return
		}
		if !s.inRoom(roomId) {
			logger.Debug("event for another room", "room_id", roomId)
			return
		}
		s.sampleLatency(ctx, receivedAt, ev.SenderTimestamp)
		s.apply(ctx, roomId, ev, receivedAt)
	default:
		logger.Debug("unhandled event")
	}
}

func decodeSync(msg *protocol.Message) (string, drift.Event, error) {
	switch msg.Type {
	case protocol.TypeSyncPlay, protocol.TypeSyncPause:
		var state protocol.SyncState
		if err := msg.Decode(&state); err != nil {
			return "", drift.Event{}, err
		}
		kind := drift.KindPlay
		if msg.Type == protocol.TypeSyncPause {
			kind = drift.KindPause
		}
		return state.RoomId, drift.Event{
			Kind:            kind,
			SenderTimestamp: state.Timestamp,
			PositionMs:      state.ProgressMs,
		}, nil
	case protocol.TypeSyncSeek:
		var seek protocol.Seek
		if err := msg.Decode(&seek); err != nil {
			return "", drift.Event{}, err
		}
		if seek.PositionMs == nil {
			return "", drift.Event{}, drift.ErrSeekWithoutPosition
		}
		return seek.RoomId, drift.Event{
			Kind:            drift.KindSeek,
			SenderTimestamp: seek.Timestamp,
			PositionMs:      seek.PositionMs,
		}, nil
	default:
		var track protocol.Track
		if err := msg.Decode(&track); err != nil {
			return "", drift.Event{}, err
		}
		if track.URI == "" {
			return "", drift.Event{}, ErrTrackWithoutURI
		}
		return track.RoomId, drift.Event{
			Kind:            drift.KindTrackChange,
			SenderTimestamp: track.Timestamp,
			TrackURI:        track.URI,
			TrackName:       track.TrackName,
		}, nil
	}
}

// inRoom drops events that were relayed before we left a room. The relay
// only stamps room ids the sender was a member of.
func (s *Session) inRoom(roomId string) bool {
	current := s.RoomId()
	return current != "" && (roomId == "" || protocol.NormalizeRoomId(roomId) == current)
}

func (s *Session) sampleLatency(ctx context.Context, receivedAt time.Time, senderTimestamp int64) {
	if senderTimestamp <= 0 {
		return
	}

	s.presence.Fire(ctx, presence.EventLatency, presence.WithLatency(drift.Lag(receivedAt.UnixMilli(), senderTimestamp)))
}

func (s *Session) apply(ctx context.Context, roomId string, ev drift.Event, receivedAt time.Time) {
	cmd, err := s.compensator.Apply(ctx, ev, receivedAt)
	if err != nil {
		s.logger.Warn("failed to apply relayed event", "kind", ev.Kind, "error", err)
		s.notify(Notification{Kind: NotifyError, RoomId: roomId, Command: cmd, Err: err})
		return
	}

	s.logger.Debug("applied relayed event", "kind", cmd.Kind, "lag_ms", cmd.LagMs, "target_ms", cmd.TargetMs)
	s.notify(Notification{Kind: NotifyApplied, RoomId: roomId, Command: cmd})

	if cmd.Kind == drift.KindPlay && s.together.Remote(receivedAt) {
		s.notify(Notification{Kind: NotifyPlayedTogether, RoomId: roomId})
	}
}
