package session

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/tandem/internal/drift"
	"github.com/sharetube/tandem/internal/playback"
	"github.com/sharetube/tandem/internal/presence"
	"github.com/sharetube/tandem/internal/relayclient"
	"github.com/sharetube/tandem/pkg/protocol"
	"github.com/sharetube/tandem/pkg/randstr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.UnixMilli(1_700_000_000_000)

type sent struct {
	messageType string
	payload     any
}

type fakeTransport struct {
	mu       sync.Mutex
	requests []sent
	emitted  []sent
	replies  map[string][]protocol.Ack
	emitErr  error
	// hold, when set, keeps every Request waiting until it is closed.
	hold        chan struct{}
	honorCancel bool

	incoming chan *protocol.Message
	status   chan relayclient.Status
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		replies:  make(map[string][]protocol.Ack),
		incoming: make(chan *protocol.Message, 16),
		status:   make(chan relayclient.Status, 16),
	}
}

func (f *fakeTransport) reply(messageType string, ack protocol.Ack) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.replies[messageType] = append(f.replies[messageType], ack)
}

func (f *fakeTransport) Request(ctx context.Context, messageType string, payload any) (protocol.Ack, error) {
	f.mu.Lock()
	f.requests = append(f.requests, sent{messageType, payload})
	hold, honorCancel := f.hold, f.honorCancel
	f.mu.Unlock()

	if hold != nil {
		if honorCancel {
			select {
			case <-hold:
			case <-ctx.Done():
				return protocol.Ack{}, ctx.Err()
			}
		} else {
			<-hold
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	queue := f.replies[messageType]
	if len(queue) == 0 {
		return protocol.Ack{}, relayclient.ErrTimeout
	}
	f.replies[messageType] = queue[1:]

	return queue[0], nil
}

func (f *fakeTransport) Emit(messageType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, sent{messageType, payload})

	return nil
}

func (f *fakeTransport) Incoming() <-chan *protocol.Message { return f.incoming }

func (f *fakeTransport) Status() <-chan relayclient.Status { return f.status }

func (f *fakeTransport) requestTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		types = append(types, r.messageType)
	}

	return types
}

func (f *fakeTransport) setEmitErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.emitErr = err
}

func (f *fakeTransport) emittedMessages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]sent(nil), f.emitted...)
}

func (f *fakeTransport) lastEmitted() sent {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.emitted) == 0 {
		return sent{}
	}

	return f.emitted[len(f.emitted)-1]
}

func (f *fakeTransport) push(t *testing.T, messageType string, payload any) {
	t.Helper()

	msg, err := protocol.NewMessage(messageType, payload)
	require.NoError(t, err)
	f.incoming <- msg
}

type fixture struct {
	session   *Session
	transport *fakeTransport
	device    *playback.FakeDevice
	player    *playback.Controller
	presence  *presence.Machine
	clock     *clock.Mock
}

func newFixture(t *testing.T, initial playback.State) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewMock()
	clk.Set(epoch)

	device := playback.NewFakeDevice(initial)
	player := playback.NewController(device, playback.Config{PollInterval: time.Second}, clk, logger)
	_, err := player.Refresh(context.Background())
	require.NoError(t, err)

	machine := presence.New(logger)
	transport := newFakeTransport()
	s := New(transport, player, machine, Config{DisplayName: "Alice"}, clk, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go machine.Run(ctx)
	go s.Run(ctx)

	return &fixture{
		session:   s,
		transport: transport,
		device:    device,
		player:    player,
		presence:  machine,
		clock:     clk,
	}
}

func (f *fixture) enterRoom(t *testing.T, roomId string) {
	t.Helper()

	f.transport.reply(protocol.TypeCreateRoom, protocol.Ack{Success: true, RoomId: roomId})
	_, err := f.session.Create(context.Background(), roomId)
	require.NoError(t, err)
}

func waitForStatus(t *testing.T, m *presence.Machine, status presence.Status) presence.State {
	t.Helper()

	require.Eventually(t, func() bool {
		return m.Snapshot().Status == status
	}, 2*time.Second, 10*time.Millisecond)

	return m.Snapshot()
}

func waitForNotification(t *testing.T, s *Session, kind NotificationKind) Notification {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case n := <-s.Notifications():
			if n.Kind == kind {
				return n
			}
		case <-timeout:
			t.Fatalf("no %s notification", kind)
			return Notification{}
		}
	}
}

func TestCreateGeneratesRoomId(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.transport.reply(protocol.TypeCreateRoom, protocol.Ack{Success: true})

	roomId, err := f.session.Create(context.Background(), "")
	require.NoError(t, err)

	assert.Len(t, roomId, 6)
	for _, r := range roomId {
		assert.True(t, strings.ContainsRune(randstr.Unambiguous, r), "unexpected %q", r)
	}
	assert.Equal(t, roomId, f.session.RoomId())

	state := waitForStatus(t, f.presence, presence.StatusConnected)
	assert.Equal(t, roomId, state.RoomId)
	assert.False(t, state.PartnerPresent)
}

func TestJoinNormalizesAndReturnsPartner(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.transport.reply(protocol.TypeJoinRoom, protocol.Ack{
		Success: true,
		RoomId:  "AB12CD",
		Partner: &protocol.Partner{DisplayName: "Bob"},
	})

	resp, err := f.session.Join(context.Background(), " ab12cd ")
	require.NoError(t, err)
	assert.Equal(t, JoinResponse{RoomId: "AB12CD", Partner: &presence.Partner{DisplayName: "Bob"}}, resp)

	req := f.transport.requests[0]
	assert.Equal(t, protocol.TypeJoinRoom, req.messageType)
	assert.Equal(t, protocol.RoomRequest{RoomId: "AB12CD", DisplayName: "Alice"}, req.payload)

	state := waitForStatus(t, f.presence, presence.StatusConnected)
	assert.True(t, state.PartnerPresent)
	assert.Equal(t, "Bob", state.Partner.DisplayName)
}

func TestJoinRejected(t *testing.T) {
	tests := []struct {
		code string
		err  error
	}{
		{protocol.ErrCodeRoomNotFound, ErrRoomNotFound},
		{protocol.ErrCodeRoomFull, ErrRoomFull},
		{protocol.ErrCodeRoomAlreadyActive, ErrRoomAlreadyActive},
		{protocol.ErrCodeInvalidPayload, ErrInvalidRoomId},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f := newFixture(t, playback.State{})
			f.transport.reply(protocol.TypeJoinRoom, protocol.Ack{Error: tt.code})

			_, err := f.session.Join(context.Background(), "AB12CD")
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, f.session.RoomId())
		})
	}
}

func TestJoinTimeout(t *testing.T) {
	f := newFixture(t, playback.State{})

	_, err := f.session.Join(context.Background(), "AB12CD")
	assert.ErrorIs(t, err, relayclient.ErrTimeout)
	assert.Equal(t, presence.StatusDisconnected, waitForStatus(t, f.presence, presence.StatusDisconnected).Status)
}

func TestEnterWhileInRoom(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.enterRoom(t, "AB12CD")

	_, err := f.session.Join(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	_, err = f.session.Create(context.Background(), "")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestActionsRequireRoom(t *testing.T) {
	f := newFixture(t, playback.State{})
	ctx := context.Background()

	assert.ErrorIs(t, f.session.Play(ctx), ErrNotInRoom)
	assert.ErrorIs(t, f.session.Pause(ctx), ErrNotInRoom)
	assert.ErrorIs(t, f.session.Seek(ctx, 1000), ErrNotInRoom)
	assert.ErrorIs(t, f.session.ChangeTrack(ctx, "spotify:track:1", "One"), ErrNotInRoom)
	assert.ErrorIs(t, f.session.ShareCurrentTrack(ctx), ErrNotInRoom)
	assert.ErrorIs(t, f.session.React("🎉"), ErrNotInRoom)
	assert.ErrorIs(t, f.session.Leave(ctx), ErrNotInRoom)

	assert.Empty(t, f.device.Commands())
}

func TestLocalActionsEmitTimestampedEvents(t *testing.T) {
	f := newFixture(t, playback.State{TrackURI: "spotify:track:1", ProgressMs: 10000})
	f.enterRoom(t, "AB12CD")
	ctx := context.Background()
	ts := epoch.UnixMilli()

	require.NoError(t, f.session.Play(ctx))
	progress := int64(10000)
	assert.Equal(t, sent{protocol.TypeControl, protocol.Control{
		Event:      protocol.ControlPlay,
		RoomId:     "AB12CD",
		Timestamp:  ts,
		ProgressMs: &progress,
	}}, f.transport.lastEmitted())

	f.clock.Add(2 * time.Second)
	require.NoError(t, f.session.Pause(ctx))
	paused := int64(12000)
	assert.Equal(t, sent{protocol.TypeControl, protocol.Control{
		Event:      protocol.ControlPause,
		RoomId:     "AB12CD",
		Timestamp:  ts + 2000,
		ProgressMs: &paused,
	}}, f.transport.lastEmitted())

	require.NoError(t, f.session.Seek(ctx, -50))
	zero := int64(0)
	assert.Equal(t, sent{protocol.TypeSyncSeek, protocol.Seek{
		RoomId:     "AB12CD",
		PositionMs: &zero,
		Timestamp:  ts + 2000,
	}}, f.transport.lastEmitted())

	require.NoError(t, f.session.ChangeTrack(ctx, "spotify:track:2", "Two"))
	assert.Equal(t, sent{protocol.TypeSyncTrack, protocol.Track{
		RoomId:    "AB12CD",
		URI:       "spotify:track:2",
		TrackName: "Two",
		Timestamp: ts + 2000,
	}}, f.transport.lastEmitted())

	require.NoError(t, f.session.React("🎉"))
	assert.Equal(t, sent{protocol.TypeReaction, protocol.Reaction{
		RoomId:    "AB12CD",
		Emoji:     "🎉",
		Timestamp: ts + 2000,
	}}, f.transport.lastEmitted())

	assert.Equal(t, []string{"play", "pause", "seek:0", "track:spotify:track:2"}, f.device.Commands())
}

func TestShareCurrentTrack(t *testing.T) {
	f := newFixture(t, playback.State{TrackURI: "spotify:track:7", TrackName: "Seven", IsPlaying: true})
	f.enterRoom(t, "AB12CD")

	require.NoError(t, f.session.ShareCurrentTrack(context.Background()))
	assert.Equal(t, sent{protocol.TypeSyncTrack, protocol.Track{
		RoomId:    "AB12CD",
		URI:       "spotify:track:7",
		TrackName: "Seven",
		Timestamp: epoch.UnixMilli(),
	}}, f.transport.lastEmitted())
}

func TestShareCurrentTrackWhenIdle(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.enterRoom(t, "AB12CD")

	assert.ErrorIs(t, f.session.ShareCurrentTrack(context.Background()), ErrNothingPlaying)
}

func TestDecodeSyncRejectsIncompleteEvents(t *testing.T) {
	seek, err := protocol.NewMessage(protocol.TypeSyncSeek, protocol.Seek{RoomId: "AB12CD"})
	require.NoError(t, err)
	_, _, err = decodeSync(seek)
	assert.ErrorIs(t, err, drift.ErrSeekWithoutPosition)

	track, err := protocol.NewMessage(protocol.TypeSyncTrack, protocol.Track{RoomId: "AB12CD"})
	require.NoError(t, err)
	_, _, err = decodeSync(track)
	assert.ErrorIs(t, err, ErrTrackWithoutURI)
}

func TestEmitFailureIsReported(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.enterRoom(t, "AB12CD")
	f.transport.emitErr = relayclient.ErrSendBufferFull

	assert.ErrorIs(t, f.session.React("👍"), relayclient.ErrSendBufferFull)
}

func TestInboundPlayIsCompensated(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.enterRoom(t, "AB12CD")

	progress := int64(60000)
	f.transport.push(t, protocol.TypeSyncPlay, protocol.SyncState{
		RoomId:     "AB12CD",
		Timestamp:  epoch.UnixMilli() - 250,
		ProgressMs: &progress,
	})

	n := waitForNotification(t, f.session, NotifyApplied)
	assert.Equal(t, drift.Command{Kind: drift.KindPlay, LagMs: 250, TargetMs: 60250, HasTarget: true}, n.Command)
	assert.Equal(t, []string{"seek:60250", "play"}, f.device.Commands())

	require.Eventually(t, func() bool {
		return f.presence.Snapshot().EstimatedLatencyMs == 250
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInboundEvents(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.enterRoom(t, "AB12CD")
	ts := epoch.UnixMilli()

	f.transport.push(t, protocol.TypeSyncPause, protocol.SyncState{RoomId: "AB12CD", Timestamp: ts})
	waitForNotification(t, f.session, NotifyApplied)

	position := int64(5000)
	f.transport.push(t, protocol.TypeSyncSeek, protocol.Seek{RoomId: "AB12CD", PositionMs: &position, Timestamp: ts - 100})
	waitForNotification(t, f.session, NotifyApplied)

	f.transport.push(t, protocol.TypeSyncTrack, protocol.Track{RoomId: "AB12CD", URI: "spotify:track:3", TrackName: "Three", Timestamp: ts})
	waitForNotification(t, f.session, NotifyApplied)

	assert.Equal(t, []string{"pause", "seek:5100", "track:spotify:track:3"}, f.device.Commands())

	f.transport.push(t, protocol.TypeReaction, protocol.Reaction{RoomId: "AB12CD", Emoji: "🔥", Timestamp: ts})
	assert.Equal(t, "🔥", waitForNotification(t, f.session, NotifyReaction).Emoji)

	f.transport.push(t, protocol.TypePartnerJoined, protocol.Partner{DisplayName: "Bob"})
	assert.Equal(t, "Bob", waitForNotification(t, f.session, NotifyPartnerJoined).Partner.DisplayName)
	require.Eventually(t, func() bool {
		return f.presence.Snapshot().PartnerPresent
	}, 2*time.Second, 10*time.Millisecond)

	f.transport.push(t, protocol.TypePartnerLeft, nil)
	waitForNotification(t, f.session, NotifyPartnerLeft)
	require.Eventually(t, func() bool {
		return !f.presence.Snapshot().PartnerPresent
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInboundForAnotherRoomIsIgnored(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.enterRoom(t, "AB12CD")

	f.transport.push(t, protocol.TypeSyncPause, protocol.SyncState{RoomId: "OTHER1"})
	f.transport.push(t, protocol.TypeSyncPause, protocol.SyncState{RoomId: "AB12CD"})

	waitForNotification(t, f.session, NotifyApplied)
	assert.Equal(t, []string{"pause"}, f.device.Commands())
}

func TestLeave(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.enterRoom(t, "AB12CD")
	waitForStatus(t, f.presence, presence.StatusConnected)

	require.NoError(t, f.session.Leave(context.Background()))
	assert.Equal(t, sent{protocol.TypeLeaveRoom, protocol.LeaveRoom{RoomId: "AB12CD"}}, f.transport.lastEmitted())
	assert.Empty(t, f.session.RoomId())
	waitForStatus(t, f.presence, presence.StatusDisconnected)
}

// startHeldCreate runs Create against a transport that holds the request, and
// returns once the request is on the wire.
func startHeldCreate(t *testing.T, f *fixture, honorCancel bool) (release func(), result <-chan error) {
	t.Helper()

	hold := make(chan struct{})
	f.transport.mu.Lock()
	f.transport.hold = hold
	f.transport.honorCancel = honorCancel
	f.transport.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Create(context.Background(), "AB12CD")
		done <- err
	}()

	require.Eventually(t, func() bool {
		return len(f.transport.requestTypes()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	waitForStatus(t, f.presence, presence.StatusConnecting)

	return func() { close(hold) }, done
}

func TestLeaveAbandonsPendingCreate(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.transport.reply(protocol.TypeCreateRoom, protocol.Ack{Success: true, RoomId: "AB12CD"})
	release, result := startHeldCreate(t, f, false)

	require.NoError(t, f.session.Leave(context.Background()))
	assert.ErrorIs(t, f.session.Leave(context.Background()), ErrNotInRoom)
	release()

	assert.ErrorIs(t, <-result, ErrAbandoned)
	assert.Empty(t, f.session.RoomId())
	assert.Equal(t, []sent{{protocol.TypeLeaveRoom, protocol.LeaveRoom{RoomId: "AB12CD"}}}, f.transport.emittedMessages())
	waitForStatus(t, f.presence, presence.StatusDisconnected)

	// The session is free for the next room.
	f.transport.mu.Lock()
	f.transport.hold = nil
	f.transport.mu.Unlock()
	f.enterRoom(t, "EF34GH")
	assert.Equal(t, "EF34GH", f.session.RoomId())
}

func TestLeaveWhileOfflineAbandonsPendingCreate(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.transport.reply(protocol.TypeCreateRoom, protocol.Ack{Success: true, RoomId: "AB12CD"})
	release, result := startHeldCreate(t, f, false)

	f.transport.setEmitErr(relayclient.ErrNotConnected)
	require.NoError(t, f.session.Leave(context.Background()))
	f.transport.setEmitErr(nil)
	release()

	// The ack still succeeded, so the relay is told once it can be.
	assert.ErrorIs(t, <-result, ErrAbandoned)
	assert.Empty(t, f.session.RoomId())
	assert.Equal(t, []sent{{protocol.TypeLeaveRoom, protocol.LeaveRoom{RoomId: "AB12CD"}}}, f.transport.emittedMessages())
	waitForStatus(t, f.presence, presence.StatusDisconnected)
}

func TestLeaveCancelsPendingCreate(t *testing.T) {
	f := newFixture(t, playback.State{})
	_, result := startHeldCreate(t, f, true)

	require.NoError(t, f.session.Leave(context.Background()))

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrAbandoned)
	case <-time.After(2 * time.Second):
		t.Fatal("create still waiting after leave")
	}
	assert.Empty(t, f.session.RoomId())
	waitForStatus(t, f.presence, presence.StatusDisconnected)
}

func TestCreateWhilePending(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.transport.reply(protocol.TypeCreateRoom, protocol.Ack{Success: true, RoomId: "AB12CD"})
	release, result := startHeldCreate(t, f, false)

	_, err := f.session.Join(context.Background(), "EF34GH")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	release()
	require.NoError(t, <-result)
	assert.Equal(t, "AB12CD", f.session.RoomId())
	waitForStatus(t, f.presence, presence.StatusConnected)
}

func TestLeaveWhileOffline(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.enterRoom(t, "AB12CD")
	f.transport.emitErr = relayclient.ErrNotConnected

	require.NoError(t, f.session.Leave(context.Background()))
	assert.Empty(t, f.session.RoomId())
}

func TestRejoinAfterResume(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.enterRoom(t, "AB12CD")
	waitForStatus(t, f.presence, presence.StatusConnected)

	f.transport.reply(protocol.TypeJoinRoom, protocol.Ack{Error: protocol.ErrCodeRoomNotFound})
	f.transport.reply(protocol.TypeCreateRoom, protocol.Ack{Success: true, RoomId: "AB12CD"})

	f.transport.status <- relayclient.StatusDropped
	waitForNotification(t, f.session, NotifyDropped)
	f.transport.status <- relayclient.StatusResumed

	n := waitForNotification(t, f.session, NotifyRejoined)
	assert.Equal(t, "AB12CD", n.RoomId)
	assert.Equal(t, []string{protocol.TypeCreateRoom, protocol.TypeJoinRoom, protocol.TypeCreateRoom}, f.transport.requestTypes())

	state := waitForStatus(t, f.presence, presence.StatusConnected)
	assert.Equal(t, "AB12CD", state.RoomId)
}

func TestRejoinFailureLeavesRoom(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.enterRoom(t, "AB12CD")
	waitForStatus(t, f.presence, presence.StatusConnected)

	f.transport.reply(protocol.TypeJoinRoom, protocol.Ack{Error: protocol.ErrCodeRoomFull})

	f.transport.status <- relayclient.StatusDropped
	f.transport.status <- relayclient.StatusResumed

	n := waitForNotification(t, f.session, NotifyGaveUp)
	assert.ErrorIs(t, n.Err, ErrRoomFull)
	assert.Empty(t, f.session.RoomId())
	waitForStatus(t, f.presence, presence.StatusDisconnected)
}

func TestGaveUp(t *testing.T) {
	f := newFixture(t, playback.State{})
	f.enterRoom(t, "AB12CD")
	waitForStatus(t, f.presence, presence.StatusConnected)

	f.transport.status <- relayclient.StatusDropped
	f.transport.status <- relayclient.StatusGaveUp

	waitForNotification(t, f.session, NotifyGaveUp)
	waitForStatus(t, f.presence, presence.StatusDisconnected)
	assert.Empty(t, f.session.RoomId())
}

func TestRunStopsWhenTransportCloses(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	transport := newFakeTransport()
	player := playback.NewController(playback.NewFakeDevice(playback.State{}), playback.Config{}, clock.NewMock(), logger)
	s := New(transport, player, presence.New(logger), Config{}, clock.NewMock(), logger)

	close(transport.incoming)
	assert.NoError(t, s.Run(context.Background()))
}
