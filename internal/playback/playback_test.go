package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(device Device, clk clock.Clock) *Controller {
	return NewController(device, Config{PollInterval: time.Second}, clk, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRefreshAndPosition(t *testing.T) {
	mock := clock.NewMock()
	device := NewFakeDevice(State{TrackURI: "spotify:track:1", ProgressMs: 10000, DurationMs: 12000, IsPlaying: true})
	c := newTestController(device, mock)

	state, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mock.Now(), state.ObservedAt)
	assert.Equal(t, int64(10000), c.Position())

	mock.Add(1500 * time.Millisecond)
	assert.Equal(t, int64(11500), c.Position())

	mock.Add(5 * time.Second)
	assert.Equal(t, int64(12000), c.Position(), "position never passes the track duration")
}

func TestPositionWhilePaused(t *testing.T) {
	mock := clock.NewMock()
	c := newTestController(NewFakeDevice(State{ProgressMs: 3000}), mock)
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	mock.Add(time.Minute)
	assert.Equal(t, int64(3000), c.Position())
}

func TestCommandsUpdateSlot(t *testing.T) {
	mock := clock.NewMock()
	device := NewFakeDevice(State{TrackURI: "spotify:track:1"})
	c := newTestController(device, mock)
	ctx := context.Background()

	require.NoError(t, c.Seek(ctx, 60250))
	assert.Equal(t, int64(60250), c.Snapshot().ProgressMs)

	require.NoError(t, c.Play(ctx))
	assert.True(t, c.Snapshot().IsPlaying)

	mock.Add(2 * time.Second)
	require.NoError(t, c.Pause(ctx))
	assert.False(t, c.Snapshot().IsPlaying)
	assert.Equal(t, int64(62250), c.Snapshot().ProgressMs)

	require.NoError(t, c.Seek(ctx, -5))
	assert.Equal(t, int64(0), c.Snapshot().ProgressMs)

	require.NoError(t, c.ChangeTrack(ctx, "spotify:track:2", "Two"))
	assert.Equal(t, State{TrackURI: "spotify:track:2", TrackName: "Two", IsPlaying: true, ObservedAt: mock.Now()}, c.Snapshot())

	assert.Equal(t, []string{"seek:60250", "play", "pause", "seek:0", "track:spotify:track:2"}, device.Commands())
}

func TestCommandErrorKeepsSlot(t *testing.T) {
	device := NewFakeDevice(State{ProgressMs: 42})
	c := newTestController(device, clock.NewMock())
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	boom := errors.New("boom")
	device.Fail(boom)

	assert.ErrorIs(t, c.Play(context.Background()), boom)
	assert.False(t, c.Snapshot().IsPlaying)

	_, err = c.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(42), c.Snapshot().ProgressMs)
}

type countingDevice struct {
	*FakeDevice
	polls atomic.Int32
}

func (d *countingDevice) State(ctx context.Context) (State, error) {
	d.polls.Add(1)
	return d.FakeDevice.State(ctx)
}

func TestRunPolls(t *testing.T) {
	mock := clock.NewMock()
	device := &countingDevice{FakeDevice: NewFakeDevice(State{})}
	c := newTestController(device, mock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return device.polls.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
