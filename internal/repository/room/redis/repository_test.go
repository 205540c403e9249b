package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/tandem/internal/repository/room"
	"github.com/sharetube/tandem/internal/repository/room/roomtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*repo, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	return NewRepo(rc, 2, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestRepo(t *testing.T) {
	roomtest.Run(t, func(t *testing.T) roomtest.Registry {
		r, _ := newTestRepo(t)
		return r
	})
}

func TestKeysAndTTL(t *testing.T) {
	r, mr := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{
		RoomId: "AB12CD",
		Member: room.Member{ConnectionId: "a", DisplayName: "Ann", AvatarURL: "https://example.com/a.png"},
	}))

	ok, err := mr.SIsMember("room:AB12CD:members", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ann", mr.HGet("member:a", "display_name"))
	assert.Equal(t, "https://example.com/a.png", mr.HGet("member:a", "avatar_url"))

	roomId, err := mr.Get("conn:a:room")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", roomId)

	assert.Equal(t, time.Hour, mr.TTL("room:AB12CD:members"))
	assert.Equal(t, time.Hour, mr.TTL("conn:a:room"))
	assert.Equal(t, time.Hour, mr.TTL("member:a"))

	_, err = r.RemoveConnection(ctx, "a")
	require.NoError(t, err)
	assert.False(t, mr.Exists("room:AB12CD:members"))
	assert.False(t, mr.Exists("conn:a:room"))
	assert.False(t, mr.Exists("member:a"))
}

func TestExpiredRoomIsGone(t *testing.T) {
	r, mr := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: room.Member{ConnectionId: "a"}}))
	mr.FastForward(2 * time.Hour)

	_, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: room.Member{ConnectionId: "b"}})
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestRefreshRoomOutlivesTTL(t *testing.T) {
	r, mr := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: room.Member{ConnectionId: "a", DisplayName: "Ann"}}))
	_, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: room.Member{ConnectionId: "b", DisplayName: "Bob"}})
	require.NoError(t, err)

	for range 5 {
		mr.FastForward(50 * time.Minute)
		require.NoError(t, r.RefreshRoom(ctx, "AB12CD"))
	}

	for _, id := range []string{"a", "b"} {
		roomId, err := r.GetRoomId(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "AB12CD", roomId, id)
	}
	assert.Equal(t, time.Hour, mr.TTL("room:AB12CD:members"))
	assert.Equal(t, time.Hour, mr.TTL("conn:b:room"))
	assert.Equal(t, time.Hour, mr.TTL("member:b"))
	assert.Equal(t, "Bob", mr.HGet("member:b", "display_name"))
}

func TestRefreshMissingRoom(t *testing.T) {
	r, mr := newTestRepo(t)

	require.NoError(t, r.RefreshRoom(context.Background(), "ZZ99ZZ"))
	assert.False(t, mr.Exists("room:ZZ99ZZ:members"))
}
