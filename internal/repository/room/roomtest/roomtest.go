// Package roomtest holds behaviour tests shared by every room registry backend.
package roomtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sharetube/tandem/internal/repository/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Registry interface {
	CreateRoom(context.Context, *room.CreateRoomParams) error
	JoinRoom(context.Context, *room.JoinRoomParams) ([]room.Member, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	RemoveConnection(context.Context, string) (room.RemoveConnectionResponse, error)
	GetRoomId(context.Context, string) (string, error)
	GetMembers(context.Context, string) ([]room.Member, error)
	RefreshRoom(context.Context, string) error
}

func member(connectionId string) room.Member {
	return room.Member{ConnectionId: connectionId, DisplayName: "user-" + connectionId}
}

// Run exercises newRegistry, which must return an empty registry with a
// members limit of 2.
func Run(t *testing.T, newRegistry func(t *testing.T) Registry) {
	ctx := context.Background()

	t.Run("create then join", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: member("a")}))

		others, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: member("b")})
		require.NoError(t, err)
		assert.Equal(t, []room.Member{member("a")}, others)

		roomId, err := r.GetRoomId(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "AB12CD", roomId)

		members, err := r.GetMembers(ctx, "AB12CD")
		require.NoError(t, err)
		assert.ElementsMatch(t, []room.Member{member("a"), member("b")}, members)
	})

	t.Run("create active room", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: member("a")}))

		err := r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: member("b")})
		assert.ErrorIs(t, err, room.ErrRoomAlreadyActive)

		err = r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: member("a")})
		assert.ErrorIs(t, err, room.ErrRoomAlreadyActive)
	})

	t.Run("join missing room", func(t *testing.T) {
		r := newRegistry(t)
		_, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "NOPE", Member: member("a")})
		assert.ErrorIs(t, err, room.ErrRoomNotFound)
	})

	t.Run("join full room", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: member("a")}))
		_, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: member("b")})
		require.NoError(t, err)

		_, err = r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: member("c")})
		assert.ErrorIs(t, err, room.ErrRoomFull)

		members, err := r.GetMembers(ctx, "AB12CD")
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("refresh keeps members", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: member("a")}))
		_, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: member("b")})
		require.NoError(t, err)

		require.NoError(t, r.RefreshRoom(ctx, "AB12CD"))
		require.NoError(t, r.RefreshRoom(ctx, "NOPE"))

		members, err := r.GetMembers(ctx, "AB12CD")
		require.NoError(t, err)
		assert.ElementsMatch(t, []room.Member{member("a"), member("b")}, members)

		members, err = r.GetMembers(ctx, "NOPE")
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("rejoin is idempotent", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: member("a")}))
		_, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: member("b")})
		require.NoError(t, err)

		others, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: member("b")})
		require.NoError(t, err)
		assert.Equal(t, []room.Member{member("a")}, others)
	})

	t.Run("leave garbage collects empty room", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: member("a")}))
		_, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: member("b")})
		require.NoError(t, err)

		resp, err := r.LeaveRoom(ctx, &room.LeaveRoomParams{RoomId: "AB12CD", ConnectionId: "a"})
		require.NoError(t, err)
		assert.True(t, resp.Left)
		assert.Equal(t, []room.Member{member("b")}, resp.Remaining)

		resp, err = r.LeaveRoom(ctx, &room.LeaveRoomParams{RoomId: "AB12CD", ConnectionId: "a"})
		require.NoError(t, err)
		assert.False(t, resp.Left)

		resp, err = r.LeaveRoom(ctx, &room.LeaveRoomParams{RoomId: "AB12CD", ConnectionId: "b"})
		require.NoError(t, err)
		assert.True(t, resp.Left)
		assert.Empty(t, resp.Remaining)

		_, err = r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: member("c")})
		assert.ErrorIs(t, err, room.ErrRoomNotFound)
		require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: member("c")}))
	})

	t.Run("remove connection", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: member("a")}))
		_, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: member("b")})
		require.NoError(t, err)

		resp, err := r.RemoveConnection(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "AB12CD", resp.RoomId)
		assert.Equal(t, []room.Member{member("a")}, resp.Remaining)

		roomId, err := r.GetRoomId(ctx, "b")
		require.NoError(t, err)
		assert.Empty(t, roomId)

		resp, err = r.RemoveConnection(ctx, "b")
		require.NoError(t, err)
		assert.Empty(t, resp.RoomId)
	})

	t.Run("leaving a previous room keeps the new one", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "ROOM1", Member: member("a")}))
		require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "ROOM2", Member: member("b")}))

		_, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "ROOM2", Member: member("a")})
		require.NoError(t, err)
		_, err = r.LeaveRoom(ctx, &room.LeaveRoomParams{RoomId: "ROOM1", ConnectionId: "a"})
		require.NoError(t, err)

		roomId, err := r.GetRoomId(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "ROOM2", roomId)

		members, err := r.GetMembers(ctx, "ROOM2")
		require.NoError(t, err)
		assert.ElementsMatch(t, []room.Member{member("a"), member("b")}, members)
	})

	t.Run("concurrent joins never exceed capacity", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.CreateRoom(ctx, &room.CreateRoomParams{RoomId: "AB12CD", Member: member("owner")}))

		const joiners = 20
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
			full     int
		)
		for i := 0; i < joiners; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := r.JoinRoom(ctx, &room.JoinRoomParams{RoomId: "AB12CD", Member: member(fmt.Sprintf("j%d", i))})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					accepted++
				case assert.ErrorIs(t, err, room.ErrRoomFull):
					full++
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, accepted)
		assert.Equal(t, joiners-1, full)

		members, err := r.GetMembers(ctx, "AB12CD")
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})
}
