package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Membership changes run as Lua scripts so the capacity check and the insert
// happen in one step on the server.
const joinScript = `
local members = KEYS[1]
if redis.call('SISMEMBER', members, ARGV[1]) == 1 then
	if ARGV[4] == 'create' then
		return 'ACTIVE'
	end
	return 'OK'
end

local count = redis.call('SCARD', members)
if ARGV[4] == 'create' then
	if count > 0 then
		return 'ACTIVE'
	end
else
	if count == 0 then
		return 'NOT_FOUND'
	end
	if count >= tonumber(ARGV[3]) then
		return 'FULL'
	end
end

redis.call('SADD', members, ARGV[1])
redis.call('EXPIRE', members, ARGV[5])
redis.call('SET', KEYS[2], ARGV[2], 'EX', ARGV[5])
redis.call('HSET', KEYS[3], 'display_name', ARGV[6], 'avatar_url', ARGV[7])
redis.call('EXPIRE', KEYS[3], ARGV[5])
return 'OK'
`

const leaveScript = `
local removed = redis.call('SREM', KEYS[1], ARGV[1])
if redis.call('GET', KEYS[2]) == ARGV[2] then
	redis.call('DEL', KEYS[2])
	redis.call('DEL', KEYS[3])
end
return removed
`

// refreshScript extends every key of a room. The key layout matches
// getConnRoomKey and getMemberKey.
const refreshScript = `
local ids = redis.call('SMEMBERS', KEYS[1])
if #ids == 0 then
	return 0
end
redis.call('EXPIRE', KEYS[1], ARGV[1])
for _, id in ipairs(ids) do
	redis.call('EXPIRE', 'conn:' .. id .. ':room', ARGV[1])
	redis.call('EXPIRE', 'member:' .. id, ARGV[1])
end
return #ids
`

type repo struct {
	rc            *redis.Client
	joinScript    *redis.Script
	leaveScript   *redis.Script
	refreshScript *redis.Script
	membersLimit  int
	ttl           time.Duration
	logger        *slog.Logger
}

func NewRepo(rc *redis.Client, membersLimit int, ttl time.Duration, logger *slog.Logger) *repo {
	return &repo{
		rc:            rc,
		joinScript:    redis.NewScript(joinScript),
		leaveScript:   redis.NewScript(leaveScript),
		refreshScript: redis.NewScript(refreshScript),
		membersLimit:  membersLimit,
		ttl:           ttl,
		logger:        logger,
	}
}

func (r repo) getMemberListKey(roomId string) string {
	return "room:" + roomId + ":members"
}

func (r repo) getConnRoomKey(connectionId string) string {
	return "conn:" + connectionId + ":room"
}

func (r repo) getMemberKey(connectionId string) string {
	return "member:" + connectionId
}

func (r repo) ttlSeconds() int {
	seconds := int(r.ttl / time.Second)
	if seconds < 1 {
		return 1
	}

	return seconds
}

func (r repo) GetRoomId(ctx context.Context, connectionId string) (string, error) {
	r.logger.DebugContext(ctx, "called", "connection_id", connectionId)
	roomId, err := r.rc.Get(ctx, r.getConnRoomKey(connectionId)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return "", err
	}

	return roomId, nil
}
