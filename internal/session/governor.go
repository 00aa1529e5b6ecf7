package session

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/maxed-cv/internal/metrics"
)

// DefaultMaxSessions is the per-user cap on concurrent sessions.
const DefaultMaxSessions = 3

// trackScript adds a member and evicts the lowest-scored (oldest) overflow in
// one round trip, deleting each evicted session's record.
//
// The member being added is never a candidate: scores are milliseconds, so a
// tie with older members is possible and ZRANGE would then order by id.
// Ties among the older members are broken by id.
//
//	KEYS[1] user set
//	ARGV[1] session id   ARGV[2] score (created ms)   ARGV[3] max
//	ARGV[4] session key prefix   ARGV[5] set ttl (ms)
const trackScript = `
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
local max = tonumber(ARGV[3])
local count = redis.call("ZCARD", KEYS[1])
local evicted = {}
if count > max then
  local excess = count - max
  local candidates = redis.call("ZRANGE", KEYS[1], 0, excess)
  for _, id in ipairs(candidates) do
    if #evicted == excess then
      break
    end
    if id ~= ARGV[1] then
      evicted[#evicted + 1] = id
    end
  end
  for _, id in ipairs(evicted) do
    redis.call("ZREM", KEYS[1], id)
    redis.call("DEL", ARGV[4] .. id)
  end
end
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return evicted
`

var trackLua = redis.NewScript(trackScript)

// untrackAllScript destroys every tracked session record, then the set.
//
//	KEYS[1] user set   ARGV[1] session key prefix
const untrackAllScript = `
local ids = redis.call("ZRANGE", KEYS[1], 0, -1)
for _, id in ipairs(ids) do
  redis.call("DEL", ARGV[1] .. id)
end
redis.call("DEL", KEYS[1])
return #ids
`

var untrackAllLua = redis.NewScript(untrackAllScript)

// Governor tracks which sessions belong to which user.
//
// BEST-EFFORT CONTRACT:
// No method returns an error. Failures are logged and swallowed: losing a
// tracking write can at worst let a user exceed the cap briefly, while
// propagating it would turn Redis hiccups into failed logins.
//
// Concurrent logins for the same user may race; the script keeps each call
// atomic but the cap is not a lock across calls.
type Governor struct {
	rdb     redis.Cmdable
	max     int
	setTTL  time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewGovernor creates a governor. setTTL bounds how long an idle user's set
// survives; it should be at least the absolute session lifetime.
func NewGovernor(rdb redis.Cmdable, max int, setTTL time.Duration, m *metrics.Metrics, logger *slog.Logger) *Governor {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &Governor{rdb: rdb, max: max, setTTL: setTTL, metrics: m, logger: logger}
}

// Track registers sessionID for userID and evicts the oldest members beyond
// the cap. It returns the evicted ids (nil on failure).
func (g *Governor) Track(ctx context.Context, userID, sessionID string, createdAt time.Time) []string {
	res, err := trackLua.Run(ctx, g.rdb,
		[]string{userSetKey(userID)},
		sessionID,
		strconv.FormatInt(createdAt.UnixMilli(), 10),
		g.max,
		sessionKeyPrefix,
		g.setTTL.Milliseconds(),
	).StringSlice()
	if err != nil {
		g.logger.Warn("session tracking failed",
			slog.String("user_id", userID),
			slog.String("session", shortID(sessionID)),
			slog.Any("error", err),
		)
		return nil
	}

	if len(res) > 0 {
		g.metrics.SessionsEvicted(len(res))
		for _, id := range res {
			g.logger.Info("session evicted by concurrent-session cap",
				slog.String("user_id", userID),
				slog.String("session", shortID(id)),
				slog.Int("max", g.max),
			)
		}
	}
	return res
}

// Untrack removes one member. Removing an absent member is not an error.
func (g *Governor) Untrack(ctx context.Context, userID, sessionID string) {
	if err := g.rdb.ZRem(ctx, userSetKey(userID), sessionID).Err(); err != nil {
		g.logger.Warn("session untrack failed",
			slog.String("user_id", userID),
			slog.String("session", shortID(sessionID)),
			slog.Any("error", err),
		)
	}
}

// UntrackAll destroys every tracked session for the user and clears the set.
func (g *Governor) UntrackAll(ctx context.Context, userID string) {
	n, err := untrackAllLua.Run(ctx, g.rdb, []string{userSetKey(userID)}, sessionKeyPrefix).Int()
	if err != nil {
		g.logger.Warn("session bulk invalidation failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return
	}
	g.logger.Info("all sessions invalidated", slog.String("user_id", userID), slog.Int("count", n))
}

// Members lists tracked session ids, oldest first. It is a diagnostics
// accessor; none of the auth flows read the set directly.
func (g *Governor) Members(ctx context.Context, userID string) ([]string, error) {
	return g.rdb.ZRange(ctx, userSetKey(userID), 0, -1).Result()
}
