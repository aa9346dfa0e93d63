// Package redis keeps a sorted-set copy of the leaderboard in Redis.
// The progress store stays the source of truth; the cache only serves
// reads once it has been warmed.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vijayaragavanr18/Vervathon25/internal/app/progression"
	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// ─── Keys ───────────────────────────────────────────────────────────────────

const (
	keyXP     = "leaderboard:xp"     // sorted set user -> total XP
	keyInfo   = "leaderboard:info"   // hash user -> progress JSON
	keyWarmed = "leaderboard:warmed" // set once Warm has loaded every user

	warmPage = 500
)

// Config controls the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key, so several deployments can share a server.
	Prefix string
}

var (
	_ progression.Observer         = (*Leaderboard)(nil)
	_ progression.LeaderboardCache = (*Leaderboard)(nil)
)

// Leaderboard is both the write-side observer and the read-side cache.
type Leaderboard struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Leaderboard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.Prefix, log), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string, log *zap.Logger) *Leaderboard {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix != "" && prefix[len(prefix)-1] != ':' {
		prefix += ":"
	}
	return &Leaderboard{client: client, prefix: prefix, log: log.Named("leaderboard")}
}

// Close closes the client.
func (l *Leaderboard) Close() error { return l.client.Close() }

// Ping checks that Redis is reachable.
func (l *Leaderboard) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Leaderboard) key(k string) string { return l.prefix + k }

// ─── Write Path ─────────────────────────────────────────────────────────────

// Name implements progression.Observer.
func (l *Leaderboard) Name() string { return "redis_leaderboard" }

// OnProgress mirrors a committed progress record.
func (l *Leaderboard) OnProgress(ctx context.Context, ev progression.ProgressEvent) error {
	return l.put(ctx, ev.Progress)
}

// putScript writes the record unless the cached one carries the same or a
// newer version. KEYS: xp set, info hash. ARGV: member, total XP, version, JSON.
var putScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[2], ARGV[1])
if cur then
	local ok, rec = pcall(cjson.decode, cur)
	if ok and rec['version'] and tonumber(rec['version']) >= tonumber(ARGV[3]) then
		return 0
	end
end
redis.call('ZADD', KEYS[1], 'GT', ARGV[2], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[4])
return 1
`)

// put mirrors p. Events may arrive out of order from several processes, so
// an older version never overwrites a newer one and the score never drops.
func (l *Leaderboard) put(ctx context.Context, p domain.UserProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	keys := []string{l.key(keyXP), l.key(keyInfo)}
	applied, err := putScript.Run(ctx, l.client, keys, string(p.UserID), p.TotalXP, p.Version, data).Int()
	if err != nil {
		return fmt.Errorf("redis update %s: %w", p.UserID, err)
	}
	if applied == 0 {
		l.log.Debug("stale progress event skipped",
			zap.String("user", string(p.UserID)), zap.Int64("version", p.Version))
	}
	return nil
}

// Warm loads every progress record from users and marks the cache readable.
// Records written concurrently reach the cache through OnProgress.
func (l *Leaderboard) Warm(ctx context.Context, users domain.UserStore) (int, error) {
	loaded := 0
	for offset := 0; ; offset += warmPage {
		rows, err := users.Top(ctx, warmPage, offset)
		if err != nil {
			return loaded, err
		}
		for _, r := range rows {
			if err := l.put(ctx, r.UserProgress); err != nil {
				return loaded, err
			}
		}
		loaded += len(rows)
		if len(rows) < warmPage {
			break
		}
	}
	if err := l.client.Set(ctx, l.key(keyWarmed), time.Now().UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return loaded, fmt.Errorf("redis mark warmed: %w", err)
	}
	l.log.Info("leaderboard cache warmed", zap.Int("users", loaded))
	return loaded, nil
}

// Reset drops every cached key.
func (l *Leaderboard) Reset(ctx context.Context) error {
	return l.client.Del(ctx, l.key(keyXP), l.key(keyInfo), l.key(keyWarmed)).Err()
}

// ─── Read Path ──────────────────────────────────────────────────────────────

func (l *Leaderboard) warmed(ctx context.Context) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(keyWarmed)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}

// Top implements progression.LeaderboardCache. Ranks are positions in the
// sorted set; equal scores are ordered by member descending, which can
// differ from the store's user ID order.
func (l *Leaderboard) Top(ctx context.Context, limit, offset int) ([]domain.RankedProgress, bool, error) {
	if ok, err := l.warmed(ctx); !ok || err != nil {
		return nil, false, err
	}
	zs, err := l.client.ZRevRangeWithScores(ctx, l.key(keyXP), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis range: %w", err)
	}
	if len(zs) == 0 {
		return []domain.RankedProgress{}, true, nil
	}

	members := make([]string, len(zs))
	for i, z := range zs {
		members[i] = z.Member.(string)
	}
	infos, err := l.client.HMGet(ctx, l.key(keyInfo), members...).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis info: %w", err)
	}

	out := make([]domain.RankedProgress, 0, len(zs))
	for i, z := range zs {
		p := domain.UserProgress{UserID: domain.UserID(members[i]), TotalXP: int64(z.Score)}
		if s, ok := infos[i].(string); ok {
			if err := json.Unmarshal([]byte(s), &p); err != nil {
				return nil, false, fmt.Errorf("decode %s: %w", members[i], err)
			}
		}
		if p.Level == 0 {
			p.Level, _ = progression.LevelForXP(p.TotalXP)
		}
		out = append(out, domain.RankedProgress{Rank: int64(offset + i + 1), UserProgress: p})
	}
	return out, true, nil
}

// Rank implements progression.LeaderboardCache.
func (l *Leaderboard) Rank(ctx context.Context, user domain.UserID) (int64, bool, error) {
	if ok, err := l.warmed(ctx); !ok || err != nil {
		return 0, false, err
	}
	rank, err := l.client.ZRevRank(ctx, l.key(keyXP), string(user)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis rank: %w", err)
	}
	return rank + 1, true, nil
}
