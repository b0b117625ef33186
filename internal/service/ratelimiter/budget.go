// Package ratelimiter implements the per-user evaluation budget as a Redis
// token bucket evaluated atomically in Lua, mirrored to Postgres so a Redis
// restart does not hand every user a full bucket.
package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "budget:"

// Bucket sizes one token bucket. Refill is tokens per second.
type Bucket struct {
	Capacity int64
	Refill   float64
}

// PerHour builds a bucket that holds n tokens and refills n tokens an hour.
func PerHour(n int) Bucket {
	if n <= 0 {
		return Bucket{}
	}
	return Bucket{Capacity: int64(n), Refill: float64(n) / 3600}
}

// PerMinute builds a bucket that holds n tokens and refills n tokens a minute.
func PerMinute(n int) Bucket {
	if n <= 0 {
		return Bucket{}
	}
	return Bucket{Capacity: int64(n), Refill: float64(n) / 60}
}

func (b Bucket) enabled() bool { return b.Capacity > 0 && b.Refill > 0 }

// Store is the subset of a pgx pool used to mirror bucket state.
type Store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Budget admits costs against named buckets. A key selects its bucket by
// exact name, then by the part before the first ':' ("eval:<user>" draws
// from "eval"). Keys with no bucket are always admitted.
type Budget struct {
	rdb     *redis.Client
	mirror  Store
	buckets map[string]Bucket
	take    *redis.Script
	restore *redis.Script
	now     func() time.Time
}

// NewBudget returns nil when rdb is nil; a nil Budget admits everything.
// mirror may be nil.
func NewBudget(rdb *redis.Client, mirror Store, buckets map[string]Bucket) *Budget {
	if rdb == nil {
		return nil
	}
	b := &Budget{
		rdb:     rdb,
		mirror:  mirror,
		buckets: make(map[string]Bucket, len(buckets)),
		take:    redis.NewScript(takeScript),
		restore: redis.NewScript(restoreScript),
		now:     time.Now,
	}
	for k, v := range buckets {
		b.buckets[k] = v
	}
	return b
}

// takeScript refills the bucket for the elapsed time, then takes cost tokens
// if they are all there. It returns {admitted, tokens_left, retry_after_sec}.
const takeScript = `
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now

local elapsed = math.max(0, now - ts)
tokens = math.min(capacity, tokens + elapsed * refill)

local admitted = 0
local wait = 0
if tokens >= cost then
  tokens = tokens - cost
  admitted = 1
else
  wait = (cost - tokens) / refill
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("EXPIRE", KEYS[1], math.ceil(capacity / refill) + 60)
return { admitted, tostring(tokens), tostring(wait) }
`

// restoreScript seeds a bucket from the mirror unless Redis already has it.
const restoreScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "tokens", ARGV[1], "ts", ARGV[2])
redis.call("EXPIRE", KEYS[1], ARGV[3])
return 1
`

func (b *Budget) bucketFor(key string) (Bucket, bool) {
	if bk, ok := b.buckets[key]; ok {
		return bk, bk.enabled()
	}
	if name, _, found := strings.Cut(key, ":"); found {
		bk, ok := b.buckets[name]
		return bk, ok && bk.enabled()
	}
	return Bucket{}, false
}

// Allow takes cost tokens from key's bucket. A cost above the capacity is
// charged as a full bucket so oversized runs are admitted once the bucket
// is full. Redis failures admit the request and return the error for logging.
func (b *Budget) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if b == nil {
		return true, 0, nil
	}
	bk, ok := b.bucketFor(key)
	if !ok {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}
	if cost > bk.Capacity {
		cost = bk.Capacity
	}

	now := float64(b.now().UnixNano()) / 1e9
	res, err := b.take.Run(ctx, b.rdb, []string{keyPrefix + key}, bk.Capacity, bk.Refill, now, cost).Slice()
	if err != nil {
		return true, 0, fmt.Errorf("op=budget.Allow: %w", err)
	}
	if len(res) != 3 {
		return true, 0, fmt.Errorf("op=budget.Allow: unexpected script reply %v", res)
	}
	admitted, _ := res[0].(int64)
	tokens := parseFloat(res[1])
	wait := time.Duration(math.Ceil(parseFloat(res[2]))) * time.Second

	if b.mirror != nil {
		b.save(ctx, key, bk, tokens, now)
	}
	return admitted == 1, wait, nil
}

func (b *Budget) save(ctx context.Context, key string, bk Bucket, tokens, now float64) {
	sec, frac := math.Modf(now)
	_, err := b.mirror.Exec(ctx,
		`INSERT INTO rate_limit_buckets (bucket_key, capacity, refill_rate, tokens, last_refill)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (bucket_key) DO UPDATE SET
		   capacity = EXCLUDED.capacity,
		   refill_rate = EXCLUDED.refill_rate,
		   tokens = EXCLUDED.tokens,
		   last_refill = EXCLUDED.last_refill`,
		key, bk.Capacity, bk.Refill, tokens, time.Unix(int64(sec), int64(frac*1e9)).UTC(),
	)
	if err != nil {
		slog.Warn("budget mirror write failed", slog.String("key", key), slog.Any("error", err))
	}
}

// Restore seeds Redis from the Postgres mirror for every bucket Redis lost.
// It returns how many buckets were restored.
func (b *Budget) Restore(ctx context.Context) (int, error) {
	if b == nil || b.mirror == nil {
		return 0, nil
	}
	rows, err := b.mirror.Query(ctx, `SELECT bucket_key, capacity, refill_rate, tokens, EXTRACT(EPOCH FROM last_refill)::float8 FROM rate_limit_buckets`)
	if err != nil {
		return 0, fmt.Errorf("op=budget.Restore: %w", err)
	}
	defer rows.Close()

	restored := 0
	for rows.Next() {
		var (
			key            string
			capacity       int64
			refill, tokens float64
			ts             float64
		)
		if err := rows.Scan(&key, &capacity, &refill, &tokens, &ts); err != nil {
			return restored, fmt.Errorf("op=budget.Restore: %w", err)
		}
		ttl := int64(60)
		if refill > 0 {
			ttl += int64(math.Ceil(float64(capacity) / refill))
		}
		n, err := b.restore.Run(ctx, b.rdb, []string{keyPrefix + key},
			strconv.FormatFloat(tokens, 'f', -1, 64), strconv.FormatFloat(ts, 'f', -1, 64), ttl).Int()
		if err != nil {
			slog.Warn("budget restore failed", slog.String("key", key), slog.Any("error", err))
			continue
		}
		restored += n
	}
	return restored, rows.Err()
}

func parseFloat(v any) float64 {
	s, _ := v.(string)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
