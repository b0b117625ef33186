// Package redisstore keeps each user's current evaluation run in Redis.
package redisstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

const keyPrefix = "run:current:"

// RunStore implements domain.RunStore. A saved run replaces the previous one
// and expires after TTL.
type RunStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRunStore binds the store to a client.
func NewRunStore(rdb *redis.Client, ttl time.Duration) *RunStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RunStore{rdb: rdb, ttl: ttl}
}

func key(userID string) string { return keyPrefix + userID }

// Save stores run as the user's current run.
func (s *RunStore) Save(ctx domain.Context, run domain.Run) error {
	ctx, span := otel.Tracer("cache.runs").Start(ctx, "runs.Save")
	defer span.End()
	if run.UserID == "" {
		return fmt.Errorf("op=runstore.Save: %w: user id required", domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("op=runstore.Save: %w", err)
	}
	if err := s.rdb.Set(ctx, key(run.UserID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("op=runstore.Save: %w", err)
	}
	return nil
}

// Current returns the user's current run or domain.ErrNotFound.
func (s *RunStore) Current(ctx domain.Context, userID string) (domain.Run, error) {
	ctx, span := otel.Tracer("cache.runs").Start(ctx, "runs.Current")
	defer span.End()
	b, err := s.rdb.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Run{}, fmt.Errorf("op=runstore.Current: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("op=runstore.Current: %w", err)
	}
	var run domain.Run
	if err := json.Unmarshal(b, &run); err != nil {
		return domain.Run{}, fmt.Errorf("op=runstore.Current: %w: %v", domain.ErrSchemaInvalid, err)
	}
	return run, nil
}

// Discard removes the user's current run. Discarding nothing is not an error.
func (s *RunStore) Discard(ctx domain.Context, userID string) error {
	ctx, span := otel.Tracer("cache.runs").Start(ctx, "runs.Discard")
	defer span.End()
	if err := s.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("op=runstore.Discard: %w", err)
	}
	return nil
}
