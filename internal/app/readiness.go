package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	httpserver "github.com/fairyhunter13/llm-response-evaluator/internal/adapter/httpserver"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// MongoPinger is satisfied by *mongo.Client.
type MongoPinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// RedisClient is satisfied by *redis.Client.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// ReadinessDeps are the dependencies probed by /readyz. Tika is nil when the
// in-process extractor is used.
type ReadinessDeps struct {
	DB    Pinger
	Mongo MongoPinger
	Redis RedisClient
	Tika  Pinger
}

// BuildReadinessProbes returns the db, mongo and redis probes, plus tika
// when configured.
func BuildReadinessProbes(d ReadinessDeps) []httpserver.ReadinessProbe {
	probes := []httpserver.ReadinessProbe{
		{Name: "db", Check: func(ctx context.Context) error {
			if d.DB == nil {
				return fmt.Errorf("db not configured")
			}
			return d.DB.Ping(ctx)
		}},
		{Name: "mongo", Check: func(ctx context.Context) error {
			if d.Mongo == nil {
				return fmt.Errorf("mongo not configured")
			}
			return d.Mongo.Ping(ctx, readpref.Primary())
		}},
		{Name: "redis", Check: func(ctx context.Context) error {
			if d.Redis == nil {
				return fmt.Errorf("redis not configured")
			}
			return d.Redis.Ping(ctx).Err()
		}},
	}
	if d.Tika != nil {
		probes = append(probes, httpserver.ReadinessProbe{Name: "tika", Check: d.Tika.Ping})
	}
	return probes
}
